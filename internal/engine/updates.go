package engine

import (
	"fmt"

	"github.com/tidalhook/shelfctl/internal/catalog"
)

// ProgressUpdate represents a progress event during a run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase
	Page    int
	Step    int
	Total   int
	Message string
	Stats   Stats // cumulative run stats at the time of the event
	Delta   Stats // per-page stats, set on PageDone
}

// Operation phase enumeration
type Phase int

const (
	ScanPage Phase = iota
	DryRunNotice
	BatchStart
	ItemToggled
	ItemSkipped
	ItemFailed
	ItemRetried
	PageDone
	AdvancePage
	WaitTimeout
	StragglerPass
	RunDone
)

func (p Phase) String() string {
	switch p {
	case ScanPage:
		return "scan_page"
	case DryRunNotice:
		return "dry_run_notice"
	case BatchStart:
		return "batch_start"
	case ItemToggled:
		return "item_toggled"
	case ItemSkipped:
		return "item_skipped"
	case ItemFailed:
		return "item_failed"
	case ItemRetried:
		return "item_retried"
	case PageDone:
		return "page_done"
	case AdvancePage:
		return "advance_page"
	case WaitTimeout:
		return "wait_timeout"
	case StragglerPass:
		return "straggler_pass"
	case RunDone:
		return "run_done"
	default:
		return ""
	}
}

func scanPageUpdate(page, total, selected int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ScanPage,
		Page:    page,
		Total:   total,
		Message: fmt.Sprintf("Page %d: %d items visible, %d selected", page, total, selected),
	}
}

func dryRunUpdate(page int, item catalog.Item, desired Desired) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DryRunNotice,
		Page:    page,
		Message: fmt.Sprintf("[dry-run] would %s: %s (%s)", desired, item.Title, item.Category),
	}
}

func batchStartUpdate(page, batch, batches, size int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BatchStart,
		Page:    page,
		Step:    batch,
		Total:   batches,
		Message: fmt.Sprintf("Batch %d/%d (%d items)", batch, batches, size),
	}
}

func itemUpdate(page int, item catalog.Item, out outcome, stats Stats) ProgressUpdate {
	u := ProgressUpdate{Page: page, Stats: stats}
	switch out.kind {
	case outcomeToggled:
		u.Phase = ItemToggled
		u.Message = fmt.Sprintf("✓ %s", item.Title)
	case outcomeSkipped:
		u.Phase = ItemSkipped
		u.Message = fmt.Sprintf("- %s (already in desired state)", item.Title)
	default:
		u.Phase = ItemFailed
		u.Message = fmt.Sprintf("✗ %s: %s", item.Title, out.reason)
	}
	return u
}

func pageDoneUpdate(page int, delta, stats Stats) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PageDone,
		Page:    page,
		Stats:   stats,
		Delta:   delta,
		Message: fmt.Sprintf("Page %d done: %d toggled, %d skipped, %d failed", page, delta.Toggled, delta.Skipped, delta.Failed),
	}
}

func advancePageUpdate(page int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AdvancePage,
		Page:    page,
		Message: fmt.Sprintf("Loading page %d...", page+1),
	}
}

func waitTimeoutUpdate(page int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WaitTimeout,
		Page:    page,
		Message: "No new items appeared before the timeout; continuing",
	}
}

func stragglerUpdate(page int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StragglerPass,
		Page:    page,
		Message: "Re-scanning last page for stragglers...",
	}
}

func runDoneUpdate(stats Stats) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RunDone,
		Stats:   stats,
		Message: fmt.Sprintf("Run complete: %d toggled, %d skipped, %d failed, %d retried", stats.Toggled, stats.Skipped, stats.Failed, stats.Retried),
	}
}
