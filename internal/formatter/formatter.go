// package formatter renders run progress and summaries for the CLI (plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidalhook/shelfctl/internal/engine"
)

// PageLine renders a one-line per-page progress report.
func PageLine(page int, delta engine.Stats) string {
	return fmt.Sprintf("page %d: %d toggled, %d skipped, %d failed", page, delta.Toggled, delta.Skipped, delta.Failed)
}

// SummaryText renders a run result as a human-readable block.
func SummaryText(result *engine.RunResult) string {
	var buf bytes.Buffer

	buf.WriteString("═══════════════════════════════════════\n")
	if result.Stopped {
		buf.WriteString("Run Stopped\n")
	} else if result.Policy.DryRun {
		buf.WriteString("Dry Run Complete\n")
	} else {
		buf.WriteString("Run Complete\n")
	}
	buf.WriteString("═══════════════════════════════════════\n")
	buf.WriteString(fmt.Sprintf("Run ID: %s\n", result.RunID))
	buf.WriteString(fmt.Sprintf("Duration: %s\n", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond)))
	buf.WriteString(fmt.Sprintf("Pages: %d\n", result.Pages))
	buf.WriteString(fmt.Sprintf("Toggled: %d\n", result.Stats.Toggled))
	buf.WriteString(fmt.Sprintf("Skipped: %d\n", result.Stats.Skipped))
	buf.WriteString(fmt.Sprintf("Failed: %d\n", result.Stats.Failed))
	buf.WriteString(fmt.Sprintf("Retried: %d\n", result.Stats.Retried))

	if len(result.Failures) > 0 {
		buf.WriteString("\nFailed items:\n")
		for i, failure := range result.Failures {
			buf.WriteString(fmt.Sprintf("  %d. %s (%s): %s\n", i+1, failure.Title, failure.Category, failure.Reason))
		}
	}

	buf.WriteString("\n")
	buf.WriteString(PolicyText(result.Policy))
	return buf.String()
}

// PolicyText renders the effective policy for audit output.
func PolicyText(p engine.Policy) string {
	var buf bytes.Buffer

	buf.WriteString("Effective policy:\n")
	buf.WriteString(fmt.Sprintf("  desired: %s\n", p.Desired))

	if len(p.Categories) == 0 {
		buf.WriteString("  categories: all\n")
	} else {
		labels := make([]string, len(p.Categories))
		for i, c := range p.Categories {
			labels[i] = c.String()
		}
		buf.WriteString(fmt.Sprintf("  categories: %s\n", strings.Join(labels, ", ")))
	}

	if len(p.Include) > 0 {
		buf.WriteString(fmt.Sprintf("  include: %s\n", strings.Join(p.Include, ", ")))
	}
	if len(p.Exclude) > 0 {
		buf.WriteString(fmt.Sprintf("  exclude: %s\n", strings.Join(p.Exclude, ", ")))
	}
	buf.WriteString(fmt.Sprintf("  dry_run: %t\n", p.DryRun))
	buf.WriteString(fmt.Sprintf("  concurrency: %d, max_retries: %d\n", p.Concurrency, p.MaxRetries))

	return buf.String()
}

// summaryPayload is the JSON shape of a run summary.
type summaryPayload struct {
	RunID    string       `json:"run_id"`
	Stopped  bool         `json:"stopped"`
	DryRun   bool         `json:"dry_run"`
	Desired  string       `json:"desired"`
	Pages    int          `json:"pages"`
	Stats    engine.Stats `json:"stats"`
	Failures []failure    `json:"failures,omitempty"`
}

type failure struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

// SummaryJSON renders a run result as indented JSON.
func SummaryJSON(result *engine.RunResult) ([]byte, error) {
	payload := summaryPayload{
		RunID:   result.RunID,
		Stopped: result.Stopped,
		DryRun:  result.Policy.DryRun,
		Desired: string(result.Policy.Desired),
		Pages:   result.Pages,
		Stats:   result.Stats,
	}
	for _, f := range result.Failures {
		payload.Failures = append(payload.Failures, failure{
			Title:    f.Title,
			Category: f.Category.String(),
			Reason:   f.Reason,
		})
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return data, nil
}
