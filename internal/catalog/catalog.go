package catalog

import (
	"context"
	"fmt"
	"strings"
)

// Category classifies a shelf item by content type.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryApp
	CategoryEbook
	CategoryVideo
	CategoryAudible
	CategorySkill
)

func (c Category) String() string {
	switch c {
	case CategoryApp:
		return "APP"
	case CategoryEbook:
		return "EBOOK"
	case CategoryVideo:
		return "VIDEO"
	case CategoryAudible:
		return "AUDIBLE"
	case CategorySkill:
		return "SKILL"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory maps a category label to its [Category]. Unrecognized labels
// map to [CategoryUnknown] rather than an error: the shelf occasionally
// renders entries with labels this tool has never seen.
func ParseCategory(s string) Category {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "APP", "APPS":
		return CategoryApp
	case "EBOOK", "EBOOKS", "BOOK":
		return CategoryEbook
	case "VIDEO", "VIDEOS":
		return CategoryVideo
	case "AUDIBLE", "AUDIOBOOK":
		return CategoryAudible
	case "SKILL", "SKILLS":
		return CategorySkill
	default:
		return CategoryUnknown
	}
}

// Item represents a toggleable entry as observed on a single page read.
type Item struct {
	ID       string // stable identity when the shelf exposes one, else empty
	Title    string
	Category Category
	Enabled  bool
	Handle   string // opaque actuation token; empty means the item cannot be actuated
}

// DedupKey returns the identity used for at-most-once processing within a run.
// Falls back to the display title when no stable ID is available; titles are
// not guaranteed unique, so colliding titles share a key.
func (i Item) DedupKey() string {
	if i.ID != "" {
		return i.ID
	}
	return i.Title
}

// PageState describes the shelf's pagination position as read from the surface.
type PageState struct {
	LastPage   bool // no further pages exist
	Loading    bool // a page fetch is in flight; do not advance
	CanAdvance bool // the surface currently offers a load-more action
}

// Source yields the currently rendered items and drives pagination.
//
// Items reflects everything rendered so far; surfaces append as they page, so
// the same item may be returned on successive calls. Advance triggers the next
// page load; it is only valid when the last observed PageState allows it.
type Source interface {
	Items(ctx context.Context) ([]Item, error)
	Pagination(ctx context.Context) (PageState, error)
	Advance(ctx context.Context) error
}

// Actuator performs the state-changing action for one item.
//
// A nil return means the action was accepted. [ErrAlreadyDesired] reports an
// item discovered to already hold the requested state. [TransientError] and
// [PermanentError] classify failures for the engine's retry logic.
type Actuator interface {
	Actuate(ctx context.Context, item Item, enable bool) error
}

// Observer is implemented by actuators whose effect can be verified through an
// observable indicator. The engine probes for it once per run and, when
// present, polls Observe after each actuation until the state reflects the
// request or a timeout elapses.
type Observer interface {
	Observe(ctx context.Context, item Item) (bool, error)
}

// ErrAlreadyDesired reports an actuation that found the item already in the
// requested state.
var ErrAlreadyDesired = fmt.Errorf("item already in desired state")

// TransientError is a retryable actuation failure (rate limiting, network
// faults, server errors).
type TransientError struct {
	Reason      string
	RateLimited bool
}

func (e *TransientError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("transient: rate limited: %s", e.Reason)
	}
	return fmt.Sprintf("transient: %s", e.Reason)
}

// PermanentError is a definitive rejection; the engine does not retry it.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %s", e.Reason)
}
