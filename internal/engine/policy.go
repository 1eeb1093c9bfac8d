package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidalhook/shelfctl/internal/catalog"
	"github.com/tidalhook/shelfctl/internal/shared"
)

// Desired names the target state a run drives items toward.
type Desired string

const (
	DesiredEnable  Desired = "enable"
	DesiredDisable Desired = "disable"
)

// Enabled returns the boolean item state the desired state corresponds to.
func (d Desired) Enabled() bool {
	return d == DesiredEnable
}

// ParseDesired validates a desired-state label.
func ParseDesired(s string) (Desired, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enable", "enabled", "on":
		return DesiredEnable, nil
	case "disable", "disabled", "off":
		return DesiredDisable, nil
	default:
		return "", fmt.Errorf("%w: desired state must be 'enable' or 'disable', got %q", shared.ErrInvalidFlag, s)
	}
}

// Policy is the declarative selection and pacing configuration for one run.
type Policy struct {
	Desired       Desired
	Categories    []catalog.Category // empty selects all categories
	Include       []string           // item passes when any include keyword matches the title
	Exclude       []string           // item fails when any exclude keyword matches the title
	CaseSensitive bool
	DryRun        bool

	Concurrency    int
	MaxRetries     int
	RateLimit      float64 // batch starts per second, 0 disables pacing
	ActuateDelay   time.Duration
	PageDelay      time.Duration
	BackoffBase    time.Duration
	VerifyTimeout  time.Duration
	VerifyInterval time.Duration
	LoadTimeout    time.Duration
	PollInterval   time.Duration
}

// Validate checks the policy's fields. Only per-field checks: the desired
// state must be one of the two values and numeric knobs must not be negative.
func (p Policy) Validate() error {
	if p.Desired != DesiredEnable && p.Desired != DesiredDisable {
		return fmt.Errorf("%w: desired state must be 'enable' or 'disable'", shared.ErrInvalidFlag)
	}
	if p.Concurrency < 0 || p.MaxRetries < 0 {
		return fmt.Errorf("%w: concurrency and max retries must not be negative", shared.ErrInvalidFlag)
	}
	return nil
}

// normalized returns a copy with defaults filled for zero-valued knobs.
func (p Policy) normalized() Policy {
	if p.Concurrency <= 0 {
		p.Concurrency = 5
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = time.Second
	}
	if p.VerifyTimeout <= 0 {
		p.VerifyTimeout = 3 * time.Second
	}
	if p.VerifyInterval <= 0 {
		p.VerifyInterval = 50 * time.Millisecond
	}
	if p.LoadTimeout <= 0 {
		p.LoadTimeout = 15 * time.Second
	}
	if p.PollInterval <= 0 {
		p.PollInterval = 250 * time.Millisecond
	}
	return p
}

// ShouldProcess reports whether the item needs a state change under this
// policy. Pure; no I/O. Predicates run cheapest first and short-circuit:
// state mismatch, category, include keywords, exclude keywords.
func (p Policy) ShouldProcess(item catalog.Item) bool {
	if item.Enabled == p.Desired.Enabled() {
		return false
	}

	if len(p.Categories) > 0 {
		allowed := false
		for _, c := range p.Categories {
			if item.Category == c {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	title := item.Title
	if !p.CaseSensitive {
		title = strings.ToLower(title)
	}

	if len(p.Include) > 0 {
		matched := false
		for _, kw := range p.Include {
			if p.matchKeyword(title, kw) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, kw := range p.Exclude {
		if p.matchKeyword(title, kw) {
			return false
		}
	}

	return true
}

// matchKeyword reports whether title contains kw. The title is already folded
// when matching is case-insensitive; only the keyword needs folding here.
func (p Policy) matchKeyword(title, kw string) bool {
	if !p.CaseSensitive {
		kw = strings.ToLower(kw)
	}
	return strings.Contains(title, kw)
}
