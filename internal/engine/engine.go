package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/tidalhook/shelfctl/internal/catalog"
	"github.com/tidalhook/shelfctl/internal/shared"
)

// Stats are the cumulative counters for one run. Monotonically non-decreasing
// within a run; reset only by starting a new run.
type Stats struct {
	Toggled int `json:"toggled"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Retried int `json:"retried"`
}

// Add accumulates a delta into the stats.
func (s *Stats) Add(d Stats) {
	s.Toggled += d.Toggled
	s.Skipped += d.Skipped
	s.Failed += d.Failed
	s.Retried += d.Retried
}

// Total returns the number of item outcomes counted so far.
func (s Stats) Total() int {
	return s.Toggled + s.Skipped + s.Failed
}

// ItemFailure records one item that could not be reconciled.
type ItemFailure struct {
	Key      string
	Title    string
	Category catalog.Category
	Reason   string
}

// RunResult is the report of a completed run.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Policy     Policy // effective policy, for audit
	Pages      int
	Stats      Stats
	Failures   []ItemFailure
	Stopped    bool // the operator stopped the run before the shelf was exhausted
}

const (
	outcomeToggled = iota
	outcomeSkipped
	outcomeFailed
)

// outcome is the terminal result of one item's attempt ladder.
type outcome struct {
	kind    int
	retries int
	reason  string
}

// Reconciler drives shelf items toward the policy's desired state.
//
// A Reconciler is single-use: construct one per run. All of its state is
// instance-scoped, so independent reconciliation sessions can run concurrently
// (as the tests do).
type Reconciler struct {
	source     catalog.Source
	actuator   catalog.Actuator
	observer   catalog.Observer // nil when the actuator exposes no indicator
	policy     Policy
	logger     *log.Logger
	controller *Controller
	limiter    *rate.Limiter

	seen     map[string]struct{}
	stats    Stats
	failures []ItemFailure
	pages    int

	// sleep is swapped out by tests to observe backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewReconciler creates a reconciler for one run. The actuation style is
// probed here, once: an actuator that implements [catalog.Observer] gets the
// fire-and-verify treatment for the whole run.
func NewReconciler(source catalog.Source, actuator catalog.Actuator, policy Policy, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	policy = policy.normalized()

	var limiter *rate.Limiter
	if policy.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(policy.RateLimit), 1)
	}

	observer, _ := actuator.(catalog.Observer)

	return &Reconciler{
		source:     source,
		actuator:   actuator,
		observer:   observer,
		policy:     policy,
		logger:     logger,
		controller: NewController(),
		limiter:    limiter,
		seen:       make(map[string]struct{}),
		sleep:      sleepCtx,
	}
}

// Controller returns the run's controller for operator pause/resume/stop.
func (r *Reconciler) Controller() *Controller {
	return r.controller
}

// Stats returns a snapshot of the cumulative counters.
func (r *Reconciler) Stats() Stats {
	return r.stats
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (r *Reconciler) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// ProcessPage reconciles one page's items and returns the stats delta.
//
// Items already handled this run are dropped first; survivors of the policy
// filter are marked in the dedup set before any actuation so a failure cannot
// cause a second attempt on a later page. Survivors are actuated in batches of
// Concurrency with a full barrier between batches.
func (r *Reconciler) ProcessPage(ctx context.Context, page int, items []catalog.Item, progress chan<- ProgressUpdate) (Stats, error) {
	var survivors []catalog.Item
	for _, item := range items {
		key := item.DedupKey()
		if _, done := r.seen[key]; done {
			continue
		}
		if !r.policy.ShouldProcess(item) {
			continue
		}
		r.seen[key] = struct{}{}
		survivors = append(survivors, item)
	}

	r.sendProgress(progress, scanPageUpdate(page, len(items), len(survivors)))
	r.logger.Debug("page scanned", "page", page, "visible", len(items), "selected", len(survivors))

	var delta Stats

	if r.policy.DryRun {
		for _, item := range survivors {
			r.sendProgress(progress, dryRunUpdate(page, item, r.policy.Desired))
			r.logger.Info("would toggle", "item", item.Title, "category", item.Category.String())
			delta.Skipped++
		}
		r.stats.Add(delta)
		return delta, nil
	}

	size := r.policy.Concurrency
	batches := (len(survivors) + size - 1) / size

	for b := 0; b < batches; b++ {
		if err := r.controller.Gate(ctx); err != nil {
			r.stats.Add(delta)
			return delta, err
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				r.stats.Add(delta)
				return delta, err
			}
		}

		batch := survivors[b*size : min((b+1)*size, len(survivors))]
		r.sendProgress(progress, batchStartUpdate(page, b+1, batches, len(batch)))

		// Actuations are issued in filtered order and may complete out of
		// order; the pool barrier holds batch N+1 until batch N finishes.
		outcomes := make([]outcome, len(batch))
		p := pool.New().WithMaxGoroutines(len(batch))
		for i, item := range batch {
			p.Go(func() {
				outcomes[i] = r.attempt(ctx, item)
			})
		}
		p.Wait()

		// Outcomes fold into stats on the engine goroutine only.
		for i, out := range outcomes {
			item := batch[i]
			delta.Retried += out.retries
			switch out.kind {
			case outcomeToggled:
				delta.Toggled++
				r.logger.Debug("toggled", "item", item.Title)
			case outcomeSkipped:
				delta.Skipped++
				r.logger.Debug("skipped", "item", item.Title)
			default:
				delta.Failed++
				r.failures = append(r.failures, ItemFailure{
					Key:      item.DedupKey(),
					Title:    item.Title,
					Category: item.Category,
					Reason:   out.reason,
				})
				r.logger.Warn("failed", "item", item.Title, "reason", out.reason)
			}
			snapshot := r.stats
			snapshot.Add(delta)
			r.sendProgress(progress, itemUpdate(page, item, out, snapshot))
		}

		if b < batches-1 && r.policy.ActuateDelay > 0 {
			if err := r.sleep(ctx, r.policy.ActuateDelay); err != nil {
				r.stats.Add(delta)
				return delta, err
			}
		}
	}

	r.stats.Add(delta)
	return delta, nil
}

// attempt runs one item's full actuation ladder and returns its terminal outcome.
func (r *Reconciler) attempt(ctx context.Context, item catalog.Item) outcome {
	if item.Handle == "" {
		// Discovery error: the item cannot be actuated at all, so retrying
		// cannot help.
		return outcome{kind: outcomeFailed, reason: shared.ErrDiscovery.Error()}
	}

	if r.observer != nil {
		return r.fireAndVerify(ctx, item)
	}
	return r.fireAndTrust(ctx, item)
}

// fireAndTrust performs the action and trusts its response code, retrying
// transient failures with exponential backoff up to MaxRetries attempts.
func (r *Reconciler) fireAndTrust(ctx context.Context, item catalog.Item) outcome {
	desired := r.policy.Desired.Enabled()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.policy.BackoffBase
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = r.policy.BackoffBase * 64

	var out outcome
	for {
		err := r.actuator.Actuate(ctx, item, desired)
		switch {
		case err == nil:
			out.kind = outcomeToggled
			return out
		case errors.Is(err, catalog.ErrAlreadyDesired):
			out.kind = outcomeSkipped
			return out
		}

		var transient *catalog.TransientError
		if !errors.As(err, &transient) {
			out.kind = outcomeFailed
			out.reason = err.Error()
			return out
		}

		if out.retries >= r.policy.MaxRetries {
			out.kind = outcomeFailed
			out.reason = fmt.Sprintf("retries exhausted: %s", err)
			return out
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			delay = bo.MaxInterval
		}
		out.retries++
		r.logger.Debug("retrying", "item", item.Title, "attempt", out.retries, "delay", delay, "reason", err)
		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			out.kind = outcomeFailed
			out.reason = sleepErr.Error()
			return out
		}
	}
}

// fireAndVerify performs the action and polls the observable indicator until
// it reflects the desired state. A verification timeout triggers exactly one
// fresh attempt of the same action before the item is declared failed.
func (r *Reconciler) fireAndVerify(ctx context.Context, item catalog.Item) outcome {
	desired := r.policy.Desired.Enabled()

	var out outcome
	for attempt := 0; attempt <= 1; attempt++ {
		if attempt > 0 {
			out.retries++
			r.logger.Debug("re-firing after verification timeout", "item", item.Title)
		}

		err := r.actuator.Actuate(ctx, item, desired)
		switch {
		case err == nil:
		case errors.Is(err, catalog.ErrAlreadyDesired):
			out.kind = outcomeSkipped
			return out
		default:
			var transient *catalog.TransientError
			if errors.As(err, &transient) && attempt == 0 {
				// A transient fire failure consumes the single retry.
				continue
			}
			out.kind = outcomeFailed
			out.reason = err.Error()
			return out
		}

		if r.verify(ctx, item, desired) {
			out.kind = outcomeToggled
			return out
		}
	}

	out.kind = outcomeFailed
	out.reason = shared.ErrVerifyTimeout.Error()
	return out
}

// verify polls the observer until the item reflects desired or the verify
// timeout elapses. Observation errors count as an unverified poll, not a
// failure: the indicator may lag the action.
func (r *Reconciler) verify(ctx context.Context, item catalog.Item, desired bool) bool {
	deadline := time.Now().Add(r.policy.VerifyTimeout)
	for {
		state, err := r.observer.Observe(ctx, item)
		if err == nil && state == desired {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}
		if sleepErr := r.sleep(ctx, r.policy.VerifyInterval); sleepErr != nil {
			return false
		}
	}
}

// Run performs the full reconciliation: page cycles until the shelf reports
// its last page, then one straggler pass over the final page. Progress is
// reported per page and per item; the returned result carries the effective
// policy for audit.
func (r *Reconciler) Run(ctx context.Context, progress chan<- ProgressUpdate) (*RunResult, error) {
	// Pre-flight: the shelf must answer before any run state is created.
	if _, err := r.source.Pagination(ctx); err != nil {
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}

	if err := r.controller.Start(); err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:     shared.GenerateID(),
		StartedAt: time.Now(),
		Policy:    r.policy,
	}
	r.logger.Info("run started", "id", result.RunID, "desired", r.policy.Desired, "dry_run", r.policy.DryRun)

	stopped := false
	for page := 1; ; page++ {
		if err := r.controller.Gate(ctx); err != nil {
			stopped = true
			break
		}

		items, err := r.source.Items(ctx)
		if err != nil {
			r.finish(result, stopped)
			return result, fmt.Errorf("failed to read page %d: %w", page, err)
		}

		delta, err := r.ProcessPage(ctx, page, items, progress)
		result.Pages++
		r.sendProgress(progress, pageDoneUpdate(page, delta, r.stats))
		r.logger.Info("page done", "page", page, "toggled", delta.Toggled, "skipped", delta.Skipped, "failed", delta.Failed)
		if err != nil {
			stopped = true
			break
		}

		done, err := r.advance(ctx, page, len(items), progress)
		if err != nil {
			if errors.Is(err, shared.ErrRunStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				stopped = true
				break
			}
			r.finish(result, stopped)
			return result, err
		}
		if done {
			break
		}

		if r.policy.PageDelay > 0 {
			if err := r.sleep(ctx, r.policy.PageDelay); err != nil {
				stopped = true
				break
			}
		}
	}

	// Straggler pass: items can flip state concurrently with processing
	// (the shelf reorders after a toggle), so re-scan the last page once.
	if !stopped {
		r.sendProgress(progress, stragglerUpdate(result.Pages))
		if items, err := r.source.Items(ctx); err == nil {
			delta, pageErr := r.ProcessPage(ctx, result.Pages+1, items, progress)
			result.Pages++
			r.sendProgress(progress, pageDoneUpdate(result.Pages, delta, r.stats))
			if pageErr != nil {
				stopped = true
			}
		} else {
			r.logger.Warn("straggler pass skipped", "reason", err)
		}
	}

	r.finish(result, stopped)
	r.sendProgress(progress, runDoneUpdate(r.stats))
	r.logger.Info("run complete", "toggled", r.stats.Toggled, "skipped", r.stats.Skipped, "failed", r.stats.Failed, "retried", r.stats.Retried)
	return result, nil
}

// advance drives one pagination step. Returns done=true when the shelf
// reports its last page.
func (r *Reconciler) advance(ctx context.Context, page, prevCount int, progress chan<- ProgressUpdate) (bool, error) {
	state, err := r.source.Pagination(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read pagination state: %w", err)
	}

	// A fetch in flight: re-poll without advancing. Bounded like every other
	// wait; a shelf stuck reporting loading does not hang the run.
	loadingDeadline := time.Now().Add(r.policy.LoadTimeout)
	for state.Loading {
		if time.Now().After(loadingDeadline) {
			r.sendProgress(progress, waitTimeoutUpdate(page))
			r.logger.Warn("shelf still loading past timeout; treating page as settled", "page", page)
			break
		}
		if sleepErr := r.sleep(ctx, r.policy.PollInterval); sleepErr != nil {
			return false, sleepErr
		}
		if state, err = r.source.Pagination(ctx); err != nil {
			return false, fmt.Errorf("failed to read pagination state: %w", err)
		}
	}

	if state.LastPage {
		return true, nil
	}

	// No load-more control on offer and nothing loading: the shelf cannot
	// grow, so treat the page as the last one.
	if !state.CanAdvance {
		r.logger.Warn("shelf offers no way to load more; treating as last page", "page", page)
		return true, nil
	}

	r.sendProgress(progress, advancePageUpdate(page))
	if err := r.source.Advance(ctx); err != nil {
		return false, fmt.Errorf("failed to load next page: %w", err)
	}

	// Wait for new items to appear. A timeout is non-fatal: the shelf
	// occasionally advances without growing the rendered count.
	deadline := time.Now().Add(r.policy.LoadTimeout)
	for {
		items, err := r.source.Items(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to read page %d: %w", page+1, err)
		}
		if len(items) > prevCount {
			return false, nil
		}
		if time.Now().After(deadline) {
			r.sendProgress(progress, waitTimeoutUpdate(page))
			r.logger.Warn("no new items before timeout", "page", page+1, "count", len(items))
			return false, nil
		}
		if sleepErr := r.sleep(ctx, r.policy.PollInterval); sleepErr != nil {
			return false, sleepErr
		}
	}
}

// finish seals the result and moves the controller to done.
func (r *Reconciler) finish(result *RunResult, stopped bool) {
	r.controller.Stop()
	result.FinishedAt = time.Now()
	result.Stats = r.stats
	result.Failures = r.failures
	result.Stopped = stopped
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
