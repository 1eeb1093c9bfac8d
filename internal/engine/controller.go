package engine

import (
	"context"
	"sync"

	"github.com/tidalhook/shelfctl/internal/shared"
)

// RunState is the lifecycle state of a reconciliation run.
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StatePaused
	StateDone
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateDone:
		return "done"
	default:
		return ""
	}
}

// Controller is the cooperative scheduler for a single run.
//
// The engine calls [Controller.Gate] before starting each unit of work (a page
// cycle or a batch), never mid-unit. Pausing therefore lets in-flight
// actuations finish, and stopping is observed at the next gate. The control
// methods are safe to call from any goroutine; invalid transitions are no-ops.
type Controller struct {
	mu      sync.Mutex
	state   RunState
	resumed chan struct{} // closed on resume or stop, recreated on pause
}

// NewController creates a controller in the idle state.
func NewController() *Controller {
	return &Controller{resumed: make(chan struct{})}
}

// State returns the current run state.
func (c *Controller) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start moves idle → running. Any other starting state is an error, which
// keeps a controller (and therefore a run) single-use.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return shared.ErrRunActive
	}
	c.state = StateRunning
	return nil
}

// Pause moves running → paused; future Gate calls block until Resume or Stop.
// A no-op in any other state.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return
	}
	c.state = StatePaused
	c.resumed = make(chan struct{})
}

// Resume moves paused → running and releases every caller blocked in Gate.
// A no-op in any other state.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePaused {
		return
	}
	c.state = StateRunning
	close(c.resumed)
}

// Stop moves any state to done and releases blocked Gate callers, so a stop
// during a pause cannot deadlock.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDone {
		return
	}
	wasPaused := c.state == StatePaused
	c.state = StateDone
	if wasPaused {
		close(c.resumed)
	}
}

// Gate is the suspension point consulted between units of work. It returns
// nil while running, blocks while paused, and returns [shared.ErrRunStopped]
// once the run is done. Context cancellation unblocks a paused caller.
func (c *Controller) Gate(ctx context.Context) error {
	for {
		c.mu.Lock()
		switch c.state {
		case StateDone:
			c.mu.Unlock()
			return shared.ErrRunStopped
		case StatePaused:
			wait := c.resumed
			c.mu.Unlock()
			select {
			case <-wait:
				// re-check: a stop also closes the channel
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			c.mu.Unlock()
			return nil
		}
	}
}
