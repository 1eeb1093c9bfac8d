package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig  = fmt.Errorf("configuration not found")
	ErrInvalidConfig  = fmt.Errorf("invalid configuration")
	ErrMissingSession = fmt.Errorf("missing session headers")

	// Remote shelf errors
	ErrShelfUnavailable = fmt.Errorf("shelf unavailable")
	ErrItemNotFound     = fmt.Errorf("item not found")
	ErrDiscovery        = fmt.Errorf("no actuation handle for item")
	ErrVerifyTimeout    = fmt.Errorf("state change not observed")
	ErrRateLimited      = fmt.Errorf("rate limited")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Run lifecycle errors
	ErrRunActive  = fmt.Errorf("a run is already active")
	ErrRunStopped = fmt.Errorf("run stopped")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
