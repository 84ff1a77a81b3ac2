package automation

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyRunning is returned by Start while a run is in flight
var ErrAlreadyRunning = errors.New("automation run already in progress")

// AuthenticationError means the target site rejected the credentials.
// Fatal: retrying with the same credentials cannot succeed.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// NavigationError means an expected container or view never appeared.
// Retryable once, then fatal.
type NavigationError struct {
	Target string
	Reason string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %q failed: %s", e.Target, e.Reason)
}

// TimeoutError means an externally-timed operation exceeded its budget.
// Retryable.
type TimeoutError struct {
	Op     string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Budget)
}

// ActionSkipped means one candidate was skipped. Non-fatal: the connection
// loop continues with the next candidate.
type ActionSkipped struct {
	CandidateID string
	Reason      string
}

func (e *ActionSkipped) Error() string {
	return fmt.Sprintf("candidate %s skipped: %s", e.CandidateID, e.Reason)
}

// ActionBlockedError means the platform signaled automation detection.
// Fatal: continuing would make things worse.
type ActionBlockedError struct {
	Signal string
}

func (e *ActionBlockedError) Error() string {
	return fmt.Sprintf("action blocked by platform: %s", e.Signal)
}

// DriverError means the underlying browser session failed. Fatal for the
// current run.
type DriverError struct {
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("browser driver error: %v", e.Err)
}

// Unwrap returns the underlying driver failure
func (e *DriverError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the controller may re-invoke the failing
// step. Only transient timeouts and navigation misses qualify; everything
// else ends the run.
func IsRetryable(err error) bool {
	var te *TimeoutError
	var ne *NavigationError
	return errors.As(err, &te) || errors.As(err, &ne)
}

// IsSkip reports whether the error is a per-candidate skip
func IsSkip(err error) bool {
	var s *ActionSkipped
	return errors.As(err, &s)
}
