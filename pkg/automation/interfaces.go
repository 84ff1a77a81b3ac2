package automation

import (
	"context"
	"time"

	"github.com/connectrunner/connectrunner/pkg/browser"
	"github.com/connectrunner/connectrunner/pkg/config"
	"github.com/connectrunner/connectrunner/pkg/logging"
)

// StepContext carries the shared browser session and run configuration
// into step executors
type StepContext struct {
	// Driver is the browser session for this run
	Driver browser.Driver

	// Config is the automation configuration
	Config config.AutomationConfig

	// Selectors is the locator profile
	Selectors *SelectorProfile

	// Log is the shared log bus
	Log *logging.Bus

	// Credentials are the target-site login credentials
	Credentials Credentials
}

// StepTimeout returns the per-step wait budget
func (sc *StepContext) StepTimeout() time.Duration {
	if sc.Config.StepTimeoutMS <= 0 {
		return 15 * time.Second
	}
	return time.Duration(sc.Config.StepTimeoutMS) * time.Millisecond
}

// StepResult is what a step executor returns on success
type StepResult struct {
	// Candidates is the discovered candidate list; only the discovery
	// step populates it
	Candidates []Candidate
}

// StepExecutor wraps one externally-timed browser operation with its own
// verification policy. Executors are stateless between invocations.
type StepExecutor interface {
	// Name identifies the step in logs
	Name() string

	// Execute performs the step and returns a result or a typed failure
	Execute(ctx context.Context, sc *StepContext) (*StepResult, error)
}

// ConnectionExecutor performs the connection action for one candidate at
// a time; the controller owns pacing between invocations.
type ConnectionExecutor interface {
	// Name identifies the step in logs
	Name() string

	// Connect verifies eligibility, performs the action and verifies its
	// visible effect for a single candidate
	Connect(ctx context.Context, sc *StepContext, candidate Candidate) error
}

// sleep waits for d or until the context is canceled. A pending wait is
// interruptible, which keeps pacing and backoff delays cancellable.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
