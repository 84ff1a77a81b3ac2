package automation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/connectrunner/connectrunner/pkg/browser"
	"github.com/connectrunner/connectrunner/pkg/config"
	"github.com/connectrunner/connectrunner/pkg/logging"
	"github.com/connectrunner/connectrunner/pkg/storage"
)

// navigateAttempts is the navigation budget: retryable once, then fatal
const navigateAttempts = 2

// discoverAttempts is the discovery budget; rediscovery starts over
const discoverAttempts = 2

// Options configures a Controller. Bus and NewDriver are required; step
// fields override the default executors (used by tests).
type Options struct {
	// Config is the automation configuration
	Config config.AutomationConfig

	// Selectors is the locator profile; nil uses the defaults
	Selectors *SelectorProfile

	// Credentials are the target-site login credentials
	Credentials Credentials

	// Bus is the shared log bus
	Bus *logging.Bus

	// NewDriver creates the browser session for each run
	NewDriver browser.Factory

	// Archive optionally persists terminal run snapshots
	Archive storage.RunStore

	// Step executor overrides
	Login    StepExecutor
	Navigate StepExecutor
	Discover StepExecutor
	Connect  ConnectionExecutor
}

// Result is the outcome of a finished run
type Result struct {
	// RunID identifies the run
	RunID string

	// Success is true when the run reached the completed state
	Success bool

	// State is the terminal snapshot
	State State
}

type statusSub struct {
	id int
	fn func(State)
}

// Controller drives the automation workflow as a state machine. Exactly
// one run is in flight at a time; a second Start fails fast. All state
// mutation happens on the run's single execution path.
type Controller struct {
	mu     sync.RWMutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	subs   []statusSub
	nextID int

	cfg         config.AutomationConfig
	selectors   *SelectorProfile
	credentials Credentials
	bus         *logging.Bus
	newDriver   browser.Factory
	archive     storage.RunStore

	login    StepExecutor
	navigate StepExecutor
	discover StepExecutor
	connect  ConnectionExecutor
}

// NewController creates a controller owning its own automation state
func NewController(opts Options) *Controller {
	if opts.Bus == nil {
		opts.Bus = logging.NewBus(0)
	}
	if opts.Selectors == nil {
		opts.Selectors = DefaultSelectors()
	}
	if opts.Login == nil {
		opts.Login = LoginStep{}
	}
	if opts.Navigate == nil {
		opts.Navigate = NavigateStep{}
	}
	if opts.Discover == nil {
		opts.Discover = DiscoverStep{}
	}
	if opts.Connect == nil {
		opts.Connect = NewConnectStep()
	}

	return &Controller{
		state:       State{CurrentStep: StepIdle},
		cfg:         opts.Config,
		selectors:   opts.Selectors,
		credentials: opts.Credentials,
		bus:         opts.Bus,
		newDriver:   opts.NewDriver,
		archive:     opts.Archive,
		login:       opts.Login,
		navigate:    opts.Navigate,
		discover:    opts.Discover,
		connect:     opts.Connect,
	}
}

// Start begins a run and blocks until it reaches a terminal state. It
// fails with ErrAlreadyRunning while a run is in flight.
func (c *Controller) Start(ctx context.Context) (*Result, error) {
	runCtx, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	return c.run(runCtx), nil
}

// StartAsync begins a run and returns its ID immediately. Callers follow
// progress via OnStatusChange or Status.
func (c *Controller) StartAsync(ctx context.Context) (string, error) {
	runCtx, err := c.begin(ctx)
	if err != nil {
		return "", err
	}

	c.mu.RLock()
	runID := c.state.RunID
	c.mu.RUnlock()

	go c.run(runCtx)
	return runID, nil
}

// begin atomically claims the controller for a new run and performs the
// idle → logging_in transition.
func (c *Controller) begin(ctx context.Context) (context.Context, error) {
	c.mu.Lock()
	if c.state.IsRunning {
		c.mu.Unlock()
		return nil, ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	now := time.Now()
	c.state = State{
		RunID:       uuid.New().String(),
		CurrentStep: StepLoggingIn,
		IsRunning:   true,
		StartedAt:   &now,
	}
	snapshot := c.state
	subs := c.copySubs()
	c.mu.Unlock()

	c.notify(subs, snapshot)
	c.bus.Info("automation run started", map[string]interface{}{
		"run_id": snapshot.RunID,
	})
	return runCtx, nil
}

func (c *Controller) run(ctx context.Context) *Result {
	c.mu.RLock()
	done := c.done
	c.mu.RUnlock()
	defer close(done)

	driver, err := c.newDriver(ctx)
	if err != nil {
		return c.finish(&DriverError{Err: err})
	}
	defer driver.Close()

	sc := &StepContext{
		Driver:      driver,
		Config:      c.cfg,
		Selectors:   c.selectors,
		Log:         c.bus,
		Credentials: c.credentials,
	}

	if _, err := c.runStep(ctx, sc, c.login, c.retryBudget()); err != nil {
		return c.finish(err)
	}

	c.transition(StepNavigating)
	if _, err := c.runStep(ctx, sc, c.navigate, navigateAttempts); err != nil {
		return c.finish(err)
	}

	c.transition(StepScanning)
	res, err := c.runStep(ctx, sc, c.discover, discoverAttempts)
	if err != nil {
		return c.finish(err)
	}
	candidates := res.Candidates
	c.updateProgress(func(p *Progress) { p.CandidatesDiscovered = len(candidates) })

	c.transition(StepConnecting)
	if err := c.connectAll(ctx, sc, candidates); err != nil {
		return c.finish(err)
	}

	return c.finish(nil)
}

// connectAll drives the per-candidate connection loop with pacing between
// actions.
func (c *Controller) connectAll(ctx context.Context, sc *StepContext, candidates []Candidate) error {
	minDelay := time.Duration(c.cfg.MinActionDelayMS) * time.Millisecond

	acted := make(map[string]bool, len(candidates))
	sent := 0
	var lastAction time.Time

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.cfg.MaxConnections > 0 && sent >= c.cfg.MaxConnections {
			c.bus.Info("connection cap reached", map[string]interface{}{
				"max_connections": c.cfg.MaxConnections,
			})
			break
		}
		if acted[candidate.ID] {
			continue
		}
		acted[candidate.ID] = true

		// Pacing is anchored to the previous action, so consecutive
		// actions are never initiated less than the minimum delay apart
		// even when an action itself takes time. The wait is cancellable.
		if minDelay > 0 && !lastAction.IsZero() {
			if err := sleep(ctx, minDelay-time.Since(lastAction)); err != nil {
				return err
			}
		}

		c.updateProgress(func(p *Progress) { p.CandidatesEvaluated++ })

		err := c.connect.Connect(ctx, sc, candidate)
		lastAction = time.Now()
		if err != nil {
			var skip *ActionSkipped
			if errors.As(err, &skip) {
				c.bus.Warn("candidate skipped", map[string]interface{}{
					"step":      c.connect.Name(),
					"candidate": candidate.ID,
					"reason":    skip.Reason,
				})
				c.updateProgress(func(p *Progress) { p.Skipped++ })
				continue
			}
			c.bus.Error("connection action failed", err, map[string]interface{}{
				"step":      c.connect.Name(),
				"candidate": candidate.ID,
			})
			return err
		}

		sent++
		c.updateProgress(func(p *Progress) { p.ConnectionsSent++ })
		c.bus.Info("connection request sent", map[string]interface{}{
			"candidate": candidate.ID,
			"total":     sent,
		})
	}

	return nil
}

// runStep invokes a step executor, retrying retryable failures up to the
// budget with a linearly growing, cancellable backoff.
func (c *Controller) runStep(ctx context.Context, sc *StepContext, step StepExecutor, budget int) (*StepResult, error) {
	if budget < 1 {
		budget = 1
	}
	backoff := time.Duration(c.cfg.RetryBackoffMS) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= budget; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c.bus.Info("executing step", map[string]interface{}{
			"step":    step.Name(),
			"attempt": attempt,
		})

		res, err := step.Execute(ctx, sc)
		if err == nil {
			return res, nil
		}
		lastErr = err

		c.bus.Error("step failed", err, map[string]interface{}{
			"step":    step.Name(),
			"attempt": attempt,
		})

		if !IsRetryable(err) || attempt == budget {
			return nil, err
		}

		if err := sleep(ctx, time.Duration(attempt)*backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// finish moves the run to its terminal state, notifies subscribers,
// archives the summary and returns the result.
func (c *Controller) finish(runErr error) *Result {
	c.mu.Lock()
	if runErr != nil {
		c.state.CurrentStep = StepError
		if errors.Is(runErr, context.Canceled) {
			c.state.LastError = "run canceled by operator"
		} else {
			c.state.LastError = runErr.Error()
		}
	} else {
		c.state.CurrentStep = StepCompleted
	}
	c.state.IsRunning = false
	now := time.Now()
	c.state.FinishedAt = &now

	snapshot := c.state
	subs := c.copySubs()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.notify(subs, snapshot)

	if runErr != nil {
		c.bus.Error("automation run ended", runErr, map[string]interface{}{
			"run_id":           snapshot.RunID,
			"connections_sent": snapshot.Progress.ConnectionsSent,
		})
	} else {
		c.bus.Info("automation run completed", map[string]interface{}{
			"run_id":           snapshot.RunID,
			"connections_sent": snapshot.Progress.ConnectionsSent,
			"skipped":          snapshot.Progress.Skipped,
		})
	}

	c.archiveRun(snapshot)

	return &Result{
		RunID:   snapshot.RunID,
		Success: runErr == nil,
		State:   snapshot,
	}
}

func (c *Controller) archiveRun(snapshot State) {
	if c.archive == nil {
		return
	}

	summary := storage.RunSummary{
		ID:                   snapshot.RunID,
		Status:               string(snapshot.CurrentStep),
		LastError:            snapshot.LastError,
		CandidatesDiscovered: snapshot.Progress.CandidatesDiscovered,
		CandidatesEvaluated:  snapshot.Progress.CandidatesEvaluated,
		ConnectionsSent:      snapshot.Progress.ConnectionsSent,
		Skipped:              snapshot.Progress.Skipped,
	}
	if snapshot.StartedAt != nil {
		summary.StartedAt = *snapshot.StartedAt
	}
	if snapshot.FinishedAt != nil {
		summary.FinishedAt = *snapshot.FinishedAt
	}

	if err := c.archive.SaveRun(summary); err != nil {
		c.bus.Error("failed to archive run", err, map[string]interface{}{
			"run_id": snapshot.RunID,
		})
	}
}

// Stop requests cooperative cancellation of the in-flight run and waits
// for it to reach a terminal state. Stopping an idle controller is a
// no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.state.IsRunning {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	c.bus.Info("stop requested", nil)
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the current state snapshot
func (c *Controller) Status() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// OnStatusChange registers a subscriber invoked with a state snapshot
// after every transition. The returned function removes the registration;
// calling it more than once is a no-op.
func (c *Controller) OnStatusChange(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs = append(c.subs, statusSub{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, s := range c.subs {
				if s.id == id {
					c.subs = append(c.subs[:i], c.subs[i+1:]...)
					break
				}
			}
		})
	}
}

func (c *Controller) transition(step Step) {
	c.mu.Lock()
	c.state.CurrentStep = step
	c.state.IsRunning = step.Active()
	snapshot := c.state
	subs := c.copySubs()
	c.mu.Unlock()

	c.notify(subs, snapshot)
}

func (c *Controller) updateProgress(update func(*Progress)) {
	c.mu.Lock()
	update(&c.state.Progress)
	snapshot := c.state
	subs := c.copySubs()
	c.mu.Unlock()

	c.notify(subs, snapshot)
}

func (c *Controller) copySubs() []statusSub {
	subs := make([]statusSub, len(c.subs))
	copy(subs, c.subs)
	return subs
}

// notify delivers a snapshot to subscribers in registration order. A
// panicking subscriber is logged and never propagates to the controller.
func (c *Controller) notify(subs []statusSub, snapshot State) {
	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.bus.Error("status subscriber panicked", nil, map[string]interface{}{
						"panic": r,
					})
				}
			}()
			s.fn(snapshot)
		}()
	}
}

func (c *Controller) retryBudget() int {
	if c.cfg.MaxRetries <= 0 {
		return 3
	}
	return c.cfg.MaxRetries
}
