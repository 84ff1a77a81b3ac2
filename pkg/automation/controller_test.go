package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectrunner/connectrunner/pkg/browser"
	"github.com/connectrunner/connectrunner/pkg/config"
	"github.com/connectrunner/connectrunner/pkg/logging"
	"github.com/connectrunner/connectrunner/pkg/storage"
)

type stubStep struct {
	name string
	fn   func(ctx context.Context, sc *StepContext) (*StepResult, error)
}

func (s stubStep) Name() string { return s.name }

func (s stubStep) Execute(ctx context.Context, sc *StepContext) (*StepResult, error) {
	if s.fn == nil {
		return &StepResult{}, nil
	}
	return s.fn(ctx, sc)
}

type stubConnect struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, sc *StepContext, c Candidate) error
	calls []Candidate
	times []time.Time
}

func (s *stubConnect) Name() string { return "connect" }

func (s *stubConnect) Connect(ctx context.Context, sc *StepContext, c Candidate) error {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.times = append(s.times, time.Now())
	s.mu.Unlock()
	if s.fn == nil {
		return nil
	}
	return s.fn(ctx, sc, c)
}

func passStep(name string) stubStep {
	return stubStep{name: name}
}

func discoverStub(candidates []Candidate) stubStep {
	return stubStep{name: "discover", fn: func(ctx context.Context, sc *StepContext) (*StepResult, error) {
		return &StepResult{Candidates: candidates}, nil
	}}
}

func mockFactory(d browser.Driver) browser.Factory {
	return func(ctx context.Context) (browser.Driver, error) {
		return d, nil
	}
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Config: config.AutomationConfig{
			MaxRetries:     3,
			RetryBackoffMS: 1,
		},
		Bus:       logging.NewBus(200),
		NewDriver: mockFactory(&browser.MockDriver{}),
		Login:     passStep("login"),
		Navigate:  passStep("navigate"),
		Discover:  discoverStub(nil),
		Connect:   &stubConnect{},
	}
}

func candidateList(n int) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{
			ID:                string(rune('a' + i)),
			Index:             i + 1,
			MutualConnections: 10 + i,
		}
	}
	return out
}

func TestControllerHappyPathCounts(t *testing.T) {
	opts := testOptions(t)
	opts.Config.MinActionDelayMS = 20

	connect := &stubConnect{fn: func(ctx context.Context, sc *StepContext, c Candidate) error {
		// Two of the five candidates are ineligible.
		if c.ID == "b" || c.ID == "d" {
			return &ActionSkipped{CandidateID: c.ID, Reason: "below eligibility threshold"}
		}
		return nil
	}}
	opts.Connect = connect
	opts.Discover = discoverStub(candidateList(5))

	ctrl := NewController(opts)
	started := time.Now()
	res, err := ctrl.Start(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, StepCompleted, res.State.CurrentStep)
	assert.False(t, res.State.IsRunning)
	assert.Equal(t, 5, res.State.Progress.CandidatesDiscovered)
	assert.Equal(t, 5, res.State.Progress.CandidatesEvaluated)
	assert.Equal(t, 3, res.State.Progress.ConnectionsSent)
	assert.Equal(t, 2, res.State.Progress.Skipped)

	// Five paced invocations mean at least 2x the minimum delay elapsed.
	minDelay := 20 * time.Millisecond
	assert.GreaterOrEqual(t, time.Since(started), 2*minDelay)

	// Consecutive actions are never initiated closer than the pacing
	// interval.
	for i := 1; i < len(connect.times); i++ {
		gap := connect.times[i].Sub(connect.times[i-1])
		assert.GreaterOrEqual(t, gap, minDelay, "action %d initiated too soon", i)
	}
}

func TestPacingHoldsWhenActionsTakeTime(t *testing.T) {
	opts := testOptions(t)
	opts.Config.MinActionDelayMS = 50
	opts.Discover = discoverStub(candidateList(3))

	// Each action consumes a good part of the pacing interval; the gap
	// between consecutive action starts must still never dip below it.
	connect := &stubConnect{fn: func(ctx context.Context, sc *StepContext, c Candidate) error {
		time.Sleep(30 * time.Millisecond)
		return nil
	}}
	opts.Connect = connect

	ctrl := NewController(opts)
	res, err := ctrl.Start(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, connect.times, 3)

	minDelay := 50 * time.Millisecond
	for i := 1; i < len(connect.times); i++ {
		gap := connect.times[i].Sub(connect.times[i-1])
		assert.GreaterOrEqual(t, gap, minDelay, "action %d initiated too soon", i)
	}
}

func TestStartWhileRunningFails(t *testing.T) {
	opts := testOptions(t)

	release := make(chan struct{})
	opts.Login = stubStep{name: "login", fn: func(ctx context.Context, sc *StepContext) (*StepResult, error) {
		select {
		case <-release:
			return &StepResult{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}

	ctrl := NewController(opts)
	runID, err := ctrl.StartAsync(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	_, err = ctrl.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// The rejected start must leave the in-flight run untouched.
	st := ctrl.Status()
	assert.Equal(t, runID, st.RunID)
	assert.True(t, st.IsRunning)

	close(release)
	ctrl.Stop()
	assert.False(t, ctrl.Status().IsRunning)
}

func TestStopMidStepResolvesToTerminalState(t *testing.T) {
	opts := testOptions(t)
	opts.Login = stubStep{name: "login", fn: func(ctx context.Context, sc *StepContext) (*StepResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	ctrl := NewController(opts)
	_, err := ctrl.StartAsync(context.Background())
	require.NoError(t, err)

	ctrl.Stop()

	st := ctrl.Status()
	assert.False(t, st.IsRunning)
	assert.True(t, st.CurrentStep.Terminal())
	assert.Equal(t, "run canceled by operator", st.LastError)

	// Stopping again is a no-op.
	ctrl.Stop()
}

func TestStopInterruptsPacingDelay(t *testing.T) {
	opts := testOptions(t)
	opts.Config.MinActionDelayMS = int((10 * time.Second).Milliseconds())
	opts.Discover = discoverStub(candidateList(3))
	connect := &stubConnect{}
	opts.Connect = connect

	ctrl := NewController(opts)
	_, err := ctrl.StartAsync(context.Background())
	require.NoError(t, err)

	// Let the first action go through, then cancel during the pending
	// pacing delay.
	require.Eventually(t, func() bool {
		connect.mu.Lock()
		defer connect.mu.Unlock()
		return len(connect.calls) == 1
	}, 2*time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		ctrl.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not interrupt the pacing delay")
	}

	st := ctrl.Status()
	assert.False(t, st.IsRunning)
	assert.Equal(t, 1, st.Progress.ConnectionsSent, "partial progress preserved")
	// The second candidate was never examined; canceling inside its
	// pacing delay must not count it as evaluated.
	assert.Equal(t, 1, st.Progress.CandidatesEvaluated)
}

func TestRunningInvariantAcrossTransitions(t *testing.T) {
	opts := testOptions(t)
	opts.Discover = discoverStub(candidateList(2))

	ctrl := NewController(opts)

	var mu sync.Mutex
	var snapshots []State
	ctrl.OnStatusChange(func(s State) {
		mu.Lock()
		snapshots = append(snapshots, s)
		mu.Unlock()
	})

	_, err := ctrl.Start(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snapshots)
	for _, s := range snapshots {
		assert.Equal(t, s.CurrentStep.Active(), s.IsRunning,
			"isRunning must match step %s", s.CurrentStep)
	}
	assert.Equal(t, StepCompleted, snapshots[len(snapshots)-1].CurrentStep)
}

func TestLoginRetriedOnTimeoutThenSucceeds(t *testing.T) {
	opts := testOptions(t)

	attempts := 0
	opts.Login = stubStep{name: "login", fn: func(ctx context.Context, sc *StepContext) (*StepResult, error) {
		attempts++
		if attempts < 3 {
			return nil, &TimeoutError{Op: "login verification", Budget: time.Second}
		}
		return &StepResult{}, nil
	}}

	var steps []Step
	ctrl := NewController(opts)
	ctrl.OnStatusChange(func(s State) { steps = append(steps, s.CurrentStep) })

	res, err := ctrl.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, attempts)

	// The run proceeded past login after the third attempt.
	assert.Contains(t, steps, StepNavigating)

	// The log records each login attempt with its attempt number.
	var loginAttempts []int
	for _, e := range opts.Bus.Snapshot("", 0) {
		if e.Message == "executing step" && e.Fields["step"] == "login" {
			loginAttempts = append(loginAttempts, e.Fields["attempt"].(int))
		}
	}
	assert.Equal(t, []int{1, 2, 3}, loginAttempts)
}

func TestNavigationRetryableOnceThenFatal(t *testing.T) {
	opts := testOptions(t)

	attempts := 0
	opts.Navigate = stubStep{name: "navigate", fn: func(ctx context.Context, sc *StepContext) (*StepResult, error) {
		attempts++
		return nil, &NavigationError{Target: "view", Reason: "container absent"}
	}}

	ctrl := NewController(opts)
	res, err := ctrl.Start(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, 2, attempts, "navigation is retried exactly once")
	assert.Equal(t, StepError, res.State.CurrentStep)
	assert.NotEmpty(t, res.State.LastError)
	assert.Equal(t, 0, res.State.Progress.ConnectionsSent)
}

func TestAuthenticationFailureIsFatalImmediately(t *testing.T) {
	opts := testOptions(t)

	attempts := 0
	opts.Login = stubStep{name: "login", fn: func(ctx context.Context, sc *StepContext) (*StepResult, error) {
		attempts++
		return nil, &AuthenticationError{Reason: "credentials rejected"}
	}}

	ctrl := NewController(opts)
	res, err := ctrl.Start(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, 1, attempts, "fatal failures are not retried")
	assert.Equal(t, StepError, res.State.CurrentStep)
	assert.Contains(t, res.State.LastError, "authentication failed")
}

func TestBlockedActionEndsRunButKeepsProgress(t *testing.T) {
	opts := testOptions(t)
	opts.Discover = discoverStub(candidateList(4))
	opts.Connect = &stubConnect{fn: func(ctx context.Context, sc *StepContext, c Candidate) error {
		if c.ID == "c" {
			return &ActionBlockedError{Signal: "warning banner"}
		}
		return nil
	}}

	ctrl := NewController(opts)
	res, err := ctrl.Start(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, StepError, res.State.CurrentStep)
	assert.Equal(t, 2, res.State.Progress.ConnectionsSent)
}

func TestNoCandidateActedOnTwice(t *testing.T) {
	opts := testOptions(t)
	// The discovery stub bypasses the executor's own dedup, so the
	// controller must not act twice on the repeated ID.
	opts.Discover = discoverStub([]Candidate{
		{ID: "x", Index: 1},
		{ID: "y", Index: 2},
		{ID: "x", Index: 3},
	})
	connect := &stubConnect{}
	opts.Connect = connect

	ctrl := NewController(opts)
	res, err := ctrl.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)

	seen := map[string]int{}
	for _, c := range connect.calls {
		seen[c.ID]++
	}
	assert.Equal(t, map[string]int{"x": 1, "y": 1}, seen)
}

func TestMaxConnectionsCap(t *testing.T) {
	opts := testOptions(t)
	opts.Config.MaxConnections = 2
	opts.Discover = discoverStub(candidateList(5))
	connect := &stubConnect{}
	opts.Connect = connect

	ctrl := NewController(opts)
	res, err := ctrl.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.State.Progress.ConnectionsSent)
	assert.Len(t, connect.calls, 2)
}

func TestDriverFactoryFailureIsFatal(t *testing.T) {
	opts := testOptions(t)
	opts.NewDriver = func(ctx context.Context) (browser.Driver, error) {
		return nil, errors.New("chromium crashed on launch")
	}

	ctrl := NewController(opts)
	res, err := ctrl.Start(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, StepError, res.State.CurrentStep)
	assert.Contains(t, res.State.LastError, "browser driver error")
}

func TestStatusSubscriberPanicIsolated(t *testing.T) {
	opts := testOptions(t)
	ctrl := NewController(opts)

	var received int
	ctrl.OnStatusChange(func(State) { panic("bad subscriber") })
	ctrl.OnStatusChange(func(State) { received++ })

	res, err := ctrl.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Greater(t, received, 0)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	opts := testOptions(t)
	ctrl := NewController(opts)

	var received int
	unsubscribe := ctrl.OnStatusChange(func(State) { received++ })
	unsubscribe()
	unsubscribe() // no-op

	_, err := ctrl.Start(context.Background())
	require.NoError(t, err)
	assert.Zero(t, received)
}

func TestTerminalRunIsArchived(t *testing.T) {
	opts := testOptions(t)
	store := storage.NewMemoryProvider()
	opts.Archive = store
	opts.Discover = discoverStub(candidateList(2))

	ctrl := NewController(opts)
	res, err := ctrl.Start(context.Background())
	require.NoError(t, err)

	archived, err := store.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "completed", archived.Status)
	assert.Equal(t, 2, archived.ConnectionsSent)
	assert.False(t, archived.StartedAt.IsZero())
}

func TestControllerCanRunAgainAfterTerminalState(t *testing.T) {
	opts := testOptions(t)
	ctrl := NewController(opts)

	first, err := ctrl.Start(context.Background())
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := ctrl.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.NotEqual(t, first.RunID, second.RunID)
}
