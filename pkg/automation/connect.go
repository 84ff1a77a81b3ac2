package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/connectrunner/connectrunner/pkg/scripting"
)

// connectVerifyTimeout bounds the wait for the sent-state marker
const connectVerifyTimeout = 5 * time.Second

// ConnectStep performs the connection action for a single candidate:
// eligibility check, click, detection check, and verification that the
// action took visible effect.
type ConnectStep struct {
	evaluator *scripting.Evaluator
}

// NewConnectStep creates a connection executor with its own expression
// evaluator.
func NewConnectStep() *ConnectStep {
	return &ConnectStep{evaluator: scripting.NewEvaluator()}
}

// Name identifies the step in logs
func (s *ConnectStep) Name() string { return "connect" }

// Connect acts on one candidate. Ineligible or unverifiable candidates are
// skipped without failing the run; a platform detection signal is fatal.
func (s *ConnectStep) Connect(ctx context.Context, sc *StepContext, candidate Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if expr := sc.Config.Eligibility; expr != "" {
		eligible, err := s.evaluator.EvaluateBool(expr, map[string]interface{}{
			"candidate": map[string]interface{}{
				"id":                candidate.ID,
				"name":              candidate.Name,
				"mutualConnections": candidate.MutualConnections,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to evaluate eligibility expression: %w", err)
		}
		if !eligible {
			return &ActionSkipped{CandidateID: candidate.ID, Reason: "below eligibility threshold"}
		}
	}

	visible, err := sc.Driver.IsVisible(ctx, candidate.ConnectSelector)
	if err != nil {
		return &DriverError{Err: fmt.Errorf("failed to check connect button: %w", err)}
	}
	if !visible {
		return &ActionSkipped{CandidateID: candidate.ID, Reason: "connect button not present"}
	}

	if err := sc.Driver.Click(ctx, candidate.ConnectSelector); err != nil {
		return &DriverError{Err: fmt.Errorf("failed to click connect button: %w", err)}
	}

	if banner := sc.Selectors.Connect.BlockedBanner; banner != "" {
		if blocked, err := sc.Driver.IsVisible(ctx, banner); err == nil && blocked {
			return &ActionBlockedError{Signal: "automation warning banner visible"}
		}
	}

	marker := fmt.Sprintf(sc.Selectors.Connect.SentMarkerTemplate, candidate.Index)
	if err := sc.Driver.WaitForSelector(ctx, marker, connectVerifyTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ActionSkipped{CandidateID: candidate.ID, Reason: "request not confirmed by page"}
	}

	return nil
}
