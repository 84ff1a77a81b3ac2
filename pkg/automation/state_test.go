package automation

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepActiveAndTerminal(t *testing.T) {
	tests := []struct {
		step     Step
		active   bool
		terminal bool
	}{
		{StepIdle, false, false},
		{StepLoggingIn, true, false},
		{StepNavigating, true, false},
		{StepScanning, true, false},
		{StepConnecting, true, false},
		{StepCompleted, false, true},
		{StepError, false, true},
	}

	for _, tc := range tests {
		t.Run(string(tc.step), func(t *testing.T) {
			assert.Equal(t, tc.active, tc.step.Active())
			assert.Equal(t, tc.terminal, tc.step.Terminal())
		})
	}
}

func TestIsRetryableClassification(t *testing.T) {
	retryable := []error{
		&TimeoutError{Op: "login verification", Budget: time.Second},
		&NavigationError{Target: "view", Reason: "container absent"},
		fmt.Errorf("wrapped: %w", &TimeoutError{Op: "wait", Budget: time.Second}),
	}
	for _, err := range retryable {
		assert.True(t, IsRetryable(err), "%v should be retryable", err)
	}

	fatal := []error{
		&AuthenticationError{Reason: "credentials rejected"},
		&ActionBlockedError{Signal: "warning banner"},
		&DriverError{Err: errors.New("session lost")},
		errors.New("anything else"),
	}
	for _, err := range fatal {
		assert.False(t, IsRetryable(err), "%v should be fatal", err)
	}
}

func TestIsSkip(t *testing.T) {
	assert.True(t, IsSkip(&ActionSkipped{CandidateID: "m1", Reason: "ineligible"}))
	assert.True(t, IsSkip(fmt.Errorf("action: %w", &ActionSkipped{CandidateID: "m1"})))
	assert.False(t, IsSkip(&ActionBlockedError{Signal: "banner"}))
	assert.False(t, IsSkip(nil))
}

func TestDriverErrorUnwrap(t *testing.T) {
	inner := errors.New("page crashed")
	err := &DriverError{Err: inner}
	assert.ErrorIs(t, err, inner)
}
