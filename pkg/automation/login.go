package automation

import (
	"context"
	"fmt"
)

// LoginStep submits credentials and verifies authentication by waiting for
// a post-login page marker.
type LoginStep struct{}

// Name identifies the step in logs
func (LoginStep) Name() string { return "login" }

// Execute performs the login flow. Rejected credentials are fatal; a
// marker that never appears within budget is a retryable timeout.
func (s LoginStep) Execute(ctx context.Context, sc *StepContext) (*StepResult, error) {
	if sc.Credentials.Email == "" || sc.Credentials.Password == "" {
		return nil, &AuthenticationError{Reason: "credentials not configured"}
	}

	sel := sc.Selectors.Login
	loginURL := sel.URL
	if loginURL == "" {
		loginURL = sc.Config.TargetURL
	}

	if err := sc.Driver.Navigate(ctx, loginURL); err != nil {
		return nil, &DriverError{Err: fmt.Errorf("failed to open login page: %w", err)}
	}

	// A persistent profile may still hold a valid session.
	if visible, err := sc.Driver.IsVisible(ctx, sel.Marker); err == nil && visible {
		sc.Log.Info("already authenticated, skipping login form", nil)
		return &StepResult{}, nil
	}

	if err := sc.Driver.Fill(ctx, sel.Email, sc.Credentials.Email); err != nil {
		return nil, &DriverError{Err: fmt.Errorf("failed to fill email field: %w", err)}
	}
	if err := sc.Driver.Fill(ctx, sel.Password, sc.Credentials.Password); err != nil {
		return nil, &DriverError{Err: fmt.Errorf("failed to fill password field: %w", err)}
	}
	if err := sc.Driver.Click(ctx, sel.Submit); err != nil {
		return nil, &DriverError{Err: fmt.Errorf("failed to submit login form: %w", err)}
	}

	timeout := sc.StepTimeout()
	if err := sc.Driver.WaitForSelector(ctx, sel.Marker, timeout); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Distinguish rejected credentials from a slow page.
		if sel.ErrorBanner != "" {
			if visible, verr := sc.Driver.IsVisible(ctx, sel.ErrorBanner); verr == nil && visible {
				return nil, &AuthenticationError{Reason: "credentials rejected"}
			}
		}
		return nil, &TimeoutError{Op: "login verification", Budget: timeout}
	}

	return &StepResult{}, nil
}
