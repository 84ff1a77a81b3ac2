package automation

import (
	"context"
	"fmt"
	"time"
)

// NavigateStep drives to the target view and verifies the expected list
// container is present, trying a prioritized list of fallback locators.
type NavigateStep struct{}

// Name identifies the step in logs
func (NavigateStep) Name() string { return "navigate" }

// Execute navigates to the target URL, optionally opens the list modal,
// and confirms one of the container fallbacks is visible.
func (s NavigateStep) Execute(ctx context.Context, sc *StepContext) (*StepResult, error) {
	if err := sc.Driver.Navigate(ctx, sc.Config.TargetURL); err != nil {
		return nil, &DriverError{Err: fmt.Errorf("failed to open target view: %w", err)}
	}

	sel := sc.Selectors.Navigation

	if sel.Trigger != "" {
		timeout := sc.StepTimeout()
		if err := sc.Driver.WaitForSelector(ctx, sel.Trigger, timeout); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &NavigationError{Target: sel.Trigger, Reason: "list trigger never appeared"}
		}
		if err := sc.Driver.Click(ctx, sel.Trigger); err != nil {
			return nil, &DriverError{Err: fmt.Errorf("failed to open list container: %w", err)}
		}
	}

	fallbacks := sel.ContainerFallbacks
	if len(fallbacks) == 0 {
		fallbacks = []string{sc.Selectors.List.Container}
	}

	// Split the step budget across the fallbacks so the prioritized list
	// is exhausted within one step timeout.
	perLocator := sc.StepTimeout() / time.Duration(len(fallbacks))
	if perLocator < time.Second {
		perLocator = time.Second
	}

	for _, locator := range fallbacks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := sc.Driver.WaitForSelector(ctx, locator, perLocator); err == nil {
			sc.Log.Debug("list container located", map[string]interface{}{
				"locator": locator,
			})
			return &StepResult{}, nil
		}
	}

	return nil, &NavigationError{
		Target: sc.Config.TargetURL,
		Reason: fmt.Sprintf("container absent after %d fallback locators", len(fallbacks)),
	}
}
