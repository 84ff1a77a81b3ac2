package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectrunner/connectrunner/pkg/browser"
)

func TestNavigateSucceedsOnLaterFallback(t *testing.T) {
	sel := DefaultSelectors()
	var tried []string
	driver := &browser.MockDriver{
		WaitForSelectorFunc: func(ctx context.Context, selector string, timeout time.Duration) error {
			tried = append(tried, selector)
			if selector == sel.Navigation.ContainerFallbacks[1] {
				return nil
			}
			return errors.New("not found")
		},
	}
	sc := newStepContext(driver)

	_, err := NavigateStep{}.Execute(context.Background(), sc)
	require.NoError(t, err)

	// Fallbacks are tried in priority order and stop at the first match.
	assert.Equal(t, sel.Navigation.ContainerFallbacks[:2], tried)
}

func TestNavigateExhaustedFallbacksIsRetryable(t *testing.T) {
	driver := &browser.MockDriver{
		WaitForSelectorFunc: func(ctx context.Context, selector string, timeout time.Duration) error {
			return errors.New("not found")
		},
	}
	sc := newStepContext(driver)

	_, err := NavigateStep{}.Execute(context.Background(), sc)

	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, navErr.Reason, "fallback locators")
}

func TestNavigateOpensTriggerWhenConfigured(t *testing.T) {
	driver := &browser.MockDriver{}
	sc := newStepContext(driver)
	sc.Selectors.Navigation.Trigger = "a.view-members"

	_, err := NavigateStep{}.Execute(context.Background(), sc)
	require.NoError(t, err)

	assert.Equal(t, []string{sc.Config.TargetURL}, driver.Navigations)
	assert.Equal(t, []string{"a.view-members"}, driver.Clicks)
}

func TestNavigateMissingTriggerIsNavigationError(t *testing.T) {
	driver := &browser.MockDriver{
		WaitForSelectorFunc: func(ctx context.Context, selector string, timeout time.Duration) error {
			return errors.New("not found")
		},
	}
	sc := newStepContext(driver)
	sc.Selectors.Navigation.Trigger = "a.view-members"

	_, err := NavigateStep{}.Execute(context.Background(), sc)

	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, "a.view-members", navErr.Target)
	assert.Empty(t, driver.Clicks)
}
