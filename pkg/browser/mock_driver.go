package browser

import (
	"context"
	"time"
)

// MockDriver is a scriptable Driver for testing. Every method delegates to
// the corresponding Func field when set; unset methods succeed with zero
// values so tests only script what they care about.
type MockDriver struct {
	NavigateFunc        func(ctx context.Context, url string) error
	WaitForSelectorFunc func(ctx context.Context, selector string, timeout time.Duration) error
	ClickFunc           func(ctx context.Context, selector string) error
	FillFunc            func(ctx context.Context, selector, value string) error
	IsVisibleFunc       func(ctx context.Context, selector string) (bool, error)
	EvaluateFunc        func(ctx context.Context, script string, arg interface{}) (interface{}, error)
	QueryCountFunc      func(ctx context.Context, selector string) (int, error)
	ScrollOffsetsFunc   func(ctx context.Context, selector string) (float64, float64, error)
	ScrollByFunc        func(ctx context.Context, selector string, pixels int) error
	CurrentURLFunc      func() string
	CloseFunc           func() error

	// Clicks records every selector passed to Click, in order
	Clicks []string

	// Navigations records every URL passed to Navigate, in order
	Navigations []string
}

// Navigate implements Driver
func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	m.Navigations = append(m.Navigations, url)
	if m.NavigateFunc != nil {
		return m.NavigateFunc(ctx, url)
	}
	return nil
}

// WaitForSelector implements Driver
func (m *MockDriver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if m.WaitForSelectorFunc != nil {
		return m.WaitForSelectorFunc(ctx, selector, timeout)
	}
	return nil
}

// Click implements Driver
func (m *MockDriver) Click(ctx context.Context, selector string) error {
	m.Clicks = append(m.Clicks, selector)
	if m.ClickFunc != nil {
		return m.ClickFunc(ctx, selector)
	}
	return nil
}

// Fill implements Driver
func (m *MockDriver) Fill(ctx context.Context, selector, value string) error {
	if m.FillFunc != nil {
		return m.FillFunc(ctx, selector, value)
	}
	return nil
}

// IsVisible implements Driver
func (m *MockDriver) IsVisible(ctx context.Context, selector string) (bool, error) {
	if m.IsVisibleFunc != nil {
		return m.IsVisibleFunc(ctx, selector)
	}
	return true, nil
}

// Evaluate implements Driver
func (m *MockDriver) Evaluate(ctx context.Context, script string, arg interface{}) (interface{}, error) {
	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, script, arg)
	}
	return nil, nil
}

// QueryCount implements Driver
func (m *MockDriver) QueryCount(ctx context.Context, selector string) (int, error) {
	if m.QueryCountFunc != nil {
		return m.QueryCountFunc(ctx, selector)
	}
	return 0, nil
}

// ScrollOffsets implements Driver
func (m *MockDriver) ScrollOffsets(ctx context.Context, selector string) (float64, float64, error) {
	if m.ScrollOffsetsFunc != nil {
		return m.ScrollOffsetsFunc(ctx, selector)
	}
	return 0, 0, nil
}

// ScrollBy implements Driver
func (m *MockDriver) ScrollBy(ctx context.Context, selector string, pixels int) error {
	if m.ScrollByFunc != nil {
		return m.ScrollByFunc(ctx, selector, pixels)
	}
	return nil
}

// CurrentURL implements Driver
func (m *MockDriver) CurrentURL() string {
	if m.CurrentURLFunc != nil {
		return m.CurrentURLFunc()
	}
	return "about:blank"
}

// Close implements Driver
func (m *MockDriver) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
