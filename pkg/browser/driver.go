// Package browser provides the narrow browser capability the automation
// depends on, and a Playwright-backed implementation of it.
package browser

import (
	"context"
	"time"
)

// Driver is the capability interface the automation controller and step
// executors program against. The real driver and test fakes satisfy the
// same contract.
type Driver interface {
	// Navigate drives the page to the given URL
	Navigate(ctx context.Context, url string) error

	// WaitForSelector waits until an element matching the selector is
	// attached and visible, or the timeout elapses
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// Click clicks the first element matching the selector
	Click(ctx context.Context, selector string) error

	// Fill sets the value of the input matching the selector
	Fill(ctx context.Context, selector string, value string) error

	// IsVisible reports whether an element matching the selector is
	// currently visible
	IsVisible(ctx context.Context, selector string) (bool, error)

	// Evaluate runs a script in the page and returns its JSON-mapped result
	Evaluate(ctx context.Context, script string, arg interface{}) (interface{}, error)

	// QueryCount returns the number of elements matching the selector
	QueryCount(ctx context.Context, selector string) (int, error)

	// ScrollOffsets returns the scroll offset of the container matching the
	// selector and the outer page's vertical offset
	ScrollOffsets(ctx context.Context, selector string) (container float64, page float64, err error)

	// ScrollBy scrolls the container matching the selector down by the
	// given number of pixels
	ScrollBy(ctx context.Context, selector string, pixels int) error

	// CurrentURL returns the page's current URL
	CurrentURL() string

	// Close releases the underlying browser session
	Close() error
}

// Factory creates a Driver for one automation run
type Factory func(ctx context.Context) (Driver, error)
