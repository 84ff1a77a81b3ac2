package browser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Options configures a Playwright driver launch
type Options struct {
	// Headless indicates whether the browser runs without a window
	Headless bool

	// ViewportWidth is the page viewport width in pixels
	ViewportWidth int

	// ViewportHeight is the page viewport height in pixels
	ViewportHeight int

	// Timeout is the default per-operation timeout
	Timeout time.Duration

	// UserDataDir is the persistent profile directory; empty launches an
	// ephemeral context
	UserDataDir string
}

// PlaywrightDriver implements Driver on top of playwright-go
type PlaywrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

// Launch installs Playwright if needed, starts a browser and returns a
// driver bound to a single page.
func Launch(opts Options) (*PlaywrightDriver, error) {
	if opts.ViewportWidth == 0 {
		opts.ViewportWidth = 1280
	}
	if opts.ViewportHeight == 0 {
		opts.ViewportHeight = 800
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	d := &PlaywrightDriver{pw: pw}

	viewport := &playwright.Size{
		Width:  opts.ViewportWidth,
		Height: opts.ViewportHeight,
	}

	if opts.UserDataDir != "" {
		// A persistent context keeps cookies and login state between runs.
		bctx, err := pw.Chromium.LaunchPersistentContext(opts.UserDataDir,
			playwright.BrowserTypeLaunchPersistentContextOptions{
				Headless: playwright.Bool(opts.Headless),
				Viewport: viewport,
			})
		if err != nil {
			pw.Stop()
			return nil, fmt.Errorf("failed to launch persistent context: %w", err)
		}
		d.context = bctx
	} else {
		b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(opts.Headless),
		})
		if err != nil {
			pw.Stop()
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		d.browser = b

		bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
			Viewport: viewport,
		})
		if err != nil {
			b.Close()
			pw.Stop()
			return nil, fmt.Errorf("failed to create context: %w", err)
		}
		d.context = bctx
	}

	pages := d.context.Pages()
	if len(pages) > 0 {
		d.page = pages[0]
	} else {
		page, err := d.context.NewPage()
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
		d.page = page
	}

	d.page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))
	return d, nil
}

// Navigate drives the page to the given URL
func (d *PlaywrightDriver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// WaitForSelector waits until an element matching the selector is visible
func (d *PlaywrightDriver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := d.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("wait for %q failed: %w", selector, err)
	}
	return nil
}

// Click clicks the first element matching the selector
func (d *PlaywrightDriver) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := d.page.Click(selector); err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	return nil
}

// Fill sets the value of the input matching the selector
func (d *PlaywrightDriver) Fill(ctx context.Context, selector string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := d.page.Fill(selector, value); err != nil {
		return fmt.Errorf("fill on %q failed: %w", selector, err)
	}
	return nil
}

// IsVisible reports whether an element matching the selector is visible
func (d *PlaywrightDriver) IsVisible(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	visible, err := d.page.IsVisible(selector)
	if err != nil {
		return false, fmt.Errorf("visibility check on %q failed: %w", selector, err)
	}
	return visible, nil
}

// Evaluate runs a script in the page
func (d *PlaywrightDriver) Evaluate(ctx context.Context, script string, arg interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		result interface{}
		err    error
	)
	if arg != nil {
		result, err = d.page.Evaluate(script, arg)
	} else {
		result, err = d.page.Evaluate(script)
	}
	if err != nil {
		return nil, fmt.Errorf("page evaluation failed: %w", err)
	}
	return result, nil
}

// QueryCount returns the number of elements matching the selector
func (d *PlaywrightDriver) QueryCount(ctx context.Context, selector string) (int, error) {
	result, err := d.Evaluate(ctx, "(sel) => document.querySelectorAll(sel).length", selector)
	if err != nil {
		return 0, err
	}

	switch n := result.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected count result %T", result)
	}
}

const scrollOffsetsScript = `(sel) => {
	const el = document.querySelector(sel);
	const page = window.pageYOffset || document.documentElement.scrollTop || 0;
	return [el ? el.scrollTop : -1, page];
}`

// ScrollOffsets returns the container's scrollTop and the outer page offset
func (d *PlaywrightDriver) ScrollOffsets(ctx context.Context, selector string) (float64, float64, error) {
	result, err := d.Evaluate(ctx, scrollOffsetsScript, selector)
	if err != nil {
		return 0, 0, err
	}

	pair, ok := result.([]interface{})
	if !ok || len(pair) != 2 {
		return 0, 0, fmt.Errorf("unexpected offsets result %T", result)
	}

	container, ok1 := toFloat(pair[0])
	page, ok2 := toFloat(pair[1])
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("non-numeric offsets %v", pair)
	}
	if container < 0 {
		return 0, 0, fmt.Errorf("scroll container %q not found", selector)
	}
	return container, page, nil
}

const scrollByScript = `(args) => {
	const el = document.querySelector(args.sel);
	if (!el) {
		throw new Error("scroll container not found: " + args.sel);
	}
	el.scrollTop = el.scrollTop + args.px;
}`

// ScrollBy scrolls the container down by the given number of pixels
func (d *PlaywrightDriver) ScrollBy(ctx context.Context, selector string, pixels int) error {
	_, err := d.Evaluate(ctx, scrollByScript, map[string]interface{}{
		"sel": selector,
		"px":  pixels,
	})
	return err
}

// CurrentURL returns the page's current URL
func (d *PlaywrightDriver) CurrentURL() string {
	return d.page.URL()
}

// Close releases the page, context, browser and Playwright process
func (d *PlaywrightDriver) Close() error {
	if d.page != nil {
		_ = d.page.Close() // Ignore errors, continue cleanup
	}
	if d.context != nil {
		_ = d.context.Close()
	}
	if d.browser != nil {
		_ = d.browser.Close()
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
