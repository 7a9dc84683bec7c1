package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver launches Chromium persistent contexts through Playwright.
type PlaywrightDriver struct {
	mu          sync.Mutex
	playwright  *playwright.Playwright
	install     bool
	initialized bool
}

// NewPlaywrightDriver creates a driver. When install is true the Playwright
// driver and Chromium are downloaded on first use if missing.
func NewPlaywrightDriver(install bool) *PlaywrightDriver {
	return &PlaywrightDriver{install: install}
}

// initialize starts the Playwright instance once.
func (d *PlaywrightDriver) initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if d.install {
		if err := playwright.Install(opts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	d.playwright = pw
	d.initialized = true
	return nil
}

// Launch starts a persistent Chromium context bound to profileDir.
func (d *PlaywrightDriver) Launch(ctx context.Context, profileDir string, opts LaunchOptions) (Context, Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := d.initialize(); err != nil {
		return nil, nil, err
	}

	if opts.Viewport == nil {
		opts.Viewport = &Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	launchOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(opts.Headless),
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
		Args: []string{"--disable-blink-features=AutomationControlled"},
	}
	if opts.Locale != "" {
		launchOpts.Locale = playwright.String(opts.Locale)
	}
	if opts.SlowMo > 0 {
		launchOpts.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}

	bctx, err := d.playwright.Chromium.LaunchPersistentContext(profileDir, launchOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	bctx.SetDefaultTimeout(millis(opts.Timeout))

	// A persistent context opens with one blank page already.
	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = bctx.NewPage()
		if err != nil {
			_ = bctx.Close()
			return nil, nil, fmt.Errorf("failed to create page: %w", err)
		}
	}

	return &pwContext{ctx: bctx}, &pwPage{page: page}, nil
}

// Close stops Playwright.
func (d *PlaywrightDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized && d.playwright != nil {
		if err := d.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		d.initialized = false
	}
	return nil
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) Close() error {
	return c.ctx.Close()
}

// Browser is nil: closing a persistent context stops its browser process.
func (c *pwContext) Browser() Closer {
	return nil
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(url string, timeout time.Duration) error {
	opts := playwright.PageGotoOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	if _, err := p.page.Goto(url, opts); err != nil {
		return wrapErr("navigation failed", err)
	}
	return nil
}

func (p *pwPage) URL() string    { return p.page.URL() }
func (p *pwPage) IsClosed() bool { return p.page.IsClosed() }
func (p *pwPage) Close() error   { return p.page.Close() }

func (p *pwPage) Locator(selector string) Locator {
	return &pwLocator{loc: p.page.Locator(selector)}
}

func (p *pwPage) Screenshot(quality int) ([]byte, error) {
	b, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Type:    playwright.ScreenshotTypeJpeg,
		Quality: playwright.Int(quality),
	})
	if err != nil {
		return nil, wrapErr("screenshot failed", err)
	}
	return b, nil
}

func (p *pwPage) WaitForLoadState(state LoadState, timeout time.Duration) error {
	ls := playwright.LoadState(state)
	opts := playwright.PageWaitForLoadStateOptions{State: &ls}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	return wrapErr("wait for load state", p.page.WaitForLoadState(opts))
}

type pwLocator struct {
	loc playwright.Locator
}

func (l *pwLocator) IsVisible(timeout time.Duration) bool {
	if timeout <= 0 {
		visible, err := l.loc.First().IsVisible()
		return err == nil && visible
	}
	return l.WaitFor(StateVisible, timeout) == nil
}

func (l *pwLocator) Click(timeout time.Duration) error {
	opts := playwright.LocatorClickOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	return wrapErr("click failed", l.loc.First().Click(opts))
}

func (l *pwLocator) Fill(value string, timeout time.Duration) error {
	opts := playwright.LocatorFillOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	return wrapErr("fill failed", l.loc.First().Fill(value, opts))
}

func (l *pwLocator) TextContent(timeout time.Duration) (string, error) {
	opts := playwright.LocatorTextContentOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	text, err := l.loc.First().TextContent(opts)
	return text, wrapErr("text extraction failed", err)
}

func (l *pwLocator) InnerHTML(timeout time.Duration) (string, error) {
	opts := playwright.LocatorInnerHTMLOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	html, err := l.loc.First().InnerHTML(opts)
	return html, wrapErr("html extraction failed", err)
}

func (l *pwLocator) GetAttribute(name string, timeout time.Duration) (string, error) {
	opts := playwright.LocatorGetAttributeOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	v, err := l.loc.First().GetAttribute(name, opts)
	return v, wrapErr("attribute read failed", err)
}

func (l *pwLocator) WaitFor(state State, timeout time.Duration) error {
	st := playwright.WaitForSelectorState(state)
	opts := playwright.LocatorWaitForOptions{State: &st}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	return wrapErr("wait failed", l.loc.First().WaitFor(opts))
}

func (l *pwLocator) SelectOption(label string, timeout time.Duration) error {
	opts := playwright.LocatorSelectOptionOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	labels := []string{label}
	_, err := l.loc.First().SelectOption(playwright.SelectOptionValues{Labels: &labels}, opts)
	return wrapErr("select option failed", err)
}

func (l *pwLocator) Count() (int, error) {
	n, err := l.loc.Count()
	return n, wrapErr("count failed", err)
}

func (l *pwLocator) Nth(i int) Locator {
	return &pwLocator{loc: l.loc.Nth(i)}
}

func (l *pwLocator) Locator(selector string) Locator {
	return &pwLocator{loc: l.loc.Locator(selector)}
}

func millis(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

// wrapErr maps Playwright's target-closed error onto ErrPageClosed so callers
// can detect a dead session with errors.Is.
func wrapErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return fmt.Errorf("%s: %w: %v", msg, ErrPageClosed, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
