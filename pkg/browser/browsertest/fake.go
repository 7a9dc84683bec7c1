// Package browsertest provides in-memory fakes of the browser interfaces.
//
// A FakePage holds elements keyed by the exact selector the code under test
// will ask for. Scoped lookups are keyed the way Playwright chains selectors:
//
//	page.Locator(".question").Nth(2).Locator(".btn")  ->  ".question >> nth=2 >> .btn"
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/orthoforge/pkg/browser"
)

// ErrTimeout mimics a driver timeout when an element never shows up.
var ErrTimeout = errors.New("browsertest: timeout waiting for element")

// Element is one fake DOM element.
type Element struct {
	Visible bool
	Text    string
	HTML    string
	Attrs   map[string]string

	// Labels lists the options of a <select>; Selected records the choice.
	Labels   []string
	Selected string

	ClickErr    error
	HideOnClick bool
	OnClick     func(p *FakePage)

	clicks atomic.Int32
}

// Clicks reports how many times the element was clicked.
func (e *Element) Clicks() int { return int(e.clicks.Load()) }

// FakePage is an in-memory browser.Page.
type FakePage struct {
	mu            sync.Mutex
	url           string
	closed        bool
	elements      map[string][]*Element
	clicked       []string
	filled        map[string]string
	ScreenshotErr error
	Screenshots   int
	LoadStateErr  error
}

// NewPage returns an empty open page.
func NewPage() *FakePage {
	return &FakePage{
		url:      "about:blank",
		elements: make(map[string][]*Element),
		filled:   make(map[string]string),
	}
}

// Set registers elements for a selector and returns the first one.
func (p *FakePage) Set(selector string, els ...*Element) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[selector] = els
	if len(els) == 0 {
		return nil
	}
	return els[0]
}

// Remove deletes the elements of a selector.
func (p *FakePage) Remove(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, selector)
}

// Clicked returns the selectors clicked so far, in order.
func (p *FakePage) Clicked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicked...)
}

// Filled returns the value typed into selector.
func (p *FakePage) Filled(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filled[selector]
}

// SetURL changes the current URL.
func (p *FakePage) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

func (p *FakePage) Goto(url string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return browser.ErrPageClosed
	}
	p.url = url
	return nil
}

func (p *FakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *FakePage) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *FakePage) Locator(selector string) browser.Locator {
	return &FakeLocator{page: p, key: selector}
}

func (p *FakePage) Screenshot(_ int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, browser.ErrPageClosed
	}
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	p.Screenshots++
	return []byte{0xff, 0xd8, 0xff}, nil
}

func (p *FakePage) WaitForLoadState(_ browser.LoadState, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return browser.ErrPageClosed
	}
	return p.LoadStateErr
}

// FakeLocator resolves against a FakePage at call time.
type FakeLocator struct {
	page *FakePage
	key  string
	nth  int
}

// resolve returns the addressed element and its visibility at call time.
func (l *FakeLocator) resolve() (*Element, bool, error) {
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	if l.page.closed {
		return nil, false, browser.ErrPageClosed
	}
	els := l.page.elements[l.key]
	if l.nth >= len(els) {
		return nil, false, fmt.Errorf("%w: %s", ErrTimeout, l.key)
	}
	return els[l.nth], els[l.nth].Visible, nil
}

func (l *FakeLocator) IsVisible(_ time.Duration) bool {
	_, visible, err := l.resolve()
	return err == nil && visible
}

func (l *FakeLocator) Click(_ time.Duration) error {
	el, visible, err := l.resolve()
	if err != nil {
		return err
	}
	if !visible {
		return fmt.Errorf("%w: %s not visible", ErrTimeout, l.key)
	}
	if el.ClickErr != nil {
		return el.ClickErr
	}
	el.clicks.Add(1)

	l.page.mu.Lock()
	l.page.clicked = append(l.page.clicked, l.key)
	if el.HideOnClick {
		el.Visible = false
	}
	l.page.mu.Unlock()

	if el.OnClick != nil {
		el.OnClick(l.page)
	}
	return nil
}

func (l *FakeLocator) Fill(value string, _ time.Duration) error {
	if _, _, err := l.resolve(); err != nil {
		return err
	}
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	l.page.filled[l.key] = value
	return nil
}

func (l *FakeLocator) TextContent(_ time.Duration) (string, error) {
	el, _, err := l.resolve()
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

func (l *FakeLocator) InnerHTML(_ time.Duration) (string, error) {
	el, _, err := l.resolve()
	if err != nil {
		return "", err
	}
	return el.HTML, nil
}

func (l *FakeLocator) GetAttribute(name string, _ time.Duration) (string, error) {
	el, _, err := l.resolve()
	if err != nil {
		return "", err
	}
	return el.Attrs[name], nil
}

func (l *FakeLocator) WaitFor(state browser.State, _ time.Duration) error {
	_, visible, err := l.resolve()
	switch state {
	case browser.StateVisible:
		if err != nil {
			return err
		}
		if !visible {
			return fmt.Errorf("%w: %s not visible", ErrTimeout, l.key)
		}
		return nil
	case browser.StateHidden, browser.StateDetached:
		if errors.Is(err, browser.ErrPageClosed) {
			return err
		}
		if err != nil || !visible {
			return nil
		}
		return fmt.Errorf("%w: %s still visible", ErrTimeout, l.key)
	default:
		return err
	}
}

func (l *FakeLocator) SelectOption(label string, _ time.Duration) error {
	el, _, err := l.resolve()
	if err != nil {
		return err
	}
	for _, option := range el.Labels {
		if option == label {
			l.page.mu.Lock()
			el.Selected = label
			l.page.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: option %q", ErrTimeout, label)
}

func (l *FakeLocator) Count() (int, error) {
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	if l.page.closed {
		return 0, browser.ErrPageClosed
	}
	return len(l.page.elements[l.key]), nil
}

func (l *FakeLocator) Nth(i int) browser.Locator {
	return &nthLocator{FakeLocator{page: l.page, key: l.key, nth: i}}
}

func (l *FakeLocator) Locator(selector string) browser.Locator {
	return &FakeLocator{page: l.page, key: l.key + " >> " + selector}
}

// nthLocator scopes child lookups under one indexed element.
type nthLocator struct {
	FakeLocator
}

func (l *nthLocator) Locator(selector string) browser.Locator {
	return &FakeLocator{page: l.page, key: fmt.Sprintf("%s >> nth=%d >> %s", l.key, l.nth, selector)}
}

// FakeContext records Close calls.
type FakeContext struct {
	closed atomic.Int32
	Err    error
}

func (c *FakeContext) Close() error {
	c.closed.Add(1)
	return c.Err
}

func (c *FakeContext) Browser() browser.Closer { return nil }

// Closed reports how many times Close was called.
func (c *FakeContext) Closed() int { return int(c.closed.Load()) }

// FakeDriver hands out FakePages and counts launches.
type FakeDriver struct {
	mu       sync.Mutex
	launches atomic.Int32
	pages    map[string]*FakePage
	contexts map[string]*FakeContext

	// NewPage builds the page for a profile directory. Defaults to NewPage.
	NewPage func(profileDir string) *FakePage
	// Delay simulates a slow launch.
	Delay time.Duration
	// Err fails every launch.
	Err error
}

// NewDriver returns a driver producing empty pages.
func NewDriver() *FakeDriver {
	return &FakeDriver{
		pages:    make(map[string]*FakePage),
		contexts: make(map[string]*FakeContext),
	}
}

func (d *FakeDriver) Launch(ctx context.Context, profileDir string, _ browser.LaunchOptions) (browser.Context, browser.Page, error) {
	d.launches.Add(1)
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if d.Err != nil {
		return nil, nil, d.Err
	}

	page := NewPage()
	if d.NewPage != nil {
		page = d.NewPage(profileDir)
	}
	bctx := &FakeContext{}

	d.mu.Lock()
	d.pages[profileDir] = page
	d.contexts[profileDir] = bctx
	d.mu.Unlock()
	return bctx, page, nil
}

func (d *FakeDriver) Close() error { return nil }

// Launches reports how many times Launch was called.
func (d *FakeDriver) Launches() int { return int(d.launches.Load()) }

// Page returns the page launched for profileDir.
func (d *FakeDriver) Page(profileDir string) *FakePage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pages[profileDir]
}

// Context returns the context launched for profileDir.
func (d *FakeDriver) Context(profileDir string) *FakeContext {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.contexts[profileDir]
}
