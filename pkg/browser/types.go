package browser

import (
	"context"
	"errors"
	"time"
)

// ErrPageClosed is returned by page operations once the page or its browser
// has gone away.
var ErrPageClosed = errors.New("browser: page closed")

// State is an element state a Locator can wait for.
type State string

const (
	StateAttached State = "attached"
	StateDetached State = "detached"
	StateVisible  State = "visible"
	StateHidden   State = "hidden"
)

// LoadState is a page load milestone.
type LoadState string

const (
	LoadStateLoad             LoadState = "load"
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	LoadStateNetworkIdle      LoadState = "networkidle"
)

// Closer is anything with a Close method (a browser process, a context).
type Closer interface {
	Close() error
}

// Driver launches isolated browser contexts backed by a persistent profile
// directory.
type Driver interface {
	// Launch starts a browser bound to profileDir and returns its context
	// and a ready page.
	Launch(ctx context.Context, profileDir string, opts LaunchOptions) (Context, Page, error)

	// Close stops the driver itself (not the sessions).
	Close() error
}

// Context is one browser context.
type Context interface {
	Close() error

	// Browser returns the underlying browser process, or nil when closing
	// the context already stops it (persistent contexts).
	Browser() Closer
}

// Page is the subset of page operations the automation needs.
type Page interface {
	Goto(url string, timeout time.Duration) error
	URL() string
	IsClosed() bool
	Close() error
	Locator(selector string) Locator
	Screenshot(quality int) ([]byte, error)
	WaitForLoadState(state LoadState, timeout time.Duration) error
}

// Locator addresses zero or more elements matching a selector. Timeouts of
// zero mean the driver default.
type Locator interface {
	// IsVisible waits up to timeout for the element to become visible and
	// reports whether it did. A timeout is not an error.
	IsVisible(timeout time.Duration) bool
	Click(timeout time.Duration) error
	Fill(value string, timeout time.Duration) error
	TextContent(timeout time.Duration) (string, error)
	InnerHTML(timeout time.Duration) (string, error)
	GetAttribute(name string, timeout time.Duration) (string, error)
	WaitFor(state State, timeout time.Duration) error
	SelectOption(label string, timeout time.Duration) error
	Count() (int, error)
	Nth(i int) Locator
	Locator(selector string) Locator
}

// LaunchOptions configures a new browser session.
type LaunchOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size
	Viewport *Viewport

	// Locale such as "fr-FR"
	Locale string

	// SlowMo slows every driver operation down, for debugging
	SlowMo time.Duration

	// Timeout is the default timeout for page operations
	Timeout time.Duration
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Session binds one account id to one browser context and page.
type Session struct {
	// ID is the account/session identifier
	ID string

	Context Context
	Page    Page

	// ProfileDir is the persistent profile used by the context
	ProfileDir string

	CreatedAt time.Time
}

// Default values for browser sessions
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultMaxBrowsers    = 4
)
