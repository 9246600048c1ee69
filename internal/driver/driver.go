// Package driver defines the browser automation port used by the session,
// login and scrape components.
//
// Selectors are CSS with an optional trailing :has-text('...') filter that
// keeps only elements whose rendered text contains the given string.
package driver

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPageClosed is returned by page operations once the page or its
	// browser context is gone.
	ErrPageClosed = errors.New("page closed")

	// ErrTimeout is returned when a wait or navigation exceeds its timeout.
	ErrTimeout = errors.New("driver operation timed out")
)

// LaunchOptions configures a persistent browser context
type LaunchOptions struct {
	ProfileDir       string        // User data directory kept between runs
	Headless         bool          // Run without a visible window
	Channel          string        // Preferred browser channel: chrome, chromium, msedge
	ExecPath         string        // Explicit browser binary, overrides Channel lookup
	EvasionFlags     []string      // Extra command-line switches, "name" or "name=value"
	InteractionDelay time.Duration // Pause before each navigation, click and fill
	RestoreStateFrom string        // Storage state file applied after launch
	UserAgent        string
	Proxy            string
	OpTimeout        time.Duration // Default timeout for operations without an explicit one
	LaunchTimeout    time.Duration // Bound on browser startup
}

// GotoOptions configures a navigation
type GotoOptions struct {
	Timeout time.Duration
}

// Engine starts browsers
type Engine interface {
	Start(ctx context.Context) error
	LaunchPersistentContext(ctx context.Context, opts LaunchOptions) (BrowserContext, error)
	Stop(ctx context.Context) error
}

// BrowserContext is one launched browser with its profile
type BrowserContext interface {
	// Pages returns the open pages, oldest first
	Pages(ctx context.Context) ([]Page, error)
	NewPage(ctx context.Context) (Page, error)
	// SaveStorageState writes cookies and local storage to path, replacing the file
	SaveStorageState(ctx context.Context, path string) error
	Close(ctx context.Context) error
}

// Page is a single browser tab
type Page interface {
	Goto(ctx context.Context, url string, opts GotoOptions) error
	// QuerySelector returns nil without error when nothing matches
	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	// WaitForSelector blocks until selector matches or timeout elapses (ErrTimeout)
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// Content returns the serialized document HTML
	Content(ctx context.Context) (string, error)
	IsClosed() bool
	Close(ctx context.Context) error
}

// Element is a handle to a DOM node
type Element interface {
	// Attribute returns the attribute value and whether it is present
	Attribute(ctx context.Context, name string) (string, bool, error)
	InnerText(ctx context.Context) (string, error)
	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
}
