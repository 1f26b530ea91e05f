// Package driver defines the automation driver boundary: launching isolated
// browser sessions and interacting with pages through semantic element criteria.
package driver

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Criteria describes an element to locate. Selector is a CSS selector;
// TextContains optionally narrows matches to elements whose text contains
// the given substring; Visible restricts matches to on-screen elements.
type Criteria struct {
	Selector     string
	TextContains string
	Visible      bool
}

func (c Criteria) String() string {
	if c.TextContains != "" {
		return fmt.Sprintf("%s (text ~ %q)", c.Selector, c.TextContains)
	}
	return c.Selector
}

// NavigateOptions controls navigation waiting behavior.
type NavigateOptions struct {
	// WaitReady waits for the document body to be ready before returning.
	WaitReady bool
	// Timeout bounds the whole navigation. Zero uses the session default.
	Timeout time.Duration
}

// Element is a handle to a located page element. Handles are only valid for
// the session that produced them and may go stale after navigation.
type Element interface {
	Click(ctx context.Context) error
	Type(ctx context.Context, text string) error
	Text(ctx context.Context) (string, error)
	// Attribute returns the value of the named attribute and whether it is set.
	Attribute(ctx context.Context, name string) (string, bool, error)
	// HTML returns the element's outer HTML.
	HTML(ctx context.Context) (string, error)
	// InViewport reports whether any part of the element is inside the
	// visible viewport.
	InViewport(ctx context.Context) (bool, error)
}

// Session is one isolated browser session. A session owns its own profile
// state (cookies, cache) and is never shared across attempts.
type Session interface {
	Navigate(ctx context.Context, url string, opts NavigateOptions) error
	// Locate returns the first element matching the criteria, or an error if
	// none is currently rendered. It does not wait.
	Locate(ctx context.Context, c Criteria) (Element, error)
	// LocateAll returns all elements currently matching the criteria, in
	// document order. An empty result is not an error.
	LocateAll(ctx context.Context, c Criteria) ([]Element, error)
	// WaitFor waits until an element matching the criteria is rendered
	// (and visible, if requested), up to the timeout, and returns it.
	WaitFor(ctx context.Context, c Criteria, timeout time.Duration) (Element, error)
	// ScrollBy scrolls the window vertically by the given fraction of the
	// viewport height. Negative fractions scroll up.
	ScrollBy(ctx context.Context, viewportFraction float64) error
	// ScrollTop resets the scroll position to the top of the document.
	ScrollTop(ctx context.Context) error
	// Location returns the current page URL.
	Location(ctx context.Context) (string, error)
	// Snapshot writes a screenshot of the visible surface to path.
	Snapshot(ctx context.Context, path string) error
	Close() error
}

// Launcher creates sessions. Each Launch call must return a session with a
// fresh profile, sharing no state with any previous session.
type Launcher interface {
	Launch(ctx context.Context, cfg SessionConfig) (Session, error)
}

// SessionConfig is the immutable configuration a session is launched with.
// Reconfiguration produces a new value via the With* methods rather than
// mutating shared state.
type SessionConfig struct {
	Headless       bool
	WindowWidth    int
	WindowHeight   int
	DefaultTimeout time.Duration
	UserAgent      string
}

// DefaultSessionConfig returns the baseline session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Headless:       true,
		WindowWidth:    1366,
		WindowHeight:   900,
		DefaultTimeout: 30 * time.Second,
	}
}

// WithHeadless returns a copy of the config with headless mode set.
func (c SessionConfig) WithHeadless(headless bool) SessionConfig {
	c.Headless = headless
	return c
}

// WithDefaultTimeout returns a copy of the config with the default
// per-operation timeout set.
func (c SessionConfig) WithDefaultTimeout(d time.Duration) SessionConfig {
	c.DefaultTimeout = d
	return c
}

// WithWindowSize returns a copy of the config with the window size set.
func (c SessionConfig) WithWindowSize(w, h int) SessionConfig {
	c.WindowWidth = w
	c.WindowHeight = h
	return c
}

// containsFold reports whether s contains substr, ignoring case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
