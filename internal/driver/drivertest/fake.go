// Package drivertest provides in-memory fakes of the driver interfaces for
// testing orchestration logic without a real browser.
package drivertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/engage-agent/internal/driver"
)

// FakeElement is a scriptable element handle.
type FakeElement struct {
	TextValue  string
	HTMLValue  string
	Attrs      map[string]string
	Displayed  bool
	Viewport   bool
	ClickErr   error
	TypeErr    error
	Clicks     int
	TypedText  []string
	OnClick    func(e *FakeElement) error
}

func (e *FakeElement) Click(ctx context.Context) error {
	e.Clicks++
	if e.OnClick != nil {
		return e.OnClick(e)
	}
	return e.ClickErr
}

func (e *FakeElement) Type(ctx context.Context, text string) error {
	if e.TypeErr != nil {
		return e.TypeErr
	}
	e.TypedText = append(e.TypedText, text)
	return nil
}

func (e *FakeElement) Text(ctx context.Context) (string, error) {
	return e.TextValue, nil
}

func (e *FakeElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	if e.Attrs == nil {
		return "", false, nil
	}
	v, ok := e.Attrs[name]
	return v, ok, nil
}

func (e *FakeElement) HTML(ctx context.Context) (string, error) {
	return e.HTMLValue, nil
}

func (e *FakeElement) InViewport(ctx context.Context) (bool, error) {
	return e.Viewport, nil
}

// FakeSession is a scriptable session. Elements are keyed by CSS selector;
// Locate applies the criteria's text and visibility filters on top.
type FakeSession struct {
	mu sync.Mutex

	Elements    map[string][]*FakeElement
	NavigateErr map[string]error
	WaitErr     map[string]error

	Navigated  []string
	CurrentURL string
	Scrolls    int
	TopResets  int
	Snapshots  []string
	Closed     bool
	Calls      int

	// OnScroll is invoked on every ScrollBy, letting tests reveal new
	// elements as the feed "grows".
	OnScroll func(s *FakeSession)
	// FailAll, when set, makes every driver call return this error.
	FailAll error
}

// NewFakeSession returns an empty session ready for scripting.
func NewFakeSession() *FakeSession {
	return &FakeSession{
		Elements:    make(map[string][]*FakeElement),
		NavigateErr: make(map[string]error),
		WaitErr:     make(map[string]error),
	}
}

// AddElement registers an element under the given selector.
func (s *FakeSession) AddElement(selector string, e *FakeElement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Elements[selector] = append(s.Elements[selector], e)
}

func (s *FakeSession) call() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	return s.FailAll
}

func (s *FakeSession) Navigate(ctx context.Context, url string, opts driver.NavigateOptions) error {
	if err := s.call(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for substr, err := range s.NavigateErr {
		if strings.Contains(url, substr) {
			return err
		}
	}
	s.Navigated = append(s.Navigated, url)
	s.CurrentURL = url
	return nil
}

func (s *FakeSession) matches(c driver.Criteria) []driver.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []driver.Element
	for _, e := range s.Elements[c.Selector] {
		if c.TextContains != "" &&
			!strings.Contains(strings.ToLower(e.TextValue), strings.ToLower(c.TextContains)) {
			continue
		}
		if c.Visible && !e.Displayed {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *FakeSession) Locate(ctx context.Context, c driver.Criteria) (driver.Element, error) {
	if err := s.call(); err != nil {
		return nil, err
	}
	els := s.matches(c)
	if len(els) == 0 {
		return nil, fmt.Errorf("locate %s: %w", c, driver.ErrNotFound)
	}
	return els[0], nil
}

func (s *FakeSession) LocateAll(ctx context.Context, c driver.Criteria) ([]driver.Element, error) {
	if err := s.call(); err != nil {
		return nil, err
	}
	return s.matches(c), nil
}

func (s *FakeSession) WaitFor(ctx context.Context, c driver.Criteria, timeout time.Duration) (driver.Element, error) {
	if err := s.call(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	waitErr := s.WaitErr[c.Selector]
	s.mu.Unlock()
	if waitErr != nil {
		return nil, fmt.Errorf("wait for %s: %w", c, waitErr)
	}
	els := s.matches(c)
	if len(els) == 0 {
		return nil, fmt.Errorf("wait for %s: %w", c, context.DeadlineExceeded)
	}
	return els[0], nil
}

func (s *FakeSession) ScrollBy(ctx context.Context, viewportFraction float64) error {
	if err := s.call(); err != nil {
		return err
	}
	s.mu.Lock()
	s.Scrolls++
	hook := s.OnScroll
	s.mu.Unlock()
	if hook != nil {
		hook(s)
	}
	return nil
}

func (s *FakeSession) ScrollTop(ctx context.Context) error {
	if err := s.call(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TopResets++
	return nil
}

func (s *FakeSession) Location(ctx context.Context) (string, error) {
	if err := s.call(); err != nil {
		return "", err
	}
	return s.CurrentURL, nil
}

func (s *FakeSession) Snapshot(ctx context.Context, path string) error {
	if err := s.call(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Snapshots = append(s.Snapshots, path)
	return nil
}

func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// FakeLauncher hands out sessions built by NewSession, one per Launch call.
type FakeLauncher struct {
	mu sync.Mutex

	// NewSession builds the session for the given 1-based launch number.
	// When nil, an empty FakeSession is used.
	NewSession func(launch int) *FakeSession
	LaunchErr  error

	Sessions []*FakeSession
}

func (l *FakeLauncher) Launch(ctx context.Context, cfg driver.SessionConfig) (driver.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	n := len(l.Sessions) + 1
	var s *FakeSession
	if l.NewSession != nil {
		s = l.NewSession(n)
	} else {
		s = NewFakeSession()
	}
	l.Sessions = append(l.Sessions, s)
	return s, nil
}
