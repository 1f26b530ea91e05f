// chrome.go implements the driver boundary on top of a headless Chrome
// instance via chromedp. Requires Chrome/Chromium to be installed.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// ErrNotFound is returned when no element matches the given criteria.
var ErrNotFound = errors.New("element not found")

const jsIsInViewport = `function() {
	const r = this.getBoundingClientRect();
	const h = window.innerHeight || document.documentElement.clientHeight;
	const w = window.innerWidth || document.documentElement.clientWidth;
	return r.bottom > 0 && r.right > 0 && r.top < h && r.left < w;
}`

const jsIsDisplayed = `function() {
	const r = this.getBoundingClientRect();
	const s = window.getComputedStyle(this);
	return s.display !== 'none' && s.visibility !== 'hidden' && r.width > 0 && r.height > 0;
}`

// ChromeLauncher launches isolated headless Chrome sessions. Every session
// gets its own temporary user-data directory, so no cookies, cache, or
// storage survive from one session to the next.
type ChromeLauncher struct{}

// NewChromeLauncher returns a launcher backed by a local Chrome install.
func NewChromeLauncher() *ChromeLauncher {
	return &ChromeLauncher{}
}

// Launch starts a fresh browser session with the given configuration.
func (l *ChromeLauncher) Launch(ctx context.Context, cfg SessionConfig) (Session, error) {
	profileDir, err := os.MkdirTemp("", "engage-profile-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create profile dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserDataDir(profileDir),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser process up front so Launch fails fast when Chrome
	// is missing.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		_ = os.RemoveAll(profileDir)
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &chromeSession{
		ctx:        browserCtx,
		cancel:     func() { browserCancel(); allocCancel() },
		cfg:        cfg,
		profileDir: profileDir,
	}, nil
}

type chromeSession struct {
	ctx        context.Context
	cancel     context.CancelFunc
	cfg        SessionConfig
	profileDir string
}

// opContext derives a bounded chromedp context for one operation. The
// caller's context is honored for cancellation checks before the call.
func (s *chromeSession) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	tctx, cancel := context.WithTimeout(s.ctx, timeout)
	return tctx, cancel, nil
}

func (s *chromeSession) Navigate(ctx context.Context, url string, opts NavigateOptions) error {
	tctx, cancel, err := s.opContext(ctx, opts.Timeout)
	if err != nil {
		return err
	}
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if opts.WaitReady {
		actions = append(actions, chromedp.WaitReady("body"))
	}
	if err := chromedp.Run(tctx, actions...); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) Locate(ctx context.Context, c Criteria) (Element, error) {
	els, err := s.LocateAll(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("locate %s: %w", c, ErrNotFound)
	}
	return els[0], nil
}

func (s *chromeSession) LocateAll(ctx context.Context, c Criteria) ([]Element, error) {
	tctx, cancel, err := s.opContext(ctx, 0)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var nodes []*cdp.Node
	// AtLeast(0) returns immediately instead of waiting for a match.
	if err := chromedp.Run(tctx,
		chromedp.Nodes(c.Selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	); err != nil {
		return nil, fmt.Errorf("locate %s: %w", c, err)
	}

	els := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		el := &chromeElement{session: s, nodeID: n.NodeID}
		if c.TextContains != "" {
			ok, err := el.textContains(ctx, c.TextContains)
			if err != nil || !ok {
				continue
			}
		}
		if c.Visible {
			ok, err := el.isDisplayed(ctx)
			if err != nil || !ok {
				continue
			}
		}
		els = append(els, el)
	}
	return els, nil
}

func (s *chromeSession) WaitFor(ctx context.Context, c Criteria, timeout time.Duration) (Element, error) {
	tctx, cancel, err := s.opContext(ctx, timeout)
	if err != nil {
		return nil, err
	}
	defer cancel()

	wait := chromedp.WaitReady(c.Selector, chromedp.ByQuery)
	if c.Visible {
		wait = chromedp.WaitVisible(c.Selector, chromedp.ByQuery)
	}
	if err := chromedp.Run(tctx, wait); err != nil {
		return nil, fmt.Errorf("wait for %s: %w", c, err)
	}

	// Text filtering cannot be expressed as a CDP wait condition; poll
	// until a matching element appears or the deadline expires.
	if c.TextContains == "" {
		return s.Locate(ctx, c)
	}
	for {
		el, err := s.Locate(ctx, c)
		if err == nil {
			return el, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		select {
		case <-tctx.Done():
			return nil, fmt.Errorf("wait for %s: %w", c, tctx.Err())
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (s *chromeSession) ScrollBy(ctx context.Context, viewportFraction float64) error {
	tctx, cancel, err := s.opContext(ctx, 0)
	if err != nil {
		return err
	}
	defer cancel()

	js := fmt.Sprintf("window.scrollBy(0, window.innerHeight * %f)", viewportFraction)
	if err := chromedp.Run(tctx, chromedp.Evaluate(js, nil)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

func (s *chromeSession) ScrollTop(ctx context.Context) error {
	tctx, cancel, err := s.opContext(ctx, 0)
	if err != nil {
		return err
	}
	defer cancel()

	if err := chromedp.Run(tctx, chromedp.Evaluate("window.scrollTo(0, 0)", nil)); err != nil {
		return fmt.Errorf("scroll to top: %w", err)
	}
	return nil
}

func (s *chromeSession) Location(ctx context.Context) (string, error) {
	tctx, cancel, err := s.opContext(ctx, 0)
	if err != nil {
		return "", err
	}
	defer cancel()

	var url string
	if err := chromedp.Run(tctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

func (s *chromeSession) Snapshot(ctx context.Context, path string) error {
	tctx, cancel, err := s.opContext(ctx, 0)
	if err != nil {
		return err
	}
	defer cancel()

	var buf []byte
	if err := chromedp.Run(tctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write screenshot %s: %w", path, err)
	}
	return nil
}

func (s *chromeSession) Close() error {
	s.cancel()
	return os.RemoveAll(s.profileDir)
}

type chromeElement struct {
	session *chromeSession
	nodeID  cdp.NodeID
}

func (e *chromeElement) ids() []cdp.NodeID {
	return []cdp.NodeID{e.nodeID}
}

func (e *chromeElement) Click(ctx context.Context) error {
	tctx, cancel, err := e.session.opContext(ctx, 0)
	if err != nil {
		return err
	}
	defer cancel()

	if err := chromedp.Run(tctx,
		chromedp.ScrollIntoView(e.ids(), chromedp.ByNodeID),
		chromedp.Click(e.ids(), chromedp.ByNodeID),
	); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

func (e *chromeElement) Type(ctx context.Context, text string) error {
	tctx, cancel, err := e.session.opContext(ctx, 0)
	if err != nil {
		return err
	}
	defer cancel()

	if err := chromedp.Run(tctx,
		chromedp.Click(e.ids(), chromedp.ByNodeID),
		chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID),
	); err != nil {
		return fmt.Errorf("type: %w", err)
	}
	return nil
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	tctx, cancel, err := e.session.opContext(ctx, 0)
	if err != nil {
		return "", err
	}
	defer cancel()

	var text string
	if err := chromedp.Run(tctx, chromedp.Text(e.ids(), &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return text, nil
}

func (e *chromeElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	tctx, cancel, err := e.session.opContext(ctx, 0)
	if err != nil {
		return "", false, err
	}
	defer cancel()

	var value string
	var ok bool
	if err := chromedp.Run(tctx,
		chromedp.AttributeValue(e.ids(), name, &value, &ok, chromedp.ByNodeID),
	); err != nil {
		return "", false, fmt.Errorf("read attribute %s: %w", name, err)
	}
	return value, ok, nil
}

func (e *chromeElement) HTML(ctx context.Context) (string, error) {
	tctx, cancel, err := e.session.opContext(ctx, 0)
	if err != nil {
		return "", err
	}
	defer cancel()

	var html string
	if err := chromedp.Run(tctx, chromedp.OuterHTML(e.ids(), &html, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

func (e *chromeElement) InViewport(ctx context.Context) (bool, error) {
	return e.callBoolOnNode(ctx, jsIsInViewport)
}

func (e *chromeElement) isDisplayed(ctx context.Context) (bool, error) {
	return e.callBoolOnNode(ctx, jsIsDisplayed)
}

func (e *chromeElement) textContains(ctx context.Context, substr string) (bool, error) {
	text, err := e.Text(ctx)
	if err != nil {
		return false, err
	}
	return containsFold(text, substr), nil
}

// callBoolOnNode resolves the node to a remote object and invokes a JS
// function with the element as receiver, returning its boolean result.
func (e *chromeElement) callBoolOnNode(ctx context.Context, fnDecl string) (bool, error) {
	tctx, cancel, err := e.session.opContext(ctx, 0)
	if err != nil {
		return false, err
	}
	defer cancel()

	var result bool
	err = chromedp.Run(tctx, chromedp.ActionFunc(func(cctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(e.nodeID).Do(cctx)
		if err != nil {
			return err
		}
		res, exp, err := runtime.CallFunctionOn(fnDecl).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(cctx)
		if err != nil {
			return err
		}
		if exp != nil {
			return exp
		}
		return json.Unmarshal(res.Value, &result)
	}))
	if err != nil {
		return false, fmt.Errorf("evaluate on node: %w", err)
	}
	return result, nil
}
