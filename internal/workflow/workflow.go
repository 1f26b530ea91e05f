// Package workflow implements the ordered sign-in-and-engage pipeline for a
// single account on a single browser session. Stages run strictly in
// sequence and short-circuit on the first failure; every stage returns a
// uniform Outcome instead of propagating faults past its boundary.
package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/engage-agent/internal/driver"
	"github.com/jonathan/engage-agent/internal/sweep"
)

// Canonical stage names, reported in attempt records and logs.
const (
	StageRequestSignInEmail = "request_signin_email"
	StageEmailDeliveryWait  = "email_delivery_wait"
	StageMailboxLogin       = "mailbox_login"
	StageLocateMessage      = "locate_message"
	StageOpenMessage        = "open_message"
	StageFollowSignInLink   = "follow_signin_link"
	StageNavigateFeed       = "navigate_feed"
	StageEnsureSortOrder    = "ensure_sort_order"
	StageLikeSweep          = "like_sweep"
)

// Outcome is the uniform result of one stage.
type Outcome struct {
	OK   bool
	Err  error
	Data any
}

func ok() Outcome            { return Outcome{OK: true} }
func fail(err error) Outcome { return Outcome{Err: err} }

// Targets names the pages and elements the pipeline operates on. Selectors
// are an external capability contract; their failure is a reported error,
// not orchestration logic.
type Targets struct {
	SignInURL    string
	EmailInput   driver.Criteria
	SignInSubmit driver.Criteria
	SignInAck    driver.Criteria

	MailboxURL    string
	MailUserInput driver.Criteria
	MailPassInput driver.Criteria
	MailSubmit    driver.Criteria
	InboxMarker   driver.Criteria
	LoginError    driver.Criteria

	MessageList     driver.Criteria
	MessageEntry    driver.Criteria
	MessageBody     driver.Criteria
	SenderContains  string
	SubjectContains string

	// CallbackPattern is a regular expression the sign-in link's href must
	// match inside the rendered message body.
	CallbackPattern string

	FeedURL     string
	SortCurrent driver.Criteria
	SortControl driver.Criteria
	SortOption  driver.Criteria
	SortOrder   string
}

// Waits holds the pipeline's timing bounds. Fixed delays are kept only
// where no completion signal is observable (email delivery, remote images
// inside an opened message, sort re-render).
type Waits struct {
	ElementWait       time.Duration
	NavigationTimeout time.Duration
	EmailDelivery     time.Duration
	BodySettle        time.Duration
	SortApply         time.Duration
}

// DefaultWaits returns the standard timing bounds.
func DefaultWaits() Waits {
	return Waits{
		ElementWait:       20 * time.Second,
		NavigationTimeout: 45 * time.Second,
		EmailDelivery:     25 * time.Second,
		BodySettle:        3 * time.Second,
		SortApply:         2 * time.Second,
	}
}

// MailCredentials authenticates against the shared webmail account.
type MailCredentials struct {
	Username string
	Password string
}

// LikeSweeper runs the terminal engagement sweep over the feed.
type LikeSweeper interface {
	Run(ctx context.Context, s driver.Session) (sweep.Result, error)
}

// Result is the outcome of one full pipeline execution.
type Result struct {
	OK          bool
	FailedStage string
	Err         error
	Likes       int
	// Degraded lists non-fatal stages that failed but did not stop the run.
	Degraded []string
}

// Workflow is the parameterized state machine: one pipeline whose targets,
// timing, and sweep are configuration.
type Workflow struct {
	Targets     Targets
	Waits       Waits
	Mail        MailCredentials
	Sweeper     LikeSweeper
	SnapshotDir string
	Log         *logrus.Logger

	// Sleep is injectable for tests; nil means context-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration)
}

type runState struct {
	message driver.Element
	likes   int
}

type stage struct {
	name     string
	nonFatal bool
	run      func(ctx context.Context, s driver.Session, st *runState) Outcome
}

// Run executes the full pipeline for one account on one live session.
func (w *Workflow) Run(ctx context.Context, s driver.Session, accountEmail string) Result {
	st := &runState{}
	stages := []stage{
		{name: StageRequestSignInEmail, run: func(ctx context.Context, s driver.Session, st *runState) Outcome {
			return w.requestSignInEmail(ctx, s, accountEmail)
		}},
		{name: StageEmailDeliveryWait, run: w.emailDeliveryWait},
		{name: StageMailboxLogin, run: w.mailboxLogin},
		{name: StageLocateMessage, run: w.locateMessage},
		{name: StageOpenMessage, run: w.openMessage},
		{name: StageFollowSignInLink, run: w.followSignInLink},
		{name: StageNavigateFeed, run: w.navigateToFeed},
		{name: StageEnsureSortOrder, nonFatal: true, run: w.ensureSortOrder},
		{name: StageLikeSweep, run: w.likeSweep},
	}

	res := Result{}
	for _, sg := range stages {
		w.log().WithFields(logrus.Fields{"stage": sg.name, "account": accountEmail}).Debug("running stage")
		out := sg.run(ctx, s, st)
		if out.OK {
			continue
		}
		w.captureDiagnostics(ctx, s, accountEmail, sg.name)
		if sg.nonFatal {
			w.log().WithFields(logrus.Fields{"stage": sg.name, "account": accountEmail}).
				WithError(out.Err).Warn("non-fatal stage failed, continuing")
			res.Degraded = append(res.Degraded, sg.name)
			continue
		}
		res.FailedStage = sg.name
		res.Err = out.Err
		res.Likes = st.likes
		return res
	}

	res.OK = true
	res.Likes = st.likes
	return res
}

// requestSignInEmail asks the target site to send a passwordless sign-in
// email to the account address.
func (w *Workflow) requestSignInEmail(ctx context.Context, s driver.Session, email string) Outcome {
	t := w.Targets
	if err := s.Navigate(ctx, t.SignInURL, driver.NavigateOptions{WaitReady: true, Timeout: w.Waits.NavigationTimeout}); err != nil {
		return fail(stageErr(StageRequestSignInEmail, "sign-in entry point unreachable", err))
	}
	input, err := s.WaitFor(ctx, t.EmailInput, w.Waits.ElementWait)
	if err != nil {
		return fail(stageErr(StageRequestSignInEmail, "email input not found", err))
	}
	if err := input.Type(ctx, email); err != nil {
		return fail(stageErr(StageRequestSignInEmail, "typing email failed", err))
	}
	submit, err := s.Locate(ctx, t.SignInSubmit)
	if err != nil {
		return fail(stageErr(StageRequestSignInEmail, "submit control not found", err))
	}
	if err := submit.Click(ctx); err != nil {
		return fail(stageErr(StageRequestSignInEmail, "submit click failed", err))
	}
	// The acknowledgment banner is confirmation, not a requirement; many
	// deployments submit without rendering one.
	if t.SignInAck.Selector != "" {
		if _, err := s.WaitFor(ctx, t.SignInAck, w.Waits.ElementWait); err == nil {
			w.log().Debug("sign-in request acknowledged")
		}
	}
	return ok()
}

// emailDeliveryWait is a pure delay for the asynchronous email delivery; it
// performs no automation interaction and is never a failure point.
func (w *Workflow) emailDeliveryWait(ctx context.Context, _ driver.Session, _ *runState) Outcome {
	w.sleep(ctx, w.Waits.EmailDelivery)
	return ok()
}

// mailboxLogin authenticates against the webmail interface and waits for
// the post-login inbox to render.
func (w *Workflow) mailboxLogin(ctx context.Context, s driver.Session, _ *runState) Outcome {
	t := w.Targets
	if err := s.Navigate(ctx, t.MailboxURL, driver.NavigateOptions{WaitReady: true, Timeout: w.Waits.NavigationTimeout}); err != nil {
		return fail(stageErr(StageMailboxLogin, "webmail entry point unreachable", err))
	}
	user, err := s.WaitFor(ctx, t.MailUserInput, w.Waits.ElementWait)
	if err != nil {
		return fail(stageErr(StageMailboxLogin, "username input not found", err))
	}
	if err := user.Type(ctx, w.Mail.Username); err != nil {
		return fail(stageErr(StageMailboxLogin, "typing username failed", err))
	}
	pass, err := s.Locate(ctx, t.MailPassInput)
	if err != nil {
		return fail(stageErr(StageMailboxLogin, "password input not found", err))
	}
	if err := pass.Type(ctx, w.Mail.Password); err != nil {
		return fail(stageErr(StageMailboxLogin, "typing password failed", err))
	}
	submit, err := s.Locate(ctx, t.MailSubmit)
	if err != nil {
		return fail(stageErr(StageMailboxLogin, "login submit not found", err))
	}
	if err := submit.Click(ctx); err != nil {
		return fail(stageErr(StageMailboxLogin, "login submit click failed", err))
	}
	if _, err := s.WaitFor(ctx, t.InboxMarker, w.Waits.NavigationTimeout); err != nil {
		// Probe for an inline error message so the failure names the cause
		// instead of a bare timeout.
		detail := "post-login navigation timed out"
		if el, probeErr := s.Locate(ctx, t.LoginError); probeErr == nil {
			if text, textErr := el.Text(ctx); textErr == nil && text != "" {
				detail = fmt.Sprintf("login rejected: %s", text)
			}
		}
		return fail(stageErr(StageMailboxLogin, detail, err))
	}
	return ok()
}

// locateMessage scans the rendered message list for an entry whose sender
// and subject both match the configured markers.
func (w *Workflow) locateMessage(ctx context.Context, s driver.Session, st *runState) Outcome {
	t := w.Targets
	if _, err := s.WaitFor(ctx, t.MessageList, w.Waits.ElementWait); err != nil {
		return fail(stageErr(StageLocateMessage, "message list never rendered", err))
	}

	deadline := time.Now().Add(w.Waits.ElementWait)
	for {
		entries, err := s.LocateAll(ctx, t.MessageEntry)
		if err != nil {
			return fail(stageErr(StageLocateMessage, "enumerating messages failed", err))
		}
		for _, entry := range entries {
			text, err := entry.Text(ctx)
			if err != nil {
				continue
			}
			if containsFold(text, t.SenderContains) && containsFold(text, t.SubjectContains) {
				st.message = entry
				return ok()
			}
		}
		if time.Now().After(deadline) {
			return fail(assertErr(StageLocateMessage,
				fmt.Sprintf("no message from %q with subject containing %q", t.SenderContains, t.SubjectContains)))
		}
		w.sleep(ctx, 2*time.Second)
		if ctx.Err() != nil {
			return fail(stageErr(StageLocateMessage, "canceled while polling message list", ctx.Err()))
		}
	}
}

// openMessage opens the located entry and waits for the body to render,
// with a settle delay for embedded remote content.
func (w *Workflow) openMessage(ctx context.Context, s driver.Session, st *runState) Outcome {
	if st.message == nil {
		return fail(assertErr(StageOpenMessage, "no message entry located"))
	}
	if err := st.message.Click(ctx); err != nil {
		return fail(stageErr(StageOpenMessage, "opening message failed", err))
	}
	if _, err := s.WaitFor(ctx, w.Targets.MessageBody, w.Waits.ElementWait); err != nil {
		return fail(stageErr(StageOpenMessage, "message body never rendered", err))
	}
	w.sleep(ctx, w.Waits.BodySettle)
	return ok()
}

// followSignInLink extracts the callback link from the message body and
// navigates the session to it.
func (w *Workflow) followSignInLink(ctx context.Context, s driver.Session, _ *runState) Outcome {
	body, err := s.Locate(ctx, w.Targets.MessageBody)
	if err != nil {
		return fail(stageErr(StageFollowSignInLink, "message body not found", err))
	}
	html, err := body.HTML(ctx)
	if err != nil {
		return fail(stageErr(StageFollowSignInLink, "reading message body failed", err))
	}
	link, err := ExtractSignInLink(html, w.Targets.CallbackPattern)
	if err != nil {
		return fail(&StageError{Stage: StageFollowSignInLink, Kind: KindAssertionFailed,
			Message: "no sign-in link in message body", Cause: err})
	}
	if err := s.Navigate(ctx, link, driver.NavigateOptions{WaitReady: true, Timeout: w.Waits.NavigationTimeout}); err != nil {
		return fail(stageErr(StageFollowSignInLink, "sign-in navigation did not complete", err))
	}
	return ok()
}

// navigateToFeed is the generic navigate-and-settle hop to the content feed.
func (w *Workflow) navigateToFeed(ctx context.Context, s driver.Session, _ *runState) Outcome {
	if err := w.navigateAndSettle(ctx, s, w.Targets.FeedURL); err != nil {
		return fail(stageErr(StageNavigateFeed, "feed unreachable", err))
	}
	return ok()
}

// ensureSortOrder is idempotent: it succeeds immediately when the feed is
// already sorted by the desired criterion. Its failure never stops the run.
func (w *Workflow) ensureSortOrder(ctx context.Context, s driver.Session, _ *runState) Outcome {
	t := w.Targets
	current := t.SortCurrent
	current.TextContains = t.SortOrder
	if _, err := s.Locate(ctx, current); err == nil {
		return ok()
	}

	control, err := s.Locate(ctx, t.SortControl)
	if err != nil {
		return fail(stageErr(StageEnsureSortOrder, "sort control not found", err))
	}
	if err := control.Click(ctx); err != nil {
		return fail(stageErr(StageEnsureSortOrder, "opening sort menu failed", err))
	}
	options, err := s.LocateAll(ctx, t.SortOption)
	if err != nil {
		return fail(stageErr(StageEnsureSortOrder, "enumerating sort options failed", err))
	}

	match := w.pickSortOption(ctx, options)
	if match == nil {
		return fail(assertErr(StageEnsureSortOrder,
			fmt.Sprintf("no sort option labeled %q", t.SortOrder)))
	}
	if err := match.Click(ctx); err != nil {
		return fail(stageErr(StageEnsureSortOrder, "selecting sort option failed", err))
	}
	w.sleep(ctx, w.Waits.SortApply)
	return ok()
}

// pickSortOption prefers an exact label match, falling back to substring.
func (w *Workflow) pickSortOption(ctx context.Context, options []driver.Element) driver.Element {
	var substringMatch driver.Element
	for _, opt := range options {
		label, err := opt.Text(ctx)
		if err != nil {
			continue
		}
		if equalFold(label, w.Targets.SortOrder) {
			return opt
		}
		if substringMatch == nil && containsFold(label, w.Targets.SortOrder) {
			substringMatch = opt
		}
	}
	return substringMatch
}

// likeSweep runs the bounded engagement sweep as the terminal stage.
func (w *Workflow) likeSweep(ctx context.Context, s driver.Session, st *runState) Outcome {
	res, err := w.Sweeper.Run(ctx, s)
	st.likes = res.Likes
	if err != nil {
		return fail(&StageError{Stage: StageLikeSweep, Kind: classify(err),
			Message: "sweep aborted", Cause: err})
	}
	w.log().WithFields(logrus.Fields{"likes": res.Likes, "reason": res.Reason}).Info("sweep finished")
	return ok()
}

// captureDiagnostics records the current location and a screenshot after a
// stage failure. Capture errors are logged and swallowed so they never mask
// the original failure.
func (w *Workflow) captureDiagnostics(ctx context.Context, s driver.Session, account, stageName string) {
	log := w.log().WithFields(logrus.Fields{"stage": stageName, "account": account})
	if loc, err := s.Location(ctx); err == nil {
		log = log.WithField("location", loc)
	}
	if w.SnapshotDir != "" {
		name := fmt.Sprintf("%s-%s-%d.png", sanitize(account), stageName, time.Now().Unix())
		path := filepath.Join(w.SnapshotDir, name)
		if err := os.MkdirAll(w.SnapshotDir, 0o755); err == nil {
			if err := s.Snapshot(ctx, path); err != nil {
				log.WithError(err).Debug("diagnostic snapshot failed")
			} else {
				log = log.WithField("snapshot", path)
			}
		}
	}
	log.Info("captured failure diagnostics")
}

func (w *Workflow) log() *logrus.Logger {
	if w.Log != nil {
		return w.Log
	}
	return logrus.StandardLogger()
}

func (w *Workflow) sleep(ctx context.Context, d time.Duration) {
	if w.Sleep != nil {
		w.Sleep(ctx, d)
		return
	}
	sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
