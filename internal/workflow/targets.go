package workflow

import "github.com/jonathan/engage-agent/internal/driver"

// DefaultTargets returns the element contract for the standard deployment.
// Selectors are site capability assumptions; deployments override the ones
// that differ.
func DefaultTargets() Targets {
	return Targets{
		EmailInput:   driver.Criteria{Selector: `input[type="email"], input[name="email"]`, Visible: true},
		SignInSubmit: driver.Criteria{Selector: `button[type="submit"]`, Visible: true},
		SignInAck:    driver.Criteria{Selector: `[data-testid="signin-email-sent"]`},

		MailUserInput: driver.Criteria{Selector: `input[name="username"]`, Visible: true},
		MailPassInput: driver.Criteria{Selector: `input[name="password"]`, Visible: true},
		MailSubmit:    driver.Criteria{Selector: `button[type="submit"]`, Visible: true},
		InboxMarker:   driver.Criteria{Selector: `[data-testid="message-list"]`},
		LoginError:    driver.Criteria{Selector: `.login-error, [role="alert"]`},

		MessageList:     driver.Criteria{Selector: `[data-testid="message-list"]`},
		MessageEntry:    driver.Criteria{Selector: `[data-testid="message-list"] .message-row`},
		MessageBody:     driver.Criteria{Selector: `[data-testid="message-body"]`},
		SenderContains:  "no-reply",
		SubjectContains: "Sign in",

		CallbackPattern: `https?://[^\s"']+/(?:magic|callback|email-signin)[^\s"']*`,

		SortCurrent: driver.Criteria{Selector: `[data-testid="feed-sort"] .current`, Visible: true},
		SortControl: driver.Criteria{Selector: `[data-testid="feed-sort"]`, Visible: true},
		SortOption:  driver.Criteria{Selector: `[data-testid="feed-sort-menu"] [role="menuitem"]`, Visible: true},
		SortOrder:   "Newest",
	}
}
