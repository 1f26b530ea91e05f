package workflow

import (
	"context"
	"strings"

	"github.com/jonathan/engage-agent/internal/driver"
)

// navigateAndSettle is the shared navigate-then-wait primitive for hops
// whose target renders content after load.
func (w *Workflow) navigateAndSettle(ctx context.Context, s driver.Session, url string) error {
	if err := s.Navigate(ctx, url, driver.NavigateOptions{WaitReady: true, Timeout: w.Waits.NavigationTimeout}); err != nil {
		return err
	}
	w.sleep(ctx, w.Waits.BodySettle)
	return nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// sanitize makes an account id safe for use in a file name.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
