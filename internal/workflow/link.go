package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractSignInLink scans rendered message HTML for the first hyperlink
// whose target matches the callback pattern and returns its href.
func ExtractSignInLink(htmlContent, callbackPattern string) (string, error) {
	re, err := regexp.Compile(callbackPattern)
	if err != nil {
		return "", fmt.Errorf("invalid callback pattern %q: %w", callbackPattern, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse message HTML: %w", err)
	}

	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return true
		}
		if re.MatchString(href) {
			link = href
			return false
		}
		return true
	})

	if link == "" {
		return "", fmt.Errorf("no link matching %q in message body", callbackPattern)
	}
	return link, nil
}
