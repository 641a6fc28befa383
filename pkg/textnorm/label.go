// Package textnorm cleans free-text labels typed on a phone keyboard before
// they are stored or shown on the desktop.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// requestPrefix matches the boilerplate users prepend to a request, like
// "Telegram: Netflix" or "Request - Spotify". A separator is required so that
// names such as "Botanical" survive.
var requestPrefix = regexp.MustCompile(`(?i)^(telegram|request|заявка|bot)(\s*[:\-]\s*|\s+)`)

// Label converts s to NFC, drops invalid UTF-8 and control characters,
// collapses runs of whitespace and trims it
func Label(s string) string {
	s = norm.NFC.String(strings.ToValidUTF8(s, ""))
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// CleanLabel normalizes s and strips a leading request prefix
func CleanLabel(s string) string {
	s = Label(s)
	cleaned := strings.TrimSpace(requestPrefix.ReplaceAllString(s, ""))
	if cleaned == "" {
		return s
	}
	return cleaned
}
