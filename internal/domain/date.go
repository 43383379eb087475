package domain

import (
	"strings"
	"time"

	"crmbot/platform/validator"
)

// DateLayout is the DD.MM.YY literal used in chat input, ledgers and import
// files. The ddmmyy validation rule checks the same layout.
const DateLayout = validator.DateLayout

// ParseDate parses a DD.MM.YY literal. Impossible dates like 31.02.25 fail.
func ParseDate(input string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(input))
}

// FormatDate renders t as DD.MM.YY. The zero time renders as "".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// StampComment prefixes comment with the capture date: "01.02.25 - text".
func StampComment(capturedAt time.Time, comment string) string {
	return FormatDate(capturedAt) + " - " + strings.TrimSpace(comment)
}

// HasDateStamp reports whether comment already starts with a "DD.MM.YY - " prefix.
func HasDateStamp(comment string) bool {
	if len(comment) < len(DateLayout)+3 {
		return false
	}
	if comment[len(DateLayout):len(DateLayout)+3] != " - " {
		return false
	}
	_, err := time.Parse(DateLayout, comment[:len(DateLayout)])
	return err == nil
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
