// Package sanitize provides text sanitization for operator-typed input.
package sanitize

import (
	"regexp"
	"strings"
)

// spaceRun matches runs of horizontal whitespace
var spaceRun = regexp.MustCompile(`[ \t\f\v]+`)

// Text collapses horizontal whitespace and trims every line. The text is
// stored as typed; markup is escaped only when it is rendered into a message.
func Text(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// EscapeHTML escapes the characters Telegram's HTML parse mode treats specially.
func EscapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
