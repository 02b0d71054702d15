package pipeline

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var stripPolicy = bluemonday.StrictPolicy()

// NormalizeDestination turns a destination value into a grouping key: markup
// stripped, entities decoded, whitespace collapsed, NFC-normalized.
func NormalizeDestination(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		s = html.UnescapeString(stripPolicy.Sanitize(s))
	}
	s = strings.Join(strings.Fields(s), " ")
	return norm.NFC.String(s)
}
