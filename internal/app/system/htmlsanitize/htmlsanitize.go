// Package htmlsanitize strips markup from free text before it is persisted
// in audit summaries or echoed back to clients.
package htmlsanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictOnce sync.Once
	strict     *bluemonday.Policy
)

func strictPolicy() *bluemonday.Policy {
	strictOnce.Do(func() {
		strict = bluemonday.StrictPolicy()
	})
	return strict
}

// PlainText removes every tag from s and unescapes the entities bluemonday
// leaves behind, returning text safe to store and log.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	out := strictPolicy().Sanitize(s)
	return strings.TrimSpace(html.UnescapeString(out))
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
