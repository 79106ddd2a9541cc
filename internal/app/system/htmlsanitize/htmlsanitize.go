// Package htmlsanitize cleans upstream-supplied text before it is shown in
// notifications.
package htmlsanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	plainOnce sync.Once
	plain     *bluemonday.Policy
)

func plainPolicy() *bluemonday.Policy {
	plainOnce.Do(func() {
		plain = bluemonday.StrictPolicy()
	})
	return plain
}

// PlainText removes every tag and returns unescaped, valid UTF-8 text with
// surrounding whitespace trimmed. Notification titles and bodies use it.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "�")
	return strings.TrimSpace(html.UnescapeString(plainPolicy().Sanitize(s)))
}
