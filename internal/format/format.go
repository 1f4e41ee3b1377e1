// Package format owns the two independent text concerns of the relay:
// sanitizing untrusted bodies before they reach the transcript, and
// building the rich display line broadcast to live sessions.
package format

import (
	"fmt"
	"regexp"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

var (
	boldRe   = regexp.MustCompile(`\*([^*]+)\*`)
	italicRe = regexp.MustCompile(`_([^_]+)_`)
	linkRe   = regexp.MustCompile(`https?://[^\s]+`)
)

// Sanitizer strips all markup outside the allow-list: b, i, strong, em
// and anchors carrying only href/target. Pure, no I/O.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "strong", "em", "a")
	p.AllowAttrs("href", "target").OnElements("a")
	return &Sanitizer{policy: p}
}

func (s *Sanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}

// Format applies the display substitutions: *text* becomes strong,
// _text_ becomes em, and bare http(s) tokens become links opening in a
// new tab. No nesting and no escaping of literal '*' or '_'; that
// limitation is inherited from the wire protocol the web client speaks.
func Format(raw string) string {
	out := boldRe.ReplaceAllString(raw, "<strong>$1</strong>")
	out = italicRe.ReplaceAllString(out, "<em>$1</em>")
	out = linkRe.ReplaceAllString(out, `<a href="$0" target="_blank">$0</a>`)
	return out
}

// ChatLine renders a live or replayed user message.
func ChatLine(at time.Time, sender, body string) string {
	return fmt.Sprintf("%s — %s: %s", at.Format("15:04"), sender, body)
}

// NoticeLine renders a replayed system message. Live system notices are
// sent as the bare body; only history replay carries the time prefix.
func NoticeLine(at time.Time, body string) string {
	return fmt.Sprintf("%s — %s", at.Format("15:04"), body)
}
