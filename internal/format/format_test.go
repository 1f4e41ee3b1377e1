package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitize_StripsDisallowedMarkup(t *testing.T) {
	req := require.New(t)
	s := NewSanitizer()

	out := s.Sanitize(`<script>alert(1)</script>hello`)
	req.NotContains(out, "<script")
	req.Contains(out, "hello")

	out = s.Sanitize(`<img src=x onerror=alert(1)>plain`)
	req.NotContains(out, "<img")
	req.Contains(out, "plain")
}

func TestSanitize_KeepsAllowedTags(t *testing.T) {
	req := require.New(t)
	s := NewSanitizer()

	for _, in := range []string{
		"<b>x</b>", "<i>x</i>", "<strong>x</strong>", "<em>x</em>",
	} {
		req.Equal(in, s.Sanitize(in))
	}
}

func TestSanitize_AnchorAttrsAllowListed(t *testing.T) {
	req := require.New(t)
	s := NewSanitizer()

	out := s.Sanitize(`<a href="http://e.co" target="_blank" onclick="evil()">x</a>`)
	req.Contains(out, `href="http://e.co"`)
	req.Contains(out, `target="_blank"`)
	req.NotContains(out, "onclick")
}

func TestFormat_Substitutions(t *testing.T) {
	req := require.New(t)

	req.Equal("<strong>bold</strong>", Format("*bold*"))
	req.Equal("<em>soft</em>", Format("_soft_"))
	req.Equal(`see <a href="https://e.co/x" target="_blank">https://e.co/x</a> now`, Format("see https://e.co/x now"))

	mixed := Format("a *b* _c_ http://d.e")
	req.Contains(mixed, "<strong>b</strong>")
	req.Contains(mixed, "<em>c</em>")
	req.Contains(mixed, `<a href="http://d.e" target="_blank">http://d.e</a>`)
}

func TestFormat_NoEscapingOfLiteralMarkers(t *testing.T) {
	// a lone '*' or '_' is left as-is; pairs always toggle markup,
	// matching the protocol the web client expects
	req := require.New(t)
	req.Equal("5 * 3", Format("5 * 3"))
	req.Equal("<strong> 3 = 15, 2 </strong>", Format("* 3 = 15, 2 *"))
}

func TestLines(t *testing.T) {
	req := require.New(t)
	at := time.Date(2024, 5, 1, 13, 37, 42, 0, time.UTC)

	req.Equal("13:37 — alice: hi", ChatLine(at, "alice", "hi"))
	req.Equal("13:37 — alice has joined the room", NoticeLine(at, "alice has joined the room"))
}
