package transport

import (
	"html"
	"net/url"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatch/internal/tracking"
)

var hrefRe = regexp.MustCompile(`href="([^"]+)"`)

func hrefs(t *testing.T, body string) []*url.URL {
	t.Helper()
	var out []*url.URL
	for _, m := range hrefRe.FindAllStringSubmatch(body, -1) {
		u, err := url.Parse(html.UnescapeString(m[1]))
		require.NoError(t, err)
		out = append(out, u)
	}
	return out
}

func TestRenderHTML_RewritesLinksThroughSignedClickURL(t *testing.T) {
	links := tracking.Links{BaseURL: "https://t.example.jp", Secret: "s3cret"}
	body := "詳細は [こちら](https://example.jp/lp?a=1) または https://example.jp/faq をご覧ください。\n\nお問い合わせ: [mail](mailto:info@example.jp)"

	out, err := renderHTML(newMarkdown(), body, links, "msg-1")
	require.NoError(t, err)

	got := hrefs(t, out)
	require.Len(t, got, 3)
	var targets []string
	for _, u := range got[:2] {
		assert.Equal(t, "t.example.jp", u.Host)
		assert.Equal(t, "/t/c/msg-1", u.Path)
		target := u.Query().Get("url")
		assert.True(t, tracking.Verify("s3cret", "msg-1", target, u.Query().Get("sig")), target)
		targets = append(targets, target)
	}
	assert.Equal(t, []string{"https://example.jp/lp?a=1", "https://example.jp/faq"}, targets)
	assert.Equal(t, "mailto:info@example.jp", got[2].String(), "non-web links are left alone")
	assert.Contains(t, out, ">https://example.jp/faq</a>", "autolink keeps its label")
	assert.Contains(t, out, `src="https://t.example.jp/t/o/msg-1"`)
}

func TestRenderHTML_NoTrackingLeavesLinks(t *testing.T) {
	out, err := renderHTML(newMarkdown(), "[こちら](https://example.jp/lp)", tracking.Links{}, "msg-1")
	require.NoError(t, err)
	assert.Contains(t, out, `href="https://example.jp/lp"`)
	assert.NotContains(t, out, "<img")

	out, err = renderHTML(newMarkdown(), "[こちら](https://example.jp/lp)", tracking.Links{BaseURL: "https://t.example.jp", Secret: "x"}, "")
	require.NoError(t, err)
	assert.Contains(t, out, `href="https://example.jp/lp"`, "no message id, nothing to attribute")
}
