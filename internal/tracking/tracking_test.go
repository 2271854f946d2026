package tracking

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickURL_CarriesVerifiableSignature(t *testing.T) {
	l := Links{BaseURL: "https://t.example.jp", Secret: "s3cret"}
	raw := l.ClickURL("msg-1", "https://example.jp/lp?a=1&b=2")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/t/c/msg-1", u.Path)
	target := u.Query().Get("url")
	assert.Equal(t, "https://example.jp/lp?a=1&b=2", target)
	assert.True(t, Verify("s3cret", "msg-1", target, u.Query().Get("sig")))
}

func TestVerify_RejectsTampering(t *testing.T) {
	sig := Sign("s3cret", "msg-1", "https://example.jp/lp")

	assert.True(t, Verify("s3cret", "msg-1", "https://example.jp/lp", sig))
	assert.False(t, Verify("s3cret", "msg-1", "https://evil.example.com/", sig), "other target")
	assert.False(t, Verify("s3cret", "msg-2", "https://example.jp/lp", sig), "other message")
	assert.False(t, Verify("other", "msg-1", "https://example.jp/lp", sig), "other secret")
	assert.False(t, Verify("s3cret", "msg-1", "https://example.jp/lp", ""), "missing signature")
	assert.False(t, Verify("", "msg-1", "https://example.jp/lp", Sign("", "msg-1", "https://example.jp/lp")), "no secret")
}

func TestOpenURL(t *testing.T) {
	l := Links{BaseURL: "https://t.example.jp"}
	assert.True(t, l.Enabled())
	assert.Equal(t, "https://t.example.jp/t/o/msg-1", l.OpenURL("msg-1"))
	assert.False(t, Links{}.Enabled())
}
