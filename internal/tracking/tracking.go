// Package tracking builds the open and click URLs embedded in outgoing mail
// and verifies the signature carried by click-through links.
package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
)

// Links builds tracking URLs under BaseURL. The zero value builds none.
type Links struct {
	BaseURL string
	Secret  string
}

func (l Links) Enabled() bool { return l.BaseURL != "" }

// OpenURL is the pixel address for messageID.
func (l Links) OpenURL(messageID string) string {
	return l.BaseURL + "/t/o/" + url.PathEscape(messageID)
}

// ClickURL wraps target in a signed redirect through the click endpoint.
func (l Links) ClickURL(messageID, target string) string {
	q := url.Values{}
	q.Set("url", target)
	q.Set("sig", Sign(l.Secret, messageID, target))
	return l.BaseURL + "/t/c/" + url.PathEscape(messageID) + "?" + q.Encode()
}

// Sign returns the HMAC-SHA256 of messageID and target under secret.
func Sign(secret, messageID, target string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte{'|'})
	mac.Write([]byte(target))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig was produced by Sign for the same message and
// target. An empty secret verifies nothing.
func Verify(secret, messageID, target, sig string) bool {
	if secret == "" || sig == "" {
		return false
	}
	want := Sign(secret, messageID, target)
	return hmac.Equal([]byte(want), []byte(sig))
}
