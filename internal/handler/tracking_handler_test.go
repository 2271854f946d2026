package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/tracking"
)

const testSecret = "s3cret"

type recorded struct {
	messageID string
	kind      model.EngagementKind
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recorded
	err    error
}

func (f *fakeRecorder) RecordEngagementByMessage(_ context.Context, messageID string, kind model.EngagementKind, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recorded{messageID, kind})
	return f.err
}

func newRouter(rec EngagementRecorder) http.Handler {
	r := chi.NewRouter()
	NewTrackingHandler(rec, testSecret, logger.Nop()).Routes(r)
	return r
}

func TestOpen_ServesPixelAndRecords(t *testing.T) {
	rec := &fakeRecorder{}
	w := httptest.NewRecorder()
	newRouter(rec).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t/o/abc-123", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
	assert.Equal(t, pixel, w.Body.Bytes())
	require.Len(t, rec.events, 1)
	assert.Equal(t, recorded{"abc-123", model.EngagementOpen}, rec.events[0])
}

func TestOpen_UnknownMessageStillServesPixel(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("message not found")}
	w := httptest.NewRecorder()
	newRouter(rec).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t/o/missing", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pixel, w.Body.Bytes())
}

func clickPath(messageID, target, sig string) string {
	return "/t/c/" + messageID + "?url=" + url.QueryEscape(target) + "&sig=" + url.QueryEscape(sig)
}

func TestClick_RedirectsAndRecords(t *testing.T) {
	rec := &fakeRecorder{}
	w := httptest.NewRecorder()
	links := tracking.Links{BaseURL: "https://t.example.jp", Secret: testSecret}
	u, err := url.Parse(links.ClickURL("abc-123", "https://example.jp/lp?a=1"))
	require.NoError(t, err)
	newRouter(rec).ServeHTTP(w, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.jp/lp?a=1", w.Header().Get("Location"))
	require.Len(t, rec.events, 1)
	assert.Equal(t, recorded{"abc-123", model.EngagementClick}, rec.events[0])
}

func TestClick_RejectsUnsafeTargets(t *testing.T) {
	for _, target := range []string{"", "javascript:alert(1)", "/relative", "ftp://example.jp/x"} {
		rec := &fakeRecorder{}
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, clickPath("abc", target, tracking.Sign(testSecret, "abc", target)), nil)
		newRouter(rec).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Empty(t, rec.events, target)
	}
}

func TestClick_RefusesUnsignedOrForeignTargets(t *testing.T) {
	evil := "https://evil.example.com/phish"
	cases := map[string]string{
		"unsigned":             clickPath("abc", evil, ""),
		"signature for other":  clickPath("abc", evil, tracking.Sign(testSecret, "abc", "https://example.jp/lp")),
		"signed for other msg": clickPath("abc", evil, tracking.Sign(testSecret, "xyz", evil)),
		"wrong secret":         clickPath("abc", evil, tracking.Sign("guess", "abc", evil)),
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			rec := &fakeRecorder{}
			w := httptest.NewRecorder()
			newRouter(rec).ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Empty(t, w.Header().Get("Location"))
			assert.Empty(t, rec.events)
		})
	}
}

func TestClick_UnknownMessageIsNotRedirected(t *testing.T) {
	rec := &fakeRecorder{err: &appErrors.NotFoundError{Entity: "message missing"}}
	w := httptest.NewRecorder()
	target := "https://example.jp/lp"
	newRouter(rec).ServeHTTP(w, httptest.NewRequest(http.MethodGet, clickPath("missing", target, tracking.Sign(testSecret, "missing", target)), nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

func TestClick_StorageErrorStillRedirectsSignedLink(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("connection reset")}
	w := httptest.NewRecorder()
	target := "https://example.jp/lp"
	newRouter(rec).ServeHTTP(w, httptest.NewRequest(http.MethodGet, clickPath("abc", target, tracking.Sign(testSecret, "abc", target)), nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, target, w.Header().Get("Location"))
}

func TestClick_NoSecretRedirectsNothing(t *testing.T) {
	r := chi.NewRouter()
	NewTrackingHandler(&fakeRecorder{}, "", logger.Nop()).Routes(r)
	target := "https://example.jp/lp"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, clickPath("abc", target, tracking.Sign("", "abc", target)), nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
}
