// internal/handler/tracking_handler.go
package handler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/tracking"
)

// EngagementRecorder is the part of the campaign service the tracking
// endpoints need.
type EngagementRecorder interface {
	RecordEngagementByMessage(ctx context.Context, messageID string, kind model.EngagementKind, at time.Time) error
}

// pixel is a transparent 1x1 GIF.
var pixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackingHandler serves the open pixel and click redirect embedded in
// outgoing mail.
type TrackingHandler struct {
	Recorder EngagementRecorder
	// Secret verifies click signatures. Without it no click is redirected.
	Secret   string
	Log      zerolog.Logger
	Now      func() time.Time
}

func NewTrackingHandler(rec EngagementRecorder, secret string, log zerolog.Logger) *TrackingHandler {
	return &TrackingHandler{
		Recorder: rec,
		Secret:   secret,
		Log:      log.With().Str("component", "tracking").Logger(),
		Now:      time.Now,
	}
}

// Routes mounts the tracking endpoints under /t.
func (h *TrackingHandler) Routes(r chi.Router) {
	r.Get("/t/o/{messageID}", h.Open)
	r.Get("/t/c/{messageID}", h.Click)
}

// Open always answers with the pixel; a mail client cannot act on errors.
func (h *TrackingHandler) Open(w http.ResponseWriter, r *http.Request) {
	h.record(r, model.EngagementOpen)

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(pixel)
}

// Click redirects to ?url= only when ?sig= proves the link was written into
// message messageID by this service. Unknown messages get a 404 even with a
// valid signature.
func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	raw := r.URL.Query().Get("url")
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		http.Error(w, "invalid redirect url", http.StatusBadRequest)
		return
	}
	if !tracking.Verify(h.Secret, messageID, raw, r.URL.Query().Get("sig")) {
		h.Log.Warn().Str("message_id", messageID).Str("url", raw).Msg("click with bad signature refused")
		http.Error(w, "invalid link signature", http.StatusForbidden)
		return
	}
	if err := h.Recorder.RecordEngagementByMessage(r.Context(), messageID, model.EngagementClick, h.Now()); err != nil {
		if appErrors.IsNotFound(err) {
			http.Error(w, "unknown message", http.StatusNotFound)
			return
		}
		// Signed links still redirect when recording fails.
		h.Log.Warn().Err(err).Str("message_id", messageID).Msg("click not recorded")
	}
	http.Redirect(w, r, raw, http.StatusFound)
}

func (h *TrackingHandler) record(r *http.Request, kind model.EngagementKind) {
	messageID := chi.URLParam(r, "messageID")
	if err := h.Recorder.RecordEngagementByMessage(r.Context(), messageID, kind, h.Now()); err != nil {
		h.Log.Warn().Err(err).Str("message_id", messageID).Str("kind", string(kind)).Msg("engagement not recorded")
	}
}
