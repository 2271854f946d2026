package controller

import (
	"net/http"
	"time"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type statsAcrossRequest struct {
	CampaignIDs []int64 `json:"campaign_ids" validate:"required,min=1,dive,gt=0"`
}

func (a *API) StatsAcross(w http.ResponseWriter, r *http.Request) {
	var body statsAcrossRequest
	if err := a.decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	totals, err := a.Service.StatsAcross(r.Context(), body.CampaignIDs)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

type engagementRequest struct {
	CampaignID  int64      `json:"campaign_id" validate:"required,gt=0"`
	RecipientID int64      `json:"recipient_id" validate:"required,gt=0"`
	Kind        string     `json:"kind" validate:"required,oneof=open click"`
	OccurredAt  *time.Time `json:"occurred_at"`
}

func (a *API) RecordEngagement(w http.ResponseWriter, r *http.Request) {
	var body engagementRequest
	if err := a.decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	var at time.Time
	if body.OccurredAt != nil {
		at = *body.OccurredAt
	}
	err := a.Service.RecordEngagement(r.Context(), body.CampaignID, body.RecipientID, model.EngagementKind(body.Kind), at)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (a *API) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.Service.QuotaStatus(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) Overview(w http.ResponseWriter, r *http.Request) {
	totals, err := a.Service.Overview(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// DailySeries serves ?from=2006-01-02&to=2006-01-02; both default to the last 7 days.
func (a *API) DailySeries(w http.ResponseWriter, r *http.Request) {
	loc := a.Service.Analytics.Location
	if loc == nil {
		loc = time.UTC
	}
	now := a.Service.Analytics.Now
	if now == nil {
		now = time.Now
	}
	to := now().In(loc)
	from := to.AddDate(0, 0, -6)

	q := r.URL.Query()
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = time.ParseInLocation(time.DateOnly, v, loc); err != nil {
			a.writeError(w, r, appErrors.NewValidation("from", "expected YYYY-MM-DD, got %q", v))
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.ParseInLocation(time.DateOnly, v, loc); err != nil {
			a.writeError(w, r, appErrors.NewValidation("to", "expected YYYY-MM-DD, got %q", v))
			return
		}
	}

	series, err := a.Service.DailySeries(r.Context(), from, to)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": series})
}
