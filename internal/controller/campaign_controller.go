// internal/controller/campaign_controller.go
package controller

import (
	"net/http"
	"time"

	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

type targetRequest struct {
	CompanyIDs []int64 `json:"company_ids" validate:"omitempty,max=10000,dive,gt=0"`
	Region     string  `json:"region" validate:"max=100"`
	Industry   string  `json:"industry" validate:"max=100"`
	NameQuery  string  `json:"name_query" validate:"max=200"`
}

type createCampaignRequest struct {
	Name        string            `json:"name" validate:"required,max=200"`
	TemplateID  int64             `json:"template_id" validate:"required,gt=0"`
	Target      targetRequest     `json:"target"`
	ScheduledAt *time.Time        `json:"scheduled_at"`
	Variables   map[string]string `json:"variables" validate:"omitempty,dive,keys,required,max=100,endkeys"`
}

func (a *API) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body createCampaignRequest
	if err := a.decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}

	campaign, err := a.Service.CreateCampaign(r.Context(), service.CreateCampaignInput{
		Name:       body.Name,
		TemplateID: body.TemplateID,
		Target: model.TargetSpec{
			CompanyIDs: body.Target.CompanyIDs,
			Region:     body.Target.Region,
			Industry:   body.Target.Industry,
			NameQuery:  body.Target.NameQuery,
		},
		ScheduledAt: body.ScheduledAt,
		Variables:   body.Variables,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (a *API) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page")
	pageSize := queryInt(r, "page_size")
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := a.Service.ListCampaigns(r.Context(), page, pageSize, status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (a *API) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	details, err := a.Service.GetCampaignDetails(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (a *API) SubmitCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	campaign, err := a.Service.SubmitCampaign(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

// CancelCampaign answers 200 with ignored=true when the campaign is already sending.
func (a *API) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.Service.CancelCampaign(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) GetCampaignStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	stats, err := a.Service.GetCampaignStats(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type previewRequest struct {
	RecipientID int64 `json:"recipient_id" validate:"required,gt=0"`
}

func (a *API) Preview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var body previewRequest
	if err := a.decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}

	rendered, err := a.Service.Preview(r.Context(), id, body.RecipientID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaign_id":  id,
		"recipient_id": body.RecipientID,
		"subject":      rendered.Subject,
		"body":         rendered.Body,
	})
}
