package controller

import (
	"net/http"

	"github.com/unclebandit/campaign-dispatch/internal/service"
)

type templateRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Subject  string `json:"subject" validate:"required,max=998"`
	Body     string `json:"body" validate:"required"`
	Category string `json:"category" validate:"max=100"`
}

func (t templateRequest) input() service.TemplateInput {
	return service.TemplateInput{Name: t.Name, Subject: t.Subject, Body: t.Body, Category: t.Category}
}

func (a *API) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var body templateRequest
	if err := a.decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	tmpl, err := a.Service.CreateTemplate(r.Context(), body.input())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

func (a *API) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := a.Service.ListTemplates(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": templates})
}

func (a *API) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	tmpl, err := a.Service.GetTemplate(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (a *API) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var body templateRequest
	if err := a.decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	tmpl, err := a.Service.UpdateTemplate(r.Context(), id, body.input())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (a *API) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.Service.DeleteTemplate(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
