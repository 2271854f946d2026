package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/metrics"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

// NewRouter mounts the JSON API on a chi router.
func NewRouter(svc *service.CampaignService, log zerolog.Logger) chi.Router {
	api := &API{Service: svc, Log: log.With().Str("component", "http").Logger(), validate: newValidator()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", api.CreateCampaign)
		r.Get("/", api.ListCampaigns)
		r.Post("/stats", api.StatsAcross)
		r.Get("/{id}", api.GetCampaignDetails)
		r.Post("/{id}/submit", api.SubmitCampaign)
		r.Post("/{id}/cancel", api.CancelCampaign)
		r.Get("/{id}/stats", api.GetCampaignStats)
		r.Post("/{id}/preview", api.Preview)
	})
	r.Route("/templates", func(r chi.Router) {
		r.Post("/", api.CreateTemplate)
		r.Get("/", api.ListTemplates)
		r.Get("/{id}", api.GetTemplate)
		r.Put("/{id}", api.UpdateTemplate)
		r.Delete("/{id}", api.DeleteTemplate)
	})
	r.Post("/engagements", api.RecordEngagement)
	r.Get("/quota", api.QuotaStatus)
	r.Get("/analytics/overview", api.Overview)
	r.Get("/analytics/daily", api.DailySeries)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// API holds the dependencies of the JSON handlers.
type API struct {
	Service  *service.CampaignService
	Log      zerolog.Logger
	validate *validator.Validate
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error       string `json:"error"`
	Field       string `json:"field,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// writeError maps the error taxonomy onto HTTP status codes.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case appErrors.IsValidation(err):
		status = http.StatusBadRequest
		var ve *appErrors.ValidationError
		var te *appErrors.TemplateError
		if errors.As(err, &ve) {
			resp.Field = ve.Field
		}
		if errors.As(err, &te) {
			resp.Placeholder = te.Placeholder
		}
	case appErrors.IsNotFound(err):
		status = http.StatusNotFound
	case appErrors.IsStateError(err):
		status = http.StatusConflict
	case appErrors.IsUnavailable(err):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		a.Log.Error().Err(err).Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into dst and runs the struct validation tags.
func (a *API) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return appErrors.NewValidation("", "invalid body: %v", err)
	}
	if err := a.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return appErrors.NewValidation(jsonName(fe), "failed on %q", fe.Tag())
		}
		return appErrors.NewValidation("", "%v", err)
	}
	return nil
}

// jsonName turns "createCampaignRequest.target.company_ids[0]" into "target.company_ids[0]".
func jsonName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.NewValidation("id", "invalid id %q", raw)
	}
	return id, nil
}

func queryInt(r *http.Request, key string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(key))
	return v
}
