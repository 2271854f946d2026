// internal/service/campaign_service.go
package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
	"github.com/unclebandit/campaign-dispatch/internal/quota"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
	"github.com/unclebandit/campaign-dispatch/internal/transport"
)

// Deps are the collaborators needed to assemble a CampaignService.
type Deps struct {
	Store       *repository.Store
	Quota       *quota.Guard
	Sender      transport.Sender
	Queue       queue.Queue
	Topic       string
	Policy      RetryPolicy
	SendTimeout time.Duration
	Location    *time.Location
	Now         func() time.Time
	Sleep       func(ctx context.Context, d time.Duration) error
	Log         zerolog.Logger
}

// CampaignService is the entry point used by the HTTP layer and the workers.
type CampaignService struct {
	Store      *repository.Store
	Engine     *TemplateEngine
	Selector   *RecipientSelector
	Scheduler  *Scheduler
	Dispatcher *Dispatcher
	Analytics  *Analytics
	Quota      *quota.Guard
	Log        zerolog.Logger
}

type CampaignDetails struct {
	*model.Campaign
	Stats model.CampaignStats `json:"stats"`
}

func NewCampaignService(d Deps) *CampaignService {
	if d.Now == nil {
		d.Now = time.Now
	}
	engine := NewTemplateEngine()
	selector := NewRecipientSelector(d.Store.Companies)
	analytics := &Analytics{
		Campaigns:   d.Store.Campaigns,
		Deliveries:  d.Store.Deliveries,
		Engagements: d.Store.Engagements,
		Location:    d.Location,
		Now:         d.Now,
		Log:         d.Log.With().Str("component", "analytics").Logger(),
	}
	scheduler := &Scheduler{
		Campaigns: d.Store.Campaigns,
		Templates: d.Store.Templates,
		Selector:  selector,
		Engine:    engine,
		Queue:     d.Queue,
		Topic:     d.Topic,
		Now:       d.Now,
		Log:       d.Log.With().Str("component", "scheduler").Logger(),
	}
	dispatcher := (&Dispatcher{
		Campaigns:   d.Store.Campaigns,
		Deliveries:  d.Store.Deliveries,
		Selector:    selector,
		Engine:      engine,
		Quota:       d.Quota,
		Sender:      d.Sender,
		Scheduler:   scheduler,
		Analytics:   analytics,
		Locks:       d.Store.Locks,
		Policy:      d.Policy,
		SendTimeout: d.SendTimeout,
		Sleep:       d.Sleep,
		Now:         d.Now,
		Log:         d.Log.With().Str("component", "dispatcher").Logger(),
	}).Init()

	return &CampaignService{
		Store:      d.Store,
		Engine:     engine,
		Selector:   selector,
		Scheduler:  scheduler,
		Dispatcher: dispatcher,
		Analytics:  analytics,
		Quota:      d.Quota,
		Log:        d.Log,
	}
}

// ====================== Campaigns ======================

func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	return s.Scheduler.Create(ctx, in)
}

func (s *CampaignService) SubmitCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	return s.Scheduler.Submit(ctx, id)
}

func (s *CampaignService) CancelCampaign(ctx context.Context, id int64) (CancelResult, error) {
	return s.Scheduler.Cancel(ctx, id)
}

// GetCampaignDetails returns a campaign together with its live statistics.
func (s *CampaignService) GetCampaignDetails(ctx context.Context, id int64) (*CampaignDetails, error) {
	c, err := s.Store.Campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := s.Analytics.StatsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: c, Stats: st}, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]*model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	st := model.CampaignStatus(status)
	if status != "" && !st.Valid() {
		return nil, nil, appErrors.NewValidation("status", "unknown status %q", status)
	}

	campaigns, total, err := s.Store.Campaigns.List(ctx, model.CampaignFilter{
		Status: st,
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
	})
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

// Preview renders the campaign's message for one recipient without sending.
func (s *CampaignService) Preview(ctx context.Context, campaignID, recipientID int64) (Rendered, error) {
	c, err := s.Store.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return Rendered{}, err
	}
	recipients, err := s.Selector.ByIDs(ctx, []int64{recipientID})
	if err != nil {
		return Rendered{}, err
	}
	company, ok := recipients[recipientID]
	if !ok {
		return Rendered{}, &appErrors.NotFoundError{Entity: "company", ID: recipientID}
	}
	return s.Engine.Render(c.Subject, c.Body, company, c.Variables)
}

// ====================== Analytics ======================

func (s *CampaignService) GetCampaignStats(ctx context.Context, id int64) (model.CampaignStats, error) {
	return s.Analytics.StatsFor(ctx, id)
}

func (s *CampaignService) StatsAcross(ctx context.Context, ids []int64) (model.StatsTotals, error) {
	return s.Analytics.StatsAcross(ctx, ids)
}

func (s *CampaignService) RecordEngagement(ctx context.Context, campaignID, recipientID int64, kind model.EngagementKind, at time.Time) error {
	return s.Analytics.RecordEngagement(ctx, model.EngagementEvent{
		CampaignID:  campaignID,
		RecipientID: recipientID,
		Kind:        kind,
		OccurredAt:  at,
	})
}

// RecordEngagementByMessage resolves a tracking token to its delivery and
// records the event against it.
func (s *CampaignService) RecordEngagementByMessage(ctx context.Context, messageID string, kind model.EngagementKind, at time.Time) error {
	rec, err := s.Store.Deliveries.GetByMessageID(ctx, messageID)
	if err != nil {
		return err
	}
	return s.RecordEngagement(ctx, rec.CampaignID, rec.RecipientID, kind, at)
}

func (s *CampaignService) Overview(ctx context.Context) (model.StatsTotals, error) {
	return s.Analytics.Overview(ctx)
}

func (s *CampaignService) DailySeries(ctx context.Context, from, to time.Time) ([]model.DailyStat, error) {
	return s.Analytics.DailySeries(ctx, from, to)
}

func (s *CampaignService) QuotaStatus(ctx context.Context) (quota.Status, error) {
	return s.Quota.Status(ctx)
}

// ====================== Templates ======================

// TemplateInput carries the editable fields of a template.
type TemplateInput struct {
	Name     string
	Subject  string
	Body     string
	Category string
}

func (s *CampaignService) prepareTemplate(t *model.Template, in TemplateInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return appErrors.NewValidation("name", "template name is required")
	}
	if err := s.Engine.Validate(in.Subject, in.Body); err != nil {
		return err
	}
	t.Name = name
	t.Subject = in.Subject
	t.Body = in.Body
	t.Category = strings.TrimSpace(in.Category)
	t.Placeholders = s.Engine.Placeholders(in.Subject, in.Body)
	return nil
}

func (s *CampaignService) CreateTemplate(ctx context.Context, in TemplateInput) (*model.Template, error) {
	t := &model.Template{}
	if err := s.prepareTemplate(t, in); err != nil {
		return nil, err
	}
	if err := s.Store.Templates.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTemplate edits a template in place. Campaigns created from it keep
// their own copy of subject and body.
func (s *CampaignService) UpdateTemplate(ctx context.Context, id int64, in TemplateInput) (*model.Template, error) {
	t, err := s.Store.Templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.prepareTemplate(t, in); err != nil {
		return nil, err
	}
	if err := s.Store.Templates.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *CampaignService) GetTemplate(ctx context.Context, id int64) (*model.Template, error) {
	return s.Store.Templates.GetByID(ctx, id)
}

func (s *CampaignService) ListTemplates(ctx context.Context) ([]*model.Template, error) {
	return s.Store.Templates.List(ctx)
}

func (s *CampaignService) DeleteTemplate(ctx context.Context, id int64) error {
	return s.Store.Templates.Delete(ctx, id)
}
