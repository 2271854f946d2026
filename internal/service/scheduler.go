package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/metrics"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

// CreateCampaignInput carries the fields of a new campaign.
type CreateCampaignInput struct {
	Name        string
	TemplateID  int64
	Target      model.TargetSpec
	ScheduledAt *time.Time
	Variables   map[string]string
}

// CancelResult reports the outcome of a cancellation request. Ignored is set
// when the campaign was already sending.
type CancelResult struct {
	Campaign *model.Campaign `json:"campaign"`
	Ignored  bool            `json:"ignored"`
	Message  string          `json:"message,omitempty"`
}

const cancelIgnoredMessage = "cancellation ignored, campaign already sending"

// Scheduler owns every lifecycle transition of a campaign. All moves go
// through transition, which checks the table and applies a compare-and-set
// on the stored status.
type Scheduler struct {
	Campaigns repository.CampaignRepository
	Templates repository.TemplateRepository
	Selector  *RecipientSelector
	Engine    *TemplateEngine
	Queue     queue.Queue
	Topic     string
	Now       func() time.Time
	Log       zerolog.Logger
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create stores a draft campaign with a snapshot of the template patterns.
func (s *Scheduler) Create(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, appErrors.NewValidation("name", "campaign name is required")
	}
	if err := ValidateSpec(in.Target); err != nil {
		return nil, err
	}
	now := s.now()
	if in.ScheduledAt != nil && !in.ScheduledAt.After(now) {
		return nil, appErrors.NewValidation("scheduled_at", "scheduled time must be in the future")
	}
	tmpl, err := s.Templates.GetByID(ctx, in.TemplateID)
	if err != nil {
		return nil, err
	}

	c := &model.Campaign{
		Name:        name,
		TemplateID:  tmpl.ID,
		Subject:     tmpl.Subject,
		Body:        tmpl.Body,
		Variables:   in.Variables,
		Target:      in.Target,
		Status:      model.StatusDraft,
		ScheduledAt: in.ScheduledAt,
		CreatedAt:   now,
	}
	if err := s.Campaigns.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	s.Log.Info().Int64("campaign_id", c.ID).Str("name", c.Name).Msg("campaign created")
	return c, nil
}

// Submit moves a draft to scheduled after resolving its recipients and
// rendering the message for each of them. Campaigns that are already due
// are fired straight away.
func (s *Scheduler) Submit(ctx context.Context, id int64) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransition(model.StatusScheduled) {
		return nil, appErrors.NewInvalidTransition(string(c.Status), string(model.StatusScheduled))
	}

	recipients, err := s.Selector.Resolve(ctx, c.Target)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, appErrors.NewValidation("target", "no recipients match the targeting specification")
	}
	ids := make([]int64, 0, len(recipients))
	for _, r := range recipients {
		if _, err := s.Engine.Render(c.Subject, c.Body, r, c.Variables); err != nil {
			return nil, fmt.Errorf("recipient %d: %w", r.ID, err)
		}
		ids = append(ids, r.ID)
	}

	if err := s.transition(ctx, c, model.StatusChange{To: model.StatusScheduled, RecipientIDs: ids}); err != nil {
		return nil, err
	}
	if c.IsDue(s.now()) {
		if _, err := s.Fire(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return s.Campaigns.GetByID(ctx, id)
}

// Fire promotes a due scheduled campaign to sending and enqueues it. Firing a
// campaign that is already sending is a no-op. fired is false when nothing
// changed.
func (s *Scheduler) Fire(ctx context.Context, id int64) (fired bool, err error) {
	c, err := s.Campaigns.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if c.Status == model.StatusSending {
		return false, nil
	}
	if c.Status == model.StatusScheduled && !c.IsDue(s.now()) {
		return false, nil
	}
	if err := s.transition(ctx, c, model.StatusChange{To: model.StatusSending}); err != nil {
		// Lost the race to another firer.
		if appErrors.IsStateError(err) && c.Status == model.StatusSending {
			return false, nil
		}
		return false, err
	}
	if err := s.enqueue(ctx, c.ID); err != nil {
		// The campaign stays sending; the next sweep enqueues it again.
		s.Log.Error().Err(err).Int64("campaign_id", c.ID).Msg("enqueue dispatch failed")
	}
	return true, nil
}

// Cancel stops a draft or scheduled campaign. A sending campaign is left
// alone and the request is reported as ignored.
func (s *Scheduler) Cancel(ctx context.Context, id int64) (CancelResult, error) {
	for {
		c, err := s.Campaigns.GetByID(ctx, id)
		if err != nil {
			return CancelResult{}, err
		}
		if c.Status == model.StatusSending {
			return CancelResult{Campaign: c, Ignored: true, Message: cancelIgnoredMessage}, nil
		}
		prev := c.Status
		err = s.transition(ctx, c, model.StatusChange{To: model.StatusCancelled})
		if err == nil {
			return CancelResult{Campaign: c}, nil
		}
		// The status moved underneath us, e.g. the sweep fired it. Decide
		// again on the fresh state.
		var se *appErrors.CampaignStateError
		if errors.As(err, &se) && se.From != string(prev) {
			continue
		}
		return CancelResult{}, err
	}
}

// Complete marks a sending campaign as completed.
func (s *Scheduler) Complete(ctx context.Context, c *model.Campaign) error {
	return s.transition(ctx, c, model.StatusChange{To: model.StatusCompleted})
}

// Fail marks a sending campaign as failed with reason.
func (s *Scheduler) Fail(ctx context.Context, c *model.Campaign, reason string) error {
	return s.transition(ctx, c, model.StatusChange{To: model.StatusFailed, FailureReason: reason})
}

// transition validates c.Status -> change.To against the lifecycle table and
// applies it only if the stored status still equals c.Status. On success c
// reflects the new state. When the stored status has moved on, the returned
// error names the current state.
func (s *Scheduler) transition(ctx context.Context, c *model.Campaign, change model.StatusChange) error {
	from := c.Status
	if !from.CanTransition(change.To) {
		return appErrors.NewInvalidTransition(string(from), string(change.To))
	}
	change.From = from
	change.At = s.now()

	ok, err := s.Campaigns.Transition(ctx, c.ID, change)
	if err != nil {
		return fmt.Errorf("transition campaign %d: %w", c.ID, err)
	}
	if !ok {
		current, err := s.Campaigns.GetByID(ctx, c.ID)
		if err != nil {
			return err
		}
		*c = *current
		return appErrors.NewInvalidTransition(string(current.Status), string(change.To))
	}

	c.Status = change.To
	c.UpdatedAt = &change.At
	if change.RecipientIDs != nil {
		c.RecipientIDs = change.RecipientIDs
		c.TargetCount = len(change.RecipientIDs)
	}
	if change.FailureReason != "" {
		c.FailureReason = change.FailureReason
	}
	metrics.IncTransition(string(from), string(change.To))
	s.Log.Info().Int64("campaign_id", c.ID).Str("from", string(from)).Str("to", string(change.To)).Msg("campaign transition")
	return nil
}

func (s *Scheduler) enqueue(ctx context.Context, id int64) error {
	if s.Queue == nil {
		return nil
	}
	return s.Queue.Publish(ctx, s.Topic, queue.Job{CampaignID: id, EnqueuedAt: s.now()})
}

// Tick fires every due scheduled campaign and re-enqueues campaigns left in
// sending by an earlier run that stopped on quota or an outage.
func (s *Scheduler) Tick(ctx context.Context) (fired, resumed int, err error) {
	scheduled, err := s.Campaigns.ListByStatus(ctx, model.StatusScheduled)
	if err != nil {
		return 0, 0, err
	}
	now := s.now()
	justFired := map[int64]struct{}{}
	for _, c := range scheduled {
		if !c.IsDue(now) {
			continue
		}
		ok, err := s.Fire(ctx, c.ID)
		if err != nil {
			s.Log.Error().Err(err).Int64("campaign_id", c.ID).Msg("fire failed")
			continue
		}
		if ok {
			fired++
			justFired[c.ID] = struct{}{}
		}
	}

	sending, err := s.Campaigns.ListByStatus(ctx, model.StatusSending)
	if err != nil {
		return fired, 0, err
	}
	for _, c := range sending {
		if _, ok := justFired[c.ID]; ok {
			continue
		}
		if err := s.enqueue(ctx, c.ID); err != nil {
			s.Log.Error().Err(err).Int64("campaign_id", c.ID).Msg("resume enqueue failed")
			continue
		}
		resumed++
	}
	return fired, resumed, nil
}
