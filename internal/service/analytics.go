package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/metrics"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

// Analytics derives campaign statistics from delivery records and engagement
// events. Figures are always recomputed from the store, so applying the same
// record twice has no effect.
type Analytics struct {
	Campaigns   repository.CampaignRepository
	Deliveries  repository.DeliveryRepository
	Engagements repository.EngagementRepository
	Location    *time.Location
	Now         func() time.Time
	Log         zerolog.Logger
}

func (a *Analytics) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Analytics) loc() *time.Location {
	if a.Location != nil {
		return a.Location
	}
	return time.UTC
}

// RecordDelivery refreshes the counters of the record's campaign.
func (a *Analytics) RecordDelivery(ctx context.Context, rec model.DeliveryRecord) error {
	return a.refresh(ctx, rec.CampaignID)
}

// RecordEngagement stores an open or click. The recipient must have been
// sent a message by the campaign.
func (a *Analytics) RecordEngagement(ctx context.Context, ev model.EngagementEvent) error {
	if !ev.Kind.Valid() {
		return appErrors.NewValidation("kind", "unknown engagement kind %q", ev.Kind)
	}
	rec, err := a.Deliveries.Get(ctx, ev.CampaignID, ev.RecipientID)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return appErrors.NewValidation("recipient_id", "recipient %d was not sent campaign %d", ev.RecipientID, ev.CampaignID)
		}
		return err
	}
	if rec.Outcome != model.OutcomeSent {
		return appErrors.NewValidation("recipient_id", "recipient %d was not sent campaign %d", ev.RecipientID, ev.CampaignID)
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = a.now()
	}
	if err := a.Engagements.Create(ctx, &ev); err != nil {
		return fmt.Errorf("store engagement: %w", err)
	}
	metrics.IncEngagement(string(ev.Kind))
	return a.refresh(ctx, ev.CampaignID)
}

// StatsFor returns the current statistics of one campaign.
func (a *Analytics) StatsFor(ctx context.Context, campaignID int64) (model.CampaignStats, error) {
	c, err := a.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return model.CampaignStats{}, err
	}
	outcomes, err := a.Deliveries.CountByOutcome(ctx, campaignID)
	if err != nil {
		return model.CampaignStats{}, err
	}
	opens, err := a.Engagements.CountDistinctRecipients(ctx, campaignID, model.EngagementOpen)
	if err != nil {
		return model.CampaignStats{}, err
	}
	clicks, err := a.Engagements.CountDistinctRecipients(ctx, campaignID, model.EngagementClick)
	if err != nil {
		return model.CampaignStats{}, err
	}

	st := model.CampaignStats{
		CampaignID:   campaignID,
		TargetCount:  c.TargetCount,
		SentCount:    outcomes[model.OutcomeSent],
		FailedCount:  outcomes[model.OutcomeFailed],
		BouncedCount: outcomes[model.OutcomeBounced],
		OpenCount:    min(opens, outcomes[model.OutcomeSent]),
		ClickCount:   clicks,
	}
	st.OpenRate = Rate(st.OpenCount, st.SentCount)
	st.ClickRate = Rate(st.ClickCount, st.SentCount)
	return st, nil
}

// StatsAcross sums StatsFor over the distinct ids given.
func (a *Analytics) StatsAcross(ctx context.Context, campaignIDs []int64) (model.StatsTotals, error) {
	totals := model.StatsTotals{}
	seen := map[int64]struct{}{}
	for _, id := range campaignIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		st, err := a.StatsFor(ctx, id)
		if err != nil {
			return model.StatsTotals{}, err
		}
		totals.Campaigns++
		totals.TargetCount += st.TargetCount
		totals.SentCount += st.SentCount
		totals.FailedCount += st.FailedCount
		totals.BouncedCount += st.BouncedCount
		totals.OpenCount += st.OpenCount
		totals.ClickCount += st.ClickCount
	}
	totals.OpenRate = Rate(totals.OpenCount, totals.SentCount)
	totals.ClickRate = Rate(totals.ClickCount, totals.SentCount)
	return totals, nil
}

// Overview totals every campaign that ever reached sending.
func (a *Analytics) Overview(ctx context.Context) (model.StatsTotals, error) {
	ids := []int64{}
	for _, status := range []model.CampaignStatus{model.StatusSending, model.StatusCompleted, model.StatusFailed} {
		campaigns, err := a.Campaigns.ListByStatus(ctx, status)
		if err != nil {
			return model.StatsTotals{}, err
		}
		for _, c := range campaigns {
			ids = append(ids, c.ID)
		}
	}
	return a.StatsAcross(ctx, ids)
}

// DailySeries returns one point per calendar day from `from` through `to`,
// both inclusive, in the configured zone.
func (a *Analytics) DailySeries(ctx context.Context, from, to time.Time) ([]model.DailyStat, error) {
	loc := a.loc()
	start := startOfDay(from, loc)
	end := startOfDay(to, loc).AddDate(0, 0, 1)
	if !start.Before(end) {
		return nil, appErrors.NewValidation("from", "from must not be after to")
	}
	if end.Sub(start) > 366*24*time.Hour {
		return nil, appErrors.NewValidation("to", "range is limited to one year")
	}

	sent, err := a.Deliveries.CountSentByDay(ctx, start, end, loc)
	if err != nil {
		return nil, err
	}
	opened, err := a.Engagements.CountDistinctByDay(ctx, model.EngagementOpen, start, end, loc)
	if err != nil {
		return nil, err
	}
	clicked, err := a.Engagements.CountDistinctByDay(ctx, model.EngagementClick, start, end, loc)
	if err != nil {
		return nil, err
	}

	series := []model.DailyStat{}
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		key := repository.DayKey(day, loc)
		series = append(series, model.DailyStat{Date: day, Sent: sent[key], Opened: opened[key], Clicked: clicked[key]})
	}
	return series, nil
}

func (a *Analytics) refresh(ctx context.Context, campaignID int64) error {
	st, err := a.StatsFor(ctx, campaignID)
	if err != nil {
		return err
	}
	counters := model.Counters{
		Sent:    st.SentCount,
		Failed:  st.FailedCount,
		Bounced: st.BouncedCount,
		Opened:  st.OpenCount,
		Clicked: st.ClickCount,
	}
	if err := a.Campaigns.UpdateCounters(ctx, campaignID, counters); err != nil {
		return fmt.Errorf("update counters: %w", err)
	}
	return nil
}

// Rate is count/sent as a percentage capped at 100, and 0 when nothing was sent.
func Rate(count, sent int) float64 {
	if sent <= 0 {
		return 0
	}
	return min(100, float64(count)/float64(sent)*100)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
