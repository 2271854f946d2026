package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/metrics"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/quota"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
	"github.com/unclebandit/campaign-dispatch/internal/transport"
)

// RetryPolicy bounds per-recipient send attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Factor: 2, MaxDelay: 30 * time.Second}
}

// Delay is the pause after failed attempt n (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DispatchResult summarises one dispatch run.
type DispatchResult struct {
	CampaignID     int64                `json:"campaign_id"`
	Status         model.CampaignStatus `json:"status"`
	Sent           int                  `json:"sent"`
	Failed         int                  `json:"failed"`
	Bounced        int                  `json:"bounced"`
	Skipped        int                  `json:"skipped"`
	QuotaExhausted bool                 `json:"quota_exhausted"`
	// AlreadyRunning is set when another run held the campaign lease and
	// this one did nothing.
	AlreadyRunning bool                 `json:"already_running,omitempty"`
}

func (r DispatchResult) processed() int { return r.Sent + r.Failed + r.Bounced }

// Dispatcher sends a sending campaign to its frozen recipient set, one
// recipient at a time in ascending id order. Runs for the same campaign never
// overlap; a run can stop early on quota or an outage and a later run picks
// up the recipients without a delivery record. The lease in Locks is shared
// by every process dispatching against the same store.
type Dispatcher struct {
	Campaigns  repository.CampaignRepository
	Deliveries repository.DeliveryRepository
	Selector   *RecipientSelector
	Engine     *TemplateEngine
	Quota      *quota.Guard
	Sender     transport.Sender
	Scheduler  *Scheduler
	Analytics  *Analytics
	Locks      repository.CampaignLocker

	Policy      RetryPolicy
	SendTimeout time.Duration
	// Sleep is replaced in tests to avoid real backoff.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
	Log   zerolog.Logger
}

// Init fills unset knobs with defaults. It must be called before the
// dispatcher is shared between goroutines.
func (d *Dispatcher) Init() *Dispatcher {
	if d.Locks == nil {
		d.Locks = repository.NewMemoryLocker()
	}
	if d.Policy.MaxAttempts < 1 {
		d.Policy = DefaultRetryPolicy()
	}
	if d.SendTimeout <= 0 {
		d.SendTimeout = 10 * time.Second
	}
	if d.Sleep == nil {
		d.Sleep = Sleep
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// errHalt marks infrastructure failures that end the run.
type errHalt struct{ err error }

func (e *errHalt) Error() string { return e.err.Error() }
func (e *errHalt) Unwrap() error { return e.err }

// Dispatch runs the campaign once. It returns an error only when the run
// halted on an infrastructure failure and the campaign is left sending. When
// another run holds the campaign it returns at once with AlreadyRunning set;
// the active run covers every pending recipient.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID int64) (DispatchResult, error) {
	started := time.Now()
	res := DispatchResult{CampaignID: campaignID}
	log := d.Log.With().Int64("campaign_id", campaignID).Logger()

	release, ok, err := d.Locks.TryLock(ctx, campaignID)
	if err != nil {
		return res, err
	}
	if !ok {
		res.AlreadyRunning = true
		log.Debug().Msg("campaign already being dispatched")
		metrics.ObserveDispatchRun("busy", time.Since(started).Seconds())
		return res, nil
	}
	defer release()

	c, err := d.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return res, err
	}
	res.Status = c.Status
	if c.Status != model.StatusSending {
		log.Debug().Str("status", string(c.Status)).Msg("campaign not sending, nothing to dispatch")
		metrics.ObserveDispatchRun("skipped", time.Since(started).Seconds())
		return res, nil
	}

	runErr := d.run(ctx, c, &res, log)

	var halt *errHalt
	switch {
	case errors.As(runErr, &halt):
		priorRecords := res.Skipped > 0
		if !priorRecords && res.processed() == 0 {
			reason := halt.err.Error()
			if err := d.Scheduler.Fail(ctx, c, reason); err != nil {
				return res, err
			}
			res.Status = c.Status
			log.Error().Err(halt.err).Msg("dispatch failed before any recipient was processed")
			metrics.ObserveDispatchRun("failed", time.Since(started).Seconds())
			return res, nil
		}
		log.Error().Err(halt.err).Int("processed", res.processed()).Msg("dispatch halted, will resume")
		metrics.ObserveDispatchRun("halted", time.Since(started).Seconds())
		return res, halt.err
	case runErr != nil:
		return res, runErr
	case res.QuotaExhausted:
		log.Info().Int("sent", res.Sent).Msg("daily quota exhausted, campaign stays sending")
		metrics.ObserveDispatchRun("quota_exhausted", time.Since(started).Seconds())
		return res, nil
	}

	if err := d.Scheduler.Complete(ctx, c); err != nil {
		return res, err
	}
	res.Status = c.Status
	log.Info().Int("sent", res.Sent).Int("failed", res.Failed).Int("bounced", res.Bounced).
		Int("skipped", res.Skipped).Msg("campaign completed")
	metrics.ObserveDispatchRun("completed", time.Since(started).Seconds())
	return res, nil
}

func (d *Dispatcher) run(ctx context.Context, c *model.Campaign, res *DispatchResult, log zerolog.Logger) error {
	existing, err := d.Deliveries.ListByCampaign(ctx, c.ID)
	if err != nil {
		return &errHalt{err: fmt.Errorf("load delivery records: %w", err)}
	}
	done := make(map[int64]struct{}, len(existing))
	for _, rec := range existing {
		done[rec.RecipientID] = struct{}{}
	}

	pending := make([]int64, 0, len(c.RecipientIDs))
	for _, id := range c.RecipientIDs {
		if _, ok := done[id]; ok {
			res.Skipped++
			continue
		}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		return nil
	}

	recipients, err := d.Selector.ByIDs(ctx, pending)
	if err != nil {
		return &errHalt{err: err}
	}

	for _, id := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		admitted, err := d.Quota.Admit(ctx, 1)
		if err != nil {
			return &errHalt{err: err}
		}
		if !admitted {
			metrics.IncQuotaDenied()
			res.QuotaExhausted = true
			return nil
		}

		rec, err := d.deliver(ctx, c, id, recipients, log)
		if err != nil {
			return err
		}
		inserted, err := d.Deliveries.Create(ctx, rec)
		if err != nil {
			return &errHalt{err: fmt.Errorf("store delivery record: %w", err)}
		}
		if !inserted {
			res.Skipped++
			continue
		}
		switch rec.Outcome {
		case model.OutcomeSent:
			res.Sent++
		case model.OutcomeBounced:
			res.Bounced++
		default:
			res.Failed++
		}
		metrics.IncDelivery(string(rec.Outcome))
		if err := d.Analytics.RecordDelivery(ctx, *rec); err != nil {
			log.Warn().Err(err).Msg("refresh counters failed")
		}
	}
	return nil
}

// deliver renders and sends one message with retries. The quota unit has
// already been taken; it is handed back when nothing reached the transport.
func (d *Dispatcher) deliver(ctx context.Context, c *model.Campaign, recipientID int64, recipients map[int64]model.Company, log zerolog.Logger) (*model.DeliveryRecord, error) {
	rec := &model.DeliveryRecord{
		CampaignID:  c.ID,
		RecipientID: recipientID,
		MessageID:   uuid.NewString(),
		Outcome:     model.OutcomeFailed,
	}
	log = log.With().Int64("recipient_id", recipientID).Logger()

	company, ok := recipients[recipientID]
	if !ok {
		d.refund(ctx, log)
		rec.LastError = "recipient no longer in directory"
		rec.CreatedAt = d.Now()
		return rec, nil
	}
	rendered, err := d.Engine.Render(c.Subject, c.Body, company, c.Variables)
	if err != nil {
		d.refund(ctx, log)
		rec.LastError = err.Error()
		rec.CreatedAt = d.Now()
		log.Debug().Err(err).Msg("render failed")
		return rec, nil
	}

	msg := transport.Message{
		CampaignID:  c.ID,
		RecipientID: recipientID,
		MessageID:   rec.MessageID,
		To:          company.Email,
		ToName:      company.Name,
		Subject:     rendered.Subject,
		Body:        rendered.Body,
	}
	for attempt := 1; ; attempt++ {
		rec.Attempts = attempt
		err := d.send(ctx, msg)
		if err == nil {
			metrics.IncSendAttempt("ok")
			rec.Outcome = model.OutcomeSent
			rec.LastError = ""
			break
		}
		rec.LastError = err.Error()

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, appErrors.ErrTransportUnavailable) {
			metrics.IncSendAttempt("unavailable")
			if attempt == 1 {
				d.refund(ctx, log)
			}
			return nil, &errHalt{err: err}
		}
		var fatal *appErrors.FatalDeliveryError
		if errors.As(err, &fatal) {
			if fatal.Bounced {
				metrics.IncSendAttempt("bounced")
				rec.Outcome = model.OutcomeBounced
			} else {
				metrics.IncSendAttempt("fatal")
			}
			break
		}

		metrics.IncSendAttempt("transient")
		if attempt >= d.Policy.MaxAttempts {
			break
		}
		delay := d.Policy.Delay(attempt)
		log.Debug().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("transient send failure")
		if err := d.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	rec.CreatedAt = d.Now()
	log.Debug().Str("outcome", string(rec.Outcome)).Int("attempts", rec.Attempts).Msg("recipient processed")
	return rec, nil
}

// send makes one bounded transport call. A timeout is reported as transient.
func (d *Dispatcher) send(ctx context.Context, msg transport.Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.SendTimeout)
	defer cancel()
	err := d.Sender.Send(sendCtx, msg)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !appErrors.IsTransient(err) {
		return &appErrors.TransientDeliveryError{Err: err}
	}
	return err
}

func (d *Dispatcher) refund(ctx context.Context, log zerolog.Logger) {
	if err := d.Quota.Release(ctx, 1); err != nil {
		log.Warn().Err(err).Msg("release quota unit failed")
	}
}
