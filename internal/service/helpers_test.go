package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
	"github.com/unclebandit/campaign-dispatch/internal/quota"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
	"github.com/unclebandit/campaign-dispatch/internal/transport"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recordingQueue keeps published jobs instead of delivering them.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (q *recordingQueue) Publish(_ context.Context, _ string, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Subscribe(context.Context, string, queue.Handler) error { return nil }
func (q *recordingQueue) Close() error                                           { return nil }

func (q *recordingQueue) Jobs() []queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Job(nil), q.jobs...)
}

// fakeSender replays scripted errors per address and counts every call.
type fakeSender struct {
	mu     sync.Mutex
	script map[string][]error
	calls  map[string]int
	sent   []transport.Message
	delay  time.Duration
	// gate, when set, runs before each send outside the lock.
	gate   func(addr string)
}

func newFakeSender() *fakeSender {
	return &fakeSender{script: map[string][]error{}, calls: map[string]int{}}
}

// Fail makes the next sends to addr return errs in order.
func (s *fakeSender) Fail(addr string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script[addr] = append(s.script[addr], errs...)
}

func (s *fakeSender) Send(ctx context.Context, msg transport.Message) error {
	if s.gate != nil {
		s.gate(msg.To)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[msg.To]++
	if queued := s.script[msg.To]; len(queued) > 0 {
		s.script[msg.To] = queued[1:]
		if queued[0] != nil {
			return queued[0]
		}
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) Calls(addr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[addr]
}

func (s *fakeSender) Delivered() []transport.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Message(nil), s.sent...)
}

type fixture struct {
	svc    *CampaignService
	store  *repository.Store
	dir    *repository.MemoryDirectory
	sender *fakeSender
	queue  *recordingQueue
	clock  *testClock
	guard  *quota.Guard

	sleepMu sync.Mutex
	sleeps  []time.Duration
}

var baseTime = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func companies() []model.Company {
	return []model.Company{
		{ID: 1, Name: "東京建設株式会社", Email: "info@tokyo-kensetsu.example.jp", Industry: "建設", Region: "東京"},
		{ID: 2, Name: "大阪商事", Email: "sales@osaka-shoji.example.jp", Industry: "商社", Region: "大阪"},
		{ID: 3, Name: "ABC物流", Email: "contact@abc-logi.example.jp", Industry: "物流", Region: "東京"},
		{ID: 4, Name: "名古屋製作所", Email: "hello@nagoya-ss.example.jp", Industry: "製造", Region: "愛知"},
	}
}

func newFixture(t *testing.T, dailyLimit int) *fixture {
	t.Helper()
	f := &fixture{
		dir:    repository.NewMemoryDirectory(companies()...),
		sender: newFakeSender(),
		queue:  &recordingQueue{},
		clock:  &testClock{t: baseTime},
	}
	f.store = repository.NewMemoryStore(f.dir)
	f.guard = quota.NewGuard(quota.NewMemoryStore(), dailyLimit, quota.WithClock(f.clock.Now))
	f.svc = f.newService()
	return f
}

// newService builds a service over the fixture's store, quota and sender, as
// a second process sharing the same database would.
func (f *fixture) newService() *CampaignService {
	return NewCampaignService(Deps{
		Store:       f.store,
		Quota:       f.guard,
		Sender:      f.sender,
		Queue:       f.queue,
		Topic:       "campaign_dispatch",
		Policy:      DefaultRetryPolicy(),
		SendTimeout: time.Second,
		Now:         f.clock.Now,
		Sleep: func(_ context.Context, d time.Duration) error {
			f.sleepMu.Lock()
			f.sleeps = append(f.sleeps, d)
			f.sleepMu.Unlock()
			return nil
		},
		Log: logger.Nop(),
	})
}

func (f *fixture) template(t *testing.T) *model.Template {
	t.Helper()
	tmpl, err := f.svc.CreateTemplate(context.Background(), TemplateInput{
		Name:     "ご案内",
		Subject:  "{name} 御中 新サービスのご案内",
		Body:     "{name} 御中\n\n{region}エリアの皆様へ {offer} をご案内します。\n{name} ご担当者様",
		Category: "営業",
	})
	require.NoError(t, err)
	return tmpl
}

// sendingCampaign creates and submits an immediate campaign to the given
// recipients, leaving it in sending.
func (f *fixture) sendingCampaign(t *testing.T, ids ...int64) *model.Campaign {
	t.Helper()
	ctx := context.Background()
	c, err := f.svc.CreateCampaign(ctx, CreateCampaignInput{
		Name:       "春のキャンペーン",
		TemplateID: f.template(t).ID,
		Target:     model.TargetSpec{CompanyIDs: ids},
		Variables:  map[string]string{"offer": "無料診断"},
	})
	require.NoError(t, err)
	c, err = f.svc.SubmitCampaign(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusSending, c.Status)
	return c
}

func (f *fixture) campaign(t *testing.T, id int64) *model.Campaign {
	t.Helper()
	c, err := f.store.Campaigns.GetByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (f *fixture) records(t *testing.T, id int64) []model.DeliveryRecord {
	t.Helper()
	recs, err := f.store.Deliveries.ListByCampaign(context.Background(), id)
	require.NoError(t, err)
	return recs
}

func (f *fixture) Sleeps() []time.Duration {
	f.sleepMu.Lock()
	defer f.sleepMu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}

func newDirectoryWithout(id int64) *repository.MemoryDirectory {
	d := repository.NewMemoryDirectory()
	for _, c := range companies() {
		if c.ID != id {
			d.Add(c)
		}
	}
	return d
}
