package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// NewMemoryStore returns a Store kept entirely in process memory. It backs
// local runs with STORE_BACKEND=memory and the test suites.
func NewMemoryStore(directory *MemoryDirectory) *Store {
	if directory == nil {
		directory = NewMemoryDirectory()
	}
	return &Store{
		Campaigns:   NewMemoryCampaigns(),
		Templates:   NewMemoryTemplates(),
		Companies:   directory,
		Deliveries:  NewMemoryDeliveries(),
		Engagements: NewMemoryEngagements(),
		Locks:       NewMemoryLocker(),
	}
}

// ====================== Campaigns ======================

type MemoryCampaigns struct {
	mu        sync.Mutex
	nextID    int64
	campaigns map[int64]*model.Campaign
}

func NewMemoryCampaigns() *MemoryCampaigns {
	return &MemoryCampaigns{campaigns: make(map[int64]*model.Campaign)}
}

func (m *MemoryCampaigns) Create(_ context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (m *MemoryCampaigns) GetByID(_ context.Context, id int64) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return cloneCampaign(c), nil
}

func (m *MemoryCampaigns) List(_ context.Context, filter model.CampaignFilter) ([]*model.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := []*model.Campaign{}
	for _, c := range m.campaigns {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	page := make([]*model.Campaign, 0, end-start)
	for _, c := range matched[start:end] {
		page = append(page, cloneCampaign(c))
	}
	return page, total, nil
}

func (m *MemoryCampaigns) ListByStatus(_ context.Context, status model.CampaignStatus) ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range m.campaigns {
		if c.Status == status {
			out = append(out, cloneCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryCampaigns) Transition(_ context.Context, id int64, change model.StatusChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return false, appErrors.NewCampaignNotFound(id)
	}
	if c.Status != change.From {
		return false, nil
	}
	c.Status = change.To
	at := change.At
	c.UpdatedAt = &at
	if change.RecipientIDs != nil {
		c.RecipientIDs = append([]int64(nil), change.RecipientIDs...)
		c.TargetCount = len(change.RecipientIDs)
	}
	if change.FailureReason != "" {
		c.FailureReason = change.FailureReason
	}
	return true, nil
}

func (m *MemoryCampaigns) UpdateCounters(_ context.Context, id int64, counters model.Counters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Counters = counters
	return nil
}

func cloneCampaign(c *model.Campaign) *model.Campaign {
	cp := *c
	if c.Variables != nil {
		cp.Variables = make(map[string]string, len(c.Variables))
		for k, v := range c.Variables {
			cp.Variables[k] = v
		}
	}
	cp.Target.CompanyIDs = append([]int64(nil), c.Target.CompanyIDs...)
	cp.RecipientIDs = append([]int64(nil), c.RecipientIDs...)
	return &cp
}

// ====================== Templates ======================

type MemoryTemplates struct {
	mu        sync.Mutex
	nextID    int64
	templates map[int64]*model.Template
}

func NewMemoryTemplates() *MemoryTemplates {
	return &MemoryTemplates{templates: make(map[int64]*model.Template)}
}

func (m *MemoryTemplates) Create(_ context.Context, t *model.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *MemoryTemplates) GetByID(_ context.Context, id int64) (*model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, appErrors.NewTemplateNotFound(id)
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryTemplates) List(_ context.Context) ([]*model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Template, 0, len(m.templates))
	for _, t := range m.templates {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryTemplates) Update(_ context.Context, t *model.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.templates[t.ID]
	if !ok {
		return appErrors.NewTemplateNotFound(t.ID)
	}
	now := time.Now()
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = &now
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *MemoryTemplates) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return appErrors.NewTemplateNotFound(id)
	}
	delete(m.templates, id)
	return nil
}

// ====================== Directory ======================

// MemoryDirectory is a fixed snapshot of companies.
type MemoryDirectory struct {
	mu        sync.RWMutex
	companies map[int64]model.Company
}

func NewMemoryDirectory(companies ...model.Company) *MemoryDirectory {
	d := &MemoryDirectory{companies: make(map[int64]model.Company)}
	d.Add(companies...)
	return d
}

func (d *MemoryDirectory) Add(companies ...model.Company) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range companies {
		d.companies[c.ID] = c
	}
}

func (d *MemoryDirectory) Lookup(_ context.Context, spec model.TargetSpec) ([]model.Company, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := []model.Company{}
	if spec.IsExplicit() {
		for _, id := range spec.CompanyIDs {
			if c, ok := d.companies[id]; ok {
				out = append(out, c)
			}
		}
		return out, nil
	}
	for _, c := range d.companies {
		if MatchesFilter(c, spec) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ====================== Deliveries ======================

type MemoryDeliveries struct {
	mu      sync.Mutex
	records map[model.DeliveryKey]model.DeliveryRecord
}

func NewMemoryDeliveries() *MemoryDeliveries {
	return &MemoryDeliveries{records: make(map[model.DeliveryKey]model.DeliveryRecord)}
}

func (m *MemoryDeliveries) Create(_ context.Context, rec *model.DeliveryRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.Key()]; exists {
		return false, nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.records[rec.Key()] = *rec
	return true, nil
}

func (m *MemoryDeliveries) Get(_ context.Context, campaignID, recipientID int64) (*model.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[model.DeliveryKey{CampaignID: campaignID, RecipientID: recipientID}]
	if !ok {
		return nil, appErrors.NewDeliveryNotFound(campaignID, recipientID)
	}
	return &rec, nil
}

func (m *MemoryDeliveries) GetByMessageID(_ context.Context, messageID string) (*model.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.MessageID == messageID {
			return &rec, nil
		}
	}
	return nil, &appErrors.NotFoundError{Entity: "message " + messageID}
}

func (m *MemoryDeliveries) ListByCampaign(_ context.Context, campaignID int64) ([]model.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.DeliveryRecord{}
	for _, rec := range m.records {
		if rec.CampaignID == campaignID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecipientID < out[j].RecipientID })
	return out, nil
}

func (m *MemoryDeliveries) CountByOutcome(_ context.Context, campaignID int64) (map[model.Outcome]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[model.Outcome]int{model.OutcomeSent: 0, model.OutcomeBounced: 0, model.OutcomeFailed: 0}
	for _, rec := range m.records {
		if rec.CampaignID == campaignID {
			counts[rec.Outcome]++
		}
	}
	return counts, nil
}

func (m *MemoryDeliveries) CountSentByDay(_ context.Context, from, to time.Time, loc *time.Location) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, rec := range m.records {
		if rec.Outcome != model.OutcomeSent || rec.CreatedAt.Before(from) || !rec.CreatedAt.Before(to) {
			continue
		}
		counts[DayKey(rec.CreatedAt, loc)]++
	}
	return counts, nil
}

// ====================== Engagements ======================

type MemoryEngagements struct {
	mu     sync.Mutex
	events []model.EngagementEvent
}

func NewMemoryEngagements() *MemoryEngagements {
	return &MemoryEngagements{}
}

func (m *MemoryEngagements) Create(_ context.Context, ev *model.EngagementEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	m.events = append(m.events, *ev)
	return nil
}

func (m *MemoryEngagements) CountDistinctRecipients(_ context.Context, campaignID int64, kind model.EngagementKind) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[int64]struct{}{}
	for _, ev := range m.events {
		if ev.CampaignID == campaignID && ev.Kind == kind {
			seen[ev.RecipientID] = struct{}{}
		}
	}
	return len(seen), nil
}

func (m *MemoryEngagements) CountDistinctByDay(_ context.Context, kind model.EngagementKind, from, to time.Time, loc *time.Location) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]map[model.DeliveryKey]struct{}{}
	for _, ev := range m.events {
		if ev.Kind != kind || ev.OccurredAt.Before(from) || !ev.OccurredAt.Before(to) {
			continue
		}
		day := DayKey(ev.OccurredAt, loc)
		if seen[day] == nil {
			seen[day] = map[model.DeliveryKey]struct{}{}
		}
		seen[day][model.DeliveryKey{CampaignID: ev.CampaignID, RecipientID: ev.RecipientID}] = struct{}{}
	}
	counts := make(map[string]int, len(seen))
	for day, keys := range seen {
		counts[day] = len(keys)
	}
	return counts, nil
}

var (
	_ CampaignRepository   = (*MemoryCampaigns)(nil)
	_ TemplateRepository   = (*MemoryTemplates)(nil)
	_ CompanyDirectory     = (*MemoryDirectory)(nil)
	_ DeliveryRepository   = (*MemoryDeliveries)(nil)
	_ EngagementRepository = (*MemoryEngagements)(nil)
)
