package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type CampaignRepository interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	List(ctx context.Context, filter model.CampaignFilter) ([]*model.Campaign, int, error)
	ListByStatus(ctx context.Context, status model.CampaignStatus) ([]*model.Campaign, error)
	// Transition moves the campaign from change.From to change.To only if it is
	// still in change.From. It returns false when the guard did not match.
	Transition(ctx context.Context, id int64, change model.StatusChange) (bool, error)
	UpdateCounters(ctx context.Context, id int64, counters model.Counters) error
}

type TemplateRepository interface {
	Create(ctx context.Context, t *model.Template) error
	GetByID(ctx context.Context, id int64) (*model.Template, error)
	List(ctx context.Context) ([]*model.Template, error)
	Update(ctx context.Context, t *model.Template) error
	Delete(ctx context.Context, id int64) error
}

// CompanyDirectory is the read-only view of the external company directory.
type CompanyDirectory interface {
	Lookup(ctx context.Context, spec model.TargetSpec) ([]model.Company, error)
}

type DeliveryRepository interface {
	// Create stores rec unless a record already exists for its key.
	// It reports whether rec was inserted.
	Create(ctx context.Context, rec *model.DeliveryRecord) (bool, error)
	Get(ctx context.Context, campaignID, recipientID int64) (*model.DeliveryRecord, error)
	GetByMessageID(ctx context.Context, messageID string) (*model.DeliveryRecord, error)
	ListByCampaign(ctx context.Context, campaignID int64) ([]model.DeliveryRecord, error)
	CountByOutcome(ctx context.Context, campaignID int64) (map[model.Outcome]int, error)
	// CountSentByDay returns sent records per calendar day ("2006-01-02") in loc.
	CountSentByDay(ctx context.Context, from, to time.Time, loc *time.Location) (map[string]int, error)
}

type EngagementRepository interface {
	Create(ctx context.Context, ev *model.EngagementEvent) error
	CountDistinctRecipients(ctx context.Context, campaignID int64, kind model.EngagementKind) (int, error)
	// CountDistinctByDay counts distinct (campaign, recipient) pairs per calendar day in loc.
	CountDistinctByDay(ctx context.Context, kind model.EngagementKind, from, to time.Time, loc *time.Location) (map[string]int, error)
}

// Store bundles the repositories the engine needs.
type Store struct {
	Campaigns   CampaignRepository
	Templates   TemplateRepository
	Companies   CompanyDirectory
	Deliveries  DeliveryRepository
	Engagements EngagementRepository
	Locks       CampaignLocker
}

// NewPostgresStore wires the lib/pq backed repositories.
func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Campaigns:   &CampaignRepositoryPG{DB: db},
		Templates:   &TemplateRepositoryPG{DB: db},
		Companies:   &CompanyRepositoryPG{DB: db},
		Deliveries:  &DeliveryRepositoryPG{DB: db},
		Engagements: &EngagementRepositoryPG{DB: db},
		Locks:       &AdvisoryLocker{DB: db},
	}
}

// DayKey formats t as the calendar day in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.DateOnly)
}
