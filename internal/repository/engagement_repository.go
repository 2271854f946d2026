package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type EngagementRepositoryPG struct {
	DB *sql.DB
}

func (r *EngagementRepositoryPG) Create(ctx context.Context, ev *model.EngagementEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	query := `
        INSERT INTO engagement_events (id, campaign_id, recipient_id, kind, occurred_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	_, err := r.DB.ExecContext(ctx, query, ev.ID, ev.CampaignID, ev.RecipientID, ev.Kind, ev.OccurredAt)
	return wrapErr(err)
}

func (r *EngagementRepositoryPG) CountDistinctRecipients(ctx context.Context, campaignID int64, kind model.EngagementKind) (int, error) {
	query := `
        SELECT COUNT(DISTINCT recipient_id)
        FROM engagement_events
        WHERE campaign_id=$1 AND kind=$2
    `
	var count int
	if err := r.DB.QueryRowContext(ctx, query, campaignID, kind).Scan(&count); err != nil {
		return 0, wrapErr(err)
	}
	return count, nil
}

func (r *EngagementRepositoryPG) CountDistinctByDay(ctx context.Context, kind model.EngagementKind, from, to time.Time, loc *time.Location) (map[string]int, error) {
	query := `
        SELECT to_char(occurred_at AT TIME ZONE $1, 'YYYY-MM-DD') AS day,
               COUNT(DISTINCT (campaign_id, recipient_id))
        FROM engagement_events
        WHERE kind = $2 AND occurred_at >= $3 AND occurred_at < $4
        GROUP BY day
    `
	return countByDay(ctx, r.DB, query, locName(loc), kind, from, to)
}

var _ EngagementRepository = (*EngagementRepositoryPG)(nil)
