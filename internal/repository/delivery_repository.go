package repository

import (
	"context"
	"database/sql"
	"time"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type DeliveryRepositoryPG struct {
	DB *sql.DB
}

const deliveryColumns = `campaign_id, recipient_id, message_id, outcome, attempts, last_error, created_at`

// Idempotent insert keyed by (campaign_id, recipient_id).
func (r *DeliveryRepositoryPG) Create(ctx context.Context, rec *model.DeliveryRecord) (bool, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	query := `
        INSERT INTO delivery_records (` + deliveryColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (campaign_id, recipient_id) DO NOTHING
    `
	res, err := r.DB.ExecContext(ctx, query,
		rec.CampaignID, rec.RecipientID, rec.MessageID, rec.Outcome, rec.Attempts, rec.LastError, rec.CreatedAt)
	if err != nil {
		return false, wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr(err)
	}
	return n == 1, nil
}

func (r *DeliveryRepositoryPG) Get(ctx context.Context, campaignID, recipientID int64) (*model.DeliveryRecord, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_records WHERE campaign_id=$1 AND recipient_id=$2`
	rec, err := scanDelivery(r.DB.QueryRowContext(ctx, query, campaignID, recipientID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewDeliveryNotFound(campaignID, recipientID)
		}
		return nil, wrapErr(err)
	}
	return rec, nil
}

func (r *DeliveryRepositoryPG) GetByMessageID(ctx context.Context, messageID string) (*model.DeliveryRecord, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_records WHERE message_id=$1`
	rec, err := scanDelivery(r.DB.QueryRowContext(ctx, query, messageID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &appErrors.NotFoundError{Entity: "message " + messageID}
		}
		return nil, wrapErr(err)
	}
	return rec, nil
}

func (r *DeliveryRepositoryPG) ListByCampaign(ctx context.Context, campaignID int64) ([]model.DeliveryRecord, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_records WHERE campaign_id=$1 ORDER BY recipient_id`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	records := []model.DeliveryRecord{}
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		records = append(records, *rec)
	}
	return records, wrapErr(rows.Err())
}

func (r *DeliveryRepositoryPG) CountByOutcome(ctx context.Context, campaignID int64) (map[model.Outcome]int, error) {
	query := `SELECT outcome, COUNT(*) FROM delivery_records WHERE campaign_id=$1 GROUP BY outcome`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	counts := map[model.Outcome]int{model.OutcomeSent: 0, model.OutcomeBounced: 0, model.OutcomeFailed: 0}
	for rows.Next() {
		var outcome model.Outcome
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, wrapErr(err)
		}
		counts[outcome] = count
	}
	return counts, wrapErr(rows.Err())
}

func (r *DeliveryRepositoryPG) CountSentByDay(ctx context.Context, from, to time.Time, loc *time.Location) (map[string]int, error) {
	query := `
        SELECT to_char(created_at AT TIME ZONE $1, 'YYYY-MM-DD') AS day, COUNT(*)
        FROM delivery_records
        WHERE outcome = 'sent' AND created_at >= $2 AND created_at < $3
        GROUP BY day
    `
	return countByDay(ctx, r.DB, query, locName(loc), from, to)
}

func scanDelivery(row rowScanner) (*model.DeliveryRecord, error) {
	var rec model.DeliveryRecord
	err := row.Scan(&rec.CampaignID, &rec.RecipientID, &rec.MessageID, &rec.Outcome, &rec.Attempts,
		&rec.LastError, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func countByDay(ctx context.Context, db *sql.DB, query string, args ...interface{}) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, wrapErr(err)
		}
		counts[day] = count
	}
	return counts, wrapErr(rows.Err())
}

func locName(loc *time.Location) string {
	if loc == nil {
		return "UTC"
	}
	return loc.String()
}

var _ DeliveryRepository = (*DeliveryRepositoryPG)(nil)
