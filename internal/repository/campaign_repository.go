package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type CampaignRepositoryPG struct {
	DB *sql.DB
}

const campaignColumns = `id, name, template_id, subject, body, variables, target, status, scheduled_at,
        created_at, updated_at, recipient_ids, target_count, sent_count, failed_count, bounced_count,
        open_count, click_count, failure_reason`

// ====================== Campaign CRUD ======================

func (r *CampaignRepositoryPG) Create(ctx context.Context, c *model.Campaign) error {
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	variables, err := json.Marshal(c.Variables)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}
	target, err := json.Marshal(c.Target)
	if err != nil {
		return fmt.Errorf("encode target: %w", err)
	}
	query := `
        INSERT INTO campaigns (name, template_id, subject, body, variables, target, status, scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	err = r.DB.QueryRowContext(ctx, query,
		c.Name, c.TemplateID, c.Subject, c.Body, variables, target, c.Status, c.ScheduledAt, c.CreatedAt,
	).Scan(&c.ID)
	return wrapErr(err)
}

func (r *CampaignRepositoryPG) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, wrapErr(err)
	}
	return c, nil
}

func (r *CampaignRepositoryPG) List(ctx context.Context, filter model.CampaignFilter) ([]*model.Campaign, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr(err)
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	campaigns, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

func (r *CampaignRepositoryPG) ListByStatus(ctx context.Context, status model.CampaignStatus) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1 ORDER BY id`
	return r.query(ctx, query, status)
}

func (r *CampaignRepositoryPG) Transition(ctx context.Context, id int64, change model.StatusChange) (bool, error) {
	set := []string{"status=$1", "updated_at=$2"}
	args := []interface{}{change.To, change.At}
	if change.RecipientIDs != nil {
		args = append(args, pq.Array(change.RecipientIDs))
		set = append(set, fmt.Sprintf("recipient_ids=$%d", len(args)))
		args = append(args, len(change.RecipientIDs))
		set = append(set, fmt.Sprintf("target_count=$%d", len(args)))
	}
	if change.FailureReason != "" {
		args = append(args, change.FailureReason)
		set = append(set, fmt.Sprintf("failure_reason=$%d", len(args)))
	}
	args = append(args, id, change.From)
	query := fmt.Sprintf(`UPDATE campaigns SET %s WHERE id=$%d AND status=$%d`,
		strings.Join(set, ", "), len(args)-1, len(args))

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr(err)
	}
	return n == 1, nil
}

func (r *CampaignRepositoryPG) UpdateCounters(ctx context.Context, id int64, counters model.Counters) error {
	query := `
        UPDATE campaigns
        SET sent_count=$1, failed_count=$2, bounced_count=$3, open_count=$4, click_count=$5
        WHERE id=$6
    `
	res, err := r.DB.ExecContext(ctx, query,
		counters.Sent, counters.Failed, counters.Bounced, counters.Opened, counters.Clicked, id)
	if err != nil {
		return wrapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

func (r *CampaignRepositoryPG) query(ctx context.Context, query string, args ...interface{}) ([]*model.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, wrapErr(rows.Err())
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var (
		c         model.Campaign
		variables []byte
		target    []byte
		ids       []int64
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.TemplateID, &c.Subject, &c.Body, &variables, &target, &c.Status, &c.ScheduledAt,
		&c.CreatedAt, &c.UpdatedAt, pq.Array(&ids), &c.TargetCount,
		&c.Counters.Sent, &c.Counters.Failed, &c.Counters.Bounced, &c.Counters.Opened, &c.Counters.Clicked,
		&c.FailureReason,
	)
	if err != nil {
		return nil, err
	}
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &c.Variables); err != nil {
			return nil, fmt.Errorf("decode variables of campaign %d: %w", c.ID, err)
		}
	}
	if err := json.Unmarshal(target, &c.Target); err != nil {
		return nil, fmt.Errorf("decode target of campaign %d: %w", c.ID, err)
	}
	c.RecipientIDs = ids
	return &c, nil
}

var _ CampaignRepository = (*CampaignRepositoryPG)(nil)
