package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type TemplateRepositoryPG struct {
	DB *sql.DB
}

func (r *TemplateRepositoryPG) Create(ctx context.Context, t *model.Template) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	query := `
        INSERT INTO templates (name, subject, body, placeholders, category, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	err := r.DB.QueryRowContext(ctx, query,
		t.Name, t.Subject, t.Body, pq.Array(t.Placeholders), t.Category, t.CreatedAt,
	).Scan(&t.ID)
	return wrapErr(err)
}

func (r *TemplateRepositoryPG) GetByID(ctx context.Context, id int64) (*model.Template, error) {
	query := `
        SELECT id, name, subject, body, placeholders, category, created_at, updated_at
        FROM templates WHERE id=$1
    `
	var t model.Template
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Subject, &t.Body, pq.Array(&t.Placeholders), &t.Category, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewTemplateNotFound(id)
		}
		return nil, wrapErr(err)
	}
	return &t, nil
}

func (r *TemplateRepositoryPG) List(ctx context.Context) ([]*model.Template, error) {
	query := `
        SELECT id, name, subject, body, placeholders, category, created_at, updated_at
        FROM templates ORDER BY id
    `
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	templates := []*model.Template{}
	for rows.Next() {
		var t model.Template
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Subject, &t.Body, pq.Array(&t.Placeholders), &t.Category, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, wrapErr(err)
		}
		templates = append(templates, &t)
	}
	return templates, wrapErr(rows.Err())
}

func (r *TemplateRepositoryPG) Update(ctx context.Context, t *model.Template) error {
	now := time.Now()
	query := `
        UPDATE templates
        SET name=$1, subject=$2, body=$3, placeholders=$4, category=$5, updated_at=$6
        WHERE id=$7
    `
	res, err := r.DB.ExecContext(ctx, query,
		t.Name, t.Subject, t.Body, pq.Array(t.Placeholders), t.Category, now, t.ID)
	if err != nil {
		return wrapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewTemplateNotFound(t.ID)
	}
	t.UpdatedAt = &now
	return nil
}

func (r *TemplateRepositoryPG) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM templates WHERE id=$1`, id)
	if err != nil {
		return wrapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewTemplateNotFound(id)
	}
	return nil
}

var _ TemplateRepository = (*TemplateRepositoryPG)(nil)
