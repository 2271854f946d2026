package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// CompanyRepositoryPG reads the company directory table.
type CompanyRepositoryPG struct {
	DB *sql.DB
}

// Lookup returns the companies matching spec, ordered by id.
func (r *CompanyRepositoryPG) Lookup(ctx context.Context, spec model.TargetSpec) ([]model.Company, error) {
	if spec.IsExplicit() {
		query := `
            SELECT id, name, email, industry, region
            FROM companies
            WHERE id = ANY($1)
            ORDER BY id
        `
		return r.query(ctx, nil, query, pq.Array(spec.CompanyIDs))
	}

	// Postgres collation cannot fold full and half width, so the filter is
	// applied to the scanned rows with the same rules as the memory directory.
	query := `
        SELECT id, name, email, industry, region
        FROM companies
        ORDER BY id
    `
	return r.query(ctx, func(c model.Company) bool { return MatchesFilter(c, spec) }, query)
}

// query scans companies, keeping those accepted by keep (all when nil).
func (r *CompanyRepositoryPG) query(ctx context.Context, keep func(model.Company) bool, query string, args ...interface{}) ([]model.Company, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	companies := []model.Company{}
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Industry, &c.Region); err != nil {
			return nil, wrapErr(err)
		}
		if keep != nil && !keep(c) {
			continue
		}
		companies = append(companies, c)
	}
	return companies, wrapErr(rows.Err())
}

var _ CompanyDirectory = (*CompanyRepositoryPG)(nil)
