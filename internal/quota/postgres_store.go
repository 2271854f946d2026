package quota

import (
	"context"
	"database/sql"
	"fmt"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
)

// PostgresStore keeps QuotaState in the quota_usage table. The conditional
// upsert makes the check and the increment a single statement.
type PostgresStore struct {
	DB *sql.DB
}

func (s *PostgresStore) Reserve(ctx context.Context, day string, n, ceiling int) (bool, error) {
	if n > ceiling {
		return false, nil
	}
	query := `
        INSERT INTO quota_usage (day, used) VALUES ($1, $2)
        ON CONFLICT (day) DO UPDATE SET used = quota_usage.used + EXCLUDED.used
        WHERE quota_usage.used + EXCLUDED.used <= $3
    `
	res, err := s.DB.ExecContext(ctx, query, day, n, ceiling)
	if err != nil {
		return false, fmt.Errorf("%w: %v", appErrors.ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", appErrors.ErrStoreUnavailable, err)
	}
	return affected == 1, nil
}

func (s *PostgresStore) Release(ctx context.Context, day string, n int) error {
	query := `UPDATE quota_usage SET used = GREATEST(used - $2, 0) WHERE day = $1`
	if _, err := s.DB.ExecContext(ctx, query, day, n); err != nil {
		return fmt.Errorf("%w: %v", appErrors.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Used(ctx context.Context, day string) (int, error) {
	var used int
	err := s.DB.QueryRowContext(ctx, `SELECT used FROM quota_usage WHERE day = $1`, day).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", appErrors.ErrStoreUnavailable, err)
	}
	return used, nil
}

func (s *PostgresStore) Reset(ctx context.Context, day string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM quota_usage WHERE day = $1`, day); err != nil {
		return fmt.Errorf("%w: %v", appErrors.ErrStoreUnavailable, err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
