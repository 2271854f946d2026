package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
)

// CampaignLocker hands out exclusive dispatch leases per campaign. Every
// process sharing a store must share its locker.
type CampaignLocker interface {
	// TryLock takes the lease for id without waiting. ok is false when
	// another run holds it; release is nil in that case. Calling release
	// more than once is harmless.
	TryLock(ctx context.Context, id int64) (release func(), ok bool, err error)
}

// MemoryLocker serves a single process.
type MemoryLocker struct {
	mu     sync.Mutex
	active map[int64]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{active: make(map[int64]struct{})}
}

func (l *MemoryLocker) TryLock(_ context.Context, id int64) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.active[id]; busy {
		return nil, false, nil
	}
	l.active[id] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.active, id)
			l.mu.Unlock()
		})
	}, true, nil
}

// AdvisoryLocker uses Postgres session advisory locks, so leases span every
// worker connected to the same database. The lease pins one pooled
// connection until it is released; if the process dies the session ends and
// Postgres drops the lock.
type AdvisoryLocker struct {
	DB *sql.DB
}

func (l *AdvisoryLocker) TryLock(ctx context.Context, id int64) (func(), bool, error) {
	conn, err := l.DB.Conn(ctx)
	if err != nil {
		return nil, false, wrapErr(err)
	}
	var ok bool
	err = conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, id).Scan(&ok)
	if err != nil {
		conn.Close()
		return nil, false, wrapErr(fmt.Errorf("advisory lock campaign %d: %w", id, err))
	}
	if !ok {
		conn.Close()
		return nil, false, nil
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be cancelled; unlocking must still happen.
			if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, id); err != nil {
				// Drop the session instead of returning it to the pool with the lock held.
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			}
			conn.Close()
		})
	}, true, nil
}

var (
	_ CampaignLocker = (*MemoryLocker)(nil)
	_ CampaignLocker = (*AdvisoryLocker)(nil)
)
