// Package quota enforces the daily send allowance shared by every campaign.
//
// The allowance is keyed by calendar day in a configured time zone, so a new
// day starts with the full ceiling without any timer firing and a restarted
// process picks up exactly where the previous one stopped.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store persists per-day usage. Reserve must be an atomic check-and-increment.
type Store interface {
	// Reserve adds n to the usage of day only if the result stays within ceiling.
	Reserve(ctx context.Context, day string, n, ceiling int) (bool, error)
	// Release gives back n previously reserved units, never dropping below zero.
	Release(ctx context.Context, day string, n int) error
	Used(ctx context.Context, day string) (int, error)
	// Reset clears the usage recorded for day.
	Reset(ctx context.Context, day string) error
}

// Status is the quota banner shown to users.
type Status struct {
	Day       string `json:"day"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
}

// Guard admits or rejects dispatch attempts against a daily ceiling.
type Guard struct {
	store   Store
	ceiling int
	loc     *time.Location
	now     func() time.Time
}

type Option func(*Guard)

// WithClock replaces time.Now, letting tests move across day boundaries.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithLocation sets the time zone that defines the calendar day.
func WithLocation(loc *time.Location) Option {
	return func(g *Guard) {
		if loc != nil {
			g.loc = loc
		}
	}
}

func NewGuard(store Store, ceiling int, opts ...Option) *Guard {
	g := &Guard{store: store, ceiling: ceiling, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) day() string {
	return g.now().In(g.loc).Format(time.DateOnly)
}

// Admit reserves n units for today if at least n remain.
func (g *Guard) Admit(ctx context.Context, n int) (bool, error) {
	if n <= 0 {
		return true, nil
	}
	if n > g.ceiling {
		return false, nil
	}
	ok, err := g.store.Reserve(ctx, g.day(), n, g.ceiling)
	if err != nil {
		return false, fmt.Errorf("reserve quota: %w", err)
	}
	return ok, nil
}

// Release returns n units to today's allowance, for reservations that ended
// up not sending anything.
func (g *Guard) Release(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := g.store.Release(ctx, g.day(), n); err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}

func (g *Guard) Remaining(ctx context.Context) (int, error) {
	st, err := g.Status(ctx)
	if err != nil {
		return 0, err
	}
	return st.Remaining, nil
}

func (g *Guard) Status(ctx context.Context) (Status, error) {
	day := g.day()
	used, err := g.store.Used(ctx, day)
	if err != nil {
		return Status{}, fmt.Errorf("read quota: %w", err)
	}
	return Status{Day: day, Limit: g.ceiling, Used: used, Remaining: max(g.ceiling-used, 0)}, nil
}

// Reset restores the full ceiling for the calendar day containing date.
func (g *Guard) Reset(ctx context.Context, date time.Time) error {
	if err := g.store.Reset(ctx, date.In(g.loc).Format(time.DateOnly)); err != nil {
		return fmt.Errorf("reset quota: %w", err)
	}
	return nil
}

// MemoryStore keeps a single day's usage in process memory. A reservation for
// a different day than the stored one starts from zero.
type MemoryStore struct {
	mu   sync.Mutex
	day  string
	used int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) roll(day string) {
	if s.day != day {
		s.day = day
		s.used = 0
	}
}

func (s *MemoryStore) Reserve(_ context.Context, day string, n, ceiling int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roll(day)
	if s.used+n > ceiling {
		return false, nil
	}
	s.used += n
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, day string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.day == day {
		s.used = max(s.used-n, 0)
	}
	return nil
}

func (s *MemoryStore) Used(_ context.Context, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.day != day {
		return 0, nil
	}
	return s.used, nil
}

func (s *MemoryStore) Reset(_ context.Context, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.day = day
	s.used = 0
	return nil
}

var _ Store = (*MemoryStore)(nil)
