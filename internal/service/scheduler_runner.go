package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SchedulerRunner drives Scheduler.Tick from a cron spec such as "@every 15s".
type SchedulerRunner struct {
	cron      *cron.Cron
	scheduler *Scheduler
	log       zerolog.Logger
	timeout   time.Duration
}

func NewSchedulerRunner(s *Scheduler, spec string, loc *time.Location, log zerolog.Logger) (*SchedulerRunner, error) {
	if loc == nil {
		loc = time.UTC
	}
	clog := cronLogger{log: log.With().Str("component", "cron").Logger()}
	r := &SchedulerRunner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		scheduler: s,
		log:       log.With().Str("component", "scheduler").Logger(),
		timeout:   time.Minute,
	}
	if _, err := r.cron.AddFunc(spec, r.tick); err != nil {
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", spec, err)
	}
	return r, nil
}

func (r *SchedulerRunner) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	fired, resumed, err := r.scheduler.Tick(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("scheduler sweep failed")
		return
	}
	if fired > 0 || resumed > 0 {
		r.log.Info().Int("fired", fired).Int("resumed", resumed).Msg("scheduler sweep")
	}
}

func (r *SchedulerRunner) Start() {
	r.cron.Start()
}

// Stop halts the cron and waits for a running sweep up to ctx.
func (r *SchedulerRunner) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
