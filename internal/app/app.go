// Package app assembles the campaign service from configuration. Both the
// API server and the queue worker start from here.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/db"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
	"github.com/unclebandit/campaign-dispatch/internal/quota"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
	"github.com/unclebandit/campaign-dispatch/internal/service"
	"github.com/unclebandit/campaign-dispatch/internal/transport"
)

type App struct {
	Config  config.Config
	Service *service.CampaignService
	Queue   queue.Queue
	Log     zerolog.Logger

	closers []func() error
}

// New connects the configured backends. On error everything opened so far
// is closed again.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var store *repository.Store
	var quotaStore quota.Store
	switch cfg.StoreBackend {
	case "postgres":
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		if err := db.Migrate(ctx, conn, log); err != nil {
			return nil, err
		}
		store = repository.NewPostgresStore(conn)
		if cfg.QuotaBackend == "postgres" {
			quotaStore = &quota.PostgresStore{DB: conn}
		}
	default:
		log.Warn().Msg("using in-memory store, the company directory starts empty")
		store = repository.NewMemoryStore(nil)
	}

	switch cfg.QuotaBackend {
	case "redis":
		rs := quota.NewRedisStore(cfg.RedisAddr, cfg.RedisDB)
		a.closers = append(a.closers, rs.Close)
		quotaStore = rs
	case "memory":
		quotaStore = quota.NewMemoryStore()
	}
	guard := quota.NewGuard(quotaStore, cfg.QuotaDailyLimit, quota.WithLocation(cfg.Location()))

	sender, err := transport.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("mail transport: %w", err)
	}

	switch cfg.QueueBackend {
	case "amqp":
		q, err := queue.NewAMQPQueue(cfg.AMQPURL, log)
		if err != nil {
			return nil, err
		}
		a.Queue = q
	default:
		a.Queue = queue.NewInMemoryQueue(log)
	}
	a.closers = append(a.closers, a.Queue.Close)

	a.Service = service.NewCampaignService(service.Deps{
		Store:  store,
		Quota:  guard,
		Sender: sender,
		Queue:  a.Queue,
		Topic:  cfg.DispatchTopic,
		Policy: service.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			Factor:      cfg.RetryFactor,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		SendTimeout: cfg.SendTimeout,
		Location:    cfg.Location(),
		Log:         log,
	})
	log.Info().Str("config", cfg.String()).Msg("campaign service assembled")
	return a, nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn().Err(err).Msg("close backend")
		}
	}
	a.closers = nil
}
