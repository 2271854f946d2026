package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/unclebandit/campaign-dispatch/internal/app"
	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

// The worker consumes dispatch jobs from RabbitMQ. Several workers may run
// against the same Postgres store; a campaign is dispatched by whichever
// worker holds its advisory lock and duplicate jobs elsewhere return at once.
func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, relying on OS environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.AppEnv, cfg.LogFile)
	if cfg.QueueBackend != "amqp" {
		log.Fatal().Str("queue_backend", cfg.QueueBackend).Msg("the worker needs QUEUE_BACKEND=amqp")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	pool := service.NewPool(a.Service.Dispatcher, cfg.DispatchWorkers, log)
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	if err := a.Queue.Subscribe(ctx, cfg.DispatchTopic, pool.Handle); err != nil {
		log.Fatal().Err(err).Msg("subscribe")
	}
	log.Info().Str("topic", cfg.DispatchTopic).Int("workers", cfg.DispatchWorkers).Msg("worker running, waiting for jobs")

	<-ctx.Done()
	if err := <-done; err != nil {
		log.Error().Err(err).Msg("pool stopped with error")
	}
	log.Info().Msg("worker stopped")
}
