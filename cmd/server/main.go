// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/campaign-dispatch/internal/app"
	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/controller"
	"github.com/unclebandit/campaign-dispatch/internal/handler"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/metrics"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	// With the in-memory queue the dispatch pool has to live in this process.
	if cfg.QueueBackend == "memory" {
		pool := service.NewPool(a.Service.Dispatcher, cfg.DispatchWorkers, log)
		g.Go(func() error { return pool.Run(gctx) })
		if err := a.Queue.Subscribe(gctx, cfg.DispatchTopic, pool.Handle); err != nil {
			log.Fatal().Err(err).Msg("subscribe dispatch pool")
		}
	}

	runner, err := service.NewSchedulerRunner(a.Service.Scheduler, cfg.SchedulerSpec, cfg.Location(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler")
	}
	runner.Start()

	r := controller.NewRouter(a.Service, log)
	handler.NewTrackingHandler(a.Service, cfg.TrackingSecret, log).Routes(r)

	servers := []*http.Server{{Addr: cfg.AppAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}}
	if cfg.MetricsAddr == "" || cfg.MetricsAddr == cfg.AppAddr {
		r.Handle("/metrics", metrics.Handler())
	} else {
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 10 * time.Second})
	}

	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		runner.Stop(shutdownCtx)
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Str("addr", srv.Addr).Msg("shutdown")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}
	log.Info().Msg("server stopped")
}
