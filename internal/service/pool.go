package service

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/campaign-dispatch/internal/queue"
)

type task struct {
	job  queue.Job
	done chan error
}

// Pool runs dispatch jobs on a bounded number of goroutines. Jobs for
// different campaigns run concurrently; a job for a campaign that is already
// being dispatched returns at once and frees its slot.
type Pool struct {
	dispatcher *Dispatcher
	size       int
	tasks      chan task
	log        zerolog.Logger
}

func NewPool(d *Dispatcher, size int, log zerolog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		dispatcher: d,
		size:       size,
		tasks:      make(chan task),
		log:        log.With().Str("component", "pool").Logger(),
	}
}

// Handle is a queue.Handler. It blocks until the job has been dispatched so
// that the queue acknowledges only finished work.
func (p *Pool) Handle(ctx context.Context, job queue.Job) error {
	t := task{job: job, done: make(chan error, 1)}
	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run serves Handle calls until ctx is cancelled, then waits for running
// jobs to finish.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)
	p.log.Info().Int("workers", p.size).Msg("dispatch pool started")
	for {
		select {
		case <-ctx.Done():
			err := g.Wait()
			p.log.Info().Msg("dispatch pool stopped")
			return err
		case t := <-p.tasks:
			g.Go(func() error {
				res, err := p.dispatcher.Dispatch(gctx, t.job.CampaignID)
				if err != nil {
					p.log.Warn().Err(err).Int64("campaign_id", t.job.CampaignID).Msg("dispatch run ended with error")
				} else {
					p.log.Debug().Int64("campaign_id", res.CampaignID).Str("status", string(res.Status)).
						Bool("already_running", res.AlreadyRunning).
						Int("sent", res.Sent).Msg("dispatch run finished")
				}
				t.done <- err
				// Per-job errors are redelivered by the queue, never fatal to the pool.
				return nil
			})
		}
	}
}
