package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job asks a worker to dispatch the pending recipients of one campaign.
type Job struct {
	CampaignID int64     `json:"campaign_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Handler processes one job. A non-nil error asks the queue to redeliver.
type Handler func(ctx context.Context, job Job) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, job Job) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// InMemoryQueue delivers jobs to in-process subscribers with retry
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	wg       sync.WaitGroup
	log      zerolog.Logger

	MaxRetries int
	// Backoff returns the pause before redelivery attempt n (1-based).
	Backoff func(n int) time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log zerolog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		log:        log.With().Str("component", "memory_queue").Logger(),
		MaxRetries: 3,
		Backoff: func(n int) time.Duration {
			return time.Duration(n*500) * time.Millisecond
		},
	}
}

// Publish sends a job to all subscribers
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, job Job) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go func(h Handler) {
			defer q.wg.Done()
			q.processJob(context.WithoutCancel(ctx), h, job)
		}(handler)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(ctx context.Context, handler Handler, job Job) {
	for attempt := 0; ; attempt++ {
		err := handler(ctx, job)
		if err == nil {
			q.log.Debug().Int64("campaign_id", job.CampaignID).Msg("job processed")
			return // ACK
		}
		if attempt >= q.MaxRetries {
			q.log.Error().Err(err).Int64("campaign_id", job.CampaignID).
				Int("attempts", attempt+1).Msg("job permanently failed")
			return // No requeue
		}
		q.log.Warn().Err(err).Int64("campaign_id", job.CampaignID).
			Int("attempt", attempt+1).Int("max_retries", q.MaxRetries).Msg("job failed, retrying")

		select {
		case <-time.After(q.Backoff(attempt + 1)):
		case <-ctx.Done():
			return
		}
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(_ context.Context, topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has been acknowledged or dropped.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

func (q *InMemoryQueue) Close() error {
	q.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
