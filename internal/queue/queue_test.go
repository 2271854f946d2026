package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatch/internal/logger"
)

func newTestQueue() *InMemoryQueue {
	q := NewInMemoryQueue(logger.Nop())
	q.Backoff = func(int) time.Duration { return time.Millisecond }
	return q
}

func TestInMemoryQueue_PublishWithoutSubscribers(t *testing.T) {
	q := newTestQueue()
	err := q.Publish(context.Background(), "campaign_dispatch", Job{CampaignID: 1})
	assert.Error(t, err)
}

func TestInMemoryQueue_DeliversToEverySubscriber(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()

	var mu sync.Mutex
	seen := map[string]int64{}
	for _, name := range []string{"a", "b"} {
		name := name
		require.NoError(t, q.Subscribe(ctx, "topic", func(_ context.Context, job Job) error {
			mu.Lock()
			seen[name] = job.CampaignID
			mu.Unlock()
			return nil
		}))
	}

	require.NoError(t, q.Publish(ctx, "topic", Job{CampaignID: 42}))
	q.Wait()

	assert.Equal(t, map[string]int64{"a": 42, "b": 42}, seen)
}

func TestInMemoryQueue_RetriesUntilSuccess(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()

	var calls atomic.Int32
	require.NoError(t, q.Subscribe(ctx, "topic", func(context.Context, Job) error {
		if calls.Add(1) < 3 {
			return errors.New("busy")
		}
		return nil
	}))

	require.NoError(t, q.Publish(ctx, "topic", Job{CampaignID: 1}))
	q.Wait()
	assert.Equal(t, int32(3), calls.Load())
}

func TestInMemoryQueue_GivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()
	q.MaxRetries = 2

	var calls atomic.Int32
	require.NoError(t, q.Subscribe(ctx, "topic", func(context.Context, Job) error {
		calls.Add(1)
		return errors.New("down")
	}))

	require.NoError(t, q.Publish(ctx, "topic", Job{CampaignID: 1}))
	q.Wait()
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, int32(0), retryCount(nil))
	assert.Equal(t, int32(2), retryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, int32(3), retryCount(amqp.Table{retryHeader: int64(3)}))
}
