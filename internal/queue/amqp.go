package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes and consumes jobs on durable RabbitMQ queues named
// after the topic.
type AMQPQueue struct {
	conn *amqp.Connection
	pub  *amqp.Channel
	mu   sync.Mutex
	log  zerolog.Logger

	MaxRetries int
	// Prefetch bounds the unacknowledged deliveries held by one subscriber.
	Prefetch int
}

func NewAMQPQueue(url string, log zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	return &AMQPQueue{
		conn:       conn,
		pub:        ch,
		log:        log.With().Str("component", "amqp_queue").Logger(),
		MaxRetries: 3,
		Prefetch:   4,
	}, nil
}

func declare(ch *amqp.Channel, topic string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, job Job) error {
	return q.publish(ctx, topic, job, 0)
}

func (q *AMQPQueue) publish(_ context.Context, topic string, job Job, retries int32) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := declare(q.pub, topic); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	return q.pub.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{retryHeader: retries},
			Body:         body,
		},
	)
}

// Subscribe consumes topic until ctx is cancelled. Failed jobs are
// republished with an incremented retry header and dropped after MaxRetries.
func (q *AMQPQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	if err := ch.Qos(q.Prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	queue, err := declare(ch, topic)
	if err != nil {
		ch.Close()
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	msgs, err := ch.Consume(
		queue.Name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("register consumer: %w", err)
	}

	go func() {
		defer ch.Close()
		var wg sync.WaitGroup
		defer wg.Wait()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					q.log.Warn().Str("topic", topic).Msg("delivery channel closed")
					return
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					q.handle(ctx, topic, d, handler)
				}()
			}
		}
	}()
	return nil
}

func (q *AMQPQueue) handle(ctx context.Context, topic string, d amqp.Delivery, handler Handler) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		q.log.Error().Err(err).Msg("invalid job, dropping")
		d.Ack(false)
		return
	}

	err := handler(ctx, job)
	if err == nil {
		d.Ack(false)
		return
	}

	retries := retryCount(d.Headers)
	if retries >= int32(q.MaxRetries) {
		q.log.Error().Err(err).Int64("campaign_id", job.CampaignID).Msg("job permanently failed")
		d.Nack(false, false)
		return
	}
	q.log.Warn().Err(err).Int64("campaign_id", job.CampaignID).Int32("retry", retries+1).Msg("job failed, requeueing")
	if perr := q.publish(ctx, topic, job, retries+1); perr != nil {
		q.log.Error().Err(perr).Msg("requeue failed")
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

// retryCount reads the retry header; AMQP tables decode integers into
// several widths.
func retryCount(h amqp.Table) int32 {
	switch v := h[retryHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	case int16:
		return int32(v)
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pub.Close()
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
