// Package queuebus implements the named, durable, FIFO queue bus on top of
// NATS JetStream: one stream and one durable consumer per logical queue,
// at-least-once delivery, messages surviving broker restart.
package queuebus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Logical queue names, exhaustive per the spec.
const (
	QueueImageIngested          = "image-ingested"
	QueueDetectionComplete      = "detection-complete"
	QueueClassificationComplete = "classification-complete"
	QueueClassificationReprocess = "classification-reprocess"
	QueueNotificationEvents     = "notification-events"
	QueueNotificationSignal     = "notification-signal"
	QueueNotificationTelegram   = "notification-telegram"
	QueueNotificationEmail      = "notification-email"
	QueueFailedJobs             = "failed-jobs"
)

var AllQueues = []string{
	QueueImageIngested, QueueDetectionComplete, QueueClassificationComplete,
	QueueClassificationReprocess, QueueNotificationEvents, QueueNotificationSignal,
	QueueNotificationTelegram, QueueNotificationEmail, QueueFailedJobs,
}

type Bus struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

func Connect(ctx context.Context, url string) (*Bus, error) {
	conn, err := nats.Connect(url, nats.MaxReconnects(-1), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("queuebus: connect: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queuebus: jetstream: %w", err)
	}
	b := &Bus{conn: conn, js: js}
	for _, queue := range AllQueues {
		if _, err := b.ensureStream(ctx, queue); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return b, nil
}

func (b *Bus) ensureStream(ctx context.Context, queue string) (jetstream.Stream, error) {
	return b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName(queue),
		Subjects:  []string{subject(queue)},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
}

func streamName(queue string) string {
	return "QUEUE_" + queue
}

func subject(queue string) string {
	return "queuebus." + queue
}

func (b *Bus) Close() {
	b.conn.Close()
}

// Publish retries with backoff, matching the teacher's NATSPublisher shape,
// since a transient publish failure should not drop a pipeline message.
func (b *Bus) Publish(ctx context.Context, queue string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queuebus: marshal: %w", err)
	}

	const maxRetries = 5
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		_, err := b.js.Publish(ctx, subject(queue), data)
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-time.After(time.Duration(attempt*100) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("queuebus: publish to %s failed after %d retries: %w", queue, maxRetries, lastErr)
}

// Handler processes one message's payload. Returning an error causes the
// message to be negatively acknowledged and redelivered; returning nil acks.
type Handler func(ctx context.Context, payload []byte) error

// ConsumerConfig bounds a single worker process's fan-out over one queue.
type ConsumerConfig struct {
	MaxInflight int           // concurrent in-flight handler invocations
	TimeBudget  time.Duration // per-message context timeout
}

// Consume runs a durable pull-consumer loop until ctx is cancelled. It
// bounds concurrency with a semaphore so a burst of deliveries can't
// overwhelm the worker process.
func (b *Bus) Consume(ctx context.Context, queue string, cfg ConsumerConfig, handle Handler) error {
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = 10
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = 30 * time.Second
	}

	stream, err := b.js.Stream(ctx, streamName(queue))
	if err != nil {
		return fmt.Errorf("queuebus: stream %s: %w", queue, err)
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       "worker",
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       cfg.TimeBudget + 5*time.Second,
		MaxAckPending: cfg.MaxInflight * 2,
	})
	if err != nil {
		return fmt.Errorf("queuebus: consumer %s: %w", queue, err)
	}

	sem := make(chan struct{}, cfg.MaxInflight)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := consumer.Fetch(cfg.MaxInflight, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if err == context.DeadlineExceeded || err == nats.ErrTimeout {
				continue
			}
			return fmt.Errorf("queuebus: fetch %s: %w", queue, err)
		}

		for msg := range msgs.Messages() {
			sem <- struct{}{}
			go func(m jetstream.Msg) {
				defer func() { <-sem }()
				b.handleOne(ctx, queue, m, cfg.TimeBudget, handle)
			}(msg)
		}
		if err := msgs.Error(); err != nil {
			log.Printf("[queuebus] %s: fetch batch error: %v", queue, err)
		}
	}
}

func (b *Bus) handleOne(ctx context.Context, queue string, msg jetstream.Msg, budget time.Duration, handle Handler) {
	msgCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	if err := handle(msgCtx, msg.Data()); err != nil {
		log.Printf("[queuebus] %s: handler error: %v", queue, err)
		if nakErr := msg.Nak(); nakErr != nil {
			log.Printf("[queuebus] %s: nak error: %v", queue, nakErr)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		log.Printf("[queuebus] %s: ack error: %v", queue, err)
	}
}
