// Package worker relays audit outbox rows to the message broker.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"certverify/pkg/platform/audit/store/postgres"
)

// OutboxSource is the read/ack side of the audit outbox.
type OutboxSource interface {
	FetchUnpublished(ctx context.Context, limit int) ([]postgres.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Producer publishes one record to a topic.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

const (
	defaultBatchSize = 100
	defaultInterval  = time.Second
)

// Relay polls the outbox and publishes entries in creation order. An entry is
// only marked published after the broker acknowledged it, so delivery is
// at-least-once.
type Relay struct {
	source   OutboxSource
	producer Producer
	topic    string
	logger   *slog.Logger

	batchSize int
	interval  time.Duration
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRelay(source OutboxSource, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		producer:  producer,
		topic:     topic,
		logger:    slog.Default(),
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "audit outbox relay failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were acknowledged.
// It stops at the first produce failure to keep per-aggregate ordering.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.source.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	published := make([]uuid.UUID, 0, len(entries))
	var produceErr error
	for _, e := range entries {
		if err := r.producer.Produce(ctx, r.topic, []byte(e.AggregateID), e.Payload); err != nil {
			produceErr = err
			break
		}
		published = append(published, e.ID)
	}
	if err := r.source.MarkPublished(ctx, published); err != nil {
		return 0, err
	}
	return len(published), produceErr
}
