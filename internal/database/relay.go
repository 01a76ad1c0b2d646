package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultRelaySource = "ad-product-extractor"

type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	CountByStatus(ctx context.Context, statuses ...string) (int64, error)
}

// StreamEnvelope is the JSON document stored in the data field of every
// stream entry.
type StreamEnvelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Source        string          `json:"source"`
	Attempt       int             `json:"attempt"`
	Payload       json.RawMessage `json:"payload"`
}

func NewStreamEnvelope(event *OutboxEvent, source string) (*StreamEnvelope, error) {
	if !json.Valid(event.Payload) {
		return nil, fmt.Errorf("%w: payload of %s is not valid JSON", ErrInvalidEvent, event.ID)
	}
	return &StreamEnvelope{
		ID:            event.ID.String(),
		Type:          event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		OccurredAt:    event.CreatedAt.UTC(),
		Source:        source,
		Attempt:       event.RetryCount + 1,
		Payload:       event.Payload,
	}, nil
}

// fields flattens the envelope into stream entry values. The routing keys are
// repeated next to data so consumers can filter without decoding.
func (e *StreamEnvelope) fields() (map[string]any, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return map[string]any{
		"data":           string(data),
		"type":           e.Type,
		"aggregate_type": e.AggregateType,
		"aggregate_id":   e.AggregateID,
		"outbox_id":      e.ID,
	}, nil
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Source       string
	// StreamMaxLen trims streams approximately to this length. Zero disables trimming.
	StreamMaxLen int64
}

type RelayStats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

// Relay moves outbox events onto Redis streams.
type Relay struct {
	redis  RedisClient
	outbox OutboxRepo
	logger *slog.Logger
	cfg    RelayConfig

	published atomic.Int64
	failed    atomic.Int64
}

func NewRelay(outbox OutboxRepo, redisClient RedisClient, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Source == "" {
		cfg.Source = DefaultRelaySource
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		redis:  redisClient,
		outbox: outbox,
		logger: logger.With("component", "relay"),
		cfg:    cfg,
	}
}

// Start drains the outbox on every tick until ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay",
		"interval", r.cfg.PollInterval,
		"batch_size", r.cfg.BatchSize,
		"max_len", r.cfg.StreamMaxLen)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		r.drain(ctx)

		select {
		case <-ctx.Done():
			stats := r.Stats()
			r.logger.Info("relay stopped", "published", stats.Published, "failed", stats.Failed)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain keeps relaying while batches come back full.
func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.relayBatch(ctx)
		if err != nil {
			r.logger.Error("failed to relay outbox batch", "error", err)
			return
		}
		if n < r.cfg.BatchSize {
			return
		}
	}
}

// relayBatch publishes one batch of due events and returns how many made it
// onto a stream. A failing event does not stop the rest of the batch.
func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	events, err := r.outbox.GetPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}

	published := 0
	for _, event := range events {
		if err := r.relay(ctx, event); err != nil {
			r.logger.Warn("event not relayed",
				"event_id", event.ID,
				"event_type", event.EventType,
				"aggregate_id", event.AggregateID,
				"attempt", event.RetryCount+1,
				"error", err)
			continue
		}
		published++
	}

	if len(events) > 0 {
		r.logger.Debug("outbox batch relayed", "fetched", len(events), "published", published)
	}
	return published, nil
}

func (r *Relay) relay(ctx context.Context, event *OutboxEvent) error {
	if err := r.publish(ctx, event); err != nil {
		r.failed.Add(1)
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			return errors.Join(err, fmt.Errorf("failed to mark event failed: %w", markErr))
		}
		return err
	}
	r.published.Add(1)

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		// The entry is already on the stream; consumers dedupe on outbox_id.
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, event *OutboxEvent) error {
	env, err := NewStreamEnvelope(event, r.cfg.Source)
	if err != nil {
		return err
	}
	values, err := env.fields()
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: streamFor(event),
		Values: values,
	}
	if r.cfg.StreamMaxLen > 0 {
		args.MaxLen = r.cfg.StreamMaxLen
		args.Approx = true
	}

	if err := r.redis.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

func streamFor(event *OutboxEvent) string {
	if event.TargetStream == "" {
		return DefaultTargetStream
	}
	return event.TargetStream
}

// Stats reports publish outcomes since the relay was created.
func (r *Relay) Stats() RelayStats {
	return RelayStats{Published: r.published.Load(), Failed: r.failed.Load()}
}

// PendingCount counts events still waiting to be relayed, retries included.
func (r *Relay) PendingCount(ctx context.Context) (int64, error) {
	return r.outbox.CountByStatus(ctx, OutboxStatusPending, OutboxStatusFailed)
}

func (r *Relay) DeadLetterCount(ctx context.Context) (int64, error) {
	return r.outbox.CountByStatus(ctx, OutboxStatusDeadLetter)
}
