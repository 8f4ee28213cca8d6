// Package usage records provider calls on a Redis stream and aggregates
// them into per-day usage in PostgreSQL.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studycompanion/studycompanion/internal/metrics"
	"github.com/studycompanion/studycompanion/internal/provider"
)

const (
	// StreamKey is the Redis stream for usage events.
	StreamKey = "stream:usage_events"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:usage_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// EventPayload is the compressed event format for the Redis stream.
type EventPayload struct {
	UserID           string `json:"u,omitempty"` // empty for anonymous callers
	Feature          string `json:"f"`
	Model            string `json:"m"`
	Status           string `json:"s"`
	PromptTokens     int    `json:"pt,omitempty"`
	CompletionTokens int    `json:"ct,omitempty"`
	LatencyMs        int    `json:"l"`
	OccurredAt       int64  `json:"t"` // Unix milliseconds
}

// PayloadFromCall converts a finished provider call to a stream payload.
func PayloadFromCall(call provider.Call) EventPayload {
	return EventPayload{
		UserID:           call.UserID,
		Feature:          call.Feature,
		Model:            call.Model,
		Status:           call.Status,
		PromptTokens:     call.PromptTokens,
		CompletionTokens: call.CompletionTokens,
		LatencyMs:        int(call.Latency.Milliseconds()),
		OccurredAt:       call.At.UnixMilli(),
	}
}

// Publisher enqueues usage events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new usage event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "usage.publisher"),
		metrics: recorder,
	}
}

// ObserveCall implements provider.CallObserver.
func (p *Publisher) ObserveCall(_ context.Context, call provider.Call) {
	p.PublishAsync(PayloadFromCall(call))
}

// Publish adds a usage event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event EventPayload) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()

	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishAsync(event EventPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish usage event",
				"feature", event.Feature,
				"error", err,
			)
			p.metrics.IncUsageEventPublished(metrics.StatusDropped)
			return
		}

		p.logger.Debug("usage event published",
			"feature", event.Feature,
			"stream_id", streamID,
		)
		p.metrics.IncUsageEventPublished(metrics.StatusSuccess)
	}()
}
