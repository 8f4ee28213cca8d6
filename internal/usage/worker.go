package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/studycompanion/studycompanion/internal/metrics"
	"github.com/studycompanion/studycompanion/internal/model"
)

// ConsumerGroup is the Redis consumer group shared by all usage workers.
const ConsumerGroup = "usage_workers"

const deadLetterMaxLen = 10000

// Store persists a batch of usage events and the daily totals they touch
// in one commit, returning how many events were new.
type Store interface {
	RecordBatch(ctx context.Context, events []*model.UsageEvent) (int64, error)
}

// WorkerConfig tunes a Worker. Zero fields take the defaults noted.
type WorkerConfig struct {
	Consumer     string        // consumer name; default host-pid-ulid
	BatchSize    int           // default 200
	Block        time.Duration // XREADGROUP block; default 5s
	Attempts     int           // commit attempts per batch; default 3
	RetryBase    time.Duration // first backoff, doubled per attempt; default 1s
	ReclaimEvery time.Duration // default 10s
	ReclaimIdle  time.Duration // pending age before another consumer takes over; default 30s
	DepthEvery   time.Duration // backlog gauge refresh; default 5s
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Consumer == "" {
		c.Consumer = consumerName()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.ReclaimEvery <= 0 {
		c.ReclaimEvery = 10 * time.Second
	}
	if c.ReclaimIdle <= 0 {
		c.ReclaimIdle = 30 * time.Second
	}
	if c.DepthEvery <= 0 {
		c.DepthEvery = 5 * time.Second
	}
	return c
}

// consumerName is unique per process so a restarted worker never inherits
// a dead one's pending entries except through reclaim.
func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "usage"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), ulid.Make())
}

// Worker drains the usage stream into the Store. Entries are acked only
// after their batch commits; a failed batch stays pending and is picked up
// again by reclaim.
type Worker struct {
	rdb     *redis.Client
	store   Store
	cfg     WorkerConfig
	logger  *slog.Logger
	metrics metrics.Recorder

	reclaimCursor string
	nextReclaim   time.Time
	nextDepth     time.Time

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

// NewWorker creates a usage worker.
func NewWorker(rdb *redis.Client, store Store, cfg WorkerConfig, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	cfg = cfg.withDefaults()
	return &Worker{
		rdb:           rdb,
		store:         store,
		cfg:           cfg,
		logger:        logger.With("component", "usage.worker", "consumer", cfg.Consumer),
		metrics:       recorder,
		reclaimCursor: "0-0",
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// Run consumes the stream until ctx ends or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("usage worker already running")
	}
	defer close(w.stopped)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := w.rdb.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	w.logger.Info("usage worker started")
	for ctx.Err() == nil {
		if err := w.step(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("usage step failed", "error", err)
			_ = wait(ctx, time.Second)
		}
	}
	w.logger.Info("usage worker stopped")
	return nil
}

// Shutdown stops Run and waits for it to return. It matches server.ShutdownFunc.
func (w *Worker) Shutdown(ctx context.Context) error {
	if !w.running.Load() {
		return nil
	}
	w.stopOnce.Do(func() { close(w.stop) })

	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		w.logger.Warn("usage worker did not stop in time")
		return ctx.Err()
	}
}

// step handles one batch: reclaimed entries when due, otherwise new ones.
func (w *Worker) step(ctx context.Context) error {
	w.refreshDepth(ctx)

	msgs, err := w.reclaim(ctx)
	if err != nil {
		w.logger.Warn("reclaim failed", "error", err)
	}
	if len(msgs) == 0 {
		if msgs, err = w.read(ctx); err != nil {
			return err
		}
	}
	if len(msgs) == 0 {
		return nil
	}

	events := make([]*model.UsageEvent, 0, len(msgs))
	ids := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		ids = append(ids, msg.ID)
		event, err := decodeEvent(msg)
		if err != nil {
			w.deadLetter(ctx, msg, err)
			continue
		}
		events = append(events, event)
	}

	if len(events) > 0 {
		if err := w.commit(ctx, events); err != nil {
			return fmt.Errorf("commit %d events: %w", len(events), err)
		}
	}
	return w.rdb.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err()
}

func (w *Worker) read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.cfg.Consumer,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.cfg.BatchSize),
		Block:    w.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

// reclaim takes over entries another consumer left pending too long.
func (w *Worker) reclaim(ctx context.Context) ([]redis.XMessage, error) {
	now := time.Now()
	if now.Before(w.nextReclaim) {
		return nil, nil
	}
	w.nextReclaim = now.Add(w.cfg.ReclaimEvery)

	msgs, cursor, err := w.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.cfg.Consumer,
		MinIdle:  w.cfg.ReclaimIdle,
		Start:    w.reclaimCursor,
		Count:    int64(w.cfg.BatchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if cursor != "" {
		w.reclaimCursor = cursor
	}
	return msgs, nil
}

func (w *Worker) refreshDepth(ctx context.Context) {
	now := time.Now()
	if now.Before(w.nextDepth) {
		return
	}
	w.nextDepth = now.Add(w.cfg.DepthEvery)

	groups, err := w.rdb.XInfoGroups(ctx, StreamKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			w.logger.Warn("read usage backlog", "error", err)
		}
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetUsageQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

// decodeEvent turns a stream entry into a UsageEvent. Errors are
// *RejectedEventError. The entry id doubles as the idempotency key.
func decodeEvent(msg redis.XMessage) (*model.UsageEvent, error) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, rejected(ReasonMissingPayload, "entry has no string payload field")
	}

	var p EventPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, rejected(ReasonMalformedJSON, "%v", err)
	}
	if err := ValidateEventPayload(p); err != nil {
		return nil, err
	}

	return &model.UsageEvent{
		ID:               ulid.Make().String(),
		EventID:          msg.ID,
		UserID:           p.UserID,
		Feature:          p.Feature,
		Model:            p.Model,
		Status:           p.Status,
		PromptTokens:     p.PromptTokens,
		CompletionTokens: p.CompletionTokens,
		LatencyMs:        p.LatencyMs,
		OccurredAt:       time.UnixMilli(p.OccurredAt).UTC(),
	}, nil
}

// deadLetter parks an entry that can never be stored. It is acked with its batch.
func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, err error) {
	reason := ReasonMalformedJSON
	var rej *RejectedEventError
	if errors.As(err, &rej) {
		reason = rej.Reason
	}
	w.logger.Warn("usage event rejected", "entry_id", msg.ID, "reason", reason, "error", err)

	if xerr := w.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"entry_id":    msg.ID,
			"reason":      reason,
			"error":       err.Error(),
			"payload":     msg.Values["payload"],
			"rejected_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err(); xerr != nil {
		w.logger.Error("write usage dead letter", "entry_id", msg.ID, "error", xerr)
	}
	w.metrics.IncUsageEventProcessed(metrics.StatusSkipped)
}

// commit stores events, retrying with doubling backoff. Backoff waits end
// early when ctx does.
func (w *Worker) commit(ctx context.Context, events []*model.UsageEvent) error {
	start := time.Now()
	backoff := w.cfg.RetryBase

	var err error
	for attempt := 1; ; attempt++ {
		var inserted int64
		inserted, err = w.store.RecordBatch(ctx, events)
		if err == nil {
			w.recordCommitted(events, inserted, time.Since(start))
			return nil
		}
		if attempt == w.cfg.Attempts {
			break
		}
		w.logger.Warn("usage batch commit failed",
			"attempt", attempt,
			"events", len(events),
			"retry_in", backoff,
			"error", err,
		)
		if werr := wait(ctx, backoff); werr != nil {
			return werr
		}
		backoff *= 2
	}

	for range events {
		w.metrics.IncUsageEventProcessed(metrics.StatusFailed)
	}
	return err
}

func (w *Worker) recordCommitted(events []*model.UsageEvent, inserted int64, took time.Duration) {
	w.logger.Debug("usage batch committed",
		"events", len(events),
		"new", inserted,
		"duration_ms", took.Milliseconds(),
	)
	w.metrics.ObserveUsageBatchSize(len(events))
	w.metrics.ObserveUsageBatchDuration(took)
	for i := range events {
		status := metrics.StatusSuccess
		if int64(i) >= inserted {
			status = metrics.StatusSkipped
		}
		w.metrics.IncUsageEventProcessed(status)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
