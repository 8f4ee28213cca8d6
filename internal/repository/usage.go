package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/studycompanion/studycompanion/internal/model"
)

// UsageRepository provides database access for provider usage events.
type UsageRepository struct {
	repo *Repository
}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(repo *Repository) *UsageRepository {
	return &UsageRepository{repo: repo}
}

// RecordBatch stores events and rebuilds the daily_usage rows they touch in a
// single transaction. Events already stored (same event_id) are skipped, and
// the rebuilt totals come from usage_events, so a redelivered batch leaves
// the aggregates unchanged. It returns how many events were new.
func (r *UsageRepository) RecordBatch(ctx context.Context, events []*model.UsageEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	var inserted int64
	err := pgx.BeginFunc(ctx, r.repo.pool, func(tx pgx.Tx) error {
		n, err := insertUsageEvents(ctx, tx, events)
		if err != nil {
			return err
		}
		inserted = n

		for _, key := range uniqueDailyKeys(events) {
			if _, err := tx.Exec(ctx, rebuildDailyUsageSQL,
				key.userID, key.feature, key.day, key.day, key.day.Add(24*time.Hour),
			); err != nil {
				return fmt.Errorf("rebuild daily usage %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

const insertUsageEventSQL = `
	INSERT INTO usage_events (
		id, event_id, user_id, feature, model, status,
		prompt_tokens, completion_tokens, latency_ms, occurred_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (event_id) DO NOTHING
`

// rebuildDailyUsageSQL recounts one (user, feature, day) from usage_events.
// Anonymous events have a NULL user_id and aggregate under ''.
const rebuildDailyUsageSQL = `
	INSERT INTO daily_usage (day, user_id, feature, requests, failures, prompt_tokens, completion_tokens)
	SELECT $3::date, $1::text, $2::text,
		COUNT(*),
		COUNT(*) FILTER (WHERE status <> 'success'),
		COALESCE(SUM(prompt_tokens), 0),
		COALESCE(SUM(completion_tokens), 0)
	FROM usage_events
	WHERE COALESCE(user_id, '') = $1 AND feature = $2 AND occurred_at >= $4 AND occurred_at < $5
	ON CONFLICT (day, user_id, feature) DO UPDATE SET
		requests = EXCLUDED.requests,
		failures = EXCLUDED.failures,
		prompt_tokens = EXCLUDED.prompt_tokens,
		completion_tokens = EXCLUDED.completion_tokens
`

func insertUsageEvents(ctx context.Context, tx pgx.Tx, events []*model.UsageEvent) (int64, error) {
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(insertUsageEventSQL,
			e.ID, e.EventID, nullableString(e.UserID), e.Feature, e.Model, e.Status,
			e.PromptTokens, e.CompletionTokens, e.LatencyMs, e.OccurredAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for i := range events {
		tag, err := results.Exec()
		if err != nil {
			return 0, fmt.Errorf("insert usage event %s: %w", events[i].EventID, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, results.Close()
}

type dailyUsageKey struct {
	userID  string
	feature string
	day     time.Time
}

func (k dailyUsageKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.userID, k.feature, k.day.Format("2006-01-02"))
}

// uniqueDailyKeys returns the distinct (user, feature, UTC day) triples in events, sorted
// so concurrent batches lock daily_usage rows in the same order.
func uniqueDailyKeys(events []*model.UsageEvent) []dailyUsageKey {
	seen := make(map[string]dailyUsageKey)
	for _, event := range events {
		key := dailyUsageKey{
			userID:  event.UserID,
			feature: event.Feature,
			day:     event.OccurredAt.UTC().Truncate(24 * time.Hour),
		}
		seen[key.String()] = key
	}

	keys := make([]dailyUsageKey, 0, len(seen))
	for _, key := range seen {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// ListDailyUsage returns a user's daily usage between from and to (inclusive), newest first.
func (r *UsageRepository) ListDailyUsage(ctx context.Context, userID string, from, to time.Time) ([]*model.DailyUsage, error) {
	query := `
		SELECT day, user_id, feature, requests, failures, prompt_tokens, completion_tokens
		FROM daily_usage
		WHERE user_id = $1 AND day >= $2 AND day <= $3
		ORDER BY day DESC, feature
	`

	rows, err := r.repo.pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily usage: %w", err)
	}
	defer rows.Close()

	out := make([]*model.DailyUsage, 0)
	for rows.Next() {
		var d model.DailyUsage
		if err := rows.Scan(&d.Day, &d.UserID, &d.Feature, &d.Requests, &d.Failures, &d.PromptTokens, &d.CompletionTokens); err != nil {
			return nil, fmt.Errorf("scan daily usage: %w", err)
		}
		d.Date = d.Day.Format("2006-01-02")
		out = append(out, &d)
	}

	return out, rows.Err()
}
