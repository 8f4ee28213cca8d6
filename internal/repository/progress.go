package repository

import (
	"context"
	"fmt"

	"github.com/studycompanion/studycompanion/internal/model"
)

// CreateProgress inserts a progress record.
func (r *Repository) CreateProgress(ctx context.Context, rec *model.ProgressRecord) error {
	query := `
		INSERT INTO progress_records (id, user_id, subject, activity, completion, minutes_spent, note, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Subject,
		string(rec.Activity),
		rec.Completion,
		rec.MinutesSpent,
		rec.Note,
		rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create progress record: %w", err)
	}
	return nil
}

// ListProgress returns a user's records, newest first. An empty subject matches all.
func (r *Repository) ListProgress(ctx context.Context, userID, subject string, limit int) ([]*model.ProgressRecord, error) {
	query := `
		SELECT id, user_id, subject, activity, completion, minutes_spent, note, recorded_at
		FROM progress_records
		WHERE user_id = $1 AND ($2 = '' OR lower(subject) = lower($2))
		ORDER BY recorded_at DESC, id DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, userID, subject, clampLimit(limit, 50, 200))
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	records := make([]*model.ProgressRecord, 0)
	for rows.Next() {
		var rec model.ProgressRecord
		var activity string
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Subject,
			&activity,
			&rec.Completion,
			&rec.MinutesSpent,
			&rec.Note,
			&rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		rec.Activity = model.Activity(activity)
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// ProgressOverview aggregates a user's records per subject, most recent first.
func (r *Repository) ProgressOverview(ctx context.Context, userID string) ([]*model.SubjectProgress, error) {
	query := `
		SELECT
			MIN(subject),
			COUNT(*),
			COALESCE(AVG(completion), 0)::float8,
			COALESCE(SUM(minutes_spent), 0),
			MAX(recorded_at)
		FROM progress_records
		WHERE user_id = $1
		GROUP BY lower(subject)
		ORDER BY MAX(recorded_at) DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query progress overview: %w", err)
	}
	defer rows.Close()

	out := make([]*model.SubjectProgress, 0)
	for rows.Next() {
		var sp model.SubjectProgress
		if err := rows.Scan(&sp.Subject, &sp.Records, &sp.AverageCompletion, &sp.TotalMinutes, &sp.LastActivityAt); err != nil {
			return nil, fmt.Errorf("scan progress overview: %w", err)
		}
		out = append(out, &sp)
	}

	return out, rows.Err()
}
