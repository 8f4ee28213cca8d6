package repository

import (
	"context"
	"fmt"

	"github.com/studycompanion/studycompanion/internal/model"
)

// CreateSummary stores a summarization result in the user's history.
func (r *Repository) CreateSummary(ctx context.Context, s *model.Summary) error {
	query := `
		INSERT INTO summaries (
			id, user_id, style, max_length, original_length, summary_length,
			compression_ratio, word_count, chunk_count, summary, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.UserID,
		string(s.Style),
		s.MaxLength,
		s.OriginalLength,
		s.SummaryLength,
		s.CompressionRatio,
		s.WordCount,
		s.ChunkCount,
		s.Text,
		s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create summary: %w", err)
	}
	return nil
}

// ListSummaries returns a user's summaries, newest first.
func (r *Repository) ListSummaries(ctx context.Context, userID string, limit int) ([]*model.Summary, error) {
	query := `
		SELECT id, style, max_length, original_length, summary_length,
			   compression_ratio, word_count, chunk_count, summary, created_at
		FROM summaries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, clampLimit(limit, 20, 100))
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Summary, 0)
	for rows.Next() {
		var s model.Summary
		var style string
		if err := rows.Scan(
			&s.ID,
			&style,
			&s.MaxLength,
			&s.OriginalLength,
			&s.SummaryLength,
			&s.CompressionRatio,
			&s.WordCount,
			&s.ChunkCount,
			&s.Text,
			&s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.UserID = userID
		s.Style = model.SummaryStyle(style)
		out = append(out, &s)
	}

	return out, rows.Err()
}
