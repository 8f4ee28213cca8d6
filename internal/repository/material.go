package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/studycompanion/studycompanion/internal/model"
)

// CreateMaterials saves recommended materials in one batch.
func (r *Repository) CreateMaterials(ctx context.Context, materials []*model.StudyMaterial) error {
	if len(materials) == 0 {
		return nil
	}

	query := `
		INSERT INTO study_materials (id, user_id, subject, level, title, kind, description, url, source, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	batch := &pgx.Batch{}
	for _, m := range materials {
		tags := m.Tags
		if tags == nil {
			tags = []string{}
		}
		batch.Queue(query,
			m.ID,
			nullableString(m.UserID),
			m.Subject,
			string(m.Level),
			m.Title,
			string(m.Kind),
			m.Description,
			m.URL,
			string(m.Source),
			pq.Array(tags),
			m.CreatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range materials {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert material %d: %w", i, err)
		}
	}
	return nil
}

// ListMaterials returns a user's saved materials, newest first. An empty subject matches all.
func (r *Repository) ListMaterials(ctx context.Context, userID, subject string, limit int) ([]*model.StudyMaterial, error) {
	query := `
		SELECT id, subject, level, title, kind, description, url, source, tags, created_at
		FROM study_materials
		WHERE user_id = $1 AND ($2 = '' OR lower(subject) = lower($2))
		ORDER BY created_at DESC, id
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, userID, subject, clampLimit(limit, 50, 200))
	if err != nil {
		return nil, fmt.Errorf("query materials: %w", err)
	}
	defer rows.Close()

	out := make([]*model.StudyMaterial, 0)
	for rows.Next() {
		var m model.StudyMaterial
		var level, kind, source string
		var tags []string
		if err := rows.Scan(
			&m.ID,
			&m.Subject,
			&level,
			&m.Title,
			&kind,
			&m.Description,
			&m.URL,
			&source,
			pq.Array(&tags),
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan material: %w", err)
		}
		m.UserID = userID
		m.Level = model.Level(level)
		m.Kind = model.MaterialKind(kind)
		m.Source = model.MaterialSource(source)
		m.Tags = tags
		out = append(out, &m)
	}

	return out, rows.Err()
}

// nullableString returns nil for empty strings.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
