package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/studycompanion/studycompanion/internal/model"
)

// CreateChatMessages stores conversation turns in one batch.
func (r *Repository) CreateChatMessages(ctx context.Context, msgs ...*model.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	query := `
		INSERT INTO chat_messages (id, user_id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	batch := &pgx.Batch{}
	for _, m := range msgs {
		batch.Queue(query, m.ID, m.UserID, m.ConversationID, m.Role, m.Content, m.CreatedAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range msgs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert chat message %d: %w", i, err)
		}
	}
	return nil
}

// RecentChatMessages returns the last limit turns of a conversation in chronological order.
func (r *Repository) RecentChatMessages(ctx context.Context, userID, conversationID string, limit int) ([]*model.ChatMessage, error) {
	query := `
		SELECT id, user_id, conversation_id, role, content, created_at
		FROM (
			SELECT id, user_id, conversation_id, role, content, created_at
			FROM chat_messages
			WHERE user_id = $1 AND conversation_id = $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) recent
		ORDER BY created_at, id
	`
	return r.queryChat(ctx, query, userID, conversationID, clampLimit(limit, 10, 200))
}

// ListChatMessages returns a whole conversation in chronological order.
func (r *Repository) ListChatMessages(ctx context.Context, userID, conversationID string) ([]*model.ChatMessage, error) {
	query := `
		SELECT id, user_id, conversation_id, role, content, created_at
		FROM chat_messages
		WHERE user_id = $1 AND conversation_id = $2
		ORDER BY created_at, id
		LIMIT 1000
	`
	return r.queryChat(ctx, query, userID, conversationID)
}

func (r *Repository) queryChat(ctx context.Context, query string, args ...any) ([]*model.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	out := make([]*model.ChatMessage, 0)
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
