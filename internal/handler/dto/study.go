// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/studycompanion/studycompanion/internal/model"
	"github.com/studycompanion/studycompanion/internal/service"
)

// SummarizeRequest is the body of POST /api/v1/summarize.
type SummarizeRequest struct {
	Text      string `json:"text"`
	MaxLength int    `json:"max_length,omitempty"`
	Style     string `json:"style,omitempty"`
}

// BatchSummarizeRequest is the body of POST /api/v1/summarize/batch.
type BatchSummarizeRequest struct {
	Texts     []string `json:"texts"`
	MaxLength int      `json:"max_length,omitempty"`
	Style     string   `json:"style,omitempty"`
}

// BatchSummarizeResponse lists one item per submitted text, in order.
type BatchSummarizeResponse struct {
	Results []service.BatchItem `json:"results"`
}

// RecommendRequest is the body of POST /api/v1/recommendations.
type RecommendRequest struct {
	Subject string `json:"subject"`
	Level   string `json:"level,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id,omitempty"`
	Subject        string `json:"subject,omitempty"`
}

// ChatHistoryResponse lists the turns of one conversation.
type ChatHistoryResponse struct {
	ConversationID string               `json:"conversation_id"`
	Messages       []*model.ChatMessage `json:"messages"`
}

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued session token.
type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// ProgressRequest is the body of POST /api/v1/progress.
type ProgressRequest struct {
	Subject      string `json:"subject"`
	Activity     string `json:"activity,omitempty"`
	Completion   int    `json:"completion"`
	MinutesSpent int    `json:"minutes_spent,omitempty"`
	Note         string `json:"note,omitempty"`
}

// ListResponse wraps a list payload.
type ListResponse[T any] struct {
	Data []T `json:"data"`
}

// NewListResponse never encodes a nil slice as null.
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Data: items}
}
