package model

import "time"

// UsageEvent records one provider call.
type UsageEvent struct {
	ID      string `json:"id"`       // ULID (time-sortable)
	EventID string `json:"event_id"` // Idempotency key (Redis stream ID)

	UserID  string `json:"user_id,omitempty"` // Empty for anonymous callers
	Feature string `json:"feature"`
	Model   string `json:"model"`
	Status  string `json:"status"` // "success" or "failed"

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	LatencyMs        int `json:"latency_ms"`

	OccurredAt time.Time `json:"occurred_at"`
}

// DailyUsage is the per-day aggregate for one user and feature.
type DailyUsage struct {
	Day              time.Time `json:"-"`
	Date             string    `json:"date"` // ISO date
	UserID           string    `json:"-"`
	Feature          string    `json:"feature"`
	Requests         int64     `json:"requests"`
	Failures         int64     `json:"failures"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
}
