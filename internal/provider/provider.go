// Package provider talks to the external chat-completion service that generates
// summaries, recommendations and tutor answers.
package provider

import (
	"context"
	"strings"
)

// Message roles understood by chat-completion APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Features tag each call for metrics and usage accounting.
const (
	FeatureSummarize = "summarize"
	FeatureRecommend = "recommend"
	FeatureChat      = "chat"
)

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a single chat completion.
type Request struct {
	// Model overrides the client's default model when set.
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
	// JSON asks the provider to answer with a single JSON object.
	JSON bool

	// Feature and UserID are not sent upstream; they label metrics and usage.
	Feature string
	UserID  string
}

// Completion is the provider's answer.
type Completion struct {
	Text             string
	Model            string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Client generates chat completions.
type Client interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Temperature returns a pointer suitable for Request.Temperature.
func Temperature(v float64) *float64 {
	return &v
}

// normalizeMessages drops messages with an empty role or content and trims the rest.
func normalizeMessages(in []Message) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		role := strings.TrimSpace(m.Role)
		content := strings.TrimSpace(m.Content)
		if role == "" || content == "" {
			continue
		}
		out = append(out, Message{Role: role, Content: content})
	}
	return out
}
