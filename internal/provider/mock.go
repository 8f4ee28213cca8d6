package provider

import (
	"context"
	"strings"
)

// Mock is a deterministic Client for local development without an API key.
type Mock struct{}

// NewMock returns a Mock client.
func NewMock() *Mock {
	return &Mock{}
}

const mockWordLimit = 40

// Complete echoes a shortened form of the last user message.
// JSON requests receive an empty recommendation list.
func (m *Mock) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	messages := normalizeMessages(req.Messages)
	if len(messages) == 0 {
		return nil, ErrBadRequest
	}

	if req.JSON {
		return &Completion{Text: `{"recommendations":[]}`, Model: "mock", FinishReason: "stop"}, nil
	}

	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = messages[i].Content
			break
		}
	}

	words := strings.Fields(last)
	if len(words) > mockWordLimit {
		words = words[:mockWordLimit]
	}
	text := "[mock] " + strings.Join(words, " ")

	return &Completion{
		Text:             text,
		Model:            "mock",
		FinishReason:     "stop",
		PromptTokens:     len(strings.Fields(last)),
		CompletionTokens: len(words),
	}, nil
}
