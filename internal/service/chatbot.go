package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/studycompanion/studycompanion/internal/model"
	"github.com/studycompanion/studycompanion/internal/provider"
)

const (
	maxQuestionLength       = 4000
	maxConversationIDLength = 64
	// historyMessages is ten question/answer turns.
	historyMessages = 20
)

// ChatStore persists conversation turns.
type ChatStore interface {
	CreateChatMessages(ctx context.Context, msgs ...*model.ChatMessage) error
	RecentChatMessages(ctx context.Context, userID, conversationID string, limit int) ([]*model.ChatMessage, error)
	ListChatMessages(ctx context.Context, userID, conversationID string) ([]*model.ChatMessage, error)
}

// Chatbot answers study questions through the provider.
type Chatbot struct {
	client provider.Client
	store  ChatStore
	logger *slog.Logger
	now    func() time.Time
}

// NewChatbot creates a Chatbot. store may be nil, making every chat stateless.
func NewChatbot(client provider.Client, store ChatStore, logger *slog.Logger) *Chatbot {
	return &Chatbot{
		client: client,
		store:  store,
		logger: logger.With("component", "chatbot"),
		now:    time.Now,
	}
}

// AskInput defines input for Ask.
type AskInput struct {
	Question       string
	ConversationID string
	Subject        string
	UserID         string
}

// Answer is the tutor's reply.
type Answer struct {
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
}

// Ask answers a question, continuing the stored conversation for signed-in users.
func (c *Chatbot) Ask(ctx context.Context, in AskInput) (*Answer, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, ErrQuestionRequired
	}
	if utf8.RuneCountInString(question) > maxQuestionLength {
		return nil, ErrQuestionTooLong
	}

	convID := strings.TrimSpace(in.ConversationID)
	if len(convID) > maxConversationIDLength {
		return nil, ErrInvalidConversationID
	}
	if convID == "" {
		convID = ulid.Make().String()
	}

	stateful := c.store != nil && in.UserID != ""
	messages := []provider.Message{{Role: provider.RoleSystem, Content: tutorPrompt(in.Subject)}}
	if stateful {
		history, err := c.store.RecentChatMessages(ctx, in.UserID, convID, historyMessages)
		if err != nil {
			return nil, fmt.Errorf("load conversation: %w", err)
		}
		for _, m := range history {
			messages = append(messages, provider.Message{Role: m.Role, Content: m.Content})
		}
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: question})

	askedAt := c.now().UTC()
	out, err := c.client.Complete(ctx, provider.Request{
		Messages:    messages,
		MaxTokens:   700,
		Temperature: provider.Temperature(0.7),
		Feature:     provider.FeatureChat,
		UserID:      in.UserID,
	})
	if err != nil {
		return nil, err
	}

	if stateful {
		err := c.store.CreateChatMessages(ctx,
			&model.ChatMessage{
				ID:             ulid.Make().String(),
				UserID:         in.UserID,
				ConversationID: convID,
				Role:           model.ChatRoleUser,
				Content:        question,
				CreatedAt:      askedAt,
			},
			&model.ChatMessage{
				ID:             ulid.Make().String(),
				UserID:         in.UserID,
				ConversationID: convID,
				Role:           model.ChatRoleAssistant,
				Content:        out.Text,
				CreatedAt:      c.now().UTC(),
			},
		)
		if err != nil {
			c.logger.Error("failed to save chat turn", "user_id", in.UserID, "conversation_id", convID, "error", err)
		}
	}

	return &Answer{ConversationID: convID, Answer: out.Text}, nil
}

// History lists the stored turns of a conversation in order.
func (c *Chatbot) History(ctx context.Context, userID, conversationID string) ([]*model.ChatMessage, error) {
	if c.store == nil {
		return nil, ErrConversationNotFound
	}
	msgs, err := c.store.ListChatMessages(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrConversationNotFound
	}
	return msgs, nil
}

func tutorPrompt(subject string) string {
	prompt := "You are a patient, encouraging study tutor. Explain concepts step by step, " +
		"check understanding with a short follow-up question when useful, and keep answers focused."
	if s := strings.TrimSpace(subject); s != "" {
		prompt += fmt.Sprintf(" The student is studying %s.", s)
	}
	return prompt
}
