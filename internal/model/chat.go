package model

import "time"

// Chat roles persisted in chat_messages.
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of a stored conversation.
type ChatMessage struct {
	ID             string    `json:"id"`
	UserID         string    `json:"-"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
