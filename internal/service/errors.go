// Package service provides business logic for the application.
package service

import (
	"errors"
)

// ValidationError reports bad caller input. Handlers answer 400 with Message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Summarizer errors.
var (
	ErrEmptyText        = invalid("text", "Text cannot be empty")
	ErrInvalidMaxLength = invalid("max_length", "max_length must be between 10 and 1000")
	ErrInvalidStyle     = invalid("style", "style must be one of concise, detailed, bullet_points")
	ErrNoTexts          = invalid("texts", "texts must contain at least one item")
	ErrTooManyTexts     = invalid("texts", "texts must contain at most 20 items")

	// ErrTextTooLong maps to 413 rather than a validation error.
	ErrTextTooLong = errors.New("text exceeds the maximum length")
)

// Recommender errors.
var (
	ErrSubjectRequired   = invalid("subject", "Subject is required")
	ErrSubjectTooLong    = invalid("subject", "subject must be at most 100 characters")
	ErrInvalidLevel      = invalid("level", "level must be one of beginner, intermediate, advanced")
	ErrInvalidAIResponse = errors.New("provider returned an unusable response")
)

// Chatbot errors.
var (
	ErrQuestionRequired      = invalid("question", "Question is required")
	ErrQuestionTooLong       = invalid("question", "question must be at most 4000 characters")
	ErrInvalidConversationID = invalid("conversation_id", "conversation_id is invalid")
	ErrConversationNotFound  = errors.New("conversation not found")
)

// Progress errors.
var (
	ErrInvalidActivity   = invalid("activity", "activity is not recognised")
	ErrInvalidCompletion = invalid("completion", "completion must be between 0 and 100")
	ErrInvalidMinutes    = invalid("minutes_spent", "minutes_spent must be between 0 and 1440")
	ErrNoteTooLong       = invalid("note", "note must be at most 1000 characters")
)

// Account errors.
var (
	ErrInvalidEmail       = invalid("email", "email address is invalid")
	ErrInvalidPassword    = invalid("password", "password must be between 8 and 128 characters")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidSession     = errors.New("invalid or expired session")
)

// Usage errors.
var (
	ErrInvalidDays = invalid("days", "days must be between 1 and 90")
)

// IsValidation reports whether err is caller input error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
