package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/studycompanion/studycompanion/internal/model"
)

const (
	maxMinutesPerRecord = 24 * 60
	maxNoteLength       = 1000
)

// ProgressStore persists progress records.
type ProgressStore interface {
	CreateProgress(ctx context.Context, rec *model.ProgressRecord) error
	ListProgress(ctx context.Context, userID, subject string, limit int) ([]*model.ProgressRecord, error)
	ProgressOverview(ctx context.Context, userID string) ([]*model.SubjectProgress, error)
}

// Progress tracks study sessions.
type Progress struct {
	store ProgressStore
	now   func() time.Time
}

// NewProgress creates a Progress service.
func NewProgress(store ProgressStore) *Progress {
	return &Progress{store: store, now: time.Now}
}

// RecordInput defines input for Record.
type RecordInput struct {
	Subject      string
	Activity     string
	Completion   int
	MinutesSpent int
	Note         string
}

// Record validates and stores one study session.
func (p *Progress) Record(ctx context.Context, userID string, in RecordInput) (*model.ProgressRecord, error) {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		return nil, ErrSubjectRequired
	}
	if utf8.RuneCountInString(subject) > maxSubjectLength {
		return nil, ErrSubjectTooLong
	}

	activity := model.Activity(strings.ToLower(strings.TrimSpace(in.Activity)))
	if activity == "" {
		activity = model.ActivityOther
	}
	if !activity.IsValid() {
		return nil, ErrInvalidActivity
	}
	if in.Completion < 0 || in.Completion > 100 {
		return nil, ErrInvalidCompletion
	}
	if in.MinutesSpent < 0 || in.MinutesSpent > maxMinutesPerRecord {
		return nil, ErrInvalidMinutes
	}
	note := strings.TrimSpace(in.Note)
	if utf8.RuneCountInString(note) > maxNoteLength {
		return nil, ErrNoteTooLong
	}

	rec := &model.ProgressRecord{
		ID:           ulid.Make().String(),
		UserID:       userID,
		Subject:      subject,
		Activity:     activity,
		Completion:   in.Completion,
		MinutesSpent: in.MinutesSpent,
		Note:         note,
		RecordedAt:   p.now().UTC(),
	}
	if err := p.store.CreateProgress(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns a user's records, newest first.
func (p *Progress) List(ctx context.Context, userID, subject string, limit int) ([]*model.ProgressRecord, error) {
	return p.store.ListProgress(ctx, userID, strings.TrimSpace(subject), limit)
}

// Overview aggregates a user's records per subject.
func (p *Progress) Overview(ctx context.Context, userID string) ([]*model.SubjectProgress, error) {
	return p.store.ProgressOverview(ctx, userID)
}
