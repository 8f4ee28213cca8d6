package model

import (
	"strings"
	"time"
)

// Level is the learner's proficiency for recommendations.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// IsValid checks if the level is one of the known values.
func (l Level) IsValid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// ParseLevel normalizes s. Empty input means beginner.
func ParseLevel(s string) (Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelBeginner, true
	}
	l := Level(s)
	return l, l.IsValid()
}

// MaterialKind classifies a study material.
type MaterialKind string

const (
	KindBook     MaterialKind = "book"
	KindVideo    MaterialKind = "video"
	KindCourse   MaterialKind = "course"
	KindArticle  MaterialKind = "article"
	KindPractice MaterialKind = "practice"
)

// NormalizeKind maps free-form kinds onto the known set, defaulting to article.
func NormalizeKind(s string) MaterialKind {
	switch k := MaterialKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindBook, KindVideo, KindCourse, KindArticle, KindPractice:
		return k
	case "exercise", "exercises", "problems", "quiz":
		return KindPractice
	case "tutorial", "website", "blog", "documentation", "docs":
		return KindArticle
	case "mooc", "class":
		return KindCourse
	case "textbook":
		return KindBook
	default:
		return KindArticle
	}
}

// MaterialSource records where a recommendation came from.
type MaterialSource string

const (
	SourceCatalog MaterialSource = "catalog"
	SourceAI      MaterialSource = "ai"
)

// StudyMaterial is a recommended resource, optionally saved for a user.
type StudyMaterial struct {
	ID          string         `json:"id,omitempty"`
	UserID      string         `json:"-"`
	Subject     string         `json:"subject"`
	Level       Level          `json:"level"`
	Title       string         `json:"title"`
	Kind        MaterialKind   `json:"kind"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Source      MaterialSource `json:"source"`
	Tags        []string       `json:"tags,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitempty"`
}

// Activity labels a progress record.
type Activity string

const (
	ActivitySummary        Activity = "summary"
	ActivityRecommendation Activity = "recommendation"
	ActivityChat           Activity = "chat"
	ActivityQuiz           Activity = "quiz"
	ActivityReading        Activity = "reading"
	ActivityOther          Activity = "other"
)

// IsValid checks if the activity is one of the known values.
func (a Activity) IsValid() bool {
	switch a {
	case ActivitySummary, ActivityRecommendation, ActivityChat, ActivityQuiz, ActivityReading, ActivityOther:
		return true
	}
	return false
}

// ProgressRecord is one tracked study session.
type ProgressRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"-"`
	Subject      string    `json:"subject"`
	Activity     Activity  `json:"activity"`
	Completion   int       `json:"completion"` // 0-100
	MinutesSpent int       `json:"minutes_spent"`
	Note         string    `json:"note,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// SubjectProgress aggregates a user's records for one subject.
type SubjectProgress struct {
	Subject           string    `json:"subject"`
	Records           int64     `json:"records"`
	AverageCompletion float64   `json:"average_completion"`
	TotalMinutes      int64     `json:"total_minutes"`
	LastActivityAt    time.Time `json:"last_activity_at"`
}
