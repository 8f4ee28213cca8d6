package model

import (
	"strings"
	"time"
)

// SummaryStyle selects the summary format.
type SummaryStyle string

const (
	StyleConcise      SummaryStyle = "concise"
	StyleDetailed     SummaryStyle = "detailed"
	StyleBulletPoints SummaryStyle = "bullet_points"
)

// IsValid checks if the style is one of the known values.
func (s SummaryStyle) IsValid() bool {
	switch s {
	case StyleConcise, StyleDetailed, StyleBulletPoints:
		return true
	}
	return false
}

// ParseSummaryStyle normalizes s. Empty input means concise.
func ParseSummaryStyle(s string) (SummaryStyle, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StyleConcise, true
	}
	st := SummaryStyle(s)
	return st, st.IsValid()
}

// Summary is a stored summarization result.
type Summary struct {
	ID               string       `json:"id"`
	UserID           string       `json:"-"`
	Style            SummaryStyle `json:"style"`
	MaxLength        int          `json:"max_length"`
	OriginalLength   int          `json:"original_length"`
	SummaryLength    int          `json:"summary_length"`
	CompressionRatio float64      `json:"compression_ratio"`
	WordCount        int          `json:"word_count"`
	ChunkCount       int          `json:"chunk_count"`
	Text             string       `json:"summary"`
	CreatedAt        time.Time    `json:"created_at"`
}
