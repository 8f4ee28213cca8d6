// Package textsplit breaks long documents into overlapping chunks that fit a
// model's context. Splitting prefers paragraph breaks, then lines, then words,
// and falls back to individual characters.
package textsplit

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Defaults used for long-text summarization.
const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter splits text recursively on a list of separators.
// Sizes are measured in runes.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// New returns a Splitter with the default separators.
func New(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, errors.New("textsplit: chunk size must be positive")
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, errors.New("textsplit: chunk overlap must be in [0, chunk size)")
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}, nil
}

// Default returns a Splitter using DefaultChunkSize and DefaultChunkOverlap.
func Default() *Splitter {
	s, _ := New(DefaultChunkSize, DefaultChunkOverlap)
	return s
}

// Split returns the chunks of text. Whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" {
			sep = ""
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = strings.Split(text, "")
	} else {
		pieces = strings.Split(text, sep)
	}

	var chunks, fitting []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if runeLen(p) < s.chunkSize {
			fitting = append(fitting, p)
			continue
		}
		if len(fitting) > 0 {
			chunks = append(chunks, s.merge(fitting, sep)...)
			fitting = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, p)
		} else {
			chunks = append(chunks, s.split(p, rest)...)
		}
	}
	if len(fitting) > 0 {
		chunks = append(chunks, s.merge(fitting, sep)...)
	}
	return chunks
}

// merge packs pieces into chunks of at most chunkSize runes, carrying up to
// chunkOverlap runes of trailing context into the next chunk.
func (s *Splitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var (
		chunks  []string
		current []string
		total   int
	)

	joinedLen := func(n int) int {
		if len(current) > 0 {
			return n + sepLen
		}
		return n
	}

	for _, p := range pieces {
		l := runeLen(p)
		if total+joinedLen(l) > s.chunkSize && len(current) > 0 {
			if chunk := join(current, sep); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.chunkOverlap || (total > 0 && total+joinedLen(l) > s.chunkSize) {
				drop := runeLen(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		total += joinedLen(l)
		current = append(current, p)
	}
	if chunk := join(current, sep); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func join(pieces []string, sep string) string {
	return strings.TrimSpace(strings.Join(pieces, sep))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
