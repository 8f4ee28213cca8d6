package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/studycompanion/studycompanion/internal/model"
	"github.com/studycompanion/studycompanion/internal/provider"
)

const (
	defaultRecommendations = 5
	maxRecommendations     = 10
	maxSubjectLength       = 100

	recommendSystemPrompt = "You are an experienced study advisor. Recommend real, well-known study materials. " +
		"Answer only with JSON."
)

// MaterialStore persists saved recommendations.
type MaterialStore interface {
	CreateMaterials(ctx context.Context, materials []*model.StudyMaterial) error
	ListMaterials(ctx context.Context, userID, subject string, limit int) ([]*model.StudyMaterial, error)
}

// Recommender suggests study materials from the catalog and the provider.
type Recommender struct {
	client  provider.Client
	store   MaterialStore
	catalog *Catalog
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecommender creates a Recommender. store may be nil.
func NewRecommender(client provider.Client, store MaterialStore, catalog *Catalog, logger *slog.Logger) *Recommender {
	return &Recommender{
		client:  client,
		store:   store,
		catalog: catalog,
		logger:  logger.With("component", "recommender"),
		now:     time.Now,
	}
}

// RecommendInput defines input for Recommend.
type RecommendInput struct {
	Subject string
	Level   string
	Limit   int
	UserID  string
}

// RecommendResult is the list of suggested materials.
type RecommendResult struct {
	Subject         string                 `json:"subject"`
	Level           model.Level            `json:"level"`
	Recommendations []*model.StudyMaterial `json:"recommendations"`
}

// Recommend returns up to Limit materials, catalog entries first.
func (r *Recommender) Recommend(ctx context.Context, in RecommendInput) (*RecommendResult, error) {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		return nil, ErrSubjectRequired
	}
	if utf8.RuneCountInString(subject) > maxSubjectLength {
		return nil, ErrSubjectTooLong
	}
	level, ok := model.ParseLevel(in.Level)
	if !ok {
		return nil, ErrInvalidLevel
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultRecommendations
	}
	if limit > maxRecommendations {
		limit = maxRecommendations
	}

	materials := r.catalog.Lookup(subject, level)
	if len(materials) < limit {
		suggested, err := r.suggest(ctx, subject, level, limit-len(materials), in.UserID)
		switch {
		case err == nil:
			materials = mergeMaterials(materials, suggested)
		case len(materials) > 0:
			r.logger.Warn("provider recommendations unavailable, serving catalog only",
				"subject", subject,
				"level", level,
				"error", err,
			)
		default:
			return nil, err
		}
	}
	if len(materials) > limit {
		materials = materials[:limit]
	}

	r.persist(ctx, in.UserID, materials)

	return &RecommendResult{Subject: subject, Level: level, Recommendations: materials}, nil
}

type aiRecommendations struct {
	Recommendations []struct {
		Title       string `json:"title"`
		Kind        string `json:"kind"`
		Description string `json:"description"`
		URL         string `json:"url"`
	} `json:"recommendations"`
}

func (r *Recommender) suggest(ctx context.Context, subject string, level model.Level, n int, userID string) ([]*model.StudyMaterial, error) {
	prompt := fmt.Sprintf(
		"Recommend %d study materials for a %s student learning %s.\n"+
			"Respond with a JSON object of the form "+
			`{"recommendations":[{"title":"","kind":"book|video|course|article|practice","description":"","url":""}]}`+
			". Leave url empty when unsure.",
		n, level, subject,
	)

	out, err := r.client.Complete(ctx, provider.Request{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: recommendSystemPrompt},
			{Role: provider.RoleUser, Content: prompt},
		},
		MaxTokens:   800,
		Temperature: provider.Temperature(0.7),
		JSON:        true,
		Feature:     provider.FeatureRecommend,
		UserID:      userID,
	})
	if err != nil {
		return nil, err
	}

	var parsed aiRecommendations
	if err := json.Unmarshal([]byte(stripCodeFence(out.Text)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAIResponse, err)
	}

	materials := make([]*model.StudyMaterial, 0, len(parsed.Recommendations))
	for _, rec := range parsed.Recommendations {
		title := strings.TrimSpace(rec.Title)
		if title == "" {
			continue
		}
		materials = append(materials, &model.StudyMaterial{
			Subject:     subject,
			Level:       level,
			Title:       title,
			Kind:        model.NormalizeKind(rec.Kind),
			Description: strings.TrimSpace(rec.Description),
			URL:         cleanURL(rec.URL),
			Source:      model.SourceAI,
		})
	}
	return materials, nil
}

func (r *Recommender) persist(ctx context.Context, userID string, materials []*model.StudyMaterial) {
	if r.store == nil || userID == "" || len(materials) == 0 {
		return
	}

	now := r.now().UTC()
	for _, m := range materials {
		m.ID = ulid.Make().String()
		m.UserID = userID
		m.CreatedAt = now
	}
	if err := r.store.CreateMaterials(ctx, materials); err != nil {
		r.logger.Error("failed to save recommendations", "user_id", userID, "error", err)
	}
}

// Materials lists a user's saved recommendations, optionally for one subject.
func (r *Recommender) Materials(ctx context.Context, userID, subject string, limit int) ([]*model.StudyMaterial, error) {
	if r.store == nil {
		return []*model.StudyMaterial{}, nil
	}
	return r.store.ListMaterials(ctx, userID, strings.TrimSpace(subject), limit)
}

// mergeMaterials appends extra to base, skipping titles already present (case-insensitive).
func mergeMaterials(base, extra []*model.StudyMaterial) []*model.StudyMaterial {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]*model.StudyMaterial, 0, len(base)+len(extra))
	for _, list := range [][]*model.StudyMaterial{base, extra} {
		for _, m := range list {
			key := strings.ToLower(strings.TrimSpace(m.Title))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// stripCodeFence removes a ```json fence some models wrap around JSON answers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// maxMaterialURLLength bounds URLs taken from provider answers.
const maxMaterialURLLength = 2048

// cleanURL keeps raw only when it is an absolute http(s) URL with a host.
// Anything else is dropped rather than shown to students.
func cleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxMaterialURLLength {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	if parsed.Host == "" {
		return ""
	}
	return raw
}
