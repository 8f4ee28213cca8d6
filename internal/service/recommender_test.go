package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/studycompanion/studycompanion/internal/model"
	"github.com/studycompanion/studycompanion/internal/provider"
)

const testCatalogYAML = `
subjects:
  - name: Chemistry
    aliases: [chem]
    materials:
      - title: Periodic Table Basics
        level: beginner
        kind: video
      - title: Organic Chemistry as a Second Language
        level: intermediate
        kind: textbook
      - title: Stoichiometry Drills
        level: beginner
        kind: exercises
`

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := ParseCatalog([]byte(testCatalogYAML))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	return c
}

func TestDefaultCatalog_Parses(t *testing.T) {
	t.Parallel()

	c := DefaultCatalog()
	if got := c.Lookup("Math", model.LevelBeginner); len(got) == 0 {
		t.Error("expected beginner math materials via alias")
	}
	for _, m := range c.Lookup("programming", model.LevelBeginner) {
		if m.Source != model.SourceCatalog || m.Level != model.LevelBeginner {
			t.Errorf("unexpected material %+v", m)
		}
	}
}

func TestParseCatalog_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "subjects: ["},
		{"no name", "subjects:\n  - materials: []\n"},
		{"no title", "subjects:\n  - name: x\n    materials:\n      - level: beginner\n"},
		{"bad level", "subjects:\n  - name: x\n    materials:\n      - title: t\n        level: expert\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCatalog([]byte(tt.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCatalog_LookupNormalizes(t *testing.T) {
	t.Parallel()

	c := testCatalog(t)
	got := c.Lookup("  CHEM ", model.LevelBeginner)
	if len(got) != 2 {
		t.Fatalf("expected 2 beginner materials, got %d", len(got))
	}
	if got[0].Title != "Periodic Table Basics" || got[1].Kind != model.KindPractice {
		t.Errorf("unexpected lookup result %+v %+v", got[0], got[1])
	}
	if len(c.Lookup("astronomy", model.LevelBeginner)) != 0 {
		t.Error("unknown subject should be empty")
	}
}

func aiJSON(titles ...string) string {
	var parts []string
	for _, title := range titles {
		parts = append(parts, `{"title":"`+title+`","kind":"tutorial","description":"d","url":"https://example.com/`+strings.ReplaceAll(title, " ", "-")+`"}`)
	}
	return `{"recommendations":[` + strings.Join(parts, ",") + `]}`
}

func TestRecommend_MergesCatalogAndProvider(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: func(req provider.Request) (string, error) {
		return aiJSON("periodic table basics", "Khan Academy Chemistry", "Chem Lab Videos", "Extra"), nil
	}}
	r := NewRecommender(client, nil, testCatalog(t), discardLogger())

	res, err := r.Recommend(context.Background(), RecommendInput{Subject: "Chemistry", Limit: 4})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if res.Level != model.LevelBeginner {
		t.Errorf("level should default to beginner, got %s", res.Level)
	}

	var titles []string
	for _, m := range res.Recommendations {
		titles = append(titles, m.Title)
	}
	want := []string{"Periodic Table Basics", "Stoichiometry Drills", "Khan Academy Chemistry", "Chem Lab Videos"}
	if strings.Join(titles, "|") != strings.Join(want, "|") {
		t.Errorf("titles = %v, want %v", titles, want)
	}
	if res.Recommendations[2].Source != model.SourceAI || res.Recommendations[2].Kind != model.KindArticle {
		t.Errorf("unexpected AI material %+v", res.Recommendations[2])
	}

	calls := client.calls()
	if len(calls) != 1 || !calls[0].JSON || calls[0].Feature != provider.FeatureRecommend {
		t.Fatalf("unexpected provider calls %+v", calls)
	}
	if !strings.Contains(lastUserMessage(calls[0]), "Recommend 2 study materials for a beginner student learning Chemistry") {
		t.Errorf("unexpected prompt %q", lastUserMessage(calls[0]))
	}
}

func TestRecommend_CatalogFillsLimitSkipsProvider(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: echoSummary("unused")}
	r := NewRecommender(client, nil, testCatalog(t), discardLogger())

	res, err := r.Recommend(context.Background(), RecommendInput{Subject: "chem", Limit: 1})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(res.Recommendations) != 1 || len(client.calls()) != 0 {
		t.Errorf("expected one catalog material and no provider call, got %d / %d", len(res.Recommendations), len(client.calls()))
	}
}

func TestRecommend_ProviderFailureFallsBackToCatalog(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: func(provider.Request) (string, error) { return "", provider.ErrUnavailable }}
	r := NewRecommender(client, nil, testCatalog(t), discardLogger())

	res, err := r.Recommend(context.Background(), RecommendInput{Subject: "chemistry", Level: "intermediate"})
	if err != nil {
		t.Fatalf("expected catalog fallback, got %v", err)
	}
	if len(res.Recommendations) != 1 || res.Recommendations[0].Source != model.SourceCatalog {
		t.Errorf("unexpected fallback %+v", res.Recommendations)
	}

	_, err = r.Recommend(context.Background(), RecommendInput{Subject: "astronomy"})
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("expected provider error without catalog entries, got %v", err)
	}
}

func TestRecommend_InvalidAIResponse(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: echoSummary("I recommend reading books.")}
	r := NewRecommender(client, nil, testCatalog(t), discardLogger())

	_, err := r.Recommend(context.Background(), RecommendInput{Subject: "astronomy"})
	if !errors.Is(err, ErrInvalidAIResponse) {
		t.Fatalf("expected ErrInvalidAIResponse, got %v", err)
	}

	fenced := &fakeClient{respond: echoSummary("```json\n" + aiJSON("Cosmos") + "\n```")}
	r = NewRecommender(fenced, nil, testCatalog(t), discardLogger())
	res, err := r.Recommend(context.Background(), RecommendInput{Subject: "astronomy"})
	if err != nil || len(res.Recommendations) != 1 {
		t.Fatalf("fenced JSON should parse: %v %+v", err, res)
	}
}

func TestRecommend_Validation(t *testing.T) {
	t.Parallel()

	r := NewRecommender(&fakeClient{respond: echoSummary("{}")}, nil, nil, discardLogger())

	tests := []struct {
		name    string
		in      RecommendInput
		wantErr error
	}{
		{"missing subject", RecommendInput{Subject: "  "}, ErrSubjectRequired},
		{"long subject", RecommendInput{Subject: strings.Repeat("s", 101)}, ErrSubjectTooLong},
		{"bad level", RecommendInput{Subject: "math", Level: "expert"}, ErrInvalidLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Recommend(context.Background(), tt.in); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRecommend_SavesForSignedInUser(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	client := &fakeClient{respond: func(provider.Request) (string, error) { return aiJSON("A", "B"), nil }}
	r := NewRecommender(client, store, testCatalog(t), discardLogger())

	if _, err := r.Recommend(context.Background(), RecommendInput{Subject: "chemistry", UserID: "u1", Limit: 20}); err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(store.materials) != 4 {
		t.Fatalf("expected 4 saved materials, got %d", len(store.materials))
	}
	for _, m := range store.materials {
		if m.ID == "" || m.UserID != "u1" {
			t.Errorf("material not stamped: %+v", m)
		}
	}

	saved, err := r.Materials(context.Background(), "u1", "Chemistry", 10)
	if err != nil || len(saved) != 4 {
		t.Fatalf("Materials: %v %d", err, len(saved))
	}
}

func TestMergeMaterials_Dedupes(t *testing.T) {
	t.Parallel()

	base := []*model.StudyMaterial{{Title: "Intro"}, {Title: "Deep Dive"}}
	extra := []*model.StudyMaterial{{Title: " intro "}, {Title: "New"}, {Title: "new"}}
	got := mergeMaterials(base, extra)
	if len(got) != 3 || got[2].Title != "New" {
		t.Errorf("unexpected merge %+v", got)
	}
}
