//go:build integration

package repository

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/studycompanion/studycompanion/internal/model"
	"github.com/studycompanion/studycompanion/internal/testutil"
)

func TestIntegrationUser_CreateAndLookup(t *testing.T) {
	ctx, pool := testutil.NewTestPool(t)
	repo := NewWithPool(pool)

	user := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := repo.GetUserByEmail(ctx, strings.ToUpper(user.Email))
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != user.ID || got.PasswordHash != user.PasswordHash {
		t.Errorf("unexpected user %+v", got)
	}

	dup := testutil.NewTestUser(t)
	dup.Email = strings.ToUpper(user.Email)
	if err := repo.CreateUser(ctx, dup); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}

	if _, err := repo.GetUserByID(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := repo.UpdatePasswordHash(ctx, user.ID, "$argon2id$new"); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	got, _ = repo.GetUserByID(ctx, user.ID)
	if got.PasswordHash != "$argon2id$new" {
		t.Errorf("expected updated hash, got %q", got.PasswordHash)
	}
	if err := repo.UpdatePasswordHash(ctx, "missing", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestIntegrationProgress_ListAndOverview(t *testing.T) {
	ctx, pool := testutil.NewTestPool(t)
	repo := NewWithPool(pool)

	user := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	records := []*model.ProgressRecord{
		{Subject: "Math", Activity: model.ActivityQuiz, Completion: 40, MinutesSpent: 10},
		{Subject: "math", Activity: model.ActivityReading, Completion: 80, MinutesSpent: 20},
		{Subject: "History", Activity: model.ActivitySummary, Completion: 100, MinutesSpent: 5},
	}
	for i, rec := range records {
		rec.ID = ulid.Make().String()
		rec.UserID = user.ID
		rec.RecordedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.CreateProgress(ctx, rec); err != nil {
			t.Fatalf("CreateProgress: %v", err)
		}
	}

	math, err := repo.ListProgress(ctx, user.ID, "MATH", 0)
	if err != nil {
		t.Fatalf("ListProgress: %v", err)
	}
	if len(math) != 2 || math[0].Activity != model.ActivityReading {
		t.Fatalf("unexpected math records %+v", math)
	}

	overview, err := repo.ProgressOverview(ctx, user.ID)
	if err != nil {
		t.Fatalf("ProgressOverview: %v", err)
	}
	if len(overview) != 2 {
		t.Fatalf("expected 2 subjects, got %d", len(overview))
	}
	if overview[0].Subject != "History" {
		t.Errorf("expected most recent subject first, got %s", overview[0].Subject)
	}
	if overview[1].Records != 2 || overview[1].AverageCompletion != 60 || overview[1].TotalMinutes != 30 {
		t.Errorf("unexpected math aggregate %+v", overview[1])
	}
}

func TestIntegrationChat_RecentMessagesInOrder(t *testing.T) {
	ctx, pool := testutil.NewTestPool(t)
	repo := NewWithPool(pool)

	user := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	conv := ulid.Make().String()
	base := time.Now().UTC().Truncate(time.Second)
	var msgs []*model.ChatMessage
	for i := 0; i < 6; i++ {
		role := model.ChatRoleUser
		if i%2 == 1 {
			role = model.ChatRoleAssistant
		}
		msgs = append(msgs, &model.ChatMessage{
			ID:             ulid.Make().String(),
			UserID:         user.ID,
			ConversationID: conv,
			Role:           role,
			Content:        string(rune('a' + i)),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
	}
	if err := repo.CreateChatMessages(ctx, msgs...); err != nil {
		t.Fatalf("CreateChatMessages: %v", err)
	}

	recent, err := repo.RecentChatMessages(ctx, user.ID, conv, 4)
	if err != nil {
		t.Fatalf("RecentChatMessages: %v", err)
	}
	if len(recent) != 4 || recent[0].Content != "c" || recent[3].Content != "f" {
		t.Fatalf("unexpected recent messages %+v", recent)
	}

	all, err := repo.ListChatMessages(ctx, user.ID, conv)
	if err != nil {
		t.Fatalf("ListChatMessages: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(all))
	}
}

func TestIntegrationUsage_RecordBatchIdempotentAndAggregates(t *testing.T) {
	ctx, pool := testutil.NewTestPool(t)
	usage := NewUsageRepository(NewWithPool(pool))

	at := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	events := []*model.UsageEvent{
		{ID: ulid.Make().String(), EventID: "1-0", UserID: "u1", Feature: "summarize", Status: "success", PromptTokens: 10, CompletionTokens: 5, OccurredAt: at},
		{ID: ulid.Make().String(), EventID: "2-0", UserID: "u1", Feature: "summarize", Status: "failed", OccurredAt: at.Add(time.Hour)},
	}

	for i, want := range []int64{2, 0} {
		n, err := usage.RecordBatch(ctx, events)
		if err != nil {
			t.Fatalf("RecordBatch #%d: %v", i+1, err)
		}
		if n != want {
			t.Errorf("RecordBatch #%d inserted %d, want %d", i+1, n, want)
		}
	}

	days, err := usage.ListDailyUsage(ctx, "u1", at.Truncate(24*time.Hour), at)
	if err != nil {
		t.Fatalf("ListDailyUsage: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("expected 1 row, got %d", len(days))
	}
	d := days[0]
	if d.Requests != 2 || d.Failures != 1 || d.PromptTokens != 10 || d.Date != "2026-04-02" {
		t.Errorf("unexpected daily usage %+v", d)
	}
}
