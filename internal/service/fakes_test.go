package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/studycompanion/studycompanion/internal/cache"
	"github.com/studycompanion/studycompanion/internal/model"
	"github.com/studycompanion/studycompanion/internal/provider"
	"github.com/studycompanion/studycompanion/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient answers with respond and records every request. When gate is
// set, each call signals entered and then waits for gate or its context.
type fakeClient struct {
	mu       sync.Mutex
	requests []provider.Request
	respond  func(req provider.Request) (string, error)
	gate     chan struct{}
	entered  chan struct{}
}

func (f *fakeClient) Complete(ctx context.Context, req provider.Request) (*provider.Completion, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.gate != nil {
		if f.entered != nil {
			f.entered <- struct{}{}
		}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := f.respond(req)
	if err != nil {
		return nil, err
	}
	return &provider.Completion{Text: text, Model: "fake"}, nil
}

func (f *fakeClient) calls() []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Request(nil), f.requests...)
}

func lastUserMessage(req provider.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == provider.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

// memStore is an in-memory stand-in for the repository.
type memStore struct {
	mu        sync.Mutex
	users     map[string]*model.User
	summaries []*model.Summary
	progress  []*model.ProgressRecord
	materials []*model.StudyMaterial
	chat      []*model.ChatMessage
	failWrite error
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*model.User)}
}

func (m *memStore) CreateUser(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrEmailExists
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *memStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memStore) CreateSummary(ctx context.Context, s *model.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	m.summaries = append(m.summaries, s)
	return nil
}

func (m *memStore) ListSummaries(ctx context.Context, userID string, limit int) ([]*model.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Summary
	for _, s := range m.summaries {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) CreateProgress(ctx context.Context, rec *model.ProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	m.progress = append(m.progress, rec)
	return nil
}

func (m *memStore) ListProgress(ctx context.Context, userID, subject string, limit int) ([]*model.ProgressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ProgressRecord
	for _, p := range m.progress {
		if p.UserID == userID && (subject == "" || strings.EqualFold(p.Subject, subject)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ProgressOverview(ctx context.Context, userID string) ([]*model.SubjectProgress, error) {
	return []*model.SubjectProgress{}, nil
}

func (m *memStore) CreateMaterials(ctx context.Context, materials []*model.StudyMaterial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.materials = append(m.materials, materials...)
	return nil
}

func (m *memStore) ListMaterials(ctx context.Context, userID, subject string, limit int) ([]*model.StudyMaterial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.StudyMaterial
	for _, mat := range m.materials {
		if mat.UserID == userID && (subject == "" || strings.EqualFold(mat.Subject, subject)) {
			out = append(out, mat)
		}
	}
	return out, nil
}

func (m *memStore) CreateChatMessages(ctx context.Context, msgs ...*model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chat = append(m.chat, msgs...)
	return nil
}

func (m *memStore) RecentChatMessages(ctx context.Context, userID, conversationID string, limit int) ([]*model.ChatMessage, error) {
	all, _ := m.ListChatMessages(ctx, userID, conversationID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *memStore) ListChatMessages(ctx context.Context, userID, conversationID string) ([]*model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ChatMessage
	for _, c := range m.chat {
		if c.UserID == userID && c.ConversationID == conversationID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// memCache implements SummaryCache and SessionDenyList.
type memCache struct {
	mu       sync.Mutex
	entries  map[string]any
	revoked  map[string]time.Duration
	getCalls int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]any), revoked: make(map[string]time.Duration)}
}

func (c *memCache) GetSummary(ctx context.Context, key string, dst any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getCalls++
	v, ok := c.entries[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	*dst.(*SummaryResult) = *v.(*SummaryResult)
	return nil
}

func (c *memCache) SetSummary(ctx context.Context, key string, v any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := *v.(*SummaryResult)
	c.entries[key] = &res
	return nil
}

func (c *memCache) RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[tokenID] = ttl
	return nil
}

func (c *memCache) IsSessionRevoked(ctx context.Context, tokenID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.revoked[tokenID]
	return ok, nil
}
