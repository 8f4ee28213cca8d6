package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/studycompanion/studycompanion/internal/auth"
	"github.com/studycompanion/studycompanion/internal/metrics"
	"github.com/studycompanion/studycompanion/internal/model"
	"github.com/studycompanion/studycompanion/internal/repository"
)

const (
	maxEmailLength    = 254
	minPasswordLength = 8
	maxPasswordLength = 128
)

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// SessionDenyList remembers logged-out session tokens.
type SessionDenyList interface {
	RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error
	IsSessionRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Accounts handles registration, login and sessions.
type Accounts struct {
	users    UserStore
	sessions *auth.Sessions
	denyList SessionDenyList
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time

	hashParams auth.PasswordParams
}

// NewAccounts creates an Accounts service. denyList may be nil, disabling logout revocation.
func NewAccounts(users UserStore, sessions *auth.Sessions, denyList SessionDenyList, logger *slog.Logger, recorder metrics.Recorder) *Accounts {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Accounts{
		users:    users,
		sessions: sessions,
		denyList: denyList,
		logger:   logger.With("component", "accounts"),
		metrics:  recorder,
		now:      time.Now,

		hashParams: auth.DefaultPasswordParams,
	}
}

// Register creates an account.
func (a *Accounts) Register(ctx context.Context, email, password string) (*model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPasswordWithParams(password, a.hashParams)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := a.now().UTC()
	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	a.metrics.IncUserRegistered()
	a.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// LoginResult is a freshly issued session.
type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// Login verifies credentials and issues a session token.
// Unknown email and wrong password fail identically.
func (a *Accounts) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
		auth.VerifyDummy(password)
		a.metrics.IncLogin(metrics.StatusFailed)
		return nil, ErrInvalidCredentials
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		if err != nil {
			a.logger.Error("stored password hash unreadable", "user_id", user.ID, "error", err)
		}
		a.metrics.IncLogin(metrics.StatusFailed)
		return nil, ErrInvalidCredentials
	}

	a.upgradeHash(ctx, user, password)

	token, sess, err := a.sessions.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	a.metrics.IncLogin(metrics.StatusSuccess)
	return &LoginResult{Token: token, ExpiresAt: sess.ExpiresAt, User: user}, nil
}

// upgradeHash re-hashes a verified password stored with outdated cost
// parameters. Failures are logged; the login still succeeds.
func (a *Accounts) upgradeHash(ctx context.Context, user *model.User, password string) {
	if !auth.NeedsRehash(user.PasswordHash, a.hashParams) {
		return
	}
	hash, err := auth.HashPasswordWithParams(password, a.hashParams)
	if err == nil {
		err = a.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		a.logger.Warn("password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
	a.logger.Info("password hash upgraded", "user_id", user.ID)
}

// Authenticate resolves a token to a live session.
func (a *Accounts) Authenticate(ctx context.Context, token string) (*auth.Session, error) {
	sess, err := a.sessions.Parse(token)
	if err != nil {
		return nil, ErrInvalidSession
	}

	if a.denyList != nil {
		revoked, err := a.denyList.IsSessionRevoked(ctx, sess.TokenID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrInvalidSession
		}
	}
	return sess, nil
}

// Logout revokes sess until its natural expiry.
func (a *Accounts) Logout(ctx context.Context, sess *auth.Session) error {
	if sess == nil || a.denyList == nil {
		return nil
	}
	return a.denyList.RevokeSession(ctx, sess.TokenID, sess.ExpiresAt.Sub(a.now()))
}

// Me returns the account behind userID.
func (a *Accounts) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// SessionTTL returns the lifetime of issued session tokens.
func (a *Accounts) SessionTTL() time.Duration {
	return a.sessions.TTL()
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || utf8.RuneCountInString(email) > maxEmailLength {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength || n > maxPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}
