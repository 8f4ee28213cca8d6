package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/studycompanion/studycompanion/internal/auth"
	"github.com/studycompanion/studycompanion/internal/handler/dto"
	"github.com/studycompanion/studycompanion/internal/model"
	"github.com/studycompanion/studycompanion/internal/service"
)

// SessionCookieName is the cookie that carries the session token for browsers.
const SessionCookieName = "session"

// AccountService is the account service used by AccountHandler.
type AccountService interface {
	Register(ctx context.Context, email, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	Logout(ctx context.Context, sess *auth.Session) error
	Me(ctx context.Context, userID string) (*model.User, error)
}

// AccountHandler serves registration, login and the current user.
type AccountHandler struct {
	accounts     AccountService
	secureCookie bool
	logger       *slog.Logger
}

// NewAccountHandler creates a new AccountHandler. secureCookie marks the
// session cookie Secure and should be set outside development.
func NewAccountHandler(accounts AccountService, secureCookie bool, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, secureCookie: secureCookie, logger: logger}
}

// Register handles POST /api/v1/auth/register.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("user_registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /api/v1/auth/login.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("user_logged_in", "user_id", res.User.ID)
	writeJSON(w, http.StatusOK, dto.LoginResponse{Token: res.Token, ExpiresAt: res.ExpiresAt, User: res.User})
}

// Logout handles POST /api/v1/auth/logout.
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	if err := h.accounts.Logout(r.Context(), sess); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.Me(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
