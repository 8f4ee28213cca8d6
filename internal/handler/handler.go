// Package handler provides HTTP request handlers.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/studycompanion/studycompanion/internal/provider"
	"github.com/studycompanion/studycompanion/internal/service"
)

// providerRetryAfter is sent when the upstream provider is rate limiting us.
const providerRetryAfter = "30"

// statusClientClosedRequest is nginx's code for a client that hung up first.
const statusClientClosedRequest = 499

// Handler serves the fallback routes.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// ErrorBody is the error envelope of every non-2xx JSON response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// decodeJSON reads the request body into dst and answers 400 on failure.
// Fields dst does not declare are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
			return false
		}
		if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", "Unknown field "+field)
			return false
		}
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return false
	}
	return true
}

// handleServiceError maps service and provider errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ve *service.ValidationError
	switch {
	case errors.Is(err, context.Canceled):
		logger.Debug("request cancelled by client", "error", err)
		writeError(w, statusClientClosedRequest, "CLIENT_CLOSED_REQUEST", "Request was cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", "error", err)
		writeError(w, http.StatusGatewayTimeout, "TIMEOUT", "The request took too long to complete")
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
			Code:    "VALIDATION_ERROR",
			Message: ve.Message,
			Field:   ve.Field,
		}})
	case errors.Is(err, service.ErrTextTooLong):
		writeError(w, http.StatusRequestEntityTooLarge, "TEXT_TOO_LONG", "Text exceeds the maximum length")
	case errors.Is(err, service.ErrInvalidSession):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, "EMAIL_TAKEN", "Email is already registered")
	case errors.Is(err, service.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
	case errors.Is(err, provider.ErrQuotaExceeded):
		logger.Error("provider quota exceeded", "error", err)
		writeError(w, http.StatusServiceUnavailable, "PROVIDER_QUOTA_EXCEEDED", "AI provider quota exceeded, check the account billing")
	case errors.Is(err, provider.ErrRateLimited):
		logger.Warn("provider rate limited", "error", err)
		w.Header().Set("Retry-After", providerRetryAfter)
		writeError(w, http.StatusServiceUnavailable, "PROVIDER_RATE_LIMITED", "AI provider is busy, retry shortly")
	case errors.Is(err, provider.ErrAuthentication):
		logger.Error("provider authentication failed", "error", err)
		writeError(w, http.StatusBadGateway, "PROVIDER_AUTH_FAILED", "AI provider rejected our credentials")
	case errors.Is(err, provider.ErrBadRequest),
		errors.Is(err, provider.ErrUnavailable),
		errors.Is(err, provider.ErrEmptyCompletion),
		errors.Is(err, service.ErrInvalidAIResponse):
		logger.Error("provider call failed", "error", err)
		writeError(w, http.StatusBadGateway, "PROVIDER_ERROR", "AI provider request failed")
	default:
		logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// queryInt parses an optional positive integer query parameter.
// Missing or malformed values return def.
func queryInt(r *http.Request, name string, def, maxVal int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if maxVal > 0 && n > maxVal {
		return maxVal
	}
	return n
}
