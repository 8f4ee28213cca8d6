package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Sentinel errors for provider failures. An *APIError unwraps to one of these.
var (
	ErrAuthentication  = errors.New("invalid provider API key")
	ErrRateLimited     = errors.New("provider rate limit exceeded")
	ErrQuotaExceeded   = errors.New("provider quota exceeded")
	ErrBadRequest      = errors.New("provider rejected the request")
	ErrUnavailable     = errors.New("provider unavailable")
	ErrEmptyCompletion = errors.New("provider returned an empty completion")
)

const quotaErrorCode = "insufficient_quota"

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("provider http %d (%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("provider http %d: %s", e.StatusCode, msg)
}

// HTTPStatusCode returns the upstream status code.
func (e *APIError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// Unwrap maps the response onto the sentinel errors so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrAuthentication
	case e.StatusCode == http.StatusTooManyRequests && e.isQuota():
		return ErrQuotaExceeded
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode == http.StatusRequestTimeout || e.StatusCode >= 500:
		return ErrUnavailable
	default:
		return ErrBadRequest
	}
}

func (e *APIError) isQuota() bool {
	return e.Code == quotaErrorCode || e.Type == quotaErrorCode
}

// retryable reports whether the same request may succeed later.
func (e *APIError) retryable() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return !e.isQuota()
	default:
		return e.StatusCode >= 500 && e.StatusCode <= 599
	}
}

type errorEnvelope struct {
	Error struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"`
	} `json:"error"`
}

// parseAPIError builds an APIError from a failed response body.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
		apiErr.Type = env.Error.Type
		apiErr.Code = decodeCode(env.Error.Code)
		return apiErr
	}

	apiErr.Message = truncateUTF8(strings.TrimSpace(string(body)), maxErrorMessageBytes)
	return apiErr
}

// maxErrorMessageBytes bounds a plain-text upstream error kept in APIError.
const maxErrorMessageBytes = 512

// truncateUTF8 shortens s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// decodeCode accepts string, numeric or null error codes.
func decodeCode(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}
