package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/studycompanion/studycompanion/internal/auth"
	"github.com/studycompanion/studycompanion/internal/cache"
)

// RateLimiter checks token buckets.
type RateLimiter interface {
	CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger    *slog.Logger
	Limiter   RateLimiter
	Enabled   bool
	PerMinute int
	Burst     int
}

// RateLimitAI limits the AI endpoints per signed-in user, or per client IP
// for anonymous callers. Must be applied after Authenticate.
func RateLimitAI(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			var (
				result  *cache.RateLimitResult
				err     error
				subject string
				kind    string
			)
			if userID := auth.UserIDFromContext(r.Context()); userID != "" {
				kind, subject = "user", userID
				result, err = cfg.Limiter.CheckUserRateLimit(r.Context(), userID, cfg.PerMinute, cfg.Burst)
			} else {
				kind, subject = "ip", getClientIP(r)
				result, err = cfg.Limiter.CheckIPRateLimit(r.Context(), subject, cfg.PerMinute, cfg.Burst)
			}
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("type", kind),
				)
				// Fail open - allow request
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, cfg.PerMinute, result.Remaining, result.ResetAt)

			if !result.Allowed {
				attrs := []any{
					slog.String("type", kind),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int64("retry_after_seconds", int64(result.RetryAfter.Seconds())),
					slog.String("request_id", GetRequestID(r.Context())),
				}
				if kind == "user" {
					attrs = append(attrs, slog.String("user_id", subject))
				} else {
					attrs = append(attrs, slog.String("ip", subject))
				}
				cfg.Logger.Warn("rate limit exceeded", attrs...)

				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(result.RetryAfter)))
				writeRateLimitError(w, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setRateLimitHeaders sets standard rate limit response headers.
func setRateLimitHeaders(w http.ResponseWriter, limit int, remaining int64, resetAt time.Time) {
	if limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	}
}

// retryAfterSeconds rounds up so clients never retry too early.
func retryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// writeRateLimitError writes a 429 Too Many Requests response.
func writeRateLimitError(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	msg := fmt.Sprintf(`{"error":{"code":"RATE_LIMITED","message":"Rate limit exceeded. Retry after %d seconds."}}`,
		retryAfterSeconds(retryAfter))
	_, _ = w.Write([]byte(msg))
}

// getClientIP keys anonymous callers by the connection address. Forwarded
// headers are only honoured upstream by ClientIP for trusted proxies.
func getClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
