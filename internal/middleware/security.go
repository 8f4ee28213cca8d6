package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// SecurityConfig controls the response headers set by Security.
type SecurityConfig struct {
	// IsDevelopment omits HSTS so plain-HTTP local runs keep working.
	IsDevelopment bool
	// HSTSMaxAge defaults to one year.
	HSTSMaxAge time.Duration
}

// apiCSP locks down JSON responses. The dashboard handler replaces it with
// a nonce-based page policy.
const apiCSP = "default-src 'none'; frame-ancestors 'none'"

type header struct{ name, value string }

// Security sets browser hardening headers on every response. Summaries, chat
// turns and session tokens are marked no-store so shared caches never keep them.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	headers := []header{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"X-XSS-Protection", "0"},
		{"Referrer-Policy", "strict-origin-when-cross-origin"},
		{"Content-Security-Policy", apiCSP},
		{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()"},
		{"Cache-Control", "no-store"},
		{"Cross-Origin-Opener-Policy", "same-origin"},
		{"Cross-Origin-Resource-Policy", "same-origin"},
	}
	if !cfg.IsDevelopment {
		maxAge := cfg.HSTSMaxAge
		if maxAge <= 0 {
			maxAge = 365 * 24 * time.Hour
		}
		headers = append(headers, header{
			"Strict-Transport-Security",
			"max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload",
		})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, hdr := range headers {
				h.Set(hdr.name, hdr.value)
			}
			h.Del("Server")
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize rejects requests whose declared length exceeds maxBytes with a
// 413 and caps streamed bodies at the same size. Study texts are the largest
// legitimate payloads, so maxBytes should sit above the summarizer's text limit.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_, _ = w.Write([]byte(`{"error":{"code":"PAYLOAD_TOO_LARGE","message":"Request body too large"}}`))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
