package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// HealthChecker is anything that can report connectivity, such as the
// Postgres repository or the Redis cache.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

const readinessTimeout = 5 * time.Second

// HealthHandler serves liveness, readiness and the dashboard health check.
type HealthHandler struct {
	deps   map[string]HealthChecker
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. A nil db or cache is reported as
// "not configured" and does not fail readiness.
func NewHealthHandler(db, cache HealthChecker, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		deps:   map[string]HealthChecker{"postgres": db, "redis": cache},
		logger: logger,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Healthz is the liveness check. It never touches dependencies.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// APIHealth reports that the API is up, for the dashboard and legacy clients.
//
// GET /api/health
func (h *HealthHandler) APIHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Message: "Smart Study Companion API is running",
	})
}

// Readyz pings every dependency in parallel and returns 503 if any fails.
// Failure details go to the log only; they can carry connection strings.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		checks  = make(map[string]string, len(h.deps))
		healthy = true
	)
	for name, dep := range h.deps {
		if dep == nil {
			checks[name] = "not configured"
			continue
		}
		wg.Add(1)
		go func(name string, dep HealthChecker) {
			defer wg.Done()
			err := dep.Ping(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				h.logger.Warn("readiness check failed", "dependency", name, "error", err)
				checks[name] = "unavailable"
				healthy = false
				return
			}
			checks[name] = "ok"
		}(name, dep)
	}
	wg.Wait()

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}
