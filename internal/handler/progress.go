package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/studycompanion/studycompanion/internal/auth"
	"github.com/studycompanion/studycompanion/internal/handler/dto"
	"github.com/studycompanion/studycompanion/internal/model"
	"github.com/studycompanion/studycompanion/internal/service"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ProgressTracker is the progress service used by ProgressHandler.
type ProgressTracker interface {
	Record(ctx context.Context, userID string, in service.RecordInput) (*model.ProgressRecord, error)
	List(ctx context.Context, userID, subject string, limit int) ([]*model.ProgressRecord, error)
	Overview(ctx context.Context, userID string) ([]*model.SubjectProgress, error)
}

// SummaryHistory lists saved summaries.
type SummaryHistory interface {
	History(ctx context.Context, userID string, limit int) ([]*model.Summary, error)
}

// MaterialHistory lists saved recommendations.
type MaterialHistory interface {
	Materials(ctx context.Context, userID, subject string, limit int) ([]*model.StudyMaterial, error)
}

// UsageReporter reports provider usage per day.
type UsageReporter interface {
	Daily(ctx context.Context, userID string, days int) ([]*model.DailyUsage, error)
}

// ProgressHandler serves the signed-in user's study records and history.
type ProgressHandler struct {
	progress  ProgressTracker
	summaries SummaryHistory
	materials MaterialHistory
	usage     UsageReporter
	logger    *slog.Logger
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(progress ProgressTracker, summaries SummaryHistory, materials MaterialHistory, usage UsageReporter, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{
		progress:  progress,
		summaries: summaries,
		materials: materials,
		usage:     usage,
		logger:    logger,
	}
}

// Record handles POST /api/v1/progress.
func (h *ProgressHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req dto.ProgressRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := h.progress.Record(r.Context(), auth.UserIDFromContext(r.Context()), service.RecordInput{
		Subject:      req.Subject,
		Activity:     req.Activity,
		Completion:   req.Completion,
		MinutesSpent: req.MinutesSpent,
		Note:         req.Note,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// List handles GET /api/v1/progress.
func (h *ProgressHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.progress.List(r.Context(),
		auth.UserIDFromContext(r.Context()),
		r.URL.Query().Get("subject"),
		queryInt(r, "limit", defaultListLimit, maxListLimit),
	)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(records))
}

// Overview handles GET /api/v1/progress/overview.
func (h *ProgressHandler) Overview(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.progress.Overview(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(subjects))
}

// Summaries handles GET /api/v1/summaries.
func (h *ProgressHandler) Summaries(w http.ResponseWriter, r *http.Request) {
	items, err := h.summaries.History(r.Context(),
		auth.UserIDFromContext(r.Context()),
		queryInt(r, "limit", defaultListLimit, maxListLimit),
	)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(items))
}

// Materials handles GET /api/v1/materials.
func (h *ProgressHandler) Materials(w http.ResponseWriter, r *http.Request) {
	items, err := h.materials.Materials(r.Context(),
		auth.UserIDFromContext(r.Context()),
		r.URL.Query().Get("subject"),
		queryInt(r, "limit", defaultListLimit, maxListLimit),
	)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(items))
}

// Usage handles GET /api/v1/usage?days=N.
func (h *ProgressHandler) Usage(w http.ResponseWriter, r *http.Request) {
	// Missing means the default window; anything unparsable is rejected by the service.
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n == 0 {
			n = -1
		}
		days = n
	}

	rows, err := h.usage.Daily(r.Context(), auth.UserIDFromContext(r.Context()), days)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(rows))
}
