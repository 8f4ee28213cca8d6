package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studycompanion/studycompanion/internal/auth"
	"github.com/studycompanion/studycompanion/internal/handler/dto"
	"github.com/studycompanion/studycompanion/internal/model"
	"github.com/studycompanion/studycompanion/internal/service"
)

// Summarizer is the summarization service used by StudyHandler.
type Summarizer interface {
	Summarize(ctx context.Context, in service.SummarizeInput) (*service.SummaryResult, error)
	SummarizeBatch(ctx context.Context, in service.BatchInput) ([]service.BatchItem, error)
}

// Recommender is the recommendation service used by StudyHandler.
type Recommender interface {
	Recommend(ctx context.Context, in service.RecommendInput) (*service.RecommendResult, error)
}

// Tutor is the chat service used by StudyHandler.
type Tutor interface {
	Ask(ctx context.Context, in service.AskInput) (*service.Answer, error)
	History(ctx context.Context, userID, conversationID string) ([]*model.ChatMessage, error)
}

// StudyHandler serves the AI-backed endpoints. Sessions are optional here.
type StudyHandler struct {
	summarizer  Summarizer
	recommender Recommender
	tutor       Tutor
	logger      *slog.Logger
}

// NewStudyHandler creates a new StudyHandler.
func NewStudyHandler(summarizer Summarizer, recommender Recommender, tutor Tutor, logger *slog.Logger) *StudyHandler {
	return &StudyHandler{
		summarizer:  summarizer,
		recommender: recommender,
		tutor:       tutor,
		logger:      logger,
	}
}

// Summarize handles POST /api/v1/summarize.
func (h *StudyHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req dto.SummarizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.summarizer.Summarize(r.Context(), service.SummarizeInput{
		Text:      req.Text,
		MaxLength: req.MaxLength,
		Style:     req.Style,
		UserID:    auth.UserIDFromContext(r.Context()),
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("text_summarized",
		"original_length", res.OriginalLength,
		"chunks", res.ChunkCount,
		"cached", res.Cached,
	)
	writeJSON(w, http.StatusOK, res)
}

// SummarizeBatch handles POST /api/v1/summarize/batch.
func (h *StudyHandler) SummarizeBatch(w http.ResponseWriter, r *http.Request) {
	var req dto.BatchSummarizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	items, err := h.summarizer.SummarizeBatch(r.Context(), service.BatchInput{
		Texts:     req.Texts,
		MaxLength: req.MaxLength,
		Style:     req.Style,
		UserID:    auth.UserIDFromContext(r.Context()),
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BatchSummarizeResponse{Results: items})
}

// Recommend handles POST /api/v1/recommendations.
func (h *StudyHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req dto.RecommendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.recommender.Recommend(r.Context(), service.RecommendInput{
		Subject: req.Subject,
		Level:   req.Level,
		Limit:   req.Limit,
		UserID:  auth.UserIDFromContext(r.Context()),
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Chat handles POST /api/v1/chat.
func (h *StudyHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req dto.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ans, err := h.tutor.Ask(r.Context(), service.AskInput{
		Question:       req.Question,
		ConversationID: req.ConversationID,
		Subject:        req.Subject,
		UserID:         auth.UserIDFromContext(r.Context()),
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// ChatHistory handles GET /api/v1/chat/{conversationID}.
func (h *StudyHandler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "conversationID")
	msgs, err := h.tutor.History(r.Context(), auth.UserIDFromContext(r.Context()), convID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ChatHistoryResponse{ConversationID: convID, Messages: msgs})
}
