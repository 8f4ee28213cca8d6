package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/studycompanion/studycompanion/internal/auth"
	"github.com/studycompanion/studycompanion/internal/metrics"
	"github.com/studycompanion/studycompanion/internal/model"
	"github.com/studycompanion/studycompanion/internal/provider"
	"github.com/studycompanion/studycompanion/internal/textsplit"
)

const (
	defaultSummaryWords = 150
	minSummaryWords     = 10
	maxSummaryWords     = 1000
	maxBatchTexts       = 20

	// Inputs below this many characters are summarized with a single call.
	directSummaryThreshold = 1000

	defaultSummaryCallTimeout = 2 * time.Minute

	summarySystemPrompt = "You are a helpful assistant that creates concise and accurate summaries."
	chunkPrompt         = "Write a concise summary of the following text, keeping every key fact.\n\nText:\n%s\n\nConcise summary:"
)

var styleInstructions = map[model.SummaryStyle]string{
	model.StyleConcise:      "Provide a concise summary capturing the main points.",
	model.StyleDetailed:     "Provide a detailed summary including key details and supporting information.",
	model.StyleBulletPoints: "Provide a summary in bullet point format, highlighting key points.",
}

// SummaryStore persists summary history.
type SummaryStore interface {
	CreateSummary(ctx context.Context, s *model.Summary) error
	ListSummaries(ctx context.Context, userID string, limit int) ([]*model.Summary, error)
	CreateProgress(ctx context.Context, rec *model.ProgressRecord) error
}

// SummaryCache stores finished summaries by content key.
type SummaryCache interface {
	GetSummary(ctx context.Context, key string, dst any) error
	SetSummary(ctx context.Context, key string, v any, ttl time.Duration) error
}

// SummarizerConfig tunes the Summarizer.
type SummarizerConfig struct {
	MaxTextLength int
	Concurrency   int
	CacheTTL      time.Duration
	// CallTimeout bounds a shared provider call, which outlives the caller that started it.
	CallTimeout time.Duration
}

// Summarizer turns study text into summaries through the provider.
type Summarizer struct {
	client   provider.Client
	store    SummaryStore
	cache    SummaryCache
	splitter *textsplit.Splitter
	cfg      SummarizerConfig
	logger   *slog.Logger
	metrics  metrics.Recorder
	group    singleflight.Group
	now      func() time.Time
}

// NewSummarizer creates a Summarizer. store and cache may be nil.
func NewSummarizer(client provider.Client, store SummaryStore, cache SummaryCache, cfg SummarizerConfig, logger *slog.Logger, recorder metrics.Recorder) *Summarizer {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultSummaryCallTimeout
	}
	return &Summarizer{
		client:   client,
		store:    store,
		cache:    cache,
		splitter: textsplit.Default(),
		cfg:      cfg,
		logger:   logger.With("component", "summarizer"),
		metrics:  recorder,
		now:      time.Now,
	}
}

// SummarizeInput defines input for a summary.
type SummarizeInput struct {
	Text      string
	MaxLength int
	Style     string
	UserID    string
}

// SummaryResult is a finished summary with its statistics.
type SummaryResult struct {
	Summary          string  `json:"summary"`
	OriginalLength   int     `json:"original_length"`
	SummaryLength    int     `json:"summary_length"`
	CompressionRatio float64 `json:"compression_ratio"`
	WordCount        int     `json:"word_count"`
	ChunkCount       int     `json:"chunk_count"`
	Cached           bool    `json:"cached"`
}

type summaryRequest struct {
	text      string
	maxLength int
	style     model.SummaryStyle
	userID    string
}

// Summarize validates the input and returns a summary, served from cache when possible.
func (s *Summarizer) Summarize(ctx context.Context, in SummarizeInput) (*SummaryResult, error) {
	req, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	key := summaryCacheKey(req)
	if cached := s.lookup(ctx, key); cached != nil {
		s.persist(ctx, req, cached)
		return cached, nil
	}

	// Identical requests share one provider call, detached from every caller
	// and bounded by CallTimeout. Each caller stops waiting when its own ctx ends.
	ch := s.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CallTimeout)
		defer cancel()

		res, err := s.summarize(callCtx, req)
		if err != nil {
			return nil, err
		}
		s.remember(callCtx, key, res)
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*SummaryResult)
		s.persist(ctx, req, &res)
		return &res, nil
	}
}

// validate rejects blank input but keeps the text as submitted, so lengths and
// ratios describe what the user actually sent.
func (s *Summarizer) validate(in SummarizeInput) (summaryRequest, error) {
	text := in.Text
	if strings.TrimSpace(text) == "" {
		return summaryRequest{}, ErrEmptyText
	}
	if s.cfg.MaxTextLength > 0 && utf8.RuneCountInString(text) > s.cfg.MaxTextLength {
		return summaryRequest{}, ErrTextTooLong
	}

	maxLength := in.MaxLength
	if maxLength == 0 {
		maxLength = defaultSummaryWords
	}
	if maxLength < minSummaryWords || maxLength > maxSummaryWords {
		return summaryRequest{}, ErrInvalidMaxLength
	}

	style, ok := model.ParseSummaryStyle(in.Style)
	if !ok {
		return summaryRequest{}, ErrInvalidStyle
	}

	return summaryRequest{text: text, maxLength: maxLength, style: style, userID: in.UserID}, nil
}

func (s *Summarizer) lookup(ctx context.Context, key string) *SummaryResult {
	if s.cache == nil {
		return nil
	}
	var res SummaryResult
	if err := s.cache.GetSummary(ctx, key, &res); err != nil {
		s.metrics.IncSummaryCacheMiss()
		return nil
	}
	s.metrics.IncSummaryCacheHit()
	res.Cached = true
	return &res
}

func (s *Summarizer) remember(ctx context.Context, key string, res *SummaryResult) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetSummary(ctx, key, res, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache summary", "error", err)
	}
}

// persist records history for signed-in users. Failures are logged only.
func (s *Summarizer) persist(ctx context.Context, req summaryRequest, res *SummaryResult) {
	if s.store == nil || req.userID == "" {
		return
	}

	now := s.now().UTC()
	summary := &model.Summary{
		ID:               ulid.Make().String(),
		UserID:           req.userID,
		Style:            req.style,
		MaxLength:        req.maxLength,
		OriginalLength:   res.OriginalLength,
		SummaryLength:    res.SummaryLength,
		CompressionRatio: res.CompressionRatio,
		WordCount:        res.WordCount,
		ChunkCount:       res.ChunkCount,
		Text:             res.Summary,
		CreatedAt:        now,
	}
	if err := s.store.CreateSummary(ctx, summary); err != nil {
		s.logger.Error("failed to save summary", "user_id", req.userID, "error", err)
		return
	}

	rec := &model.ProgressRecord{
		ID:         ulid.Make().String(),
		UserID:     req.userID,
		Subject:    "summaries",
		Activity:   model.ActivitySummary,
		Completion: 100,
		Note:       fmt.Sprintf("summarized %d characters", res.OriginalLength),
		RecordedAt: now,
	}
	if err := s.store.CreateProgress(ctx, rec); err != nil {
		s.logger.Error("failed to record summary progress", "user_id", req.userID, "error", err)
	}
}

func (s *Summarizer) summarize(ctx context.Context, req summaryRequest) (*SummaryResult, error) {
	var (
		text   string
		chunks = 1
		err    error
	)

	if utf8.RuneCountInString(req.text) < directSummaryThreshold {
		text, err = s.complete(ctx, req.userID, summaryPrompt(req.text, req.maxLength, req.style), 2*req.maxLength, 0.3)
	} else {
		text, chunks, err = s.mapReduce(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	if req.style == model.StyleBulletPoints {
		text = formatBullets(text)
	}

	return buildResult(req.text, text, chunks), nil
}

// mapReduce summarizes each chunk concurrently, then combines the partial summaries.
func (s *Summarizer) mapReduce(ctx context.Context, req summaryRequest) (string, int, error) {
	chunks := s.splitter.Split(req.text)
	partials := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			out, err := s.complete(gctx, req.userID, fmt.Sprintf(chunkPrompt, chunk), 2*req.maxLength, 0)
			if err != nil {
				return fmt.Errorf("summarize chunk %d: %w", i, err)
			}
			partials[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", 0, err
	}

	combined := strings.Join(partials, "\n\n")
	out, err := s.complete(ctx, req.userID, summaryPrompt(combined, req.maxLength, req.style), 2*req.maxLength, 0)
	if err != nil {
		return "", 0, fmt.Errorf("combine chunk summaries: %w", err)
	}
	return out, len(chunks), nil
}

func (s *Summarizer) complete(ctx context.Context, userID, prompt string, maxTokens int, temperature float64) (string, error) {
	out, err := s.client.Complete(ctx, provider.Request{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: summarySystemPrompt},
			{Role: provider.RoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: provider.Temperature(temperature),
		Feature:     provider.FeatureSummarize,
		UserID:      userID,
	})
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// History lists a user's stored summaries, newest first.
func (s *Summarizer) History(ctx context.Context, userID string, limit int) ([]*model.Summary, error) {
	if s.store == nil {
		return []*model.Summary{}, nil
	}
	return s.store.ListSummaries(ctx, userID, limit)
}

// BatchInput defines input for SummarizeBatch.
type BatchInput struct {
	Texts     []string
	MaxLength int
	Style     string
	UserID    string
}

// BatchItem is the outcome for one text of a batch.
type BatchItem struct {
	Result       *SummaryResult `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	OriginalText string         `json:"original_text,omitempty"`
}

// SummarizeBatch summarizes each text in order. A failing item does not fail the batch,
// but a cancelled context does.
func (s *Summarizer) SummarizeBatch(ctx context.Context, in BatchInput) ([]BatchItem, error) {
	if len(in.Texts) == 0 {
		return nil, ErrNoTexts
	}
	if len(in.Texts) > maxBatchTexts {
		return nil, ErrTooManyTexts
	}

	items := make([]BatchItem, len(in.Texts))
	for i, text := range in.Texts {
		res, err := s.Summarize(ctx, SummarizeInput{
			Text:      text,
			MaxLength: in.MaxLength,
			Style:     in.Style,
			UserID:    in.UserID,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			items[i] = BatchItem{Error: itemError(err), OriginalText: preview(text, 100)}
			continue
		}
		items[i] = BatchItem{Result: res}
	}
	return items, nil
}

// itemError returns a caller-safe message for a failed batch item.
func itemError(err error) string {
	switch {
	case IsValidation(err), errors.Is(err, ErrTextTooLong):
		return err.Error()
	case errors.Is(err, provider.ErrRateLimited), errors.Is(err, provider.ErrQuotaExceeded):
		return "AI provider is temporarily unavailable"
	default:
		return "summarization failed"
	}
}

func summaryPrompt(text string, words int, style model.SummaryStyle) string {
	instruction, ok := styleInstructions[style]
	if !ok {
		instruction = "Provide a clear summary."
	}
	return fmt.Sprintf("Please summarize the following text in approximately %d words.\n%s\n\nText:\n%s\n\nSummary:", words, instruction, text)
}

// formatBullets rewrites prose into "• " lines when the model ignored the bullet instruction.
func formatBullets(summary string) string {
	if strings.Contains(summary, "•") || strings.Contains(summary, "-") {
		return summary
	}

	var lines []string
	for _, sentence := range strings.Split(summary, ". ") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if !strings.HasSuffix(sentence, ".") {
			sentence += "."
		}
		lines = append(lines, "• "+sentence)
	}
	return strings.Join(lines, "\n")
}

func buildResult(original, summary string, chunks int) *SummaryResult {
	originalLen := utf8.RuneCountInString(original)
	summaryLen := utf8.RuneCountInString(summary)

	ratio := 0.0
	if originalLen > 0 {
		ratio = math.Round(float64(summaryLen)/float64(originalLen)*100) / 100
	}

	return &SummaryResult{
		Summary:          summary,
		OriginalLength:   originalLen,
		SummaryLength:    summaryLen,
		CompressionRatio: ratio,
		WordCount:        len(strings.Fields(summary)),
		ChunkCount:       chunks,
	}
}

func summaryCacheKey(req summaryRequest) string {
	return auth.ContentKey(fmt.Sprintf("%s|%d|%s", req.style, req.maxLength, req.text))
}

func preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}
