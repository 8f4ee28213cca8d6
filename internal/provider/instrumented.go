package provider

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/studycompanion/studycompanion/internal/metrics"
)

const tracerName = "github.com/studycompanion/studycompanion/internal/provider"

// Call describes one finished provider call.
type Call struct {
	Feature          string
	UserID           string
	Model            string
	Status           string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
	At               time.Time
}

// CallObserver receives a Call after every completion attempt.
type CallObserver interface {
	ObserveCall(ctx context.Context, call Call)
}

// Instrumented wraps a Client with tracing, metrics and call observation.
type Instrumented struct {
	next      Client
	recorder  metrics.Recorder
	observer  CallObserver
	tracer    trace.Tracer
	modelName string
	now       func() time.Time
}

// NewInstrumented wraps next. observer may be nil.
func NewInstrumented(next Client, defaultModel string, recorder metrics.Recorder, observer CallObserver) *Instrumented {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Instrumented{
		next:      next,
		recorder:  recorder,
		observer:  observer,
		tracer:    otel.Tracer(tracerName),
		modelName: defaultModel,
		now:       time.Now,
	}
}

// Complete implements Client.
func (c *Instrumented) Complete(ctx context.Context, req Request) (*Completion, error) {
	model := req.Model
	if model == "" {
		model = c.modelName
	}

	ctx, span := c.tracer.Start(ctx, "provider.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider.feature", req.Feature),
			attribute.String("provider.model", model),
			attribute.Int("provider.messages", len(req.Messages)),
			attribute.Bool("provider.json", req.JSON),
		),
	)
	defer span.End()

	start := c.now()
	out, err := c.next.Complete(ctx, req)
	latency := c.now().Sub(start)

	call := Call{
		Feature: req.Feature,
		UserID:  req.UserID,
		Model:   model,
		Status:  metrics.StatusSuccess,
		Latency: latency,
		At:      start.UTC(),
	}

	if err != nil {
		call.Status = metrics.StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, errorKind(err))
	} else {
		if out.Model != "" {
			call.Model = out.Model
		}
		call.PromptTokens = out.PromptTokens
		call.CompletionTokens = out.CompletionTokens
		span.SetAttributes(
			attribute.Int("provider.prompt_tokens", out.PromptTokens),
			attribute.Int("provider.completion_tokens", out.CompletionTokens),
			attribute.String("provider.finish_reason", out.FinishReason),
		)
		c.recorder.AddProviderTokens(out.PromptTokens, out.CompletionTokens)
	}

	c.recorder.ObserveProviderCall(req.Feature, call.Status, latency)
	if c.observer != nil {
		c.observer.ObserveCall(ctx, call)
	}
	return out, err
}

// errorKind returns a short, secret-free label for span status.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrEmptyCompletion):
		return "empty_completion"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unavailable"
	}
}
