package usage

import (
	"fmt"

	"github.com/studycompanion/studycompanion/internal/provider"
)

const maxModelLength = 100

// Dead-letter reasons for usage events the worker cannot store.
const (
	ReasonMissingPayload    = "missing_payload"
	ReasonMalformedJSON     = "malformed_json"
	ReasonMissingFeature    = "missing_feature"
	ReasonUnknownFeature    = "unknown_feature"
	ReasonMissingStatus     = "missing_status"
	ReasonModelTooLong      = "model_too_long"
	ReasonNegativeTokens    = "negative_tokens"
	ReasonNegativeLatency   = "negative_latency"
	ReasonMissingOccurredAt = "missing_occurred_at"
)

// RejectedEventError explains why a usage event was refused. Reason is one
// of the Reason constants and is written to the dead-letter stream.
type RejectedEventError struct {
	Reason string
	Detail string
}

func (e *RejectedEventError) Error() string {
	return e.Reason + ": " + e.Detail
}

func rejected(reason, format string, args ...any) *RejectedEventError {
	return &RejectedEventError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ValidateEventPayload checks a usage event before it is stored.
// The returned error, if any, is a *RejectedEventError.
func ValidateEventPayload(payload EventPayload) error {
	switch payload.Feature {
	case provider.FeatureSummarize, provider.FeatureRecommend, provider.FeatureChat:
	case "":
		return rejected(ReasonMissingFeature, "feature is required")
	default:
		return rejected(ReasonUnknownFeature, "unknown feature %q", payload.Feature)
	}
	if payload.Status == "" {
		return rejected(ReasonMissingStatus, "status is required")
	}
	if len(payload.Model) > maxModelLength {
		return rejected(ReasonModelTooLong, "model name is %d bytes, limit %d", len(payload.Model), maxModelLength)
	}
	if payload.PromptTokens < 0 || payload.CompletionTokens < 0 {
		return rejected(ReasonNegativeTokens, "token counts %d/%d", payload.PromptTokens, payload.CompletionTokens)
	}
	if payload.LatencyMs < 0 {
		return rejected(ReasonNegativeLatency, "latency %dms", payload.LatencyMs)
	}
	if payload.OccurredAt <= 0 {
		return rejected(ReasonMissingOccurredAt, "occurred_at must be set")
	}
	return nil
}
