package handler

import (
	"fmt"
	"net/http"

	"github.com/studycompanion/studycompanion/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	for _, c := range snap.ProviderCalls {
		writeMetric(w, "studycompanion_provider_calls_total{feature=%q,status=%q} %d\n", c.Feature, c.Status, c.Count)
		writeMetric(w, "studycompanion_provider_call_duration_seconds_sum{feature=%q,status=%q} %.6f\n", c.Feature, c.Status, float64(c.DurationTotalNs)/1e9)
	}
	writeMetric(w, "studycompanion_provider_tokens_total{kind=\"prompt\"} %d\n", snap.ProviderPromptTokens)
	writeMetric(w, "studycompanion_provider_tokens_total{kind=\"completion\"} %d\n", snap.ProviderCompletionTokens)

	writeMetric(w, "studycompanion_summary_cache_hits_total %d\n", snap.SummaryCacheHits)
	writeMetric(w, "studycompanion_summary_cache_misses_total %d\n", snap.SummaryCacheMisses)

	writeMetric(w, "studycompanion_users_registered_total %d\n", snap.UsersRegistered)
	writeMetric(w, "studycompanion_logins_total{status=\"success\"} %d\n", snap.LoginsSucceeded)
	writeMetric(w, "studycompanion_logins_total{status=\"failed\"} %d\n", snap.LoginsFailed)

	writeMetric(w, "studycompanion_usage_events_published_total{status=\"success\"} %d\n", snap.UsageEventsPublished)
	writeMetric(w, "studycompanion_usage_events_published_total{status=\"dropped\"} %d\n", snap.UsageEventsDropped)

	writeMetric(w, "studycompanion_usage_events_processed_total{status=\"success\"} %d\n", snap.UsageEventsProcessed)
	writeMetric(w, "studycompanion_usage_events_processed_total{status=\"failed\"} %d\n", snap.UsageEventsProcessedFailed)
	writeMetric(w, "studycompanion_usage_events_processed_total{status=\"skipped\"} %d\n", snap.UsageEventsProcessedSkipped)

	writeMetric(w, "studycompanion_usage_batches_total %d\n", snap.UsageBatchCount)
	writeMetric(w, "studycompanion_usage_batch_events_total %d\n", snap.UsageBatchEvents)
	writeMetric(w, "studycompanion_usage_queue_depth %d\n", snap.UsageQueueDepth)
	writeMetric(w, "studycompanion_usage_batch_duration_seconds_sum %.6f\n", float64(snap.UsageBatchDurationTotalNs)/1e9)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
