// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Outcome labels used by the recorder.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusDropped = "dropped"
	StatusSkipped = "skipped"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Provider metrics
	ObserveProviderCall(feature, status string, duration time.Duration)
	AddProviderTokens(prompt, completion int)

	// Summary cache metrics
	IncSummaryCacheHit()
	IncSummaryCacheMiss()

	// Account metrics
	IncUserRegistered()
	IncLogin(status string) // status: "success" or "failed"

	// Usage pipeline metrics
	IncUsageEventPublished(status string) // status: "success" or "dropped"
	IncUsageEventProcessed(status string) // status: "success", "failed", "skipped"
	ObserveUsageBatchSize(size int)
	ObserveUsageBatchDuration(duration time.Duration)
	SetUsageQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
