package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// ObserveProviderCall is a no-op.
func (n *NoopRecorder) ObserveProviderCall(feature, status string, duration time.Duration) {}

// AddProviderTokens is a no-op.
func (n *NoopRecorder) AddProviderTokens(prompt, completion int) {}

// IncSummaryCacheHit is a no-op.
func (n *NoopRecorder) IncSummaryCacheHit() {}

// IncSummaryCacheMiss is a no-op.
func (n *NoopRecorder) IncSummaryCacheMiss() {}

// IncUserRegistered is a no-op.
func (n *NoopRecorder) IncUserRegistered() {}

// IncLogin is a no-op.
func (n *NoopRecorder) IncLogin(status string) {}

// IncUsageEventPublished is a no-op.
func (n *NoopRecorder) IncUsageEventPublished(status string) {}

// IncUsageEventProcessed is a no-op.
func (n *NoopRecorder) IncUsageEventProcessed(status string) {}

// ObserveUsageBatchSize is a no-op.
func (n *NoopRecorder) ObserveUsageBatchSize(size int) {}

// ObserveUsageBatchDuration is a no-op.
func (n *NoopRecorder) ObserveUsageBatchDuration(duration time.Duration) {}

// SetUsageQueueDepth is a no-op.
func (n *NoopRecorder) SetUsageQueueDepth(depth int64) {}
