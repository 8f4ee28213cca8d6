package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ProviderCallStats aggregates provider calls for one feature and outcome.
type ProviderCallStats struct {
	Feature         string
	Status          string
	Count           uint64
	DurationTotalNs int64
}

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ProviderCalls            []ProviderCallStats
	ProviderPromptTokens     uint64
	ProviderCompletionTokens uint64

	SummaryCacheHits   uint64
	SummaryCacheMisses uint64

	UsersRegistered uint64
	LoginsSucceeded uint64
	LoginsFailed    uint64

	UsageEventsPublished        uint64
	UsageEventsDropped          uint64
	UsageEventsProcessed        uint64
	UsageEventsProcessedFailed  uint64
	UsageEventsProcessedSkipped uint64
	UsageBatchCount             uint64
	UsageBatchEvents            uint64
	UsageBatchDurationTotalNs   int64
	UsageQueueDepth             int64
}

type providerKey struct {
	feature string
	status  string
}

// InMemoryRecorder stores metrics in memory.
// It backs the /metrics endpoint and is used by tests.
type InMemoryRecorder struct {
	mu            sync.Mutex
	providerCalls map[providerKey]*ProviderCallStats

	promptTokens     uint64
	completionTokens uint64

	summaryCacheHits   uint64
	summaryCacheMisses uint64

	usersRegistered uint64
	loginsSucceeded uint64
	loginsFailed    uint64

	usagePublished        uint64
	usageDropped          uint64
	usageProcessed        uint64
	usageProcessedFailed  uint64
	usageProcessedSkipped uint64
	usageBatchCount       uint64
	usageBatchEvents      uint64
	usageBatchDurationNs  int64
	usageQueueDepth       int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{providerCalls: make(map[providerKey]*ProviderCallStats)}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	calls := make([]ProviderCallStats, 0, len(m.providerCalls))
	for _, s := range m.providerCalls {
		calls = append(calls, *s)
	}
	m.mu.Unlock()

	sort.Slice(calls, func(i, j int) bool {
		if calls[i].Feature != calls[j].Feature {
			return calls[i].Feature < calls[j].Feature
		}
		return calls[i].Status < calls[j].Status
	})

	return Snapshot{
		ProviderCalls:               calls,
		ProviderPromptTokens:        atomic.LoadUint64(&m.promptTokens),
		ProviderCompletionTokens:    atomic.LoadUint64(&m.completionTokens),
		SummaryCacheHits:            atomic.LoadUint64(&m.summaryCacheHits),
		SummaryCacheMisses:          atomic.LoadUint64(&m.summaryCacheMisses),
		UsersRegistered:             atomic.LoadUint64(&m.usersRegistered),
		LoginsSucceeded:             atomic.LoadUint64(&m.loginsSucceeded),
		LoginsFailed:                atomic.LoadUint64(&m.loginsFailed),
		UsageEventsPublished:        atomic.LoadUint64(&m.usagePublished),
		UsageEventsDropped:          atomic.LoadUint64(&m.usageDropped),
		UsageEventsProcessed:        atomic.LoadUint64(&m.usageProcessed),
		UsageEventsProcessedFailed:  atomic.LoadUint64(&m.usageProcessedFailed),
		UsageEventsProcessedSkipped: atomic.LoadUint64(&m.usageProcessedSkipped),
		UsageBatchCount:             atomic.LoadUint64(&m.usageBatchCount),
		UsageBatchEvents:            atomic.LoadUint64(&m.usageBatchEvents),
		UsageBatchDurationTotalNs:   atomic.LoadInt64(&m.usageBatchDurationNs),
		UsageQueueDepth:             atomic.LoadInt64(&m.usageQueueDepth),
	}
}

// ObserveProviderCall records one provider call and its latency.
func (m *InMemoryRecorder) ObserveProviderCall(feature, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := providerKey{feature: feature, status: status}
	s, ok := m.providerCalls[key]
	if !ok {
		s = &ProviderCallStats{Feature: feature, Status: status}
		m.providerCalls[key] = s
	}
	s.Count++
	s.DurationTotalNs += duration.Nanoseconds()
}

// AddProviderTokens accumulates token usage reported by the provider.
func (m *InMemoryRecorder) AddProviderTokens(prompt, completion int) {
	if prompt > 0 {
		atomic.AddUint64(&m.promptTokens, uint64(prompt))
	}
	if completion > 0 {
		atomic.AddUint64(&m.completionTokens, uint64(completion))
	}
}

// IncSummaryCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncSummaryCacheHit() {
	atomic.AddUint64(&m.summaryCacheHits, 1)
}

// IncSummaryCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncSummaryCacheMiss() {
	atomic.AddUint64(&m.summaryCacheMisses, 1)
}

// IncUserRegistered increments the registration counter.
func (m *InMemoryRecorder) IncUserRegistered() {
	atomic.AddUint64(&m.usersRegistered, 1)
}

// IncLogin increments the login counter for the given outcome.
func (m *InMemoryRecorder) IncLogin(status string) {
	if status == StatusSuccess {
		atomic.AddUint64(&m.loginsSucceeded, 1)
		return
	}
	atomic.AddUint64(&m.loginsFailed, 1)
}

// IncUsageEventPublished increments the publish counter for the given outcome.
func (m *InMemoryRecorder) IncUsageEventPublished(status string) {
	if status == StatusDropped {
		atomic.AddUint64(&m.usageDropped, 1)
		return
	}
	atomic.AddUint64(&m.usagePublished, 1)
}

// IncUsageEventProcessed increments the processed counter for the given outcome.
func (m *InMemoryRecorder) IncUsageEventProcessed(status string) {
	switch status {
	case StatusFailed:
		atomic.AddUint64(&m.usageProcessedFailed, 1)
	case StatusSkipped:
		atomic.AddUint64(&m.usageProcessedSkipped, 1)
	default:
		atomic.AddUint64(&m.usageProcessed, 1)
	}
}

// ObserveUsageBatchSize records a processed batch.
func (m *InMemoryRecorder) ObserveUsageBatchSize(size int) {
	atomic.AddUint64(&m.usageBatchCount, 1)
	atomic.AddUint64(&m.usageBatchEvents, uint64(size))
}

// ObserveUsageBatchDuration records batch processing time.
func (m *InMemoryRecorder) ObserveUsageBatchDuration(duration time.Duration) {
	atomic.AddInt64(&m.usageBatchDurationNs, duration.Nanoseconds())
}

// SetUsageQueueDepth stores the last observed stream backlog.
func (m *InMemoryRecorder) SetUsageQueueDepth(depth int64) {
	atomic.StoreInt64(&m.usageQueueDepth, depth)
}
