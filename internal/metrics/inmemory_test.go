package metrics

import (
	"testing"
	"time"
)

func TestInMemoryRecorder_ProviderCalls(t *testing.T) {
	m := NewInMemory()
	m.ObserveProviderCall("summarize", StatusSuccess, 2*time.Second)
	m.ObserveProviderCall("summarize", StatusSuccess, time.Second)
	m.ObserveProviderCall("chat", StatusFailed, time.Second)
	m.AddProviderTokens(10, 5)
	m.AddProviderTokens(-1, 0)

	snap := m.Snapshot()
	if len(snap.ProviderCalls) != 2 {
		t.Fatalf("expected 2 call groups, got %d", len(snap.ProviderCalls))
	}
	// sorted by feature then status
	if snap.ProviderCalls[0].Feature != "chat" {
		t.Errorf("expected chat first, got %s", snap.ProviderCalls[0].Feature)
	}
	sum := snap.ProviderCalls[1]
	if sum.Count != 2 || sum.DurationTotalNs != (3*time.Second).Nanoseconds() {
		t.Errorf("unexpected summarize stats %+v", sum)
	}
	if snap.ProviderPromptTokens != 10 || snap.ProviderCompletionTokens != 5 {
		t.Errorf("unexpected tokens %d/%d", snap.ProviderPromptTokens, snap.ProviderCompletionTokens)
	}
}

func TestInMemoryRecorder_Counters(t *testing.T) {
	m := NewInMemory()
	m.IncSummaryCacheHit()
	m.IncSummaryCacheMiss()
	m.IncSummaryCacheMiss()
	m.IncLogin(StatusSuccess)
	m.IncLogin(StatusFailed)
	m.IncUsageEventPublished(StatusSuccess)
	m.IncUsageEventPublished(StatusDropped)
	m.IncUsageEventProcessed(StatusSkipped)
	m.ObserveUsageBatchSize(3)
	m.SetUsageQueueDepth(7)

	snap := m.Snapshot()
	if snap.SummaryCacheHits != 1 || snap.SummaryCacheMisses != 2 {
		t.Errorf("cache counters = %d/%d", snap.SummaryCacheHits, snap.SummaryCacheMisses)
	}
	if snap.LoginsSucceeded != 1 || snap.LoginsFailed != 1 {
		t.Errorf("login counters = %d/%d", snap.LoginsSucceeded, snap.LoginsFailed)
	}
	if snap.UsageEventsPublished != 1 || snap.UsageEventsDropped != 1 {
		t.Errorf("publish counters = %d/%d", snap.UsageEventsPublished, snap.UsageEventsDropped)
	}
	if snap.UsageEventsProcessedSkipped != 1 {
		t.Errorf("skipped = %d", snap.UsageEventsProcessedSkipped)
	}
	if snap.UsageBatchCount != 1 || snap.UsageBatchEvents != 3 || snap.UsageQueueDepth != 7 {
		t.Errorf("batch stats = %+v", snap)
	}
}

func TestRecorderImplementations(t *testing.T) {
	var _ Recorder = NewNoop()
	var _ Recorder = NewInMemory()
	var _ Snapshotter = NewInMemory()
}
