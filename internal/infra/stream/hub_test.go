package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/procsec/internal/domain/analysis"
)

func progressEvent(runID analysis.RunID, progress int, step string) analysis.ProgressEvent {
	return analysis.ProgressEvent{
		Type:        analysis.EventProgress,
		AnalysisID:  runID,
		Progress:    progress,
		CurrentStep: step,
		Status:      analysis.StatusInProgress,
		Timestamp:   time.Now(),
	}
}

func completeEvent(runID analysis.RunID) analysis.ProgressEvent {
	return analysis.ProgressEvent{
		Type:       analysis.EventComplete,
		AnalysisID: runID,
		Progress:   100,
		Status:     analysis.StatusCompleted,
		Timestamp:  time.Now(),
	}
}

func TestHub_PublishSubscribe(t *testing.T) {
	h := NewHub()
	defer h.Close()

	ch, cleanup := h.Subscribe("run-1", "obs-1")
	defer cleanup()

	h.Publish(progressEvent("run-1", 33, "rule_scan"))

	select {
	case ev := <-ch:
		assert.Equal(t, analysis.EventProgress, ev.Type)
		assert.Equal(t, 33, ev.Progress)
		assert.Equal(t, "rule_scan", ev.CurrentStep)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestHub_OrderPreservedPerSubscriber(t *testing.T) {
	h := NewHub()
	defer h.Close()

	ch, cleanup := h.Subscribe("run-1", "obs-1")
	defer cleanup()

	steps := []int{0, 33, 66}
	for _, p := range steps {
		h.Publish(progressEvent("run-1", p, "step"))
	}
	h.Publish(completeEvent("run-1"))

	var got []int
	for ev := range ch {
		got = append(got, ev.Progress)
	}
	require.Equal(t, []int{0, 33, 66, 100}, got)
}

func TestHub_LateSubscriberGetsTerminalEventOnly(t *testing.T) {
	h := NewHub()
	defer h.Close()

	h.Publish(progressEvent("run-1", 50, "ai_insight"))
	h.Publish(completeEvent("run-1"))

	ch, cleanup := h.Subscribe("run-1", "late")
	defer cleanup()

	var events []analysis.ProgressEvent
	for ev := range ch {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.Equal(t, analysis.EventComplete, events[0].Type)
}

func TestHub_MidRunSubscriberGetsSnapshotFirst(t *testing.T) {
	h := NewHub()
	defer h.Close()

	h.Publish(progressEvent("run-1", 33, "rule_scan"))

	ch, cleanup := h.Subscribe("run-1", "mid")
	defer cleanup()

	select {
	case ev := <-ch:
		assert.Equal(t, analysis.EventProgress, ev.Type)
		assert.Equal(t, 33, ev.Progress)
	case <-time.After(time.Second):
		t.Fatal("expected synthetic snapshot event")
	}

	h.Publish(progressEvent("run-1", 66, "compliance"))
	select {
	case ev := <-ch:
		assert.Equal(t, 66, ev.Progress)
	case <-time.After(time.Second):
		t.Fatal("expected live event after snapshot")
	}
}

func TestHub_SubscribeIdempotent(t *testing.T) {
	h := NewHub()
	defer h.Close()

	ch1, cleanup1 := h.Subscribe("run-1", "obs-1")
	ch2, cleanup2 := h.Subscribe("run-1", "obs-1")
	defer cleanup1()
	defer cleanup2()

	h.Publish(progressEvent("run-1", 10, "step"))

	// Same registration: one channel, one delivery.
	require.Equal(t, ch1, ch2)
	select {
	case <-ch1:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
	select {
	case ev := <-ch1:
		t.Fatalf("unexpected duplicate event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnsubscribeIdempotent(t *testing.T) {
	h := NewHub()
	defer h.Close()

	_, _ = h.Subscribe("run-1", "obs-1")
	h.Unsubscribe("run-1", "obs-1")
	// Second call must be a no-op, not a panic on double close.
	h.Unsubscribe("run-1", "obs-1")
}

func TestHub_SlowSubscriberDropsOldestNeverTerminal(t *testing.T) {
	h := NewHub(WithBufferSize(2))
	defer h.Close()

	ch, cleanup := h.Subscribe("run-1", "slow")
	defer cleanup()

	// Overflow the buffer without draining.
	for p := 1; p <= 5; p++ {
		h.Publish(progressEvent("run-1", p*10, "step"))
	}
	h.Publish(completeEvent("run-1"))

	var got []analysis.ProgressEvent
	for ev := range ch {
		got = append(got, ev)
	}
	// Oldest events were evicted, the terminal event survived as the last
	// delivered event.
	require.NotEmpty(t, got)
	assert.Equal(t, analysis.EventComplete, got[len(got)-1].Type)
	assert.LessOrEqual(t, len(got), 2)
}

func TestHub_TerminalEventClosesStream(t *testing.T) {
	h := NewHub()
	defer h.Close()

	ch, cleanup := h.Subscribe("run-1", "obs-1")
	defer cleanup()

	h.Publish(completeEvent("run-1"))
	// Events published after the terminal one are discarded.
	h.Publish(progressEvent("run-1", 99, "stale"))

	var events []analysis.ProgressEvent
	for ev := range ch {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.Equal(t, analysis.EventComplete, events[0].Type)
	assert.True(t, h.Terminal("run-1"))
}

func TestHub_HeartbeatForActiveSubscribers(t *testing.T) {
	h := NewHub(WithHeartbeat(20 * time.Millisecond))
	defer h.Close()

	ch, cleanup := h.Subscribe("run-1", "obs-1")
	defer cleanup()

	select {
	case ev := <-ch:
		assert.Equal(t, analysis.EventHeartbeat, ev.Type)
		assert.Equal(t, analysis.RunID("run-1"), ev.AnalysisID)
	case <-time.After(time.Second):
		t.Fatal("no heartbeat received")
	}
}

func TestHub_DifferentRunsDoNotCross(t *testing.T) {
	h := NewHub()
	defer h.Close()

	ch1, cleanup1 := h.Subscribe("run-1", "obs")
	defer cleanup1()
	ch2, cleanup2 := h.Subscribe("run-2", "obs")
	defer cleanup2()

	h.Publish(progressEvent("run-1", 10, "step"))

	select {
	case ev := <-ch1:
		assert.Equal(t, analysis.RunID("run-1"), ev.AnalysisID)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
	select {
	case ev := <-ch2:
		t.Fatalf("event leaked across runs: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
