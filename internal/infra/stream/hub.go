package stream

import (
	"log"
	"sync"
	"time"

	"github.com/bryanwahyu/procsec/internal/domain/analysis"
)

const defaultBufferSize = 32

// Hub is the per-run multicast channel behind the Broadcaster port.
//
// Each run id owns its own subscriber registry guarded by a per-run mutex, so
// subscribe/unsubscribe/publish for one run are mutually exclusive while
// different runs never contend. Observers receive events through bounded
// buffered channels; a full buffer drops the oldest event rather than
// stalling the publisher. Terminal events are never dropped: the hub evicts
// older buffered events until the terminal one fits, and it is replayed to
// any observer that subscribes after the run already finished.
type Hub struct {
	mu      sync.RWMutex
	runs    map[analysis.RunID]*runChannel
	bufSize int

	heartbeat time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
}

type runChannel struct {
	mu        sync.Mutex
	observers map[string]chan analysis.ProgressEvent
	last      *analysis.ProgressEvent // latest event, for mid-run joiners
	terminal  *analysis.ProgressEvent // set once, replayed to late joiners
}

type Option func(*Hub)

// WithBufferSize overrides the per-observer buffer capacity.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufSize = n
		}
	}
}

// WithHeartbeat sets the interval for HEARTBEAT events on runs that have at
// least one subscriber. Zero disables the ticker.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Hub) { h.heartbeat = d }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		runs:    make(map[analysis.RunID]*runChannel),
		bufSize: defaultBufferSize,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.heartbeat > 0 {
		go h.heartbeatLoop()
	}
	return h
}

// Close stops the heartbeat ticker and closes every observer channel.
func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, rc := range h.runs {
		rc.mu.Lock()
		for obs, ch := range rc.observers {
			close(ch)
			delete(rc.observers, obs)
		}
		rc.mu.Unlock()
		delete(h.runs, id)
	}
}

func (h *Hub) channel(runID analysis.RunID) *runChannel {
	h.mu.RLock()
	rc, ok := h.runs[runID]
	h.mu.RUnlock()
	if ok {
		return rc
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if rc, ok = h.runs[runID]; ok {
		return rc
	}
	rc = &runChannel{observers: make(map[string]chan analysis.ProgressEvent)}
	h.runs[runID] = rc
	return rc
}

// Subscribe registers observerID for runID. Subscribing twice with the same
// observer id returns the existing channel (idempotent). A subscriber joining
// a terminal run immediately receives exactly the terminal event; a mid-run
// joiner first receives a synthetic snapshot of the latest progress.
func (h *Hub) Subscribe(runID analysis.RunID, observerID string) (<-chan analysis.ProgressEvent, func()) {
	rc := h.channel(runID)
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if ch, ok := rc.observers[observerID]; ok {
		return ch, func() { h.Unsubscribe(runID, observerID) }
	}

	ch := make(chan analysis.ProgressEvent, h.bufSize)
	if rc.terminal != nil {
		// Run already finished: deliver the terminal event only, no
		// registration that would leak.
		ch <- *rc.terminal
		close(ch)
		return ch, func() {}
	}
	if rc.last != nil {
		ch <- *rc.last
	}
	rc.observers[observerID] = ch
	return ch, func() { h.Unsubscribe(runID, observerID) }
}

// Unsubscribe removes the registration. Safe to call twice.
func (h *Hub) Unsubscribe(runID analysis.RunID, observerID string) {
	h.mu.RLock()
	rc, ok := h.runs[runID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if ch, ok := rc.observers[observerID]; ok {
		delete(rc.observers, observerID)
		close(ch)
	}
}

// Publish delivers the event to every current subscriber of its run. The
// stage pipeline never blocks here: slow observers lose their oldest
// buffered event instead.
func (h *Hub) Publish(event analysis.ProgressEvent) {
	rc := h.channel(event.AnalysisID)
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.terminal != nil {
		// Stream already closed for this run.
		return
	}

	if event.Type != analysis.EventHeartbeat {
		e := event
		rc.last = &e
	}
	terminal := event.TerminalEvent()
	if terminal {
		e := event
		rc.terminal = &e
	}

	for obs, ch := range rc.observers {
		h.send(ch, event, terminal, obs)
		if terminal {
			close(ch)
			delete(rc.observers, obs)
		}
	}
}

// send pushes event onto ch, evicting the oldest buffered event on overflow.
// Publishes for one run are serialized by the run mutex, so the drain/retry
// below cannot race with another producer.
func (h *Hub) send(ch chan analysis.ProgressEvent, event analysis.ProgressEvent, terminal bool, observer string) {
	for {
		select {
		case ch <- event:
			return
		default:
		}
		select {
		case old := <-ch:
			if !terminal {
				log.Printf("stream: dropped event type=%s run=%s observer=%s", old.Type, old.AnalysisID, observer)
			}
		default:
		}
	}
}

// Terminal reports whether the run's stream has already closed.
func (h *Hub) Terminal(runID analysis.RunID) bool {
	h.mu.RLock()
	rc, ok := h.runs[runID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.terminal != nil
}

func (h *Hub) heartbeatLoop() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case now := <-ticker.C:
			h.emitHeartbeats(now)
		}
	}
}

// emitHeartbeats sends a HEARTBEAT to every run that still has observers so
// clients can tell "still running, no news" from a dead connection.
func (h *Hub) emitHeartbeats(now time.Time) {
	h.mu.RLock()
	ids := make([]analysis.RunID, 0, len(h.runs))
	for id := range h.runs {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.mu.RLock()
		rc, ok := h.runs[id]
		h.mu.RUnlock()
		if !ok {
			continue
		}
		rc.mu.Lock()
		if rc.terminal == nil && len(rc.observers) > 0 {
			hb := analysis.ProgressEvent{
				Type:       analysis.EventHeartbeat,
				AnalysisID: id,
				Timestamp:  now,
			}
			for obs, ch := range rc.observers {
				h.send(ch, hb, false, obs)
			}
		}
		rc.mu.Unlock()
	}
}
