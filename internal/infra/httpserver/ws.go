package httpserver

import (
	"net/http"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	domain "github.com/bryanwahyu/procsec/internal/domain/analysis"
)

// clientMessage is a control frame from the stream client. The path's run id
// is subscribed implicitly; clients can multiplex more runs on one socket.
type clientMessage struct {
	Type       string `json:"type"`
	AnalysisID string `json:"analysisId"`
}

const (
	msgSubscribe   = "SUBSCRIBE_ANALYSIS"
	msgUnsubscribe = "UNSUBSCRIBE_ANALYSIS"
)

// GET /v1/{tenant}/analyses/{id}/stream
func (r *Router) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		websocket.Handler(r.serveStream).ServeHTTP(w, req)
	}
}

func (r *Router) serveStream(conn *websocket.Conn) {
	defer conn.Close()
	req := conn.Request()
	runID := domain.RunID(chi.URLParam(req, "id"))
	observer := "ws-" + uuid.New().String()

	// Events from every subscribed run funnel into one outbound pump so
	// frames never interleave on the socket.
	out := make(chan domain.ProgressEvent, 16)
	done := make(chan struct{})

	var mu sync.Mutex
	cleanups := map[domain.RunID]func(){}
	var wg sync.WaitGroup

	subscribe := func(id domain.RunID) {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := cleanups[id]; ok {
			return
		}
		ch, cleanup := r.hub.Subscribe(id, observer)
		cleanups[id] = cleanup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range ch {
				select {
				case out <- ev:
				case <-done:
					return
				}
			}
		}()
	}
	unsubscribe := func(id domain.RunID) {
		mu.Lock()
		defer mu.Unlock()
		if cleanup, ok := cleanups[id]; ok {
			cleanup()
			delete(cleanups, id)
		}
	}

	if runID != "" {
		subscribe(runID)
	}

	// Read loop: control frames plus disconnect detection.
	go func() {
		defer close(done)
		for {
			var msg clientMessage
			if err := websocket.JSON.Receive(conn, &msg); err != nil {
				return
			}
			switch msg.Type {
			case msgSubscribe:
				if msg.AnalysisID != "" {
					subscribe(domain.RunID(msg.AnalysisID))
				}
			case msgUnsubscribe:
				if msg.AnalysisID != "" {
					unsubscribe(domain.RunID(msg.AnalysisID))
				}
			}
		}
	}()

	defer func() {
		mu.Lock()
		for _, cleanup := range cleanups {
			cleanup()
		}
		mu.Unlock()
		wg.Wait()
	}()

	for {
		select {
		case ev := <-out:
			if err := websocket.JSON.Send(conn, ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
