package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// SSE writes events as Server-Sent-Events frames:
//
//	event: <name>
//	data: <json>
//	<blank line>
//
// Safe for concurrent use: the heartbeat timer emits status events while the
// run goroutine owns the main flow.
type SSE struct {
	mu sync.Mutex
	w  http.ResponseWriter
	fl http.Flusher
}

// NewSSE prepares w for an event stream and returns the emitter. Fails when
// the response writer cannot flush incrementally.
func NewSSE(w http.ResponseWriter) (*SSE, error) {
	fl, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fl.Flush()
	return &SSE{w: w, fl: fl}, nil
}

func (s *SSE) Emit(ev Event) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Name, payload); err != nil {
		return fmt.Errorf("writing %s event: %w", ev.Name, err)
	}
	s.fl.Flush()
	return nil
}
