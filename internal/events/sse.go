package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SSEWriter wraps an http.ResponseWriter for SSE streaming.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer, setting appropriate headers.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends a named SSE event.
func (s *SSEWriter) WriteEvent(event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteComment sends a keep-alive comment line.
func (s *SSEWriter) WriteComment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Handler streams hub events to the client until the request is cancelled.
// An optional call_id query parameter restricts the stream to one call.
func (h *Hub) Handler(keepAlive time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sse, err := NewSSEWriter(w)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		callID := r.URL.Query().Get("call_id")

		ch, cancel := h.Subscribe(64)
		defer cancel()

		if err := sse.WriteComment("connected"); err != nil {
			return
		}

		var tick <-chan time.Time
		if keepAlive > 0 {
			t := time.NewTicker(keepAlive)
			defer t.Stop()
			tick = t.C
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case <-tick:
				if err := sse.WriteComment("ping"); err != nil {
					return
				}
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if callID != "" && ev.CallID != callID {
					continue
				}
				if err := sse.WriteEvent(string(ev.Type), ev); err != nil {
					return
				}
			}
		}
	})
}
