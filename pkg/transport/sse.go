package transport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/karthick-kk/kiro-gateway/pkg/api"
	"github.com/karthick-kk/kiro-gateway/pkg/observability"
)

// sseWriter writes chat completion chunks as server-sent events. Each
// chunk is flushed immediately so the client sees deltas as they
// arrive.
type sseWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
	closed  bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

// WriteChunk sends a single chunk as:
//
//	data: {json}\n
//	\n
func (s *sseWriter) WriteChunk(chunk api.ChatCompletionChunk) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.started = true
		observability.StreamingConnections.Inc()
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshaling chunk: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}
	return s.rc.Flush()
}

// WriteDone terminates the stream with the [DONE] sentinel.
func (s *sseWriter) WriteDone() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("writing [DONE]: %w", err)
	}
	return s.rc.Flush()
}

// Close releases the streaming connection gauge. Safe to call more
// than once.
func (s *sseWriter) Close() {
	if s.started && !s.closed {
		s.closed = true
		observability.StreamingConnections.Dec()
	}
}
