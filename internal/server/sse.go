package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/fineprint/internal/pipeline"
)

// errStreamingUnsupported is returned when the response cannot be flushed.
var errStreamingUnsupported = errors.New("streaming not supported")

// eventStream writes run events as Server-Sent Events. Each frame carries the
// event type (progress, result, provider_error or complete) as its SSE event
// name, a per-connection sequence number as its id and the JSON Event as data.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	seq     int
}

// newEventStream sets the streaming headers on w.
func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &eventStream{w: w, flusher: flusher}, nil
}

// Send writes e as one frame and flushes it.
func (s *eventStream) Send(e pipeline.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}

	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, e.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// KeepAlive writes a comment frame so idle proxies keep the connection open.
func (s *eventStream) KeepAlive() error {
	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
