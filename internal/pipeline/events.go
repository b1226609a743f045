package pipeline

import (
	"time"

	"github.com/jonathan/fineprint/internal/types"
)

// EventType names the kind of an Event.
type EventType string

const (
	EventProgress      EventType = "progress"
	EventResult        EventType = "result"
	EventProviderError EventType = "provider_error"
	EventComplete      EventType = "complete"
)

// ProviderFailure describes a failed provider call.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Query    string `json:"query"`
	Message  string `json:"message"`
}

// Summary is the final account of a run.
type Summary struct {
	RunID             string        `json:"run_id"`
	State             State         `json:"state"`
	DocumentsScanned  int           `json:"documents_scanned"`
	DocumentsAnalyzed int           `json:"documents_analyzed"`
	FetchFailures     int           `json:"fetch_failures"`
	ResultsFound      int           `json:"results_found"`
	Cancelled         bool          `json:"cancelled"`
	Error             string        `json:"error,omitempty"`
	DroppedEvents     int           `json:"dropped_events"`
	Duration          time.Duration `json:"duration"`
}

// Event is one entry of a run's event stream. Exactly one payload field is set
// according to Type.
type Event struct {
	Type          EventType             `json:"type"`
	RunID         string                `json:"run_id"`
	State         State                 `json:"state"`
	Progress      *types.SearchProgress `json:"progress,omitempty"`
	Result        *types.Result         `json:"result,omitempty"`
	ProviderError *ProviderFailure      `json:"provider_error,omitempty"`
	Summary       *Summary              `json:"summary,omitempty"`
}

// publish delivers e without blocking. When the buffer is full the oldest
// buffered event is discarded.
func (r *Run) publish(e Event) {
	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()
	if r.closed {
		return
	}
	e.RunID = r.ID
	r.offer(e)
}

// offer must be called with eventsMu held.
func (r *Run) offer(e Event) {
	for {
		select {
		case r.events <- e:
			return
		default:
		}
		select {
		case <-r.events:
			r.dropped++
		default:
		}
	}
}

// finish delivers the terminal event and closes the stream.
func (r *Run) finish(build func(dropped int) Summary) Summary {
	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()

	// Make room first so the summary counts every discarded event.
	if len(r.events) == cap(r.events) {
		select {
		case <-r.events:
			r.dropped++
		default:
		}
	}
	summary := build(r.dropped)
	r.offer(Event{Type: EventComplete, RunID: r.ID, State: summary.State, Summary: &summary})
	r.closed = true
	close(r.events)
	return summary
}
