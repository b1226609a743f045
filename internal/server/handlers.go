package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jonathan/fineprint/internal/pipeline"
	"github.com/jonathan/fineprint/internal/types"
)

// SearchRequest is the optional body of POST /search.
type SearchRequest struct {
	Queries      []string `json:"queries,omitempty" validate:"omitempty,dive,required"`
	SeedDomains  []string `json:"seed_domains,omitempty" validate:"omitempty,dive,required,hostname"`
	MaxDocuments *int     `json:"max_documents,omitempty" validate:"omitempty,gte=0"`
	Rescore      bool     `json:"rescore,omitempty"`
}

// RunResponse represents the response for run control endpoints
type RunResponse struct {
	RunID  string         `json:"run_id"`
	Status pipeline.State `json:"status"`
}

// ResultsResponse represents the response for GET /results
type ResultsResponse struct {
	Count   int            `json:"count"`
	Results []types.Result `json:"results"`
}

// HealthResponse represents the response for GET /health
type HealthResponse struct {
	Status   string                `json:"status"`
	RunState pipeline.State        `json:"run_state"`
	Progress *types.SearchProgress `json:"progress,omitempty"`
}

// keepAliveInterval spaces SSE comments on quiet streams.
const keepAliveInterval = 15 * time.Second

func (s *Server) runOptions(req SearchRequest) pipeline.RunOptions {
	opts := s.defaults
	if len(req.Queries) > 0 {
		opts.Queries = req.Queries
	}
	if len(req.SeedDomains) > 0 {
		opts.SeedDomains = req.SeedDomains
	}
	if req.MaxDocuments != nil {
		opts.MaxDocuments = *req.MaxDocuments
	}
	opts.Rescore = req.Rescore
	return opts
}

// handleStartSearch starts a run in the background
func (s *Server) handleStartSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorFor(w, validationError(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.orch.Start(s.baseCtx, s.runOptions(req))
	if err != nil {
		s.errorFor(w, err)
		return
	}
	s.current = newBroadcast(run)
	s.logger.Info("search started", "run_id", run.ID)

	s.jsonResponse(w, http.StatusAccepted, RunResponse{RunID: run.ID, Status: pipeline.StateDiscovering})
}

// activeRun returns the run in progress, if any.
func (s *Server) activeRun() *pipeline.Run {
	run := s.orch.Active()
	if run == nil || run.State().Terminal() {
		return nil
	}
	return run
}

// handleCancelSearch requests cancellation of the active run
func (s *Server) handleCancelSearch(w http.ResponseWriter, _ *http.Request) {
	run := s.activeRun()
	if run == nil {
		s.errorFor(w, ErrNoActiveRun)
		return
	}
	run.Cancel()
	s.jsonResponse(w, http.StatusAccepted, RunResponse{RunID: run.ID, Status: run.State()})
}

// handleSearchEvents streams the current run's events as SSE. A client that
// connects after the run finished receives only its complete event.
func (s *Server) handleSearchEvents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	b := s.current
	s.mu.Unlock()
	if b == nil {
		s.errorFor(w, ErrNoActiveRun)
		return
	}

	stream, err := newEventStream(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	events, unsubscribe := b.subscribe()
	defer unsubscribe()

	// Send the current snapshot first so late subscribers are not blank.
	progress := b.run.Progress()
	if err := stream.Send(pipeline.Event{
		Type:     pipeline.EventProgress,
		RunID:    b.run.ID,
		State:    b.run.State(),
		Progress: &progress,
	}); err != nil {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := stream.KeepAlive(); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := stream.Send(e); err != nil {
				s.logger.Debug("event stream closed by client", "error", err)
				return
			}
			if e.Type == pipeline.EventComplete {
				return
			}
		}
	}
}

// handleReset clears the store
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Reset(r.Context()); err != nil {
		s.errorFor(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleResults lists stored results
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	minConfidence := 0.0
	if v := r.URL.Query().Get("min_confidence"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			s.errorFor(w, &ErrValidation{Field: "min_confidence", Message: "must be a number between 0 and 1"})
			return
		}
		minConfidence = parsed
	}

	results, err := s.store.Results(r.Context(), minConfidence)
	if err != nil {
		s.errorFor(w, err)
		return
	}
	if results == nil {
		results = []types.Result{}
	}
	s.jsonResponse(w, http.StatusOK, ResultsResponse{Count: len(results), Results: results})
}

// handleStats returns store statistics
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.errorFor(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", RunState: pipeline.StateIdle}
	if run := s.orch.Active(); run != nil {
		resp.RunState = run.State()
		progress := run.Progress()
		resp.Progress = &progress
	}
	s.jsonResponse(w, http.StatusOK, resp)
}
