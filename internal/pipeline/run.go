package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/fineprint/internal/discovery"
	"github.com/jonathan/fineprint/internal/patterns"
	"github.com/jonathan/fineprint/internal/store"
	"github.com/jonathan/fineprint/internal/types"
)

// Run is one execution of the pipeline.
type Run struct {
	ID string

	o       *Orchestrator
	opts    RunOptions
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
	started time.Time
	done    chan struct{}

	mu       sync.Mutex
	state    State
	progress types.SearchProgress
	summary  Summary
	fatal    error

	eventsMu sync.Mutex
	events   chan Event
	dropped  int
	closed   bool

	fetches atomic.Int64
}

func newRun(parent context.Context, o *Orchestrator, opts RunOptions) *Run {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()
	return &Run{
		ID:       id,
		o:        o,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		logger:   o.logger.With("run_id", id),
		started:  time.Now(),
		done:     make(chan struct{}),
		state:    StateIdle,
		progress: types.SearchProgress{Phase: types.PhaseDiscovery},
		events:   make(chan Event, o.cfg.EventBuffer),
	}
}

// Events returns the run's event stream. It is closed after the complete event.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Cancel requests cooperative cancellation.
func (r *Run) Cancel() {
	if r.setState(StateCancelling) {
		r.publishProgress()
	}
	r.cancel()
}

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes and returns its summary.
func (r *Run) Wait() Summary {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Progress returns a snapshot of the run's counters.
func (r *Run) Progress() types.SearchProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// setState moves to next if the transition is allowed.
func (r *Run) setState(next State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.CanTransition(next) {
		return false
	}
	r.state = next
	r.progress.Phase = next.Phase()
	r.o.metrics.SetRunState(string(next))
	r.logger.Debug("run state changed", "state", next)
	return true
}

// update applies fn to the progress under lock and returns the new snapshot.
func (r *Run) update(fn func(p *types.SearchProgress)) (types.SearchProgress, State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.progress)
	return r.progress, r.state
}

func (r *Run) publishProgress() {
	r.progressed(func(*types.SearchProgress) {})
}

// progressed applies fn and publishes the resulting snapshot. Holding
// eventsMu across both keeps snapshots in order on the stream.
func (r *Run) progressed(fn func(p *types.SearchProgress)) {
	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()
	p, s := r.update(fn)
	if r.closed {
		return
	}
	r.offer(Event{Type: EventProgress, RunID: r.ID, State: s, Progress: &p})
}

// resultFound counts result and publishes it followed by the new snapshot.
func (r *Run) resultFound(result types.Result) {
	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()
	p, s := r.update(func(p *types.SearchProgress) { p.ResultsFound++ })
	if r.closed {
		return
	}
	r.offer(Event{Type: EventResult, RunID: r.ID, State: s, Result: &result})
	r.offer(Event{Type: EventProgress, RunID: r.ID, State: s, Progress: &p})
}

// setFatal records the first fatal error.
func (r *Run) setFatal(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fatal == nil {
		r.fatal = err
	}
}

// isFatal reports whether err must end the run as failed.
func isFatal(err error) bool {
	var cfgErr *patterns.ConfigError
	return store.IsStorageError(err) || errors.As(err, &cfgErr)
}

func (r *Run) execute() {
	defer close(r.done)
	defer r.cancel()

	r.setState(StateDiscovering)
	r.publishProgress()
	r.logger.Info("search run started", "queries", len(r.opts.Queries), "seeds", len(r.opts.SeedDomains))

	err := r.work()
	if err != nil && isFatal(err) {
		r.setFatal(err)
	}

	r.mu.Lock()
	fatal := r.fatal
	r.mu.Unlock()

	switch {
	case fatal != nil:
		r.setState(StateFailed)
		r.logger.Error("search run failed", "error", fatal)
	case r.ctx.Err() != nil:
		r.setState(StateCancelling)
		r.setState(StateCancelled)
		r.logger.Info("search run cancelled")
	default:
		r.setState(StateFetching)
		r.setState(StateAnalyzing)
		r.setState(StateCompleted)
	}

	summary := r.finish(func(dropped int) Summary {
		r.mu.Lock()
		defer r.mu.Unlock()
		s := Summary{
			RunID:             r.ID,
			State:             r.state,
			DocumentsScanned:  r.progress.DocumentsScanned,
			DocumentsAnalyzed: r.progress.DocumentsAnalyzed,
			FetchFailures:     r.progress.FetchFailures,
			ResultsFound:      r.progress.ResultsFound,
			Cancelled:         r.state == StateCancelled,
			DroppedEvents:     dropped,
			Duration:          time.Since(r.started),
		}
		if r.fatal != nil {
			s.Error = r.fatal.Error()
		}
		r.summary = s
		return s
	})

	r.logger.Info("search run finished",
		"state", summary.State,
		"documents_scanned", summary.DocumentsScanned,
		"documents_analyzed", summary.DocumentsAnalyzed,
		"fetch_failures", summary.FetchFailures,
		"results_found", summary.ResultsFound,
		"dropped_events", summary.DroppedEvents,
		"duration", summary.Duration)
}

// work runs the three stages concurrently and returns the first fatal error.
func (r *Run) work() error {
	s := r.o.deps.Store

	pending, err := s.PendingCandidates(r.ctx, 0)
	if err != nil {
		return ignoreCancel(r.ctx, err)
	}
	unscored, err := s.DocumentsForScoring(r.ctx, r.opts.Rescore, 0)
	if err != nil {
		return ignoreCancel(r.ctx, err)
	}
	if len(pending) > 0 || len(unscored) > 0 {
		r.logger.Info("resuming earlier work", "pending_candidates", len(pending), "unscored_documents", len(unscored))
	}
	r.progressed(func(p *types.SearchProgress) {
		p.DocumentsTotalEstimate = len(pending) + len(unscored)
	})

	g, gctx := errgroup.WithContext(r.ctx)
	// discCtx additionally ends when MaxDocuments is reached.
	discCtx, stopDiscovery := context.WithCancel(gctx)
	defer stopDiscovery()

	candidates := make(chan string, r.o.cfg.CandidateQueue)
	analyze := make(chan types.StoredText, r.o.cfg.AnalyzeQueue)

	g.Go(func() error {
		defer close(candidates)
		err := r.discover(discCtx, pending, candidates)
		if err == nil && gctx.Err() == nil {
			r.setState(StateFetching)
		}
		return err
	})

	var producers sync.WaitGroup
	producers.Add(r.o.cfg.FetchWorkers + 1)
	g.Go(func() error {
		defer producers.Done()
		for _, doc := range unscored {
			if !send(gctx, analyze, doc) {
				return nil
			}
		}
		return nil
	})
	for range r.o.cfg.FetchWorkers {
		g.Go(func() error {
			defer producers.Done()
			return r.fetchWorker(gctx, candidates, analyze, stopDiscovery)
		})
	}
	g.Go(func() error {
		producers.Wait()
		close(analyze)
		if gctx.Err() == nil {
			r.setState(StateAnalyzing)
		}
		return nil
	})

	for range r.o.cfg.ScoreWorkers {
		g.Go(func() error {
			return r.scoreWorker(gctx, analyze)
		})
	}

	return g.Wait()
}

// discover feeds resumed and newly discovered candidates into out.
func (r *Run) discover(ctx context.Context, pending []types.CandidateURL, out chan<- string) error {
	for _, c := range pending {
		if !send(ctx, out, c.URL) {
			return nil
		}
	}

	coord := discovery.New(r.o.deps.Store, r.o.deps.Providers, r.o.deps.Seeder, discovery.Options{
		Exhaustive:      r.o.cfg.Exhaustive,
		OnProviderError: r.providerError,
		Logger:          r.logger,
		Metrics:         r.o.metrics,
	})

	for c, err := range coord.Discover(ctx, r.opts.Queries, r.opts.SeedDomains) {
		if err != nil {
			r.setFatal(err)
			return err
		}
		r.progressed(func(p *types.SearchProgress) {
			p.DocumentsTotalEstimate++
		})
		if !send(ctx, out, c.URL) {
			return nil
		}
	}
	return nil
}

func (r *Run) providerError(pe *discovery.ProviderError) {
	r.publish(Event{
		Type:  EventProviderError,
		State: r.State(),
		ProviderError: &ProviderFailure{
			Provider: pe.Provider,
			Query:    pe.Query,
			Message:  pe.Cause.Error(),
		},
	})
}

// reserveFetch claims one network fetch against MaxDocuments.
func (r *Run) reserveFetch() bool {
	if r.opts.MaxDocuments <= 0 {
		return true
	}
	if r.fetches.Add(1) > int64(r.opts.MaxDocuments) {
		r.fetches.Add(-1)
		return false
	}
	return true
}

func (r *Run) fetchWorker(ctx context.Context, in <-chan string, out chan<- types.StoredText, stopDiscovery context.CancelFunc) error {
	for {
		var url string
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-in:
			if !ok {
				return nil
			}
			url = u
		}

		if !r.reserveFetch() {
			// Candidate stays pending for the next run.
			stopDiscovery()
			continue
		}

		r.progressed(func(p *types.SearchProgress) { p.CurrentURL = url })

		fetched, err := r.o.deps.Fetcher.Fetch(ctx, url)
		if fetched == nil {
			if ctx.Err() != nil {
				return nil
			}
			if isFatal(err) {
				r.setFatal(err)
				return err
			}
			r.logger.Warn("fetch failed without a document", "url", url, "error", err)
			continue
		}
		if fetched.Cached {
			r.fetches.Add(-1)
			r.logger.Debug("skipping already fetched document", "url", url)
			continue
		}
		if err != nil {
			r.logger.Info("fetch failed", "url", url, "status", fetched.Document.Status, "error", err)
		}

		if err := r.o.deps.Store.RecordDocument(context.WithoutCancel(ctx), fetched.Document, fetched.Text); err != nil {
			err = store.Wrap("record document", err)
			r.setFatal(err)
			return err
		}

		failed := fetched.Document.Status == types.StatusFetchFailed
		r.progressed(func(p *types.SearchProgress) {
			p.DocumentsScanned++
			if failed {
				p.FetchFailures++
			}
		})

		if fetched.Document.Status != types.StatusOK {
			continue
		}
		if !send(ctx, out, types.StoredText{URL: url, Text: fetched.Text}) {
			return nil
		}
	}
}

func (r *Run) scoreWorker(ctx context.Context, in <-chan types.StoredText) error {
	for {
		var doc types.StoredText
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-in:
			if !ok {
				return nil
			}
			doc = d
		}

		matches, err := r.o.deps.Scorer.Score(ctx, doc.Text)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isFatal(err) {
				r.setFatal(err)
				return err
			}
			r.logger.Warn("scoring failed", "url", doc.URL, "error", err)
			continue
		}

		now := time.Now().UTC()
		for _, m := range matches {
			result := m.ToResult(doc.URL, now)
			if err := r.o.deps.Store.SaveResult(context.WithoutCancel(ctx), result); err != nil {
				err = store.Wrap("save result", err)
				r.setFatal(err)
				return err
			}
			r.o.metrics.ResultFound(string(result.TierLabel))
			r.resultFound(result)
		}

		if err := r.o.deps.Store.MarkScored(context.WithoutCancel(ctx), doc.URL); err != nil {
			err = store.Wrap("mark scored", err)
			r.setFatal(err)
			return err
		}
		r.progressed(func(p *types.SearchProgress) { p.DocumentsAnalyzed++ })
		if len(matches) > 0 {
			r.logger.Info("document analyzed", "url", doc.URL, "matches", len(matches))
		}
	}
}

// send delivers v unless ctx ends first.
func send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- v:
		return true
	}
}

func ignoreCancel(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("failed to load resumable work: %w", store.Wrap("resume", err))
}
