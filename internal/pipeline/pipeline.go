// Package pipeline orchestrates discovery, fetching and analysis as one
// cancellable run with an ordered event stream.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jonathan/fineprint/internal/discovery"
	"github.com/jonathan/fineprint/internal/fetch"
	"github.com/jonathan/fineprint/internal/observability"
	"github.com/jonathan/fineprint/internal/scoring"
	"github.com/jonathan/fineprint/internal/store"
)

// ErrRunActive is returned by Start and Reset while a run is in progress.
var ErrRunActive = errors.New("a search run is already active")

// DocumentFetcher resolves a URL to a document. fetch.Coordinator implements it.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Fetched, error)
}

// Scorer finds matches in document text. scoring.Engine implements it.
type Scorer interface {
	Score(ctx context.Context, text string) ([]scoring.Match, error)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store     store.Store
	Providers []discovery.SearchProvider
	Seeder    discovery.Seeder
	Fetcher   DocumentFetcher
	Scorer    Scorer
}

// Config sizes the worker pools and queues.
type Config struct {
	FetchWorkers   int
	ScoreWorkers   int
	CandidateQueue int
	AnalyzeQueue   int
	EventBuffer    int
	// Exhaustive runs every provider for every query.
	Exhaustive bool
}

// DefaultConfig returns the default sizing.
func DefaultConfig() Config {
	return Config{
		FetchWorkers:   4,
		ScoreWorkers:   2,
		CandidateQueue: 64,
		AnalyzeQueue:   16,
		EventBuffer:    256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FetchWorkers <= 0 {
		c.FetchWorkers = d.FetchWorkers
	}
	if c.ScoreWorkers <= 0 {
		c.ScoreWorkers = d.ScoreWorkers
	}
	if c.CandidateQueue <= 0 {
		c.CandidateQueue = d.CandidateQueue
	}
	if c.AnalyzeQueue <= 0 {
		c.AnalyzeQueue = d.AnalyzeQueue
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}

// RunOptions select what one run does.
type RunOptions struct {
	Queries     []string
	SeedDomains []string
	// MaxDocuments caps network fetches in this run; 0 means no cap.
	MaxDocuments int
	// Rescore re-analyzes every stored document, not only unscored ones.
	Rescore bool
}

// Orchestrator owns at most one active run at a time.
type Orchestrator struct {
	deps    Deps
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	active *Run
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// New creates an Orchestrator. Store writes are serialized per URL.
func New(deps Deps, cfg Config, opts ...Option) *Orchestrator {
	deps.Store = store.Serialize(deps.Store)
	o := &Orchestrator{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.metrics.SetRunState(string(StateIdle))
	return o
}

// Start begins a run in the background. The returned Run's events must be
// consumed or they are dropped oldest first.
func (o *Orchestrator) Start(ctx context.Context, opts RunOptions) (*Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil && !o.active.State().Terminal() {
		return nil, ErrRunActive
	}

	r := newRun(ctx, o, opts)
	o.active = r
	go r.execute()
	return r, nil
}

// Active returns the current or most recent run, or nil.
func (o *Orchestrator) Active() *Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Reset clears the store. It fails with ErrRunActive during a run.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil && !o.active.State().Terminal() {
		return ErrRunActive
	}
	if err := o.deps.Store.Reset(ctx); err != nil {
		return err
	}
	o.logger.Info("store reset")
	return nil
}
