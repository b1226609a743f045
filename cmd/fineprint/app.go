package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/fineprint/internal/config"
	"github.com/jonathan/fineprint/internal/crawling"
	"github.com/jonathan/fineprint/internal/db"
	"github.com/jonathan/fineprint/internal/discovery"
	"github.com/jonathan/fineprint/internal/fetch"
	"github.com/jonathan/fineprint/internal/llm"
	"github.com/jonathan/fineprint/internal/nlp"
	"github.com/jonathan/fineprint/internal/observability"
	"github.com/jonathan/fineprint/internal/patterns"
	"github.com/jonathan/fineprint/internal/pipeline"
	"github.com/jonathan/fineprint/internal/scoring"
	"github.com/jonathan/fineprint/internal/search"
	"github.com/jonathan/fineprint/internal/store"
	"github.com/jonathan/fineprint/internal/store/sqlite"
)

// browserSettle is how long rendered pages get to run their scripts.
const browserSettle = 2 * time.Second

// loadConfig builds the effective configuration: file, then explicitly set
// flags, then environment secrets, then defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var file config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return config.Config{}, err
		}
		file = *loaded
	}

	flags := cmd.Flags()
	if flags.Changed("verbose") {
		file.Verbose = verbose
	}
	if flags.Changed("log-format") {
		file.LogFormat = logFormat
	}

	file.ApplyEnv(os.Getenv)
	cfg := file.MergeWithDefaults(config.Defaults())
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// app holds the components shared by the subcommands.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	store   store.Store

	closers []func() error
}

// newApp opens the configured store. Callers must Close the app.
func newApp(ctx context.Context, cmd *cobra.Command, cfg config.Config) (*app, error) {
	logger := observability.NewLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Verbose)
	slog.SetDefault(logger)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
	}

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		if err := db.Migrate(cfg.DatabaseURL, db.Up, 0); err != nil {
			return nil, err
		}
		logger.Debug("opening postgres store")
		return db.Connect(ctx, cfg.DatabaseURL)
	default:
		logger.Debug("opening sqlite store", "path", cfg.DatabasePath)
		return sqlite.Open(cfg.DatabasePath)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *app) userAgents() *fetch.UserAgentRotator {
	return fetch.NewUserAgentRotator(a.cfg.UserAgents)
}

// coordinator builds the two-tier fetch coordinator. With useLookup set,
// URLs already stored are answered from the store.
func (a *app) coordinator(useLookup bool) *fetch.Coordinator {
	delayMin, delayMax := a.cfg.DelayRange()
	ua := a.userAgents()

	opts := []fetch.Option{
		fetch.WithMetrics(a.metrics),
		fetch.WithLogger(a.logger),
	}
	if useLookup {
		opts = append(opts, fetch.WithLookup(a.store))
	}
	if a.cfg.UseBrowser {
		opts = append(opts, fetch.WithRendered(fetch.NewBrowserFetcher(ua, browserSettle, a.logger)))
	}

	return fetch.NewCoordinator(fetch.Config{
		Timeout:           a.cfg.FetchTimeout(),
		MaxRetries:        a.cfg.Retries(),
		RetryBackoff:      a.cfg.RetryBackoff(),
		DelayMin:          delayMin,
		DelayMax:          delayMax,
		MinContentLength:  a.cfg.MinContentLength,
		MinDocumentLength: fetch.MinDocumentLength,
	}, fetch.NewHTTPFetcher(&http.Client{}, ua), fetch.NewReadabilityExtractor(), opts...)
}

// engine builds the scoring engine with the configured patterns and NLP stage.
func (a *app) engine(ctx context.Context) (*scoring.Engine, error) {
	set := patterns.Default()
	if a.cfg.PatternsFile != "" {
		loaded, err := patterns.LoadFile(a.cfg.PatternsFile)
		if err != nil {
			return nil, err
		}
		set = loaded
	}

	opts := []scoring.Option{
		scoring.WithReportingFloor(a.cfg.ReportingFloor),
		scoring.WithContextWindow(a.cfg.ContextWindow),
		scoring.WithLogger(a.logger),
		scoring.WithNlpObserver(func(err error) {
			if err != nil {
				a.metrics.NlpFallback()
			}
		}),
	}

	if a.cfg.NlpEnabled {
		switch a.cfg.NlpProvider {
		case config.NlpGemini:
			client, err := llm.NewClient(ctx, llm.DefaultConfig(), a.cfg.GeminiAPIKey)
			if err != nil {
				return nil, fmt.Errorf("failed to create LLM client: %w", err)
			}
			a.closers = append(a.closers, client.Close)
			opts = append(opts, scoring.WithNlpScorer(nlp.NewLLMScorer(client)))
		default:
			opts = append(opts, scoring.WithNlpScorer(nlp.NewHeuristic()))
		}
	}

	return scoring.New(set, opts...), nil
}

// providers builds the search providers in configured priority order.
func (a *app) providers(ctx context.Context) ([]discovery.SearchProvider, error) {
	delayMin, _ := a.cfg.DelayRange()
	opts := search.Options{
		UserAgents: a.userAgents(),
		MaxResults: a.cfg.ResultsPerQuery,
		Timeout:    a.cfg.FetchTimeout(),
		PageDelay:  delayMin,
	}

	var out []discovery.SearchProvider
	for priority, name := range a.cfg.Providers {
		switch name {
		case search.DuckDuckGo:
			out = append(out, search.NewDuckDuckGo(priority, opts))
		case search.Bing:
			out = append(out, search.NewBing(priority, opts))
		case search.Google:
			g, err := search.NewGoogle(ctx, priority, a.cfg.GoogleAPIKey, a.cfg.GoogleCX, a.cfg.ResultsPerQuery)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		default:
			return nil, fmt.Errorf("unknown search provider %q", name)
		}
	}
	return out, nil
}

// orchestrator wires discovery, fetching and scoring into a pipeline.
func (a *app) orchestrator(ctx context.Context) (*pipeline.Orchestrator, error) {
	providers, err := a.providers(ctx)
	if err != nil {
		return nil, err
	}
	engine, err := a.engine(ctx)
	if err != nil {
		return nil, err
	}

	seeder := crawling.NewSeeder(fetch.NewHTTPFetcher(&http.Client{}, a.userAgents()), a.cfg.SeedLinkCrawl, a.cfg.FetchTimeout(), a.logger)

	return pipeline.New(pipeline.Deps{
		Store:     a.store,
		Providers: providers,
		Seeder:    seeder,
		Fetcher:   a.coordinator(true),
		Scorer:    engine,
	}, pipeline.Config{
		FetchWorkers:   a.cfg.FetchWorkers,
		ScoreWorkers:   a.cfg.ScoreWorkers,
		CandidateQueue: a.cfg.QueueSize,
		AnalyzeQueue:   a.cfg.AnalyzeQueue,
		Exhaustive:     a.cfg.ExhaustiveDiscovery,
	}, pipeline.WithLogger(a.logger), pipeline.WithMetrics(a.metrics)), nil
}

// runOptions returns the configured run defaults. Empty query and seed lists
// fall back to the built-in ones.
func (a *app) runOptions() pipeline.RunOptions {
	queries := a.cfg.Queries
	if len(queries) == 0 {
		queries = search.DefaultQueries
	}
	seeds := a.cfg.SeedDomains
	if len(seeds) == 0 {
		seeds = slices.Clone(crawling.DefaultSeedDomains)
	}
	return pipeline.RunOptions{
		Queries:      queries,
		SeedDomains:  seeds,
		MaxDocuments: a.cfg.MaxDocuments,
	}
}
