// Package discovery turns search queries and seed domains into deduplicated
// candidate URLs.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/jonathan/fineprint/internal/crawling"
	"github.com/jonathan/fineprint/internal/observability"
	"github.com/jonathan/fineprint/internal/store"
	"github.com/jonathan/fineprint/internal/types"
)

// SearchProvider runs one query against one search backend.
type SearchProvider interface {
	Name() string
	// Priority orders providers; lower runs first.
	Priority() int
	Search(ctx context.Context, query string) ([]string, error)
}

// Seeder expands a domain into candidate TOS URLs.
type Seeder interface {
	Expand(ctx context.Context, domain string) ([]string, error)
}

// ProviderError reports a failed provider call. It never ends discovery.
type ProviderError struct {
	Provider string
	Query    string
	Cause    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed for query %q: %v", e.Provider, e.Query, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Options configure a Coordinator.
type Options struct {
	// Exhaustive runs every provider for every query instead of stopping at
	// the first one that produced results.
	Exhaustive bool
	// OnProviderError is called for each failed provider call or seed expansion.
	OnProviderError func(*ProviderError)
	Logger          *slog.Logger
	Metrics         *observability.Metrics
	// Now is the clock used for DiscoveredAt.
	Now func() time.Time
}

// Coordinator runs discovery against a store.
type Coordinator struct {
	store     store.Store
	providers []SearchProvider
	seeder    Seeder
	opts      Options
}

// New creates a Coordinator. Providers are ordered by Priority, ties keep
// their given order. seeder may be nil when no seed domains are used.
func New(s store.Store, providers []SearchProvider, seeder Seeder, opts Options) *Coordinator {
	sorted := slices.Clone(providers)
	slices.SortStableFunc(sorted, func(a, b SearchProvider) int {
		return a.Priority() - b.Priority()
	})
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{store: s, providers: sorted, seeder: seeder, opts: opts}
}

// Discover yields every newly recorded candidate. A storage error is yielded
// once as the error value and ends the sequence. Cancellation ends the
// sequence silently.
func (c *Coordinator) Discover(ctx context.Context, queries []string, seedDomains []string) iter.Seq2[types.CandidateURL, error] {
	return func(yield func(types.CandidateURL, error) bool) {
		for _, text := range queries {
			if ctx.Err() != nil {
				return
			}
			if !c.runQuery(ctx, text, yield) {
				return
			}
		}

		for _, domain := range seedDomains {
			if ctx.Err() != nil {
				return
			}
			if !c.runSeed(ctx, domain, yield) {
				return
			}
		}
	}
}

// runQuery walks the provider chain for one query. It returns false when
// the sequence must stop.
func (c *Coordinator) runQuery(ctx context.Context, text string, yield func(types.CandidateURL, error) bool) bool {
	for _, p := range c.providers {
		q := types.DiscoveryQuery{Text: text, Provider: p.Name()}

		done, err := c.store.HasQuery(ctx, q)
		if err != nil {
			return c.fail(ctx, err, yield)
		}
		if done {
			c.opts.Logger.Debug("query already run", "query", text, "provider", q.Provider)
			if c.opts.Exhaustive {
				continue
			}
			return true
		}

		urls, err := p.Search(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			c.providerError(q, err)
			continue
		}

		count, ok := c.recordURLs(ctx, q, urls, yield)
		if !ok {
			return false
		}
		if err := c.store.RecordQuery(context.WithoutCancel(ctx), q, len(urls)); err != nil {
			return c.fail(ctx, err, yield)
		}
		c.opts.Metrics.QueryRun(q.Provider)
		c.opts.Logger.Info("query complete", "query", text, "provider", q.Provider, "results", len(urls), "new", count)

		if len(urls) > 0 && !c.opts.Exhaustive {
			return true
		}
	}
	return true
}

// runSeed expands one seed domain as a query for the crawl pseudo-provider.
func (c *Coordinator) runSeed(ctx context.Context, domain string, yield func(types.CandidateURL, error) bool) bool {
	if c.seeder == nil {
		return true
	}
	q := types.DiscoveryQuery{Text: domain, Provider: types.CrawlProvider}

	done, err := c.store.HasQuery(ctx, q)
	if err != nil {
		return c.fail(ctx, err, yield)
	}
	if done {
		return true
	}

	urls, err := c.seeder.Expand(ctx, domain)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		c.providerError(q, err)
		return true
	}

	count, ok := c.recordURLs(ctx, q, urls, yield)
	if !ok {
		return false
	}
	if err := c.store.RecordQuery(context.WithoutCancel(ctx), q, len(urls)); err != nil {
		return c.fail(ctx, err, yield)
	}
	c.opts.Metrics.QueryRun(q.Provider)
	c.opts.Logger.Info("seed expanded", "domain", domain, "candidates", len(urls), "new", count)
	return true
}

// recordURLs normalizes, dedups and records urls, yielding each new candidate.
// It returns the number of new candidates and whether to continue.
func (c *Coordinator) recordURLs(ctx context.Context, q types.DiscoveryQuery, urls []string, yield func(types.CandidateURL, error) bool) (int, bool) {
	count := 0
	for _, raw := range urls {
		if ctx.Err() != nil {
			return count, false
		}
		normalized, err := crawling.NormalizeURL(raw)
		if err != nil {
			c.opts.Logger.Debug("skipping invalid url", "url", raw, "error", err)
			continue
		}

		known, err := c.store.HasURL(ctx, normalized)
		if err != nil {
			return count, c.fail(ctx, err, yield)
		}
		if known {
			continue
		}

		candidate := types.CandidateURL{URL: normalized, SourceQuery: q, DiscoveredAt: c.opts.Now().UTC()}
		inserted, err := c.store.RecordCandidate(context.WithoutCancel(ctx), candidate)
		if err != nil {
			return count, c.fail(ctx, err, yield)
		}
		if !inserted {
			continue
		}
		count++
		if !yield(candidate, nil) {
			return count, false
		}
	}
	return count, true
}

func (c *Coordinator) providerError(q types.DiscoveryQuery, err error) {
	pe := &ProviderError{Provider: q.Provider, Query: q.Text, Cause: err}
	c.opts.Logger.Warn("provider failed", "provider", q.Provider, "query", q.Text, "error", err)
	c.opts.Metrics.ProviderError(q.Provider)
	if c.opts.OnProviderError != nil {
		c.opts.OnProviderError(pe)
	}
}

// fail yields a storage error unless the failure came from cancellation.
// It always returns false.
func (c *Coordinator) fail(ctx context.Context, err error, yield func(types.CandidateURL, error) bool) bool {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return false
	}
	yield(types.CandidateURL{}, store.Wrap("discovery", err))
	return false
}
