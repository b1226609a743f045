package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jonathan/fineprint/internal/observability"
	"github.com/jonathan/fineprint/internal/types"
)

// Config tunes the coordinator. A zero MinDocumentLength only rejects blank text.
type Config struct {
	Timeout           time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	DelayMin          time.Duration
	DelayMax          time.Duration
	MinContentLength  int
	MinDocumentLength int
}

// DefaultConfig returns sensible defaults for fetching.
func DefaultConfig() Config {
	return Config{
		Timeout:           DefaultTimeout,
		MaxRetries:        2,
		RetryBackoff:      time.Second,
		DelayMin:          2 * time.Second,
		DelayMax:          5 * time.Second,
		MinContentLength:  MinContentLength,
		MinDocumentLength: MinDocumentLength,
	}
}

// Fetched is the outcome of Coordinator.Fetch. Text is empty for cached
// and failed documents.
type Fetched struct {
	Document types.Document
	Text     string
	Cached   bool
}

// Coordinator resolves a URL to clean text with the static tier first and
// the rendered tier as a fallback.
type Coordinator struct {
	cfg       Config
	static    Fetcher
	rendered  Fetcher
	extractor TextExtractor
	lookup    Lookup
	metrics   *observability.Metrics
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRendered enables the browser tier.
func WithRendered(f Fetcher) Option { return func(c *Coordinator) { c.rendered = f } }

// WithLookup short-circuits URLs that already have a document.
func WithLookup(l Lookup) Option { return func(c *Coordinator) { c.lookup = l } }

// WithMetrics records fetch counters.
func WithMetrics(m *observability.Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSleep replaces the politeness wait, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) { c.sleep = fn }
}

// NewCoordinator creates a coordinator around the static fetcher and extractor.
func NewCoordinator(cfg Config, static Fetcher, extractor TextExtractor, opts ...Option) *Coordinator {
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = MinContentLength
	}
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = cfg.DelayMin
	}
	if extractor == nil {
		extractor = NewGoqueryExtractor()
	}
	c := &Coordinator{
		cfg:       cfg,
		static:    static,
		extractor: extractor,
		logger:    slog.Default(),
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch resolves url to text. On a fetch failure it returns both a Fetched
// holding the failed Document and the *Error. Context cancellation and
// lookup failures return a nil Fetched.
func (c *Coordinator) Fetch(ctx context.Context, url string) (*Fetched, error) {
	cached, err := lookupCached(ctx, c.lookup, url)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		c.logger.Debug("document already recorded", "url", url, "status", cached.Document.Status)
		return cached, nil
	}

	resp, err := c.fetchWithRetry(ctx, c.static, url)
	if err != nil {
		return c.failed(ctx, url, types.TierStatic, resp, err)
	}

	tier := types.TierStatic
	text := c.extract(resp.HTML, url)
	html := resp.HTML

	if c.rendered != nil && ShouldUseBrowser(text, resp.HTML, c.cfg.MinContentLength) {
		c.logger.Debug("falling back to browser rendering", "url", url, "chars", len(text))
		rendered, rerr := c.fetchWithRetry(ctx, c.rendered, url)
		switch {
		case rerr != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case rerr != nil:
			c.logger.Debug("browser rendering failed, using static content", "url", url, "error", rerr)
		default:
			if renderedText := c.extract(rendered.HTML, url); len(renderedText) > len(text) {
				text, html, tier = renderedText, rendered.HTML, types.TierRendered
			}
		}
	}

	doc := types.Document{
		URL:        url,
		FetchedAt:  c.now().UTC(),
		TierUsed:   tier,
		Status:     types.StatusOK,
		HTTPStatus: resp.StatusCode,
		Title:      ExtractTitle(html),
	}

	if msg := c.insufficient(text); msg != "" {
		doc.Status = types.StatusEmpty
		doc.Error = msg
		c.metrics.DocumentFetched(string(tier), string(doc.Status))
		return &Fetched{Document: doc}, &Error{
			Kind:       KindEmpty,
			URL:        url,
			StatusCode: resp.StatusCode,
			Permanent:  true,
			Message:    msg,
		}
	}

	doc.ContentHash = types.HashContent(text)
	c.metrics.DocumentFetched(string(tier), string(doc.Status))
	return &Fetched{Document: doc, Text: text}, nil
}

// insufficient describes why text is too short to keep, or returns "".
func (c *Coordinator) insufficient(text string) string {
	n := len(strings.TrimSpace(text))
	switch {
	case n == 0:
		return "no text extracted"
	case n < c.cfg.MinDocumentLength:
		return fmt.Sprintf("insufficient content: %d chars", n)
	}
	return ""
}

// extract runs the extractor; an ExtractionError yields empty text.
func (c *Coordinator) extract(rawHTML, url string) string {
	text, err := c.extractor.Extract(rawHTML, url)
	if err != nil {
		c.logger.Debug("text extraction failed", "url", url, "error", err)
		return ""
	}
	return text
}

// failed builds the terminal Document for a fetch error.
func (c *Coordinator) failed(ctx context.Context, url string, tier types.Tier, resp *Response, err error) (*Fetched, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var fe *Error
	if !errors.As(err, &fe) {
		fe = &Error{Kind: KindHTTPError, URL: url, Message: "fetch failed", Cause: err}
	}

	doc := types.Document{
		URL:        url,
		FetchedAt:  c.now().UTC(),
		TierUsed:   tier,
		Status:     types.StatusFetchFailed,
		HTTPStatus: fe.StatusCode,
		Error:      fe.Error(),
	}
	if fe.Kind == KindEmpty {
		doc.Status = types.StatusEmpty
	}
	if resp != nil && doc.HTTPStatus == 0 {
		doc.HTTPStatus = resp.StatusCode
	}

	c.metrics.DocumentFetched(string(tier), string(doc.Status))
	return &Fetched{Document: doc}, fe
}

// fetchWithRetry waits the politeness delay before every attempt and retries
// transient failures with exponential backoff.
func (c *Coordinator) fetchWithRetry(ctx context.Context, f Fetcher, url string) (*Response, error) {
	var resp *Response

	operation := func() error {
		if err := c.sleep(ctx, c.politenessDelay()); err != nil {
			return backoff.Permanent(err)
		}
		r, err := f.Fetch(ctx, url, c.cfg.Timeout)
		resp = r
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		c.metrics.FetchRetry(string(f.Tier()))
		c.logger.Debug("retrying fetch", "url", url, "tier", f.Tier(), "in", next, "error", err)
	}

	err := backoff.RetryNotify(operation, c.backOff(ctx), notify)
	return resp, err
}

func (c *Coordinator) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.cfg.RetryBackoff > 0 {
		b.InitialInterval = c.cfg.RetryBackoff
	}
	b.MaxElapsedTime = 0
	retries := c.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func (c *Coordinator) politenessDelay() time.Duration {
	span := c.cfg.DelayMax - c.cfg.DelayMin
	if span <= 0 {
		return c.cfg.DelayMin
	}
	return c.cfg.DelayMin + rand.N(span+1)
}

// sleepContext waits d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
