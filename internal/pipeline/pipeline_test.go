package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/fineprint/internal/discovery"
	"github.com/jonathan/fineprint/internal/fetch"
	"github.com/jonathan/fineprint/internal/scoring"
	"github.com/jonathan/fineprint/internal/store"
	"github.com/jonathan/fineprint/internal/store/sqlite"
	"github.com/jonathan/fineprint/internal/types"
)

const (
	prizeText  = "Terms of Service. If you've read this far, email us at prize@example.com to claim your reward."
	boringText = "Terms of Service. You agree to use the service lawfully and to keep your password secret."
)

type staticProvider struct {
	name string
	urls []string
	err  error
}

func (p *staticProvider) Name() string  { return p.name }
func (p *staticProvider) Priority() int { return 0 }

func (p *staticProvider) Search(context.Context, string) ([]string, error) {
	return p.urls, p.err
}

// fakeFetcher returns canned outcomes per URL.
type fakeFetcher struct {
	texts  map[string]string
	failed map[string]bool
	cached map[string]bool
	// block makes Fetch wait for ctx to end.
	block  bool
	before func(url string)

	started chan string
	calls   atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*fetch.Fetched, error) {
	f.calls.Add(1)
	if f.started != nil {
		select {
		case f.started <- url:
		default:
		}
	}
	if f.before != nil {
		f.before(url)
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	doc := types.Document{URL: url, FetchedAt: time.Now().UTC(), TierUsed: types.TierStatic, HTTPStatus: 200}
	switch {
	case f.cached[url]:
		doc.Status = types.StatusOK
		return &fetch.Fetched{Document: doc, Cached: true}, nil
	case f.failed[url]:
		doc.Status = types.StatusFetchFailed
		doc.HTTPStatus = 503
		return &fetch.Fetched{Document: doc}, &fetch.Error{Kind: fetch.KindHTTPError, URL: url, StatusCode: 503, Message: "HTTP status 503"}
	}
	text := f.texts[url]
	doc.Status = types.StatusOK
	doc.ContentHash = types.HashContent(text)
	return &fetch.Fetched{Document: doc, Text: text}, nil
}

// failingStore fails RecordDocument for one URL.
type failingStore struct {
	store.Store
	failURL string
}

func (s *failingStore) RecordDocument(ctx context.Context, doc types.Document, text string) error {
	if doc.URL == s.failURL {
		return store.Wrap("record document", errors.New("disk I/O error"))
	}
	return s.Store.RecordDocument(ctx, doc, text)
}

func newOrchestrator(s store.Store, providers []discovery.SearchProvider, f DocumentFetcher, cfg Config) *Orchestrator {
	return New(Deps{
		Store:     s,
		Providers: providers,
		Fetcher:   f,
		Scorer:    scoring.New(nil),
	}, cfg)
}

func drain(run *Run) []Event {
	var events []Event
	for e := range run.Events() {
		events = append(events, e)
	}
	return events
}

func waitStarted(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch never started")
	}
}

func TestRun_EndToEnd(t *testing.T) {
	s := sqlite.OpenMemory(t)
	provider := &staticProvider{name: "test", urls: []string{
		"https://prize.example/terms",
		"https://boring.example/terms",
		"https://down.example/terms",
	}}
	fetcher := &fakeFetcher{
		texts: map[string]string{
			"https://prize.example/terms":  prizeText,
			"https://boring.example/terms": boringText,
		},
		failed: map[string]bool{"https://down.example/terms": true},
	}

	o := newOrchestrator(s, []discovery.SearchProvider{provider}, fetcher, Config{})
	run, err := o.Start(context.Background(), RunOptions{Queries: []string{"terms"}})
	require.NoError(t, err)

	events := drain(run)
	summary := run.Wait()

	assert.Equal(t, StateCompleted, summary.State)
	assert.False(t, summary.Cancelled)
	assert.Empty(t, summary.Error)
	assert.Equal(t, 3, summary.DocumentsScanned)
	assert.Equal(t, 1, summary.FetchFailures)
	assert.Equal(t, 1, summary.ResultsFound)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventComplete, last.Type)
	require.NotNil(t, last.Summary)
	assert.Equal(t, summary, *last.Summary)

	var results []types.Result
	for _, e := range events {
		assert.Equal(t, run.ID, e.RunID)
		if e.Type == EventResult {
			results = append(results, *e.Result)
		}
	}
	require.Len(t, results, 1)
	assert.Equal(t, "https://prize.example/terms", results[0].DocumentURL)

	stored, err := s.Results(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	unscored, err := s.DocumentsForScoring(context.Background(), false, 0)
	require.NoError(t, err)
	assert.Empty(t, unscored)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.DocumentsScanned)
	assert.Equal(t, 0, stats.PendingCandidates)
}

func TestRun_SecondRunDoesNoWork(t *testing.T) {
	s := sqlite.OpenMemory(t)
	provider := &staticProvider{name: "test", urls: []string{"https://prize.example/terms"}}
	fetcher := &fakeFetcher{texts: map[string]string{"https://prize.example/terms": prizeText}}
	o := newOrchestrator(s, []discovery.SearchProvider{provider}, fetcher, Config{})

	run, err := o.Start(context.Background(), RunOptions{Queries: []string{"terms"}})
	require.NoError(t, err)
	drain(run)
	require.Equal(t, StateCompleted, run.Wait().State)

	run, err = o.Start(context.Background(), RunOptions{Queries: []string{"terms"}})
	require.NoError(t, err)
	drain(run)
	summary := run.Wait()

	assert.Equal(t, StateCompleted, summary.State)
	assert.Zero(t, summary.DocumentsScanned)
	assert.Zero(t, summary.ResultsFound)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestRun_CachedDocumentNotCounted(t *testing.T) {
	s := sqlite.OpenMemory(t)
	provider := &staticProvider{name: "test", urls: []string{"https://cached.example/terms"}}
	fetcher := &fakeFetcher{cached: map[string]bool{"https://cached.example/terms": true}}

	o := newOrchestrator(s, []discovery.SearchProvider{provider}, fetcher, Config{})
	run, err := o.Start(context.Background(), RunOptions{Queries: []string{"terms"}})
	require.NoError(t, err)
	drain(run)
	summary := run.Wait()

	assert.Equal(t, StateCompleted, summary.State)
	assert.Zero(t, summary.DocumentsScanned)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestRun_StorageErrorFails(t *testing.T) {
	base := sqlite.OpenMemory(t)
	s := &failingStore{Store: base, failURL: "https://broken.example/terms"}
	provider := &staticProvider{name: "test", urls: []string{
		"https://prize.example/terms",
		"https://broken.example/terms",
		"https://never.example/terms",
	}}

	fetcher := &fakeFetcher{texts: map[string]string{
		"https://prize.example/terms":  prizeText,
		"https://broken.example/terms": boringText,
		"https://never.example/terms":  boringText,
	}}
	// Hold the failing fetch until the first document's result is stored.
	fetcher.before = func(url string) {
		if url != "https://broken.example/terms" {
			return
		}
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			results, err := base.Results(context.Background(), 0)
			if err == nil && len(results) > 0 {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	o := newOrchestrator(s, []discovery.SearchProvider{provider}, fetcher, Config{FetchWorkers: 1})
	run, err := o.Start(context.Background(), RunOptions{Queries: []string{"terms"}})
	require.NoError(t, err)
	drain(run)
	summary := run.Wait()

	assert.Equal(t, StateFailed, summary.State)
	assert.False(t, summary.Cancelled)
	assert.Contains(t, summary.Error, "disk I/O error")
	assert.Equal(t, int32(2), fetcher.calls.Load(), "no fetches after the storage error")

	results, err := base.Results(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRun_Cancel(t *testing.T) {
	s := sqlite.OpenMemory(t)
	provider := &staticProvider{name: "test", urls: []string{"https://slow.example/terms"}}
	fetcher := &fakeFetcher{block: true, started: make(chan string, 1)}

	o := newOrchestrator(s, []discovery.SearchProvider{provider}, fetcher, Config{})
	run, err := o.Start(context.Background(), RunOptions{Queries: []string{"terms"}})
	require.NoError(t, err)

	waitStarted(t, fetcher.started)
	run.Cancel()
	events := drain(run)
	summary := run.Wait()

	assert.Equal(t, StateCancelled, summary.State)
	assert.True(t, summary.Cancelled)
	assert.Empty(t, summary.Error)
	assert.Equal(t, EventComplete, events[len(events)-1].Type)

	pending, err := s.PendingCandidates(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "an interrupted fetch leaves the candidate pending")
}

func TestOrchestrator_RejectsConcurrentRunAndReset(t *testing.T) {
	s := sqlite.OpenMemory(t)
	provider := &staticProvider{name: "test", urls: []string{"https://slow.example/terms"}}
	fetcher := &fakeFetcher{block: true, started: make(chan string, 1)}

	o := newOrchestrator(s, []discovery.SearchProvider{provider}, fetcher, Config{})
	run, err := o.Start(context.Background(), RunOptions{Queries: []string{"terms"}})
	require.NoError(t, err)
	waitStarted(t, fetcher.started)

	_, err = o.Start(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrRunActive)
	assert.ErrorIs(t, o.Reset(context.Background()), ErrRunActive)
	assert.Same(t, run, o.Active())

	run.Cancel()
	drain(run)
	run.Wait()

	require.NoError(t, o.Reset(context.Background()))
	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.Stats{}, stats)
}

func TestRun_ResumesPendingAndUnscored(t *testing.T) {
	s := sqlite.OpenMemory(t)
	ctx := context.Background()

	inserted, err := s.RecordCandidate(ctx, types.CandidateURL{
		URL:          "https://pending.example/terms",
		SourceQuery:  types.DiscoveryQuery{Text: "terms", Provider: "test"},
		DiscoveredAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, s.RecordDocument(ctx, types.Document{
		URL:       "https://unscored.example/terms",
		FetchedAt: time.Now().UTC(),
		TierUsed:  types.TierStatic,
		Status:    types.StatusOK,
	}, prizeText))

	fetcher := &fakeFetcher{texts: map[string]string{"https://pending.example/terms": boringText}}
	o := newOrchestrator(s, nil, fetcher, Config{})

	run, err := o.Start(ctx, RunOptions{})
	require.NoError(t, err)
	drain(run)
	summary := run.Wait()

	assert.Equal(t, StateCompleted, summary.State)
	assert.Equal(t, 1, summary.DocumentsScanned)
	assert.Equal(t, 1, summary.ResultsFound)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	results, err := s.Results(ctx, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://unscored.example/terms", results[0].DocumentURL)
}

func TestRun_ProgressPerAnalyzedDocument(t *testing.T) {
	s := sqlite.OpenMemory(t)
	ctx := context.Background()

	urls := []string{"https://a.example/terms", "https://b.example/terms", "https://c.example/terms"}
	for _, u := range urls {
		require.NoError(t, s.RecordDocument(ctx, types.Document{
			URL:       u,
			FetchedAt: time.Now().UTC(),
			TierUsed:  types.TierStatic,
			Status:    types.StatusOK,
		}, boringText))
	}

	o := newOrchestrator(s, nil, &fakeFetcher{}, Config{ScoreWorkers: 1})
	run, err := o.Start(ctx, RunOptions{})
	require.NoError(t, err)
	events := drain(run)
	summary := run.Wait()

	assert.Equal(t, StateCompleted, summary.State)
	assert.Zero(t, summary.ResultsFound)
	assert.Equal(t, 3, summary.DocumentsAnalyzed)

	var analyzed []int
	for _, e := range events {
		if e.Type != EventProgress {
			continue
		}
		if n := e.Progress.DocumentsAnalyzed; len(analyzed) == 0 || n != analyzed[len(analyzed)-1] {
			analyzed = append(analyzed, n)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3}, analyzed)

	unscored, err := s.DocumentsForScoring(ctx, false, 0)
	require.NoError(t, err)
	assert.Empty(t, unscored)
}

func TestRun_RescoreDoesNotDuplicateResults(t *testing.T) {
	s := sqlite.OpenMemory(t)
	ctx := context.Background()
	provider := &staticProvider{name: "test", urls: []string{"https://prize.example/terms"}}
	fetcher := &fakeFetcher{texts: map[string]string{"https://prize.example/terms": prizeText}}
	o := newOrchestrator(s, []discovery.SearchProvider{provider}, fetcher, Config{})

	run, err := o.Start(ctx, RunOptions{Queries: []string{"terms"}})
	require.NoError(t, err)
	drain(run)
	run.Wait()

	run, err = o.Start(ctx, RunOptions{Rescore: true})
	require.NoError(t, err)
	drain(run)
	summary := run.Wait()

	assert.Equal(t, StateCompleted, summary.State)
	assert.Equal(t, 1, summary.ResultsFound)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	results, err := s.Results(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRun_MaxDocuments(t *testing.T) {
	s := sqlite.OpenMemory(t)
	provider := &staticProvider{name: "test", urls: []string{
		"https://a.example/terms",
		"https://b.example/terms",
		"https://c.example/terms",
	}}
	fetcher := &fakeFetcher{texts: map[string]string{}}

	o := newOrchestrator(s, []discovery.SearchProvider{provider}, fetcher, Config{FetchWorkers: 1})
	run, err := o.Start(context.Background(), RunOptions{Queries: []string{"terms"}, MaxDocuments: 1})
	require.NoError(t, err)
	drain(run)
	summary := run.Wait()

	assert.Equal(t, StateCompleted, summary.State)
	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Equal(t, 1, summary.DocumentsScanned)

	// Candidates beyond the cap stay pending for the next run.
	pending, err := s.PendingCandidates(context.Background(), 0)
	require.NoError(t, err)
	assert.NotEmpty(t, pending)
	for _, c := range pending {
		assert.NotEqual(t, "https://a.example/terms", c.URL)
	}
}

func TestRun_ProviderErrorEvent(t *testing.T) {
	s := sqlite.OpenMemory(t)
	provider := &staticProvider{name: "broken", err: errors.New("HTTP status 429")}

	o := newOrchestrator(s, []discovery.SearchProvider{provider}, &fakeFetcher{}, Config{})
	run, err := o.Start(context.Background(), RunOptions{Queries: []string{"terms"}})
	require.NoError(t, err)
	events := drain(run)

	assert.Equal(t, StateCompleted, run.Wait().State)

	var failures []ProviderFailure
	for _, e := range events {
		if e.Type == EventProviderError {
			failures = append(failures, *e.ProviderError)
		}
	}
	require.Len(t, failures, 1)
	assert.Equal(t, ProviderFailure{Provider: "broken", Query: "terms", Message: "HTTP status 429"}, failures[0])
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	s := sqlite.OpenMemory(t)
	urls := []string{"https://a.example/t", "https://b.example/t", "https://c.example/t", "https://d.example/t"}
	texts := map[string]string{}
	for _, u := range urls {
		texts[u] = prizeText
	}

	o := newOrchestrator(s, []discovery.SearchProvider{&staticProvider{name: "test", urls: urls}}, &fakeFetcher{texts: texts}, Config{})
	run, err := o.Start(context.Background(), RunOptions{Queries: []string{"terms"}})
	require.NoError(t, err)

	scanned, results := 0, 0
	for e := range run.Events() {
		if e.Type != EventProgress {
			continue
		}
		assert.GreaterOrEqual(t, e.Progress.DocumentsScanned, scanned)
		assert.GreaterOrEqual(t, e.Progress.ResultsFound, results)
		scanned, results = e.Progress.DocumentsScanned, e.Progress.ResultsFound
	}
	assert.Equal(t, 4, run.Wait().ResultsFound)
}

func TestPublish_DropsOldest(t *testing.T) {
	o := New(Deps{Store: sqlite.OpenMemory(t)}, Config{EventBuffer: 2})
	r := newRun(context.Background(), o, RunOptions{})

	for i := 1; i <= 5; i++ {
		r.publish(Event{Type: EventProgress, Progress: &types.SearchProgress{DocumentsScanned: i}})
	}
	summary := r.finish(func(dropped int) Summary {
		return Summary{State: StateCompleted, DroppedEvents: dropped}
	})

	events := drain(r)
	require.Len(t, events, 2)
	assert.Equal(t, 5, events[0].Progress.DocumentsScanned)
	assert.Equal(t, EventComplete, events[1].Type)
	assert.Equal(t, 4, summary.DroppedEvents)

	// Publishing after the stream closed is a no-op.
	r.publish(Event{Type: EventProgress})
}

func TestPublish_Concurrent(t *testing.T) {
	o := New(Deps{Store: sqlite.OpenMemory(t)}, Config{EventBuffer: 8})
	r := newRun(context.Background(), o, RunOptions{})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				r.publish(Event{Type: EventProgress})
			}
		}()
	}
	wg.Wait()

	summary := r.finish(func(dropped int) Summary { return Summary{DroppedEvents: dropped} })
	events := drain(r)
	assert.Len(t, events, 8)
	assert.Equal(t, 1000+1-8, summary.DroppedEvents)
}

func TestState_Transitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateDiscovering, true},
		{StateDiscovering, StateFetching, true},
		{StateFetching, StateAnalyzing, true},
		{StateAnalyzing, StateCompleted, true},
		{StateFetching, StateCancelling, true},
		{StateCancelling, StateCancelled, true},
		{StateAnalyzing, StateFailed, true},
		{StateDiscovering, StateCompleted, false},
		{StateCompleted, StateCancelling, false},
		{StateCancelled, StateDiscovering, false},
		{StateFailed, StateCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}

	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateCancelling.Terminal())
	assert.Equal(t, types.PhaseFetch, StateFetching.Phase())
	assert.Equal(t, types.PhaseCancelled, StateCancelling.Phase())
}
