// Package storetest provides a conformance suite run against every store.Store implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/fineprint/internal/store"
	"github.com/jonathan/fineprint/internal/types"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Queries", testQueries},
		{"Candidates", testCandidates},
		{"ConcurrentCandidates", testConcurrentCandidates},
		{"Documents", testDocuments},
		{"DocumentWithoutCandidate", testDocumentWithoutCandidate},
		{"Scoring", testScoring},
		{"Results", testResults},
		{"Stats", testStats},
		{"Reset", testReset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer func() { _ = s.Close() }()
			tt.fn(t, s)
		})
	}
}

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func candidate(url string, offset time.Duration) types.CandidateURL {
	return types.CandidateURL{
		URL:          url,
		SourceQuery:  types.DiscoveryQuery{Text: "terms of service hidden prize", Provider: "duckduckgo"},
		DiscoveredAt: now.Add(offset),
	}
}

func okDocument(url string) types.Document {
	return types.Document{
		URL:         url,
		FetchedAt:   now,
		ContentHash: types.HashContent("text of " + url),
		TierUsed:    types.TierStatic,
		Status:      types.StatusOK,
		HTTPStatus:  200,
		Title:       "Terms",
	}
}

func testQueries(t *testing.T, s store.Store) {
	ctx := context.Background()
	q := types.DiscoveryQuery{Text: "terms of service", Provider: "bing"}

	has, err := s.HasQuery(ctx, q)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.RecordQuery(ctx, q, 12))
	require.NoError(t, s.RecordQuery(ctx, q, 3), "recording twice is a no-op")

	has, err = s.HasQuery(ctx, q)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasQuery(ctx, types.DiscoveryQuery{Text: "terms of service", Provider: "duckduckgo"})
	require.NoError(t, err)
	assert.False(t, has, "identity includes the provider")
}

func testCandidates(t *testing.T, s store.Store) {
	ctx := context.Background()

	inserted, err := s.RecordCandidate(ctx, candidate("https://b.example.com/terms", time.Minute))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.RecordCandidate(ctx, candidate("https://a.example.com/terms", 0))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.RecordCandidate(ctx, candidate("https://a.example.com/terms", 2*time.Minute))
	require.NoError(t, err)
	assert.False(t, inserted)

	has, err := s.HasURL(ctx, "https://a.example.com/terms")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasURL(ctx, "https://c.example.com/terms")
	require.NoError(t, err)
	assert.False(t, has)

	pending, err := s.PendingCandidates(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "https://a.example.com/terms", pending[0].URL)
	assert.Equal(t, "duckduckgo", pending[0].SourceQuery.Provider)
	assert.True(t, pending[0].DiscoveredAt.Equal(now))

	limited, err := s.PendingCandidates(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, s.RecordDocument(ctx, okDocument("https://a.example.com/terms"), "text"))

	pending, err = s.PendingCandidates(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "https://b.example.com/terms", pending[0].URL)
}

func testConcurrentCandidates(t *testing.T, s store.Store) {
	ctx := context.Background()
	var inserted atomic.Int32
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.RecordCandidate(ctx, candidate("https://race.example.com/tos", 0))
			assert.NoError(t, err)
			if ok {
				inserted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inserted.Load())
}

func testDocuments(t *testing.T, s store.Store) {
	ctx := context.Background()
	url := "https://example.com/terms"

	doc, err := s.GetDocument(ctx, url)
	require.NoError(t, err)
	assert.Nil(t, doc)

	_, err = s.RecordCandidate(ctx, candidate(url, 0))
	require.NoError(t, err)
	require.NoError(t, s.RecordDocument(ctx, okDocument(url), "If you've read this far..."))

	doc, err = s.GetDocument(ctx, url)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, types.StatusOK, doc.Status)
	assert.Equal(t, types.TierStatic, doc.TierUsed)
	assert.Equal(t, 200, doc.HTTPStatus)
	assert.Equal(t, "Terms", doc.Title)
	assert.Equal(t, types.HashContent("text of "+url), doc.ContentHash)
	assert.True(t, doc.FetchedAt.Equal(now))
	assert.Nil(t, doc.ScoredAt)

	failed := types.Document{
		URL:        "https://example.com/gone",
		FetchedAt:  now,
		Status:     types.StatusFetchFailed,
		HTTPStatus: 404,
		Error:      "HTTP status 404",
	}
	require.NoError(t, s.RecordDocument(ctx, failed, ""))

	doc, err = s.GetDocument(ctx, failed.URL)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, types.StatusFetchFailed, doc.Status)
	assert.Equal(t, "HTTP status 404", doc.Error)
}

func testDocumentWithoutCandidate(t *testing.T, s store.Store) {
	ctx := context.Background()
	url := "https://direct.example.com/eula"

	require.NoError(t, s.RecordDocument(ctx, okDocument(url), "text"))

	has, err := s.HasURL(ctx, url)
	require.NoError(t, err)
	assert.True(t, has)
}

func testScoring(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.RecordDocument(ctx, okDocument("https://one.example.com/terms"), "first text"))
	require.NoError(t, s.RecordDocument(ctx, okDocument("https://two.example.com/terms"), "second text"))
	require.NoError(t, s.RecordDocument(ctx, types.Document{
		URL: "https://three.example.com/terms", FetchedAt: now, Status: types.StatusEmpty,
	}, ""))

	docs, err := s.DocumentsForScoring(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byURL := map[string]string{}
	for _, d := range docs {
		byURL[d.URL] = d.Text
	}
	assert.Equal(t, "first text", byURL["https://one.example.com/terms"])

	require.NoError(t, s.MarkScored(ctx, "https://one.example.com/terms"))

	docs, err = s.DocumentsForScoring(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "https://two.example.com/terms", docs[0].URL)

	docs, err = s.DocumentsForScoring(ctx, true, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	doc, err := s.GetDocument(ctx, "https://one.example.com/terms")
	require.NoError(t, err)
	require.NotNil(t, doc.ScoredAt)
}

func result(url string, start int, confidence float64) types.Result {
	return types.Result{
		ID:          fmt.Sprintf("%s#%d", url, start),
		DocumentURL: url,
		MatchedText: "hidden prize",
		Context:     "there is a hidden prize here",
		Confidence:  confidence,
		TierLabel:   types.LabelFor(confidence),
		PatternIDs:  []string{"hidden_reward", "reward_mention"},
		SpanStart:   start,
		SpanEnd:     start + 12,
		CreatedAt:   now,
	}
}

func testResults(t *testing.T, s store.Store) {
	ctx := context.Background()
	url := "https://example.com/terms"
	require.NoError(t, s.RecordDocument(ctx, okDocument(url), "text"))

	require.NoError(t, s.SaveResult(ctx, result(url, 10, 0.45)))
	require.NoError(t, s.SaveResult(ctx, result(url, 500, 0.9)))
	require.NoError(t, s.SaveResult(ctx, result(url, 900, 0.15)))

	dup := result(url, 10, 0.45)
	dup.ID = "another-id"
	require.NoError(t, s.SaveResult(ctx, dup), "same span is a no-op")

	all, err := s.Results(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 0.9, all[0].Confidence)
	assert.Equal(t, types.LabelHigh, all[0].TierLabel)
	assert.Equal(t, []string{"hidden_reward", "reward_mention"}, all[0].PatternIDs)
	assert.Equal(t, 500, all[0].SpanStart)
	assert.Equal(t, 512, all[0].SpanEnd)

	filtered, err := s.Results(ctx, 0.4)
	require.NoError(t, err)
	assert.Len(t, filtered, 2)
}

func testStats(t *testing.T, s store.Store) {
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Stats{}, stats)

	require.NoError(t, s.RecordQuery(ctx, types.DiscoveryQuery{Text: "q", Provider: "bing"}, 1))
	_, err = s.RecordCandidate(ctx, candidate("https://pending.example.com/tos", 0))
	require.NoError(t, err)
	require.NoError(t, s.RecordDocument(ctx, okDocument("https://ok.example.com/tos"), "t"))
	require.NoError(t, s.RecordDocument(ctx, types.Document{
		URL: "https://bad.example.com/tos", FetchedAt: now, Status: types.StatusFetchFailed,
	}, ""))
	require.NoError(t, s.SaveResult(ctx, result("https://ok.example.com/tos", 0, 0.8)))

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Stats{
		DocumentsScanned:  2,
		ResultsFound:      1,
		QueriesRun:        1,
		FetchFailures:     1,
		PendingCandidates: 1,
	}, stats)
}

func testReset(t *testing.T, s store.Store) {
	ctx := context.Background()
	q := types.DiscoveryQuery{Text: "q", Provider: "bing"}
	url := "https://example.com/terms"

	require.NoError(t, s.RecordQuery(ctx, q, 1))
	_, err := s.RecordCandidate(ctx, candidate(url, 0))
	require.NoError(t, err)
	require.NoError(t, s.RecordDocument(ctx, okDocument(url), "t"))
	require.NoError(t, s.SaveResult(ctx, result(url, 0, 0.8)))

	require.NoError(t, s.Reset(ctx))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Stats{}, stats)

	has, err := s.HasQuery(ctx, q)
	require.NoError(t, err)
	assert.False(t, has)

	has, err = s.HasURL(ctx, url)
	require.NoError(t, err)
	assert.False(t, has)

	inserted, err := s.RecordCandidate(ctx, candidate(url, 0))
	require.NoError(t, err)
	assert.True(t, inserted, "a reset store accepts previously seen URLs")
}
