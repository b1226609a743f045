// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jonathan/fineprint/internal/store"
	"github.com/jonathan/fineprint/internal/types"
)

//go:embed schema.sql
var schema string

const timeLayout = time.RFC3339Nano

// Store is a SQLite-backed store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, store.Wrap("open", fmt.Errorf("failed to create database directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, store.Wrap("open", err)
	}
	// One writer keeps SQLITE_BUSY out of concurrent workers; WAL still serves reads.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, store.Wrap("open", fmt.Errorf("%s: %w", p, err))
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, store.Wrap("open", fmt.Errorf("failed to apply schema: %w", err))
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, store.Wrap("open", err)
	}

	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory store for tests and closes it on cleanup.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("sqlite.OpenMemory: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(timeLayout, v)
}

// HasQuery reports whether q was executed.
func (s *Store) HasQuery(ctx context.Context, q types.DiscoveryQuery) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queries WHERE text = ? AND provider = ?`,
		q.Text, q.Provider,
	).Scan(&n)
	if err != nil {
		return false, store.Wrap("has query", err)
	}
	return n > 0, nil
}

// RecordQuery marks q as executed.
func (s *Store) RecordQuery(ctx context.Context, q types.DiscoveryQuery, resultCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queries (text, provider, result_count, executed_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (text, provider) DO NOTHING`,
		q.Text, q.Provider, resultCount, formatTime(time.Now()),
	)
	return store.Wrap("record query", err)
}

// HasURL reports whether url is a known candidate or document.
func (s *Store) HasURL(ctx context.Context, url string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM candidates WHERE url = ?) +
		        (SELECT COUNT(*) FROM documents WHERE url = ?)`,
		url, url,
	).Scan(&n)
	if err != nil {
		return false, store.Wrap("has url", err)
	}
	return n > 0, nil
}

// RecordCandidate inserts c unless its URL is already a candidate or a document.
func (s *Store) RecordCandidate(ctx context.Context, c types.CandidateURL) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO candidates (url, query_text, query_provider, discovered_at)
		 SELECT ?, ?, ?, ?
		 WHERE NOT EXISTS (SELECT 1 FROM documents WHERE url = ?)
		 ON CONFLICT (url) DO NOTHING`,
		c.URL, c.SourceQuery.Text, c.SourceQuery.Provider, formatTime(c.DiscoveredAt), c.URL,
	)
	if err != nil {
		return false, store.Wrap("record candidate", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, store.Wrap("record candidate", err)
	}
	return n > 0, nil
}

// PendingCandidates returns candidates without a document, oldest first.
func (s *Store) PendingCandidates(ctx context.Context, limit int) ([]types.CandidateURL, error) {
	query := `SELECT c.url, c.query_text, c.query_provider, c.discovered_at
		FROM candidates c
		LEFT JOIN documents d ON d.url = c.url
		WHERE d.url IS NULL
		ORDER BY c.discovered_at, c.url`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Wrap("pending candidates", err)
	}
	defer rows.Close()

	var out []types.CandidateURL
	for rows.Next() {
		var c types.CandidateURL
		var discovered string
		if err := rows.Scan(&c.URL, &c.SourceQuery.Text, &c.SourceQuery.Provider, &discovered); err != nil {
			return nil, store.Wrap("pending candidates", err)
		}
		if c.DiscoveredAt, err = parseTime(discovered); err != nil {
			return nil, store.Wrap("pending candidates", err)
		}
		out = append(out, c)
	}
	return out, store.Wrap("pending candidates", rows.Err())
}

// GetDocument returns the document for url or nil.
func (s *Store) GetDocument(ctx context.Context, url string) (*types.Document, error) {
	var (
		doc       types.Document
		fetchedAt string
		tier      string
		status    string
		scoredAt  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT url, fetched_at, content_hash, tier_used, status, http_status, title, error, scored_at
		 FROM documents WHERE url = ?`,
		url,
	).Scan(&doc.URL, &fetchedAt, &doc.ContentHash, &tier, &status, &doc.HTTPStatus, &doc.Title, &doc.Error, &scoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("get document", err)
	}

	doc.TierUsed = types.Tier(tier)
	doc.Status = types.DocumentStatus(status)
	if doc.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return nil, store.Wrap("get document", err)
	}
	if scoredAt.Valid {
		ts, err := parseTime(scoredAt.String)
		if err != nil {
			return nil, store.Wrap("get document", err)
		}
		doc.ScoredAt = &ts
	}
	return &doc, nil
}

// RecordDocument upserts doc with its extracted text. A re-recorded document
// loses its scored marker.
func (s *Store) RecordDocument(ctx context.Context, doc types.Document, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (url, fetched_at, content_hash, tier_used, status, http_status, title, error, text, scored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		 ON CONFLICT (url) DO UPDATE SET
		     fetched_at = excluded.fetched_at,
		     content_hash = excluded.content_hash,
		     tier_used = excluded.tier_used,
		     status = excluded.status,
		     http_status = excluded.http_status,
		     title = excluded.title,
		     error = excluded.error,
		     text = excluded.text,
		     scored_at = NULL`,
		doc.URL, formatTime(doc.FetchedAt), doc.ContentHash, string(doc.TierUsed), string(doc.Status),
		doc.HTTPStatus, doc.Title, doc.Error, text,
	)
	return store.Wrap("record document", err)
}

// DocumentsForScoring returns ok documents and their text in fetch order.
func (s *Store) DocumentsForScoring(ctx context.Context, includeScored bool, limit int) ([]types.StoredText, error) {
	query := `SELECT url, text FROM documents WHERE status = ?`
	args := []any{string(types.StatusOK)}
	if !includeScored {
		query += ` AND scored_at IS NULL`
	}
	query += ` ORDER BY fetched_at, url`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Wrap("documents for scoring", err)
	}
	defer rows.Close()

	var out []types.StoredText
	for rows.Next() {
		var st types.StoredText
		if err := rows.Scan(&st.URL, &st.Text); err != nil {
			return nil, store.Wrap("documents for scoring", err)
		}
		out = append(out, st)
	}
	return out, store.Wrap("documents for scoring", rows.Err())
}

// MarkScored stamps the document as analyzed.
func (s *Store) MarkScored(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET scored_at = ? WHERE url = ?`,
		formatTime(time.Now()), url,
	)
	return store.Wrap("mark scored", err)
}

// SaveResult inserts r, ignoring a duplicate span of the same document.
func (s *Store) SaveResult(ctx context.Context, r types.Result) error {
	ids, err := json.Marshal(r.PatternIDs)
	if err != nil {
		return store.Wrap("save result", fmt.Errorf("failed to marshal pattern ids: %w", err))
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id, document_url, matched_text, context, confidence, tier_label, pattern_ids, span_start, span_end, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		r.ID, r.DocumentURL, r.MatchedText, r.Context, r.Confidence, string(r.TierLabel),
		string(ids), r.SpanStart, r.SpanEnd, formatTime(r.CreatedAt),
	)
	return store.Wrap("save result", err)
}

// Results returns results at or above minConfidence, highest first.
func (s *Store) Results(ctx context.Context, minConfidence float64) ([]types.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_url, matched_text, context, confidence, tier_label, pattern_ids, span_start, span_end, created_at
		 FROM results
		 WHERE confidence >= ?
		 ORDER BY confidence DESC, created_at, document_url, span_start`,
		minConfidence,
	)
	if err != nil {
		return nil, store.Wrap("results", err)
	}
	defer rows.Close()

	var out []types.Result
	for rows.Next() {
		var (
			r       types.Result
			label   string
			ids     string
			created string
		)
		if err := rows.Scan(&r.ID, &r.DocumentURL, &r.MatchedText, &r.Context, &r.Confidence,
			&label, &ids, &r.SpanStart, &r.SpanEnd, &created); err != nil {
			return nil, store.Wrap("results", err)
		}
		r.TierLabel = types.TierLabel(label)
		if err := json.Unmarshal([]byte(ids), &r.PatternIDs); err != nil {
			return nil, store.Wrap("results", fmt.Errorf("failed to decode pattern ids: %w", err))
		}
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, store.Wrap("results", err)
		}
		out = append(out, r)
	}
	return out, store.Wrap("results", rows.Err())
}

// Stats summarizes the store in one round trip.
func (s *Store) Stats(ctx context.Context) (types.Stats, error) {
	var st types.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
		     (SELECT COUNT(*) FROM documents),
		     (SELECT COUNT(*) FROM results),
		     (SELECT COUNT(*) FROM queries),
		     (SELECT COUNT(*) FROM documents WHERE status = ?),
		     (SELECT COUNT(*) FROM candidates c WHERE NOT EXISTS (SELECT 1 FROM documents d WHERE d.url = c.url))`,
		string(types.StatusFetchFailed),
	).Scan(&st.DocumentsScanned, &st.ResultsFound, &st.QueriesRun, &st.FetchFailures, &st.PendingCandidates)
	if err != nil {
		return types.Stats{}, store.Wrap("stats", err)
	}
	return st, nil
}

// Reset deletes every row in one transaction.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Wrap("reset", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"results", "documents", "candidates", "queries"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return store.Wrap("reset", fmt.Errorf("failed to clear %s: %w", table, err))
		}
	}
	return store.Wrap("reset", tx.Commit())
}
