package db

import (
	"context"
	"fmt"

	"github.com/jonathan/fineprint/internal/store"
	"github.com/jonathan/fineprint/internal/types"
)

// -----------------------------------------------------------------------------
// Query Methods
// -----------------------------------------------------------------------------

// HasQuery reports whether q was executed
func (db *DB) HasQuery(ctx context.Context, q types.DiscoveryQuery) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM queries WHERE text = $1 AND provider = $2)`,
		q.Text, q.Provider,
	).Scan(&exists)
	if err != nil {
		return false, store.Wrap("has query", err)
	}
	return exists, nil
}

// RecordQuery marks q as executed; the first recorded result count wins
func (db *DB) RecordQuery(ctx context.Context, q types.DiscoveryQuery, resultCount int) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO queries (text, provider, result_count)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (text, provider) DO NOTHING`,
		q.Text, q.Provider, resultCount,
	)
	return store.Wrap("record query", err)
}

// -----------------------------------------------------------------------------
// Candidate Methods
// -----------------------------------------------------------------------------

// HasURL reports whether url is a known candidate or document
func (db *DB) HasURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM candidates WHERE url = $1)
		     OR EXISTS (SELECT 1 FROM documents WHERE url = $1)`,
		url,
	).Scan(&exists)
	if err != nil {
		return false, store.Wrap("has url", err)
	}
	return exists, nil
}

// RecordCandidate inserts c unless its URL is already a candidate or a document
func (db *DB) RecordCandidate(ctx context.Context, c types.CandidateURL) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO candidates (url, query_text, query_provider, discovered_at)
		 SELECT $1::text, $2::text, $3::text, $4::timestamptz
		 WHERE NOT EXISTS (SELECT 1 FROM documents WHERE url = $1::text)
		 ON CONFLICT (url) DO NOTHING`,
		c.URL, c.SourceQuery.Text, c.SourceQuery.Provider, c.DiscoveredAt,
	)
	if err != nil {
		return false, store.Wrap("record candidate", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PendingCandidates returns candidates without a document, oldest first
func (db *DB) PendingCandidates(ctx context.Context, limit int) ([]types.CandidateURL, error) {
	query := `SELECT c.url, c.query_text, c.query_provider, c.discovered_at
		FROM candidates c
		LEFT JOIN documents d ON d.url = c.url
		WHERE d.url IS NULL
		ORDER BY c.discovered_at, c.url`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, store.Wrap("pending candidates", fmt.Errorf("failed to query candidates: %w", err))
	}
	defer rows.Close()

	var out []types.CandidateURL
	for rows.Next() {
		var c types.CandidateURL
		if err := rows.Scan(&c.URL, &c.SourceQuery.Text, &c.SourceQuery.Provider, &c.DiscoveredAt); err != nil {
			return nil, store.Wrap("pending candidates", fmt.Errorf("failed to scan candidate: %w", err))
		}
		out = append(out, c)
	}
	return out, store.Wrap("pending candidates", rows.Err())
}
