// Package db provides PostgreSQL storage for discovery, fetch and scoring state.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/fineprint/internal/store"
	"github.com/jonathan/fineprint/internal/types"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*DB)(nil)

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, store.Wrap("connect", fmt.Errorf("failed to connect to database: %w", err))
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, store.Wrap("connect", fmt.Errorf("failed to ping database: %w", err))
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

// Reset truncates every table in one transaction
func (db *DB) Reset(ctx context.Context) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return store.Wrap("reset", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `TRUNCATE results, documents, candidates, queries`); err != nil {
		return store.Wrap("reset", fmt.Errorf("failed to truncate tables: %w", err))
	}
	return store.Wrap("reset", tx.Commit(ctx))
}

// Stats summarizes the store in one round trip
func (db *DB) Stats(ctx context.Context) (types.Stats, error) {
	var st types.Stats
	err := db.pool.QueryRow(ctx,
		`SELECT
		     (SELECT COUNT(*) FROM documents),
		     (SELECT COUNT(*) FROM results),
		     (SELECT COUNT(*) FROM queries),
		     (SELECT COUNT(*) FROM documents WHERE status = 'fetch_failed'),
		     (SELECT COUNT(*) FROM candidates c WHERE NOT EXISTS (SELECT 1 FROM documents d WHERE d.url = c.url))`,
	).Scan(&st.DocumentsScanned, &st.ResultsFound, &st.QueriesRun, &st.FetchFailures, &st.PendingCandidates)
	if err != nil {
		return types.Stats{}, store.Wrap("stats", err)
	}
	return st, nil
}
