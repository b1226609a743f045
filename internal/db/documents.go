package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/fineprint/internal/store"
	"github.com/jonathan/fineprint/internal/types"
)

// -----------------------------------------------------------------------------
// Document Methods
// -----------------------------------------------------------------------------

// GetDocument returns the document for url, or nil if none was recorded
func (db *DB) GetDocument(ctx context.Context, url string) (*types.Document, error) {
	var (
		doc    types.Document
		tier   string
		status string
	)
	err := db.pool.QueryRow(ctx,
		`SELECT url, fetched_at, content_hash, tier_used, status, http_status, title, error, scored_at
		 FROM documents WHERE url = $1`,
		url,
	).Scan(&doc.URL, &doc.FetchedAt, &doc.ContentHash, &tier, &status,
		&doc.HTTPStatus, &doc.Title, &doc.Error, &doc.ScoredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("get document", fmt.Errorf("failed to get document: %w", err))
	}

	doc.TierUsed = types.Tier(tier)
	doc.Status = types.DocumentStatus(status)
	return &doc, nil
}

// RecordDocument upserts doc with its extracted text and clears the scored marker
func (db *DB) RecordDocument(ctx context.Context, doc types.Document, text string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO documents (url, fetched_at, content_hash, tier_used, status, http_status, title, error, text, scored_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)
		 ON CONFLICT (url) DO UPDATE SET
		     fetched_at = EXCLUDED.fetched_at,
		     content_hash = EXCLUDED.content_hash,
		     tier_used = EXCLUDED.tier_used,
		     status = EXCLUDED.status,
		     http_status = EXCLUDED.http_status,
		     title = EXCLUDED.title,
		     error = EXCLUDED.error,
		     text = EXCLUDED.text,
		     scored_at = NULL`,
		doc.URL, doc.FetchedAt, doc.ContentHash, string(doc.TierUsed), string(doc.Status),
		doc.HTTPStatus, doc.Title, doc.Error, text,
	)
	return store.Wrap("record document", err)
}

// DocumentsForScoring returns ok documents and their text in fetch order
func (db *DB) DocumentsForScoring(ctx context.Context, includeScored bool, limit int) ([]types.StoredText, error) {
	query := `SELECT url, text FROM documents WHERE status = 'ok'`
	if !includeScored {
		query += ` AND scored_at IS NULL`
	}
	query += ` ORDER BY fetched_at, url`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := db.pool.Query(ctx, query, args...)
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

// MarkScored stamps the document as analyzed
func (db *DB) MarkScored(ctx context.Context, url string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE documents SET scored_at = $1 WHERE url = $2`,
		time.Now().UTC(), url,
	)
	return store.Wrap("mark scored", err)
}
