package db

import (
	"context"

	"github.com/jonathan/fineprint/internal/store"
	"github.com/jonathan/fineprint/internal/types"
)

// -----------------------------------------------------------------------------
// Result Methods
// -----------------------------------------------------------------------------

// SaveResult inserts r; a second result for the same document span is ignored
func (db *DB) SaveResult(ctx context.Context, r types.Result) error {
	ids := r.PatternIDs
	if ids == nil {
		ids = []string{}
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO results (id, document_url, matched_text, context, confidence, tier_label, pattern_ids, span_start, span_end, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT DO NOTHING`,
		r.ID, r.DocumentURL, r.MatchedText, r.Context, r.Confidence, string(r.TierLabel),
		ids, r.SpanStart, r.SpanEnd, r.CreatedAt,
	)
	return store.Wrap("save result", err)
}

// Results returns results at or above minConfidence, highest first
func (db *DB) Results(ctx context.Context, minConfidence float64) ([]types.Result, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, document_url, matched_text, context, confidence, tier_label, pattern_ids, span_start, span_end, created_at
		 FROM results
		 WHERE confidence >= $1
		 ORDER BY confidence DESC, created_at, document_url, span_start`,
		minConfidence,
	)
	if err != nil {
		return nil, store.Wrap("results", err)
	}
	defer rows.Close()

	var out []types.Result
	for rows.Next() {
		var r types.Result
		var label string
		if err := rows.Scan(&r.ID, &r.DocumentURL, &r.MatchedText, &r.Context, &r.Confidence,
			&label, &r.PatternIDs, &r.SpanStart, &r.SpanEnd, &r.CreatedAt); err != nil {
			return nil, store.Wrap("results", err)
		}
		r.TierLabel = types.TierLabel(label)
		out = append(out, r)
	}
	return out, store.Wrap("results", rows.Err())
}
