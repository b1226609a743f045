// Package store defines the persistence contract for discovery, fetch and scoring state.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/fineprint/internal/types"
)

// Store is the only component with durable-storage access. Implementations
// must be safe for concurrent use.
type Store interface {
	// HasQuery reports whether q was already executed.
	HasQuery(ctx context.Context, q types.DiscoveryQuery) (bool, error)
	// RecordQuery marks q as executed. Recording twice is a no-op.
	RecordQuery(ctx context.Context, q types.DiscoveryQuery, resultCount int) error

	// HasURL reports whether url is known as a candidate or a document.
	HasURL(ctx context.Context, url string) (bool, error)
	// RecordCandidate inserts c if its URL is unknown and reports whether it was inserted.
	RecordCandidate(ctx context.Context, c types.CandidateURL) (bool, error)
	// PendingCandidates returns candidates that have no document yet, oldest first.
	// limit <= 0 means no limit.
	PendingCandidates(ctx context.Context, limit int) ([]types.CandidateURL, error)

	// GetDocument returns the document for url, or nil when there is none.
	GetDocument(ctx context.Context, url string) (*types.Document, error)
	// RecordDocument stores the outcome of fetching doc.URL along with its text.
	RecordDocument(ctx context.Context, doc types.Document, text string) error
	// DocumentsForScoring returns ok documents with their text. Only documents
	// that were never scored are returned unless includeScored is set.
	DocumentsForScoring(ctx context.Context, includeScored bool, limit int) ([]types.StoredText, error)
	// MarkScored records that analysis of url completed.
	MarkScored(ctx context.Context, url string) error

	// SaveResult persists r. Saving the same (DocumentURL, SpanStart, SpanEnd) again is a no-op.
	SaveResult(ctx context.Context, r types.Result) error
	// Results returns stored results with confidence >= minConfidence, highest first.
	Results(ctx context.Context, minConfidence float64) ([]types.Result, error)

	// Stats summarizes the store.
	Stats(ctx context.Context) (types.Stats, error)
	// Reset removes all queries, candidates, documents and results atomically.
	Reset(ctx context.Context) error
	// Close releases the underlying connection.
	Close() error
}

// Error is returned for any failure of the underlying storage. It is fatal for a run.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err wrapped in *Error, or nil when err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// IsStorageError reports whether err is or wraps a storage *Error.
func IsStorageError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}
