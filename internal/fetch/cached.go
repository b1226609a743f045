package fetch

import (
	"context"

	"github.com/jonathan/fineprint/internal/types"
)

// Lookup finds a previously recorded document. store.Store satisfies it.
type Lookup interface {
	GetDocument(ctx context.Context, url string) (*types.Document, error)
}

// lookupCached returns a Fetched marked Cached when lookup already has a
// document for url. A nil lookup never hits.
func lookupCached(ctx context.Context, lookup Lookup, url string) (*Fetched, error) {
	if lookup == nil {
		return nil, nil
	}
	doc, err := lookup.GetDocument(ctx, url)
	if err != nil || doc == nil {
		return nil, err
	}
	return &Fetched{Document: *doc, Cached: true}, nil
}
