package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/fineprint/internal/crawling"
	"github.com/jonathan/fineprint/internal/fetch"
)

var (
	// ErrInvalidURL is returned when URL is malformed
	ErrInvalidURL = errors.New("invalid URL")
	// ErrHTTPRequestFailed is returned when HTTP request fails
	ErrHTTPRequestFailed = errors.New("HTTP request failed")
	// ErrContentExtractionFailed is returned when no text could be extracted
	ErrContentExtractionFailed = errors.New("content extraction failed")
)

// DocumentFetcher resolves one URL. fetch.Coordinator implements it.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Fetched, error)
}

// FromURL fetches rawURL through f and returns its cleaned text with metadata.
// The coordinator's tier fallback and retries apply.
func FromURL(ctx context.Context, f DocumentFetcher, rawURL string) (string, *Metadata, error) {
	normalized, err := crawling.NormalizeURL(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	fetched, err := f.Fetch(ctx, normalized)
	if err != nil {
		var fe *fetch.Error
		if errors.As(err, &fe) && fe.Kind == fetch.KindEmpty {
			return "", nil, fmt.Errorf("%w: %w", ErrContentExtractionFailed, err)
		}
		return "", nil, fmt.Errorf("%w: %w", ErrHTTPRequestFailed, err)
	}
	if fetched == nil {
		return "", nil, fmt.Errorf("%w: no document returned for %s", ErrHTTPRequestFailed, normalized)
	}

	cleaned := CleanText(fetched.Text)
	if cleaned == "" {
		return "", nil, fmt.Errorf("%w: no text at %s", ErrContentExtractionFailed, normalized)
	}

	metadata := NewMetadata(cleaned, normalized)
	metadata.Title = fetched.Document.Title
	metadata.Tier = fetched.Document.TierUsed
	metadata.HTTPStatus = fetched.Document.HTTPStatus
	return cleaned, metadata, nil
}
