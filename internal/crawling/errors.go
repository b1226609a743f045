// Package crawling normalizes URLs and expands seed domains into candidate
// terms-of-service pages.
package crawling

import "fmt"

// CrawlError reports a seed domain that could not be expanded.
type CrawlError struct {
	Domain  string
	Message string
	Cause   error
}

func (e *CrawlError) Error() string {
	msg := fmt.Sprintf("seed %q: %s", e.Domain, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CrawlError) Unwrap() error { return e.Cause }

// LinkExtractionError reports a page whose legal links could not be read.
type LinkExtractionError struct {
	BaseURL string
	Message string
	Cause   error
}

func (e *LinkExtractionError) Error() string {
	msg := fmt.Sprintf("link extraction from %s: %s", e.BaseURL, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LinkExtractionError) Unwrap() error { return e.Cause }
