// Package search implements the web search providers used for discovery.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonathan/fineprint/internal/fetch"
)

// Provider names accepted in configuration.
const (
	DuckDuckGo = "duckduckgo"
	Bing       = "bing"
	Google     = "google"
)

// DefaultMaxResults is the number of URLs requested per query.
const DefaultMaxResults = 50

// DefaultQueries are the discovery queries run when none are configured.
var DefaultQueries = []string{
	"terms of service",
	"terms and conditions",
	"user agreement",
	"privacy policy",
	"end user license agreement",
	"terms of service hidden prize",
	"terms of service hidden contest",
	"read the fine print prize",
	"hidden message terms of service",
	`"if you read this" terms of service`,
	`"first person to" terms conditions`,
	`"email us" terms of service reward`,
	"terms of service easter egg",
	"hidden contest fine print",
	"company hid prize in terms",
	"buried in fine print contest",
	"terms of service giveaway",
	"sweepstakes hidden in agreement",
	"insurance policy hidden prize",
	"software license agreement prize",
	"terms of use contest reward",
}

// Options are shared by the scraping providers.
type Options struct {
	Client     *http.Client
	UserAgents *fetch.UserAgentRotator
	MaxResults int
	Timeout    time.Duration
	// PageDelay is waited between result pages of one query.
	PageDelay time.Duration
	// BaseURL overrides the search endpoint, for tests.
	BaseURL string
}

func (o Options) withDefaults() Options {
	if o.Client == nil {
		o.Client = &http.Client{}
	}
	if o.UserAgents == nil {
		o.UserAgents = fetch.NewUserAgentRotator(nil)
	}
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.Timeout <= 0 {
		o.Timeout = fetch.DefaultTimeout
	}
	return o
}

// Error reports a failed provider request.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s search error: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s search error: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// getPage performs a GET with browser-like headers and returns the body.
func getPage(ctx context.Context, provider string, opts Options, pageURL string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &Error{Provider: provider, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", opts.UserAgents.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := opts.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{Provider: provider, Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{Provider: provider, StatusCode: resp.StatusCode, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &Error{Provider: provider, Message: "failed to read response body", Cause: err}
	}
	return string(body), nil
}

// wait pauses for d unless ctx ends first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// appendUnique appends u to urls unless it is empty or already present.
func appendUnique(urls []string, seen map[string]bool, u string) []string {
	if u == "" || seen[u] {
		return urls
	}
	seen[u] = true
	return append(urls, u)
}
