package search

import (
	"context"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// googlePerPage is the Custom Search API maximum for num.
const googlePerPage = 10

// GoogleProvider queries the Google Custom Search JSON API.
type GoogleProvider struct {
	svc        *customsearch.Service
	cx         string
	maxResults int
	priority   int
}

// NewGoogle creates the provider. Extra client options are passed to the
// customsearch service (endpoint overrides in tests).
func NewGoogle(ctx context.Context, priority int, apiKey, cx string, maxResults int, opts ...option.ClientOption) (*GoogleProvider, error) {
	if apiKey == "" || cx == "" {
		return nil, fmt.Errorf("google search requires an API key and a search engine id")
	}
	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	// The API serves at most 100 results per query.
	maxResults = min(maxResults, 100)
	return &GoogleProvider{svc: svc, cx: cx, maxResults: maxResults, priority: priority}, nil
}

func (g *GoogleProvider) Name() string  { return Google }
func (g *GoogleProvider) Priority() int { return g.priority }

// Search pages through the API until maxResults links are collected or a page is short.
func (g *GoogleProvider) Search(ctx context.Context, query string) ([]string, error) {
	seen := make(map[string]bool)
	var urls []string

	for start := int64(1); len(urls) < g.maxResults; start += googlePerPage {
		num := min(int64(googlePerPage), int64(g.maxResults-len(urls)))
		resp, err := g.svc.Cse.List().Cx(g.cx).Q(query).Num(num).Start(start).Context(ctx).Do()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if len(urls) > 0 {
				break
			}
			return nil, &Error{Provider: Google, Message: "search failed", Cause: err}
		}

		for _, item := range resp.Items {
			urls = appendUnique(urls, seen, item.Link)
		}
		if int64(len(resp.Items)) < num {
			break
		}
	}

	return urls, nil
}
