package search

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const duckDuckGoURL = "https://html.duckduckgo.com/html/"

// DuckDuckGoProvider scrapes the DuckDuckGo HTML endpoint.
type DuckDuckGoProvider struct {
	opts     Options
	priority int
}

// NewDuckDuckGo creates the provider.
func NewDuckDuckGo(priority int, opts Options) *DuckDuckGoProvider {
	opts = opts.withDefaults()
	if opts.BaseURL == "" {
		opts.BaseURL = duckDuckGoURL
	}
	return &DuckDuckGoProvider{opts: opts, priority: priority}
}

func (d *DuckDuckGoProvider) Name() string  { return DuckDuckGo }
func (d *DuckDuckGoProvider) Priority() int { return d.priority }

// Search returns result URLs for query. No results is not an error.
func (d *DuckDuckGoProvider) Search(ctx context.Context, query string) ([]string, error) {
	pageURL := d.opts.BaseURL + "?" + url.Values{"q": {query}}.Encode()

	body, err := getPage(ctx, DuckDuckGo, d.opts, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, &Error{Provider: DuckDuckGo, Message: "failed to parse results", Cause: err}
	}

	seen := make(map[string]bool)
	var urls []string
	doc.Find(".result").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("result--ad") || len(urls) >= d.opts.MaxResults {
			return
		}
		href, ok := s.Find("a.result__a").Attr("href")
		if !ok {
			return
		}
		urls = appendUnique(urls, seen, decodeDuckDuckGoURL(href))
	})

	return urls, nil
}

// decodeDuckDuckGoURL unwraps "//duckduckgo.com/l/?uddg=<target>" redirects.
func decodeDuckDuckGoURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return href
}
