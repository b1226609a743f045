package search

import (
	"context"
	"encoding/base64"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	bingURL     = "https://www.bing.com/search"
	bingPerPage = 10
)

// BingProvider scrapes Bing result pages.
type BingProvider struct {
	opts     Options
	priority int
}

// NewBing creates the provider.
func NewBing(priority int, opts Options) *BingProvider {
	opts = opts.withDefaults()
	if opts.BaseURL == "" {
		opts.BaseURL = bingURL
	}
	return &BingProvider{opts: opts, priority: priority}
}

func (b *BingProvider) Name() string  { return Bing }
func (b *BingProvider) Priority() int { return b.priority }

// Search pages through results until MaxResults URLs are collected or a
// page comes back empty.
func (b *BingProvider) Search(ctx context.Context, query string) ([]string, error) {
	pages := max(1, (b.opts.MaxResults+bingPerPage-1)/bingPerPage)
	seen := make(map[string]bool)
	var urls []string

	for page := 0; page < pages && len(urls) < b.opts.MaxResults; page++ {
		if page > 0 {
			if err := wait(ctx, b.opts.PageDelay); err != nil {
				return nil, err
			}
		}

		params := url.Values{"q": {query}}
		if page > 0 {
			params.Set("first", strconv.Itoa(page*bingPerPage+1))
		}
		body, err := getPage(ctx, Bing, b.opts, b.opts.BaseURL+"?"+params.Encode())
		if err != nil {
			// Keep what earlier pages produced.
			if page > 0 && ctx.Err() == nil {
				break
			}
			return nil, err
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			return nil, &Error{Provider: Bing, Message: "failed to parse results", Cause: err}
		}

		found := 0
		doc.Find("li.b_algo h2 a").Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok || len(urls) >= b.opts.MaxResults {
				return
			}
			found++
			urls = appendUnique(urls, seen, decodeBingURL(href))
		})
		if found == 0 {
			break
		}
	}

	return urls, nil
}

// decodeBingURL unwraps bing.com/ck/a tracking links whose "u" parameter
// is "a1" followed by the base64 target URL.
func decodeBingURL(href string) string {
	if !strings.Contains(href, "bing.com/ck/") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	param := u.Query().Get("u")
	if !strings.HasPrefix(param, "a1") {
		return ""
	}

	encoded := strings.TrimRight(param[2:], "=")
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}
