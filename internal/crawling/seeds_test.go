package crawling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/fineprint/internal/fetch"
	"github.com/jonathan/fineprint/internal/types"
)

type fakeFetcher struct {
	html string
	err  error
	urls []string
}

func (f *fakeFetcher) Tier() types.Tier { return types.TierStatic }

func (f *fakeFetcher) Fetch(_ context.Context, url string, _ time.Duration) (*fetch.Response, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Response{URL: url, HTML: f.html, StatusCode: 200}, nil
}

func TestHomeURL(t *testing.T) {
	assert.Equal(t, "https://www.example.com", HomeURL("example.com"))
	assert.Equal(t, "https://www.example.com", HomeURL("https://Example.com/"))
	assert.Equal(t, "https://shop.example.com", HomeURL("shop.example.com"))
}

func TestSeeder_PathCandidates(t *testing.T) {
	s := NewSeeder(nil, false, time.Second, nil)

	urls, err := s.Expand(context.Background(), "squaremouth.com")
	require.NoError(t, err)
	require.Len(t, urls, len(TOSPaths))
	assert.Equal(t, "https://www.squaremouth.com/terms", urls[0])
	assert.Contains(t, urls, "https://www.squaremouth.com/community-guidelines")
}

func TestSeeder_LinkCrawlAddsFooterLinks(t *testing.T) {
	f := &fakeFetcher{html: `<footer>
		<a href="/terms">Terms</a>
		<a href="/legal/sweepstakes-rules">Official rules</a>
		<a href="/shop">Shop</a>
	</footer>`}
	s := NewSeeder(f, true, time.Second, nil)

	urls, err := s.Expand(context.Background(), "example.com")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://www.example.com"}, f.urls)
	assert.Len(t, urls, len(TOSPaths)+1, "duplicate /terms is dropped")
	assert.Equal(t, "https://www.example.com/legal/sweepstakes-rules", urls[len(urls)-1])
}

func TestSeeder_HomePageFailureKeepsPaths(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}
	s := NewSeeder(f, true, time.Second, nil)

	urls, err := s.Expand(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Len(t, urls, len(TOSPaths))
}

func TestSeeder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeFetcher{err: context.Canceled}
	s := NewSeeder(f, true, time.Second, nil)

	_, err := s.Expand(ctx, "example.com")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeeder_InvalidDomain(t *testing.T) {
	s := NewSeeder(nil, false, time.Second, nil)

	_, err := s.Expand(context.Background(), "")
	var crawlErr *CrawlError
	require.ErrorAs(t, err, &crawlErr)
	assert.ErrorIs(t, err, ErrInvalidURL)
}
