package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/fineprint/internal/types"
)

func TestHTTPFetcher_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body><h1>Terms</h1></body></html>"))
	}))
	defer server.Close()

	f := NewHTTPFetcher(server.Client(), nil)
	result, err := f.Fetch(context.Background(), server.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, server.URL, result.URL)
	assert.Contains(t, result.HTML, "<h1>Terms</h1>")
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, types.TierStatic, f.Tier())
}

func TestHTTPFetcher_RotatesUserAgents(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.UserAgent())
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	f := NewHTTPFetcher(server.Client(), NewUserAgentRotator([]string{"ua-one", "ua-two"}))
	for range 3 {
		_, err := f.Fetch(context.Background(), server.URL, time.Second)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"ua-one", "ua-two", "ua-one"}, seen)
}

func TestHTTPFetcher_InvalidURL(t *testing.T) {
	f := NewHTTPFetcher(nil, nil)

	for _, u := range []string{"not-a-valid-url", "ftp://example.com/terms", "https://"} {
		_, err := f.Fetch(context.Background(), u, time.Second)
		require.Error(t, err, u)

		var fetchErr *Error
		require.ErrorAs(t, err, &fetchErr)
		assert.True(t, fetchErr.Permanent)
		assert.Contains(t, err.Error(), "invalid URL")
	}
}

func TestHTTPFetcher_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		kind      ErrorKind
		permanent bool
	}{
		{http.StatusNotFound, KindHTTPError, true},
		{http.StatusGone, KindHTTPError, true},
		{http.StatusForbidden, KindBlocked, true},
		{http.StatusUnavailableForLegalReasons, KindBlocked, true},
		{http.StatusTooManyRequests, KindHTTPError, false},
		{http.StatusInternalServerError, KindHTTPError, false},
		{http.StatusBadGateway, KindHTTPError, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			result, err := NewHTTPFetcher(server.Client(), nil).Fetch(context.Background(), server.URL, time.Second)
			require.Error(t, err)
			require.NotNil(t, result)
			assert.Equal(t, tt.status, result.StatusCode)

			var fetchErr *Error
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, tt.kind, fetchErr.Kind)
			assert.Equal(t, tt.permanent, fetchErr.Permanent)
			assert.Equal(t, tt.permanent, IsPermanent(err))
		})
	}
}

func TestHTTPFetcher_NonTextContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	_, err := NewHTTPFetcher(server.Client(), nil).Fetch(context.Background(), server.URL, time.Second)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindEmpty, fetchErr.Kind)
	assert.True(t, fetchErr.Permanent)
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewHTTPFetcher(server.Client(), nil).Fetch(context.Background(), server.URL, 50*time.Millisecond)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindTimeout, fetchErr.Kind)
	assert.False(t, fetchErr.Permanent)
}

func TestHTTPFetcher_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPFetcher(server.Client(), nil).Fetch(ctx, server.URL, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsTextContent(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"", true},
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"text/plain", true},
		{"application/xhtml+xml", true},
		{"application/json", false},
		{"image/png", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isTextContent(tt.contentType), tt.contentType)
	}
}

func TestUserAgentRotator_DefaultsWhenEmpty(t *testing.T) {
	r := NewUserAgentRotator([]string{"", ""})
	assert.Equal(t, DefaultUserAgent, r.Next())
	assert.Equal(t, DefaultUserAgent, r.Next())
}
