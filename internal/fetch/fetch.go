// Package fetch resolves URLs to clean text using a static HTTP tier and an
// optional headless browser tier.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/fineprint/internal/types"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 15 * time.Second

// DefaultUserAgent is used when no user agents are configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 5 << 20

// Response holds the raw content returned by a Fetcher.
type Response struct {
	URL         string
	HTML        string
	ContentType string
	StatusCode  int
}

// Fetcher retrieves the HTML for a URL with one strategy.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*Response, error)
	Tier() types.Tier
}

// ErrorKind classifies fetch failures.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindHTTPError ErrorKind = "http_error"
	KindBlocked   ErrorKind = "blocked"
	KindEmpty     ErrorKind = "empty"
)

// Error represents an error during URL fetching.
type Error struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	// Permanent failures are never retried.
	Permanent bool
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsPermanent reports whether err is a fetch error that must not be retried.
func IsPermanent(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Permanent
}

// ClassifyStatus maps a non-200 HTTP status to an error.
func ClassifyStatus(urlStr string, status int) *Error {
	e := &Error{
		Kind:       KindHTTPError,
		URL:        urlStr,
		StatusCode: status,
		Message:    fmt.Sprintf("HTTP status %d", status),
	}
	switch {
	case status == http.StatusForbidden || status == http.StatusUnavailableForLegalReasons:
		e.Kind = KindBlocked
		e.Permanent = true
	case status == http.StatusTooManyRequests || status >= 500:
		e.Permanent = false
	default:
		// 404, 410 and the remaining 4xx.
		e.Permanent = true
	}
	return e
}

// classifyTransport turns a transport failure into an error, treating
// deadline and net timeouts as KindTimeout.
func classifyTransport(urlStr string, err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, URL: urlStr, Message: "request timed out", Cause: err}
	}
	return &Error{Kind: KindHTTPError, URL: urlStr, Message: "HTTP request failed", Cause: err}
}

// ValidateURL checks that urlStr is an absolute http(s) URL.
func ValidateURL(urlStr string) error {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Host == "" || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		return &Error{
			Kind:      KindHTTPError,
			URL:       urlStr,
			Permanent: true,
			Message:   "invalid URL",
			Cause:     err,
		}
	}
	return nil
}

// isTextContent reports whether a Content-Type header describes text.
// A missing header is accepted.
func isTextContent(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "text/")
	}
	return strings.HasPrefix(mediaType, "text/") || mediaType == "application/xhtml+xml"
}

// HTTPFetcher is the static tier: a plain GET.
type HTTPFetcher struct {
	client     *http.Client
	userAgents *UserAgentRotator
}

// NewHTTPFetcher creates a static fetcher. A nil client uses a default one;
// a nil rotator sends DefaultUserAgent.
func NewHTTPFetcher(client *http.Client, userAgents *UserAgentRotator) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if userAgents == nil {
		userAgents = NewUserAgentRotator(nil)
	}
	return &HTTPFetcher{client: client, userAgents: userAgents}
}

// Tier implements Fetcher.
func (f *HTTPFetcher) Tier() types.Tier {
	return types.TierStatic
}

// Fetch retrieves HTML content from a URL.
func (f *HTTPFetcher) Fetch(ctx context.Context, urlStr string, timeout time.Duration) (*Response, error) {
	if err := ValidateURL(urlStr); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{
			Kind:      KindHTTPError,
			URL:       urlStr,
			Permanent: true,
			Message:   "failed to create request",
			Cause:     err,
		}
	}

	req.Header.Set("User-Agent", f.userAgents.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyTransport(urlStr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	result := &Response{
		URL:         resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}

	if resp.StatusCode != http.StatusOK {
		return result, ClassifyStatus(urlStr, resp.StatusCode)
	}

	if !isTextContent(result.ContentType) {
		return result, &Error{
			Kind:       KindEmpty,
			URL:        urlStr,
			StatusCode: resp.StatusCode,
			Permanent:  true,
			Message:    fmt.Sprintf("non-text content type %q", result.ContentType),
		}
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyTransport(urlStr, err)
	}
	result.HTML = string(bodyBytes)

	return result, nil
}
