package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jonathan/fineprint/internal/types"
)

// BrowserFetcher is the rendered tier: a headless Chrome render via chromedp.
// Requires Chrome/Chromium to be installed on the system.
type BrowserFetcher struct {
	userAgents *UserAgentRotator
	settle     time.Duration
	logger     *slog.Logger
}

// NewBrowserFetcher creates a rendered-tier fetcher. settle is how long to
// wait after the body is ready for scripts to fill the page.
func NewBrowserFetcher(userAgents *UserAgentRotator, settle time.Duration, logger *slog.Logger) *BrowserFetcher {
	if userAgents == nil {
		userAgents = NewUserAgentRotator(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserFetcher{userAgents: userAgents, settle: settle, logger: logger}
}

// Tier implements Fetcher.
func (b *BrowserFetcher) Tier() types.Tier {
	return types.TierRendered
}

// Fetch renders a page in a headless browser and returns the rendered HTML.
func (b *BrowserFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	if err := ValidateURL(url); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	b.logger.Debug("starting headless browser", "url", url)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(b.userAgents.Next()),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(b.settle),
		// Dismiss common cookie banners; absence is fine.
		chromedp.ActionFunc(func(ctx context.Context) error {
			_ = chromedp.Click(`button[id*="accept"], button[class*="accept"]`, chromedp.NodeVisible, chromedp.AtLeast(0)).Do(ctx)
			return nil
		}),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if browserCtx.Err() != nil {
			return nil, &Error{Kind: KindTimeout, URL: url, Message: "browser render timed out", Cause: err}
		}
		return nil, &Error{Kind: KindHTTPError, URL: url, Message: "browser rendering failed", Cause: err}
	}

	b.logger.Debug("rendered page", "url", url, "bytes", len(html))

	return &Response{
		URL:         url,
		HTML:        html,
		ContentType: "text/html",
		StatusCode:  200,
	}, nil
}
