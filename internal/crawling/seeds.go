package crawling

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jonathan/fineprint/internal/fetch"
)

// TOSPaths are appended to every seed domain.
var TOSPaths = []string{
	"/terms",
	"/tos",
	"/terms-of-service",
	"/terms-and-conditions",
	"/legal",
	"/legal/terms",
	"/privacy",
	"/privacy-policy",
	"/user-agreement",
	"/eula",
	"/acceptable-use",
	"/community-guidelines",
}

// DefaultSeedDomains are well-known consumer sites whose legal pages are crawled directly.
var DefaultSeedDomains = []string{
	"google.com", "facebook.com", "amazon.com", "twitter.com", "reddit.com",
	"netflix.com", "spotify.com", "apple.com", "microsoft.com", "adobe.com",
	"dropbox.com", "slack.com", "zoom.us", "squaremouth.com", "linkedin.com",
	"pinterest.com", "tumblr.com", "snapchat.com", "tiktok.com", "uber.com",
	"lyft.com", "airbnb.com", "etsy.com", "shopify.com", "stripe.com",
	"paypal.com", "venmo.com", "cashapp.com", "robinhood.com", "coinbase.com",
	"twitch.tv", "discord.com", "github.com", "gitlab.com", "stackoverflow.com",
	"medium.com", "substack.com", "wordpress.com", "squarespace.com", "wix.com",
	"godaddy.com", "namecheap.com", "cloudflare.com", "digitalocean.com", "heroku.com",
	"salesforce.com", "hubspot.com", "mailchimp.com", "canva.com", "figma.com",
	"notion.so", "asana.com", "trello.com", "monday.com", "airtable.com",
	"zapier.com", "ifttt.com", "grammarly.com", "duolingo.com", "coursera.org",
	"udemy.com", "khan-academy.org", "hulu.com", "disneyplus.com", "hbomax.com",
	"peacocktv.com", "paramountplus.com", "crunchyroll.com", "pandora.com", "soundcloud.com",
	"deezer.com", "tidal.com", "doordash.com", "grubhub.com", "instacart.com",
	"postmates.com", "expedia.com", "booking.com", "kayak.com", "tripadvisor.com",
	"zillow.com", "redfin.com", "realtor.com", "indeed.com", "glassdoor.com",
	"monster.com", "upwork.com", "fiverr.com", "rover.com", "taskrabbit.com",
	"thumbtack.com", "yelp.com", "nextdoor.com", "meetup.com", "eventbrite.com",
	"ticketmaster.com", "stubhub.com", "seatgeek.com", "geico.com", "progressive.com",
	"statefarm.com", "allstate.com", "lemonade.com",
}

// Seeder expands a seed domain into candidate legal-page URLs.
type Seeder struct {
	fetcher   fetch.Fetcher
	linkCrawl bool
	timeout   time.Duration
	logger    *slog.Logger
}

// NewSeeder creates a seeder. When linkCrawl is set and fetcher is not nil,
// the home page is fetched and its legal links are added.
func NewSeeder(fetcher fetch.Fetcher, linkCrawl bool, timeout time.Duration, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{fetcher: fetcher, linkCrawl: linkCrawl, timeout: timeout, logger: logger}
}

// HomeURL returns the https home page for a seed domain, adding "www." to bare domains.
func HomeURL(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimRight(domain, "/")
	if strings.Count(domain, ".") == 1 {
		domain = "www." + domain
	}
	return "https://" + domain
}

// Expand returns the TOS-path candidates for domain followed, in link mode,
// by legal links found on its home page. A home page failure is logged and
// leaves only the path candidates.
func (s *Seeder) Expand(ctx context.Context, domain string) ([]string, error) {
	home := HomeURL(domain)
	if _, err := NormalizeURL(home); err != nil {
		return nil, &CrawlError{Domain: domain, Message: "invalid seed domain", Cause: err}
	}

	seen := make(map[string]bool)
	urls := make([]string, 0, len(TOSPaths))
	add := func(u string) {
		if normalized, err := NormalizeURL(u); err == nil && !seen[normalized] {
			seen[normalized] = true
			urls = append(urls, normalized)
		}
	}

	for _, path := range TOSPaths {
		add(home + path)
	}

	if !s.linkCrawl || s.fetcher == nil {
		return urls, nil
	}

	resp, err := s.fetcher.Fetch(ctx, home, s.timeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug("seed home page unavailable", "domain", domain, "error", err)
		return urls, nil
	}

	links, err := ExtractTOSLinks(resp.HTML, home)
	if err != nil {
		s.logger.Debug("seed link extraction failed", "domain", domain, "error", err)
		return urls, nil
	}
	for _, l := range links {
		add(l)
	}
	return urls, nil
}
