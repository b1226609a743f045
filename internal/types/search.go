// Package types provides type definitions for structured data used throughout the fineprint system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "time"

// DiscoveryQuery identifies one search executed against one provider.
// The pair (Text, Provider) is the identity used for deduplication.
type DiscoveryQuery struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
}

// CandidateURL is a normalized document URL found during discovery.
type CandidateURL struct {
	URL          string         `json:"url"`
	SourceQuery  DiscoveryQuery `json:"source_query"`
	DiscoveredAt time.Time      `json:"discovered_at"`
}

// CrawlProvider is the pseudo-provider name used for seed domain expansion.
const CrawlProvider = "crawl"
