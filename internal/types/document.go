package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Tier identifies which fetch strategy produced a document.
type Tier string

const (
	// TierStatic is a plain HTTP GET
	TierStatic Tier = "static"
	// TierRendered is a headless browser render
	TierRendered Tier = "rendered"
)

// DocumentStatus is the terminal outcome of fetching a URL.
type DocumentStatus string

const (
	// StatusOK means text was extracted
	StatusOK DocumentStatus = "ok"
	// StatusFetchFailed means every attempt failed
	StatusFetchFailed DocumentStatus = "fetch_failed"
	// StatusEmpty means the page was reachable but produced no usable text
	StatusEmpty DocumentStatus = "empty"
)

// Document records one attempted URL. There is exactly one per URL.
type Document struct {
	URL         string         `json:"url"`
	FetchedAt   time.Time      `json:"fetched_at"`
	ContentHash string         `json:"content_hash,omitempty"` // SHA256 hex digest of the extracted text
	TierUsed    Tier           `json:"tier_used,omitempty"`
	Status      DocumentStatus `json:"status"`
	HTTPStatus  int            `json:"http_status,omitempty"`
	Title       string         `json:"title,omitempty"`
	Error       string         `json:"error,omitempty"`
	ScoredAt    *time.Time     `json:"scored_at,omitempty"`
}

// StoredText pairs a document URL with the text extracted from it.
type StoredText struct {
	URL  string
	Text string
}

// HashContent returns the hex SHA-256 digest of text.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
