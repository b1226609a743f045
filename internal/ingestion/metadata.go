package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonathan/fineprint/internal/types"
)

// Metadata describes an ingested document.
type Metadata struct {
	URL        string     `json:"url,omitempty"`
	Path       string     `json:"path,omitempty"`
	Title      string     `json:"title,omitempty"`
	Timestamp  string     `json:"timestamp"` // RFC3339 format
	Hash       string     `json:"hash"`      // SHA256 hex digest of the cleaned text
	Chars      int        `json:"chars"`
	Tier       types.Tier `json:"tier,omitempty"`
	HTTPStatus int        `json:"http_status,omitempty"`
}

// NewMetadata creates a new Metadata instance with current timestamp
func NewMetadata(content string, url string) *Metadata {
	return &Metadata{
		URL:       url,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Hash:      types.HashContent(content),
		Chars:     len([]rune(content)),
	}
}

// Source returns the URL or, for files, the path.
func (m *Metadata) Source() string {
	if m.URL != "" {
		return m.URL
	}
	return m.Path
}

// ToJSON marshals Metadata to pretty-printed JSON
func (m *Metadata) ToJSON() ([]byte, error) {
	jsonBytes, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata to JSON: %w", err)
	}
	return jsonBytes, nil
}
