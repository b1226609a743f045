package types

import "time"

// TierLabel is the coarse confidence band shown to reviewers.
type TierLabel string

const (
	LabelHigh   TierLabel = "HIGH"
	LabelMedium TierLabel = "MEDIUM"
	LabelLow    TierLabel = "LOW"
)

// Confidence thresholds for LabelFor.
const (
	HighThreshold   = 0.7
	MediumThreshold = 0.4
)

// LabelFor maps a confidence value to its label. Every float maps to exactly one label.
func LabelFor(confidence float64) TierLabel {
	switch {
	case confidence >= HighThreshold:
		return LabelHigh
	case confidence >= MediumThreshold:
		return LabelMedium
	default:
		return LabelLow
	}
}

// Result is a scored match persisted for human review.
type Result struct {
	ID          string    `json:"id"`
	DocumentURL string    `json:"document_url"`
	MatchedText string    `json:"matched_text"`
	Context     string    `json:"context"`
	Confidence  float64   `json:"confidence"`
	TierLabel   TierLabel `json:"tier_label"`
	PatternIDs  []string  `json:"pattern_ids"`
	SpanStart   int       `json:"span_start"`
	SpanEnd     int       `json:"span_end"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stats summarizes the contents of a store.
type Stats struct {
	DocumentsScanned  int `json:"documents_scanned"`
	ResultsFound      int `json:"results_found"`
	QueriesRun        int `json:"queries_run"`
	FetchFailures     int `json:"fetch_failures"`
	PendingCandidates int `json:"pending_candidates"`
}
