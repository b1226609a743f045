package types

// Phase is the stage a search run is currently in.
type Phase string

const (
	PhaseDiscovery Phase = "discovery"
	PhaseFetch     Phase = "fetch"
	PhaseAnalyze   Phase = "analyze"
	PhaseDone      Phase = "done"
	PhaseError     Phase = "error"
	PhaseCancelled Phase = "cancelled"
)

// SearchProgress is an immutable snapshot of a run's counters.
type SearchProgress struct {
	Phase                  Phase  `json:"phase"`
	DocumentsScanned       int    `json:"documents_scanned"`
	DocumentsAnalyzed      int    `json:"documents_analyzed"`
	DocumentsTotalEstimate int    `json:"documents_total_estimate"`
	ResultsFound           int    `json:"results_found"`
	FetchFailures          int    `json:"fetch_failures"`
	CurrentURL             string `json:"current_url,omitempty"`
}
