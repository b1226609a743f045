// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/fineprint/internal/schemas"
	schemafiles "github.com/jonathan/fineprint/schemas"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// NLP providers.
const (
	NlpHeuristic = "heuristic"
	NlpGemini    = "gemini"
)

// Environment variables read by ApplyEnv.
const (
	EnvDatabaseURL  = "DATABASE_URL"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvGoogleAPIKey = "GOOGLE_API_KEY"
	EnvGoogleCX     = "GOOGLE_CX"
)

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values come from Defaults().
type Config struct {
	// Storage
	StorageDriver string `json:"storage_driver,omitempty" validate:"omitempty,oneof=sqlite postgres"`
	DatabasePath  string `json:"database_path,omitempty"`
	DatabaseURL   string `json:"database_url,omitempty"` // PostgreSQL connection URL

	// Discovery
	Providers           []string `json:"providers,omitempty" validate:"omitempty,unique,dive,oneof=duckduckgo bing google"`
	Queries             []string `json:"queries,omitempty" validate:"omitempty,dive,required"`
	SeedDomains         []string `json:"seed_domains,omitempty" validate:"omitempty,dive,required,hostname"`
	SeedLinkCrawl       bool     `json:"seed_link_crawl,omitempty"`
	ExhaustiveDiscovery bool     `json:"exhaustive_discovery,omitempty"`
	ResultsPerQuery     int      `json:"results_per_query,omitempty" validate:"gte=0,lte=100"`

	// Fetching
	FetchTimeoutSeconds int      `json:"fetch_timeout_seconds,omitempty" validate:"gte=0"`
	MaxRetries          *int     `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=10"` // nil means default; 0 disables retries
	RetryBackoffMS      int      `json:"retry_backoff_ms,omitempty" validate:"gte=0"`
	DelayMinMS          int      `json:"delay_min_ms,omitempty" validate:"gte=0"`
	DelayMaxMS          int      `json:"delay_max_ms,omitempty" validate:"gte=0"`
	UserAgents          []string `json:"user_agents,omitempty" validate:"omitempty,dive,required"`
	MinContentLength    int      `json:"min_content_length,omitempty" validate:"gte=0"`
	UseBrowser          bool     `json:"use_browser,omitempty"` // Render short or script-only pages in headless Chrome

	// Pipeline
	FetchWorkers int `json:"fetch_workers,omitempty" validate:"gte=0,lte=64"`
	ScoreWorkers int `json:"score_workers,omitempty" validate:"gte=0,lte=64"`
	QueueSize    int `json:"queue_size,omitempty" validate:"gte=0"`
	AnalyzeQueue int `json:"analyze_queue,omitempty" validate:"gte=0"`
	MaxDocuments int `json:"max_documents,omitempty" validate:"gte=0"`

	// Scoring
	ReportingFloor float64 `json:"reporting_floor,omitempty" validate:"gte=0,lte=1"`
	ContextWindow  int     `json:"context_window,omitempty" validate:"gte=0"`
	NlpEnabled     bool    `json:"nlp_enabled,omitempty"`
	NlpProvider    string  `json:"nlp_provider,omitempty" validate:"omitempty,oneof=heuristic gemini"`
	PatternsFile   string  `json:"patterns_file,omitempty"`

	// Output
	Verbose   bool   `json:"verbose,omitempty"`
	LogFormat string `json:"log_format,omitempty" validate:"omitempty,oneof=text json"`

	// Secrets, environment only.
	GeminiAPIKey string `json:"-"`
	GoogleAPIKey string `json:"-"`
	GoogleCX     string `json:"-"`
}

// DefaultUserAgents are rotated when no user agents are configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		StorageDriver:       DriverSQLite,
		DatabasePath:        filepath.Join(home, ".fineprint", "fineprint.db"),
		Providers:           []string{"duckduckgo", "bing"},
		ResultsPerQuery:     50,
		FetchTimeoutSeconds: 15,
		MaxRetries:          intPtr(2),
		RetryBackoffMS:      1000,
		DelayMinMS:          2000,
		DelayMaxMS:          5000,
		UserAgents:          slices.Clone(DefaultUserAgents),
		MinContentLength:    500,
		FetchWorkers:        4,
		ScoreWorkers:        2,
		QueueSize:           64,
		AnalyzeQueue:        16,
		MaxDocuments:        500,
		ReportingFloor:      0.1,
		ContextWindow:       300,
		NlpProvider:         NlpHeuristic,
		LogFormat:           "text",
	}
}

// LoadConfig loads configuration from a JSON file after checking it against
// the embedded config schema.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("failed to parse config JSON: invalid JSON in %s", path)
	}
	if err := schemas.ValidateBytes(schemafiles.ConfigSchema, data); err != nil {
		return nil, fmt.Errorf("config file %s does not match schema: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv fills secrets from the environment. DATABASE_URL only applies when
// no database URL was configured.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv(EnvDatabaseURL)
	}
	c.GeminiAPIKey = getenv(EnvGeminiAPIKey)
	c.GoogleAPIKey = getenv(EnvGoogleAPIKey)
	c.GoogleCX = getenv(EnvGoogleCX)
}

var validate = validator.New()

// Validate checks that the configuration has valid values.
// Zero values are accepted since they are filled by MergeWithDefaults.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.DelayMaxMS > 0 && c.DelayMinMS > c.DelayMaxMS {
		return fmt.Errorf("config error: 'delay_min_ms' must not exceed 'delay_max_ms'")
	}
	if c.StorageDriver == DriverPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("config error: postgres storage requires 'database_url' or %s", EnvDatabaseURL)
	}
	if c.NlpEnabled && c.NlpProvider == NlpGemini && c.GeminiAPIKey == "" {
		return fmt.Errorf("config error: gemini NLP scoring requires %s", EnvGeminiAPIKey)
	}
	if slices.Contains(c.Providers, "google") && (c.GoogleAPIKey == "" || c.GoogleCX == "") {
		return fmt.Errorf("config error: google provider requires %s and %s", EnvGoogleAPIKey, EnvGoogleCX)
	}

	if c.PatternsFile != "" {
		if _, err := os.Stat(c.PatternsFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: patterns file not found: %s", c.PatternsFile)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.StorageDriver == "" {
		result.StorageDriver = defaults.StorageDriver
	}
	if result.DatabasePath == "" {
		result.DatabasePath = defaults.DatabasePath
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.NlpProvider == "" {
		result.NlpProvider = defaults.NlpProvider
	}
	if result.PatternsFile == "" {
		result.PatternsFile = defaults.PatternsFile
	}
	if result.LogFormat == "" {
		result.LogFormat = defaults.LogFormat
	}

	// Slices: use default if empty
	if len(result.Providers) == 0 {
		result.Providers = defaults.Providers
	}
	if len(result.Queries) == 0 {
		result.Queries = defaults.Queries
	}
	if len(result.SeedDomains) == 0 {
		result.SeedDomains = defaults.SeedDomains
	}
	if len(result.UserAgents) == 0 {
		result.UserAgents = defaults.UserAgents
	}

	// Int fields: use default if zero
	result.ResultsPerQuery = orInt(result.ResultsPerQuery, defaults.ResultsPerQuery)
	result.FetchTimeoutSeconds = orInt(result.FetchTimeoutSeconds, defaults.FetchTimeoutSeconds)
	result.RetryBackoffMS = orInt(result.RetryBackoffMS, defaults.RetryBackoffMS)
	result.DelayMinMS = orInt(result.DelayMinMS, defaults.DelayMinMS)
	result.DelayMaxMS = orInt(result.DelayMaxMS, defaults.DelayMaxMS)
	result.MinContentLength = orInt(result.MinContentLength, defaults.MinContentLength)
	result.FetchWorkers = orInt(result.FetchWorkers, defaults.FetchWorkers)
	result.ScoreWorkers = orInt(result.ScoreWorkers, defaults.ScoreWorkers)
	result.QueueSize = orInt(result.QueueSize, defaults.QueueSize)
	result.AnalyzeQueue = orInt(result.AnalyzeQueue, defaults.AnalyzeQueue)
	result.MaxDocuments = orInt(result.MaxDocuments, defaults.MaxDocuments)
	result.ContextWindow = orInt(result.ContextWindow, defaults.ContextWindow)

	if result.ReportingFloor == 0 {
		result.ReportingFloor = defaults.ReportingFloor
	}

	// Pointer fields: nil is unset, so an explicit zero survives the merge.
	if result.MaxRetries == nil && defaults.MaxRetries != nil {
		result.MaxRetries = intPtr(*defaults.MaxRetries)
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	// A merged minimum above the configured maximum widens the maximum.
	if result.DelayMinMS > result.DelayMaxMS {
		result.DelayMaxMS = result.DelayMinMS
	}

	return result
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func intPtr(v int) *int {
	return &v
}

// Retries returns the configured retry count, zero when unset.
func (c *Config) Retries() int {
	if c.MaxRetries == nil {
		return 0
	}
	return *c.MaxRetries
}

// FetchTimeout returns the per-request timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// RetryBackoff returns the initial retry interval.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// DelayRange returns the politeness delay bounds.
func (c *Config) DelayRange() (time.Duration, time.Duration) {
	return time.Duration(c.DelayMinMS) * time.Millisecond, time.Duration(c.DelayMaxMS) * time.Millisecond
}
