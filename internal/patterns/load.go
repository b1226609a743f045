package patterns

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonathan/fineprint/internal/schemas"
	schemafiles "github.com/jonathan/fineprint/schemas"
)

type patternFile struct {
	Patterns []Definition `json:"patterns"`
}

// LoadFile reads a JSON pattern file, validates it against the embedded schema
// and compiles it.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Set from the JSON form accepted by LoadFile.
func Parse(data []byte) (*Set, error) {
	if err := schemas.ValidateBytes(schemafiles.PatternsSchema, data); err != nil {
		return nil, &ConfigError{Message: "pattern file does not match schema", Cause: err}
	}

	var pf patternFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, &ConfigError{Message: "failed to parse pattern file", Cause: err}
	}

	return New(pf.Patterns)
}
