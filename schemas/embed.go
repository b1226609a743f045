// Package schemas holds the JSON Schema documents for fineprint's config and pattern files.
package schemas

import "embed"

// FS contains every *.schema.json file in this directory.
//
//go:embed *.schema.json
var FS embed.FS

// Schema file names.
const (
	ConfigSchema   = "config.schema.json"
	PatternsSchema = "patterns.schema.json"
)
