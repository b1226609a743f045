// Package llm - extractor.go builds structured-output prompts.
package llm

import (
	"fmt"
	"strings"

	"github.com/jonathan/fineprint/internal/prompts"
)

const scoringPrompts = "scoring.json"

// ExtractionSchema defines the JSON object the model is asked to return.
type ExtractionSchema struct {
	Name         string        // Schema name (e.g., "ContextAdjustment")
	Description  string        // System prompt preamble describing the task
	Fields       []SchemaField // Expected output fields
	Instructions []string      // Extra rules appended after the output schema
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint: "number", "\"string\""
	Description string // Description for the LLM
	Required    bool   // Whether this field is required
}

// BuildExtractionPrompt constructs the LLM prompt from schema and input text.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "string"
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\": %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString("IMPORTANT:\n")
	for _, rule := range schema.Instructions {
		sb.WriteString("- ")
		sb.WriteString(rule)
		sb.WriteString("\n")
	}
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n\n")

	sb.WriteString("Input text:\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}

// ContextAdjustmentSchema asks the model whether a passage from a legal document
// genuinely offers a hidden reward to attentive readers.
func ContextAdjustmentSchema() ExtractionSchema {
	return ExtractionSchema{
		Name:        "ContextAdjustment",
		Description: prompts.MustGet(scoringPrompts, "context-adjustment"),
		Fields: []SchemaField{
			{
				Name:        "adjustment",
				Type:        "number",
				Description: prompts.Format(prompts.MustGet(scoringPrompts, "context-adjustment-field"), map[string]string{"Min": "-0.2", "Max": "0.2"}),
				Required:    true,
			},
			{
				Name:        "reason",
				Type:        "\"string\"",
				Description: prompts.MustGet(scoringPrompts, "context-adjustment-reason"),
			},
		},
		Instructions: prompts.Lines(prompts.MustGet(scoringPrompts, "context-adjustment-rules")),
	}
}
