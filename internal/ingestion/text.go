// Package ingestion loads a single document, from a file or a URL, for ad-hoc analysis.
package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jonathan/fineprint/internal/fetch"
)

var (
	spaceRun      = regexp.MustCompile(`\s+`)
	blankLineRuns = regexp.MustCompile(`\n\n\n+`)
)

// CleanText normalizes line endings and whitespace while keeping paragraph breaks.
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	cleanedLines := make([]string, 0, len(lines))
	for _, line := range lines {
		cleanedLines = append(cleanedLines, cleanLine(line))
	}

	result := strings.Join(cleanedLines, "\n")
	result = blankLineRuns.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}

// cleanLine collapses inner whitespace. List items keep their indentation.
func cleanLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if strings.TrimSpace(line) == "" {
		return ""
	}

	trimmed := strings.TrimLeft(line, " \t")
	if isBulletLine(trimmed) {
		indent := len(line) - len(trimmed)
		return strings.Repeat(" ", indent) + spaceRun.ReplaceAllString(trimmed, " ")
	}
	return spaceRun.ReplaceAllString(trimmed, " ")
}

func isBulletLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") ||
		strings.HasPrefix(trimmed, "• ") || strings.HasPrefix(trimmed, "· ")
}

// isHTMLFile reports whether path looks like a saved web page.
func isHTMLFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}

// FromFile reads a text or HTML file and returns its cleaned text with metadata.
// HTML files go through extractor first.
func FromFile(path string, extractor fetch.TextExtractor) (string, *Metadata, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("file not found: %w", err)
		}
		return "", nil, fmt.Errorf("failed to read file: %w", err)
	}

	text := string(content)
	title := ""
	if isHTMLFile(path) {
		title = fetch.ExtractTitle(text)
		text, err = extractor.Extract(text, "file://"+path)
		if err != nil {
			return "", nil, fmt.Errorf("failed to extract text from %s: %w", path, err)
		}
	}

	cleaned := CleanText(text)
	if cleaned == "" {
		return "", nil, fmt.Errorf("no text found in %s", path)
	}

	metadata := NewMetadata(cleaned, "")
	metadata.Path = path
	metadata.Title = title
	return cleaned, metadata, nil
}
