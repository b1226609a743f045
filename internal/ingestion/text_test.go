package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/fineprint/internal/fetch"
	"github.com/jonathan/fineprint/internal/types"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"only whitespace", "   \n  \n  ", ""},
		{"collapses spaces", "Line    with    multiple    spaces", "Line with multiple spaces"},
		{"normalizes line endings", "Line 1\r\nLine 2\rLine 3", "Line 1\nLine 2\nLine 3"},
		{"limits blank lines", "Line 1\n\n\n\n\nLine 2", "Line 1\n\nLine 2"},
		{"keeps bullet indentation", "Rules:\n  - first   item\n  * second", "Rules:\n  - first item\n  * second"},
		{"strips leading indentation", "    indented   text", "indented text"},
		{"keeps unicode", "Prize: 🚀 spéciàl", "Prize: 🚀 spéciàl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.input))
		})
	}
}

func TestCleanText_Deterministic(t *testing.T) {
	input := "Terms   of service\n\n\n\nSection 1"
	assert.Equal(t, CleanText(input), CleanText(input))
}

func TestFromFile_Text(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tos.txt")
	require.NoError(t, os.WriteFile(path, []byte("Terms   of Service\r\n\r\n\r\n\r\nIf you read this far, email us."), 0644))

	text, meta, err := FromFile(path, fetch.NewGoqueryExtractor())
	require.NoError(t, err)

	assert.Equal(t, "Terms of Service\n\nIf you read this far, email us.", text)
	assert.Equal(t, path, meta.Path)
	assert.Equal(t, path, meta.Source())
	assert.Empty(t, meta.URL)
	assert.Equal(t, types.HashContent(text), meta.Hash)
}

func TestFromFile_HTML(t *testing.T) {
	html := `<html><head><title>Acme Terms</title></head><body>
<nav>Home | About</nav>
<main><h1>Terms of Service</h1><p>The first person to email us wins a prize.</p></main>
</body></html>`
	path := filepath.Join(t.TempDir(), "tos.html")
	require.NoError(t, os.WriteFile(path, []byte(html), 0644))

	text, meta, err := FromFile(path, fetch.NewGoqueryExtractor())
	require.NoError(t, err)

	assert.Contains(t, text, "The first person to email us wins a prize.")
	assert.NotContains(t, text, "<p>")
	assert.Equal(t, "Acme Terms", meta.Title)
}

func TestFromFile_Errors(t *testing.T) {
	_, _, err := FromFile(filepath.Join(t.TempDir(), "missing.txt"), fetch.NewGoqueryExtractor())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte(" \n\t"), 0644))
	_, _, err = FromFile(empty, fetch.NewGoqueryExtractor())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text found")
}

func TestMetadata_ToJSON(t *testing.T) {
	meta := NewMetadata("some text", "https://example.com/terms")
	data, err := meta.ToJSON()
	require.NoError(t, err)

	assert.Contains(t, string(data), `"url": "https://example.com/terms"`)
	assert.Contains(t, string(data), `"chars": 9`)
	assert.Equal(t, "https://example.com/terms", meta.Source())
}
