package crawling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase scheme and host", "HTTPS://Example.COM/Terms", "https://example.com/Terms"},
		{"fragment removed", "https://example.com/terms#prize", "https://example.com/terms"},
		{"trailing slash stripped", "https://example.com/terms/", "https://example.com/terms"},
		{"root slash stripped", "https://example.com/", "https://example.com"},
		{"query sorted", "https://example.com/tos?b=2&a=1", "https://example.com/tos?a=1&b=2"},
		{"default port removed", "https://example.com:443/tos", "https://example.com/tos"},
		{"other port kept", "http://example.com:8080/tos", "http://example.com:8080/tos"},
		{"credentials dropped", "https://user:pw@example.com/tos", "https://example.com/tos"},
		{"surrounding space", "  https://example.com/tos  ", "https://example.com/tos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURL_Idempotent(t *testing.T) {
	inputs := []string{
		"HTTPS://Example.com/a/b/?z=1&y=2#f",
		"http://example.com",
		"https://example.com/search?q=terms+of+service",
	}
	for _, in := range inputs {
		once, err := NormalizeURL(in)
		require.NoError(t, err)
		twice, err := NormalizeURL(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestNormalizeURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "ftp://example.com/terms", "mailto:legal@example.com", "https://", "/relative/path", "::not a url"} {
		_, err := NormalizeURL(in)
		assert.ErrorIs(t, err, ErrInvalidURL, in)
	}
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", Domain("https://WWW.Example.com/terms"))
	assert.Equal(t, "shop.example.com", Domain("https://shop.example.com"))
	assert.Equal(t, "", Domain("::bad"))
}
