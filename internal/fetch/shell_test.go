package fetch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsJSShell(t *testing.T) {
	tests := []struct {
		name string
		html string
		want bool
	}{
		{"noscript notice", `<noscript>Please enable JavaScript to continue.</noscript>`, true},
		{"empty react root", `<body><div id="root"></div><script src="/app.js"></script></body>`, true},
		{"empty next mount", `<body><div id='__next'>  </div></body>`, true},
		{"populated root", `<body><div id="root"><p>Terms</p></div></body>`, false},
		{"plain page", `<body><main>Terms of Service</main></body>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsJSShell(tt.html))
		})
	}
}

func TestShouldUseBrowser(t *testing.T) {
	long := strings.Repeat("x", MinContentLength)

	assert.True(t, ShouldUseBrowser("short", "<p>short</p>", 0))
	assert.False(t, ShouldUseBrowser(long, "<p>ok</p>", 0))
	assert.True(t, ShouldUseBrowser(long, `<div id="app"></div>`, 0))
	assert.False(t, ShouldUseBrowser("tiny", "<p>tiny</p>", 3))
}
