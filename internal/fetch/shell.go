package fetch

import (
	"regexp"
	"strings"
)

// MinContentLength is the minimum extracted text length to consider a static
// fetch successful. Shorter text falls back to browser rendering.
const MinContentLength = 500

// MinDocumentLength is the shortest extracted text kept as a document. Shorter
// pages are recorded as empty.
const MinDocumentLength = 100

// emptyMountRe matches the empty root element a client-side app renders into.
var emptyMountRe = regexp.MustCompile(`(?i)<div[^>]+id=["'](root|__next|app)["'][^>]*>\s*</div>`)

var shellMarkers = []string{
	"enable javascript",
	"javascript is required",
	"javascript must be enabled",
	"you need to enable javascript",
}

// IsJSShell reports whether rawHTML looks like a page that only renders with scripts.
func IsJSShell(rawHTML string) bool {
	lower := strings.ToLower(rawHTML)
	for _, m := range shellMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return emptyMountRe.MatchString(rawHTML)
}

// ShouldUseBrowser returns true if the extracted text is shorter than
// minLength or the HTML is a JavaScript shell.
func ShouldUseBrowser(extractedText, rawHTML string, minLength int) bool {
	if minLength <= 0 {
		minLength = MinContentLength
	}
	return len(strings.TrimSpace(extractedText)) < minLength || IsJSShell(rawHTML)
}
