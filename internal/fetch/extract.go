package fetch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// TextExtractor turns raw HTML into plain text.
type TextExtractor interface {
	Extract(rawHTML, pageURL string) (string, error)
}

// ExtractionError is returned when an extractor cannot produce text. The
// coordinator treats it as an empty document.
type ExtractionError struct {
	URL   string
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error for %s: %v", e.URL, e.Cause)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// noiseSelector removes page chrome that never holds legal text.
const noiseSelector = "nav, header, footer, aside, script, style, noscript, iframe, svg, form, button, " +
	".ad, .advertisement, .ads, .sidebar, .cookie-banner, .popup, .modal, .newsletter, .share"

// DefaultTextSelectors returns selectors for the main content of legal pages.
func DefaultTextSelectors() []string {
	return []string{
		"main",
		"article",
		"[role='main']",
		".terms",
		".legal",
		".content",
		"#content",
		".main-content",
		"#main-content",
	}
}

// GoqueryExtractor keeps the first matching content region and drops noise.
type GoqueryExtractor struct {
	Selectors []string
}

// NewGoqueryExtractor returns an extractor using DefaultTextSelectors.
func NewGoqueryExtractor() *GoqueryExtractor {
	return &GoqueryExtractor{Selectors: DefaultTextSelectors()}
}

// Extract implements TextExtractor.
func (g *GoqueryExtractor) Extract(rawHTML, pageURL string) (string, error) {
	text, err := ExtractMainText(rawHTML, g.Selectors)
	if err != nil {
		return "", &ExtractionError{URL: pageURL, Cause: err}
	}
	return text, nil
}

// ExtractMainText parses HTML and returns the main body text.
// It removes noise elements, then finds content using contentSelectors.
// If no content selectors match, it falls back to the body element.
func ExtractMainText(html string, contentSelectors []string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find(noiseSelector).Remove()

	var mainContent *goquery.Selection
	for _, selector := range contentSelectors {
		if selection := doc.Find(selector); selection.Length() > 0 {
			mainContent = selection.First()
			break
		}
	}

	if mainContent == nil {
		mainContent = doc.Find("body")
	}

	// Block elements are separated so their text does not run together.
	mainContent.Find("p, div, li, br, h1, h2, h3, h4, h5, h6, tr, section").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return cleanWhitespace(mainContent.Text()), nil
}

// ExtractTitle returns the trimmed <title> of a page, or "".
func ExtractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// ReadabilityExtractor extracts the readable article body and falls back
// to Fallback when readability finds nothing.
type ReadabilityExtractor struct {
	Fallback TextExtractor
}

// NewReadabilityExtractor returns a readability extractor that falls back to goquery.
func NewReadabilityExtractor() *ReadabilityExtractor {
	return &ReadabilityExtractor{Fallback: NewGoqueryExtractor()}
}

// Extract implements TextExtractor.
func (r *ReadabilityExtractor) Extract(rawHTML, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", &ExtractionError{URL: pageURL, Cause: err}
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), u)
	if err == nil {
		if text := cleanWhitespace(article.TextContent); text != "" {
			return text, nil
		}
	}

	if r.Fallback == nil {
		if err == nil {
			err = fmt.Errorf("no readable content")
		}
		return "", &ExtractionError{URL: pageURL, Cause: err}
	}
	return r.Fallback.Extract(rawHTML, pageURL)
}

// cleanWhitespace trims every line and drops blank ones.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
