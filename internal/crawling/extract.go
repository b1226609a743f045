package crawling

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TOSLinkKeywords mark links that likely lead to legal documents.
var TOSLinkKeywords = []string{
	"terms",
	"tos",
	"legal",
	"privacy",
	"policy",
	"agreement",
	"conditions",
	"eula",
}

// IsTOSLink reports whether a link's path or anchor text mentions a legal keyword.
func IsTOSLink(path, anchorText string) bool {
	path = strings.ToLower(path)
	anchorText = strings.ToLower(anchorText)
	for _, kw := range TOSLinkKeywords {
		if strings.Contains(path, kw) || strings.Contains(anchorText, kw) {
			return true
		}
	}
	return false
}

// ExtractTOSLinks extracts same-site links whose path or text looks like a
// legal document, normalized and in document order.
func ExtractTOSLinks(htmlContent string, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &LinkExtractionError{BaseURL: baseURL, Message: "failed to parse base URL", Cause: err}
	}

	if base.Scheme == "" || base.Host == "" {
		return nil, &LinkExtractionError{BaseURL: baseURL, Message: "must have scheme and host"}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, &LinkExtractionError{BaseURL: baseURL, Message: "failed to parse HTML", Cause: err}
	}

	site := Domain(baseURL)
	linkSet := make(map[string]bool)
	links := make([]string, 0)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return
		}

		linkURL, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			// Skip malformed URLs
			return
		}

		absoluteURL := base.ResolveReference(linkURL)

		// www. and bare host are the same site
		if Domain(absoluteURL.String()) != site {
			return
		}
		if !IsTOSLink(absoluteURL.Path, s.Text()) {
			return
		}

		normalized, err := NormalizeURL(absoluteURL.String())
		if err != nil {
			return
		}

		if !linkSet[normalized] {
			linkSet[normalized] = true
			links = append(links, normalized)
		}
	})

	return links, nil
}
