// Package extract pulls a best-effort title and body text out of raw
// HTML. The body strategies are tried in order of preference; the first
// one yielding enough text wins.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	minPrimaryText    = 100
	minSecondaryText  = 150
	maxTitleRuneCount = 512
)

var contentClassPatterns = []string{
	"content", "post-content", "article-body", "article", "entry",
	"post", "body-text", "post-body", "main-content", "page-content",
	"story-body", "article-text", "article-content", "text-content",
}

var skipContainerMarkers = []string{
	"nav", "header", "footer", "menu", "sidebar", "widget", "ad",
}

// HTMLExtractor implements collector.Extractor with goquery selectors.
type HTMLExtractor struct{}

// New returns an HTMLExtractor.
func New() *HTMLExtractor {
	return &HTMLExtractor{}
}

// Extract parses the markup and returns (title, body). Both may be empty
// when the document has no usable text.
func (e *HTMLExtractor) Extract(rawHTML []byte) (string, string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return "", ""
	}
	return extractTitle(doc), extractBody(doc)
}

func extractTitle(doc *goquery.Document) string {
	title := squashSpace(doc.Find("title").First().Text())
	if title == "" {
		if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			title = squashSpace(og)
		}
	}
	if title == "" {
		if tw, ok := doc.Find(`meta[name="twitter:title"]`).Attr("content"); ok {
			title = squashSpace(tw)
		}
	}
	if runes := []rune(title); len(runes) > maxTitleRuneCount {
		title = string(runes[:maxTitleRuneCount])
	}
	return title
}

func extractBody(doc *goquery.Document) string {
	if body := squashSpace(doc.Find("article").First().Text()); len(body) >= minPrimaryText {
		return body
	}

	main := doc.Find("main").First()
	if main.Length() == 0 {
		main = doc.Find(`[role="main"]`).First()
	}
	if body := squashSpace(main.Text()); len(body) >= minPrimaryText {
		return body
	}

	if body := contentDivText(doc); body != "" {
		return body
	}

	if body := joinedParagraphText(doc); len(body) >= minPrimaryText {
		return body
	}

	if body := longestDivText(doc); len(body) >= minPrimaryText {
		return body
	}

	body := squashSpace(doc.Find("body").Text())
	if body == "" {
		// Meta descriptions are a last resort for script-only pages.
		if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
			body = squashSpace(desc)
		}
	}
	return body
}

func contentDivText(doc *goquery.Document) string {
	var found string
	doc.Find("div[class]").EachWithBreak(func(_ int, div *goquery.Selection) bool {
		class, _ := div.Attr("class")
		class = strings.ToLower(class)
		for _, pattern := range contentClassPatterns {
			if strings.Contains(class, pattern) {
				if text := squashSpace(div.Text()); len(text) >= minSecondaryText {
					found = text
					return false
				}
			}
		}
		return true
	})
	return found
}

func joinedParagraphText(doc *goquery.Document) string {
	var parts []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := squashSpace(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

func longestDivText(doc *goquery.Document) string {
	var longest string
	doc.Find("div").Each(func(_ int, div *goquery.Selection) {
		class, _ := div.Attr("class")
		id, _ := div.Attr("id")
		marker := strings.ToLower(class + id)
		for _, skip := range skipContainerMarkers {
			if strings.Contains(marker, skip) {
				return
			}
		}
		if text := squashSpace(div.Text()); len(text) > len(longest) {
			longest = text
		}
	})
	return longest
}

func squashSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
