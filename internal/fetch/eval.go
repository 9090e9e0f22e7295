package fetch

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/brandsignal/harvester/internal/collector"
)

// Title substrings that reveal a soft error page served with a 200.
var errorTitleMarkers = []string{
	"404",
	"403",
	"not found",
	"access denied",
	"forbidden",
	"server error",
	"page unavailable",
	"an error occurred",
	"attention required",
	"just a moment",
}

func isErrorPageTitle(title string) bool {
	lower := strings.ToLower(title)
	if lower == "" {
		return false
	}
	for _, marker := range errorTitleMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isAccessDenied(statusCode int) bool {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}

// evaluate classifies a raw response into a terminal fetch outcome.
// Brand-owned pages get a lower body threshold because legitimate
// product pages often carry little prose.
func (c *Chain) evaluate(url string, resp collector.FetchResponse, brandOwned bool) collector.FetchResult {
	result := collector.FetchResult{
		URL:        url,
		StatusCode: resp.StatusCode,
		RawHTML:    resp.Body,
		Duration:   resp.Duration,
		Rendered:   resp.Rendered,
	}

	switch {
	case isAccessDenied(resp.StatusCode):
		result.Status = collector.StatusAccessDenied
		return result
	case resp.StatusCode >= 400:
		result.Status = collector.StatusHTTPError
		return result
	}

	title, body := c.extractor.Extract(resp.Body)
	result.Title = title
	result.Body = body

	if isErrorPageTitle(title) {
		result.Status = collector.StatusHTTPError
		result.ErrorPage = true
		return result
	}

	minRunes := c.cfg.MinBodyRunes
	if brandOwned {
		minRunes = c.cfg.BrandMinBodyRunes
	}
	if utf8.RuneCountInString(body) < minRunes {
		result.Status = collector.StatusThinContent
		return result
	}

	result.Status = collector.StatusSuccess
	return result
}
