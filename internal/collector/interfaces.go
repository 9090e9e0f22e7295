package collector

import (
	"context"
)

// SearchPage is one page of ranked results from the search provider.
// An empty NextPageToken means the provider has no further pages.
type SearchPage struct {
	Results       []Candidate
	NextPageToken string
}

// SearchProvider returns ranked URL/snippet pairs for a query, one page
// at a time. Provider-level rate limiting is the provider's own concern.
type SearchProvider interface {
	Search(ctx context.Context, query string, pageToken string) (SearchPage, error)
}

// Fetcher performs a single plain HTTP fetch.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Renderer fetches a URL through a full browser session so client-side
// scripts run before the DOM is captured.
type Renderer interface {
	Render(ctx context.Context, url string) (FetchResponse, error)
}

// Classifier assigns a URL to an ownership tier.
type Classifier interface {
	Classify(url string) Classification
}

// Extractor produces a best-effort title and body text from raw markup.
type Extractor interface {
	Extract(rawHTML []byte) (title string, body string)
}

// OriginLimiter blocks the caller until a request to the URL's origin is
// polite, reserving the next slot for that origin.
type OriginLimiter interface {
	WaitForOrigin(ctx context.Context, url string) error
}

// PageStore persists run and page metadata.
type PageStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, errText string, stats RunStats) error
	RecordPage(ctx context.Context, runID string, page Page) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListPages(ctx context.Context, runID string) ([]Page, error)
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes run-completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
