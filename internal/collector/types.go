// Package collector defines the core types shared across the page
// collection engine: candidates produced by the search provider, fetch
// outcomes, and the accepted pages handed to downstream consumers.
package collector

import (
	"net/http"
	"time"
)

// RunStatus represents the lifecycle state of a collection run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusTargetMet RunStatus = "target_met"
	RunStatusExhausted RunStatus = "exhausted"
	RunStatusDone      RunStatus = "done"
	RunStatusFailed    RunStatus = "failed"
)

// FetchStatus classifies the terminal outcome of a fetch attempt.
type FetchStatus string

// Fetch outcome values. Every attempt ends in exactly one of these.
const (
	StatusSuccess      FetchStatus = "success"
	StatusHTTPError    FetchStatus = "http_error"
	StatusThinContent  FetchStatus = "thin_content"
	StatusAccessDenied FetchStatus = "access_denied"
	StatusNetworkError FetchStatus = "network_error"
)

// Candidate is a URL emitted by the search provider, with provenance.
// Candidates are immutable and consumed exactly once by a fetch worker.
type Candidate struct {
	URL     string
	Query   string
	Rank    int
	Title   string
	Snippet string
}

// FetchResponse is the raw result returned by a Fetcher or Renderer.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// FetchResult is the classified outcome of running the fetch strategy
// chain for one URL. Body and the extracted title/body text are only
// populated on success.
type FetchResult struct {
	URL        string
	Status     FetchStatus
	StatusCode int
	Title      string
	Body       string
	RawHTML    []byte
	Duration   time.Duration
	Rendered   bool
	// ErrorPage marks a 200 response whose title reveals a soft error
	// page ("404 Not Found" served with a success status).
	ErrorPage bool
	Err       error
}

// Page is an accepted output unit. Ownership transfers to the caller
// when the run finishes.
type Page struct {
	URL        string
	Title      string
	Body       string
	SourceType SourceType
	Tier       Tier
	CoreDomain bool
	Rendered   bool
	Rank       int
	FetchedAt  time.Time
	Duration   time.Duration
}

// RunStats aggregates per-reason reject counters for operator reporting.
// Failed candidates never abort a run; they only show up here.
type RunStats struct {
	Attempted      int `json:"attempted"`
	Accepted       int `json:"accepted"`
	ThinContent    int `json:"thin_content"`
	HTTPErrors     int `json:"http_errors"`
	AccessDenied   int `json:"access_denied"`
	NetworkErrors  int `json:"network_errors"`
	ErrorPages     int `json:"error_pages"`
	OverTierQuota  int `json:"over_tier_quota"`
	OverDomainCap  int `json:"over_domain_cap"`
	LoginPages     int `json:"login_pages"`
	RenderAssisted int `json:"render_assisted"`
}

// Run captures the metadata persisted for one collection run.
type Run struct {
	ID        string     `json:"id"`
	Query     string     `json:"query"`
	Status    RunStatus  `json:"status"`
	Submitted time.Time  `json:"submitted_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
	ErrorText string     `json:"error_text,omitempty"`
	Stats     RunStats   `json:"stats"`
}
