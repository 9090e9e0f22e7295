// Package serper implements the search provider on top of the
// serper.dev Google Search API.
package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/brandsignal/harvester/internal/collector"
)

const (
	defaultEndpoint = "https://google.serper.dev/search"
	resultsPerPage  = 10
)

// ErrUnauthorized indicates the API rejected the key. The condition is
// permanent for the run, so callers should not retry.
var ErrUnauthorized = errors.New("serper: unauthorized")

// Config holds client settings.
type Config struct {
	APIKey string
	// Endpoint overrides the API URL, mainly for tests.
	Endpoint string
	// QPS caps requests per second toward the API.
	QPS float64
	// Timeout bounds a single API call.
	Timeout time.Duration
}

// Client implements collector.SearchProvider.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.QPS <= 0 {
		cfg.QPS = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.QPS), 1),
		logger:  logger,
	}
}

type searchRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`
	Page  int    `json:"page"`
}

type organicResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

type searchResponse struct {
	Organic []organicResult `json:"organic"`
}

// Search fetches one page of results. The page token is the 1-based
// page number; an empty token means the first page.
func (c *Client) Search(ctx context.Context, query string, pageToken string) (collector.SearchPage, error) {
	page := 1
	if pageToken != "" {
		parsed, err := strconv.Atoi(pageToken)
		if err != nil || parsed < 1 {
			return collector.SearchPage{}, fmt.Errorf("serper: bad page token %q", pageToken)
		}
		page = parsed
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return collector.SearchPage{}, fmt.Errorf("serper: limiter wait: %w", err)
	}

	payload, err := json.Marshal(searchRequest{Query: query, Num: resultsPerPage, Page: page})
	if err != nil {
		return collector.SearchPage{}, fmt.Errorf("serper: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return collector.SearchPage{}, fmt.Errorf("serper: build request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return collector.SearchPage{}, fmt.Errorf("serper: request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return collector.SearchPage{}, fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return collector.SearchPage{}, fmt.Errorf("serper: status %d: %s", resp.StatusCode, body)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return collector.SearchPage{}, fmt.Errorf("serper: decode response: %w", err)
	}

	out := collector.SearchPage{}
	for _, r := range parsed.Organic {
		if r.Link == "" {
			continue
		}
		rank := r.Position
		if rank == 0 {
			rank = len(out.Results) + 1
		}
		out.Results = append(out.Results, collector.Candidate{
			URL:     r.Link,
			Query:   query,
			Rank:    (page-1)*resultsPerPage + rank,
			Title:   r.Title,
			Snippet: r.Snippet,
		})
	}
	// A short page means the provider ran out of results.
	if len(parsed.Organic) == resultsPerPage {
		out.NextPageToken = strconv.Itoa(page + 1)
	}
	c.logger.Debug("search page fetched",
		zap.String("query", query), zap.Int("page", page),
		zap.Int("results", len(out.Results)))
	return out, nil
}
