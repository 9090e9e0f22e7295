// Package fetch runs the strategy chain that turns a candidate URL into
// a terminal fetch outcome: polite plain fetch with retries, content
// evaluation, and a headless render fallback for script-gated pages.
package fetch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brandsignal/harvester/internal/collector"
	"github.com/brandsignal/harvester/internal/metrics"
)

// Config tunes the chain's content thresholds and retry budget.
type Config struct {
	// MinBodyRunes is the minimum extracted body length for third-party
	// pages. Shorter bodies count as thin content.
	MinBodyRunes int
	// BrandMinBodyRunes is the lower threshold applied to brand-owned
	// pages.
	BrandMinBodyRunes int
	// MaxAttempts caps plain-fetch attempts per URL.
	MaxAttempts int
}

func (c *Config) applyDefaults() {
	if c.MinBodyRunes <= 0 {
		c.MinBodyRunes = 200
	}
	if c.BrandMinBodyRunes <= 0 {
		c.BrandMinBodyRunes = 80
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
}

// Chain coordinates the limiter, plain fetcher, renderer and extractor
// for one URL at a time. The chain itself holds no mutable state, so
// one Chain serves every worker and every run; render-preference
// memory travels with the per-run RenderPrefs passed into Run.
type Chain struct {
	fetcher   collector.Fetcher
	renderer  collector.Renderer
	limiter   collector.OriginLimiter
	extractor collector.Extractor
	retry     *RetryPolicy
	cfg       Config
	logger    *zap.Logger
}

// NewChain wires the chain. The renderer may be headless.Noop when
// rendering is disabled.
func NewChain(
	cfg Config,
	fetcher collector.Fetcher,
	renderer collector.Renderer,
	limiter collector.OriginLimiter,
	extractor collector.Extractor,
	logger *zap.Logger,
) *Chain {
	cfg.applyDefaults()
	return &Chain{
		fetcher:   fetcher,
		renderer:  renderer,
		limiter:   limiter,
		extractor: extractor,
		retry:     NewRetryPolicy(cfg.MaxAttempts),
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes the chain for one URL and always returns a terminal
// result. Learned render preferences are read from and written to
// prefs; a nil prefs disables the shortcut and the learning. When the
// render fallback itself fails, the plain-fetch outcome is returned
// untouched so the original error stays visible.
func (c *Chain) Run(ctx context.Context, url string, brandOwned bool, prefs *RenderPrefs) collector.FetchResult {
	origin := collector.Origin(url)

	if prefs != nil && prefs.Requires(origin) {
		metrics.ObserveRenderFallback("direct")
		result := c.renderOnly(ctx, url, brandOwned)
		metrics.ObserveFetch(url, string(result.Status))
		return result
	}

	plain := c.plainFetch(ctx, url, brandOwned)
	if !c.renderEligible(plain) {
		metrics.ObserveFetch(url, string(plain.Status))
		return plain
	}

	rendered, err := c.renderFetch(ctx, url)
	if err != nil {
		metrics.ObserveRenderFallback("failed")
		c.logger.Debug("render fallback failed, keeping plain outcome",
			zap.String("url", url), zap.Error(err))
		metrics.ObserveFetch(url, string(plain.Status))
		return plain
	}

	verdict := c.evaluate(url, rendered, brandOwned)
	if verdict.Status != collector.StatusSuccess {
		metrics.ObserveRenderFallback("unhelpful")
		metrics.ObserveFetch(url, string(plain.Status))
		return plain
	}

	metrics.ObserveRenderFallback("success")
	if prefs != nil {
		prefs.Mark(origin)
	}
	c.logger.Debug("origin marked as render-required", zap.String("origin", origin))
	metrics.ObserveFetch(url, string(verdict.Status))
	return verdict
}

// plainFetch runs the rate-limited HTTP fetch with retries and
// classifies the response.
func (c *Chain) plainFetch(ctx context.Context, url string, brandOwned bool) collector.FetchResult {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := c.limiter.WaitForOrigin(ctx, url); err != nil {
			return networkFailure(url, fmt.Errorf("rate limit wait: %w", err))
		}

		resp, err := c.fetcher.Fetch(ctx, url)
		if err == nil {
			return c.evaluate(url, resp, brandOwned)
		}
		lastErr = err
		if !c.retry.ShouldRetry(err, attempt) {
			break
		}

		backoff := c.retry.Backoff(attempt)
		c.logger.Debug("retrying fetch",
			zap.String("url", url), zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return networkFailure(url, ctx.Err())
		}
	}
	return networkFailure(url, lastErr)
}

// renderOnly serves origins already known to require rendering. There
// is no plain outcome to fall back on, so a render error is terminal.
func (c *Chain) renderOnly(ctx context.Context, url string, brandOwned bool) collector.FetchResult {
	resp, err := c.renderFetch(ctx, url)
	if err != nil {
		return networkFailure(url, err)
	}
	return c.evaluate(url, resp, brandOwned)
}

func (c *Chain) renderFetch(ctx context.Context, url string) (collector.FetchResponse, error) {
	if err := c.limiter.WaitForOrigin(ctx, url); err != nil {
		return collector.FetchResponse{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.renderer.Render(ctx, url)
}

// renderEligible reports whether the plain outcome is one rendering can
// plausibly improve. Network failures stay final: an unreachable host
// is just as unreachable from a browser.
func (c *Chain) renderEligible(result collector.FetchResult) bool {
	switch result.Status {
	case collector.StatusThinContent, collector.StatusAccessDenied:
		return true
	case collector.StatusHTTPError:
		return result.ErrorPage
	}
	return false
}

func networkFailure(url string, err error) collector.FetchResult {
	return collector.FetchResult{
		URL:    url,
		Status: collector.StatusNetworkError,
		Err:    err,
	}
}
