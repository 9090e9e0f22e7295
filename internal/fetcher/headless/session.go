// Package headless renders pages through a shared headless Chrome
// session so client-side script runs before content extraction.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/brandsignal/harvester/internal/collector"
)

// ErrSessionClosed indicates the session manager has been shut down.
var ErrSessionClosed = errors.New("render session closed")

const defaultNavTimeout = 25 * time.Second

// Config controls the render session.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
}

// Session implements collector.Renderer on top of a single long-lived
// browser. The browser handle is not safe for concurrent use, so one
// dedicated goroutine owns it and callers reach it via request/response
// message passing. The browser starts lazily on the first request and is
// restarted once, transparently, if a render fails; a second consecutive
// failure is surfaced to the caller.
type Session struct {
	cfg    Config
	logger *zap.Logger

	startOnce sync.Once
	closeOnce sync.Once
	requests  chan renderRequest
	closed    chan struct{}
}

type renderRequest struct {
	ctx    context.Context
	url    string
	respCh chan renderResult
}

type renderResult struct {
	resp collector.FetchResponse
	err  error
}

// New creates a Session. No browser is launched until the first Render.
func New(cfg Config, logger *zap.Logger) *Session {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	return &Session{
		cfg:      cfg,
		logger:   logger,
		requests: make(chan renderRequest),
		closed:   make(chan struct{}),
	}
}

// Render fetches the URL through the browser session. The call blocks
// until the dedicated session goroutine produces a result or the
// caller's context ends.
func (s *Session) Render(ctx context.Context, url string) (collector.FetchResponse, error) {
	s.startOnce.Do(func() { go s.serve() })

	req := renderRequest{ctx: ctx, url: url, respCh: make(chan renderResult, 1)}
	select {
	case s.requests <- req:
	case <-s.closed:
		return collector.FetchResponse{}, ErrSessionClosed
	case <-ctx.Done():
		return collector.FetchResponse{}, fmt.Errorf("render queue wait: %w", ctx.Err())
	}

	select {
	case result := <-req.respCh:
		return result.resp, result.err
	case <-ctx.Done():
		// The session goroutine will still finish the in-flight render
		// and drop the buffered result.
		return collector.FetchResponse{}, fmt.Errorf("render wait: %w", ctx.Err())
	}
}

// Close tears down the browser and rejects further requests.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// serve owns the browser for the session lifetime. It is the only
// goroutine that ever touches the chromedp contexts.
func (s *Session) serve() {
	var browser *browserHandle
	defer func() {
		if browser != nil {
			browser.stop()
		}
	}()

	for {
		select {
		case <-s.closed:
			return
		case req := <-s.requests:
			var err error
			if browser == nil {
				browser, err = s.launch()
				if err != nil {
					req.respCh <- renderResult{err: fmt.Errorf("launch browser: %w", err)}
					continue
				}
			}

			resp, err := s.renderOnce(browser, req)
			if err != nil {
				// One transparent restart, then retry the in-flight URL.
				s.logger.Warn("render failed, restarting browser",
					zap.String("url", req.url), zap.Error(err))
				browser.stop()
				browser, err = s.launch()
				if err != nil {
					req.respCh <- renderResult{err: fmt.Errorf("relaunch browser: %w", err)}
					continue
				}
				resp, err = s.renderOnce(browser, req)
				if err != nil {
					req.respCh <- renderResult{err: fmt.Errorf("render after restart: %w", err)}
					continue
				}
			}
			req.respCh <- renderResult{resp: resp}
		}
	}
}

type browserHandle struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func (b *browserHandle) stop() {
	b.browserCancel()
	b.allocCancel()
}

func (s *Session) launch() (*browserHandle, error) {
	// GPU acceleration destabilizes headless rendering on some
	// platforms, so it stays off.
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if s.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser warmup: %w", err)
	}
	s.logger.Info("headless browser started")
	return &browserHandle{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

func (s *Session) renderOnce(browser *browserHandle, req renderRequest) (collector.FetchResponse, error) {
	tabCtx, cancelTab := chromedp.NewContext(browser.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, s.cfg.NavigationTimeout)
	defer cancelTask()

	stopForward := forwardCancel(req.ctx, cancelTask)
	defer stopForward()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	start := time.Now()
	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(s.cfg.UserAgent),
		chromedp.Navigate(req.url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return collector.FetchResponse{}, fmt.Errorf("chromedp run: %w", err)
	}

	status, headers, finalURL := meta.snapshot(req.url)
	return collector.FetchResponse{
		URL:        finalURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		Duration:   time.Since(start),
		Rendered:   true,
	}, nil
}

type responseMeta struct {
	once    sync.Once
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: make(http.Header)}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.once.Do(func() {
		m.status = int(resp.Response.Status)
		m.url = resp.Response.URL
		for k, v := range resp.Response.Headers {
			m.headers.Add(k, fmt.Sprint(v))
		}
	})
}

func (m *responseMeta) snapshot(requestURL string) (int, http.Header, string) {
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	url := m.url
	if url == "" {
		url = requestURL
	}
	return status, m.headers, url
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
