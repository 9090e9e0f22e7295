package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brandsignal/harvester/internal/collector"
	"github.com/brandsignal/harvester/internal/fetch"
)

type fakeProvider struct {
	mu       sync.Mutex
	pages    []collector.SearchPage
	firstErr error
	calls    int
}

func (p *fakeProvider) Search(_ context.Context, _ string, _ string) (collector.SearchPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i == 0 && p.firstErr != nil {
		return collector.SearchPage{}, p.firstErr
	}
	if i >= len(p.pages) {
		return collector.SearchPage{}, nil
	}
	return p.pages[i], nil
}

// pagesOf splits candidates into search pages of the given size and
// chains them with page tokens.
func pagesOf(size int, urls ...string) []collector.SearchPage {
	var pages []collector.SearchPage
	for start := 0; start < len(urls); start += size {
		end := start + size
		if end > len(urls) {
			end = len(urls)
		}
		page := collector.SearchPage{}
		for rank, u := range urls[start:end] {
			page.Results = append(page.Results, collector.Candidate{URL: u, Rank: start + rank + 1})
		}
		if end < len(urls) {
			page.NextPageToken = "next"
		}
		pages = append(pages, page)
	}
	return pages
}

type fakeChain struct {
	mu       sync.Mutex
	outcomes map[string]collector.FetchStatus
	calls    map[string]int
	prefs    []*fetch.RenderPrefs
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		outcomes: make(map[string]collector.FetchStatus),
		calls:    make(map[string]int),
	}
}

func (c *fakeChain) Run(_ context.Context, url string, _ bool, prefs *fetch.RenderPrefs) collector.FetchResult {
	c.mu.Lock()
	c.calls[url]++
	c.prefs = append(c.prefs, prefs)
	status, scripted := c.outcomes[url]
	c.mu.Unlock()
	if !scripted {
		status = collector.StatusSuccess
	}
	if status != collector.StatusSuccess {
		return collector.FetchResult{URL: url, Status: status, Err: errors.New(string(status))}
	}
	return collector.FetchResult{
		URL:    url,
		Status: collector.StatusSuccess,
		Title:  "Title for " + url,
		Body:   strings.Repeat("content ", 50),
	}
}

func (c *fakeChain) callCount(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[url]
}

// hostClassifier treats acme.com as the brand's core domain and its
// subdomains as brand content.
type hostClassifier struct{}

func (hostClassifier) Classify(url string) collector.Classification {
	switch {
	case strings.Contains(url, "://acme.com") || strings.Contains(url, "://www.acme.com"):
		return collector.Classification{
			SourceType: collector.SourceBrandOwned,
			Tier:       collector.TierPrimaryWebsite,
			CoreDomain: true,
		}
	case strings.Contains(url, ".acme.com"):
		return collector.Classification{
			SourceType: collector.SourceBrandOwned,
			Tier:       collector.TierBrandContent,
		}
	default:
		return collector.Classification{
			SourceType: collector.SourceThirdParty,
			Tier:       collector.TierUnknown,
		}
	}
}

type recordingStore struct {
	mu      sync.Mutex
	created []collector.Run
	updates []collector.RunStatus
	pages   []collector.Page
}

func (s *recordingStore) CreateRun(_ context.Context, run collector.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, run)
	return nil
}

func (s *recordingStore) UpdateRunStatus(_ context.Context, _ string, status collector.RunStatus, _ string, _ collector.RunStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, status)
	return nil
}

func (s *recordingStore) RecordPage(_ context.Context, _ string, page collector.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, page)
	return nil
}

func (s *recordingStore) GetRun(context.Context, string) (collector.Run, error) {
	return collector.Run{}, errors.New("not implemented")
}

func (s *recordingStore) ListPages(context.Context, string) ([]collector.Page, error) {
	return nil, errors.New("not implemented")
}

func newTestEngine(cfg Config, provider collector.SearchProvider, chain Runner, store collector.PageStore) *Engine {
	return New(cfg, Deps{
		Provider:   provider,
		Chain:      chain,
		Classifier: hostClassifier{},
		Store:      store,
		Logger:     zap.NewNop(),
	})
}

func TestCollectMeetsTarget(t *testing.T) {
	provider := &fakeProvider{pages: pagesOf(10,
		"https://acme.com/",
		"https://blog.acme.com/post",
		"https://reviews.example/acme",
		"https://forum.example/thread",
		"https://extra1.example/a",
		"https://extra2.example/b",
	)}
	chain := newFakeChain()
	store := &recordingStore{}
	eng := newTestEngine(Config{
		Target:            4,
		BrandRatio:        0.5,
		DomainCapFraction: 1,
		Workers:           4,
	}, provider, chain, store)

	result, err := eng.Collect(context.Background(), "acme shoes")
	require.NoError(t, err)
	require.Equal(t, collector.RunStatusDone, result.Run.Status)
	require.Len(t, result.Pages, 4)
	require.Equal(t, 4, result.Run.Stats.Accepted)

	// Core-domain page sorts first in the deterministic output order.
	require.Equal(t, "https://acme.com/", result.Pages[0].URL)
	require.True(t, result.Pages[0].CoreDomain)

	require.Len(t, store.created, 1)
	require.Equal(t, []collector.RunStatus{collector.RunStatusDone}, store.updates)
	require.Len(t, store.pages, 4)
}

func TestCollectExhaustsCandidates(t *testing.T) {
	provider := &fakeProvider{pages: pagesOf(10,
		"https://acme.com/",
		"https://down.example/a",
		"https://slow.example/b",
	)}
	chain := newFakeChain()
	chain.outcomes["https://down.example/a"] = collector.StatusNetworkError
	chain.outcomes["https://slow.example/b"] = collector.StatusThinContent
	eng := newTestEngine(Config{
		Target:            10,
		BrandRatio:        0.5,
		DomainCapFraction: 1,
		Workers:           2,
	}, provider, chain, nil)

	result, err := eng.Collect(context.Background(), "acme")
	require.NoError(t, err, "candidate failures never fail the run")
	require.Equal(t, collector.RunStatusDone, result.Run.Status)
	require.Len(t, result.Pages, 1)
	require.Equal(t, 1, result.Run.Stats.NetworkErrors)
	require.Equal(t, 1, result.Run.Stats.ThinContent)
	require.Equal(t, 3, result.Run.Stats.Attempted)
}

func TestCollectFirstSearchPageFailureIsFatal(t *testing.T) {
	provider := &fakeProvider{firstErr: errors.New("api key rejected")}
	store := &recordingStore{}
	eng := newTestEngine(Config{Target: 5, Workers: 2}, provider, newFakeChain(), store)

	result, err := eng.Collect(context.Background(), "acme")
	require.Error(t, err)
	require.Equal(t, collector.RunStatusFailed, result.Run.Status)
	require.Contains(t, result.Run.ErrorText, "api key rejected")
	require.Empty(t, result.Pages)
	require.Equal(t, []collector.RunStatus{collector.RunStatusFailed}, store.updates)
}

func TestCollectEmptyFirstPageIsFatal(t *testing.T) {
	provider := &fakeProvider{pages: []collector.SearchPage{{}}}
	eng := newTestEngine(Config{Target: 5, Workers: 2}, provider, newFakeChain(), nil)

	_, err := eng.Collect(context.Background(), "acme")
	require.ErrorIs(t, err, ErrNoResults)
}

func TestProducerDedupesAndFiltersLoginPages(t *testing.T) {
	provider := &fakeProvider{pages: pagesOf(10,
		"https://acme.com/page",
		"https://ACME.com/page",
		"https://acme.com/page#section",
		"https://shop.example/login",
		"https://blog.example/post",
	)}
	chain := newFakeChain()
	eng := newTestEngine(Config{
		Target:            10,
		BrandRatio:        0.5,
		DomainCapFraction: 1,
		Workers:           1,
	}, provider, chain, nil)

	result, err := eng.Collect(context.Background(), "acme")
	require.NoError(t, err)

	require.Equal(t, 1, chain.callCount("https://acme.com/page"),
		"case and fragment variants collapse to one fetch")
	require.Zero(t, chain.callCount("https://shop.example/login"))
	require.Equal(t, 1, result.Run.Stats.LoginPages)
	require.Equal(t, 2, result.Run.Stats.Attempted)
}

// markingChain marks an origin in the run's render preference store on
// every call and records whether the store already knew the origin when
// the call arrived.
type markingChain struct {
	*fakeChain
	origin       string
	mu           sync.Mutex
	knownAtEntry []bool
}

func (c *markingChain) Run(ctx context.Context, url string, brandOwned bool, prefs *fetch.RenderPrefs) collector.FetchResult {
	c.mu.Lock()
	c.knownAtEntry = append(c.knownAtEntry, prefs.Requires(c.origin))
	c.mu.Unlock()
	prefs.Mark(c.origin)
	return c.fakeChain.Run(ctx, url, brandOwned, prefs)
}

func TestCollectRunsIsolateRenderPrefs(t *testing.T) {
	page := pagesOf(10, "https://spa.example/a")[0]
	provider := &fakeProvider{pages: []collector.SearchPage{page, page}}
	chain := &markingChain{fakeChain: newFakeChain(), origin: "spa.example"}
	eng := newTestEngine(Config{
		Target:            1,
		BrandRatio:        0,
		DomainCapFraction: 1,
		Workers:           1,
	}, provider, chain, nil)

	_, err := eng.Collect(context.Background(), "acme")
	require.NoError(t, err)
	_, err = eng.Collect(context.Background(), "acme")
	require.NoError(t, err)

	require.Len(t, chain.prefs, 2)
	require.NotSame(t, chain.prefs[0], chain.prefs[1],
		"each run gets its own render preference store")
	require.Equal(t, []bool{false, false}, chain.knownAtEntry,
		"origins learned in one run must not leak into another")
}

func TestCollectHonorsTierTargets(t *testing.T) {
	var urls []string
	for i := 0; i < 20; i++ {
		urls = append(urls,
			fmt.Sprintf("https://sub%02d.acme.com/p", i),
			fmt.Sprintf("https://third%02d.example/p", i),
		)
	}
	provider := &fakeProvider{pages: pagesOf(10, urls...)}
	chain := newFakeChain()
	eng := newTestEngine(Config{
		Target:            10,
		BrandRatio:        0.6,
		DomainCapFraction: 1,
		Workers:           1,
	}, provider, chain, nil)

	result, err := eng.Collect(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, collector.RunStatusDone, result.Run.Status)
	require.Len(t, result.Pages, 10)

	brand, third := 0, 0
	for _, p := range result.Pages {
		if p.SourceType == collector.SourceBrandOwned {
			brand++
		} else {
			third++
		}
	}
	require.Equal(t, 6, brand)
	require.Equal(t, 4, third)
	require.Less(t, result.Run.Stats.Attempted, len(urls),
		"dispatch stops once both sub-targets fill, surplus candidates stay queued")
}

func TestCollectStopsAtPoolCap(t *testing.T) {
	var urls []string
	for i := 0; i < 50; i++ {
		urls = append(urls, "https://site"+string(rune('a'+i%26))+".example/"+string(rune('a'+i/26)))
	}
	provider := &fakeProvider{pages: pagesOf(10, urls...)}
	chain := newFakeChain()
	for _, u := range urls {
		chain.outcomes[u] = collector.StatusNetworkError
	}
	eng := newTestEngine(Config{
		Target:            2,
		BrandRatio:        0,
		DomainCapFraction: 1,
		Workers:           2,
		PoolMultiplier:    5,
	}, provider, chain, nil)

	result, err := eng.Collect(context.Background(), "acme")
	require.NoError(t, err)
	require.LessOrEqual(t, result.Run.Stats.Attempted, 10, "pool cap bounds total attempts")
	require.Empty(t, result.Pages)
}
