// Package engine drives a collection run: a search producer feeds a
// bounded candidate queue, a worker pool fetches and classifies pages,
// and the enforcer decides which pages make the final set.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brandsignal/harvester/internal/collector"
	"github.com/brandsignal/harvester/internal/enforcer"
	"github.com/brandsignal/harvester/internal/fetch"
	"github.com/brandsignal/harvester/internal/metrics"
	"github.com/brandsignal/harvester/internal/queue/memory"
)

// ErrNoResults indicates the search provider returned nothing for the
// query, which makes the whole run unservable.
var ErrNoResults = errors.New("search returned no results")

// RunEventTopic is the Pub/Sub topic for run lifecycle events.
const RunEventTopic = "harvester-run-events"

// Config tunes the run.
type Config struct {
	// Target is the total number of pages to collect.
	Target int
	// BrandRatio is the brand-owned share of Target, in [0,1].
	BrandRatio float64
	// DomainCapFraction bounds one domain's share of Target.
	DomainCapFraction float64
	// ExemptBrandDomains lifts the domain cap for brand-owned pages.
	ExemptBrandDomains bool
	// Workers is the fetch worker pool size.
	Workers int
	// QueueCapacity bounds the candidate queue; a full queue blocks the
	// producer.
	QueueCapacity int
	// PoolMultiplier caps total candidates at Target times this factor,
	// so a run over hostile ground terminates instead of paginating
	// forever.
	PoolMultiplier int
}

func (c *Config) applyDefaults() {
	if c.Target <= 0 {
		c.Target = 20
	}
	if c.BrandRatio < 0 || c.BrandRatio > 1 {
		c.BrandRatio = 0.5
	}
	if c.DomainCapFraction <= 0 {
		c.DomainCapFraction = 0.2
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 2 * c.Workers
	}
	if c.PoolMultiplier <= 0 {
		c.PoolMultiplier = 10
	}
}

// Runner executes the fetch strategy chain for one URL using the
// run-scoped render preference store.
type Runner interface {
	Run(ctx context.Context, url string, brandOwned bool, prefs *fetch.RenderPrefs) collector.FetchResult
}

// Deps wires the engine's collaborators. Store, Archive and Publisher
// are optional; a nil hook is skipped.
type Deps struct {
	Provider   collector.SearchProvider
	Chain      Runner
	Classifier collector.Classifier
	Store      collector.PageStore
	Archive    collector.BlobStore
	Publisher  collector.Publisher
	Logger     *zap.Logger
}

// Result is the outcome of one finished run.
type Result struct {
	Run   collector.Run
	Pages []collector.Page
}

// Engine runs collection runs. It is stateless between runs; all
// per-run state lives in locals so concurrent Collect calls do not
// interfere.
type Engine struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New builds an Engine.
func New(cfg Config, deps Deps) *Engine {
	cfg.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, deps: deps, logger: logger}
}

// Collect executes one run for the query and blocks until it reaches a
// terminal state. Individual candidate failures never fail the run;
// only an unservable query does.
func (e *Engine) Collect(ctx context.Context, query string) (Result, error) {
	return e.CollectRun(ctx, uuid.NewString(), query)
}

// CollectRun is Collect with a caller-chosen run ID, so the API can
// hand the ID back before the run finishes.
func (e *Engine) CollectRun(ctx context.Context, runID, query string) (Result, error) {
	run := collector.Run{
		ID:        runID,
		Query:     query,
		Status:    collector.RunStatusRunning,
		Submitted: time.Now().UTC(),
	}
	now := run.Submitted
	run.Started = &now

	logger := e.logger.With(zap.String("run_id", run.ID), zap.String("query", query))
	logger.Info("run started",
		zap.Int("target", e.cfg.Target),
		zap.Float64("brand_ratio", e.cfg.BrandRatio))

	if e.deps.Store != nil {
		if err := e.deps.Store.CreateRun(ctx, run); err != nil {
			return Result{}, fmt.Errorf("create run: %w", err)
		}
	}

	result, err := e.collect(ctx, logger, run)
	if e.deps.Store != nil {
		finished := result.Run
		if uerr := e.deps.Store.UpdateRunStatus(ctx, finished.ID, finished.Status, finished.ErrorText, finished.Stats); uerr != nil {
			logger.Error("persist run status failed", zap.Error(uerr))
		}
	}
	metrics.ObserveRun(string(result.Run.Status))
	e.publishRunEvent(ctx, logger, result.Run)
	return result, err
}

func (e *Engine) collect(ctx context.Context, logger *zap.Logger, run collector.Run) (Result, error) {
	// Render preferences are scoped to this run: every run re-tests
	// each origin, and concurrent runs never see each other's marks.
	prefs := fetch.NewRenderPrefs()

	enf := enforcer.New(enforcer.Config{
		Target:             e.cfg.Target,
		BrandRatio:         e.cfg.BrandRatio,
		DomainCapFraction:  e.cfg.DomainCapFraction,
		ExemptBrandDomains: e.cfg.ExemptBrandDomains,
	})
	stats := &runStats{}
	q := memory.NewQueue(e.cfg.QueueCapacity)

	prodCtx, cancelProducer := context.WithCancel(ctx)
	defer cancelProducer()

	prodErr := make(chan error, 1)
	go func() {
		prodErr <- e.produce(prodCtx, logger, q, enf, stats, run.Query)
	}()

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(ctx, logger, q, enf, stats, prefs, run.ID)
		}()
	}
	wg.Wait()
	cancelProducer()
	err := <-prodErr

	finished := time.Now().UTC()
	run.Finished = &finished
	run.Stats = stats.snapshot()

	if err != nil && run.Stats.Attempted == 0 {
		// The first search page never materialized; there is nothing
		// to salvage.
		run.Status = collector.RunStatusFailed
		run.ErrorText = err.Error()
		logger.Error("run failed", zap.Error(err))
		return Result{Run: run}, fmt.Errorf("run %s: %w", run.ID, err)
	}

	if enf.Done() {
		run.Status = collector.RunStatusTargetMet
	} else {
		run.Status = collector.RunStatusExhausted
	}
	logger.Info("collection stopped", zap.String("state", string(run.Status)))

	// Finalizing the output set is the transition into the terminal
	// DONE state regardless of whether the target was met.
	pages := enf.Finalize()
	run.Status = collector.RunStatusDone

	brand, third := enf.Counts()
	logger.Info("run finished",
		zap.Int("accepted", len(pages)),
		zap.Int("brand", brand),
		zap.Int("third_party", third),
		zap.Int("attempted", run.Stats.Attempted))
	return Result{Run: run, Pages: pages}, nil
}

// produce paginates the search provider into the queue. It dedupes on
// normalized URLs, drops login and cart pages, and stops at the pool
// cap or once the enforcer is satisfied. The first page is load-bearing;
// later page failures just end pagination early.
func (e *Engine) produce(
	ctx context.Context,
	logger *zap.Logger,
	q *memory.Queue,
	enf *enforcer.Enforcer,
	stats *runStats,
	query string,
) error {
	defer q.Close()

	poolCap := e.cfg.Target * e.cfg.PoolMultiplier
	seen := make(map[string]struct{})
	produced := 0
	pageToken := ""
	firstPage := true
	batchLeft := NextBatchSize(0, 0, e.cfg.Target, e.cfg.Target)

	for produced < poolCap && !enf.Done() {
		page, err := e.deps.Provider.Search(ctx, query, pageToken)
		if err != nil {
			if firstPage {
				return fmt.Errorf("search %q: %w", query, err)
			}
			logger.Warn("search pagination stopped", zap.Error(err))
			return nil
		}
		if firstPage && len(page.Results) == 0 {
			return fmt.Errorf("search %q: %w", query, ErrNoResults)
		}
		firstPage = false

		for _, cand := range page.Results {
			if produced >= poolCap || enf.Done() {
				return nil
			}
			normalized, err := collector.NormalizeURL(cand.URL)
			if err != nil {
				continue
			}
			if _, dup := seen[normalized]; dup {
				continue
			}
			seen[normalized] = struct{}{}
			if collector.IsLoginPage(normalized) {
				stats.observeLoginPage()
				metrics.ObserveReject("login_page")
				continue
			}
			cand.URL = normalized
			if err := q.Enqueue(ctx, cand); err != nil {
				return nil
			}
			produced++
			batchLeft--
		}

		if page.NextPageToken == "" {
			logger.Info("search exhausted", zap.Int("produced", produced))
			return nil
		}
		pageToken = page.NextPageToken

		if batchLeft <= 0 {
			attempted, accepted := stats.progress()
			needed := e.cfg.Target - accepted
			batchLeft = NextBatchSize(attempted, accepted, needed, e.cfg.Target)
			if batchLeft <= 0 {
				return nil
			}
		}
	}
	return nil
}

// work consumes candidates until the queue drains or the target is met.
func (e *Engine) work(
	ctx context.Context,
	logger *zap.Logger,
	q *memory.Queue,
	enf *enforcer.Enforcer,
	stats *runStats,
	prefs *fetch.RenderPrefs,
	runID string,
) {
	for {
		if enf.Done() {
			return
		}
		cand, err := q.Dequeue(ctx)
		if err != nil {
			return
		}

		metrics.IncActiveWorkers()
		e.handle(ctx, logger, enf, stats, prefs, runID, cand)
		metrics.DecActiveWorkers()
	}
}

func (e *Engine) handle(
	ctx context.Context,
	logger *zap.Logger,
	enf *enforcer.Enforcer,
	stats *runStats,
	prefs *fetch.RenderPrefs,
	runID string,
	cand collector.Candidate,
) {
	cls := e.deps.Classifier.Classify(cand.URL)
	res := e.deps.Chain.Run(ctx, cand.URL, cls.BrandOwned(), prefs)
	stats.observeOutcome(res)

	if res.Status != collector.StatusSuccess {
		logger.Debug("candidate rejected",
			zap.String("url", cand.URL),
			zap.String("status", string(res.Status)),
			zap.Error(res.Err))
		return
	}

	page := collector.Page{
		URL:        res.URL,
		Title:      res.Title,
		Body:       res.Body,
		SourceType: cls.SourceType,
		Tier:       cls.Tier,
		CoreDomain: cls.CoreDomain,
		Rendered:   res.Rendered,
		Rank:       cand.Rank,
		FetchedAt:  time.Now().UTC(),
		Duration:   res.Duration,
	}

	ok, reason := enf.Offer(page)
	if !ok {
		stats.observeReject(reason)
		logger.Debug("page rejected by enforcer",
			zap.String("url", page.URL), zap.String("reason", reason))
		return
	}
	stats.observeAccept(res.Rendered)

	if e.deps.Archive != nil && len(res.RawHTML) > 0 {
		// Content-addressed by URL so re-runs overwrite instead of
		// piling up duplicates.
		sum := sha256.Sum256([]byte(page.URL))
		path := fmt.Sprintf("runs/%s/%s.html", runID, hex.EncodeToString(sum[:]))
		if _, err := e.deps.Archive.PutObject(ctx, path, "text/html", res.RawHTML); err != nil {
			logger.Warn("archive page failed", zap.String("url", page.URL), zap.Error(err))
		}
	}
	if e.deps.Store != nil {
		if err := e.deps.Store.RecordPage(ctx, runID, page); err != nil {
			logger.Warn("persist page failed", zap.String("url", page.URL), zap.Error(err))
		}
	}
}

func (e *Engine) publishRunEvent(ctx context.Context, logger *zap.Logger, run collector.Run) {
	if e.deps.Publisher == nil {
		return
	}
	if _, err := e.deps.Publisher.Publish(ctx, RunEventTopic, run); err != nil {
		logger.Warn("publish run event failed", zap.Error(err))
	}
}
