package cmd

import (
	"context"
	"fmt"

	pubsubclient "cloud.google.com/go/pubsub"
	storageclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	archivegcs "github.com/brandsignal/harvester/internal/archive/gcs"
	"github.com/brandsignal/harvester/internal/classify"
	"github.com/brandsignal/harvester/internal/collector"
	"github.com/brandsignal/harvester/internal/config"
	"github.com/brandsignal/harvester/internal/engine"
	"github.com/brandsignal/harvester/internal/extract"
	"github.com/brandsignal/harvester/internal/fetch"
	collyfetcher "github.com/brandsignal/harvester/internal/fetcher/colly"
	"github.com/brandsignal/harvester/internal/fetcher/headless"
	"github.com/brandsignal/harvester/internal/logging"
	pubsubpublisher "github.com/brandsignal/harvester/internal/publisher/pubsub"
	"github.com/brandsignal/harvester/internal/ratelimit"
	"github.com/brandsignal/harvester/internal/search/serper"
	storememory "github.com/brandsignal/harvester/internal/store/memory"
	storepostgres "github.com/brandsignal/harvester/internal/store/postgres"
)

// runtime holds the wired service graph for one process.
type runtime struct {
	cfg     config.Config
	logger  *zap.Logger
	engine  *engine.Engine
	store   collector.PageStore
	closers []func()
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	logging.Sync(rt.logger)
}

// buildRuntime loads config and wires the collection engine with its
// collaborators. Persistence, archival and publishing are optional and
// enabled by their config sections.
func buildRuntime(ctx context.Context, cfgPath string) (*runtime, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultInterval: cfg.LimiterInterval(),
		Overrides:       cfg.LimiterOverrides(),
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Fetch.UserAgent,
		Timeout:       cfg.FetchTimeout(),
		RespectRobots: cfg.Fetch.RespectRobots,
	})

	var renderer collector.Renderer = headless.Noop{}
	if cfg.Headless.Enabled {
		session := headless.New(headless.Config{
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
		}, logger.Named("headless"))
		rt.closers = append(rt.closers, session.Close)
		renderer = session
	}

	chain := fetch.NewChain(
		fetch.Config{
			MinBodyRunes:      cfg.Fetch.MinBodyRunes,
			BrandMinBodyRunes: cfg.Fetch.BrandMinBodyRunes,
			MaxAttempts:       cfg.Fetch.MaxRetries,
		},
		fetcher,
		renderer,
		limiter,
		extract.New(),
		logger.Named("fetch"),
	)

	classifier := classify.New(classify.Config{
		BrandDomains:  cfg.Brand.Domains,
		BrandHosts:    cfg.Brand.Hosts,
		SocialHandles: cfg.Brand.SocialHandles,
		NewsHosts:     cfg.Brand.NewsHosts,
	})
	provider := serper.New(serper.Config{
		APIKey:  cfg.Search.APIKey,
		QPS:     cfg.Search.QPS,
		Timeout: cfg.SearchTimeout(),
	}, logger.Named("serper"))

	if cfg.DB.DSN != "" {
		pgStore, err := storepostgres.New(ctx, storepostgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		rt.closers = append(rt.closers, pgStore.Close)
		rt.store = pgStore
	} else {
		rt.store = storememory.New()
	}

	var archive collector.BlobStore
	if cfg.Storage.GCSBucket != "" {
		client, err := storageclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		archive, err = archivegcs.New(client, archivegcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
	}

	var publisher collector.Publisher
	if cfg.PubSub.ProjectID != "" {
		client, err := pubsubclient.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(client)
		rt.closers = append(rt.closers, func() {
			pub.Close()
			_ = client.Close()
		})
		publisher = pub
	}

	rt.engine = engine.New(engine.Config{
		Target:             cfg.Collect.Target,
		BrandRatio:         cfg.Collect.BrandRatio,
		DomainCapFraction:  cfg.Collect.DomainCapFraction,
		ExemptBrandDomains: cfg.Collect.ExemptBrandDomains,
		Workers:            cfg.Collect.Workers,
		QueueCapacity:      cfg.Collect.QueueCapacity,
		PoolMultiplier:     cfg.Collect.PoolMultiplier,
	}, engine.Deps{
		Provider:   provider,
		Chain:      chain,
		Classifier: classifier,
		Store:      rt.store,
		Archive:    archive,
		Publisher:  publisher,
		Logger:     logger.Named("engine"),
	})
	return rt, nil
}
