package main

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/InhaCentury20/pass/internal/checkpoint"
	"github.com/InhaCentury20/pass/internal/config"
	"github.com/InhaCentury20/pass/internal/crawl"
	"github.com/InhaCentury20/pass/internal/fetcher"
	"github.com/InhaCentury20/pass/internal/pdfdoc"
	"github.com/InhaCentury20/pass/internal/pipeline"
	"github.com/InhaCentury20/pass/internal/resilience"
	"github.com/InhaCentury20/pass/internal/store"
	"github.com/InhaCentury20/pass/internal/tier"
)

const checkpointName = "soco"

func initStore(ctx context.Context) (*store.PostgresStore, error) {
	return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: cfg.Store.MaxConns})
}

func newFetcher(c config.CrawlConfig) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         c.UserAgent,
		Timeout:           time.Duration(c.FetchTimeoutSecs) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
	})
}

// openCheckpointStore returns the configured local checkpoint backend and a
// closer for it.
func openCheckpointStore(ctx context.Context, c config.CrawlConfig) (checkpoint.Store, io.Closer, error) {
	switch c.CheckpointBackend {
	case "sqlite":
		s, err := checkpoint.OpenSQLite(ctx, c.CheckpointDB, checkpointName)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "file", "":
		return checkpoint.NewFileStore(c.CheckpointFile), io.NopCloser(nil), nil
	default:
		return nil, nil, eris.Errorf("unsupported checkpoint backend: %s", c.CheckpointBackend)
	}
}

func newBroadcaster() *tier.Broadcaster {
	if cfg.Classifier.Endpoint == "" {
		zap.L().Info("classifier endpoint not configured, tiers will not be predicted")
		return nil
	}
	classifier := tier.NewHTTPClassifier(cfg.Classifier.Endpoint, time.Duration(cfg.Classifier.TimeoutSecs)*time.Second)
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:             "classifier",
		FailureThreshold: cfg.Classifier.BreakerFailures,
		Cooldown:         time.Duration(cfg.Classifier.BreakerCooldownSecs) * time.Second,
	})
	return tier.NewBroadcaster(tier.WithBreaker(classifier, breaker), cfg.Classifier.HousingPrograms)
}

func newPipeline(f fetcher.Fetcher, st *store.PostgresStore) *pipeline.Pipeline {
	return pipeline.New(
		f,
		pdfdoc.NewPoppler(cfg.Extract.PdfToTextPath, cfg.Extract.TempDir),
		st,
		newBroadcaster(),
		pipeline.Options{
			DocumentTimeout: time.Duration(cfg.Extract.DocumentTimeoutSecs) * time.Second,
			Workers:         cfg.Extract.Workers,
			ContextWindow:   cfg.Extract.ContextWindowPt,
		},
	)
}

// runCrawl performs one checkpoint-gated crawl with inline extraction.
func runCrawl(ctx context.Context, st *store.PostgresStore, maxPages int, extract bool) (*crawl.Result, error) {
	local, closer, err := openCheckpointStore(ctx, cfg.Crawl)
	if err != nil {
		return nil, err
	}
	defer closer.Close() //nolint:errcheck

	f := newFetcher(cfg.Crawl)
	client := crawl.NewClient(f, crawl.ClientOptions{
		ListURL:     cfg.Crawl.ListURL,
		DetailURL:   cfg.Crawl.DetailURL,
		BoardID:     cfg.Crawl.BoardID,
		MenuNo:      cfg.Crawl.MenuNo,
		HousingType: cfg.Crawl.HousingType,
	})

	var proc crawl.Processor
	if extract {
		proc = newPipeline(f, st)
	}

	engine := crawl.NewEngine(client, checkpoint.New(st, local), st, proc, crawl.Options{
		LockFile: cfg.Crawl.LockFile,
		MaxPages: maxPages,
	})
	return engine.Run(ctx)
}
