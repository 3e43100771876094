package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ppiankov/painpoint/internal/aggregate"
	"github.com/ppiankov/painpoint/internal/analyze"
	"github.com/ppiankov/painpoint/internal/cache"
	"github.com/ppiankov/painpoint/internal/dedup"
	"github.com/ppiankov/painpoint/internal/gate"
	"github.com/ppiankov/painpoint/internal/model"
	"github.com/ppiankov/painpoint/internal/pipeline"
	"github.com/ppiankov/painpoint/internal/score"
	"github.com/ppiankov/painpoint/internal/segment"
	"github.com/ppiankov/painpoint/internal/sink"
	"github.com/ppiankov/painpoint/internal/sources"
	"github.com/ppiankov/painpoint/internal/store"
	"github.com/ppiankov/painpoint/internal/worker"
)

// app is a fully wired pipeline plus everything that must be closed after
// the run.
type app struct {
	cfg      model.Config
	logger   *slog.Logger
	pipeline *pipeline.Pipeline
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildApp connects every collaborator named by cfg. An unusable dedup
// ledger aborts startup.
func buildApp(ctx context.Context, cfg model.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var rdb *redis.Client
	if cfg.Dedup.Backend == "redis" || cfg.Outreach.BudgetBackend == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
	}

	ledger, err := newLedger(cfg, rdb)
	if err != nil {
		return nil, err
	}
	if err := ledger.Check(ctx); err != nil {
		return nil, err
	}

	st, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)

	limiter := worker.NewLimiter(0, 1)
	for name, sc := range cfg.Sources {
		if sc.RequestsPerMinute > 0 {
			limiter.SetProviderRate(name, sc.RequestsPerMinute, sc.Burst)
		}
	}
	if cfg.Analysis.RequestsPerMinute > 0 {
		limiter.SetProviderRate(analyze.ProviderName, cfg.Analysis.RequestsPerMinute, 1)
	}
	// One process-wide memo for robots.txt bodies and per-domain signals.
	memo := cache.NewMemoryCache(time.Hour, 10*time.Minute)

	fetcher := sources.NewFetcher(cfg.HTTP, limiter, logger)
	srcs, err := sources.NewRegistry().Build(cfg.Sources, sources.Deps{
		Fetcher: fetcher,
		Robots:  sources.NewRobotsChecker(fetcher.Client(), fetcher.UserAgent(), memo),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	if len(srcs) == 0 {
		logger.Warn("no sources enabled")
	}

	var analyzer *analyze.Analyzer
	if cfg.Analysis.Enabled {
		analyzer = analyze.New(newProfileProvider(cfg.Analysis, fetcher))
	}

	storeSink := sink.NewStoreSink(st)
	var out sink.Sink = storeSink
	if cfg.Sink.WebhookURL != "" {
		// Webhook first: a store failure after a delivered webhook resends
		// the batch instead of writing duplicate rows.
		out = sink.NewMultiSink(
			sink.NewWebhookSink(cfg.Sink.WebhookURL, cfg.Sink.WebhookSecret, cfg.Sink.Timeout, cfg.HTTP.UserAgent, logger),
			storeSink,
		)
	}

	var budget gate.Budget = gate.NewMemoryBudget(cfg.Outreach.DailyLimit)
	if cfg.Outreach.BudgetBackend == "redis" {
		budget = gate.NewRedisBudget(rdb, cfg.Outreach.DailyLimit)
	}

	publishers := []pipeline.Publisher{pipeline.NewStorePublisher(st)}
	if cfg.NATS.URL != "" {
		nc, err := pipeline.ConnectNATS(cfg.NATS.URL, "painpoint", logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return nc.Drain() })
		publishers = append(publishers, pipeline.NewNATSPublisher(nc, cfg.NATS.Subject))
	}

	a.pipeline = pipeline.New(pipeline.Components{
		Sources: srcs,
		Dedup:   dedup.New(ledger, logger),
		Sink:    out,
		Store:   st,
		Aggregator: aggregate.New(st, aggregate.Options{
			RetentionDays: cfg.Store.RetentionDays,
			Cache:         memo,
			CacheTTL:      time.Hour,
			Logger:        logger,
		}),
		Analyzer:        analyzer,
		Scorer:          score.NewScorer(cfg.Scoring),
		Resolver:        segment.NewResolver(cfg.Scoring.DefaultEmployeeCount),
		Gate:            gate.New(cfg.Outreach.MinPainScore, budget),
		Publishers:      publishers,
		Workers:         cfg.Concurrency.Workers,
		SinkBatchSize:   cfg.Sink.BatchSize,
		ScoreBatchSize:  cfg.Scoring.BatchSize,
		AnalysisRefresh: time.Duration(cfg.Analysis.RefreshDays) * 24 * time.Hour,
		Logger:          logger,
	})
	return a, nil
}

func newLedger(cfg model.Config, rdb *redis.Client) (dedup.LedgerStore, error) {
	switch cfg.Dedup.Backend {
	case "redis":
		return dedup.NewRedisStore(rdb, cfg.Dedup.RedisKey), nil
	case "file":
		return dedup.NewFileStore(cfg.Dedup.LedgerPath), nil
	default:
		return nil, fmt.Errorf("%w: unknown dedup.backend %q", model.ErrInvalidConfig, cfg.Dedup.Backend)
	}
}

func newStore(ctx context.Context, cfg model.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		if cfg.Store.Migrate {
			if err := store.Migrate(cfg.Store.DatabaseURL); err != nil {
				return nil, err
			}
		}
		pg, err := store.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store.backend %q", model.ErrInvalidConfig, cfg.Store.Backend)
	}
}

func newProfileProvider(cfg model.AnalysisConfig, fetcher *sources.Fetcher) analyze.Provider {
	switch cfg.Provider {
	case "file":
		return analyze.NewFileProvider(cfg.URL)
	case "http":
		return analyze.NewHTTPProvider(cfg.URL, cfg.APIKey, fetcher)
	default:
		return analyze.None{}
	}
}
