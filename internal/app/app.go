// Package app wires configuration, storage, the upstream client, and the
// three pipelines into a running service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/heartmarshall/auctionwatch/internal/adapter/postgres"
	eventrepo "github.com/heartmarshall/auctionwatch/internal/adapter/postgres/event"
	notificationrepo "github.com/heartmarshall/auctionwatch/internal/adapter/postgres/notification"
	pipelinestaterepo "github.com/heartmarshall/auctionwatch/internal/adapter/postgres/pipelinestate"
	pricehistoryrepo "github.com/heartmarshall/auctionwatch/internal/adapter/postgres/pricehistory"
	rulerepo "github.com/heartmarshall/auctionwatch/internal/adapter/postgres/rule"
	"github.com/heartmarshall/auctionwatch/internal/adapter/scraper"
	"github.com/heartmarshall/auctionwatch/internal/config"
	"github.com/heartmarshall/auctionwatch/internal/metrics"
	"github.com/heartmarshall/auctionwatch/internal/service/discovery"
	"github.com/heartmarshall/auctionwatch/internal/service/monitor"
	"github.com/heartmarshall/auctionwatch/internal/service/notify"
	"github.com/heartmarshall/auctionwatch/internal/service/pipeline"
	"github.com/heartmarshall/auctionwatch/internal/service/reconcile"
	"github.com/heartmarshall/auctionwatch/internal/service/reflock"
)

// Options tunes one invocation of Run.
type Options struct {
	// Once runs every enabled pipeline a single time and exits instead of
	// starting the scheduler. Useful for cron-driven deployments and smoke
	// tests against a real upstream.
	Once bool
}

// Run is the application entry point. It blocks until ctx is canceled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)
	logger.Info("starting auctionwatch",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
		slog.Bool("once", opts.Once),
	)

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	events := eventrepo.New(pool)
	history := pricehistoryrepo.New(pool)
	rules := rulerepo.New(pool)
	notifications := notificationrepo.New(pool)
	states := pipelinestaterepo.New(pool)
	tx := postgres.NewTxManager(pool)

	m := metrics.New(prometheus.DefaultRegisterer)
	fetcher := scraper.New(cfg.Scraper.BaseURL, logger)
	locks := reflock.New()
	clock := clockwork.NewRealClock()

	engine := notify.NewEngine(logger, rules, notifications, tx, m)

	mon := monitor.NewService(logger, events, history, tx, fetcher, engine, locks, clock, m, monitor.Config{
		Workers:      cfg.Pipelines.MonitorWorkers,
		FetchTimeout: cfg.Scraper.CheckTimeout,
	})
	rec := reconcile.NewService(logger, events, fetcher, engine, locks, reconcile.Config{
		Categories:    cfg.Scraper.Categories,
		MaxPages:      cfg.Scraper.MaxPages,
		ListTimeout:   cfg.Scraper.ListTimeout,
		DetailTimeout: cfg.Scraper.DetailTimeout,
	})
	disc := discovery.NewService(logger, events, fetcher, engine, discovery.Config{
		Categories:    cfg.Scraper.Categories,
		ListTimeout:   cfg.Scraper.ListTimeout,
		DetailTimeout: cfg.Scraper.DetailTimeout,
	})

	if opts.Once {
		return runOnce(ctx, logger, cfg.Pipelines, mon, rec, disc)
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := m.Serve(cfg.Metrics.Addr()); err != nil {
				logger.Error("metrics listener failed", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = m.Shutdown(shutdownCtx)
		}()
	}

	sup := pipeline.NewSupervisor(logger, states, clock, m)
	sup.Register(mon, cfg.Pipelines.Monitor.Interval, cfg.Pipelines.Monitor.Enabled)
	sup.Register(rec, cfg.Pipelines.Sync.Interval, cfg.Pipelines.Sync.Enabled)
	sup.Register(disc, cfg.Pipelines.Discovery.Interval, cfg.Pipelines.Discovery.Enabled)

	return sup.Start(ctx)
}

// runOnce executes each enabled pipeline sequentially. The reconciler runs
// before discovery so a freshly reconciled store is not immediately re-diffed.
func runOnce(ctx context.Context, logger *slog.Logger, cfg config.PipelinesConfig, mon, rec, disc pipeline.Pipeline) error {
	enabled := map[pipeline.Pipeline]bool{
		rec:  cfg.Sync.Enabled,
		disc: cfg.Discovery.Enabled,
		mon:  cfg.Monitor.Enabled,
	}

	for _, p := range []pipeline.Pipeline{rec, disc, mon} {
		if !enabled[p] {
			continue
		}
		report, err := p.Run(ctx)
		if err != nil {
			return fmt.Errorf("pipeline %s: %w", p.Name(), err)
		}
		logger.Info("pipeline run finished",
			slog.String("pipeline", string(p.Name())),
			slog.String("report", report.String()),
		)
	}

	return nil
}
