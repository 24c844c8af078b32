// Package discovery implements the z-watch pipeline: a cheap, frequent poll
// of the first listing page per category that admits newly published listings
// quickly. It never closes anything; y-sync owns that.
package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/heartmarshall/auctionwatch/internal/domain"
	"github.com/heartmarshall/auctionwatch/internal/fetch"
)

type eventRepo interface {
	FilterUnknown(ctx context.Context, refs []string) ([]string, error)
	InsertIgnore(ctx context.Context, ev domain.Event) (bool, error)
}

type signalDispatcher interface {
	Dispatch(ctx context.Context, sig domain.Signal) (int, error)
}

// Service is the discovery-feed pipeline.
type Service struct {
	events   eventRepo
	fetcher  fetch.Fetcher
	notifier signalDispatcher

	categories    []string
	listTimeout   time.Duration
	detailTimeout time.Duration
	log           *slog.Logger
}

// Config holds the discovery feed's tuning knobs.
type Config struct {
	// Categories whose first page is polled each run.
	Categories []string
	// ListTimeout is the deadline for one feed poll.
	ListTimeout time.Duration
	// DetailTimeout is the per-fetch deadline for full detail scrapes.
	DetailTimeout time.Duration
}

// NewService creates the discovery pipeline.
func NewService(
	log *slog.Logger,
	events eventRepo,
	fetcher fetch.Fetcher,
	notifier signalDispatcher,
	cfg Config,
) *Service {
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = 30 * time.Second
	}
	if cfg.DetailTimeout <= 0 {
		cfg.DetailTimeout = 45 * time.Second
	}
	return &Service{
		events:        events,
		fetcher:       fetcher,
		notifier:      notifier,
		categories:    cfg.Categories,
		listTimeout:   cfg.ListTimeout,
		detailTimeout: cfg.DetailTimeout,
		log:           log.With("service", "discovery"),
	}
}

// Name returns the pipeline's persisted identifier.
func (s *Service) Name() domain.PipelineName {
	return domain.PipelineDiscovery
}

// Run polls the most-recent page of every category, filters out references
// the store already knows, and admits the rest. Seeing the same reference in
// several runs, or twice in one feed, is harmless: insert-or-ignore makes
// admission idempotent.
func (s *Service) Run(ctx context.Context) (domain.RunReport, error) {
	var report domain.RunReport

	for _, category := range s.categories {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		listCtx, cancel := context.WithTimeout(ctx, s.listTimeout)
		summaries, err := s.fetcher.ListListings(listCtx, category, 1)
		cancel()
		if err != nil {
			report.Failed++
			s.log.WarnContext(ctx, "feed poll failed",
				slog.String("category", category),
				slog.String("error", err.Error()),
			)
			continue
		}

		refs := make([]string, 0, len(summaries))
		for _, sum := range summaries {
			refs = append(refs, sum.Reference)
		}

		unknown, err := s.events.FilterUnknown(ctx, refs)
		if err != nil {
			return report, err
		}

		for _, ref := range unknown {
			report.Processed++
			inserted, notified, err := s.admit(ctx, ref)
			if err != nil {
				report.Failed++
				s.log.WarnContext(ctx, "admit failed",
					slog.String("reference", ref),
					slog.String("error", err.Error()),
				)
				continue
			}
			if inserted {
				report.Inserted++
				report.Notified += notified
			}
		}
	}

	if report.Inserted > 0 {
		s.log.InfoContext(ctx, "discovered new listings", slog.Int("inserted", report.Inserted))
	}

	return report, nil
}

func (s *Service) admit(ctx context.Context, ref string) (inserted bool, notified int, err error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.detailTimeout)
	detail, err := s.fetcher.FetchDetail(fetchCtx, ref)
	cancel()
	if err != nil {
		return false, 0, err
	}

	inserted, err = s.events.InsertIgnore(ctx, detail)
	if err != nil || !inserted {
		return false, 0, err
	}

	created, err := s.notifier.Dispatch(ctx, domain.NewEventSignal(detail))
	if err != nil {
		s.log.WarnContext(ctx, "signal dispatch failed",
			slog.String("reference", ref),
			slog.String("error", err.Error()),
		)
	}

	return true, created, nil
}
