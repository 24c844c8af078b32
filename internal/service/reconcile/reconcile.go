// Package reconcile implements the y-sync pipeline: a full diff between the
// local store and the upstream active-listing set. It is the sole authority
// for closing events and the backstop for discoveries the z-watch pass missed.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/heartmarshall/auctionwatch/internal/domain"
	"github.com/heartmarshall/auctionwatch/internal/fetch"
	"github.com/heartmarshall/auctionwatch/internal/service/reflock"
)

type eventRepo interface {
	ActiveReferences(ctx context.Context) ([]string, error)
	InsertIgnore(ctx context.Context, ev domain.Event) (bool, error)
	Close(ctx context.Context, reference string) error
}

type signalDispatcher interface {
	Dispatch(ctx context.Context, sig domain.Signal) (int, error)
}

// Service is the reconciler pipeline.
type Service struct {
	events   eventRepo
	fetcher  fetch.Fetcher
	notifier signalDispatcher
	locks    *reflock.Set

	categories    []string
	maxPages      int
	listTimeout   time.Duration
	detailTimeout time.Duration
	log           *slog.Logger
}

// Config holds the reconciler's tuning knobs.
type Config struct {
	// Categories to walk when building the upstream active set.
	Categories []string
	// MaxPages bounds the listing walk per category.
	MaxPages int
	// ListTimeout is the per-page deadline for listing fetches.
	ListTimeout time.Duration
	// DetailTimeout is the per-fetch deadline for full detail scrapes.
	DetailTimeout time.Duration
}

// NewService creates the reconciler pipeline.
func NewService(
	log *slog.Logger,
	events eventRepo,
	fetcher fetch.Fetcher,
	notifier signalDispatcher,
	locks *reflock.Set,
	cfg Config,
) *Service {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
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
		locks:         locks,
		categories:    cfg.Categories,
		maxPages:      cfg.MaxPages,
		listTimeout:   cfg.ListTimeout,
		detailTimeout: cfg.DetailTimeout,
		log:           log.With("service", "reconcile"),
	}
}

// Name returns the pipeline's persisted identifier.
func (s *Service) Name() domain.PipelineName {
	return domain.PipelineSync
}

// Run computes the symmetric difference between the upstream active set and
// the locally-active set. Upstream-only references are inserted as missed
// discoveries; local-only references are closed. With no upstream change a
// second run produces zero mutations.
func (s *Service) Run(ctx context.Context) (domain.RunReport, error) {
	upstream, err := s.upstreamActiveSet(ctx)
	if err != nil {
		return domain.RunReport{}, err
	}

	local, err := s.events.ActiveReferences(ctx)
	if err != nil {
		return domain.RunReport{}, err
	}
	localSet := make(map[string]bool, len(local))
	for _, ref := range local {
		localSet[ref] = true
	}

	var report domain.RunReport

	// Upstream but not local: admit as missed discoveries.
	for ref := range upstream {
		if localSet[ref] {
			continue
		}
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

	// Local but not upstream: the listing is gone — close it.
	for _, ref := range local {
		if upstream[ref] {
			continue
		}
		report.Processed++
		unlock := s.locks.Lock(ref)
		err := s.events.Close(ctx, ref)
		unlock()
		if err != nil {
			report.Failed++
			s.log.WarnContext(ctx, "close failed",
				slog.String("reference", ref),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Closed++
	}

	s.log.InfoContext(ctx, "reconciliation finished",
		slog.Int("upstream", len(upstream)),
		slog.Int("local", len(local)),
		slog.Int("inserted", report.Inserted),
		slog.Int("closed", report.Closed),
	)

	return report, nil
}

// upstreamActiveSet walks each category's listing pages until it finds an
// empty page or hits the page bound.
func (s *Service) upstreamActiveSet(ctx context.Context) (map[string]bool, error) {
	set := make(map[string]bool)
	for _, category := range s.categories {
		for page := 1; page <= s.maxPages; page++ {
			listCtx, cancel := context.WithTimeout(ctx, s.listTimeout)
			summaries, err := s.fetcher.ListListings(listCtx, category, page)
			cancel()
			if err != nil {
				return nil, err
			}
			if len(summaries) == 0 {
				break
			}
			for _, sum := range summaries {
				set[sum.Reference] = true
			}
		}
	}

	return set, nil
}

// admit fetches full detail for a missed reference and inserts it.
// Insert-or-ignore keeps a concurrent z-watch insert harmless.
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
