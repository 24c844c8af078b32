// Package monitor implements the x-monitor pipeline: adaptive-interval
// re-fetching of near-closing events and recording of price deltas.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/heartmarshall/auctionwatch/internal/domain"
	"github.com/heartmarshall/auctionwatch/internal/fetch"
	"github.com/heartmarshall/auctionwatch/internal/service/reflock"
)

type eventRepo interface {
	DueForCheck(ctx context.Context, now time.Time, horizon time.Duration) ([]domain.Event, error)
	UpdatePrice(ctx context.Context, reference string, params domain.PriceUpdateParams) error
	Reschedule(ctx context.Context, reference string, checkedAt, nextCheckAt time.Time, failed bool) error
}

type historyRepo interface {
	Append(ctx context.Context, entry domain.PriceHistoryEntry) error
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type signalDispatcher interface {
	Dispatch(ctx context.Context, sig domain.Signal) (int, error)
}

// Observer receives pipeline telemetry. Satisfied by metrics.Metrics.
type Observer interface {
	ObserveFetchFailure(code string)
	ObservePriceChange()
}

// Service is the price monitor pipeline.
type Service struct {
	events   eventRepo
	history  historyRepo
	tx       txManager
	fetcher  fetch.Fetcher
	notifier signalDispatcher
	locks    *reflock.Set
	clock    clockwork.Clock
	obs      Observer

	workers      int
	fetchTimeout time.Duration
	log          *slog.Logger
}

// Config holds the monitor's tuning knobs.
type Config struct {
	// Workers bounds concurrent fetches within one tick. Excess due events
	// queue rather than spawning unbounded fetchers.
	Workers int
	// FetchTimeout is the per-fetch deadline for price checks.
	FetchTimeout time.Duration
}

// NewService creates the price monitor pipeline.
func NewService(
	log *slog.Logger,
	events eventRepo,
	history historyRepo,
	tx txManager,
	fetcher fetch.Fetcher,
	notifier signalDispatcher,
	locks *reflock.Set,
	clock clockwork.Clock,
	obs Observer,
	cfg Config,
) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Service{
		events:       events,
		history:      history,
		tx:           tx,
		fetcher:      fetcher,
		notifier:     notifier,
		locks:        locks,
		clock:        clock,
		obs:          obs,
		workers:      cfg.Workers,
		fetchTimeout: cfg.FetchTimeout,
		log:          log.With("service", "monitor"),
	}
}

// Name returns the pipeline's persisted identifier.
func (s *Service) Name() domain.PipelineName {
	return domain.PipelineMonitor
}

// Run executes one monitor tick: select due events inside the monitoring
// horizon and fetch each concurrently up to the worker bound. A fetch failure
// pushes the event's due time forward by its tier interval — never removes it
// from monitoring and never closes it.
func (s *Service) Run(ctx context.Context) (domain.RunReport, error) {
	now := s.clock.Now().UTC()

	due, err := s.events.DueForCheck(ctx, now, domain.MonitorHorizon)
	if err != nil {
		return domain.RunReport{}, err
	}
	if len(due) == 0 {
		return domain.RunReport{}, nil
	}

	jobs := make(chan domain.Event)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		report domain.RunReport
	)

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range jobs {
				changed, notified, failed := s.checkEvent(ctx, ev)

				mu.Lock()
				report.Processed++
				if changed {
					report.Changed++
				}
				if failed {
					report.Failed++
				}
				report.Notified += notified
				mu.Unlock()
			}
		}()
	}

	for _, ev := range due {
		select {
		case jobs <- ev:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return report, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	s.log.InfoContext(ctx, "monitor tick finished",
		slog.Int("due", len(due)),
		slog.Int("changed", report.Changed),
		slog.Int("failed", report.Failed),
	)

	return report, nil
}

// checkEvent re-fetches one event and applies whatever changed.
func (s *Service) checkEvent(ctx context.Context, ev domain.Event) (changed bool, notified int, failed bool) {
	now := s.clock.Now().UTC()
	tier := domain.ClassifyTier(ev.TimeToClose(now))
	if tier == domain.TierNone {
		// Drifted out of the horizon between selection and processing.
		return false, 0, false
	}
	// Capped at the next tier boundary, so an event about to tighten its
	// tier is re-checked at the crossing instead of a full interval later.
	nextCheck := tier.NextCheckAfter(now, ev.EndTime)

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	detail, err := s.fetcher.FetchDetail(fetchCtx, ev.Reference)
	cancel()
	if err != nil {
		code := fetch.CodeOf(err)
		s.obs.ObserveFetchFailure(string(code))
		s.log.WarnContext(ctx, "price check failed",
			slog.String("reference", ev.Reference),
			slog.String("code", string(code)),
			slog.Duration("backoff", nextCheck.Sub(now)),
		)
		// Back off by the tier interval; the reconciler decides whether
		// the event is actually gone.
		if rerr := s.events.Reschedule(ctx, ev.Reference, now, nextCheck, true); rerr != nil {
			s.log.ErrorContext(ctx, "reschedule failed",
				slog.String("reference", ev.Reference),
				slog.String("error", rerr.Error()),
			)
		}
		return false, 0, true
	}

	unlock := s.locks.Lock(ev.Reference)
	defer unlock()

	if detail.CurrentBid == ev.CurrentBid {
		if err := s.events.Reschedule(ctx, ev.Reference, now, nextCheck, false); err != nil {
			s.log.ErrorContext(ctx, "reschedule failed",
				slog.String("reference", ev.Reference),
				slog.String("error", err.Error()),
			)
			return false, 0, true
		}
		return false, 0, false
	}

	// An extended close time moves the tier boundaries with it.
	if detail.EndTime.After(ev.EndTime) {
		nextCheck = tier.NextCheckAfter(now, detail.EndTime)
	}

	entry := domain.NewPriceHistoryEntry(ev.Reference, ev.CurrentBid, detail.CurrentBid, domain.PipelineMonitor, now)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.history.Append(txCtx, entry); err != nil {
			return err
		}
		return s.events.UpdatePrice(txCtx, ev.Reference, domain.PriceUpdateParams{
			CurrentBid:  detail.CurrentBid,
			EndTime:     detail.EndTime,
			CheckedAt:   now,
			NextCheckAt: nextCheck,
		})
	})
	if err != nil {
		s.log.ErrorContext(ctx, "price update failed",
			slog.String("reference", ev.Reference),
			slog.String("error", err.Error()),
		)
		return false, 0, true
	}

	s.obs.ObservePriceChange()
	s.log.InfoContext(ctx, "price change recorded",
		slog.String("reference", ev.Reference),
		slog.Float64("old", ev.CurrentBid),
		slog.Float64("new", detail.CurrentBid),
		slog.String("tier", string(tier)),
	)

	// Durability first: the price mutation is committed before the signal
	// reaches the engine, which dedups against stored state.
	updated := ev
	updated.CurrentBid = detail.CurrentBid
	updated.EndTime = detail.EndTime
	created, err := s.notifier.Dispatch(ctx, domain.PriceChangeSignal(updated, ev.CurrentBid))
	if err != nil {
		s.log.ErrorContext(ctx, "signal dispatch failed",
			slog.String("reference", ev.Reference),
			slog.String("error", err.Error()),
		)
	}

	return true, created, false
}
