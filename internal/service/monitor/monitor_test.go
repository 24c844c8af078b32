package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/auctionwatch/internal/domain"
	"github.com/heartmarshall/auctionwatch/internal/fetch"
	"github.com/heartmarshall/auctionwatch/internal/service/reflock"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type eventRepoMock struct {
	mu sync.Mutex

	DueForCheckFunc func(ctx context.Context, now time.Time, horizon time.Duration) ([]domain.Event, error)

	priceUpdates []domain.PriceUpdateParams
	reschedules  []rescheduleCall
}

type rescheduleCall struct {
	reference   string
	nextCheckAt time.Time
	failed      bool
}

func (m *eventRepoMock) DueForCheck(ctx context.Context, now time.Time, horizon time.Duration) ([]domain.Event, error) {
	return m.DueForCheckFunc(ctx, now, horizon)
}

func (m *eventRepoMock) UpdatePrice(ctx context.Context, reference string, params domain.PriceUpdateParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceUpdates = append(m.priceUpdates, params)
	return nil
}

func (m *eventRepoMock) Reschedule(ctx context.Context, reference string, checkedAt, nextCheckAt time.Time, failed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reschedules = append(m.reschedules, rescheduleCall{reference, nextCheckAt, failed})
	return nil
}

type historyRepoMock struct {
	mu      sync.Mutex
	entries []domain.PriceHistoryEntry
}

func (m *historyRepoMock) Append(ctx context.Context, entry domain.PriceHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

type txManagerMock struct{}

func (m *txManagerMock) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type fetcherMock struct {
	FetchDetailFunc func(ctx context.Context, reference string) (domain.Event, error)
}

func (m *fetcherMock) ListListings(ctx context.Context, category string, page int) ([]fetch.Summary, error) {
	panic("not used by monitor")
}

func (m *fetcherMock) FetchDetail(ctx context.Context, reference string) (domain.Event, error) {
	return m.FetchDetailFunc(ctx, reference)
}

type dispatcherMock struct {
	mu      sync.Mutex
	signals []domain.Signal
}

func (m *dispatcherMock) Dispatch(ctx context.Context, sig domain.Signal) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, sig)
	return 1, nil
}

type observerMock struct {
	mu       sync.Mutex
	failures []string
	changes  int
}

func (m *observerMock) ObserveFetchFailure(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, code)
}

func (m *observerMock) ObservePriceChange() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes++
}

func newTestService(events *eventRepoMock, history *historyRepoMock, fetcher *fetcherMock, notifier *dispatcherMock, clock clockwork.Clock) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(log, events, history, &txManagerMock{}, fetcher, notifier,
		reflock.New(), clock, &observerMock{}, Config{Workers: 4, FetchTimeout: time.Second})
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// E1 closes in 3 minutes (critical tier): a bid rising 1000 → 1200 records
// exactly one history entry with delta 200 and dispatches one price_change
// signal carrying the previous price.
func TestRun_PriceChangeRecorded(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 11, 57, 0, 0, time.UTC))
	now := clock.Now().UTC()

	e1 := domain.Event{
		Reference:  "E1",
		CurrentBid: 1000,
		EndTime:    now.Add(3 * time.Minute),
		Started:    true,
	}

	events := &eventRepoMock{
		DueForCheckFunc: func(ctx context.Context, now time.Time, horizon time.Duration) ([]domain.Event, error) {
			assert.Equal(t, domain.MonitorHorizon, horizon)
			return []domain.Event{e1}, nil
		},
	}
	history := &historyRepoMock{}
	fetcher := &fetcherMock{
		FetchDetailFunc: func(ctx context.Context, reference string) (domain.Event, error) {
			updated := e1
			updated.CurrentBid = 1200
			return updated, nil
		},
	}
	notifier := &dispatcherMock{}

	svc := newTestService(events, history, fetcher, notifier, clock)
	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Changed)
	assert.Zero(t, report.Failed)

	require.Len(t, history.entries, 1)
	entry := history.entries[0]
	assert.Equal(t, 1000.0, entry.OldPrice)
	assert.Equal(t, 1200.0, entry.NewPrice)
	assert.Equal(t, 200.0, entry.Delta)
	assert.Equal(t, domain.PipelineMonitor, entry.Source)

	require.Len(t, events.priceUpdates, 1)
	// Critical tier: next check 5 seconds out.
	assert.Equal(t, now.Add(5*time.Second), events.priceUpdates[0].NextCheckAt)

	require.Len(t, notifier.signals, 1)
	sig := notifier.signals[0]
	assert.Equal(t, domain.SignalPriceChange, sig.Kind)
	assert.Equal(t, 1200.0, sig.Event.CurrentBid)
	require.NotNil(t, sig.PreviousPrice)
	assert.Equal(t, 1000.0, *sig.PreviousPrice)
}

// A fetch failure backs the event off by its tier interval. It is never
// closed here — closing authority belongs to the reconciler alone.
func TestRun_FetchFailureBacksOffWithoutClosing(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC))
	now := clock.Now().UTC()

	ev := domain.Event{
		Reference:  "E2",
		CurrentBid: 500,
		EndTime:    now.Add(30 * time.Minute), // urgent tier
		Started:    true,
	}

	events := &eventRepoMock{
		DueForCheckFunc: func(ctx context.Context, now time.Time, horizon time.Duration) ([]domain.Event, error) {
			return []domain.Event{ev}, nil
		},
	}
	fetcher := &fetcherMock{
		FetchDetailFunc: func(ctx context.Context, reference string) (domain.Event, error) {
			return domain.Event{}, fetch.NewError(fetch.CodeTimeout, "detail", context.DeadlineExceeded)
		},
	}
	notifier := &dispatcherMock{}
	history := &historyRepoMock{}

	svc := newTestService(events, history, fetcher, notifier, clock)
	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, history.entries)
	assert.Empty(t, notifier.signals)

	require.Len(t, events.reschedules, 1)
	call := events.reschedules[0]
	assert.Equal(t, "E2", call.reference)
	assert.True(t, call.failed)
	assert.Equal(t, now.Add(time.Minute), call.nextCheckAt, "backoff equals the urgent tier interval")
}

// An unchanged price reschedules at the tier interval and emits nothing.
func TestRun_UnchangedPriceReschedulesQuietly(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC))
	now := clock.Now().UTC()

	ev := domain.Event{
		Reference:  "E3",
		CurrentBid: 900,
		EndTime:    now.Add(10 * time.Hour), // soon tier
		Started:    true,
	}

	events := &eventRepoMock{
		DueForCheckFunc: func(ctx context.Context, now time.Time, horizon time.Duration) ([]domain.Event, error) {
			return []domain.Event{ev}, nil
		},
	}
	fetcher := &fetcherMock{
		FetchDetailFunc: func(ctx context.Context, reference string) (domain.Event, error) {
			return ev, nil
		},
	}
	notifier := &dispatcherMock{}
	history := &historyRepoMock{}

	svc := newTestService(events, history, fetcher, notifier, clock)
	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Processed)
	assert.Zero(t, report.Changed)
	assert.Empty(t, history.entries)
	assert.Empty(t, notifier.signals)

	require.Len(t, events.reschedules, 1)
	assert.False(t, events.reschedules[0].failed)
	assert.Equal(t, now.Add(10*time.Minute), events.reschedules[0].nextCheckAt)
}

// An event about to cross into a tighter tier is rescheduled at the tier
// boundary, not a full interval later: closing in 61 minutes (soon tier,
// 10-minute interval) the next check lands at the urgent boundary, 1 minute
// out — otherwise the event would sit 9 minutes into the urgent tier unpolled.
func TestRun_RescheduleCappedAtTierBoundary(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC))
	now := clock.Now().UTC()

	ev := domain.Event{
		Reference:  "E5",
		CurrentBid: 500,
		EndTime:    now.Add(61 * time.Minute),
		Started:    true,
	}

	events := &eventRepoMock{
		DueForCheckFunc: func(ctx context.Context, now time.Time, horizon time.Duration) ([]domain.Event, error) {
			return []domain.Event{ev}, nil
		},
	}
	fetcher := &fetcherMock{
		FetchDetailFunc: func(ctx context.Context, reference string) (domain.Event, error) {
			return ev, nil
		},
	}

	svc := newTestService(events, &historyRepoMock{}, fetcher, &dispatcherMock{}, clock)
	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, events.reschedules, 1)
	assert.Equal(t, now.Add(time.Minute), events.reschedules[0].nextCheckAt)
}

// Many due events are processed with bounded concurrency, all of them.
func TestRun_AllDueEventsProcessed(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC))
	now := clock.Now().UTC()

	var due []domain.Event
	for i := 0; i < 37; i++ {
		due = append(due, domain.Event{
			Reference:  string(rune('A' + i%26)) + "-lot",
			CurrentBid: 100,
			EndTime:    now.Add(20 * time.Minute),
			Started:    true,
		})
	}

	events := &eventRepoMock{
		DueForCheckFunc: func(ctx context.Context, now time.Time, horizon time.Duration) ([]domain.Event, error) {
			return due, nil
		},
	}
	fetcher := &fetcherMock{
		FetchDetailFunc: func(ctx context.Context, reference string) (domain.Event, error) {
			return domain.Event{Reference: reference, CurrentBid: 100}, nil
		},
	}

	svc := newTestService(events, &historyRepoMock{}, fetcher, &dispatcherMock{}, clock)
	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, len(due), report.Processed)
}
