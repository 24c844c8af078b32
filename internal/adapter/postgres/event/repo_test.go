package event_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/auctionwatch/internal/adapter/postgres/event"
	"github.com/heartmarshall/auctionwatch/internal/adapter/postgres/testhelper"
	"github.com/heartmarshall/auctionwatch/internal/domain"
)

// newRepo sets up a test DB and returns a ready Repo + pool.
func newRepo(t *testing.T) (*event.Repo, *pgxpool.Pool) {
	t.Helper()
	pool := testhelper.SetupTestDB(t)
	return event.New(pool), pool
}

func buildEvent(reference string, endTime time.Time) domain.Event {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Event{
		Reference:      reference,
		Title:          "apartment in " + reference,
		Category:       "real_estate",
		Subcategory:    "apartment",
		District:       "porto",
		Municipality:   "porto",
		BaseValue:      50000,
		OpeningValue:   35000,
		MinimumValue:   42500,
		CurrentBid:     35000,
		StartTime:      now.Add(-48 * time.Hour),
		EndTime:        endTime,
		EndTimeInitial: endTime,
		Started:        true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestRepo_InsertIgnore(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	ev := buildEvent("EV-INS-1", time.Now().UTC().Add(48*time.Hour))

	inserted, err := repo.InsertIgnore(ctx, ev)
	if err != nil {
		t.Fatalf("InsertIgnore: unexpected error: %v", err)
	}
	if !inserted {
		t.Fatal("first insert should report inserted=true")
	}

	// Same reference again: ignored, not an error.
	inserted, err = repo.InsertIgnore(ctx, ev)
	if err != nil {
		t.Fatalf("InsertIgnore (dup): unexpected error: %v", err)
	}
	if inserted {
		t.Error("duplicate insert should report inserted=false")
	}

	got, err := repo.GetByReference(ctx, ev.Reference)
	if err != nil {
		t.Fatalf("GetByReference: unexpected error: %v", err)
	}
	if got.Title != ev.Title {
		t.Errorf("Title mismatch: got %q, want %q", got.Title, ev.Title)
	}
	if got.CurrentBid != ev.CurrentBid {
		t.Errorf("CurrentBid mismatch: got %v, want %v", got.CurrentBid, ev.CurrentBid)
	}
	if !got.EndTimeInitial.Equal(ev.EndTime) {
		t.Errorf("EndTimeInitial mismatch: got %v, want %v", got.EndTimeInitial, ev.EndTime)
	}
}

func TestRepo_GetByReference_NotFound(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)

	_, err := repo.GetByReference(context.Background(), "EV-MISSING")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepo_ActiveReferences_ExcludesClosedAndCanceled(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	endTime := time.Now().UTC().Add(24 * time.Hour)

	testhelper.SeedEvent(t, pool, "EV-ACT-1", endTime)
	testhelper.SeedEvent(t, pool, "EV-ACT-2", endTime)
	closed := testhelper.SeedEvent(t, pool, "EV-ACT-CLOSED", endTime)

	if err := repo.Close(ctx, closed.Reference); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}

	refs, err := repo.ActiveReferences(ctx)
	if err != nil {
		t.Fatalf("ActiveReferences: unexpected error: %v", err)
	}

	if !slices.Contains(refs, "EV-ACT-1") || !slices.Contains(refs, "EV-ACT-2") {
		t.Errorf("active refs should contain seeded events, got %v", refs)
	}
	if slices.Contains(refs, "EV-ACT-CLOSED") {
		t.Errorf("active refs should not contain closed event, got %v", refs)
	}
}

func TestRepo_Close_Idempotent(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	ev := testhelper.SeedEvent(t, pool, "EV-CLOSE-1", time.Now().UTC().Add(time.Hour))

	if err := repo.Close(ctx, ev.Reference); err != nil {
		t.Fatalf("first Close: unexpected error: %v", err)
	}
	if err := repo.Close(ctx, ev.Reference); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}

	got, err := repo.GetByReference(ctx, ev.Reference)
	if err != nil {
		t.Fatalf("GetByReference: unexpected error: %v", err)
	}
	if !got.Closed {
		t.Error("event should be closed")
	}
}

func TestRepo_DueForCheck_HorizonAndSchedule(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	// Inside the horizon, never checked: due.
	testhelper.SeedEvent(t, pool, "EV-DUE-SOON", now.Add(2*time.Hour))
	// Outside the horizon: not due.
	testhelper.SeedEvent(t, pool, "EV-DUE-FAR", now.Add(72*time.Hour))
	// Inside the horizon but scheduled for later: not due.
	scheduled := testhelper.SeedEvent(t, pool, "EV-DUE-LATER", now.Add(3*time.Hour))
	if err := repo.Reschedule(ctx, scheduled.Reference, now, now.Add(10*time.Minute), false); err != nil {
		t.Fatalf("Reschedule: unexpected error: %v", err)
	}

	due, err := repo.DueForCheck(ctx, now, domain.MonitorHorizon)
	if err != nil {
		t.Fatalf("DueForCheck: unexpected error: %v", err)
	}

	refs := make([]string, 0, len(due))
	for _, ev := range due {
		refs = append(refs, ev.Reference)
	}
	if !slices.Contains(refs, "EV-DUE-SOON") {
		t.Errorf("EV-DUE-SOON should be due, got %v", refs)
	}
	if slices.Contains(refs, "EV-DUE-FAR") {
		t.Errorf("EV-DUE-FAR is outside the horizon, got %v", refs)
	}
	if slices.Contains(refs, "EV-DUE-LATER") {
		t.Errorf("EV-DUE-LATER is scheduled in the future, got %v", refs)
	}
}

func TestRepo_UpdatePrice(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	ev := testhelper.SeedEvent(t, pool, "EV-UPD-1", now.Add(time.Hour))
	next := now.Add(time.Minute)

	err := repo.UpdatePrice(ctx, ev.Reference, domain.PriceUpdateParams{
		CurrentBid:  1200,
		EndTime:     ev.EndTime.Add(5 * time.Minute),
		CheckedAt:   now,
		NextCheckAt: next,
	})
	if err != nil {
		t.Fatalf("UpdatePrice: unexpected error: %v", err)
	}

	got, err := repo.GetByReference(ctx, ev.Reference)
	if err != nil {
		t.Fatalf("GetByReference: unexpected error: %v", err)
	}
	if got.CurrentBid != 1200 {
		t.Errorf("CurrentBid = %v, want 1200", got.CurrentBid)
	}
	if !got.EndTime.Equal(ev.EndTime.Add(5 * time.Minute)) {
		t.Errorf("EndTime = %v, want extension to %v", got.EndTime, ev.EndTime.Add(5*time.Minute))
	}
	if !got.EndTimeInitial.Equal(ev.EndTimeInitial) {
		t.Errorf("EndTimeInitial must not move: got %v, want %v", got.EndTimeInitial, ev.EndTimeInitial)
	}
	if got.NextCheckAt == nil || !got.NextCheckAt.Equal(next) {
		t.Errorf("NextCheckAt = %v, want %v", got.NextCheckAt, next)
	}
}

func TestRepo_UpdatePrice_NeverShortensEndTime(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	ev := testhelper.SeedEvent(t, pool, "EV-UPD-SHRINK", now.Add(time.Hour))

	err := repo.UpdatePrice(ctx, ev.Reference, domain.PriceUpdateParams{
		CurrentBid:  1500,
		EndTime:     ev.EndTime.Add(-30 * time.Minute),
		CheckedAt:   now,
		NextCheckAt: now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("UpdatePrice: unexpected error: %v", err)
	}

	got, err := repo.GetByReference(ctx, ev.Reference)
	if err != nil {
		t.Fatalf("GetByReference: unexpected error: %v", err)
	}
	if !got.EndTime.Equal(ev.EndTime) {
		t.Errorf("EndTime = %v, want unchanged %v", got.EndTime, ev.EndTime)
	}
}

func TestRepo_Reschedule_FailureCounter(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	ev := testhelper.SeedEvent(t, pool, "EV-FAIL-1", now.Add(time.Hour))

	for i := 0; i < 2; i++ {
		if err := repo.Reschedule(ctx, ev.Reference, now, now.Add(time.Minute), true); err != nil {
			t.Fatalf("Reschedule (failed): unexpected error: %v", err)
		}
	}

	got, err := repo.GetByReference(ctx, ev.Reference)
	if err != nil {
		t.Fatalf("GetByReference: unexpected error: %v", err)
	}
	if got.CheckFailures != 2 {
		t.Errorf("CheckFailures = %d, want 2", got.CheckFailures)
	}
	if got.Closed {
		t.Error("failures must never close an event")
	}

	// A successful check resets the counter.
	if err := repo.Reschedule(ctx, ev.Reference, now, now.Add(time.Minute), false); err != nil {
		t.Fatalf("Reschedule (ok): unexpected error: %v", err)
	}
	got, err = repo.GetByReference(ctx, ev.Reference)
	if err != nil {
		t.Fatalf("GetByReference: unexpected error: %v", err)
	}
	if got.CheckFailures != 0 {
		t.Errorf("CheckFailures = %d, want 0 after success", got.CheckFailures)
	}
}

func TestRepo_FilterUnknown(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	testhelper.SeedEvent(t, pool, "EV-KNOWN-1", time.Now().UTC().Add(time.Hour))

	unknown, err := repo.FilterUnknown(ctx, []string{"EV-KNOWN-1", "EV-NEW-1", "EV-NEW-2"})
	if err != nil {
		t.Fatalf("FilterUnknown: unexpected error: %v", err)
	}

	slices.Sort(unknown)
	want := []string{"EV-NEW-1", "EV-NEW-2"}
	if !slices.Equal(unknown, want) {
		t.Errorf("unknown = %v, want %v", unknown, want)
	}

	empty, err := repo.FilterUnknown(ctx, nil)
	if err != nil {
		t.Fatalf("FilterUnknown (empty): unexpected error: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("empty input should yield no refs, got %v", empty)
	}
}
