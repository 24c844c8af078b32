// Package event implements the Event repository using PostgreSQL.
// Events are keyed by their immutable upstream reference.
package event

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/auctionwatch/internal/adapter/postgres"
	"github.com/heartmarshall/auctionwatch/internal/domain"
)

// Repo provides event persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new event repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const eventColumns = `reference, title, category, subcategory, district, municipality,
       base_value, opening_value, minimum_value, current_bid,
       start_time, end_time, end_time_initial,
       canceled, started, closed,
       check_failures, last_checked_at, next_check_at,
       created_at, updated_at`

const insertIgnoreSQL = `
INSERT INTO events (reference, title, category, subcategory, district, municipality,
                    base_value, opening_value, minimum_value, current_bid,
                    start_time, end_time, end_time_initial,
                    canceled, started, closed,
                    created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, false, $16, $16)
ON CONFLICT (reference) DO NOTHING`

const getByReferenceSQL = `
SELECT ` + eventColumns + `
FROM events
WHERE reference = $1`

const activeReferencesSQL = `
SELECT reference FROM events
WHERE NOT closed AND NOT canceled`

const dueForCheckSQL = `
SELECT ` + eventColumns + `
FROM events
WHERE NOT closed AND NOT canceled
  AND end_time <= $1 + $2::interval
  AND (next_check_at IS NULL OR next_check_at <= $1)
ORDER BY end_time ASC`

const updatePriceSQL = `
UPDATE events
SET current_bid   = $2,
    end_time      = GREATEST(end_time, $3),
    check_failures = 0,
    last_checked_at = $4,
    next_check_at   = $5,
    updated_at      = $4
WHERE reference = $1 AND NOT closed`

const rescheduleSQL = `
UPDATE events
SET check_failures  = CASE WHEN $4 THEN check_failures + 1 ELSE 0 END,
    last_checked_at = $2,
    next_check_at   = $3,
    updated_at      = $2
WHERE reference = $1 AND NOT closed`

const closeSQL = `
UPDATE events
SET closed = true,
    next_check_at  = NULL,
    check_failures = 0,
    updated_at     = $2
WHERE reference = $1 AND NOT closed`

const filterUnknownSQL = `
SELECT r FROM unnest($1::text[]) AS r
WHERE NOT EXISTS (SELECT 1 FROM events e WHERE e.reference = r)`

// InsertIgnore inserts a new event, ignoring references already present.
// Returns true when a row was actually inserted. end_time_initial is
// snapshotted from the event's EndTime when its own value is zero.
func (r *Repo) InsertIgnore(ctx context.Context, ev domain.Event) (bool, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	endTimeInitial := ev.EndTimeInitial
	if endTimeInitial.IsZero() {
		endTimeInitial = ev.EndTime
	}

	tag, err := querier.Exec(ctx, insertIgnoreSQL,
		ev.Reference, ev.Title, ev.Category, ev.Subcategory, ev.District, ev.Municipality,
		ev.BaseValue, ev.OpeningValue, ev.MinimumValue, ev.CurrentBid,
		ev.StartTime, ev.EndTime, endTimeInitial,
		ev.Canceled, ev.Started,
		now,
	)
	if err != nil {
		return false, postgres.MapError(err, "event", ev.Reference)
	}

	return tag.RowsAffected() == 1, nil
}

// GetByReference returns one event by its upstream reference.
func (r *Repo) GetByReference(ctx context.Context, reference string) (domain.Event, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	row := querier.QueryRow(ctx, getByReferenceSQL, reference)
	ev, err := scanEvent(row)
	if err != nil {
		return domain.Event{}, postgres.MapError(err, "event", reference)
	}

	return ev, nil
}

// ActiveReferences returns the references of all locally-active events
// (not closed, not canceled).
func (r *Repo) ActiveReferences(ctx context.Context) ([]string, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, activeReferencesSQL)
	if err != nil {
		return nil, fmt.Errorf("active references: %w", err)
	}
	defer rows.Close()

	refs := []string{}
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}

	return refs, nil
}

// DueForCheck returns active events closing within the horizon whose
// per-event due time has elapsed (or was never set). Soonest-closing first.
func (r *Repo) DueForCheck(ctx context.Context, now time.Time, horizon time.Duration) ([]domain.Event, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, dueForCheckSQL, now, horizon)
	if err != nil {
		return nil, fmt.Errorf("due events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("due events: %w", err)
	}

	return events, nil
}

// UpdatePrice applies an observed price change. end_time only ever moves
// later; a concurrently closed event is left untouched (ErrNotFound).
func (r *Repo) UpdatePrice(ctx context.Context, reference string, params domain.PriceUpdateParams) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := querier.Exec(ctx, updatePriceSQL,
		reference, params.CurrentBid, params.EndTime, params.CheckedAt, params.NextCheckAt)
	if err != nil {
		return postgres.MapError(err, "event", reference)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", reference, domain.ErrNotFound)
	}

	return nil
}

// Reschedule pushes the event's due time forward. failed=true also
// increments the consecutive failure counter; failed=false resets it.
func (r *Repo) Reschedule(ctx context.Context, reference string, checkedAt, nextCheckAt time.Time, failed bool) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := querier.Exec(ctx, rescheduleSQL, reference, checkedAt, nextCheckAt, failed)
	if err != nil {
		return postgres.MapError(err, "event", reference)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", reference, domain.ErrNotFound)
	}

	return nil
}

// Close flags the event as closed and removes it from monitoring.
// Closing an already-closed event is a no-op (nil), keeping reconciliation
// idempotent.
func (r *Repo) Close(ctx context.Context, reference string) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	if _, err := querier.Exec(ctx, closeSQL, reference, now); err != nil {
		return postgres.MapError(err, "event", reference)
	}

	return nil
}

// FilterUnknown returns the subset of refs with no local row, preserving no
// particular order.
func (r *Repo) FilterUnknown(ctx context.Context, refs []string) ([]string, error) {
	if len(refs) == 0 {
		return []string{}, nil
	}

	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, filterUnknownSQL, refs)
	if err != nil {
		return nil, fmt.Errorf("filter unknown references: %w", err)
	}
	defer rows.Close()

	unknown := []string{}
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		unknown = append(unknown, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}

	return unknown, nil
}

// ---------------------------------------------------------------------------
// Row scanning helpers
// ---------------------------------------------------------------------------

func scanEvents(rows pgx.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if events == nil {
		events = []domain.Event{}
	}

	return events, nil
}

func scanEvent(row pgx.Row) (domain.Event, error) {
	var ev domain.Event
	err := row.Scan(
		&ev.Reference, &ev.Title, &ev.Category, &ev.Subcategory, &ev.District, &ev.Municipality,
		&ev.BaseValue, &ev.OpeningValue, &ev.MinimumValue, &ev.CurrentBid,
		&ev.StartTime, &ev.EndTime, &ev.EndTimeInitial,
		&ev.Canceled, &ev.Started, &ev.Closed,
		&ev.CheckFailures, &ev.LastCheckedAt, &ev.NextCheckAt,
		&ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return domain.Event{}, err
	}

	return ev, nil
}
