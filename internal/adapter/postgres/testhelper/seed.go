package testhelper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/auctionwatch/internal/domain"
)

// SeedEvent inserts an event row directly and returns it.
func SeedEvent(t *testing.T, pool *pgxpool.Pool, reference string, endTime time.Time) domain.Event {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	ev := domain.Event{
		Reference:      reference,
		Title:          "seeded " + reference,
		Category:       "real_estate",
		Subcategory:    "apartment",
		District:       "lisboa",
		CurrentBid:     1000,
		StartTime:      now.Add(-24 * time.Hour),
		EndTime:        endTime,
		EndTimeInitial: endTime,
		Started:        true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := pool.Exec(context.Background(), `
		INSERT INTO events (reference, title, category, subcategory, district, municipality,
		                    base_value, opening_value, minimum_value, current_bid,
		                    start_time, end_time, end_time_initial,
		                    canceled, started, closed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '', 0, 0, 0, $6, $7, $8, $8, false, true, false, $9, $9)`,
		ev.Reference, ev.Title, ev.Category, ev.Subcategory, ev.District,
		ev.CurrentBid, ev.StartTime, ev.EndTime, now,
	)
	if err != nil {
		t.Fatalf("testhelper: seed event %s: %v", reference, err)
	}

	return ev
}

// SeedRule inserts a notification rule row and returns it with its new ID.
func SeedRule(t *testing.T, pool *pgxpool.Pool, kind domain.RuleKind, active bool) domain.NotificationRule {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	rule := domain.NotificationRule{
		ID:        uuid.New(),
		Kind:      kind,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := pool.Exec(context.Background(), `
		INSERT INTO notification_rules (id, kind, active, categories, subcategories, districts,
		                                trigger_count, created_at, updated_at)
		VALUES ($1, $2, $3, '{}', '{}', '{}', 0, $4, $4)`,
		rule.ID, string(rule.Kind), rule.Active, now,
	)
	if err != nil {
		t.Fatalf("testhelper: seed rule: %v", err)
	}

	return rule
}
