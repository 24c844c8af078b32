// Package notification implements the Notification repository using
// PostgreSQL. Inserts are dedup-guarded by a unique key so a replayed
// signal cannot produce a second alert.
package notification

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/auctionwatch/internal/adapter/postgres"
	"github.com/heartmarshall/auctionwatch/internal/domain"
)

// Filter narrows the notification listing.
type Filter struct {
	UnreadOnly bool
	RuleID     *uuid.UUID
	Limit      int
}

// Repo provides notification persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

// New creates a new notification repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const insertIgnoreSQL = `
INSERT INTO notifications (id, rule_id, kind, event_reference, title, category, district,
                           previous_price, current_price, read, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10)
ON CONFLICT (rule_id, event_reference, kind, current_price) DO NOTHING`

const markReadSQL = `
UPDATE notifications SET read = true WHERE id = $1`

var notificationColumns = []string{
	"id", "rule_id", "kind", "event_reference", "title", "category", "district",
	"previous_price", "current_price", "read", "created_at",
}

// InsertIgnore persists a notification unless the same (rule, event, kind,
// price) alert already exists. Returns true when a row was inserted — the
// caller only bumps the rule's trigger counter in that case.
func (r *Repo) InsertIgnore(ctx context.Context, n domain.Notification) (bool, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := querier.Exec(ctx, insertIgnoreSQL,
		n.ID, n.RuleID, string(n.Kind), n.EventReference, n.Title, n.Category, n.District,
		n.PreviousPrice, n.CurrentPrice, n.CreatedAt)
	if err != nil {
		return false, postgres.MapError(err, "notification", n.EventReference)
	}

	return tag.RowsAffected() == 1, nil
}

// List returns notifications, newest first.
func (r *Repo) List(ctx context.Context, filter Filter) ([]domain.Notification, error) {
	query := r.sb.Select(notificationColumns...).
		From("notifications").
		OrderBy("created_at DESC")

	if filter.UnreadOnly {
		query = query.Where(sq.Eq{"read": false})
	}
	if filter.RuleID != nil {
		query = query.Where(sq.Eq{"rule_id": *filter.RuleID})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build notification query: %w", err)
	}

	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications, err := scanNotifications(rows)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	return notifications, nil
}

// MarkRead flips the read flag. Returns domain.ErrNotFound for an unknown ID.
func (r *Repo) MarkRead(ctx context.Context, id uuid.UUID) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := querier.Exec(ctx, markReadSQL, id)
	if err != nil {
		return postgres.MapError(err, "notification", id.String())
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// CountSince returns how many notifications were created at or after the
// given time (operational stat for the status surface).
func (r *Repo) CountSince(ctx context.Context, since time.Time) (int, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	var count int
	err := querier.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE created_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}

	return count, nil
}

// ---------------------------------------------------------------------------
// Row scanning helpers
// ---------------------------------------------------------------------------

func scanNotifications(rows pgx.Rows) ([]domain.Notification, error) {
	notifications := []domain.Notification{}
	for rows.Next() {
		var (
			n    domain.Notification
			kind string
		)
		if err := rows.Scan(
			&n.ID, &n.RuleID, &kind, &n.EventReference, &n.Title, &n.Category, &n.District,
			&n.PreviousPrice, &n.CurrentPrice, &n.Read, &n.CreatedAt,
		); err != nil {
			return nil, err
		}
		n.Kind = domain.RuleKind(kind)
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}
