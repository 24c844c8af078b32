// Package rule implements the NotificationRule repository using PostgreSQL.
// Rules are owned by the user/config subsystem; the engine only reads them
// and bumps trigger counters.
package rule

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

// Filter narrows the rule listing. Nil fields are not applied.
type Filter struct {
	Kind       *domain.RuleKind
	ActiveOnly bool
}

// Repo provides notification rule persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

// New creates a new rule repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

var ruleColumns = []string{
	"id", "kind", "active",
	"categories", "subcategories", "districts",
	"min_price", "max_price", "min_variation_pct", "max_minutes_left",
	"event_reference", "trigger_count", "last_triggered",
	"created_at", "updated_at",
}

const incrementTriggerSQL = `
UPDATE notification_rules
SET trigger_count = trigger_count + 1,
    last_triggered = $2,
    updated_at     = $2
WHERE id = $1`

// List returns rules matching the filter, oldest first.
func (r *Repo) List(ctx context.Context, filter Filter) ([]domain.NotificationRule, error) {
	query := r.sb.Select(ruleColumns...).
		From("notification_rules").
		OrderBy("created_at ASC")

	if filter.ActiveOnly {
		query = query.Where(sq.Eq{"active": true})
	}
	if filter.Kind != nil {
		query = query.Where(sq.Eq{"kind": string(*filter.Kind)})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rule query: %w", err)
	}

	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	rules, err := scanRules(rows)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	return rules, nil
}

// GetActive returns active rules for the given signal kind.
func (r *Repo) GetActive(ctx context.Context, kind domain.RuleKind) ([]domain.NotificationRule, error) {
	return r.List(ctx, Filter{Kind: &kind, ActiveOnly: true})
}

// IncrementTrigger bumps the rule's trigger counter and stamps
// last_triggered. Returns domain.ErrNotFound for an unknown rule.
func (r *Repo) IncrementTrigger(ctx context.Context, ruleID uuid.UUID, at time.Time) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := querier.Exec(ctx, incrementTriggerSQL, ruleID, at)
	if err != nil {
		return postgres.MapError(err, "rule", ruleID.String())
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, domain.ErrNotFound)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Row scanning helpers
// ---------------------------------------------------------------------------

func scanRules(rows pgx.Rows) ([]domain.NotificationRule, error) {
	rules := []domain.NotificationRule{}
	for rows.Next() {
		var (
			r    domain.NotificationRule
			kind string
		)
		if err := rows.Scan(
			&r.ID, &kind, &r.Active,
			&r.Categories, &r.Subcategories, &r.Districts,
			&r.MinPrice, &r.MaxPrice, &r.MinVariationPct, &r.MaxMinutesLeft,
			&r.EventReference, &r.TriggerCount, &r.LastTriggered,
			&r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		r.Kind = domain.RuleKind(kind)
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rules, nil
}
