// Package pricehistory implements the append-only price history repository.
package pricehistory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/auctionwatch/internal/adapter/postgres"
	"github.com/heartmarshall/auctionwatch/internal/domain"
)

// Repo provides price history persistence backed by PostgreSQL.
// Entries are immutable: there are no update or delete operations.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new price history repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const appendSQL = `
INSERT INTO price_history (reference, old_price, new_price, delta, source, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6)`

const listByReferenceSQL = `
SELECT reference, old_price, new_price, delta, source, recorded_at
FROM price_history
WHERE reference = $1
ORDER BY recorded_at ASC`

// Append records one observed price change.
func (r *Repo) Append(ctx context.Context, entry domain.PriceHistoryEntry) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := querier.Exec(ctx, appendSQL,
		entry.Reference, entry.OldPrice, entry.NewPrice, entry.Delta,
		string(entry.Source), entry.RecordedAt)
	if err != nil {
		return postgres.MapError(err, "price_history", entry.Reference)
	}

	return nil
}

// ListByReference returns the full price trail of one event, oldest first.
func (r *Repo) ListByReference(ctx context.Context, reference string) ([]domain.PriceHistoryEntry, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, listByReferenceSQL, reference)
	if err != nil {
		return nil, fmt.Errorf("list price history: %w", err)
	}
	defer rows.Close()

	entries := []domain.PriceHistoryEntry{}
	for rows.Next() {
		var e domain.PriceHistoryEntry
		var source string
		if err := rows.Scan(&e.Reference, &e.OldPrice, &e.NewPrice, &e.Delta, &source, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan price history entry: %w", err)
		}
		e.Source = domain.PipelineName(source)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price history: %w", err)
	}

	return entries, nil
}
