// Package pipelinestate implements the persisted scheduling record for the
// three pipelines: one row per pipeline name, read at startup, written after
// every run.
package pipelinestate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/auctionwatch/internal/adapter/postgres"
	"github.com/heartmarshall/auctionwatch/internal/domain"
)

// Repo provides pipeline run state persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new pipeline state repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const getSQL = `
SELECT name, enabled, is_running, interval_ms, last_run, next_run, runs_count, last_result, updated_at
FROM pipeline_state
WHERE name = $1`

const saveSQL = `
INSERT INTO pipeline_state (name, enabled, is_running, interval_ms, last_run, next_run, runs_count, last_result, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (name) DO UPDATE
SET enabled     = EXCLUDED.enabled,
    is_running  = EXCLUDED.is_running,
    interval_ms = EXCLUDED.interval_ms,
    last_run    = EXCLUDED.last_run,
    next_run    = EXCLUDED.next_run,
    runs_count  = EXCLUDED.runs_count,
    last_result = EXCLUDED.last_result,
    updated_at  = EXCLUDED.updated_at`

// Get returns the persisted state for one pipeline.
// Returns domain.ErrNotFound when the pipeline never ran on this store.
func (r *Repo) Get(ctx context.Context, name domain.PipelineName) (domain.PipelineRunState, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	var (
		st         domain.PipelineRunState
		rawName    string
		intervalMS int64
	)
	err := querier.QueryRow(ctx, getSQL, string(name)).Scan(
		&rawName, &st.Enabled, &st.IsRunning, &intervalMS,
		&st.LastRun, &st.NextRun, &st.RunsCount, &st.LastResult, &st.UpdatedAt,
	)
	if err != nil {
		return domain.PipelineRunState{}, postgres.MapError(err, "pipeline_state", string(name))
	}

	st.Name = domain.PipelineName(rawName)
	st.Interval = time.Duration(intervalMS) * time.Millisecond

	return st, nil
}

// Save upserts the state row for one pipeline.
func (r *Repo) Save(ctx context.Context, st domain.PipelineRunState) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	_, err := querier.Exec(ctx, saveSQL,
		string(st.Name), st.Enabled, st.IsRunning, st.Interval.Milliseconds(),
		st.LastRun, st.NextRun, st.RunsCount, st.LastResult, now,
	)
	if err != nil {
		return postgres.MapError(err, "pipeline_state", string(st.Name))
	}

	return nil
}

// GetAll returns the persisted state of every known pipeline, skipping
// pipelines with no row yet.
func (r *Repo) GetAll(ctx context.Context) ([]domain.PipelineRunState, error) {
	states := []domain.PipelineRunState{}
	for _, name := range domain.PipelineNames {
		st, err := r.Get(ctx, name)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get pipeline state: %w", err)
		}
		states = append(states, st)
	}

	return states, nil
}
