// Package pipeline runs the three fixed pipelines on their configured
// intervals. The supervisor owns scheduling only; the pipelines own their
// semantics.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/heartmarshall/auctionwatch/internal/domain"
)

// Pipeline is one schedulable unit of work.
type Pipeline interface {
	Name() domain.PipelineName
	Run(ctx context.Context) (domain.RunReport, error)
}

type stateRepo interface {
	Save(ctx context.Context, st domain.PipelineRunState) error
	GetAll(ctx context.Context) ([]domain.PipelineRunState, error)
}

// Observer receives scheduling events for metrics.
type Observer interface {
	ObserveRun(name domain.PipelineName, failed bool, d time.Duration)
	SetRunning(name domain.PipelineName, running bool)
}

// runner is the in-memory scheduling state of one registered pipeline.
type runner struct {
	pipeline Pipeline
	state    domain.PipelineRunState
}

// Supervisor schedules registered pipelines on a shared tick.
type Supervisor struct {
	states   stateRepo
	clock    clockwork.Clock
	observer Observer
	log      *slog.Logger

	mu      sync.Mutex
	runners map[domain.PipelineName]*runner
	order   []domain.PipelineName

	wg sync.WaitGroup
}

// NewSupervisor creates an empty supervisor. Register pipelines before Start.
func NewSupervisor(log *slog.Logger, states stateRepo, clock clockwork.Clock, observer Observer) *Supervisor {
	return &Supervisor{
		states:   states,
		clock:    clock,
		observer: observer,
		log:      log.With("service", "supervisor"),
		runners:  make(map[domain.PipelineName]*runner),
	}
}

// Register adds a pipeline with its configured interval and enabled flag.
func (s *Supervisor) Register(p Pipeline, interval time.Duration, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := p.Name()
	s.runners[name] = &runner{
		pipeline: p,
		state: domain.PipelineRunState{
			Name:     name,
			Enabled:  enabled,
			Interval: interval,
		},
	}
	s.order = append(s.order, name)
}

// Start restores persisted schedules and runs the tick loop until ctx is
// canceled, then waits for in-flight runs to finish. Persisted is_running
// flags are cleared: a run interrupted by a crash did not finish, and every
// pipeline is safe to start over.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.restore(ctx); err != nil {
		return fmt.Errorf("restore pipeline state: %w", err)
	}

	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-ticker.Chan():
			s.dispatchDue(ctx)
		}
	}
}

func (s *Supervisor) restore(ctx context.Context) error {
	persisted, err := s.states.GetAll(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range persisted {
		r, ok := s.runners[st.Name]
		if !ok {
			continue
		}
		if st.IsRunning {
			s.log.WarnContext(ctx, "clearing stale running flag", slog.String("pipeline", string(st.Name)))
		}
		// The persisted toggle wins over the config default: a pipeline
		// disabled at runtime stays disabled across a restart.
		r.state.Enabled = st.Enabled
		r.state.LastRun = st.LastRun
		r.state.NextRun = st.NextRun
		r.state.RunsCount = st.RunsCount
		r.state.LastResult = st.LastResult
	}

	return nil
}

// dispatchDue starts every enabled, idle pipeline whose next_run has passed.
func (s *Supervisor) dispatchDue(ctx context.Context) {
	now := s.clock.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range s.order {
		r := s.runners[name]
		if !r.state.Enabled || r.state.IsRunning {
			continue
		}
		if r.state.NextRun != nil && now.Before(*r.state.NextRun) {
			continue
		}
		s.launch(ctx, r)
	}
}

// launch marks the runner busy and starts the run in its own goroutine.
// Callers hold s.mu.
func (s *Supervisor) launch(ctx context.Context, r *runner) {
	r.state.IsRunning = true
	if s.observer != nil {
		s.observer.SetRunning(r.state.Name, true)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runOne(ctx, r)
	}()
}

func (s *Supervisor) runOne(ctx context.Context, r *runner) {
	name := r.state.Name
	started := s.clock.Now().UTC()

	report, err := r.pipeline.Run(ctx)
	report.Duration = s.clock.Now().UTC().Sub(started)

	result := report.String()
	if err != nil {
		result = fmt.Sprintf("error: %v", err)
		s.log.ErrorContext(ctx, "pipeline run failed",
			slog.String("pipeline", string(name)),
			slog.String("error", err.Error()),
		)
	} else {
		s.log.InfoContext(ctx, "pipeline run finished",
			slog.String("pipeline", string(name)),
			slog.String("report", result),
		)
	}

	if s.observer != nil {
		s.observer.ObserveRun(name, err != nil, report.Duration)
		s.observer.SetRunning(name, false)
	}

	finished := s.clock.Now().UTC()
	next := finished.Add(r.state.Interval)

	s.mu.Lock()
	r.state.IsRunning = false
	r.state.LastRun = &started
	r.state.NextRun = &next
	r.state.RunsCount++
	r.state.LastResult = result
	snapshot := r.state
	s.mu.Unlock()

	// Persisted is_running stays false: the run is over by the time we save.
	if err := s.states.Save(ctx, snapshot); err != nil {
		s.log.ErrorContext(ctx, "save pipeline state failed",
			slog.String("pipeline", string(name)),
			slog.String("error", err.Error()),
		)
	}
}

// Enable resumes scheduling for a pipeline.
func (s *Supervisor) Enable(ctx context.Context, name domain.PipelineName) error {
	return s.setEnabled(ctx, name, true)
}

// Disable stops future runs of a pipeline. An in-flight run is not
// interrupted; it finishes and persists its result normally.
func (s *Supervisor) Disable(ctx context.Context, name domain.PipelineName) error {
	return s.setEnabled(ctx, name, false)
}

func (s *Supervisor) setEnabled(ctx context.Context, name domain.PipelineName, enabled bool) error {
	s.mu.Lock()
	r, ok := s.runners[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("pipeline %q: %w", name, domain.ErrNotFound)
	}
	r.state.Enabled = enabled
	snapshot := r.state
	s.mu.Unlock()

	return s.states.Save(ctx, snapshot)
}

// RunNow schedules an immediate run of one pipeline, skipping its interval.
// Returns domain.ErrConflict when the pipeline is already running.
func (s *Supervisor) RunNow(ctx context.Context, name domain.PipelineName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runners[name]
	if !ok {
		return fmt.Errorf("pipeline %q: %w", name, domain.ErrNotFound)
	}
	if r.state.IsRunning {
		return fmt.Errorf("pipeline %q is running: %w", name, domain.ErrConflict)
	}
	s.launch(ctx, r)

	return nil
}

// Status returns a snapshot of every registered pipeline's scheduling state.
func (s *Supervisor) Status() []domain.PipelineRunState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.PipelineRunState, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.runners[name].state)
	}

	return out
}
