package domain

import (
	"fmt"
	"time"
)

// PipelineName identifies one of the three fixed pipelines.
type PipelineName string

const (
	PipelineMonitor   PipelineName = "x-monitor"
	PipelineSync      PipelineName = "y-sync"
	PipelineDiscovery PipelineName = "z-watch"
)

// PipelineNames lists all pipelines in their canonical order.
var PipelineNames = []PipelineName{PipelineMonitor, PipelineSync, PipelineDiscovery}

// PipelineRunState is the persisted scheduling record for one pipeline.
// It is read at startup and written after every run, so a process restart
// resumes schedules instead of re-running everything immediately.
type PipelineRunState struct {
	Name      PipelineName
	Enabled   bool
	IsRunning bool
	Interval  time.Duration
	LastRun   *time.Time
	NextRun   *time.Time
	RunsCount int
	LastResult string
	UpdatedAt time.Time
}

// RunReport summarizes one pipeline run for logs and the persisted
// last_result field.
type RunReport struct {
	Processed int
	Changed   int
	Inserted  int
	Closed    int
	Failed    int
	Notified  int
	Duration  time.Duration
}

func (r RunReport) String() string {
	return fmt.Sprintf("processed=%d changed=%d inserted=%d closed=%d failed=%d notified=%d duration=%s",
		r.Processed, r.Changed, r.Inserted, r.Closed, r.Failed, r.Notified, r.Duration.Round(time.Millisecond))
}
