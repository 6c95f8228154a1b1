// Package store records pipeline runs in a local ledger.
package store

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded invocation of a pipeline command.
type Run struct {
	ID          string         `json:"id"`
	Command     string         `json:"command"`
	Status      RunStatus      `json:"status"`
	Inputs      int64          `json:"inputs"`
	RowsRead    int64          `json:"rows_read"`
	RowsKept    int64          `json:"rows_kept"`
	Strategy    string         `json:"strategy,omitempty"`
	Metrics     map[string]any `json:"metrics,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// RunResult is what a finished run reports.
type RunResult struct {
	Inputs   int64
	RowsRead int64
	RowsKept int64
	Strategy string
	Metrics  map[string]any
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Command string    `json:"command,omitempty"`
	Status  RunStatus `json:"status,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Offset  int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run ledger.
type Store interface {
	StartRun(ctx context.Context, command string) (*Run, error)
	CompleteRun(ctx context.Context, runID string, result RunResult) error
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}
