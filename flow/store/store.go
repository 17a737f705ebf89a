// Package store provides persistence backends for workflow run history.
//
// A RunStore records the payload after every completed step and the
// final result when a run ends, so past runs can be audited and
// debugged. Three backends ship with the package: in-memory (tests,
// single-process use), SQLite (embedded, zero-ops), and MySQL (shared
// server).
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested run ID does not exist.
var ErrNotFound = errors.New("not found")

// StepRecord is the persisted snapshot of one completed step.
//
// Type parameter S is the payload type.
type StepRecord[S any] struct {
	// Step is the 1-indexed step number within the run.
	Step int

	// State names the graph state whose agent produced this payload.
	State string

	// Payload is the payload after the step completed.
	Payload S
}

// RunRecord is the persisted final outcome of a run.
type RunRecord[S any] struct {
	// RunID identifies the run.
	RunID string

	// Status is the final status label ("completed" or "failed").
	Status string

	// Trace lists the states entered, in order.
	Trace []string

	// Steps is the number of agent executions performed.
	Steps int

	// FinalPayload is the payload after the last completed step.
	FinalPayload S

	// Err is the failure description, empty for completed runs.
	Err string
}

// RunStore persists run history.
//
// Implementations must be safe for concurrent use: one store instance
// may serve many simultaneous runs.
type RunStore[S any] interface {
	// SaveStep persists the payload after a completed step. Writing the
	// same runID and step again replaces the earlier record.
	SaveStep(ctx context.Context, runID string, step int, state string, payload S) error

	// SaveRun persists the final outcome of a run, replacing any
	// earlier record for the same run ID.
	SaveRun(ctx context.Context, rec RunRecord[S]) error

	// LoadRun retrieves a run's final outcome. Returns ErrNotFound if
	// the run was never saved.
	LoadRun(ctx context.Context, runID string) (RunRecord[S], error)

	// ListSteps retrieves a run's step history in step order. Returns
	// an empty slice for unknown runs.
	ListSteps(ctx context.Context, runID string) ([]StepRecord[S], error)
}
