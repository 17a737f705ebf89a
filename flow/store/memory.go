package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory RunStore for tests and single-process use.
//
// Records are deep-copied through JSON on write and read, so callers
// never share memory with the store. Everything is lost on process
// exit.
type MemStore[S any] struct {
	mu    sync.RWMutex
	steps map[string]map[int]StepRecord[S] // runID -> step -> record
	runs  map[string]RunRecord[S]
}

// NewMemStore creates an empty MemStore.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps: make(map[string]map[int]StepRecord[S]),
		runs:  make(map[string]RunRecord[S]),
	}
}

// SaveStep stores a step record, replacing any earlier record for the
// same runID and step.
func (m *MemStore[S]) SaveStep(ctx context.Context, runID string, step int, state string, payload S) error {
	copied, err := deepCopy(payload)
	if err != nil {
		return fmt.Errorf("failed to copy payload: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.steps[runID] == nil {
		m.steps[runID] = make(map[int]StepRecord[S])
	}
	m.steps[runID][step] = StepRecord[S]{Step: step, State: state, Payload: copied}
	return nil
}

// SaveRun stores a run's final outcome.
func (m *MemStore[S]) SaveRun(ctx context.Context, rec RunRecord[S]) error {
	copied, err := deepCopy(rec.FinalPayload)
	if err != nil {
		return fmt.Errorf("failed to copy payload: %w", err)
	}
	rec.FinalPayload = copied
	rec.Trace = append([]string(nil), rec.Trace...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[rec.RunID] = rec
	return nil
}

// LoadRun retrieves a run's final outcome.
func (m *MemStore[S]) LoadRun(ctx context.Context, runID string) (RunRecord[S], error) {
	m.mu.RLock()
	rec, ok := m.runs[runID]
	m.mu.RUnlock()

	if !ok {
		var zero RunRecord[S]
		return zero, ErrNotFound
	}

	copied, err := deepCopy(rec.FinalPayload)
	if err != nil {
		var zero RunRecord[S]
		return zero, fmt.Errorf("failed to copy payload: %w", err)
	}
	rec.FinalPayload = copied
	rec.Trace = append([]string(nil), rec.Trace...)
	return rec, nil
}

// ListSteps retrieves a run's step history in step order.
func (m *MemStore[S]) ListSteps(ctx context.Context, runID string) ([]StepRecord[S], error) {
	m.mu.RLock()
	byStep := m.steps[runID]
	records := make([]StepRecord[S], 0, len(byStep))
	for _, rec := range byStep {
		records = append(records, rec)
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].Step < records[j].Step })

	for i := range records {
		copied, err := deepCopy(records[i].Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to copy payload: %w", err)
		}
		records[i].Payload = copied
	}
	return records, nil
}

// deepCopy copies a value through a JSON round trip.
func deepCopy[S any](v S) (S, error) {
	data, err := json.Marshal(v)
	if err != nil {
		var zero S
		return zero, err
	}
	var out S
	if err := json.Unmarshal(data, &out); err != nil {
		var zero S
		return zero, err
	}
	return out, nil
}
