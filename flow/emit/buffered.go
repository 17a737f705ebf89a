package emit

import "sync"

// BufferedEmitter stores events in memory, organized by run ID.
//
// Intended for tests, debugging, and post-run analysis. Everything stays
// in memory, so long-lived processes should Clear finished runs.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// Filter selects events from a run's history. Zero-valued fields do not
// filter; set fields combine with AND.
type Filter struct {
	State   string // match events for this state
	Msg     string // match this event type
	MinStep *int   // inclusive lower step bound
	MaxStep *int   // inclusive upper step bound
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit appends the event to its run's history.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// History returns a copy of all events for runID in emission order.
func (b *BufferedEmitter) History(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[runID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// HistoryWithFilter returns the events for runID matching the filter,
// in emission order.
func (b *BufferedEmitter) HistoryWithFilter(runID string, f Filter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, e := range b.events[runID] {
		if f.State != "" && e.State != f.State {
			continue
		}
		if f.Msg != "" && e.Msg != f.Msg {
			continue
		}
		if f.MinStep != nil && e.Step < *f.MinStep {
			continue
		}
		if f.MaxStep != nil && e.Step > *f.MaxStep {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Clear drops the history for runID.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, runID)
}

// ClearAll drops all histories.
func (b *BufferedEmitter) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = make(map[string][]Event)
}
