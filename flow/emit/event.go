// Package emit provides pluggable observability for workflow runs.
//
// The executor reports its progress as a stream of Events; an Emitter
// decides what happens to them (logging, buffering, tracing, nothing).
package emit

// Standard event messages emitted by the executor.
const (
	RunStart       = "run_start"
	StateCompleted = "state_completed"
	RunCompleted   = "run_completed"
	RunFailed      = "run_failed"
	StoreError     = "store_error"
)

// Event is a single observability record from a workflow run.
type Event struct {
	// RunID identifies the run that emitted this event.
	RunID string

	// Step is the 1-indexed agent execution number. Zero for run-level
	// events (run_start, run_completed, run_failed).
	Step int

	// State names the graph state the event concerns. Empty for
	// run-level events.
	State string

	// Msg is the event type, one of the message constants above.
	Msg string

	// Meta carries additional structured data. Common keys:
	//   - "duration_ms": execution duration in milliseconds
	//   - "next": the state resolved by a transition
	//   - "error": failure details
	//   - "steps": total steps at run end
	Meta map[string]any
}
