package flow

// Status is the lifecycle state of a workflow run.
type Status string

const (
	// StatusRunning means the run has started and has not yet finished.
	StatusRunning Status = "running"

	// StatusCompleted means the run reached a terminal state and its
	// agent executed successfully.
	StatusCompleted Status = "completed"

	// StatusFailed means the run stopped before reaching a terminal
	// state: an agent error, an unresolved condition, the step limit, a
	// timeout, or cancellation.
	StatusFailed Status = "failed"
)

// String returns the status label.
func (s Status) String() string { return string(s) }

// RunResult is the outcome of a single workflow run.
//
// A result is produced for every run that starts, successful or not. On
// failure FinalPayload holds the payload as of the last completed step
// and Trace holds every state entered, so callers can see exactly how
// far the run got.
type RunResult struct {
	// RunID identifies the run. Generated unless supplied via
	// WithRunIDFunc.
	RunID string

	// Status is StatusCompleted or StatusFailed.
	Status Status

	// FinalPayload is the payload after the last completed agent
	// execution.
	FinalPayload Payload

	// Trace lists the states entered, in order, starting with the entry
	// point. A state appears once per visit, so cycles repeat it.
	Trace []string

	// Steps is the number of agent executions performed.
	Steps int

	// Err classifies the failure. Nil when Status is StatusCompleted.
	// Inspect with errors.Is (ErrStepLimitExceeded, ErrTimeout,
	// ErrCancelled) or errors.As (*AgentExecutionError,
	// *UnresolvedConditionError).
	Err error
}
