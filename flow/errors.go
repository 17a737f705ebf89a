package flow

import (
	"errors"
	"fmt"
)

// Construction-time errors. These propagate synchronously from the
// graph-building calls and from NewExecutor; a malformed graph must not
// be allowed to start a run.
var (
	// ErrDuplicateState indicates AddState was called with a name that is
	// already registered.
	ErrDuplicateState = errors.New("state already registered")

	// ErrUnknownState indicates an operation referenced a state name that
	// has not been registered. Edge-adding calls fail atomically: the
	// graph is left unchanged.
	ErrUnknownState = errors.New("state not registered")

	// ErrNoEntryPoint indicates Validate ran before SetEntryPoint.
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrNoTerminalState indicates the graph has no terminal state and
	// therefore can never complete a run.
	ErrNoTerminalState = errors.New("graph has no terminal state")

	// ErrTerminalState indicates an outgoing edge was added from a state
	// marked terminal.
	ErrTerminalState = errors.New("state is marked terminal")

	// ErrTransitionExists indicates a state was given a second outgoing
	// transition entry. Each state carries at most one entry.
	ErrTransitionExists = errors.New("state already has an outgoing transition")
)

// Run-time errors. These never cross the run-submission boundary as
// returned errors; the executor captures them in RunResult.Err so callers
// can inspect the partial trace and payload even on failure.
var (
	// ErrStepLimitExceeded indicates the run performed its configured
	// maximum number of steps without reaching a terminal state. Cycles
	// are legal, so this guard is what bounds them.
	ErrStepLimitExceeded = errors.New("step limit exceeded")

	// ErrTimeout indicates the per-step or per-run wall-clock budget
	// expired. Expiry is treated like cancellation: the run fails and the
	// payload keeps every mutation committed by completed steps.
	ErrTimeout = errors.New("timeout exceeded")

	// ErrCancelled indicates the run was cancelled by external signal
	// between steps.
	ErrCancelled = errors.New("run cancelled")
)

// UnresolvedConditionError reports a conditional transition whose
// condition produced a label with no entry in the label map and no
// default target. This is surfaced rather than guessed: silent
// fallthrough would hide configuration bugs.
type UnresolvedConditionError struct {
	// State is the state whose transition could not be resolved.
	State string

	// Label is the value the condition function returned.
	Label string
}

func (e *UnresolvedConditionError) Error() string {
	return fmt.Sprintf("unresolved condition at state %q: label %q matches no target and no default is set", e.State, e.Label)
}

// AgentExecutionError wraps an error raised by an agent during a run.
type AgentExecutionError struct {
	// State is the state whose agent failed.
	State string

	// Err is the error the agent returned.
	Err error
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("agent at state %q failed: %v", e.State, e.Err)
}

// Unwrap returns the underlying agent error.
func (e *AgentExecutionError) Unwrap() error {
	return e.Err
}
