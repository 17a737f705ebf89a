package flow

import (
	"fmt"
	"time"

	"github.com/cortexflow/flowline/flow/emit"
	"github.com/cortexflow/flowline/flow/store"
)

// DefaultMaxSteps bounds runs that never configure an explicit limit.
// Cycles are legal in a graph, so an unbounded default would let a
// misconfigured loop spin forever.
const DefaultMaxSteps = 1000

// Option configures an Executor.
type Option func(*executorConfig) error

// executorConfig collects options before NewExecutor applies them.
type executorConfig struct {
	maxSteps          int
	stepTimeout       time.Duration
	runTimeout        time.Duration
	maxConcurrentRuns int

	emitter  emit.Emitter
	store    store.RunStore[Payload]
	metrics  *Metrics
	runIDGen func() string
}

// WithMaxSteps sets the maximum number of agent executions per run.
//
// Default: DefaultMaxSteps. When the limit is reached without a terminal
// state, the run fails with ErrStepLimitExceeded after exactly n steps.
//
// Size the limit from the graph: a linear pipeline needs its depth; a
// graph with loops needs depth times the expected iteration count.
func WithMaxSteps(n int) Option {
	return func(cfg *executorConfig) error {
		if n <= 0 {
			return fmt.Errorf("max steps must be positive, got %d", n)
		}
		cfg.maxSteps = n
		return nil
	}
}

// WithStepTimeout bounds the wall-clock time of each individual agent
// execution. Zero (the default) means no per-step bound.
//
// When a step exceeds the budget the run fails with ErrTimeout wrapped
// in an AgentExecutionError naming the state.
func WithStepTimeout(d time.Duration) Option {
	return func(cfg *executorConfig) error {
		if d < 0 {
			return fmt.Errorf("step timeout cannot be negative, got %v", d)
		}
		cfg.stepTimeout = d
		return nil
	}
}

// WithRunTimeout bounds the total wall-clock time of a run. Zero (the
// default) means no bound beyond the caller's context.
//
// Expiry fails the run with ErrTimeout; the payload keeps every mutation
// committed by completed steps.
func WithRunTimeout(d time.Duration) Option {
	return func(cfg *executorConfig) error {
		if d < 0 {
			return fmt.Errorf("run timeout cannot be negative, got %v", d)
		}
		cfg.runTimeout = d
		return nil
	}
}

// WithMaxConcurrentRuns caps the number of runs executing at once on
// this Executor. Additional Execute calls block until a slot frees or
// their context is cancelled. Zero (the default) means no cap.
//
// Runs are independent: each owns its payload and they share only the
// immutable graph, so the cap exists for resource control, not safety.
func WithMaxConcurrentRuns(n int) Option {
	return func(cfg *executorConfig) error {
		if n < 0 {
			return fmt.Errorf("max concurrent runs cannot be negative, got %d", n)
		}
		cfg.maxConcurrentRuns = n
		return nil
	}
}

// WithEmitter installs an observability emitter. Default: the null
// emitter.
//
// The executor emits run_start, state_completed, run_completed, and
// run_failed events; see the emit package for backends.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *executorConfig) error {
		cfg.emitter = e
		return nil
	}
}

// WithStore installs a run store. Default: none.
//
// When set, the executor persists the payload after every completed step
// and the final result when the run ends. Store failures never fail the
// run; they are reported through the emitter.
func WithStore(s store.RunStore[Payload]) Option {
	return func(cfg *executorConfig) error {
		cfg.store = s
		return nil
	}
}

// WithMetrics installs a Prometheus metrics collector. Default: none.
func WithMetrics(m *Metrics) Option {
	return func(cfg *executorConfig) error {
		cfg.metrics = m
		return nil
	}
}

// WithRunIDFunc overrides run ID generation, e.g. to propagate an
// upstream request ID. The function must return unique values across
// concurrent calls.
func WithRunIDFunc(fn func() string) Option {
	return func(cfg *executorConfig) error {
		if fn == nil {
			return fmt.Errorf("run ID function cannot be nil")
		}
		cfg.runIDGen = fn
		return nil
	}
}
