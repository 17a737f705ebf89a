package flow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cortexflow/flowline/flow/emit"
	"github.com/cortexflow/flowline/flow/store"
)

// Executor runs workflows over a validated graph.
//
// An Executor is created once per graph and is safe for concurrent use:
// each Execute call owns its payload and trace, and runs share only the
// immutable graph and the configured observability backends.
type Executor struct {
	graph    *Graph
	warnings []Warning

	maxSteps    int
	stepTimeout time.Duration
	runTimeout  time.Duration

	emitter  emit.Emitter
	store    store.RunStore[Payload]
	metrics  *Metrics
	runIDGen func() string

	// semaphore caps concurrent runs when WithMaxConcurrentRuns is set.
	semaphore chan struct{}
}

// NewExecutor validates the graph and builds an executor for it.
//
// Validation failures (no entry point, no terminal state) are returned
// here so a malformed graph can never start a run. Non-fatal validation
// warnings are retained and available via Warnings.
func NewExecutor(g *Graph, opts ...Option) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}

	warnings, err := g.Validate()
	if err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}

	cfg := &executorConfig{
		maxSteps: DefaultMaxSteps,
		emitter:  emit.NewNullEmitter(),
		runIDGen: newRunID,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("invalid executor option: %w", err)
		}
	}

	e := &Executor{
		graph:       g,
		warnings:    warnings,
		maxSteps:    cfg.maxSteps,
		stepTimeout: cfg.stepTimeout,
		runTimeout:  cfg.runTimeout,
		emitter:     cfg.emitter,
		store:       cfg.store,
		metrics:     cfg.metrics,
		runIDGen:    cfg.runIDGen,
	}
	if cfg.maxConcurrentRuns > 0 {
		e.semaphore = make(chan struct{}, cfg.maxConcurrentRuns)
	}
	return e, nil
}

// Warnings returns the non-fatal diagnostics produced when the graph
// was validated.
func (e *Executor) Warnings() []Warning {
	out := make([]Warning, len(e.warnings))
	copy(out, e.warnings)
	return out
}

// Execute runs the workflow once over the given initial payload.
//
// The initial payload is deep-copied, so the caller's map is never
// mutated and the same map may seed many runs.
//
// The returned error covers submission failures only: an uncopyable
// payload, or cancellation while waiting for a concurrency slot. Every
// run that starts produces a RunResult; run-time failures (agent
// errors, unresolved conditions, step limit, timeouts, cancellation)
// are reported in RunResult.Err with Status set to StatusFailed, so the
// partial trace and payload remain inspectable.
func (e *Executor) Execute(ctx context.Context, initial Payload) (RunResult, error) {
	payload, err := initial.Clone()
	if err != nil {
		return RunResult{}, fmt.Errorf("invalid initial payload: %w", err)
	}

	if e.semaphore != nil {
		select {
		case e.semaphore <- struct{}{}:
			defer func() { <-e.semaphore }()
		case <-ctx.Done():
			return RunResult{}, fmt.Errorf("waiting for run slot: %w", ctx.Err())
		}
	}

	runID := e.runIDGen()

	runCtx := ctx
	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	started := time.Now()
	e.metrics.RunStarted()
	e.emitter.Emit(emit.Event{
		RunID: runID,
		Msg:   emit.RunStart,
		Meta:  map[string]any{"entry": e.graph.entry},
	})

	result := e.run(runCtx, runID, payload)
	result.RunID = runID

	duration := time.Since(started)
	e.metrics.RunFinished(result.Status, duration)
	e.finishRun(runCtx, result, duration)

	return result, nil
}

// run drives the state machine loop for one run.
func (e *Executor) run(ctx context.Context, runID string, payload Payload) RunResult {
	result := RunResult{Status: StatusRunning}
	current := e.graph.entry

	for {
		// External stop signals are honored at step boundaries; a
		// running agent is never preempted beyond its context.
		if err := ctx.Err(); err != nil {
			result.Status = StatusFailed
			result.Err = classifyContextErr(err)
			break
		}

		if result.Steps >= e.maxSteps {
			result.Status = StatusFailed
			result.Err = fmt.Errorf("%w: %d steps without reaching a terminal state", ErrStepLimitExceeded, result.Steps)
			break
		}

		result.Trace = append(result.Trace, current)

		stepStart := time.Now()
		next, err := e.executeStep(ctx, runID, current, &payload)
		result.Steps++
		stepDuration := time.Since(stepStart)

		if err != nil {
			e.metrics.StepObserved(current, stepStatus(err), stepDuration)
			result.Status = StatusFailed
			result.Err = err
			break
		}

		e.metrics.StepObserved(current, "success", stepDuration)
		e.emitter.Emit(emit.Event{
			RunID: runID,
			Step:  result.Steps,
			State: current,
			Msg:   emit.StateCompleted,
			Meta:  map[string]any{"duration_ms": stepDuration.Milliseconds()},
		})
		e.saveStep(ctx, runID, result.Steps, current, payload)

		if next == "" {
			result.Status = StatusCompleted
			break
		}
		current = next
	}

	result.FinalPayload = payload
	return result
}

// executeStep runs the agent bound to state and resolves the outgoing
// transition. It returns the next state, or "" when state ends the run.
//
// The payload pointer is updated only when the agent succeeds, so a
// failed step leaves the payload as of the last completed step.
func (e *Executor) executeStep(ctx context.Context, runID, state string, payload *Payload) (string, error) {
	agent := e.graph.agents[state]

	if agent != nil {
		out, err := e.invokeAgent(ctx, state, agent, *payload)
		if err != nil {
			return "", err
		}
		if out == nil {
			out = Payload{}
		}
		*payload = out
	}

	t, ok := e.graph.transitions[state]
	if !ok {
		return "", nil
	}
	return t.resolve(state, *payload)
}

// invokeAgent calls the agent under the per-step timeout, if one is
// configured, and classifies the failure.
func (e *Executor) invokeAgent(ctx context.Context, state string, agent Agent, payload Payload) (Payload, error) {
	stepCtx := ctx
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	out, err := agent.Execute(stepCtx, payload)
	if err == nil {
		return out, nil
	}

	// A deadline on the step context means the step (or the whole run)
	// ran out of time; report that rather than the agent's own error.
	if stepCtx.Err() == context.DeadlineExceeded {
		return nil, &AgentExecutionError{
			State: state,
			Err:   fmt.Errorf("%w: agent did not finish in time", ErrTimeout),
		}
	}
	return nil, &AgentExecutionError{State: state, Err: err}
}

// finishRun emits the terminal event and persists the result.
func (e *Executor) finishRun(ctx context.Context, result RunResult, duration time.Duration) {
	meta := map[string]any{
		"steps":       result.Steps,
		"duration_ms": duration.Milliseconds(),
	}
	msg := emit.RunCompleted
	if result.Status == StatusFailed {
		msg = emit.RunFailed
		meta["error"] = result.Err.Error()
	}
	e.emitter.Emit(emit.Event{RunID: result.RunID, Step: result.Steps, Msg: msg, Meta: meta})

	if e.store == nil {
		return
	}
	rec := store.RunRecord[Payload]{
		RunID:        result.RunID,
		Status:       result.Status.String(),
		Trace:        result.Trace,
		Steps:        result.Steps,
		FinalPayload: result.FinalPayload,
	}
	if result.Err != nil {
		rec.Err = result.Err.Error()
	}
	if err := e.store.SaveRun(persistCtx(ctx), rec); err != nil {
		e.emitter.Emit(emit.Event{
			RunID: result.RunID,
			Msg:   emit.StoreError,
			Meta:  map[string]any{"error": err.Error(), "op": "save_run"},
		})
	}
}

// saveStep persists a completed step. Store failures never fail the
// run; they are reported through the emitter.
func (e *Executor) saveStep(ctx context.Context, runID string, step int, state string, payload Payload) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveStep(persistCtx(ctx), runID, step, state, payload); err != nil {
		e.emitter.Emit(emit.Event{
			RunID: runID,
			Step:  step,
			State: state,
			Msg:   emit.StoreError,
			Meta:  map[string]any{"error": err.Error(), "op": "save_step"},
		})
	}
}

// persistCtx returns ctx unless it is already dead, in which case a
// fresh context is used so the final record of a cancelled run still
// gets written.
func persistCtx(ctx context.Context) context.Context {
	if ctx.Err() != nil {
		return context.Background()
	}
	return ctx
}

// classifyContextErr maps a context error to the run error taxonomy.
func classifyContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: run deadline exceeded", ErrTimeout)
	}
	return fmt.Errorf("%w: %v", ErrCancelled, err)
}

// stepStatus labels a failed step for metrics.
func stepStatus(err error) string {
	if errors.Is(err, ErrTimeout) {
		return "timeout"
	}
	return "error"
}

// newRunID generates a random run identifier.
func newRunID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return "run-" + hex.EncodeToString(buf)
}
