package flow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cortexflow/flowline/flow/emit"
	"github.com/cortexflow/flowline/flow/store"
)

// branchingGraph builds the routing shape used throughout: A evaluates
// the "flag" field, "x" goes to B, B goes to Terminal. When withDefault
// is set, unknown flags also route to B.
func branchingGraph(t *testing.T, withDefault bool) *Graph {
	t.Helper()

	g := NewGraph()
	mustEdge(t, g.AddState("A", Identity()))
	mustEdge(t, g.AddState("B", Identity()))
	mustEdge(t, g.AddState("Terminal", Identity()))

	defaultTarget := ""
	if withDefault {
		defaultTarget = "B"
	}
	mustEdge(t, g.AddConditionalEdges("A", FieldCondition("flag"), map[string]string{"x": "B"}, defaultTarget))
	mustEdge(t, g.AddUnconditionalEdge("B", "Terminal"))
	mustEdge(t, g.MarkTerminal("Terminal"))
	mustEdge(t, g.SetEntryPoint("A"))
	return g
}

func TestExecutor_RoutesOnConditionLabel(t *testing.T) {
	exec, err := NewExecutor(branchingGraph(t, false))
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	result, err := exec.Execute(context.Background(), Payload{"flag": "x"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Status != StatusCompleted {
		t.Errorf("status = %s, want completed (err: %v)", result.Status, result.Err)
	}
	want := []string{"A", "B", "Terminal"}
	if !reflect.DeepEqual(result.Trace, want) {
		t.Errorf("trace = %v, want %v", result.Trace, want)
	}
	if result.Steps != 3 {
		t.Errorf("steps = %d, want 3", result.Steps)
	}
}

func TestExecutor_UnresolvedConditionFailsRun(t *testing.T) {
	exec, err := NewExecutor(branchingGraph(t, false))
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	result, err := exec.Execute(context.Background(), Payload{"flag": "z"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	var ucErr *UnresolvedConditionError
	if !errors.As(result.Err, &ucErr) {
		t.Fatalf("expected UnresolvedConditionError, got %v", result.Err)
	}
	if ucErr.State != "A" || ucErr.Label != "z" {
		t.Errorf("error fields = %q/%q, want A/z", ucErr.State, ucErr.Label)
	}
	if !reflect.DeepEqual(result.Trace, []string{"A"}) {
		t.Errorf("trace = %v, want [A]", result.Trace)
	}
}

func TestExecutor_DefaultTargetCatchesUnknownLabel(t *testing.T) {
	exec, err := NewExecutor(branchingGraph(t, true))
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	result, err := exec.Execute(context.Background(), Payload{"flag": "z"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Errorf("status = %s, want completed (err: %v)", result.Status, result.Err)
	}
	if !reflect.DeepEqual(result.Trace, []string{"A", "B", "Terminal"}) {
		t.Errorf("trace = %v", result.Trace)
	}
}

func TestExecutor_StepLimitBoundsCycles(t *testing.T) {
	const limit = 7
	var executions int64
	counting := AgentFunc(func(_ context.Context, p Payload) (Payload, error) {
		atomic.AddInt64(&executions, 1)
		return p, nil
	})

	// A and B ping-pong forever; end exists only to satisfy validation.
	g := NewGraph()
	mustEdge(t, g.AddState("A", counting))
	mustEdge(t, g.AddState("B", counting))
	mustEdge(t, g.AddState("end", Identity()))
	mustEdge(t, g.AddConditionalEdges("A", FieldCondition("route"), map[string]string{"done": "end"}, "B"))
	mustEdge(t, g.AddUnconditionalEdge("B", "A"))
	mustEdge(t, g.MarkTerminal("end"))
	mustEdge(t, g.SetEntryPoint("A"))

	exec, err := NewExecutor(g, WithMaxSteps(limit))
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	result, err := exec.Execute(context.Background(), Payload{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if !errors.Is(result.Err, ErrStepLimitExceeded) {
		t.Errorf("expected ErrStepLimitExceeded, got %v", result.Err)
	}
	if got := atomic.LoadInt64(&executions); got != limit {
		t.Errorf("agent executions = %d, want exactly %d", got, limit)
	}
	if result.Steps != limit {
		t.Errorf("steps = %d, want %d", result.Steps, limit)
	}
}

func TestExecutor_AgentErrorWrapped(t *testing.T) {
	agentErr := errors.New("upstream unavailable")

	g := NewGraph()
	mustEdge(t, g.AddState("A", AgentFunc(func(_ context.Context, p Payload) (Payload, error) {
		return nil, agentErr
	})))
	mustEdge(t, g.AddState("end", Identity()))
	mustEdge(t, g.AddUnconditionalEdge("A", "end"))
	mustEdge(t, g.MarkTerminal("end"))
	mustEdge(t, g.SetEntryPoint("A"))

	exec, err := NewExecutor(g)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	result, err := exec.Execute(context.Background(), Payload{"keep": "me"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	var aeErr *AgentExecutionError
	if !errors.As(result.Err, &aeErr) {
		t.Fatalf("expected AgentExecutionError, got %v", result.Err)
	}
	if aeErr.State != "A" {
		t.Errorf("failing state = %q, want A", aeErr.State)
	}
	if !errors.Is(result.Err, agentErr) {
		t.Error("underlying agent error not reachable via errors.Is")
	}
	// The failed step must not have committed a payload change.
	if v, _ := result.FinalPayload.GetString("keep"); v != "me" {
		t.Errorf("payload lost data on failure: %v", result.FinalPayload)
	}
}

func TestExecutor_StepTimeout(t *testing.T) {
	g := NewGraph()
	mustEdge(t, g.AddState("slow", AgentFunc(func(ctx context.Context, p Payload) (Payload, error) {
		select {
		case <-time.After(5 * time.Second):
			return p, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})))
	mustEdge(t, g.AddState("end", Identity()))
	mustEdge(t, g.AddUnconditionalEdge("slow", "end"))
	mustEdge(t, g.MarkTerminal("end"))
	mustEdge(t, g.SetEntryPoint("slow"))

	exec, err := NewExecutor(g, WithStepTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	result, err := exec.Execute(context.Background(), Payload{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if !errors.Is(result.Err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", result.Err)
	}
	var aeErr *AgentExecutionError
	if !errors.As(result.Err, &aeErr) || aeErr.State != "slow" {
		t.Errorf("timeout error does not name the state: %v", result.Err)
	}
}

func TestExecutor_RunTimeout(t *testing.T) {
	g := NewGraph()
	mustEdge(t, g.AddState("loop", AgentFunc(func(ctx context.Context, p Payload) (Payload, error) {
		select {
		case <-time.After(10 * time.Millisecond):
			return p, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})))
	mustEdge(t, g.AddState("end", Identity()))
	mustEdge(t, g.AddConditionalEdges("loop", FieldCondition("route"), map[string]string{"done": "end"}, "loop"))
	mustEdge(t, g.MarkTerminal("end"))
	mustEdge(t, g.SetEntryPoint("loop"))

	exec, err := NewExecutor(g, WithRunTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	result, err := exec.Execute(context.Background(), Payload{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if !errors.Is(result.Err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", result.Err)
	}
}

func TestExecutor_Cancellation(t *testing.T) {
	started := make(chan struct{})

	g := NewGraph()
	mustEdge(t, g.AddState("wait", AgentFunc(func(ctx context.Context, p Payload) (Payload, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})))
	mustEdge(t, g.AddState("end", Identity()))
	mustEdge(t, g.AddUnconditionalEdge("wait", "end"))
	mustEdge(t, g.MarkTerminal("end"))
	mustEdge(t, g.SetEntryPoint("wait"))

	exec, err := NewExecutor(g)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	result, err := exec.Execute(ctx, Payload{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	var aeErr *AgentExecutionError
	if !errors.As(result.Err, &aeErr) {
		t.Fatalf("expected AgentExecutionError, got %v", result.Err)
	}
	if !errors.Is(aeErr.Err, context.Canceled) {
		t.Errorf("underlying error = %v, want context.Canceled", aeErr.Err)
	}
}

func TestExecutor_CancelledBeforeStep(t *testing.T) {
	exec, err := NewExecutor(branchingGraph(t, true))
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := exec.Execute(ctx, Payload{"flag": "x"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if !errors.Is(result.Err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", result.Err)
	}
	if result.Steps != 0 {
		t.Errorf("steps = %d, want 0", result.Steps)
	}
}

func TestExecutor_Determinism(t *testing.T) {
	g := NewGraph()
	mustEdge(t, g.AddState("classify", AgentFunc(func(_ context.Context, p Payload) (Payload, error) {
		n, _ := p.GetInt("value")
		if n > 10 {
			p["route"] = "big"
		} else {
			p["route"] = "small"
		}
		return p, nil
	})))
	mustEdge(t, g.AddState("big", Identity()))
	mustEdge(t, g.AddState("small", Identity()))
	mustEdge(t, g.AddState("end", Identity()))
	mustEdge(t, g.AddConditionalEdges("classify", FieldCondition("route"), map[string]string{"big": "big", "small": "small"}, ""))
	mustEdge(t, g.AddUnconditionalEdge("big", "end"))
	mustEdge(t, g.AddUnconditionalEdge("small", "end"))
	mustEdge(t, g.MarkTerminal("end"))
	mustEdge(t, g.SetEntryPoint("classify"))

	exec, err := NewExecutor(g)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	var first []string
	for i := 0; i < 20; i++ {
		result, err := exec.Execute(context.Background(), Payload{"value": 42})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if first == nil {
			first = result.Trace
			continue
		}
		if !reflect.DeepEqual(result.Trace, first) {
			t.Fatalf("run %d diverged: %v vs %v", i, result.Trace, first)
		}
	}
	if !reflect.DeepEqual(first, []string{"classify", "big", "end"}) {
		t.Errorf("trace = %v", first)
	}
}

func TestExecutor_InitialPayloadNotMutated(t *testing.T) {
	g := NewGraph()
	mustEdge(t, g.AddState("write", AgentFunc(func(_ context.Context, p Payload) (Payload, error) {
		p["written"] = true
		return p, nil
	})))
	mustEdge(t, g.MarkTerminal("write"))
	mustEdge(t, g.SetEntryPoint("write"))

	exec, err := NewExecutor(g)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	initial := Payload{"seed": "s"}
	result, err := exec.Execute(context.Background(), initial)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if _, exists := initial["written"]; exists {
		t.Error("run mutated the caller's initial payload")
	}
	if v, _ := result.FinalPayload.GetBool("written"); !v {
		t.Error("agent write missing from final payload")
	}
}

func TestExecutor_EmitsLifecycleEvents(t *testing.T) {
	var (
		buffered = emit.NewBufferedEmitter()
		runID    = "run-fixed"
	)
	exec, err := NewExecutor(branchingGraph(t, false),
		WithEmitter(buffered),
		WithRunIDFunc(func() string { return runID }),
	)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	if _, err := exec.Execute(context.Background(), Payload{"flag": "x"}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	events := buffered.History(runID)
	if len(events) == 0 {
		t.Fatal("no events emitted")
	}
	if events[0].Msg != emit.RunStart {
		t.Errorf("first event = %s, want run_start", events[0].Msg)
	}
	if last := events[len(events)-1]; last.Msg != emit.RunCompleted {
		t.Errorf("last event = %s, want run_completed", last.Msg)
	}

	completed := buffered.HistoryWithFilter(runID, emit.Filter{Msg: emit.StateCompleted})
	if len(completed) != 3 {
		t.Fatalf("state_completed events = %d, want 3", len(completed))
	}
	for i, want := range []string{"A", "B", "Terminal"} {
		if completed[i].State != want {
			t.Errorf("event %d state = %s, want %s", i, completed[i].State, want)
		}
		if completed[i].Step != i+1 {
			t.Errorf("event %d step = %d, want %d", i, completed[i].Step, i+1)
		}
	}
}

func TestExecutor_EmitsRunFailed(t *testing.T) {
	buffered := emit.NewBufferedEmitter()
	exec, err := NewExecutor(branchingGraph(t, false),
		WithEmitter(buffered),
		WithRunIDFunc(func() string { return "run-fail" }),
	)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	if _, err := exec.Execute(context.Background(), Payload{"flag": "z"}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	failed := buffered.HistoryWithFilter("run-fail", emit.Filter{Msg: emit.RunFailed})
	if len(failed) != 1 {
		t.Fatalf("run_failed events = %d, want 1", len(failed))
	}
	if _, ok := failed[0].Meta["error"].(string); !ok {
		t.Error("run_failed event missing error meta")
	}
}

func TestExecutor_PersistsRunHistory(t *testing.T) {
	memStore := store.NewMemStore[Payload]()
	exec, err := NewExecutor(branchingGraph(t, false),
		WithStore(memStore),
		WithRunIDFunc(func() string { return "run-stored" }),
	)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	if _, err := exec.Execute(context.Background(), Payload{"flag": "x"}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	ctx := context.Background()
	rec, err := memStore.LoadRun(ctx, "run-stored")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if rec.Status != StatusCompleted.String() {
		t.Errorf("stored status = %s, want completed", rec.Status)
	}
	if !reflect.DeepEqual(rec.Trace, []string{"A", "B", "Terminal"}) {
		t.Errorf("stored trace = %v", rec.Trace)
	}

	steps, err := memStore.ListSteps(ctx, "run-stored")
	if err != nil {
		t.Fatalf("ListSteps failed: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("stored steps = %d, want 3", len(steps))
	}
	if steps[0].State != "A" || steps[2].State != "Terminal" {
		t.Errorf("step states = %v, %v", steps[0].State, steps[2].State)
	}
}

func TestExecutor_MaxConcurrentRuns(t *testing.T) {
	var (
		inflight int64
		peak     int64
		mu       sync.Mutex
	)

	g := NewGraph()
	mustEdge(t, g.AddState("work", AgentFunc(func(_ context.Context, p Payload) (Payload, error) {
		cur := atomic.AddInt64(&inflight, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&inflight, -1)
		return p, nil
	})))
	mustEdge(t, g.MarkTerminal("work"))
	mustEdge(t, g.SetEntryPoint("work"))

	exec, err := NewExecutor(g, WithMaxConcurrentRuns(2))
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := exec.Execute(context.Background(), Payload{}); err != nil {
				t.Errorf("Execute failed: %v", err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Errorf("peak concurrent runs = %d, want <= 2", peak)
	}
}

func TestExecutor_ConcurrentRunsAreIsolated(t *testing.T) {
	g := NewGraph()
	mustEdge(t, g.AddState("stamp", AgentFunc(func(_ context.Context, p Payload) (Payload, error) {
		id, _ := p.GetInt("id")
		p["stamped"] = fmt.Sprintf("run-%d", id)
		return p, nil
	})))
	mustEdge(t, g.MarkTerminal("stamp"))
	mustEdge(t, g.SetEntryPoint("stamp"))

	exec, err := NewExecutor(g)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			result, err := exec.Execute(context.Background(), Payload{"id": id})
			if err != nil {
				t.Errorf("Execute failed: %v", err)
				return
			}
			want := fmt.Sprintf("run-%d", id)
			if got, _ := result.FinalPayload.GetString("stamped"); got != want {
				t.Errorf("payload crossed runs: got %q, want %q", got, want)
			}
		}(i)
	}
	wg.Wait()
}

func TestExecutor_NilAgentPassesThrough(t *testing.T) {
	g := NewGraph()
	mustEdge(t, g.AddState("route", nil))
	mustEdge(t, g.AddState("end", Identity()))
	mustEdge(t, g.AddUnconditionalEdge("route", "end"))
	mustEdge(t, g.MarkTerminal("end"))
	mustEdge(t, g.SetEntryPoint("route"))

	exec, err := NewExecutor(g)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	result, err := exec.Execute(context.Background(), Payload{"keep": "v"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("status = %s (err %v)", result.Status, result.Err)
	}
	if v, _ := result.FinalPayload.GetString("keep"); v != "v" {
		t.Errorf("payload altered by nil agent: %v", result.FinalPayload)
	}
}

func TestNewExecutor_RejectsInvalidGraph(t *testing.T) {
	g := NewGraph()
	mustEdge(t, g.AddState("a", Identity()))
	mustEdge(t, g.MarkTerminal("a"))

	if _, err := NewExecutor(g); !errors.Is(err, ErrNoEntryPoint) {
		t.Errorf("expected ErrNoEntryPoint, got %v", err)
	}

	if _, err := NewExecutor(nil); err == nil {
		t.Error("expected error for nil graph")
	}
}

func TestNewExecutor_RejectsInvalidOptions(t *testing.T) {
	g := branchingGraph(t, true)

	cases := []struct {
		name string
		opt  Option
	}{
		{"zero max steps", WithMaxSteps(0)},
		{"negative step timeout", WithStepTimeout(-time.Second)},
		{"negative run timeout", WithRunTimeout(-time.Second)},
		{"negative concurrency", WithMaxConcurrentRuns(-1)},
		{"nil run ID func", WithRunIDFunc(nil)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewExecutor(g, tc.opt); err == nil {
				t.Error("expected option validation error")
			}
		})
	}
}

func TestExecutor_Warnings(t *testing.T) {
	g := NewGraph()
	mustEdge(t, g.AddState("a", Identity()))
	mustEdge(t, g.AddState("end", Identity()))
	mustEdge(t, g.AddState("orphan", Identity()))
	mustEdge(t, g.AddUnconditionalEdge("a", "end"))
	mustEdge(t, g.AddUnconditionalEdge("orphan", "end"))
	mustEdge(t, g.MarkTerminal("end"))
	mustEdge(t, g.SetEntryPoint("a"))

	exec, err := NewExecutor(g)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}
	if !hasWarningFor(exec.Warnings(), "orphan") {
		t.Errorf("executor dropped validation warnings: %v", exec.Warnings())
	}
}
