package flow

import (
	"fmt"
	"sync"
)

// Graph owns the set of states, their agents, their transition entries,
// and the designated entry and terminal states.
//
// A Graph is built incrementally (AddState, AddUnconditionalEdge,
// AddConditionalEdges, SetEntryPoint, MarkTerminal) and validated once
// with Validate. After validation the graph is read-only and safe to
// share across any number of concurrently executing runs; the builder
// methods are also individually safe for concurrent use, though graphs
// are normally built from a single goroutine.
//
// Construction failures are reported immediately and atomically: a
// failed call leaves the graph unchanged.
type Graph struct {
	mu sync.RWMutex

	agents      map[string]Agent
	transitions map[string]*transition
	terminals   map[string]bool
	order       []string // registration order, for stable diagnostics

	entry string

	// entryOverwrites records replaced entry points. Overwriting is legal
	// but suspicious, so Validate reports it as a warning.
	entryOverwrites []string
}

// Warning is a non-fatal diagnostic produced by Validate.
//
// Warnings never block validation: dead states are harmless but
// suspicious, and the caller decides whether to log or reject them.
type Warning struct {
	// State is the state the warning concerns, if any.
	State string

	// Reason describes the finding.
	Reason string
}

func (w Warning) String() string {
	if w.State == "" {
		return w.Reason
	}
	return fmt.Sprintf("state %q: %s", w.State, w.Reason)
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		agents:      make(map[string]Agent),
		transitions: make(map[string]*transition),
		terminals:   make(map[string]bool),
	}
}

// AddState registers a state under a unique name.
//
// A nil agent is legal and means the state is a pure routing point: the
// payload passes through unchanged, exactly as with Identity().
//
// Returns ErrDuplicateState if the name is already registered, and an
// error for the empty name.
func (g *Graph) AddState(name string, agent Agent) error {
	if name == "" {
		return fmt.Errorf("state name cannot be empty")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.agents[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateState, name)
	}

	g.agents[name] = agent
	g.order = append(g.order, name)
	return nil
}

// AddUnconditionalEdge attaches a fixed-target transition entry to a state.
//
// Returns ErrUnknownState if either endpoint is unregistered,
// ErrTerminalState if from is marked terminal, and ErrTransitionExists
// if from already carries an entry. All failures leave the graph
// unchanged.
func (g *Graph) AddUnconditionalEdge(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkEdgeSource(from); err != nil {
		return err
	}
	if _, exists := g.agents[to]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownState, to)
	}

	g.transitions[from] = &transition{target: to}
	return nil
}

// AddConditionalEdges attaches a conditional transition entry to a state.
//
// At run time the condition is evaluated against the current payload and
// its label selects the target from labelToState. A label absent from
// the map routes to defaultTarget when one is given (pass "" for none);
// otherwise resolution fails the run with an UnresolvedConditionError.
//
// The condition's output space cannot be known statically, so it is not
// validated here — only the declared targets are. Every target,
// including the default, must be registered; any unknown target fails
// with ErrUnknownState and leaves the graph unchanged.
func (g *Graph) AddConditionalEdges(from string, cond Condition, labelToState map[string]string, defaultTarget string) error {
	if cond == nil {
		return fmt.Errorf("condition cannot be nil")
	}
	if len(labelToState) == 0 && defaultTarget == "" {
		return fmt.Errorf("conditional edges require at least one label or a default target")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkEdgeSource(from); err != nil {
		return err
	}

	// Validate every target before mutating anything.
	for label, to := range labelToState {
		if _, exists := g.agents[to]; !exists {
			return fmt.Errorf("%w: %s (label %q)", ErrUnknownState, to, label)
		}
	}
	if defaultTarget != "" {
		if _, exists := g.agents[defaultTarget]; !exists {
			return fmt.Errorf("%w: %s (default)", ErrUnknownState, defaultTarget)
		}
	}

	labels := make(map[string]string, len(labelToState))
	for label, to := range labelToState {
		labels[label] = to
	}

	g.transitions[from] = &transition{
		cond:          cond,
		labels:        labels,
		defaultTarget: defaultTarget,
		hasDefault:    defaultTarget != "",
	}
	return nil
}

// checkEdgeSource validates the source state of a new transition entry.
// Callers must hold the lock.
func (g *Graph) checkEdgeSource(from string) error {
	if _, exists := g.agents[from]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownState, from)
	}
	if g.terminals[from] {
		return fmt.Errorf("%w: %s", ErrTerminalState, from)
	}
	if _, exists := g.transitions[from]; exists {
		return fmt.Errorf("%w: %s", ErrTransitionExists, from)
	}
	return nil
}

// SetEntryPoint designates the state a run starts at.
//
// Exactly one entry point exists per graph. A second call overwrites the
// first; the overwrite is recorded and reported by Validate as a
// warning, not an error.
//
// Returns ErrUnknownState if the state is unregistered.
func (g *Graph) SetEntryPoint(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.agents[name]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownState, name)
	}

	if g.entry != "" && g.entry != name {
		g.entryOverwrites = append(g.entryOverwrites, g.entry)
	}
	g.entry = name
	return nil
}

// MarkTerminal designates a state as terminal: reaching it (and running
// its agent) completes the run successfully.
//
// Terminal states carry no transition entry. Marking a state that
// already has one fails with ErrTransitionExists, and adding an edge
// from a marked state fails with ErrTerminalState.
func (g *Graph) MarkTerminal(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.agents[name]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownState, name)
	}
	if _, exists := g.transitions[name]; exists {
		return fmt.Errorf("%w: %s", ErrTransitionExists, name)
	}

	g.terminals[name] = true
	return nil
}

// Validate checks the graph for structural correctness.
//
// Fatal findings (returned as the error):
//   - no entry point set (ErrNoEntryPoint)
//   - no terminal state — such a graph can never complete
//     (ErrNoTerminalState)
//
// Non-fatal findings (returned as warnings):
//   - states unreachable from the entry point, computed by breadth-first
//     traversal over unconditional targets and all declared conditional
//     targets including defaults
//   - states that are implicitly terminal: no transition entry and no
//     MarkTerminal call
//   - entry point overwrites
//
// Validate may be called repeatedly and never mutates the graph.
func (g *Graph) Validate() ([]Warning, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.entry == "" {
		return nil, ErrNoEntryPoint
	}

	var warnings []Warning

	for _, old := range g.entryOverwrites {
		warnings = append(warnings, Warning{
			State:  old,
			Reason: "entry point overwritten by a later SetEntryPoint call",
		})
	}

	// A state without an outgoing entry ends the run when reached. If it
	// was never explicitly marked, that is suspicious enough to flag.
	terminalCount := 0
	for _, name := range g.order {
		if _, hasEntry := g.transitions[name]; hasEntry {
			continue
		}
		terminalCount++
		if !g.terminals[name] {
			warnings = append(warnings, Warning{
				State:  name,
				Reason: "implicitly terminal: no outgoing transition and not marked terminal",
			})
		}
	}
	if terminalCount == 0 {
		return warnings, ErrNoTerminalState
	}

	reachable := g.reachableFromEntry()
	for _, name := range g.order {
		if !reachable[name] {
			warnings = append(warnings, Warning{
				State:  name,
				Reason: "unreachable from entry point",
			})
		}
	}

	return warnings, nil
}

// reachableFromEntry returns the set of states reachable from the entry
// point. Callers must hold the lock.
func (g *Graph) reachableFromEntry() map[string]bool {
	reachable := make(map[string]bool)

	queue := []string{g.entry}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if reachable[current] {
			continue
		}
		reachable[current] = true

		if t, ok := g.transitions[current]; ok {
			for _, next := range t.targets() {
				if !reachable[next] {
					queue = append(queue, next)
				}
			}
		}
	}

	return reachable
}
