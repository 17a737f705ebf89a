package flow

import "context"

// Agent is an opaque unit of work bound to a state.
//
// The engine invokes the agent of the current state with the current
// Payload and adopts the returned Payload as the new current Payload —
// returning the same instance mutated in place and returning a
// replacement are treated identically.
//
// Agents may perform blocking external work (LLM calls, HTTP requests,
// tool use); the engine treats the call as an atomic black box. Agents
// should honor ctx cancellation so per-step and per-run budgets can take
// effect, but the engine never preempts a running agent.
//
// An agent error ends the run; the engine wraps it in an
// AgentExecutionError and reports it via the RunResult. The engine never
// retries an agent — retry, if wanted, belongs inside the agent
// implementation.
type Agent interface {
	Execute(ctx context.Context, p Payload) (Payload, error)
}

// AgentFunc adapts a plain function to the Agent interface.
//
// Example:
//
//	greet := flow.AgentFunc(func(ctx context.Context, p flow.Payload) (flow.Payload, error) {
//	    p["greeting"] = "hello"
//	    return p, nil
//	})
type AgentFunc func(ctx context.Context, p Payload) (Payload, error)

// Execute implements the Agent interface.
func (f AgentFunc) Execute(ctx context.Context, p Payload) (Payload, error) {
	return f(ctx, p)
}

// Identity returns an agent that passes the payload through unchanged.
//
// Use it for pure routing states whose only job is to host a conditional
// transition.
func Identity() Agent {
	return AgentFunc(func(_ context.Context, p Payload) (Payload, error) {
		return p, nil
	})
}
