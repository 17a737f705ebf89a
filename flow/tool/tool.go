// Package tool provides external tool integration for workflow agents.
//
// A Tool is a named callable with map-shaped input and output. Tools can
// be bound to graph states through Agent, which maps the workflow
// payload into the tool call and merges the result back.
package tool

import (
	"context"
	"fmt"

	"github.com/cortexflow/flowline/flow"
)

// Tool is an external capability a workflow state can invoke.
//
// Implementations must be safe for concurrent use and should respect
// context cancellation for any blocking work.
type Tool interface {
	// Name returns the tool identifier.
	Name() string

	// Call executes the tool with the given input.
	Call(ctx context.Context, input map[string]any) (map[string]any, error)
}

// Agent adapts a Tool to the flow.Agent interface.
//
// On each execution the whole payload is passed as the tool input and
// every key of the tool's output is merged into the payload, overwriting
// existing fields. A tool error fails the step.
func Agent(t Tool) flow.Agent {
	return flow.AgentFunc(func(ctx context.Context, p flow.Payload) (flow.Payload, error) {
		out, err := t.Call(ctx, map[string]any(p))
		if err != nil {
			return nil, fmt.Errorf("tool %q failed: %w", t.Name(), err)
		}
		for k, v := range out {
			p[k] = v
		}
		return p, nil
	})
}
