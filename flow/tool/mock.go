package tool

import (
	"context"
	"sync"
)

// MockTool is a scripted Tool for tests.
type MockTool struct {
	mu sync.Mutex

	// ToolName is returned by Name. Default: "mock".
	ToolName string

	// Output is returned by every successful Call.
	Output map[string]any

	// Err, when set, makes every call fail.
	Err error

	calls []map[string]any
}

// Name returns the configured tool name.
func (m *MockTool) Name() string {
	if m.ToolName == "" {
		return "mock"
	}
	return m.ToolName
}

// Call records the input and returns the scripted output.
func (m *MockTool) Call(ctx context.Context, input map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recorded := make(map[string]any, len(input))
	for k, v := range input {
		recorded[k] = v
	}
	m.calls = append(m.calls, recorded)

	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string]any, len(m.Output))
	for k, v := range m.Output {
		out[k] = v
	}
	return out, nil
}

// Calls returns the inputs passed to Call, in order.
func (m *MockTool) Calls() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]map[string]any, len(m.calls))
	copy(out, m.calls)
	return out
}
