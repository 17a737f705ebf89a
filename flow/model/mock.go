package model

import (
	"context"
	"sync"
)

// MockChatModel is a scripted ChatModel for tests.
//
// Responses are returned in order, repeating the last one once the
// script is exhausted. When Err is set every call fails with it.
type MockChatModel struct {
	mu sync.Mutex

	// Responses are returned in order by successive Chat calls.
	Responses []string

	// Err, when set, makes every call fail.
	Err error

	calls [][]Message
	next  int
}

// Chat returns the next scripted response and records the call.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recorded := make([]Message, len(messages))
	copy(recorded, messages)
	m.calls = append(m.calls, recorded)

	if m.Err != nil {
		return ChatOut{}, m.Err
	}

	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}
	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.next++
	return ChatOut{Text: m.Responses[idx]}, nil
}

// Calls returns the message lists passed to Chat, in order.
func (m *MockChatModel) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]Message, len(m.calls))
	copy(out, m.calls)
	return out
}
