// Package model integrates LLM chat providers as workflow agents.
//
// The ChatModel interface abstracts the differences between providers
// (OpenAI, Anthropic, Google) behind a single call; the Agent adapter
// binds a ChatModel to a graph state so the model reads its prompt from
// the payload and writes its answer back.
package model

import "context"

// ChatModel is a single-turn chat completion provider.
//
// Implementations handle provider-specific authentication, request
// shaping, and response parsing, and must respect context cancellation.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message is one turn in an LLM conversation.
type Message struct {
	// Role identifies the sender, one of the Role* constants.
	Role string

	// Content is the message text.
	Content string
}

// Standard role constants, aligned with the conventions of the major
// providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOut is the result of a chat completion.
type ChatOut struct {
	// Text is the generated response.
	Text string

	// TokensIn and TokensOut report token usage when the provider
	// supplies it, zero otherwise.
	TokensIn  int
	TokensOut int
}
