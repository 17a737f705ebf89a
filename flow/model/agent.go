package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/cortexflow/flowline/flow"
)

// AgentConfig controls how a ChatModel is exposed as a workflow agent.
type AgentConfig struct {
	// PromptField is the payload field read as the user prompt.
	// Default: "prompt".
	PromptField string

	// OutputField is the payload field the model's text is written to.
	// Default: "result".
	OutputField string

	// SystemPrompt, when set, is sent as a system message before the
	// user prompt.
	SystemPrompt string
}

func (c AgentConfig) withDefaults() AgentConfig {
	if c.PromptField == "" {
		c.PromptField = "prompt"
	}
	if c.OutputField == "" {
		c.OutputField = "result"
	}
	return c
}

// Agent adapts a ChatModel to the flow.Agent interface.
//
// On each execution the agent reads cfg.PromptField from the payload,
// sends it to the model, and writes the response text to
// cfg.OutputField along with token counts under "tokens_in" and
// "tokens_out" when the provider reports them. A missing or empty
// prompt field fails the step.
func Agent(m ChatModel, cfg AgentConfig) flow.Agent {
	cfg = cfg.withDefaults()

	return flow.AgentFunc(func(ctx context.Context, p flow.Payload) (flow.Payload, error) {
		prompt, ok := p.GetString(cfg.PromptField)
		if !ok || strings.TrimSpace(prompt) == "" {
			return nil, fmt.Errorf("payload field %q is missing or empty", cfg.PromptField)
		}

		var messages []Message
		if cfg.SystemPrompt != "" {
			messages = append(messages, Message{Role: RoleSystem, Content: cfg.SystemPrompt})
		}
		messages = append(messages, Message{Role: RoleUser, Content: prompt})

		out, err := m.Chat(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("chat completion failed: %w", err)
		}

		p[cfg.OutputField] = out.Text
		if out.TokensIn > 0 {
			p["tokens_in"] = out.TokensIn
		}
		if out.TokensOut > 0 {
			p["tokens_out"] = out.TokensOut
		}
		return p, nil
	})
}
