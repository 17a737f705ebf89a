// Package google provides a ChatModel backed by Google's Gemini API via
// the generative-ai-go SDK.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/cortexflow/flowline/flow/model"
)

// ChatModel calls the Gemini API. Safe for concurrent use.
type ChatModel struct {
	client *genai.Client
	model  string
}

// New creates a Gemini ChatModel.
//
// Unlike the other providers the genai client dials at construction
// time, so New takes a context. The caller owns the returned model and
// should Close it when done. Model is e.g. "gemini-1.5-pro".
func New(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if modelName == "" {
		return nil, errors.New("model cannot be empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &ChatModel{client: client, model: modelName}, nil
}

// Close releases the underlying client connection.
func (c *ChatModel) Close() error {
	return c.client.Close()
}

// Chat sends the conversation and returns the first candidate's text.
//
// Gemini has no separate system role in this SDK, so system messages
// are installed as system instructions and the rest are concatenated
// into the request parts.
func (c *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	genModel := c.client.GenerativeModel(c.model)

	var parts []genai.Part
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			genModel.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(msg.Content)},
			}
			continue
		}
		parts = append(parts, genai.Text(msg.Content))
	}
	if len(parts) == 0 {
		return model.ChatOut{}, errors.New("no user content to send")
	}

	resp, err := genModel.GenerateContent(ctx, parts...)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("gemini generation failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.ChatOut{}, errors.New("gemini returned no candidates")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}

	out := model.ChatOut{Text: text}
	if resp.UsageMetadata != nil {
		out.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
