package reply

import (
	"context"
	"fmt"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/llm"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
)

const defaultSystemPrompt = "You are a friendly sales assistant. Answer briefly and help the customer move towards a purchase."

// LLMResponder asks an LLM provider for the reply.
type LLMResponder struct {
	client       llm.Client
	model        string
	systemPrompt string
}

// NewLLMResponder creates an LLM-backed responder. An empty model uses the provider default.
func NewLLMResponder(client llm.Client, model, systemPrompt string) *LLMResponder {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &LLMResponder{
		client:       client,
		model:        model,
		systemPrompt: systemPrompt,
	}
}

// Name returns the responder name.
func (r *LLMResponder) Name() string {
	return "llm:" + r.client.Name()
}

// Respond sends the conversation history to the LLM.
func (r *LLMResponder) Respond(ctx context.Context, req *Request) (string, error) {
	if len(req.History) == 0 {
		return "", fmt.Errorf("empty conversation history")
	}

	resp, err := r.client.Complete(ctx, &llm.CompletionRequest{
		Model:    r.model,
		System:   r.systemPrompt,
		Messages: toChatMessages(req.History),
	})
	if err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}
	return resp.Content, nil
}

// toChatMessages maps conversation roles onto provider roles and merges
// consecutive turns from the same side, which providers reject.
func toChatMessages(history []model.Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == model.RoleAgent {
			role = "assistant"
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n" + msg.Content
			continue
		}
		out = append(out, llm.ChatMessage{Role: role, Content: msg.Content})
	}
	return out
}
