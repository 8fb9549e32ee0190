// Package llm adapts hosted text-generation APIs to one provider-agnostic
// chat interface.
package llm

import "context"

// Provider sends chat requests to an LLM backend.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Role is the author role for a chat message.
type Role string

const (
	// RoleUser is a user-authored message.
	RoleUser Role = "user"
	// RoleAssistant is an assistant-authored message.
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single message in model conversation history.
type ChatMessage struct {
	Role    Role
	Content string
}

// TokenUsage reports provider token accounting for one response.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ChatRequest is the provider-agnostic request payload.
type ChatRequest struct {
	SystemPrompt string
	Messages     []ChatMessage
	MaxTokens    int
}

// ChatResponse is the provider-agnostic response payload.
type ChatResponse struct {
	Content string
	Usage   TokenUsage
}

// UserPrompt builds a single-turn request from one prompt.
func UserPrompt(system, prompt string, maxTokens int) ChatRequest {
	return ChatRequest{
		SystemPrompt: system,
		Messages:     []ChatMessage{{Role: RoleUser, Content: prompt}},
		MaxTokens:    maxTokens,
	}
}
