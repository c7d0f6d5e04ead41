// Package llm defines the provider-agnostic interface the Scenario→Timetable
// Engine uses to talk to the scenario-LLM. The engine depends only on this
// interface; internal/llm/openai supplies the concrete implementation used
// in production.
package llm

import "context"

// Message is one turn in a chat-style completion request.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Role values accepted in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest is a single non-streaming completion call.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
}

// CompletionResponse is the LLM's reply text plus usage accounting.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Usage reports token accounting for a completion call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is the interface the scenario engine depends on. A production
// Client wraps a real model API; a test double can be a closure-backed
// struct with canned responses.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
