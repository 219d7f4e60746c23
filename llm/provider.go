// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error handling

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
// The turn-taking loop consumes exactly this surface: plain generation,
// generation with tool specs, and streaming deltas.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a chat completion request.
	Chat(ctx context.Context, messages []Message) (Response, error)

	// ChatWithTools sends a chat completion request with tool definitions.
	// The LLM may respond with tool calls in Response.ToolCalls.
	ChatWithTools(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error)

	// StreamChat streams a chat completion, sending deltas to the provided channel.
	// Returns token usage (available in final chunk when supported by provider).
	StreamChat(ctx context.Context, messages []Message, chunks chan<- string) (*TokenUsage, error)
}
