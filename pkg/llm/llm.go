// Package llm provides a unified chat interface over the configured model
// providers, with a quota-aware fallback ladder.
package llm

import (
	"context"
)

// Role values for chat messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a model request to execute a tool.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// ToolResult feeds a tool execution result back into the conversation.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
}

// ToolDef describes a callable tool. Parameters is a JSON schema.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Message is one turn of the conversation.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Request is a chat completion request.
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolDef
	MaxTokens   int
	Temperature float64
}

// Response is a chat completion result.
type Response struct {
	Text      string
	ToolCalls []ToolCall

	// Model is the concrete model that produced the response.
	Model string

	InputTokens  int
	OutputTokens int
}

// StreamChunk is one delta of a streaming response. Err terminates the
// stream; accumulated text before the error is still valid.
type StreamChunk struct {
	Text string
	Err  error
}

// Provider is a single LLM backend.
type Provider interface {
	// Generate runs a blocking chat completion.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// GenerateStream streams text deltas. The channel closes when the
	// response completes or the context is cancelled.
	GenerateStream(ctx context.Context, req *Request) (<-chan StreamChunk, error)

	// Model returns the model identifier.
	Model() string

	// Close releases resources.
	Close() error
}
