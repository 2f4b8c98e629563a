// Package llms defines the model-facing contract: the structured request and
// response schema shared by every provider adapter, the streaming chunk
// channel, and the error taxonomy the turn loop uses to decide retries.
//
// Provider adapters live outside this module. They implement ModelClient and
// translate Request/Chunk to and from provider-native wire formats.
package llms

import "context"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the model-facing message list.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that requested tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-role message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name for tool-role messages.
	Name string `json:"name,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition describes a tool to the model. Parameters is a
// JSON-schema-shaped object describing the argument record.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is a single model invocation.
type Request struct {
	Messages        []Message        `json:"messages"`
	Tools           []ToolDefinition `json:"tools,omitempty"`
	MaxTokens       int              `json:"max_tokens,omitempty"`
	Temperature     float64          `json:"temperature,omitempty"`
	TopP            float64          `json:"top_p,omitempty"`
	EnableStreaming bool             `json:"enable_streaming,omitempty"`
}

// ResponseType tells consumers how a chunk was produced.
type ResponseType string

const (
	ResponseTypeText         ResponseType = "text"
	ResponseTypeStreaming    ResponseType = "streaming"
	ResponseTypeFunctionCall ResponseType = "function_call"
)

// Usage reports token consumption for a completed model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Chunk is one element of a model response stream. The final chunk carries
// IsFinal=true together with the finish reason, any native function calls,
// and usage when the provider reports it.
type Chunk struct {
	Content      string
	IsFinal      bool
	FinishReason string
	ToolCalls    []ToolCall
	Type         ResponseType
	Usage        *Usage
}

// ModelClient adapts a language-model provider to the engine.
//
// Stream returns a finite, single-pass channel of chunks. The producer closes
// the channel when the response is complete or the context is cancelled;
// in-flight tokens are discarded on cancellation.
type ModelClient interface {
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)

	// SupportsFunctionCalling reports whether the provider has a native
	// tool-calling path. When false the engine falls back to the text-mode
	// envelope protocol (see ToolPrompt and ParseToolCalls).
	SupportsFunctionCalling() bool

	// Model returns the provider model identifier, used for per-model token
	// accounting.
	Model() string
}
