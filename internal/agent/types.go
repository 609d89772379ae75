// Package agent implements the two conversational agent drivers (instructor
// and worker) and the provider contract they stream against.
//
// Each driver owns its own message history and runs an inner agentic loop:
// stream one assistant turn, execute any tool calls it emitted, feed the
// results back, and repeat until the assistant answers with text only.
package agent

import (
	"context"
	"encoding/json"
)

// LLMProvider is the interface for streaming LLM backends.
//
// Implementations must be safe for concurrent use; each Complete call creates
// an independent stream. Cancelling ctx terminates the stream and surfaces a
// cancellation error chunk.
type LLMProvider interface {
	// Complete sends a completion request and returns a channel of streamed
	// chunks. The channel is closed when the stream finishes or fails.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the stable lowercase provider tag (e.g. "anthropic").
	Name() string
}

// CompletionRequest contains all parameters for a single streamed completion.
type CompletionRequest struct {
	// Model is the provider model identifier. Required.
	Model string `json:"model"`

	// System is the system prompt, handled separately from messages.
	System string `json:"system,omitempty"`

	// Messages is the conversation history in chronological order.
	Messages []Message `json:"messages"`

	// Tools lists the tools the model may call this turn.
	Tools []Tool `json:"tools,omitempty"`

	// MaxTokens limits response length. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// EnableThinking turns on extended thinking for supporting models.
	EnableThinking bool `json:"enable_thinking,omitempty"`

	// ThinkingBudgetTokens is the thinking token budget when enabled.
	ThinkingBudgetTokens int `json:"thinking_budget_tokens,omitempty"`
}

// Message is one role-tagged conversation turn.
//
// Assistant turns may carry ToolCalls; the immediately following user turn
// must carry the matching ToolResults in the same order. That pairing is
// enforced by the driver's sanitizer before a message enters history.
type Message struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`

	// Content is the text content. May be empty on tool-only turns.
	Content string `json:"content,omitempty"`

	// ToolCalls are tool invocations requested by an assistant turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolResults answer the previous assistant turn's tool calls.
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolCall is a single tool invocation emitted by the model.
//
// Input is always a complete JSON object by the time a ToolCall leaves the
// provider layer; streaming accumulators never escape into history.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the executor's answer to one ToolCall.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// CompletionChunk is one streamed delta from a provider.
//
// Exactly one of the content fields is set per chunk. Tool calls arrive fully
// assembled: the provider accumulates partial input JSON internally and emits
// the call only once its content block closes.
type CompletionChunk struct {
	// Text is a partial response text delta.
	Text string `json:"text,omitempty"`

	// Thinking is a partial extended-thinking delta.
	Thinking string `json:"thinking,omitempty"`

	// ThinkingStart and ThinkingEnd bracket a thinking block.
	ThinkingStart bool `json:"thinking_start,omitempty"`
	ThinkingEnd   bool `json:"thinking_end,omitempty"`

	// ToolCall is a complete tool invocation request.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// Done is true on the final chunk of a successful stream.
	Done bool `json:"done,omitempty"`

	// InputTokens and OutputTokens report usage; only set when Done is true.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`

	// Error terminates the stream when set.
	Error error `json:"-"`
}

// Tool is the interface implemented by every executable tool.
type Tool interface {
	// Name returns the tool name used for LLM function calling.
	Name() string

	// Description returns a natural language description of the tool.
	Description() string

	// Schema returns the JSON Schema for the tool's input object.
	Schema() json.RawMessage

	// Execute runs the tool. Errors meant for the model come back as a
	// result with IsError set; a non-nil error means the tool machinery
	// itself failed.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}
