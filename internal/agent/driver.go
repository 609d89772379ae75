package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// MaxInnerIterations caps the tool-use iterations of one Process call. When
// reached, the driver returns whatever text it has with a warning appended
// rather than erroring out, so the orchestrator can keep the session alive.
const MaxInnerIterations = 50

// ToolExecutor executes tool calls on behalf of a driver. Implementations
// never return an error to the loop; failures are encoded in the result.
type ToolExecutor interface {
	// Execute runs one tool call and always produces a result.
	Execute(ctx context.Context, call ToolCall) ToolResult

	// Tools returns the tool descriptors currently visible to this agent.
	Tools() []Tool
}

// ProviderFactory resolves a model name to a streaming client. Worker turns
// may switch models between calls; the factory caches one client per
// provider tag so switching is cheap.
type ProviderFactory interface {
	// ClientFor returns the client and the fully resolved model id.
	ClientFor(model string) (LLMProvider, string, error)
}

// Options configures a Driver.
type Options struct {
	// Name identifies the agent in logs ("instructor" or "worker").
	Name string

	// System is the agent's system prompt.
	System string

	// Provider is a fixed client. Mutually exclusive with Factory.
	Provider LLMProvider

	// Factory resolves a client per call, enabling per-turn model switches.
	Factory ProviderFactory

	// Executor runs the agent's tool calls. Required.
	Executor ToolExecutor

	// MaxTokens per response. Zero means provider default.
	MaxTokens int

	// EnableThinking requests extended thinking from supporting models.
	EnableThinking bool

	// ThinkingBudgetTokens is the thinking budget. Zero picks the provider
	// default.
	ThinkingBudgetTokens int

	// RecoverContextLength makes Process convert a context-length provider
	// failure into an advisory "[ERROR: ...]" return string instead of an
	// error. The worker runs with this on: it cannot compact itself, the
	// instructor has to see the failure in its review turn and invoke
	// compact_worker_context.
	RecoverContextLength bool

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Driver runs one agent's inner agentic loop and owns its message history.
// A Driver is not safe for concurrent Process calls; the orchestrator never
// overlaps turns.
type Driver struct {
	name                 string
	system               string
	provider             LLMProvider
	factory              ProviderFactory
	executor             ToolExecutor
	maxTokens            int
	enableThinking       bool
	thinkingBudget       int
	recoverContextLength bool
	logger               *slog.Logger

	history []Message
}

// NewDriver creates a driver from options.
func NewDriver(opts Options) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		name:                 opts.Name,
		system:               opts.System,
		provider:             opts.Provider,
		factory:              opts.Factory,
		executor:             opts.Executor,
		maxTokens:            opts.MaxTokens,
		enableThinking:       opts.EnableThinking,
		thinkingBudget:       opts.ThinkingBudgetTokens,
		recoverContextLength: opts.RecoverContextLength,
		logger:               logger.With("agent", opts.Name),
	}
}

// Name returns the agent name.
func (d *Driver) Name() string { return d.name }

// System returns the current system prompt.
func (d *Driver) System() string { return d.system }

// History returns a copy of the agent's message history.
func (d *Driver) History() []Message {
	out := make([]Message, len(d.history))
	copy(out, d.history)
	return out
}

// HistoryLen returns the number of messages in history.
func (d *Driver) HistoryLen() int { return len(d.history) }

// RestoreHistory replaces the history wholesale, used on session resume.
func (d *Driver) RestoreHistory(messages []Message) {
	d.history = make([]Message, len(messages))
	copy(d.history, messages)
}

// Reset clears the history and installs a new system prompt. Used by the
// instructor's reset_worker tool for fresh-context worker calls.
func (d *Driver) Reset(system string) {
	d.history = nil
	if strings.TrimSpace(system) != "" {
		d.system = system
	}
}

// Process appends the input as a user message and runs the inner agentic
// loop until the assistant answers without tool calls. Streamed text and
// thinking deltas are forwarded to the callbacks as they arrive; either
// callback may be nil.
//
// model may be empty when the driver has a fixed provider, in which case the
// provider's default applies.
func (d *Driver) Process(ctx context.Context, input, model string, onText, onThinking func(string)) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", ErrEmptyInput
	}

	client, resolvedModel, err := d.client(model)
	if err != nil {
		return "", err
	}

	d.history = append(d.history, Message{Role: "user", Content: input})

	for iteration := 0; iteration < MaxInnerIterations; iteration++ {
		assistant, err := d.streamTurn(ctx, client, resolvedModel, onText, onThinking)
		if err != nil {
			if d.recoverContextLength && Reason(err) == FailoverContextLength {
				d.logger.Warn("context too long, surfacing to instructor", "error", err)
				return "[ERROR: Worker context is too long. Use the compact_worker_context tool to summarize and shrink it, then re-issue the instruction.]", nil
			}
			return "", err
		}

		sanitized, ok := Sanitize(assistant)
		if !ok {
			return "", ErrEmptyResponse
		}
		d.history = append(d.history, sanitized)

		if len(sanitized.ToolCalls) == 0 {
			return sanitized.Content, nil
		}

		results := make([]ToolResult, 0, len(sanitized.ToolCalls))
		for _, call := range sanitized.ToolCalls {
			d.logger.Debug("executing tool", "tool", call.Name, "tool_call_id", call.ID)
			results = append(results, d.executor.Execute(ctx, call))
		}
		d.history = append(d.history, Message{Role: "user", ToolResults: results})
	}

	d.logger.Warn("inner loop hit iteration cap", "cap", MaxInnerIterations)
	last := ""
	if n := len(d.history); n > 0 && d.history[n-1].Role == "assistant" {
		last = d.history[n-1].Content
	}
	return last + fmt.Sprintf("\n[WARNING: reached maximum tool iterations (%d)]", MaxInnerIterations), nil
}

func (d *Driver) client(model string) (LLMProvider, string, error) {
	if d.factory != nil {
		return d.factory.ClientFor(model)
	}
	if d.provider == nil {
		return nil, "", ErrNoProvider
	}
	return d.provider, model, nil
}

// streamTurn performs one provider call and collects the assistant message.
func (d *Driver) streamTurn(ctx context.Context, client LLMProvider, model string, onText, onThinking func(string)) (Message, error) {
	req := &CompletionRequest{
		Model:                model,
		System:               d.system,
		Messages:             d.history,
		Tools:                d.executor.Tools(),
		MaxTokens:            d.maxTokens,
		EnableThinking:       d.enableThinking,
		ThinkingBudgetTokens: d.thinkingBudget,
	}

	chunks, err := client.Complete(ctx, req)
	if err != nil {
		return Message{}, err
	}

	var text strings.Builder
	var toolCalls []ToolCall
	for chunk := range chunks {
		if chunk.Error != nil {
			return Message{}, chunk.Error
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			if onText != nil {
				onText(chunk.Text)
			}
		}
		if chunk.Thinking != "" && onThinking != nil {
			onThinking(chunk.Thinking)
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		if chunk.Done && (chunk.InputTokens > 0 || chunk.OutputTokens > 0) {
			d.logger.Debug("turn usage",
				"input_tokens", chunk.InputTokens,
				"output_tokens", chunk.OutputTokens)
		}
	}

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	return Message{Role: "assistant", Content: text.String(), ToolCalls: toolCalls}, nil
}

// Sanitize normalizes an assistant message before it enters history:
// whitespace-only text is stripped, every tool call gets a JSON object input
// (default empty), and a message with no surviving content is rejected.
// Sanitize is idempotent.
func Sanitize(msg Message) (Message, bool) {
	if strings.TrimSpace(msg.Content) == "" {
		msg.Content = ""
	}

	if len(msg.ToolCalls) > 0 {
		calls := make([]ToolCall, len(msg.ToolCalls))
		copy(calls, msg.ToolCalls)
		for i := range calls {
			if !isJSONObject(calls[i].Input) {
				calls[i].Input = json.RawMessage(`{}`)
			}
		}
		msg.ToolCalls = calls
	}

	if msg.Content == "" && len(msg.ToolCalls) == 0 && len(msg.ToolResults) == 0 {
		return Message{}, false
	}
	return msg, true
}

func isJSONObject(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var obj map[string]any
	return json.Unmarshal(raw, &obj) == nil
}
