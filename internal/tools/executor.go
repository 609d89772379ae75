// Package tools implements the tool executor: permission checks, input
// schema validation, per-call timeouts, and the meta-tools through which the
// instructor manages the worker's allow-set.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/tandem/internal/agent"
)

// DefaultToolTimeout is the per-call timeout when the model doesn't pass
// timeout_seconds.
const DefaultToolTimeout = 30 * time.Second

// maxToolParamsSize bounds tool parameter JSON (10MB).
const maxToolParamsSize = 10 << 20

// Executor runs tool calls for one agent. It owns the agent's allow-set and
// the permanently-forbidden set; the instructor mutates the worker's
// executor through the grant/revoke meta-tools.
//
// Execute never returns an error to the agent loop: every failure mode is
// encoded as an is_error tool result so the model can see it and recover.
type Executor struct {
	mu        sync.RWMutex
	agentName string
	otherName string
	tools     map[string]agent.Tool
	schemas   map[string]*jsonschema.Schema
	allowed   map[string]bool
	forbidden map[string]bool
	timeout   time.Duration
	logger    *slog.Logger
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// AgentName identifies the owning agent ("instructor" or "worker").
	AgentName string

	// OtherAgentName is used in permission-denied messages.
	OtherAgentName string

	// Forbidden lists tool names that can never enter the allow-set.
	Forbidden []string

	// DefaultTimeout overrides DefaultToolTimeout.
	DefaultTimeout time.Duration

	Logger *slog.Logger
}

// NewExecutor creates an empty executor.
func NewExecutor(opts ExecutorOptions) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	forbidden := make(map[string]bool, len(opts.Forbidden))
	for _, name := range opts.Forbidden {
		forbidden[name] = true
	}
	return &Executor{
		agentName: opts.AgentName,
		otherName: opts.OtherAgentName,
		tools:     make(map[string]agent.Tool),
		schemas:   make(map[string]*jsonschema.Schema),
		allowed:   make(map[string]bool),
		forbidden: forbidden,
		timeout:   timeout,
		logger:    logger.With("agent", opts.AgentName),
	}
}

// Register adds a tool and compiles its input schema. The tool is not
// allowed until Allow (or Grant) adds it to the allow-set.
func (e *Executor) Register(tool agent.Tool) error {
	schema, err := jsonschema.CompileString(tool.Name()+".json", string(tool.Schema()))
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", tool.Name(), err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.tools[tool.Name()] = tool
	e.schemas[tool.Name()] = schema
	return nil
}

// RegisterAllowed registers a tool and adds it to the allow-set.
func (e *Executor) RegisterAllowed(tool agent.Tool) error {
	if err := e.Register(tool); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allowed[tool.Name()] = true
	return nil
}

// Allow adds a registered tool to the allow-set without the forbidden check.
// Grant is the checked path used by the instructor's meta-tool.
func (e *Executor) Allow(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allowed[name] = true
}

// Grant adds a tool to the allow-set at runtime. It fails closed on names
// in the permanently-forbidden set, whether or not the tool is registered.
func (e *Executor) Grant(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.forbidden[name] {
		return fmt.Errorf("tool %q is permanently forbidden for the %s and cannot be granted", name, e.agentName)
	}
	if _, ok := e.tools[name]; !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	e.allowed[name] = true
	return nil
}

// Revoke removes a tool from the allow-set.
func (e *Executor) Revoke(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tools[name]; !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	delete(e.allowed, name)
	return nil
}

// Allowed returns the sorted allow-set.
func (e *Executor) Allowed() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.allowed))
	for name := range e.allowed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools implements agent.ToolExecutor: the descriptors currently visible to
// this agent, in stable name order.
func (e *Executor) Tools() []agent.Tool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.allowed))
	for name := range e.allowed {
		if _, ok := e.tools[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]agent.Tool, 0, len(names))
	for _, name := range names {
		out = append(out, e.tools[name])
	}
	return out
}

// timeoutParams is the envelope every tool input may carry.
type timeoutParams struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// Execute runs one tool call. Check order: allow-set first (before any
// argument validation), then schema validation, then dispatch under the
// per-call timeout.
func (e *Executor) Execute(ctx context.Context, call agent.ToolCall) agent.ToolResult {
	e.mu.RLock()
	allowed := e.allowed[call.Name]
	tool := e.tools[call.Name]
	schema := e.schemas[call.Name]
	e.mu.RUnlock()

	if !allowed {
		other := e.otherName
		if other == "" {
			other = "the other agent"
		}
		return agent.ToolResult{
			ToolCallID: call.ID,
			Content: fmt.Sprintf("Permission denied: tool %q is not available to the %s; only the %s may use it.",
				call.Name, e.agentName, other),
			IsError: true,
		}
	}
	if tool == nil {
		return agent.ToolResult{
			ToolCallID: call.ID,
			Content:    "tool not found: " + call.Name,
			IsError:    true,
		}
	}
	if len(call.Input) > maxToolParamsSize {
		return agent.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("tool parameters exceed maximum size of %d bytes", maxToolParamsSize),
			IsError:    true,
		}
	}

	if schema != nil {
		var doc any
		if err := json.Unmarshal(normalizeInput(call.Input), &doc); err != nil {
			return agent.ToolResult{
				ToolCallID: call.ID,
				Content:    fmt.Sprintf("invalid tool input JSON: %v", err),
				IsError:    true,
			}
		}
		if err := schema.Validate(doc); err != nil {
			return agent.ToolResult{
				ToolCallID: call.ID,
				Content:    fmt.Sprintf("tool input does not match schema for %s: %v", call.Name, err),
				IsError:    true,
			}
		}
	}

	timeout := e.timeout
	var tp timeoutParams
	if json.Unmarshal(normalizeInput(call.Input), &tp) == nil && tp.TimeoutSeconds > 0 {
		timeout = time.Duration(tp.TimeoutSeconds) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := e.run(runCtx, tool, call)
	elapsed := time.Since(start)

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return agent.ToolResult{
				ToolCallID: call.ID,
				Content: fmt.Sprintf("tool %s timed out after %s (input: %s)",
					call.Name, timeout, summarizeInput(call.Input)),
				IsError: true,
			}
		}
		return agent.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("tool %s failed: %v", call.Name, err),
			IsError:    true,
		}
	}

	e.logger.Debug("tool executed", "tool", call.Name, "duration", elapsed, "is_error", result.IsError)
	result.ToolCallID = call.ID
	return result
}

// run dispatches the tool on its own goroutine so a deadline can preempt
// the wait. Tools wrapping synchronous OS calls honor only their own
// timeout; the goroutine is left to finish in the background, a documented
// trade-off.
func (e *Executor) run(ctx context.Context, tool agent.Tool, call agent.ToolCall) (agent.ToolResult, error) {
	type outcome struct {
		result *agent.ToolResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		res, err := tool.Execute(ctx, normalizeInput(call.Input))
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return agent.ToolResult{}, ctx.Err()
	case out := <-done:
		if out.err != nil {
			return agent.ToolResult{}, out.err
		}
		if out.result == nil {
			return agent.ToolResult{}, fmt.Errorf("tool returned no result")
		}
		return agent.ToolResult{Content: out.result.Content, IsError: out.result.IsError}, nil
	}
}

func normalizeInput(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "" {
		return json.RawMessage(`{}`)
	}
	return raw
}

func summarizeInput(raw json.RawMessage) string {
	s := string(normalizeInput(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
