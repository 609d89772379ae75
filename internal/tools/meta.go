package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/tandem/internal/agent"
)

// The meta-tools are registered on the instructor's executor only. They
// mutate the worker's executor and driver; since instructor and worker
// turns never overlap, the mutations are visible to the worker on its next
// turn without further coordination.

// GrantTool lets the instructor add a tool to the worker's allow-set.
type GrantTool struct {
	worker *Executor
}

// NewGrantTool creates the grant meta-tool targeting the worker executor.
func NewGrantTool(worker *Executor) *GrantTool { return &GrantTool{worker: worker} }

func (t *GrantTool) Name() string { return "grant_worker_tool" }

func (t *GrantTool) Description() string {
	return "Grant the worker access to an additional tool. Fails for permanently forbidden tools."
}

func (t *GrantTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"tool_name": {"type": "string", "description": "Name of the tool to grant."},
			"reason": {"type": "string", "description": "Why the worker needs it."}
		},
		"required": ["tool_name", "reason"]
	}`)
}

func (t *GrantTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ToolName string `json:"tool_name"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return metaError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.ToolName) == "" {
		return metaError("tool_name is required"), nil
	}

	if err := t.worker.Grant(input.ToolName); err != nil {
		return metaError(err.Error()), nil
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("Granted %q to the worker. Worker allow-set: %s",
			input.ToolName, strings.Join(t.worker.Allowed(), ", ")),
	}, nil
}

// RevokeTool lets the instructor remove a tool from the worker's allow-set.
type RevokeTool struct {
	worker *Executor
}

// NewRevokeTool creates the revoke meta-tool targeting the worker executor.
func NewRevokeTool(worker *Executor) *RevokeTool { return &RevokeTool{worker: worker} }

func (t *RevokeTool) Name() string { return "revoke_worker_tool" }

func (t *RevokeTool) Description() string {
	return "Remove a tool from the worker's allow-set."
}

func (t *RevokeTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"tool_name": {"type": "string", "description": "Name of the tool to revoke."}
		},
		"required": ["tool_name"]
	}`)
}

func (t *RevokeTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ToolName string `json:"tool_name"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return metaError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.ToolName) == "" {
		return metaError("tool_name is required"), nil
	}

	if err := t.worker.Revoke(input.ToolName); err != nil {
		return metaError(err.Error()), nil
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("Revoked %q from the worker. Worker allow-set: %s",
			input.ToolName, strings.Join(t.worker.Allowed(), ", ")),
	}, nil
}

// CompactWorkerTool lets the instructor compact the worker's history when
// the worker reports a context-length failure.
type CompactWorkerTool struct {
	worker *agent.Driver
	model  string
}

// NewCompactWorkerTool creates the compaction meta-tool.
func NewCompactWorkerTool(worker *agent.Driver, workerModel string) *CompactWorkerTool {
	return &CompactWorkerTool{worker: worker, model: workerModel}
}

func (t *CompactWorkerTool) Name() string { return "compact_worker_context" }

func (t *CompactWorkerTool) Description() string {
	return "Summarize and shrink the worker's conversation history. Use when the worker reports its context is too long."
}

func (t *CompactWorkerTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *CompactWorkerTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	before := t.worker.HistoryLen()
	if err := t.worker.Compact(ctx, t.model); err != nil {
		return metaError(fmt.Sprintf("compaction failed: %v", err)), nil
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("Worker context compacted: %d messages replaced by a summary.", before),
	}, nil
}

// ResetWorkerTool clears the worker's history and installs a new system
// prompt for a fresh-context call.
type ResetWorkerTool struct {
	worker *agent.Driver
}

// NewResetWorkerTool creates the reset meta-tool.
func NewResetWorkerTool(worker *agent.Driver) *ResetWorkerTool {
	return &ResetWorkerTool{worker: worker}
}

func (t *ResetWorkerTool) Name() string { return "reset_worker" }

func (t *ResetWorkerTool) Description() string {
	return "Clear the worker's history and optionally install a new system prompt for the next instruction."
}

func (t *ResetWorkerTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"system_prompt": {"type": "string", "description": "Replacement system prompt. Omit to keep the current one."}
		}
	}`)
}

func (t *ResetWorkerTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		SystemPrompt string `json:"system_prompt"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return metaError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	t.worker.Reset(input.SystemPrompt)
	return &agent.ToolResult{Content: "Worker history cleared; it will start fresh on the next instruction."}, nil
}

func metaError(message string) *agent.ToolResult {
	return &agent.ToolResult{Content: message, IsError: true}
}
