package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/tandem/internal/agent"
)

// ReadTool reads a file, optionally a 1-based line range with line-number
// prefixes.
type ReadTool struct {
	resolver Resolver
	maxBytes int
}

// NewReadTool creates a read_file tool scoped to the working directory.
func NewReadTool(cfg Config) *ReadTool {
	limit := cfg.MaxReadBytes
	if limit <= 0 {
		limit = 256 << 10
	}
	return &ReadTool{
		resolver: Resolver{Root: cfg.WorkDir},
		maxBytes: limit,
	}
}

func (t *ReadTool) Name() string { return "read_file" }

func (t *ReadTool) Description() string {
	return "Read a file from the working directory. With offset/limit, returns the selected line range with 1-based line numbers."
}

func (t *ReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file (relative to the working directory)."},
			"offset": {"type": "integer", "description": "1-based line to start reading from.", "minimum": 1},
			"limit": {"type": "integer", "description": "Maximum number of lines to read.", "minimum": 1},
			"timeout_seconds": {"type": "integer", "minimum": 1}
		},
		"required": ["path"]
	}`)
}

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path   string `json:"path"`
		Offset int    `json:"offset"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("path is required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("read file: %v", err)), nil
	}
	if len(data) > t.maxBytes {
		data = data[:t.maxBytes]
	}

	if input.Offset <= 0 && input.Limit <= 0 {
		return &agent.ToolResult{Content: string(data)}, nil
	}

	lines := strings.Split(string(data), "\n")
	start := input.Offset
	if start <= 0 {
		start = 1
	}
	if start > len(lines) {
		return toolError(fmt.Sprintf("offset %d is past the end of the file (%d lines)", start, len(lines))), nil
	}
	end := len(lines)
	if input.Limit > 0 && start-1+input.Limit < end {
		end = start - 1 + input.Limit
	}

	var out strings.Builder
	for i := start - 1; i < end; i++ {
		fmt.Fprintf(&out, "%6d\t%s\n", i+1, lines[i])
	}
	return &agent.ToolResult{Content: out.String()}, nil
}

func toolError(message string) *agent.ToolResult {
	return &agent.ToolResult{Content: message, IsError: true}
}
