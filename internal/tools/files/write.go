package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haasonsaas/tandem/internal/agent"
)

// WriteTool writes a file, creating parent directories as needed.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool creates a write_file tool scoped to the working directory.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: cfg.WorkDir}}
}

func (t *WriteTool) Name() string { return "write_file" }

func (t *WriteTool) Description() string {
	return "Write content to a file in the working directory, replacing any existing content."
}

func (t *WriteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file (relative to the working directory)."},
			"content": {"type": "string", "description": "Full file content."},
			"timeout_seconds": {"type": "integer", "minimum": 1}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path    string  `json:"path"`
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Path == "" {
		return toolError("path is required"), nil
	}
	if input.Content == nil {
		return toolError("content is required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError(fmt.Sprintf("create parent directory: %v", err)), nil
	}
	if err := os.WriteFile(resolved, []byte(*input.Content), 0o644); err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("Wrote %d bytes to %s", len(*input.Content), input.Path),
	}, nil
}
