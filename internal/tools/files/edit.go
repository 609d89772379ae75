package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/tandem/internal/agent"
)

// EditTool performs exact string replacement in a file.
type EditTool struct {
	resolver Resolver
}

// NewEditTool creates an edit_file tool scoped to the working directory.
func NewEditTool(cfg Config) *EditTool {
	return &EditTool{resolver: Resolver{Root: cfg.WorkDir}}
}

func (t *EditTool) Name() string { return "edit_file" }

func (t *EditTool) Description() string {
	return "Replace an exact string in a file. With replace_all, every occurrence is replaced; otherwise the string must occur exactly once."
}

func (t *EditTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file (relative to the working directory)."},
			"old_string": {"type": "string", "description": "Exact text to replace."},
			"new_string": {"type": "string", "description": "Replacement text."},
			"replace_all": {"type": "boolean", "description": "Replace every occurrence."},
			"timeout_seconds": {"type": "integer", "minimum": 1}
		},
		"required": ["path", "old_string", "new_string"]
	}`)
}

func (t *EditTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path       string `json:"path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Path == "" {
		return toolError("path is required"), nil
	}
	if input.OldString == "" {
		return toolError("old_string is required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("read file: %v", err)), nil
	}
	content := string(data)

	count := strings.Count(content, input.OldString)
	if count == 0 {
		return toolError(fmt.Sprintf("old_string not found in %s", input.Path)), nil
	}
	if count > 1 && !input.ReplaceAll {
		return toolError(fmt.Sprintf("old_string occurs %d times in %s; pass replace_all or make it unique", count, input.Path)), nil
	}

	replaced := count
	if input.ReplaceAll {
		content = strings.ReplaceAll(content, input.OldString, input.NewString)
	} else {
		content = strings.Replace(content, input.OldString, input.NewString, 1)
		replaced = 1
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("Replaced %d occurrence(s) in %s", replaced, input.Path),
	}, nil
}
