// Package search implements the search tools: glob_files and grep_search.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haasonsaas/tandem/internal/agent"
)

// Config controls search tool defaults.
type Config struct {
	// WorkDir is the directory searches run under.
	WorkDir string

	// MaxResults caps the number of paths or lines returned. Default: 500.
	MaxResults int
}

const defaultMaxResults = 500

// GlobTool finds files whose relative path matches a glob pattern. Patterns
// support ** for any number of path segments.
type GlobTool struct {
	workDir    string
	maxResults int
}

// NewGlobTool creates a glob_files tool scoped to the working directory.
func NewGlobTool(cfg Config) *GlobTool {
	limit := cfg.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}
	return &GlobTool{workDir: cfg.WorkDir, maxResults: limit}
}

func (t *GlobTool) Name() string { return "glob_files" }

func (t *GlobTool) Description() string {
	return "Find files matching a glob pattern (supports **), relative to the working directory. Results are sorted by path."
}

func (t *GlobTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "Glob pattern, e.g. internal/**/*.go"},
			"path": {"type": "string", "description": "Subdirectory to search in. Defaults to the working directory."},
			"timeout_seconds": {"type": "integer", "minimum": 1}
		},
		"required": ["pattern"]
	}`)
}

func (t *GlobTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return searchError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return searchError("pattern is required"), nil
	}

	root := t.workDir
	if root == "" {
		root = "."
	}
	if input.Path != "" {
		root = filepath.Join(root, input.Path)
	}

	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if matchGlob(input.Pattern, filepath.ToSlash(rel)) {
			matches = append(matches, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return searchError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(matches) == 0 {
		return &agent.ToolResult{Content: "no matches"}, nil
	}
	sort.Strings(matches)
	truncated := false
	if len(matches) > t.maxResults {
		matches = matches[:t.maxResults]
		truncated = true
	}
	out := strings.Join(matches, "\n")
	if truncated {
		out += fmt.Sprintf("\n[truncated to first %d matches]", t.maxResults)
	}
	return &agent.ToolResult{Content: out}, nil
}

// matchGlob matches a slash-separated relative path against a pattern where
// * matches within a segment and ** matches zero or more whole segments.
func matchGlob(pattern, path string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(path, "/"))
}

func matchSegments(pat, parts []string) bool {
	if len(pat) == 0 {
		return len(parts) == 0
	}
	if pat[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pat[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := filepath.Match(pat[0], parts[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], parts[1:])
}

func searchError(message string) *agent.ToolResult {
	return &agent.ToolResult{Content: message, IsError: true}
}
