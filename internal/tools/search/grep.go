package search

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/haasonsaas/tandem/internal/agent"
)

// GrepTool searches file contents with a regular expression.
type GrepTool struct {
	workDir    string
	maxResults int
}

// NewGrepTool creates a grep_search tool scoped to the working directory.
func NewGrepTool(cfg Config) *GrepTool {
	limit := cfg.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}
	return &GrepTool{workDir: cfg.WorkDir, maxResults: limit}
}

func (t *GrepTool) Name() string { return "grep_search" }

func (t *GrepTool) Description() string {
	return "Search file contents with a Go regular expression. output_mode selects matching lines, file paths, or per-file match counts."
}

func (t *GrepTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "Go regular expression to search for."},
			"path": {"type": "string", "description": "Subdirectory to search in. Defaults to the working directory."},
			"glob": {"type": "string", "description": "Only search files whose relative path matches this glob."},
			"output_mode": {
				"type": "string",
				"enum": ["content", "files_with_matches", "count"],
				"description": "What to return. Default: files_with_matches."
			},
			"timeout_seconds": {"type": "integer", "minimum": 1}
		},
		"required": ["pattern"]
	}`)
}

func (t *GrepTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Pattern    string `json:"pattern"`
		Path       string `json:"path"`
		Glob       string `json:"glob"`
		OutputMode string `json:"output_mode"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return searchError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Pattern == "" {
		return searchError("pattern is required"), nil
	}
	mode := input.OutputMode
	if mode == "" {
		mode = "files_with_matches"
	}
	switch mode {
	case "content", "files_with_matches", "count":
	default:
		return searchError(fmt.Sprintf("unknown output_mode %q", mode)), nil
	}

	re, err := regexp.Compile(input.Pattern)
	if err != nil {
		return searchError(fmt.Sprintf("invalid pattern: %v", err)), nil
	}

	root := t.workDir
	if root == "" {
		root = "."
	}
	if input.Path != "" {
		root = filepath.Join(root, input.Path)
	}

	var (
		lines  []string
		files  []string
		counts = map[string]int{}
	)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
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
		rel = filepath.ToSlash(rel)
		if input.Glob != "" && !matchGlob(input.Glob, rel) {
			return nil
		}
		n := scanFile(path, rel, re, mode, t.maxResults, &lines)
		if n > 0 {
			files = append(files, rel)
			counts[rel] = n
		}
		if mode == "content" && len(lines) >= t.maxResults {
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return searchError(fmt.Sprintf("search failed: %v", walkErr)), nil
	}

	switch mode {
	case "content":
		if len(lines) == 0 {
			return &agent.ToolResult{Content: "no matches"}, nil
		}
		return &agent.ToolResult{Content: strings.Join(lines, "\n")}, nil
	case "count":
		if len(files) == 0 {
			return &agent.ToolResult{Content: "no matches"}, nil
		}
		sort.Strings(files)
		var out strings.Builder
		for _, f := range files {
			fmt.Fprintf(&out, "%s:%d\n", f, counts[f])
		}
		return &agent.ToolResult{Content: strings.TrimRight(out.String(), "\n")}, nil
	default:
		if len(files) == 0 {
			return &agent.ToolResult{Content: "no matches"}, nil
		}
		sort.Strings(files)
		if len(files) > t.maxResults {
			files = files[:t.maxResults]
		}
		return &agent.ToolResult{Content: strings.Join(files, "\n")}, nil
	}
}

// scanFile returns the number of matching lines and, in content mode,
// appends "rel:lineno:text" entries to out.
func scanFile(path, rel string, re *regexp.Regexp, mode string, limit int, out *[]string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.ContainsRune(line, 0) {
			return count // binary file, stop scanning
		}
		if !re.MatchString(line) {
			continue
		}
		count++
		if mode == "content" {
			if len(*out) < limit {
				*out = append(*out, fmt.Sprintf("%s:%d:%s", rel, lineNo, line))
			}
		} else if mode == "files_with_matches" {
			return count // one match is enough
		}
	}
	return count
}
