// Package gittools implements the git tools: git_read (read-only
// subcommands only) and git_write (anything).
package gittools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/haasonsaas/tandem/internal/agent"
)

// Config controls git tool defaults.
type Config struct {
	// WorkDir is the repository the git commands run in.
	WorkDir string

	// MaxOutputBytes caps captured output. Default: 256 KiB.
	MaxOutputBytes int
}

// readOnlyHeads are the git subcommands git_read accepts. The first
// whitespace-delimited token of the command must match one of these
// exactly. config is special-cased: only --get/--list invocations pass.
var readOnlyHeads = map[string]bool{
	"status":    true,
	"log":       true,
	"diff":      true,
	"show":      true,
	"branch":    true,
	"remote":    true,
	"ls-files":  true,
	"ls-tree":   true,
	"describe":  true,
	"rev-parse": true,
	"rev-list":  true,
	"blame":     true,
	"shortlog":  true,
	"reflog":    true,
	"tag":       true,
	"config":    true,
}

// ReadTool runs read-only git subcommands.
type ReadTool struct {
	runner runner
}

// NewReadTool creates a git_read tool scoped to the working directory.
func NewReadTool(cfg Config) *ReadTool {
	return &ReadTool{runner: newRunner(cfg)}
}

func (t *ReadTool) Name() string { return "git_read" }

func (t *ReadTool) Description() string {
	return "Run a read-only git subcommand (status, log, diff, show, branch, remote, ls-files, ls-tree, describe, rev-parse, rev-list, blame, shortlog, reflog, tag, config --get/--list). Pass the arguments after 'git', e.g. \"log --oneline -5\"."
}

func (t *ReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "git arguments, without the leading 'git'."},
			"timeout_seconds": {"type": "integer", "minimum": 1}
		},
		"required": ["command"]
	}`)
}

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return gitError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	command := strings.TrimSpace(input.Command)
	command = strings.TrimPrefix(command, "git ")
	if command == "" {
		return gitError("command is required"), nil
	}

	fields := strings.Fields(command)
	head := fields[0]
	if !readOnlyHeads[head] {
		return gitError(fmt.Sprintf("git %s is not a read-only subcommand; use git_write for commands that modify the repository", head)), nil
	}
	if head == "config" && !isReadOnlyConfig(fields[1:]) {
		return gitError("git config is only allowed with --get or --list here; use git_write to change configuration"), nil
	}

	return t.runner.run(ctx, fields)
}

func isReadOnlyConfig(args []string) bool {
	for _, a := range args {
		switch a {
		case "--get", "--get-all", "--get-regexp", "--list", "-l":
			return true
		}
	}
	return false
}

// WriteTool runs arbitrary git subcommands.
type WriteTool struct {
	runner runner
}

// NewWriteTool creates a git_write tool scoped to the working directory.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{runner: newRunner(cfg)}
}

func (t *WriteTool) Name() string { return "git_write" }

func (t *WriteTool) Description() string {
	return "Run any git subcommand, including ones that modify the repository (add, commit, checkout, merge, push). Pass the arguments after 'git'."
}

func (t *WriteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "git arguments, without the leading 'git'."},
			"timeout_seconds": {"type": "integer", "minimum": 1}
		},
		"required": ["command"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return gitError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	command := strings.TrimSpace(input.Command)
	command = strings.TrimPrefix(command, "git ")
	if command == "" {
		return gitError("command is required"), nil
	}
	return t.runner.run(ctx, strings.Fields(command))
}

type runner struct {
	workDir  string
	maxBytes int
}

func newRunner(cfg Config) runner {
	limit := cfg.MaxOutputBytes
	if limit <= 0 {
		limit = 256 << 10
	}
	return runner{workDir: cfg.WorkDir, maxBytes: limit}
}

func (r runner) run(ctx context.Context, args []string) (*agent.ToolResult, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := stdout.String()
	if len(out) > r.maxBytes {
		out = out[:r.maxBytes] + "\n[output truncated]"
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return gitError(fmt.Sprintf("git %s failed: %s", args[0], msg)), nil
	}
	if strings.TrimSpace(out) == "" {
		out = "(no output)"
	}
	return &agent.ToolResult{Content: out}, nil
}

func gitError(message string) *agent.ToolResult {
	return &agent.ToolResult{Content: message, IsError: true}
}
