// Package shell implements shell_exec, a guarded shell runner for the
// agents. The blocklist is a coarse safety net, not a sandbox.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/haasonsaas/tandem/internal/agent"
)

// Config controls shell tool defaults.
type Config struct {
	// WorkDir is the directory commands run in.
	WorkDir string

	// DefaultTimeout bounds command runtime when the caller does not pass
	// one. Default: 60s.
	DefaultTimeout time.Duration

	// MaxOutputBytes caps captured output. Default: 256 KiB.
	MaxOutputBytes int
}

// blockedSubstrings rejects obviously destructive commands before they
// run. Matching is case-insensitive substring.
var blockedSubstrings = []string{
	"rm -rf /",
	"rm -rf ~",
	"rm -rf *",
	"rm -fr /",
	"sudo ",
	"mkfs",
	"dd if=",
	"> /dev/sd",
	"of=/dev/",
	":(){ :|:& };:",
	"chmod -r 777 /",
	"chown -r",
	"shutdown",
	"reboot",
}

// Tool runs a shell command with a timeout and the blocklist check.
type Tool struct {
	workDir        string
	defaultTimeout time.Duration
	maxBytes       int
}

// New creates a shell_exec tool scoped to the working directory.
func New(cfg Config) *Tool {
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	limit := cfg.MaxOutputBytes
	if limit <= 0 {
		limit = 256 << 10
	}
	return &Tool{workDir: cfg.WorkDir, defaultTimeout: timeout, maxBytes: limit}
}

func (t *Tool) Name() string { return "shell_exec" }

func (t *Tool) Description() string {
	return "Run a shell command in the working directory and return its output. Destructive commands are rejected."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Shell command to run."},
			"timeout": {"type": "integer", "description": "Timeout in seconds.", "minimum": 1},
			"timeout_seconds": {"type": "integer", "minimum": 1}
		},
		"required": ["command"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Command string `json:"command"`
		Timeout int    `json:"timeout"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return shellError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return shellError("command is required"), nil
	}

	if blocked := matchBlocklist(command); blocked != "" {
		return shellError(fmt.Sprintf("command rejected: contains blocked pattern %q", blocked)), nil
	}

	timeout := t.defaultTimeout
	if input.Timeout > 0 {
		timeout = time.Duration(input.Timeout) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := stdout.String()
	if errText := strings.TrimSpace(stderr.String()); errText != "" {
		if out != "" && !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		out += "[stderr]\n" + errText
	}
	if len(out) > t.maxBytes {
		out = out[:t.maxBytes] + "\n[output truncated]"
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return shellError(fmt.Sprintf("command timed out after %s: %s", timeout, command)), nil
	}
	if err != nil {
		if strings.TrimSpace(out) == "" {
			out = err.Error()
		} else {
			out += fmt.Sprintf("\n[exit: %v]", err)
		}
		return shellError(out), nil
	}
	if strings.TrimSpace(out) == "" {
		out = "(no output)"
	}
	return &agent.ToolResult{Content: out}, nil
}

func matchBlocklist(command string) string {
	lowered := strings.ToLower(command)
	for _, pattern := range blockedSubstrings {
		if strings.Contains(lowered, pattern) {
			return pattern
		}
	}
	return ""
}

func shellError(message string) *agent.ToolResult {
	return &agent.ToolResult{Content: message, IsError: true}
}
