package gittools

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"testing"
)

func params(t *testing.T, command string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestGitReadRejectsMutatingCommands(t *testing.T) {
	tool := NewReadTool(Config{WorkDir: t.TempDir()})
	for _, command := range []string{
		"commit -m 'x'",
		"push origin main",
		"checkout -b feature",
		"reset --hard HEAD~1",
		"add .",
		"merge main",
	} {
		res, err := tool.Execute(context.Background(), params(t, command))
		if err != nil {
			t.Fatalf("Execute(%q): %v", command, err)
		}
		if !res.IsError {
			t.Errorf("git_read accepted %q", command)
			continue
		}
		if !strings.Contains(res.Content, "git_write") {
			t.Errorf("rejection for %q = %q, should direct to git_write", command, res.Content)
		}
	}
}

func TestGitReadRejectsConfigMutation(t *testing.T) {
	tool := NewReadTool(Config{WorkDir: t.TempDir()})
	res, err := tool.Execute(context.Background(), params(t, "config user.name Somebody"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Fatal("git_read accepted a config write")
	}

	res, err = tool.Execute(context.Background(), params(t, "config --list"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// --list is read-only and passes the whitelist; it may still fail if
	// git is unavailable, but never with the whitelist rejection.
	if res.IsError && strings.Contains(res.Content, "git_write") {
		t.Errorf("config --list hit the whitelist rejection: %q", res.Content)
	}
}

func TestGitReadStripsLeadingGit(t *testing.T) {
	tool := NewReadTool(Config{WorkDir: t.TempDir()})
	res, err := tool.Execute(context.Background(), params(t, "git push origin main"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "git_write") {
		t.Errorf("leading \"git\" changed whitelist behavior: %+v", res)
	}
}

func TestGitReadMissingCommand(t *testing.T) {
	tool := NewReadTool(Config{WorkDir: t.TempDir()})
	res, err := tool.Execute(context.Background(), params(t, "   "))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Fatal("empty command accepted")
	}
}

func TestGitReadAndWriteInRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v (%s)", args, err, out)
		}
	}

	read := NewReadTool(Config{WorkDir: dir})
	res, err := read.Execute(context.Background(), params(t, "status --short"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Errorf("git status failed: %q", res.Content)
	}

	write := NewWriteTool(Config{WorkDir: dir})
	res, err = write.Execute(context.Background(), params(t, "checkout -b feature"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Errorf("git_write checkout failed: %q", res.Content)
	}

	res, err = read.Execute(context.Background(), params(t, "branch --show-current"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(res.Content, "feature") {
		t.Errorf("branch output = %q, want feature", res.Content)
	}
}
