package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/tandem/internal/agent"
)

// fakeTool is a minimal tool for executor tests.
type fakeTool struct {
	name   string
	schema string
	run    func(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error)
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool for tests" }
func (f *fakeTool) Schema() json.RawMessage {
	if f.schema == "" {
		return json.RawMessage(`{"type": "object"}`)
	}
	return json.RawMessage(f.schema)
}
func (f *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if f.run != nil {
		return f.run(ctx, params)
	}
	return &agent.ToolResult{Content: "ok"}, nil
}

func newWorkerExecutor(t *testing.T) *Executor {
	t.Helper()
	return NewExecutor(ExecutorOptions{
		AgentName:      "worker",
		OtherAgentName: "instructor",
		Forbidden:      []string{"git_write"},
	})
}

func TestExecutePermissionDenied(t *testing.T) {
	exec := newWorkerExecutor(t)
	if err := exec.Register(&fakeTool{name: "locked"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	res := exec.Execute(context.Background(), agent.ToolCall{ID: "1", Name: "locked"})
	if !res.IsError {
		t.Fatalf("expected permission error, got %q", res.Content)
	}
	if !strings.Contains(res.Content, "Permission denied") {
		t.Errorf("content = %q, want permission-denied message", res.Content)
	}
	if !strings.Contains(res.Content, "instructor") {
		t.Errorf("content = %q, should name the agent that may use it", res.Content)
	}
}

func TestPermissionCheckPrecedesValidation(t *testing.T) {
	exec := newWorkerExecutor(t)
	schema := `{"type": "object", "properties": {"path": {"type": "string"}}, "required": ["path"]}`
	if err := exec.Register(&fakeTool{name: "locked", schema: schema}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Input is invalid too, but the permission error must win.
	res := exec.Execute(context.Background(), agent.ToolCall{Name: "locked", Input: json.RawMessage(`{}`)})
	if !strings.Contains(res.Content, "Permission denied") {
		t.Errorf("content = %q, want permission denied before schema validation", res.Content)
	}
}

func TestGrantForbiddenFailsClosed(t *testing.T) {
	exec := newWorkerExecutor(t)
	if err := exec.Register(&fakeTool{name: "git_write"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := exec.Grant("git_write")
	if err == nil {
		t.Fatal("Grant(git_write) succeeded, want failure")
	}
	if !strings.Contains(err.Error(), "permanently forbidden") {
		t.Errorf("error = %q, want it to mention permanently forbidden", err)
	}
	for _, name := range exec.Allowed() {
		if name == "git_write" {
			t.Fatal("git_write entered the allow-set")
		}
	}
}

func TestGrantMetaToolReportsForbidden(t *testing.T) {
	workerExec := newWorkerExecutor(t)
	if err := workerExec.Register(&fakeTool{name: "git_write"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	grant := NewGrantTool(workerExec)

	res, err := grant.Execute(context.Background(), json.RawMessage(`{"tool_name": "git_write", "reason": "x"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Fatal("grant of a forbidden tool must be an error result")
	}
	if !strings.Contains(res.Content, "permanently forbidden") {
		t.Errorf("content = %q, want the permanently forbidden message", res.Content)
	}
}

func TestGrantRevokeRoundTrip(t *testing.T) {
	workerExec := newWorkerExecutor(t)
	if err := workerExec.Register(&fakeTool{name: "extra"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := workerExec.Grant("extra"); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	res := workerExec.Execute(context.Background(), agent.ToolCall{Name: "extra"})
	if res.IsError {
		t.Fatalf("granted tool failed: %q", res.Content)
	}

	if err := workerExec.Revoke("extra"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	res = workerExec.Execute(context.Background(), agent.ToolCall{Name: "extra"})
	if !res.IsError || !strings.Contains(res.Content, "Permission denied") {
		t.Errorf("revoked tool still executable: %q", res.Content)
	}
}

func TestExecuteSchemaValidation(t *testing.T) {
	exec := newWorkerExecutor(t)
	schema := `{"type": "object", "properties": {"path": {"type": "string"}}, "required": ["path"]}`
	if err := exec.RegisterAllowed(&fakeTool{name: "strict", schema: schema}); err != nil {
		t.Fatalf("register: %v", err)
	}

	res := exec.Execute(context.Background(), agent.ToolCall{Name: "strict", Input: json.RawMessage(`{}`)})
	if !res.IsError {
		t.Fatal("missing required field accepted")
	}
	if !strings.Contains(res.Content, "schema") {
		t.Errorf("content = %q, want a schema error", res.Content)
	}

	res = exec.Execute(context.Background(), agent.ToolCall{Name: "strict", Input: json.RawMessage(`{"path": "a.txt"}`)})
	if res.IsError {
		t.Errorf("valid input rejected: %q", res.Content)
	}
}

func TestExecuteEmptyInputDefaultsToObject(t *testing.T) {
	exec := newWorkerExecutor(t)
	var seen string
	tool := &fakeTool{
		name: "echo",
		run: func(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
			seen = string(params)
			return &agent.ToolResult{Content: "ok"}, nil
		},
	}
	if err := exec.RegisterAllowed(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	res := exec.Execute(context.Background(), agent.ToolCall{Name: "echo"})
	if res.IsError {
		t.Fatalf("Execute: %q", res.Content)
	}
	if seen != "{}" {
		t.Errorf("tool saw input %q, want {}", seen)
	}
}

func TestExecuteTimeout(t *testing.T) {
	exec := NewExecutor(ExecutorOptions{
		AgentName:      "worker",
		DefaultTimeout: 50 * time.Millisecond,
	})
	slow := &fakeTool{
		name: "slow",
		run: func(ctx context.Context, _ json.RawMessage) (*agent.ToolResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	if err := exec.RegisterAllowed(slow); err != nil {
		t.Fatalf("register: %v", err)
	}

	res := exec.Execute(context.Background(), agent.ToolCall{Name: "slow", Input: json.RawMessage(`{"x": 1}`)})
	if !res.IsError {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(res.Content, "timed out after") {
		t.Errorf("content = %q, want a timeout message", res.Content)
	}
	if !strings.Contains(res.Content, `"x": 1`) {
		t.Errorf("content = %q, want the offending input echoed", res.Content)
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	exec := newWorkerExecutor(t)
	boom := &fakeTool{
		name: "boom",
		run: func(context.Context, json.RawMessage) (*agent.ToolResult, error) {
			panic("kaboom")
		},
	}
	if err := exec.RegisterAllowed(boom); err != nil {
		t.Fatalf("register: %v", err)
	}
	res := exec.Execute(context.Background(), agent.ToolCall{Name: "boom"})
	if !res.IsError || !strings.Contains(res.Content, "panicked") {
		t.Errorf("result = %+v, want a panic error result", res)
	}
}

func TestToolsListsOnlyAllowed(t *testing.T) {
	exec := newWorkerExecutor(t)
	if err := exec.RegisterAllowed(&fakeTool{name: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := exec.RegisterAllowed(&fakeTool{name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := exec.Register(&fakeTool{name: "hidden"}); err != nil {
		t.Fatal(err)
	}

	tools := exec.Tools()
	if len(tools) != 2 || tools[0].Name() != "a" || tools[1].Name() != "b" {
		names := make([]string, len(tools))
		for i, tl := range tools {
			names[i] = tl.Name()
		}
		t.Errorf("Tools() = %v, want [a b]", names)
	}
}
