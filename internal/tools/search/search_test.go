package search

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func seedTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("main.go", "package main\n\nfunc main() {}\n")
	write("internal/agent/driver.go", "package agent\n\nfunc Process() {}\n")
	write("internal/agent/driver_test.go", "package agent\n\nfunc TestProcess(t *T) {}\n")
	write("docs/readme.md", "# Readme\nProcess docs\n")
	return dir
}

func params(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestGlobDoubleStar(t *testing.T) {
	dir := seedTree(t)
	tool := NewGlobTool(Config{WorkDir: dir})

	res, err := tool.Execute(context.Background(), params(t, map[string]any{"pattern": "**/*.go"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := strings.Split(res.Content, "\n")
	want := []string{"internal/agent/driver.go", "internal/agent/driver_test.go", "main.go"}
	if len(got) != len(want) {
		t.Fatalf("matches = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("match[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGlobSingleSegment(t *testing.T) {
	dir := seedTree(t)
	tool := NewGlobTool(Config{WorkDir: dir})

	res, err := tool.Execute(context.Background(), params(t, map[string]any{"pattern": "*.go"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Content != "main.go" {
		t.Errorf("content = %q, want only main.go", res.Content)
	}
}

func TestGlobNoMatches(t *testing.T) {
	dir := seedTree(t)
	tool := NewGlobTool(Config{WorkDir: dir})

	res, err := tool.Execute(context.Background(), params(t, map[string]any{"pattern": "**/*.rs"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Content != "no matches" {
		t.Errorf("content = %q, want \"no matches\"", res.Content)
	}
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern, path string
		want          bool
	}{
		{"**/*.go", "a/b/c.go", true},
		{"**/*.go", "c.go", true},
		{"internal/**", "internal/x/y.go", true},
		{"internal/**", "cmd/x.go", false},
		{"*.go", "a/b.go", false},
		{"a/*/c.go", "a/b/c.go", true},
		{"a/*/c.go", "a/b/d/c.go", false},
	}
	for _, tt := range tests {
		if got := matchGlob(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestGrepContentMode(t *testing.T) {
	dir := seedTree(t)
	tool := NewGrepTool(Config{WorkDir: dir})

	res, err := tool.Execute(context.Background(), params(t, map[string]any{
		"pattern": "func Process", "output_mode": "content",
	}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(res.Content, "internal/agent/driver.go:3:func Process() {}") {
		t.Errorf("content = %q, want file:line:text entries", res.Content)
	}
}

func TestGrepFilesWithMatchesDefault(t *testing.T) {
	dir := seedTree(t)
	tool := NewGrepTool(Config{WorkDir: dir})

	res, err := tool.Execute(context.Background(), params(t, map[string]any{"pattern": "Process"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := strings.Split(res.Content, "\n")
	want := []string{"docs/readme.md", "internal/agent/driver.go", "internal/agent/driver_test.go"}
	if len(got) != len(want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGrepCountMode(t *testing.T) {
	dir := seedTree(t)
	tool := NewGrepTool(Config{WorkDir: dir})

	res, err := tool.Execute(context.Background(), params(t, map[string]any{
		"pattern": "package", "output_mode": "count",
	}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{"main.go:1", "internal/agent/driver.go:1"} {
		if !strings.Contains(res.Content, want) {
			t.Errorf("content = %q, missing %q", res.Content, want)
		}
	}
}

func TestGrepGlobFilter(t *testing.T) {
	dir := seedTree(t)
	tool := NewGrepTool(Config{WorkDir: dir})

	res, err := tool.Execute(context.Background(), params(t, map[string]any{
		"pattern": "Process", "glob": "**/*.md",
	}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Content != "docs/readme.md" {
		t.Errorf("content = %q, want only the markdown file", res.Content)
	}
}

func TestGrepInvalidPattern(t *testing.T) {
	tool := NewGrepTool(Config{WorkDir: t.TempDir()})
	res, err := tool.Execute(context.Background(), params(t, map[string]any{"pattern": "("}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Fatal("invalid regexp should be an error result")
	}
}

func TestGrepNoMatches(t *testing.T) {
	dir := seedTree(t)
	tool := NewGrepTool(Config{WorkDir: dir})
	res, err := tool.Execute(context.Background(), params(t, map[string]any{"pattern": "zebra"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Content != "no matches" {
		t.Errorf("content = %q, want \"no matches\"", res.Content)
	}
}
