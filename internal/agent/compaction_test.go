package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(nil); got != 0 {
		t.Errorf("EstimateTokens(nil) = %d, want 0", got)
	}

	// "user" (4) + 8 chars of content = 12 chars -> 3 tokens.
	msgs := []Message{{Role: "user", Content: "12345678"}}
	if got := EstimateTokens(msgs); got != 3 {
		t.Errorf("EstimateTokens = %d, want 3", got)
	}

	// Rounds up: 13 chars -> 4 tokens.
	msgs = []Message{{Role: "user", Content: "123456789"}}
	if got := EstimateTokens(msgs); got != 4 {
		t.Errorf("EstimateTokens = %d, want 4 (ceil)", got)
	}
}

func TestEstimateTokensCountsToolTraffic(t *testing.T) {
	msgs := []Message{
		{Role: "assistant", ToolCalls: []ToolCall{{Name: "read_file", Input: json.RawMessage(`{"path":"a"}`)}}},
		{Role: "user", ToolResults: []ToolResult{{Content: "file body"}}},
	}
	if got := EstimateTokens(msgs); got == 0 {
		t.Error("tool calls and results should count toward the estimate")
	}
}

func TestNeedsCompaction(t *testing.T) {
	d := newStubDriver(&stubProvider{turns: []stubTurn{{text: "x"}}}, nil)
	cfg := CompactionConfig{ContextTokens: 100, ThresholdPercent: 80}

	d.RestoreHistory([]Message{{Role: "user", Content: strings.Repeat("a", 100)}})
	if d.NeedsCompaction(cfg) {
		t.Error("26 tokens of 100 should not need compaction")
	}

	d.RestoreHistory([]Message{{Role: "user", Content: strings.Repeat("a", 400)}})
	if !d.NeedsCompaction(cfg) {
		t.Error("101 tokens of 100 should need compaction")
	}
}

func TestCompactReplacesHistoryWithSummary(t *testing.T) {
	provider := &stubProvider{turns: []stubTurn{
		{text: "ok"},
		{text: "User asked for hello.txt; worker created it; nothing pending."},
	}}
	d := newStubDriver(provider, nil)
	if _, err := d.Process(context.Background(), "Write hello.txt", "", nil, nil); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if err := d.Compact(context.Background(), ""); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	history := d.History()
	if len(history) != 1 {
		t.Fatalf("history len = %d after compaction, want 1", len(history))
	}
	if history[0].Role != "user" {
		t.Errorf("summary role = %q, want user", history[0].Role)
	}
	if !strings.Contains(history[0].Content, "[Conversation compacted.") {
		t.Errorf("summary content = %q, want the compaction marker", history[0].Content)
	}
	if !strings.Contains(history[0].Content, "hello.txt") {
		t.Errorf("summary content = %q, want the model summary", history[0].Content)
	}
}

func TestCompactEmptyHistoryIsNoop(t *testing.T) {
	d := newStubDriver(&stubProvider{turns: []stubTurn{{text: "x"}}}, nil)
	if err := d.Compact(context.Background(), ""); err != nil {
		t.Fatalf("Compact on empty history: %v", err)
	}
	if d.HistoryLen() != 0 {
		t.Errorf("history len = %d, want 0", d.HistoryLen())
	}
}
