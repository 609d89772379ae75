package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

// stubProvider replays canned turns in order, repeating the last one.
type stubProvider struct {
	mu    sync.Mutex
	turns []stubTurn
	calls int
}

type stubTurn struct {
	text      string
	toolCalls []ToolCall
	err       error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	p.mu.Lock()
	idx := p.calls
	if idx >= len(p.turns) {
		idx = len(p.turns) - 1
	}
	turn := p.turns[idx]
	p.calls++
	p.mu.Unlock()

	if turn.err != nil {
		return nil, turn.err
	}

	ch := make(chan *CompletionChunk, len(turn.toolCalls)+2)
	if turn.text != "" {
		ch <- &CompletionChunk{Text: turn.text}
	}
	for i := range turn.toolCalls {
		call := turn.toolCalls[i]
		ch <- &CompletionChunk{ToolCall: &call}
	}
	ch <- &CompletionChunk{Done: true, InputTokens: 10, OutputTokens: 5}
	close(ch)
	return ch, nil
}

// recordingExecutor answers every call with a fixed result and records the
// order calls arrived in.
type recordingExecutor struct {
	mu    sync.Mutex
	calls []ToolCall
}

func (e *recordingExecutor) Execute(ctx context.Context, call ToolCall) ToolResult {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()
	return ToolResult{ToolCallID: call.ID, Content: "result for " + call.Name}
}

func (e *recordingExecutor) Tools() []Tool { return nil }

func newStubDriver(provider LLMProvider, exec ToolExecutor) *Driver {
	if exec == nil {
		exec = &recordingExecutor{}
	}
	return NewDriver(Options{
		Name:     "worker",
		System:   "test system",
		Provider: provider,
		Executor: exec,
	})
}

func TestProcessRejectsEmptyInput(t *testing.T) {
	d := newStubDriver(&stubProvider{turns: []stubTurn{{text: "hi"}}}, nil)
	for _, input := range []string{"", "   ", "\n\t"} {
		if _, err := d.Process(context.Background(), input, "", nil, nil); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Process(%q) err = %v, want ErrEmptyInput", input, err)
		}
	}
	if d.HistoryLen() != 0 {
		t.Errorf("history grew on rejected input: %d messages", d.HistoryLen())
	}
}

func TestProcessTextOnlyTurn(t *testing.T) {
	d := newStubDriver(&stubProvider{turns: []stubTurn{{text: "all done here"}}}, nil)

	var streamed strings.Builder
	out, err := d.Process(context.Background(), "go", "", func(s string) { streamed.WriteString(s) }, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out != "all done here" {
		t.Errorf("out = %q", out)
	}
	if streamed.String() != "all done here" {
		t.Errorf("streamed = %q", streamed.String())
	}
	if d.HistoryLen() != 2 {
		t.Errorf("history len = %d, want 2 (user + assistant)", d.HistoryLen())
	}
}

func TestProcessToolLoopPairsResultsInOrder(t *testing.T) {
	provider := &stubProvider{turns: []stubTurn{
		{toolCalls: []ToolCall{
			{ID: "a", Name: "first", Input: json.RawMessage(`{"n": 1}`)},
			{ID: "b", Name: "second", Input: json.RawMessage(`{"n": 2}`)},
		}},
		{text: "finished"},
	}}
	exec := &recordingExecutor{}
	d := newStubDriver(provider, exec)

	out, err := d.Process(context.Background(), "go", "", nil, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out != "finished" {
		t.Errorf("out = %q", out)
	}

	if len(exec.calls) != 2 || exec.calls[0].ID != "a" || exec.calls[1].ID != "b" {
		t.Fatalf("executor calls = %+v, want a then b", exec.calls)
	}

	// History: user, assistant(tool_use), user(tool_results), assistant.
	history := d.History()
	if len(history) != 4 {
		t.Fatalf("history len = %d, want 4", len(history))
	}
	assistant := history[1]
	results := history[2]
	if results.Role != "user" {
		t.Errorf("results message role = %q, want user", results.Role)
	}
	if len(assistant.ToolCalls) != len(results.ToolResults) {
		t.Fatalf("tool_use/tool_result count mismatch: %d vs %d",
			len(assistant.ToolCalls), len(results.ToolResults))
	}
	for i := range assistant.ToolCalls {
		if assistant.ToolCalls[i].ID != results.ToolResults[i].ToolCallID {
			t.Errorf("result[%d] answers %q, want %q",
				i, results.ToolResults[i].ToolCallID, assistant.ToolCalls[i].ID)
		}
	}
}

func TestProcessRecoversContextLength(t *testing.T) {
	provider := &stubProvider{turns: []stubTurn{
		{err: &ProviderError{Reason: FailoverContextLength, Provider: "stub", Message: "prompt is too long"}},
	}}
	d := NewDriver(Options{
		Name:                 "worker",
		Provider:             provider,
		Executor:             &recordingExecutor{},
		RecoverContextLength: true,
	})

	out, err := d.Process(context.Background(), "go", "", nil, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(out, "[ERROR: Worker context is too long") {
		t.Errorf("out = %q, want the advisory error string", out)
	}
	if !strings.Contains(out, "compact_worker_context") {
		t.Errorf("out = %q, should point at the compaction tool", out)
	}
}

func TestProcessPropagatesErrorWithoutRecovery(t *testing.T) {
	provider := &stubProvider{turns: []stubTurn{
		{err: &ProviderError{Reason: FailoverContextLength, Message: "prompt is too long"}},
	}}
	d := newStubDriver(provider, nil)

	if _, err := d.Process(context.Background(), "go", "", nil, nil); Reason(err) != FailoverContextLength {
		t.Errorf("err = %v, want a context-length failure", err)
	}
}

func TestResetClearsHistoryAndSwapsSystem(t *testing.T) {
	d := newStubDriver(&stubProvider{turns: []stubTurn{{text: "ok"}}}, nil)
	if _, err := d.Process(context.Background(), "go", "", nil, nil); err != nil {
		t.Fatalf("Process: %v", err)
	}

	d.Reset("new system prompt")
	if d.HistoryLen() != 0 {
		t.Errorf("history len = %d after reset, want 0", d.HistoryLen())
	}
	if d.System() != "new system prompt" {
		t.Errorf("system = %q", d.System())
	}

	// A blank replacement keeps the old prompt.
	d.Reset("   ")
	if d.System() != "new system prompt" {
		t.Errorf("blank reset replaced system: %q", d.System())
	}
}

func TestSanitize(t *testing.T) {
	t.Run("strips whitespace-only text", func(t *testing.T) {
		msg, ok := Sanitize(Message{Role: "assistant", Content: "  \n\t ", ToolCalls: []ToolCall{{ID: "a", Name: "x", Input: json.RawMessage(`{}`)}}})
		if !ok {
			t.Fatal("message with a tool call rejected")
		}
		if msg.Content != "" {
			t.Errorf("content = %q, want empty", msg.Content)
		}
	})

	t.Run("defaults invalid tool input to empty object", func(t *testing.T) {
		msg, ok := Sanitize(Message{Role: "assistant", ToolCalls: []ToolCall{
			{ID: "a", Name: "x", Input: json.RawMessage(`{"broken`)},
			{ID: "b", Name: "y"},
		}})
		if !ok {
			t.Fatal("rejected")
		}
		for i, call := range msg.ToolCalls {
			if string(call.Input) != "{}" {
				t.Errorf("call[%d].Input = %q, want {}", i, call.Input)
			}
		}
	})

	t.Run("rejects empty message", func(t *testing.T) {
		if _, ok := Sanitize(Message{Role: "assistant", Content: "   "}); ok {
			t.Error("whitespace-only message accepted")
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		in := Message{Role: "assistant", Content: " keep ", ToolCalls: []ToolCall{{ID: "a", Name: "x", Input: json.RawMessage(`bad`)}}}
		once, ok := Sanitize(in)
		if !ok {
			t.Fatal("rejected")
		}
		twice, ok := Sanitize(once)
		if !ok {
			t.Fatal("second pass rejected")
		}
		if once.Content != twice.Content || len(once.ToolCalls) != len(twice.ToolCalls) {
			t.Errorf("sanitize not idempotent: %+v vs %+v", once, twice)
		}
		for i := range once.ToolCalls {
			if string(once.ToolCalls[i].Input) != string(twice.ToolCalls[i].Input) {
				t.Errorf("call[%d] input changed on second pass", i)
			}
		}
	})
}
