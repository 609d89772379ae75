package agent

import (
	"context"
	"fmt"
	"strings"
)

// CompactionConfig configures automatic history compaction.
type CompactionConfig struct {
	// ContextTokens is the model context budget. Default: 200000.
	ContextTokens int

	// ThresholdPercent is the usage percentage (0-100) that triggers
	// compaction. Default: 80.
	ThresholdPercent int
}

// DefaultCompactionConfig returns sensible defaults.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		ContextTokens:    200000,
		ThresholdPercent: 80,
	}
}

const summaryPrompt = "Summarize the conversation so far for your own future reference. " +
	"Preserve: the user's task, decisions made, worker instructions already issued and their outcomes, " +
	"file paths touched, and anything still pending. Be concise but complete. " +
	"Reply with the summary only."

// EstimateTokens approximates the token count of a message list as
// ceil(chars/4) over all text, tool inputs, and tool results.
func EstimateTokens(messages []Message) int {
	chars := 0
	for _, msg := range messages {
		chars += len(msg.Role)
		chars += len(msg.Content)
		for _, tc := range msg.ToolCalls {
			chars += len(tc.Name) + len(tc.Input)
		}
		for _, tr := range msg.ToolResults {
			chars += len(tr.Content)
		}
	}
	return (chars + 3) / 4
}

// NeedsCompaction reports whether the driver's history estimate has crossed
// the compaction threshold.
func (d *Driver) NeedsCompaction(cfg CompactionConfig) bool {
	budget := cfg.ContextTokens
	if budget <= 0 {
		budget = 200000
	}
	threshold := cfg.ThresholdPercent
	if threshold <= 0 {
		threshold = 80
	}
	return EstimateTokens(d.history)*100 >= budget*threshold
}

// Compact replaces the driver's history with a single summary user message.
// The summary is produced by the driver's own model over the current history.
// model may be empty when the driver has a fixed provider.
func (d *Driver) Compact(ctx context.Context, model string) error {
	if len(d.history) == 0 {
		return nil
	}

	client, resolvedModel, err := d.client(model)
	if err != nil {
		return err
	}

	before := EstimateTokens(d.history)
	messages := append(d.History(), Message{Role: "user", Content: summaryPrompt})
	req := &CompletionRequest{
		Model:     resolvedModel,
		System:    d.system,
		Messages:  messages,
		MaxTokens: d.maxTokens,
	}

	chunks, err := client.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("compaction summary request: %w", err)
	}

	var summary strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return fmt.Errorf("compaction summary stream: %w", chunk.Error)
		}
		summary.WriteString(chunk.Text)
	}
	if strings.TrimSpace(summary.String()) == "" {
		return ErrEmptyResponse
	}

	d.history = []Message{{
		Role:    "user",
		Content: "[Conversation compacted. Summary of everything before this point]\n" + summary.String(),
	}}
	d.logger.Info("history compacted",
		"tokens_before", before,
		"tokens_after", EstimateTokens(d.history))
	return nil
}
