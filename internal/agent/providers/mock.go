package providers

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/haasonsaas/tandem/internal/agent"
)

// MockProvider is a deterministic offline provider used by debug mode and
// tests. It never touches the network: each Complete call picks one message
// from a weighted script set and streams it in small chunks with short gaps
// to approximate real token delivery.
type MockProvider struct {
	mu       sync.Mutex
	role     string
	rng      *rand.Rand
	chunkGap time.Duration
}

// MockConfig configures a MockProvider.
type MockConfig struct {
	// Role selects the script set: "instructor" or "worker".
	Role string

	// Seed makes the weighted choice reproducible. Zero seeds from the
	// clock.
	Seed int64

	// ChunkGap overrides the inter-chunk delay. Zero picks 20-30ms.
	ChunkGap time.Duration
}

type mockScript struct {
	weight int
	text   string
}

// Instructor scripts: mostly directives, occasionally DONE, and a
// significant minority of malformed output to exercise correction retries.
var instructorScripts = []mockScript{
	{weight: 4, text: "Looking at the task, the next step is clear.\n\nTell worker: Read the relevant files and report their current structure."},
	{weight: 3, text: "The previous step succeeded.\n\nTell worker: Apply the change we discussed and run the existing checks."},
	{weight: 2, text: "Let's try the faster model for this mechanical step.\n\nTell worker (use haiku): List the files in the working directory."},
	{weight: 3, text: "I think we should restructure this before going further. The current approach has problems."},
	{weight: 2, text: "Hmm, the worker output is interesting but I need to think about it more."},
	{weight: 1, text: "The task is complete and the result verified.\n\n**DONE**"},
}

// Worker scripts: implementation reports only. Never a directive, never a
// completion marker.
var workerScripts = []mockScript{
	{weight: 3, text: "Done. I read the files and the structure is as follows: a main entry point, a config loader, and two helper modules."},
	{weight: 3, text: "I applied the change to the target file. The edit replaced the old block cleanly and the surrounding code is unchanged."},
	{weight: 2, text: "I ran the requested command. It exited 0 with the expected output."},
	{weight: 2, text: "I could not find the file mentioned in the instruction. Listing the directory shows only three entries; please confirm the path."},
}

// NewMockProvider creates a mock provider for the given role.
func NewMockProvider(config MockConfig) *MockProvider {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	role := config.Role
	if role == "" {
		role = "worker"
	}
	return &MockProvider{
		role:     role,
		rng:      rand.New(rand.NewSource(seed)),
		chunkGap: config.ChunkGap,
	}
}

// Name returns the provider tag.
func (p *MockProvider) Name() string { return "mock" }

// Complete streams one scripted message, honoring ctx cancellation between
// chunks.
func (p *MockProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	text := p.pick()
	chunks := make(chan *agent.CompletionChunk)

	go func() {
		defer close(chunks)

		for _, piece := range splitChunks(text, 12) {
			select {
			case <-ctx.Done():
				chunks <- &agent.CompletionChunk{Error: agent.NewProviderError("mock", req.Model, ctx.Err())}
				return
			case <-time.After(p.gap()):
			}
			chunks <- &agent.CompletionChunk{Text: piece}
		}
		chunks <- &agent.CompletionChunk{Done: true, InputTokens: len(req.Messages) * 20, OutputTokens: len(text) / 4}
	}()

	return chunks, nil
}

func (p *MockProvider) pick() string {
	scripts := workerScripts
	if p.role == "instructor" {
		scripts = instructorScripts
	}

	total := 0
	for _, s := range scripts {
		total += s.weight
	}

	p.mu.Lock()
	n := p.rng.Intn(total)
	p.mu.Unlock()

	for _, s := range scripts {
		n -= s.weight
		if n < 0 {
			return s.text
		}
	}
	return scripts[0].text
}

func (p *MockProvider) gap() time.Duration {
	if p.chunkGap > 0 {
		return p.chunkGap
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(20+p.rng.Intn(11)) * time.Millisecond
}

func splitChunks(text string, size int) []string {
	if size <= 0 {
		size = 12
	}
	var out []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
