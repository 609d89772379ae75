// Package display is the write-only sink for streamed agent output and
// orchestrator status lines.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Sink receives streamed chunks and status lines. Implementations carry no
// semantics; the orchestrator decides what to show.
type Sink interface {
	// Text streams a chunk of agent output.
	Text(agent, chunk string)
	// Thinking streams a chunk of model thinking.
	Thinking(agent, chunk string)
	// Status prints a one-line orchestrator status message.
	Status(format string, args ...any)
	// Banner prints a section header when an agent's turn starts.
	Banner(agent string)
}

// Console writes to a terminal-style writer. Chunks print as they arrive;
// status lines get their own line.
type Console struct {
	mu        sync.Mutex
	out       io.Writer
	midStream bool
}

// NewConsole creates a console sink writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Text(agent, chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, chunk)
	c.midStream = !strings.HasSuffix(chunk, "\n")
}

func (c *Console) Thinking(agent, chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Thinking is rendered dim to keep it visually separate from output.
	fmt.Fprintf(c.out, "\x1b[2m%s\x1b[0m", chunk)
	c.midStream = !strings.HasSuffix(chunk, "\n")
}

func (c *Console) Status(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.midStream {
		fmt.Fprintln(c.out)
		c.midStream = false
	}
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) Banner(agent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.midStream {
		fmt.Fprintln(c.out)
		c.midStream = false
	}
	fmt.Fprintf(c.out, "\n=== %s ===\n", agent)
}

// Discard drops everything. Used in tests.
type Discard struct{}

func (Discard) Text(string, string)     {}
func (Discard) Thinking(string, string) {}
func (Discard) Status(string, ...any)   {}
func (Discard) Banner(string)           {}
