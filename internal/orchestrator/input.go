package orchestrator

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// lineReader yields user input lines between turns.
type lineReader interface {
	// ReadLine returns the next input line, false at end of input.
	ReadLine() (string, bool)
}

// sessionInput picks the input path for a session: a ttyInput when the
// process is attached to a terminal (so turns can watch for ESC), a plain
// line scanner otherwise (piped stdin, tests). The ttyInput is nil in the
// scanner case; turn listeners treat that as "nothing to do".
func sessionInput(in io.Reader) (lineReader, *ttyInput) {
	if in == nil {
		if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
			t := newTTYInput(fd, os.Stdin)
			return t, t
		}
		in = os.Stdin
	}
	return scanLines{s: bufio.NewScanner(in)}, nil
}

// scanLines reads lines from a plain reader.
type scanLines struct{ s *bufio.Scanner }

func (r scanLines) ReadLine() (string, bool) {
	if !r.s.Scan() {
		return "", false
	}
	return r.s.Text(), true
}

// ttyInput is the single owner of terminal input for a session. One pump
// goroutine reads stdin for the session's lifetime and routes every byte
// either to the active turn's ESC handler or to the between-turn line
// buffer. Turn listeners never read stdin themselves, so ending a turn
// cannot strand a blocked read that would swallow the first byte of the
// next typed line.
type ttyInput struct {
	fd     int
	source io.Reader

	mu    sync.Mutex
	onEsc func()

	bytes chan byte
}

// newTTYInput starts the pump. fd is used for raw-mode switching during
// turns; a negative fd skips terminal control (tests drive a plain reader).
func newTTYInput(fd int, source io.Reader) *ttyInput {
	t := &ttyInput{fd: fd, source: source, bytes: make(chan byte, 64)}
	go t.pump()
	return t
}

func (t *ttyInput) pump() {
	buf := make([]byte, 1)
	for {
		n, err := t.source.Read(buf)
		if n == 1 {
			t.route(buf[0])
		}
		if err != nil {
			close(t.bytes)
			return
		}
	}
}

// route delivers one byte. While a turn is active only ESC matters; other
// keys pressed mid-turn are dropped. Between turns every byte goes to the
// line buffer.
func (t *ttyInput) route(b byte) {
	t.mu.Lock()
	onEsc := t.onEsc
	t.mu.Unlock()
	if onEsc != nil {
		if b == 0x1b {
			onEsc()
		}
		return
	}
	t.bytes <- b
}

// ReadLine assembles one line from the byte stream. The terminal is in
// cooked mode between turns, so bytes arrive when the user presses enter.
func (t *ttyInput) ReadLine() (string, bool) {
	var sb strings.Builder
	for b := range t.bytes {
		if b == '\n' {
			return strings.TrimSuffix(sb.String(), "\r"), true
		}
		sb.WriteByte(b)
	}
	if sb.Len() > 0 {
		return sb.String(), true
	}
	return "", false
}

// escListener is one turn's claim on the ESC key.
type escListener struct {
	input   *ttyInput
	restore func()
	once    sync.Once
}

// Listen switches the terminal to raw mode (so ESC arrives without a
// newline) and installs onEsc as the turn's ESC handler. Nil-safe: a nil
// ttyInput returns a nil listener whose Stop is a no-op.
func (t *ttyInput) Listen(onEsc func()) *escListener {
	if t == nil {
		return nil
	}
	l := &escListener{input: t}
	if t.fd >= 0 {
		if state, err := term.MakeRaw(t.fd); err == nil {
			fd := t.fd
			l.restore = func() { _ = term.Restore(fd, state) }
		}
	}
	t.mu.Lock()
	t.onEsc = onEsc
	t.mu.Unlock()
	return l
}

// Stop uninstalls the handler and restores the terminal. After Stop
// returns, input typed at the prompt flows to ReadLine intact.
func (l *escListener) Stop() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.input.mu.Lock()
		l.input.onEsc = nil
		l.input.mu.Unlock()
		if l.restore != nil {
			l.restore()
		}
	})
}
