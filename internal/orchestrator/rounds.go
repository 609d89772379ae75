package orchestrator

import (
	"regexp"
	"strconv"
	"strings"
)

// UnboundedRounds marks a session with no round budget.
const UnboundedRounds = -1

// roundTokenRe matches one leading round-control token, [r+n] or [r=n],
// case-insensitive, with optional surrounding whitespace.
var roundTokenRe = regexp.MustCompile(`^\s*\[[rR]([+=])(\d+)\]`)

// RoundChange reports one applied control token for display.
type RoundChange struct {
	Op        byte // '+' or '='
	N         int
	Remaining int
}

// ParseRoundControls consumes leading [r+n]/[r=n] tokens from a raw user
// line, applies them to remaining, and returns the cleaned instruction.
// Tokens past the first non-token text are literal and stay in place.
func ParseRoundControls(line string, remaining int) (cleaned string, updated int, changes []RoundChange) {
	updated = remaining
	rest := line
	for {
		m := roundTokenRe.FindStringSubmatch(rest)
		if m == nil {
			break
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			break
		}
		op := m[1][0]
		switch op {
		case '+':
			// Adding to an unbounded budget leaves it unbounded; use
			// [r=n] to impose a cap.
			if updated != UnboundedRounds {
				updated += n
			}
		case '=':
			updated = n
		}
		changes = append(changes, RoundChange{Op: op, N: n, Remaining: updated})
		rest = rest[len(m[0]):]
	}
	return strings.TrimSpace(rest), updated, changes
}
