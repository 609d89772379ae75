package orchestrator

import (
	"regexp"
	"strings"
)

// DirectiveKind tags the parsed meaning of the instructor's final text.
type DirectiveKind int

const (
	// DirectiveMalformed means neither a worker instruction nor a
	// completion marker was found.
	DirectiveMalformed DirectiveKind = iota
	// DirectiveTellWorker carries an instruction for the worker.
	DirectiveTellWorker
	// DirectiveDone means the instructor has finished the user request.
	DirectiveDone
)

// Directive is the parsed instructor output.
type Directive struct {
	Kind          DirectiveKind
	Instruction   string
	ModelOverride string
}

// tellWorkerRe matches "Tell worker:" (case-insensitive) with an optional
// "(use model)" or "(model: model)" clause before the colon.
var tellWorkerRe = regexp.MustCompile(`(?is)tell\s+worker\s*(?:\(\s*(?:use\s+|model\s*:\s*)([^)]+?)\s*\))?\s*:`)

// doneRe matches a standalone uppercase DONE, optionally wrapped in
// markdown emphasis, optionally followed by punctuation and/or a closing
// code fence, anchored at end of input.
var doneRe = regexp.MustCompile("(?:^|\n)\\s*(?:\\*\\*DONE\\*\\*|__DONE__|_DONE_|DONE)[ \t]*[.!]?[ \t]*(?:\\n```)?\\s*$")

// ParseDirective classifies the instructor's final text. Parsing is total:
// every input yields exactly one of done, tell_worker, or malformed.
func ParseDirective(text string) Directive {
	if isDone(text) {
		return Directive{Kind: DirectiveDone}
	}

	if m := tellWorkerRe.FindStringSubmatchIndex(text); m != nil {
		instruction := strings.TrimSpace(text[m[1]:])
		if instruction != "" {
			var override string
			if m[2] >= 0 {
				override = strings.TrimSpace(text[m[2]:m[3]])
			}
			return Directive{
				Kind:          DirectiveTellWorker,
				Instruction:   instruction,
				ModelOverride: override,
			}
		}
	}

	return Directive{Kind: DirectiveMalformed}
}

// isDone checks the final three lines for a standalone DONE token. The
// letters are case-sensitive: "done" and "Done" do not complete a task.
func isDone(text string) bool {
	trimmed := strings.TrimRight(text, " \t\n")
	lines := strings.Split(trimmed, "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	tail := strings.Join(lines, "\n")
	return doneRe.MatchString(tail)
}
