// Package orchestrator runs the outer turn-taking loop between the
// instructor and worker agents: user input, instructor planning, directive
// parsing with correction retries, worker execution under an inactivity
// watchdog, and instructor review, with the instructor side persisted to a
// session journal.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/tandem/internal/agent"
	"github.com/haasonsaas/tandem/internal/display"
	"github.com/haasonsaas/tandem/internal/session"
)

// MaxCorrectionAttempts bounds how many times a malformed instructor reply
// is retried with the reminder prompt before control returns to the user.
const MaxCorrectionAttempts = 3

// correctionReminder is sent to the instructor verbatim when its reply
// contained neither a worker instruction nor a completion marker.
const correctionReminder = `Please continue. Remember to use "Tell worker: [instruction]" to direct the worker, or "DONE" on a line of its own when the task is complete.`

// Config wires an Orchestrator.
type Config struct {
	Instructor *agent.Driver
	Worker     *agent.Driver

	// InstructorModel drives every instructor turn.
	InstructorModel string
	// WorkerModel is the default worker model; a directive's model
	// override takes precedence for that one turn.
	WorkerModel string

	Display display.Sink
	// Store persists instructor messages and metadata. Optional.
	Store *session.Store

	// Input is the user line source. Defaults to os.Stdin.
	Input io.Reader

	// WorkDir is recorded in session metadata.
	WorkDir string
	// ConfigSnapshot is recorded in session metadata.
	ConfigSnapshot map[string]any

	// MaxRounds is the initial round budget. UnboundedRounds (the zero
	// value is treated the same) means no budget.
	MaxRounds int

	// Compaction controls proactive instructor-history compaction. Zero
	// values pick the 200k-context / 80% defaults.
	Compaction agent.CompactionConfig

	// InactivityWindow overrides the 60s worker watchdog. Tests shrink it.
	InactivityWindow time.Duration

	Logger *slog.Logger
}

// Orchestrator owns the two drivers, the session log, and the runtime
// round state. It is single-threaded at the level of turns.
type Orchestrator struct {
	instructor      *agent.Driver
	worker          *agent.Driver
	instructorModel string
	workerModel     string

	display display.Sink
	store   *session.Store
	input   lineReader
	tty     *ttyInput
	logger  *slog.Logger

	workDir        string
	configSnapshot map[string]any
	window         time.Duration
	compaction     agent.CompactionConfig

	currentRound    int
	remainingRounds int
	createdAt       time.Time

	paused      bool
	interrupted bool
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := cfg.Display
	if sink == nil {
		sink = display.Discard{}
	}
	reader, tty := sessionInput(cfg.Input)
	rounds := cfg.MaxRounds
	if rounds <= 0 {
		rounds = UnboundedRounds
	}
	return &Orchestrator{
		instructor:      cfg.Instructor,
		worker:          cfg.Worker,
		instructorModel: cfg.InstructorModel,
		workerModel:     cfg.WorkerModel,
		display:         sink,
		store:           cfg.Store,
		input:           reader,
		tty:             tty,
		logger:          logger,
		workDir:         cfg.WorkDir,
		configSnapshot:  cfg.ConfigSnapshot,
		window:          cfg.InactivityWindow,
		compaction:      cfg.Compaction,
		remainingRounds: rounds,
		createdAt:       time.Now().UTC(),
	}
}

// Restore seeds the orchestrator from a replayed session: instructor
// history plus round counters.
func (o *Orchestrator) Restore(state *session.State) {
	o.instructor.RestoreHistory(state.InstructorMessages)
	o.currentRound = state.Metadata.CurrentRound
	o.remainingRounds = state.Metadata.RemainingRounds
	if !state.Metadata.CreatedAt.IsZero() {
		o.createdAt = state.Metadata.CreatedAt
	}
	o.display.Status("Resumed session %s (%d instructor messages). Worker context is not persisted; the instructor will re-prime the worker as needed.",
		state.Metadata.SessionID, len(state.InstructorMessages))
}

// CurrentRound returns the round counter, for tests and status display.
func (o *Orchestrator) CurrentRound() int { return o.currentRound }

// RemainingRounds returns the round budget, for tests and status display.
func (o *Orchestrator) RemainingRounds() int { return o.remainingRounds }

// Run drives the session until the user exits or a fatal error occurs. An
// initial instruction, when non-empty, is handled as though the user typed
// it.
func (o *Orchestrator) Run(ctx context.Context, initialInstruction string) error {
	if strings.TrimSpace(initialInstruction) != "" {
		if err := o.handleLine(ctx, initialInstruction); err != nil {
			return err
		}
	}

	for {
		// The pause flag is cleared on entry to the next interruptible
		// wait; clearing it only in the ESC handler would make ESC work
		// exactly once.
		o.paused = false
		o.interrupted = false

		line, ok := o.readLine()
		if !ok {
			o.display.Status("Session ended.")
			return nil
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "exit" || trimmed == "quit" {
			o.display.Status("Session ended.")
			return nil
		}
		if err := o.handleLine(ctx, line); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
	}
}

func (o *Orchestrator) readLine() (string, bool) {
	o.display.Status("> Enter an instruction (exit/quit to stop, [r+n]/[r=n] to adjust rounds):")
	return o.input.ReadLine()
}

// handleLine applies round controls, then runs one full instructor cycle
// for the cleaned instruction.
func (o *Orchestrator) handleLine(ctx context.Context, line string) error {
	cleaned, updated, changes := ParseRoundControls(line, o.remainingRounds)
	o.remainingRounds = updated
	for _, ch := range changes {
		if ch.Op == '+' {
			o.display.Status("Added %d rounds. Remaining: %s", ch.N, o.roundsLabel(ch.Remaining))
		} else {
			o.display.Status("Rounds set to %d. Remaining: %s", ch.N, o.roundsLabel(ch.Remaining))
		}
	}
	if cleaned == "" {
		if len(changes) == 0 {
			o.logger.Warn("empty instruction ignored")
			o.display.Status("Nothing to do: the instruction was empty.")
		}
		return nil
	}

	o.currentRound++
	return o.runCycle(ctx, cleaned)
}

func (o *Orchestrator) roundsLabel(n int) string {
	if n == UnboundedRounds {
		return "unbounded"
	}
	return fmt.Sprintf("%d", n)
}

// runCycle is the instructor → directive → worker → review loop for one
// user request. It returns nil when control should go back to the user and
// an error only on fatal failures.
func (o *Orchestrator) runCycle(ctx context.Context, input string) error {
	corrections := 0
	for {
		text, err := o.instructorTurn(ctx, input)
		if err != nil {
			return o.handleInstructorError(err)
		}
		o.persist()

		directive := ParseDirective(text)
		switch directive.Kind {
		case DirectiveDone:
			o.display.Status("Task complete.")
			return nil

		case DirectiveMalformed:
			if corrections >= MaxCorrectionAttempts {
				o.display.Status("Instructor did not produce a usable directive after %d corrections; returning control to you.", MaxCorrectionAttempts)
				return nil
			}
			corrections++
			o.currentRound++
			o.logger.Warn("malformed instructor directive, retrying", "attempt", corrections)
			input = correctionReminder
			continue

		case DirectiveTellWorker:
			corrections = 0
			output, proceed, err := o.workerTurn(ctx, directive)
			if err != nil {
				return err
			}
			if !proceed {
				return nil
			}
			o.currentRound++
			input = "Worker says: " + output
			continue
		}
	}
}

// instructorTurn runs one instructor driver call with ESC interruption.
// A context-length failure compacts the instructor history and retries
// once.
func (o *Orchestrator) instructorTurn(ctx context.Context, input string) (string, error) {
	o.display.Banner("Instructor")
	text, err := o.callInstructor(ctx, input)
	if err != nil && agent.Reason(err) == agent.FailoverContextLength {
		o.display.Status("Instructor context is too long; compacting history...")
		if cerr := o.instructor.Compact(ctx, o.instructorModel); cerr != nil {
			return "", fmt.Errorf("instructor history compaction failed: %w", cerr)
		}
		if o.store != nil {
			if jerr := o.store.ResetJournal(); jerr != nil {
				o.logger.Warn("journal reset after compaction failed", "error", jerr)
			}
		}
		o.persist()
		text, err = o.callInstructor(ctx, input)
	}
	if err == nil {
		o.maybeCompact(ctx)
	}
	return text, err
}

// maybeCompact compacts the instructor history once the token estimate
// crosses the threshold, keeping the reactive context-length path in
// instructorTurn as a fallback. Runs after each successful instructor
// turn, before the turn is persisted, so the journal is rebuilt from the
// compacted history.
func (o *Orchestrator) maybeCompact(ctx context.Context) {
	if !o.instructor.NeedsCompaction(o.compaction) {
		return
	}
	o.display.Status("Instructor history is near the context limit; compacting...")
	if err := o.instructor.Compact(ctx, o.instructorModel); err != nil {
		o.logger.Warn("proactive compaction failed", "error", err)
		return
	}
	if o.store != nil {
		if err := o.store.ResetJournal(); err != nil {
			o.logger.Warn("journal reset after compaction failed", "error", err)
		}
	}
}

func (o *Orchestrator) callInstructor(ctx context.Context, input string) (string, error) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	esc := o.tty.Listen(func() {
		o.interrupted = true
		o.paused = true
		cancel()
	})
	defer esc.Stop()

	return o.instructor.Process(turnCtx, input, o.instructorModel,
		func(chunk string) { o.display.Text("instructor", chunk) },
		func(chunk string) { o.display.Thinking("instructor", chunk) },
	)
}

// handleInstructorError applies the error policy for instructor turns.
// It returns a non-nil error only for failures the session cannot survive;
// everything else is reported and control returns to the user.
func (o *Orchestrator) handleInstructorError(err error) error {
	switch agent.Reason(err) {
	case agent.FailoverCancelled:
		o.display.Status("Interrupted.")
		return nil
	case agent.FailoverRateLimit:
		o.display.Status("[ERROR: Rate limit exceeded. Wait a moment, then re-issue the instruction.]")
		return nil
	case agent.FailoverAuth:
		o.display.Status("[ERROR: Authentication failed. Check your API key.]")
		return nil
	case agent.FailoverContextLength:
		return fmt.Errorf("instructor context still too long after compaction: %w", err)
	case agent.FailoverInvalidRequest:
		o.logger.Error("provider rejected the request", "error", err)
		o.display.Status("[ERROR: The provider rejected the conversation history: %v]", err)
		return nil
	default:
		if errors.Is(err, agent.ErrEmptyResponse) {
			o.display.Status("Instructor produced no content; returning control to you.")
			return nil
		}
		if errors.Is(err, agent.ErrEmptyInput) {
			return nil
		}
		return fmt.Errorf("instructor turn failed: %w", err)
	}
}

// workerTurn runs one worker driver call under the inactivity watchdog.
// proceed reports whether the loop should continue to a review turn with
// output; it is false when control should return to the user.
func (o *Orchestrator) workerTurn(ctx context.Context, directive Directive) (output string, proceed bool, err error) {
	if o.remainingRounds == 0 {
		o.display.Status("No rounds remaining. Use [r+n] to add rounds or [r=n] to set the budget.")
		return "", false, nil
	}
	if o.remainingRounds != UnboundedRounds {
		o.remainingRounds--
	}
	o.currentRound++

	model := o.workerModel
	if directive.ModelOverride != "" {
		model = directive.ModelOverride
	}
	o.display.Banner("Worker")
	o.display.Status("Instruction: %s", directive.Instruction)

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	dog := newWatchdog(o.window)
	go dog.Run(cancel)
	defer dog.Stop()

	esc := o.tty.Listen(func() {
		o.interrupted = true
		o.paused = true
		cancel()
	})
	defer esc.Stop()

	var streamed strings.Builder
	result, err := o.worker.Process(turnCtx, directive.Instruction, model,
		func(chunk string) {
			dog.Touch()
			streamed.WriteString(chunk)
			o.display.Text("worker", chunk)
		},
		func(chunk string) { o.display.Thinking("worker", chunk) },
	)
	dog.Stop()
	esc.Stop()

	if err == nil {
		return result, true, nil
	}

	if agent.Reason(err) == agent.FailoverCancelled {
		if dog.Tripped() {
			secs := int(o.effectiveWindow().Seconds())
			synthetic := fmt.Sprintf("[No response received - TIMEOUT after %ds]", secs)
			if streamed.Len() > 0 {
				synthetic = fmt.Sprintf("%s [TIMEOUT after %ds]", streamed.String(), secs)
			}
			o.display.Status("Worker went silent; handing the partial output to the instructor.")
			return synthetic, true, nil
		}
		// User ESC or parent cancellation.
		o.display.Status("Worker turn interrupted.")
		return "", false, nil
	}

	if errors.Is(err, agent.ErrEmptyResponse) {
		// The turn produced nothing; there is no output worth reviewing.
		o.display.Status("Worker produced no content; returning control to you.")
		return "", false, nil
	}

	switch agent.Reason(err) {
	case agent.FailoverRateLimit:
		o.display.Status("[ERROR: Rate limit exceeded. Wait a moment, then re-issue the instruction.]")
		return "", false, nil
	case agent.FailoverAuth:
		o.display.Status("[ERROR: Authentication failed. Check your API key.]")
		return "", false, nil
	default:
		// Surface the failure to the instructor so it can decide how to
		// proceed (retry, rephrase, or give up).
		o.logger.Warn("worker turn failed, surfacing to instructor", "error", err)
		return fmt.Sprintf("[ERROR: Worker call failed: %v]", err), true, nil
	}
}

func (o *Orchestrator) effectiveWindow() time.Duration {
	if o.window > 0 {
		return o.window
	}
	return defaultInactivityWindow
}

// persist appends new instructor messages and current metadata to the
// session journal.
func (o *Orchestrator) persist() {
	if o.store == nil {
		return
	}
	err := o.store.Save(o.instructor.History(), session.Metadata{
		CreatedAt:       o.createdAt,
		CurrentRound:    o.currentRound,
		RemainingRounds: o.remainingRounds,
		WorkDir:         o.workDir,
		Config:          o.configSnapshot,
	})
	if err != nil {
		o.logger.Warn("session save failed", "error", err)
	}
}
