// Package session persists instructor conversations as append-only JSONL
// journals, one file per session, replayable to reconstruct state.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/tandem/internal/agent"
)

const (
	recordInstructorMessage = "instructor-message"
	recordSessionMetadata   = "session-metadata"

	currentFile = "current.json"
)

// Metadata is the scalar session state saved alongside messages. The last
// metadata record in the journal wins on replay.
type Metadata struct {
	SessionID       string         `json:"session_id"`
	CreatedAt       time.Time      `json:"created_at"`
	LastUpdatedAt   time.Time      `json:"last_updated_at"`
	CurrentRound    int            `json:"current_round"`
	RemainingRounds int            `json:"remaining_rounds"` // -1 means unbounded
	WorkDir         string         `json:"work_dir"`
	Config          map[string]any `json:"config,omitempty"`
}

// State is a replayed session: metadata plus the instructor history.
type State struct {
	Metadata           Metadata
	InstructorMessages []agent.Message
}

type record struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Message   *agent.Message `json:"message,omitempty"`

	// Metadata fields, inline on session-metadata records.
	SessionID       string         `json:"session_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at,omitzero"`
	LastUpdatedAt   time.Time      `json:"last_updated_at,omitzero"`
	CurrentRound    int            `json:"current_round"`
	RemainingRounds int            `json:"remaining_rounds"`
	WorkDir         string         `json:"work_dir,omitempty"`
	Config          map[string]any `json:"config,omitempty"`
}

type currentPointer struct {
	SessionID string `json:"session_id"`
}

// Store appends records for one session. Appends are incremental: the
// store tracks how many messages have been written and only appends new
// ones.
type Store struct {
	dir       string
	sessionID string
	written   int // instructor messages already on disk
}

// Open creates a store for a new session under dir (typically
// ~/.tandem/sessions). The directory is created with owner-only
// permissions.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &Store{dir: dir, sessionID: uuid.NewString()}, nil
}

// OpenExisting creates a store that continues an existing session journal.
// written is the number of instructor messages already persisted, as
// reported by Replay.
func OpenExisting(dir, sessionID string, written int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &Store{dir: dir, sessionID: sessionID, written: written}, nil
}

// SessionID returns the id of the session this store appends to.
func (s *Store) SessionID() string { return s.sessionID }

func (s *Store) path() string {
	return filepath.Join(s.dir, "session-"+s.sessionID+".jsonl")
}

// Save appends any instructor messages not yet on disk, then a metadata
// record, then updates current.json.
func (s *Store) Save(messages []agent.Message, meta Metadata) error {
	f, err := os.OpenFile(s.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open session journal: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	now := time.Now().UTC()
	for i := s.written; i < len(messages); i++ {
		msg := messages[i]
		if err := enc.Encode(record{
			Type:      recordInstructorMessage,
			Timestamp: now,
			Message:   &msg,
		}); err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}
	s.written = len(messages)

	meta.SessionID = s.sessionID
	meta.LastUpdatedAt = now
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	if err := enc.Encode(record{
		Type:            recordSessionMetadata,
		Timestamp:       now,
		SessionID:       meta.SessionID,
		CreatedAt:       meta.CreatedAt,
		LastUpdatedAt:   meta.LastUpdatedAt,
		CurrentRound:    meta.CurrentRound,
		RemainingRounds: meta.RemainingRounds,
		WorkDir:         meta.WorkDir,
		Config:          meta.Config,
	}); err != nil {
		return fmt.Errorf("append metadata: %w", err)
	}

	return s.writeCurrent()
}

// ResetJournal truncates the journal so the next Save writes the full
// history. Used after compaction replaces the instructor history.
func (s *Store) ResetJournal() error {
	if err := os.WriteFile(s.path(), nil, 0o600); err != nil {
		return fmt.Errorf("truncate session journal: %w", err)
	}
	s.written = 0
	return nil
}

func (s *Store) writeCurrent() error {
	data, err := json.Marshal(currentPointer{SessionID: s.sessionID})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, currentFile), data, 0o600)
}

// Replay reads a session journal and reconstructs its state. Messages
// accumulate in order; the last metadata record wins.
func Replay(dir, sessionID string) (*State, error) {
	path := filepath.Join(dir, "session-"+sessionID+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session journal: %w", err)
	}
	defer f.Close()

	state := &State{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("parse journal line %d: %w", line, err)
		}
		switch rec.Type {
		case recordInstructorMessage:
			if rec.Message != nil {
				state.InstructorMessages = append(state.InstructorMessages, *rec.Message)
			}
		case recordSessionMetadata:
			state.Metadata = Metadata{
				SessionID:       rec.SessionID,
				CreatedAt:       rec.CreatedAt,
				LastUpdatedAt:   rec.LastUpdatedAt,
				CurrentRound:    rec.CurrentRound,
				RemainingRounds: rec.RemainingRounds,
				WorkDir:         rec.WorkDir,
				Config:          rec.Config,
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session journal: %w", err)
	}
	if state.Metadata.SessionID == "" {
		state.Metadata.SessionID = sessionID
	}
	return state, nil
}

// Current returns the id of the most recently saved session in dir, or ""
// if none.
func Current(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, currentFile))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var ptr currentPointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		return "", fmt.Errorf("parse %s: %w", currentFile, err)
	}
	return ptr.SessionID, nil
}

// Summary describes a stored session for listing and lookup.
type Summary struct {
	SessionID     string
	WorkDir       string
	LastUpdatedAt time.Time
}

// List returns summaries of all sessions in dir, newest first.
func List(dir string) ([]Summary, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Summary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "session-") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, "session-"), ".jsonl")
		state, err := Replay(dir, id)
		if err != nil {
			continue // unreadable journals are skipped in listings
		}
		out = append(out, Summary{
			SessionID:     id,
			WorkDir:       state.Metadata.WorkDir,
			LastUpdatedAt: state.Metadata.LastUpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUpdatedAt.After(out[j].LastUpdatedAt)
	})
	return out, nil
}

// LatestForWorkDir returns the most recent session whose work_dir matches,
// or "" if none.
func LatestForWorkDir(dir, workDir string) (string, error) {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return "", err
	}
	sessions, err := List(dir)
	if err != nil {
		return "", err
	}
	for _, s := range sessions {
		stored, err := filepath.Abs(s.WorkDir)
		if err != nil {
			continue
		}
		if stored == abs {
			return s.SessionID, nil
		}
	}
	return "", nil
}
