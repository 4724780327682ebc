package backfill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StateFile is the name of the state file kept next to the notes.
const StateFile = "backfill-state.json"

// State tracks progress for resumable backfill runs. Files are keyed by
// content fingerprint so a recording copied under another name is not
// processed twice.
type State struct {
	StartedAt       time.Time         `json:"started_at"`
	LastProcessedAt time.Time         `json:"last_processed_at"`
	Processed       map[string]string `json:"processed"`
	NotesCreated    int               `json:"notes_created"`
	Failures        int               `json:"failures"`
	Errors          []string          `json:"errors"`

	path string
}

// LoadState loads the state at path, or starts a new one when the file does
// not exist.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{
				StartedAt: time.Now().UTC(),
				Processed: make(map[string]string),
				path:      path,
			}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if s.Processed == nil {
		s.Processed = make(map[string]string)
	}
	s.path = path
	return &s, nil
}

// Save persists the state to disk.
func (s *State) Save() error {
	s.LastProcessedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// IsProcessed reports whether a file with this fingerprint was already
// processed.
func (s *State) IsProcessed(fingerprint string) bool {
	_, ok := s.Processed[fingerprint]
	return ok
}

func (s *State) MarkProcessed(fingerprint, path string) {
	s.Processed[fingerprint] = path
}

func (s *State) AddError(msg string) {
	s.Failures++
	s.Errors = append(s.Errors, msg)
}
