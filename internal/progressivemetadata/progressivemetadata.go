// Package progressivemetadata persists the indexing state machine to disk
// so an interrupted run (crash, kill, deliberate cancellation) can resume
// from where it left off instead of restarting from scratch.
package progressivemetadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Status is one state in the progressive indexing state machine.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// GitState is the git-specific slice of State, nested so the persisted JSON
// groups ancestry under "git" rather than flattening it alongside the
// branch/commit fields that apply to non-git projects too.
type GitState struct {
	Ancestry []string `json:"ancestry,omitempty"`
}

// State is the full persisted record of one indexing run.
type State struct {
	Status       Status    `json:"status"`
	Mode         string    `json:"mode"` // full, resume, incremental_timestamp, incremental_git, reconcile
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Branch       string    `json:"branch"`
	Commit       string    `json:"commit"`
	FilesToIndex []string  `json:"files_to_index"`
	CurrentIndex int       `json:"current_index"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Error        string    `json:"error,omitempty"`

	// CompletedFiles is the prefix of FilesToIndex already committed,
	// mirrored out of CurrentIndex for callers that want the paths rather
	// than an offset into a list they may not have kept around.
	CompletedFiles []string `json:"completed_files,omitempty"`
	// ChunksIndexed accumulates across resumes: a run resumed partway
	// through keeps counting from where the interrupted run left off.
	ChunksIndexed int `json:"chunks_indexed"`
	// LastSuccessfulMtime is the newest mtime among CompletedFiles, the
	// basis for the next incremental-timestamp run's cutoff.
	LastSuccessfulMtime time.Time `json:"last_successful_mtime"`
	Git                 GitState  `json:"git"`
}

const fileName = "progressive.json"

// Path returns the metadata file's location under a project's state dir.
func Path(stateDir string) string {
	return filepath.Join(stateDir, fileName)
}

// Load reads the persisted state, returning a fresh idle State (not an
// error) if no metadata file exists yet.
func Load(stateDir string) (*State, error) {
	data, err := os.ReadFile(Path(stateDir))
	if err != nil {
		if os.IsNotExist(err) {
			return &State{Status: StatusIdle}, nil
		}
		return nil, fmt.Errorf("read progressive metadata: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse progressive metadata: %w", err)
	}
	return &s, nil
}

// Save writes state atomically: it's written to a temp file in the same
// directory then renamed over the real path, so a crash mid-write never
// leaves a truncated or corrupt metadata file behind.
func Save(stateDir string, s *State) error {
	s.UpdatedAt = time.Now()

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progressive metadata: %w", err)
	}

	path := Path(stateDir)
	tmp, err := os.CreateTemp(stateDir, fileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp metadata file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp metadata file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename metadata file into place: %w", err)
	}
	return nil
}

// CanResumeInterrupted reports whether this state describes a run that was
// interrupted partway through (not finished, not already fully consumed)
// using the same provider and model as the caller is about to run with. A
// provider or model change invalidates resume since vectors embedded with
// a different model are incompatible with the target collection.
func (s *State) CanResumeInterrupted(provider, model string) bool {
	return s.Status == StatusInProgress &&
		s.CurrentIndex < len(s.FilesToIndex) &&
		s.Provider == provider &&
		s.Model == model
}

// Start resets state to a fresh in-progress run over files.
func (s *State) Start(mode, provider, model, branch, commit string, files []string) {
	*s = State{
		Status:       StatusInProgress,
		Mode:         mode,
		Provider:     provider,
		Model:        model,
		Branch:       branch,
		Commit:       commit,
		FilesToIndex: files,
		CurrentIndex: 0,
		StartedAt:    time.Now(),
	}
}

// Advance records that the file at index CurrentIndex has been committed,
// moving the cursor forward by one.
func (s *State) Advance() {
	s.CurrentIndex++
}

// Complete marks the run as finished successfully.
func (s *State) Complete() { s.Status = StatusCompleted }

// Cancel marks the run as stopped by request, distinct from a failure so a
// future run knows whether to treat the partial index as resumable.
func (s *State) Cancel() { s.Status = StatusCancelled }

// Fail marks the run as stopped by an unrecoverable error.
func (s *State) Fail(err error) {
	s.Status = StatusFailed
	if err != nil {
		s.Error = err.Error()
	}
}
