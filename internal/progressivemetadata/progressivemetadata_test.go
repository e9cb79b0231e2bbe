package progressivemetadata

import (
	"errors"
	"testing"
)

func TestLoad_NoFileReturnsIdleState(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Status != StatusIdle {
		t.Errorf("expected StatusIdle, got %s", s.Status)
	}
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := &State{}
	s.Start("full", "ollama", "bge-m3", "main", "deadbeef", []string{"a.go", "b.go", "c.go"})
	s.Advance()

	if err := Save(dir, s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Status != StatusInProgress || loaded.CurrentIndex != 1 || len(loaded.FilesToIndex) != 3 {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}

func TestCanResumeInterrupted_TrueForPartialInProgressRun(t *testing.T) {
	s := &State{}
	s.Start("full", "ollama", "bge-m3", "main", "abc", []string{"a.go", "b.go"})
	s.Advance()

	if !s.CanResumeInterrupted("ollama", "bge-m3") {
		t.Error("expected resumable for a partially completed in-progress run")
	}
}

func TestCanResumeInterrupted_FalseWhenCompleted(t *testing.T) {
	s := &State{}
	s.Start("full", "ollama", "bge-m3", "main", "abc", []string{"a.go"})
	s.Complete()

	if s.CanResumeInterrupted("ollama", "bge-m3") {
		t.Error("a completed run should not be resumable")
	}
}

func TestCanResumeInterrupted_FalseWhenAllFilesConsumed(t *testing.T) {
	s := &State{}
	s.Start("full", "ollama", "bge-m3", "main", "abc", []string{"a.go"})
	s.Advance() // CurrentIndex now equals len(FilesToIndex)

	if s.CanResumeInterrupted("ollama", "bge-m3") {
		t.Error("a run whose cursor reached the end should not be resumable")
	}
}

func TestCanResumeInterrupted_FalseOnModelChange(t *testing.T) {
	s := &State{}
	s.Start("full", "ollama", "bge-m3", "main", "abc", []string{"a.go", "b.go"})

	if s.CanResumeInterrupted("ollama", "nomic-embed-text") {
		t.Error("a model change should invalidate resume")
	}
	if s.CanResumeInterrupted("openai", "bge-m3") {
		t.Error("a provider change should invalidate resume")
	}
}

func TestFail_RecordsErrorMessage(t *testing.T) {
	s := &State{}
	s.Start("full", "ollama", "bge-m3", "main", "abc", []string{"a.go"})
	s.Fail(errors.New("embedding provider unreachable"))

	if s.Status != StatusFailed {
		t.Errorf("expected StatusFailed, got %s", s.Status)
	}
	if s.Error != "embedding provider unreachable" {
		t.Errorf("unexpected error message: %s", s.Error)
	}
}

func TestCancel_SetsDistinctStatusFromFail(t *testing.T) {
	s := &State{}
	s.Start("full", "ollama", "bge-m3", "main", "abc", []string{"a.go"})
	s.Cancel()

	if s.Status != StatusCancelled {
		t.Errorf("expected StatusCancelled, got %s", s.Status)
	}
	if s.CanResumeInterrupted("ollama", "bge-m3") {
		t.Error("a cancelled run should not report resumable via the in-progress oracle")
	}
}
