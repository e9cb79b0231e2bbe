package branchvisibility

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/codelens/indexcore/internal/vectorstoreclient"
)

type fakeClient struct {
	points []vectorstoreclient.Point
}

func (f *fakeClient) Scroll(ctx context.Context, collection string, filter vectorstoreclient.Filter, limit uint32, offset string) (vectorstoreclient.ScrollPage, error) {
	var matched []vectorstoreclient.Point
	for _, p := range f.points {
		if matchesFilter(p, filter) {
			matched = append(matched, p)
		}
	}
	return vectorstoreclient.ScrollPage{Points: matched}, nil
}

func (f *fakeClient) UpsertPoints(ctx context.Context, collection string, points []vectorstoreclient.Point) error {
	for _, np := range points {
		for i, p := range f.points {
			if p.ID == np.ID {
				f.points[i] = np
			}
		}
	}
	return nil
}

func (f *fakeClient) DeleteByFilter(ctx context.Context, collection string, filter vectorstoreclient.Filter) error {
	var kept []vectorstoreclient.Point
	for _, p := range f.points {
		if !matchesFilter(p, filter) {
			kept = append(kept, p)
		}
	}
	f.points = kept
	return nil
}

func matchesFilter(p vectorstoreclient.Point, filter vectorstoreclient.Filter) bool {
	for _, m := range filter.Must {
		switch v := p.Payload[m.Key].(type) {
		case string:
			if v != m.Value {
				return false
			}
		case []string:
			if !contains(v, m.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		points: []vectorstoreclient.Point{
			{ID: uuid.New(), Payload: map[string]any{"path": "a.go", "hidden_branches": []string{}}},
			{ID: uuid.New(), Payload: map[string]any{"path": "b.go", "hidden_branches": []string{}}},
		},
	}
}

func TestHideFileInBranch_AddsBranchToHiddenList(t *testing.T) {
	fc := newFakeClient()
	m := New(fc, "coll")

	if err := m.HideFileInBranch(context.Background(), "a.go", "feature-x"); err != nil {
		t.Fatalf("HideFileInBranch failed: %v", err)
	}

	hidden := fc.points[0].Payload["hidden_branches"].([]string)
	if !contains(hidden, "feature-x") {
		t.Errorf("expected feature-x in hidden_branches, got %+v", hidden)
	}
	if contains(fc.points[1].Payload["hidden_branches"].([]string), "feature-x") {
		t.Error("b.go should be unaffected")
	}
}

func TestUnhideFileInBranch_RemovesBranch(t *testing.T) {
	fc := newFakeClient()
	m := New(fc, "coll")

	m.HideFileInBranch(context.Background(), "a.go", "feature-x")
	if err := m.UnhideFileInBranch(context.Background(), "a.go", "feature-x"); err != nil {
		t.Fatalf("UnhideFileInBranch failed: %v", err)
	}

	hidden := fc.points[0].Payload["hidden_branches"].([]string)
	if contains(hidden, "feature-x") {
		t.Errorf("expected feature-x removed, got %+v", hidden)
	}
}

func TestHardDeleteFile_RemovesAllChunks(t *testing.T) {
	fc := newFakeClient()
	m := New(fc, "coll")

	if err := m.HardDeleteFile(context.Background(), "a.go"); err != nil {
		t.Fatalf("HardDeleteFile failed: %v", err)
	}
	if len(fc.points) != 1 {
		t.Fatalf("expected 1 remaining point, got %d", len(fc.points))
	}
	if fc.points[0].Payload["path"] != "b.go" {
		t.Errorf("expected b.go to remain, got %v", fc.points[0].Payload["path"])
	}
}

func TestApplyWorkingDirOverlay_HidesDeletedFiles(t *testing.T) {
	fc := newFakeClient()
	m := New(fc, "coll")

	err := m.ApplyWorkingDirOverlay(context.Background(), "main", []Overlay{
		{Path: "a.go", Deleted: true},
		{Path: "b.go", Deleted: false},
	})
	if err != nil {
		t.Fatalf("ApplyWorkingDirOverlay failed: %v", err)
	}

	if !contains(fc.points[0].Payload["hidden_branches"].([]string), "main") {
		t.Error("expected a.go hidden in main")
	}
	if contains(fc.points[1].Payload["hidden_branches"].([]string), "main") {
		t.Error("b.go was not deleted, should remain visible")
	}
}

func TestReconcileBranchVisibility_UnhidesReappearedFiles(t *testing.T) {
	fc := newFakeClient()
	m := New(fc, "coll")
	m.HideFileInBranch(context.Background(), "a.go", "main")

	err := m.ReconcileBranchVisibility(context.Background(), "main", map[string]bool{"a.go": true, "b.go": true})
	if err != nil {
		t.Fatalf("ReconcileBranchVisibility failed: %v", err)
	}

	hidden := fc.points[0].Payload["hidden_branches"].([]string)
	if contains(hidden, "main") {
		t.Errorf("expected a.go unhidden since it's present in currentFiles, got %+v", hidden)
	}
}

func TestReconcileBranchVisibility_HidesFilesMissingFromDisk(t *testing.T) {
	fc := newFakeClient()
	m := New(fc, "coll")

	// Only a.go is still on disk; b.go is missing and should be hidden.
	err := m.ReconcileBranchVisibility(context.Background(), "main", map[string]bool{"a.go": true})
	if err != nil {
		t.Fatalf("ReconcileBranchVisibility failed: %v", err)
	}

	if contains(fc.points[0].Payload["hidden_branches"].([]string), "main") {
		t.Error("a.go is present on disk, should remain visible")
	}
	if !contains(fc.points[1].Payload["hidden_branches"].([]string), "main") {
		t.Error("expected b.go hidden in main since it's missing from disk")
	}
}
