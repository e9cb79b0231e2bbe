// Package branchvisibility implements soft-hide and hard-delete of indexed
// files per branch, and the working-directory overlay that hides files
// deleted but not yet committed without a full reindex.
package branchvisibility

import (
	"context"
	"fmt"

	"github.com/codelens/indexcore/internal/vectorstoreclient"
)

// client is the slice of vectorstoreclient.Client this package needs.
type client interface {
	Scroll(ctx context.Context, collection string, filter vectorstoreclient.Filter, limit uint32, offset string) (vectorstoreclient.ScrollPage, error)
	UpsertPoints(ctx context.Context, collection string, points []vectorstoreclient.Point) error
	DeleteByFilter(ctx context.Context, collection string, filter vectorstoreclient.Filter) error
}

// Manager applies visibility changes to one collection.
type Manager struct {
	client     client
	collection string
}

// New constructs a Manager bound to collection.
func New(c client, collection string) *Manager {
	return &Manager{client: c, collection: collection}
}

const hiddenBranchesField = "hidden_branches"

// HideFileInBranch soft-hides path from queries scoped to branch, without
// removing its vectors. The file remains visible to queries against any
// other branch and is restored by UnhideFileInBranch without re-embedding.
func (m *Manager) HideFileInBranch(ctx context.Context, path, branch string) error {
	return m.forEachChunk(ctx, path, func(p vectorstoreclient.Point) error {
		hidden := stringSlice(p.Payload[hiddenBranchesField])
		if contains(hidden, branch) {
			return nil
		}
		hidden = append(hidden, branch)
		p.Payload[hiddenBranchesField] = hidden
		return m.client.UpsertPoints(ctx, m.collection, []vectorstoreclient.Point{p})
	})
}

// UnhideFileInBranch reverses HideFileInBranch for path in branch.
func (m *Manager) UnhideFileInBranch(ctx context.Context, path, branch string) error {
	return m.forEachChunk(ctx, path, func(p vectorstoreclient.Point) error {
		hidden := stringSlice(p.Payload[hiddenBranchesField])
		filtered := remove(hidden, branch)
		if len(filtered) == len(hidden) {
			return nil
		}
		p.Payload[hiddenBranchesField] = filtered
		return m.client.UpsertPoints(ctx, m.collection, []vectorstoreclient.Point{p})
	})
}

// HardDeleteFile permanently removes every chunk of path from the
// collection, for every branch. Unlike HideFileInBranch this cannot be
// undone without re-indexing.
func (m *Manager) HardDeleteFile(ctx context.Context, path string) error {
	return m.client.DeleteByFilter(ctx, m.collection, vectorstoreclient.Filter{
		Must: []vectorstoreclient.FieldMatch{{Key: "path", Value: path}},
	})
}

// Overlay describes one uncommitted working-directory change.
type Overlay struct {
	Path    string
	Deleted bool // true if the file was deleted in the working directory
}

// ApplyWorkingDirOverlay marks paths that are deleted on disk but still
// present in the index as hidden for branch, so a query against a dirty
// working tree doesn't surface content that no longer exists. The hide is
// written to the index through HideFileInBranch and stays until the file is
// unhidden; overlays whose Deleted is false are ignored.
func (m *Manager) ApplyWorkingDirOverlay(ctx context.Context, branch string, overlays []Overlay) error {
	for _, o := range overlays {
		if !o.Deleted {
			continue
		}
		if err := m.HideFileInBranch(ctx, o.Path, branch); err != nil {
			return fmt.Errorf("overlay hide %s: %w", o.Path, err)
		}
	}
	return nil
}

// ReconcileBranchVisibility scans every chunk in the collection and brings
// its hidden-for-branch state in line with currentFiles: a path absent from
// currentFiles (deleted or moved outside the indexer's reach since the last
// run) is hidden for branch, and a path present that was previously hidden
// (e.g. a deletion was reverted) is unhidden. Chunks already in the right
// state are left untouched.
func (m *Manager) ReconcileBranchVisibility(ctx context.Context, branch string, currentFiles map[string]bool) error {
	offset := ""
	for {
		page, err := m.client.Scroll(ctx, m.collection, vectorstoreclient.Filter{}, 256, offset)
		if err != nil {
			return fmt.Errorf("scroll chunks: %w", err)
		}
		for _, p := range page.Points {
			path, _ := p.Payload["path"].(string)
			hidden := stringSlice(p.Payload[hiddenBranchesField])
			wasHidden := contains(hidden, branch)
			shouldHide := !currentFiles[path]

			var next []string
			switch {
			case shouldHide && !wasHidden:
				next = append(hidden, branch)
			case !shouldHide && wasHidden:
				next = remove(hidden, branch)
			default:
				continue
			}

			p.Payload[hiddenBranchesField] = next
			if err := m.client.UpsertPoints(ctx, m.collection, []vectorstoreclient.Point{p}); err != nil {
				return fmt.Errorf("reconcile visibility for %s: %w", path, err)
			}
		}
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}
	return nil
}

func (m *Manager) forEachChunk(ctx context.Context, path string, fn func(vectorstoreclient.Point) error) error {
	filter := vectorstoreclient.Filter{Must: []vectorstoreclient.FieldMatch{{Key: "path", Value: path}}}
	offset := ""
	for {
		page, err := m.client.Scroll(ctx, m.collection, filter, 256, offset)
		if err != nil {
			return fmt.Errorf("scroll chunks of %s: %w", path, err)
		}
		for _, p := range page.Points {
			if err := fn(p); err != nil {
				return err
			}
		}
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}
	return nil
}

func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func contains(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}

func remove(ss []string, target string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
