// Package gittopology answers the branch/commit/diff questions the
// orchestrator needs for git-aware incremental indexing, using go-git
// directly rather than shelling out to the git binary.
package gittopology

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/codelens/indexcore/internal/errs"
)

// ChangeSet is the set of paths that differ between two commits, split by
// how they differ.
type ChangeSet struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// Topology answers questions about a project's git history. NonGit
// satisfies this interface for non-git projects, returning errs.ErrNotAGitRepo
// from every method.
type Topology interface {
	CurrentBranch() (string, error)
	CurrentCommit() (string, error)
	ListBranches() ([]string, error)
	BranchCommit(branch string) (string, error)
	ChangedFilesSince(fromCommit string) (ChangeSet, error)
	IsAncestor(ancestor, descendant string) (bool, error)
}

// Repo wraps a go-git repository opened at a project root.
type Repo struct {
	repo *git.Repository
}

// Open opens the git repository rooted at path. If path is not a git
// repository, it returns NonGit{} rather than an error, since the
// orchestrator treats a non-git project as a valid (just less capable)
// indexing target.
func Open(path string) (Topology, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return NonGit{}, nil
		}
		return nil, fmt.Errorf("open git repository: %w", err)
	}
	return &Repo{repo: repo}, nil
}

// CurrentBranch returns the short name of the currently checked out branch.
// Returns an empty string, not an error, for a detached HEAD.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

// CurrentCommit returns the full hex SHA of HEAD.
func (r *Repo) CurrentCommit() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// ListBranches returns every local branch name, sorted.
func (r *Repo) ListBranches() ([]string, error) {
	iter, err := r.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer iter.Close()

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate branches: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// BranchCommit returns the commit SHA a branch currently points at.
func (r *Repo) BranchCommit(branch string) (string, error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return "", fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	return ref.Hash().String(), nil
}

// ChangedFilesSince diffs fromCommit's tree against HEAD's tree, returning
// every added, modified, and deleted path. Used by incremental-git mode to
// avoid re-walking and re-hashing the whole project after a pull.
func (r *Repo) ChangedFilesSince(fromCommit string) (ChangeSet, error) {
	fromHash := plumbing.NewHash(fromCommit)
	fromCommitObj, err := r.repo.CommitObject(fromHash)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("resolve commit %s: %w", fromCommit, err)
	}
	fromTree, err := fromCommitObj.Tree()
	if err != nil {
		return ChangeSet{}, fmt.Errorf("load tree for %s: %w", fromCommit, err)
	}

	head, err := r.repo.Head()
	if err != nil {
		return ChangeSet{}, fmt.Errorf("resolve HEAD: %w", err)
	}
	headCommitObj, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return ChangeSet{}, fmt.Errorf("resolve HEAD commit: %w", err)
	}
	headTree, err := headCommitObj.Tree()
	if err != nil {
		return ChangeSet{}, fmt.Errorf("load HEAD tree: %w", err)
	}

	changes, err := object.DiffTree(fromTree, headTree)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("diff trees: %w", err)
	}

	var cs ChangeSet
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			continue
		}
		switch action {
		case merkletrie.Insert:
			cs.Added = append(cs.Added, change.To.Name)
		case merkletrie.Delete:
			cs.Deleted = append(cs.Deleted, change.From.Name)
		case merkletrie.Modify:
			cs.Modified = append(cs.Modified, change.To.Name)
		}
	}
	return cs, nil
}

// IsAncestor reports whether ancestor is a git ancestor of (or equal to)
// descendant. The orchestrator and the query service use it to find the
// branches a given branch descends from.
func (r *Repo) IsAncestor(ancestor, descendant string) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	descHash := plumbing.NewHash(descendant)
	descCommit, err := r.repo.CommitObject(descHash)
	if err != nil {
		return false, fmt.Errorf("resolve commit %s: %w", descendant, err)
	}

	ancestorHash := plumbing.NewHash(ancestor)
	iter := object.NewCommitPreorderIter(descCommit, nil, nil)
	defer iter.Close()

	for {
		c, err := iter.Next()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("walk commit ancestry: %w", err)
		}
		if c.Hash == ancestorHash {
			return true, nil
		}
	}
}

// SanitizeBranchName converts a branch name to a value safe for use in a
// collection name or filesystem path.
func SanitizeBranchName(branch string) string {
	r := strings.NewReplacer("/", "-", "\\", "-", ":", "-")
	return r.Replace(branch)
}

// NonGit answers every Topology method with errs.ErrNotAGitRepo, letting the
// orchestrator treat "not a git project" as a distinct, handled branch-
// visibility mode instead of a special case threaded through every call
// site.
type NonGit struct{}

func (NonGit) CurrentBranch() (string, error)                   { return "", errs.ErrNotAGitRepo }
func (NonGit) CurrentCommit() (string, error)                   { return "", errs.ErrNotAGitRepo }
func (NonGit) ListBranches() ([]string, error)                  { return nil, errs.ErrNotAGitRepo }
func (NonGit) BranchCommit(branch string) (string, error)       { return "", errs.ErrNotAGitRepo }
func (NonGit) ChangedFilesSince(from string) (ChangeSet, error) { return ChangeSet{}, errs.ErrNotAGitRepo }
func (NonGit) IsAncestor(a, d string) (bool, error)              { return false, errs.ErrNotAGitRepo }
