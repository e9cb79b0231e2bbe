// Package query implements semantic search over an indexed project:
// embed the query text, apply the mandatory project and branch-visibility
// filters plus any user filters, and return ranked hits.
package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/codelens/indexcore/internal/embedding"
	"github.com/codelens/indexcore/internal/gittopology"
	"github.com/codelens/indexcore/internal/vectorstoreclient"
)

// searchClient is the slice of vectorstoreclient.Client Service needs.
type searchClient interface {
	Search(ctx context.Context, collection string, params vectorstoreclient.SearchParams) ([]vectorstoreclient.SearchHit, error)
}

// Service answers search queries against one project's collection.
type Service struct {
	client     searchClient
	provider   embedding.Provider
	collection string
	projectID  string
	git        gittopology.Topology // nil for non-git projects: no ancestry widening
}

// New constructs a Service bound to one project's collection. git may be nil
// for a non-git project; a non-nil NonGit topology works too, since its
// methods all report errs.ErrNotAGitRepo and Search falls back to an exact
// branch match.
func New(client searchClient, provider embedding.Provider, collection, projectID string, git gittopology.Topology) *Service {
	return &Service{client: client, provider: provider, collection: collection, projectID: projectID, git: git}
}

// Filters narrows a search beyond the mandatory project/branch scoping.
type Filters struct {
	Branch   string // empty means "current branch only" is applied by the caller before calling Search
	Language string
	PathGlob string
	MinScore float32
	Limit    int
}

// Hit is one ranked search result.
type Hit struct {
	Path      string
	LineStart int
	LineEnd   int
	Score     float32
	Content   string
	Branch    string
}

const defaultLimit = 10

// Search embeds query, builds the mandatory project_id filter, the
// branch-visibility filter (an OR across the queried branch and every
// branch it descends from, AND NOT hidden for the queried branch) plus any
// Filters the caller supplied, and returns ranked hits. Visibility is
// applied inside the vector-store query itself, before Qdrant caps results
// to Limit, so a hidden or out-of-scope hit is excluded rather than
// silently squeezing a visible hit out of the page.
func (s *Service) Search(ctx context.Context, queryText string, f Filters) ([]Hit, error) {
	if queryText == "" {
		return nil, fmt.Errorf("query text is required")
	}

	vectors, err := s.provider.EmbedBatch(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	must := []vectorstoreclient.FieldMatch{{Key: "project_id", Value: s.projectID}}
	var should []vectorstoreclient.FieldMatch
	var mustNot []vectorstoreclient.FieldMatch

	if f.Branch != "" {
		visible := s.visibleBranches(f.Branch)
		if len(visible) == 1 {
			must = append(must, vectorstoreclient.FieldMatch{Key: "git_branch", Value: f.Branch})
		} else {
			for _, b := range visible {
				should = append(should, vectorstoreclient.FieldMatch{Key: "git_branch", Value: b})
			}
		}
		mustNot = append(mustNot, vectorstoreclient.FieldMatch{Key: "hidden_branches", Value: f.Branch})
	}
	if f.Language != "" {
		must = append(must, vectorstoreclient.FieldMatch{Key: "language", Value: f.Language})
	}
	if f.PathGlob != "" {
		must = append(must, vectorstoreclient.FieldMatch{Key: "path", Value: f.PathGlob})
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	hits, err := s.client.Search(ctx, s.collection, vectorstoreclient.SearchParams{
		Vector:         vectors[0],
		Filter:         vectorstoreclient.Filter{Must: must, MustNot: mustNot, Should: should},
		Limit:          uint64(limit),
		ScoreThreshold: f.MinScore,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]Hit, 0, len(hits))
	for _, h := range hits {
		results = append(results, toHit(h))
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// visibleBranches returns branch plus every branch that branch's current
// commit descends from, so content committed on a parent branch and never
// separately reindexed on branch is still visible from it. Falls back to
// just branch when there's no git topology or ancestry can't be resolved.
func (s *Service) visibleBranches(branch string) []string {
	if s.git == nil {
		return []string{branch}
	}
	target, err := s.git.BranchCommit(branch)
	if err != nil {
		return []string{branch}
	}
	all, err := s.git.ListBranches()
	if err != nil {
		return []string{branch}
	}

	visible := []string{branch}
	for _, b := range all {
		if b == branch {
			continue
		}
		c, err := s.git.BranchCommit(b)
		if err != nil {
			continue
		}
		if ok, err := s.git.IsAncestor(c, target); err == nil && ok {
			visible = append(visible, b)
		}
	}
	return visible
}

func toHit(h vectorstoreclient.SearchHit) Hit {
	return Hit{
		Path:      asString(h.Payload["path"]),
		LineStart: asInt(h.Payload["line_start"]),
		LineEnd:   asInt(h.Payload["line_end"]),
		Score:     h.Score,
		Content:   asString(h.Payload["content"]),
		Branch:    asString(h.Payload["git_branch"]),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
