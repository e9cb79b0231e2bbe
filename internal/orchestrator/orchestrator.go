// Package orchestrator drives one indexing run end to end: it picks a mode
// (full, resume, incremental by git diff, incremental by timestamp, or a
// visibility reconcile), walks and chunks files, embeds them, and commits
// each file's chunks to the vector store atomically.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/codelens/indexcore/internal/branchvisibility"
	"github.com/codelens/indexcore/internal/chunker"
	"github.com/codelens/indexcore/internal/embedding"
	"github.com/codelens/indexcore/internal/filetypes"
	"github.com/codelens/indexcore/internal/filewalker"
	"github.com/codelens/indexcore/internal/fingerprint"
	"github.com/codelens/indexcore/internal/gittopology"
	"github.com/codelens/indexcore/internal/lock"
	"github.com/codelens/indexcore/internal/payloadindex"
	"github.com/codelens/indexcore/internal/progressivemetadata"
	"github.com/codelens/indexcore/internal/vectorstoreclient"
	"github.com/codelens/indexcore/internal/workerpool"
	"github.com/codelens/indexcore/pkg/telemetry"
)

// Mode names one of the run strategies the orchestrator can pick.
type Mode string

const (
	ModeFull                 Mode = "full"
	ModeResume               Mode = "resume"
	ModeIncrementalGit       Mode = "incremental_git"
	ModeIncrementalTimestamp Mode = "incremental_timestamp"
	ModeReconcile            Mode = "reconcile"
)

// vectorClient is the slice of vectorstoreclient.Client the orchestrator
// drives directly (payloadindex and branchvisibility narrow their own).
type vectorClient interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, vectorDim int) error
	UpsertPoints(ctx context.Context, collection string, points []vectorstoreclient.Point) error
	DeleteByFilter(ctx context.Context, collection string, filter vectorstoreclient.Filter) error
	Scroll(ctx context.Context, collection string, filter vectorstoreclient.Filter, limit uint32, offset string) (vectorstoreclient.ScrollPage, error)
}

// hashedEmbedder is implemented by embedding.CachingProvider; orchestrator
// uses it when available so unchanged chunks skip re-embedding entirely.
type hashedEmbedder interface {
	EmbedBatchHashed(ctx context.Context, texts []string, hashes []string) ([][]float32, error)
}

// Orchestrator wires together every package that makes up one indexing run.
type Orchestrator struct {
	ProjectRoot string
	StateDir    string
	Collection  string
	ProjectID   string

	Client       vectorClient
	Embedder     embedding.Provider
	ProviderName string // "openai" or "ollama", for the resume-oracle check
	Git          gittopology.Topology
	Lock     *lock.IndexLock
	Payload  *payloadindex.Manager
	Branches *branchvisibility.Manager
	Metrics  *telemetry.Metrics

	ChunkConfig chunker.Config
	MaxFileSize int64
	Workers     int

	// TimestampSafetyBuffer is subtracted from the incremental-timestamp
	// cutoff so files touched right around the previous run's completion
	// (mtime granularity, clock skew) are re-scanned rather than missed.
	TimestampSafetyBuffer time.Duration

	Logger zerolog.Logger
}

// chunkDocType is stored on every chunk-level point's "type" payload field,
// distinguishing chunk documents from any future document kind sharing the
// collection.
const chunkDocType = "chunk"

// ProgressFunc reports incremental progress during Run. Run calls it once
// per successfully committed file, always with phase "committing"; no other
// phase is reported.
type ProgressFunc func(filesDone, filesTotal int, currentPath string, chunksSoFar int, phase string)

// RunOptions configures one call to Run.
type RunOptions struct {
	ForceFull bool
	Progress  ProgressFunc
}

// RunResult summarizes one completed, cancelled, or failed run.
type RunResult struct {
	Mode           Mode
	Outcome        string // completed, cancelled, failed
	FilesIndexed   int
	ChunksEmbedded int
	Errors         int
}

// fileTask is one file-level unit of work handed to the worker pool.
type fileTask struct {
	relPath string
	absPath string
	mtime   time.Time
}

// Run executes one indexing pass: it acquires the project's exclusive
// lock, determines which mode to run in, and commits every selected file's
// chunks to the vector store one file at a time.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if err := o.Lock.TryLock(); err != nil {
		return nil, err
	}
	defer o.Lock.Unlock()

	state, err := progressivemetadata.Load(o.StateDir)
	if err != nil {
		return nil, fmt.Errorf("load progressive metadata: %w", err)
	}

	branch, commit := o.currentBranchAndCommit()
	mode := o.determineMode(state, opts.ForceFull)

	if o.Metrics != nil {
		o.Metrics.StartRun()
	}
	o.Logger.Info().Str("mode", string(mode)).Str("branch", branch).Msg("starting indexing run")

	if err := o.ensureCollection(ctx); err != nil {
		return nil, err
	}

	if mode == ModeReconcile {
		return o.runReconcile(ctx, branch)
	}

	tasks, deleted, err := o.selectFiles(mode, state, commit)
	if err != nil {
		return nil, err
	}

	// Deletions detected in git mode are soft-hides, not hard deletes: a
	// file removed on one branch must stay visible to queries against any
	// branch that still has it. Hard delete is reserved for a project with
	// no branch concept at all, where "hidden from this branch" and "gone"
	// are the same thing.
	for _, path := range deleted {
		var delErr error
		if _, isNonGit := o.Git.(gittopology.NonGit); isNonGit {
			delErr = o.Branches.HardDeleteFile(ctx, path)
		} else {
			delErr = o.Branches.HideFileInBranch(ctx, path, branch)
		}
		if delErr != nil {
			o.Logger.Warn().Err(delErr).Str("path", path).Msg("failed to remove deleted file from index")
		}
	}

	relPaths := make([]string, len(tasks))
	for i, t := range tasks {
		relPaths[i] = t.relPath
	}

	startIndex := 0
	if mode == ModeResume {
		startIndex = state.CurrentIndex
	} else {
		state.Start(string(mode), o.ProviderName, o.Embedder.ModelName(), branch, commit, relPaths)
	}

	if _, isNonGit := o.Git.(gittopology.NonGit); !isNonGit && branch != "" {
		if ancestry, err := o.branchAncestry(branch); err != nil {
			o.Logger.Warn().Err(err).Str("branch", branch).Msg("failed to compute branch ancestry")
		} else {
			state.Git.Ancestry = ancestry
		}
	}

	result := &RunResult{Mode: mode}
	pool := workerpool.New[fileTask, int](o.Workers)

	var done atomic.Int32
	remaining := tasks[startIndex:]
	results, runErr := pool.Run(ctx, remaining, func(ctx context.Context, t fileTask) (int, error) {
		chunks, err := o.commitFile(ctx, t)
		if err != nil {
			return 0, err
		}
		n := done.Add(1)
		if opts.Progress != nil {
			opts.Progress(int(n), len(tasks), t.relPath, chunks, "committing")
		}
		return chunks, nil
	})

	completed := make(map[int]bool, len(results))
	for _, r := range results {
		if r.Err != nil {
			result.Errors++
			o.Logger.Error().Err(r.Err).Str("path", remaining[r.Index].relPath).Msg("failed to index file")
			continue
		}
		completed[startIndex+r.Index] = true
		result.FilesIndexed++
		result.ChunksEmbedded += r.Value
		if o.Metrics != nil {
			o.Metrics.RecordFileIndexed(r.Value)
		}
	}

	// The resume cursor only advances over a contiguous run of completed
	// files starting at startIndex: a gap (error, or not yet run because
	// cancellation stopped the pool) must not be skipped on the next resume.
	cursor := startIndex
	for completed[cursor] {
		cursor++
	}
	state.CurrentIndex = cursor
	state.CompletedFiles = append([]string(nil), relPaths[:cursor]...)
	state.ChunksIndexed += result.ChunksEmbedded

	for i := startIndex; i < cursor; i++ {
		if tasks[i].mtime.After(state.LastSuccessfulMtime) {
			state.LastSuccessfulMtime = tasks[i].mtime
		}
	}

	outcome := "completed"
	switch {
	case pool.Cancelled() || ctx.Err() != nil:
		outcome = "cancelled"
		state.Cancel()
	case runErr != nil:
		outcome = "failed"
		state.Fail(runErr)
	default:
		state.Complete()
	}
	result.Outcome = outcome

	if err := progressivemetadata.Save(o.StateDir, state); err != nil {
		o.Logger.Error().Err(err).Msg("failed to persist progressive metadata")
	}
	if o.Metrics != nil {
		o.Metrics.RecordRunFinished(string(mode), outcome)
	}

	if outcome == "failed" {
		return result, runErr
	}
	return result, nil
}

func (o *Orchestrator) currentBranchAndCommit() (branch, commit string) {
	b, err := o.Git.CurrentBranch()
	if err != nil {
		return "", ""
	}
	c, err := o.Git.CurrentCommit()
	if err != nil {
		return b, ""
	}
	return b, c
}

// determineMode picks the run strategy. Resume takes priority over every
// incremental mode: a run interrupted partway through left some of the
// previous batch's files uncommitted, and restarting from the interruption
// point must finish before any newer incremental diff is computed, or the
// newer diff would be computed against a stale, partially-indexed base.
func (o *Orchestrator) determineMode(state *progressivemetadata.State, forceFull bool) Mode {
	if forceFull {
		return ModeFull
	}
	if state.CanResumeInterrupted(o.ProviderName, o.Embedder.ModelName()) {
		return ModeResume
	}
	// A cancelled run keeps its cursor, so the next run picks up from it.
	if state.Status == progressivemetadata.StatusCancelled &&
		state.CurrentIndex < len(state.FilesToIndex) &&
		state.Provider == o.ProviderName && state.Model == o.Embedder.ModelName() {
		return ModeResume
	}
	if state.Status != progressivemetadata.StatusCompleted {
		return ModeFull
	}
	if _, isNonGit := o.Git.(gittopology.NonGit); isNonGit {
		return ModeIncrementalTimestamp
	}
	if state.Commit == "" {
		return ModeFull
	}
	return ModeIncrementalGit
}

// branchAncestry returns every other branch that is a git ancestor of
// branch, persisted on State.Git.Ancestry so a query against a descendant
// branch can see content indexed under a parent it never separately
// reindexed.
func (o *Orchestrator) branchAncestry(branch string) ([]string, error) {
	target, err := o.Git.BranchCommit(branch)
	if err != nil {
		return nil, fmt.Errorf("resolve commit for %s: %w", branch, err)
	}
	all, err := o.Git.ListBranches()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}

	var ancestry []string
	for _, b := range all {
		if b == branch {
			continue
		}
		c, err := o.Git.BranchCommit(b)
		if err != nil {
			continue
		}
		if ok, err := o.Git.IsAncestor(c, target); err == nil && ok {
			ancestry = append(ancestry, b)
		}
	}
	return ancestry, nil
}

func (o *Orchestrator) ensureCollection(ctx context.Context) error {
	exists, err := o.Client.CollectionExists(ctx, o.Collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		if err := o.Client.CreateCollection(ctx, o.Collection, o.Embedder.Dimensions()); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	if o.Payload != nil {
		if err := o.Payload.EnsureIndexes(ctx, o.Collection); err != nil {
			return fmt.Errorf("ensure payload indexes: %w", err)
		}
	}
	return nil
}

// selectFiles returns the files to (re)index and, for git-diff mode, the
// paths that were deleted since the last completed run.
func (o *Orchestrator) selectFiles(mode Mode, state *progressivemetadata.State, currentCommit string) ([]fileTask, []string, error) {
	switch mode {
	case ModeIncrementalGit:
		changes, err := o.Git.ChangedFilesSince(state.Commit)
		if err != nil {
			return nil, nil, fmt.Errorf("changed files since %s: %w", state.Commit, err)
		}
		var tasks []fileTask
		for _, rel := range append(changes.Added, changes.Modified...) {
			if !filetypes.IsCodeFile(rel) {
				continue
			}
			abs := filepath.Join(o.ProjectRoot, rel)
			info, err := os.Stat(abs)
			if err != nil {
				continue
			}
			tasks = append(tasks, fileTask{relPath: rel, absPath: abs, mtime: info.ModTime()})
		}
		return tasks, changes.Deleted, nil

	case ModeIncrementalTimestamp:
		all, err := o.walkAll()
		if err != nil {
			return nil, nil, err
		}
		// LastSuccessfulMtime is the newest mtime actually committed last
		// run, not the wall-clock time the metadata was saved; the two
		// diverge whenever a run takes non-trivial time. The safety buffer
		// widens the window further so a file touched right at the
		// boundary is re-scanned instead of silently skipped.
		cutoff := state.LastSuccessfulMtime.Add(-o.TimestampSafetyBuffer)
		var tasks []fileTask
		for _, f := range all {
			if f.mtime.After(cutoff) {
				tasks = append(tasks, f)
			}
		}
		return tasks, nil, nil

	case ModeResume:
		var tasks []fileTask
		for _, rel := range state.FilesToIndex {
			abs := filepath.Join(o.ProjectRoot, rel)
			info, err := os.Stat(abs)
			if err != nil {
				continue
			}
			tasks = append(tasks, fileTask{relPath: rel, absPath: abs, mtime: info.ModTime()})
		}
		return tasks, nil, nil

	default: // ModeFull
		all, err := o.walkAll()
		return all, nil, err
	}
}

func (o *Orchestrator) walkAll() ([]fileTask, error) {
	maxSize := o.MaxFileSize
	if maxSize <= 0 {
		maxSize = filetypes.MaxIndexableFileSize
	}
	files, err := filewalker.Walk(o.ProjectRoot, filewalker.Options{MaxFileSize: maxSize})
	if err != nil {
		return nil, fmt.Errorf("walk project: %w", err)
	}
	tasks := make([]fileTask, 0, len(files))
	for _, f := range files {
		if !filetypes.IsCodeFile(f.RelPath) {
			continue
		}
		info, err := os.Stat(f.AbsPath)
		var mtime time.Time
		if err == nil {
			mtime = info.ModTime()
		}
		tasks = append(tasks, fileTask{relPath: f.RelPath, absPath: f.AbsPath, mtime: mtime})
	}
	return tasks, nil
}

// commitFile chunks, embeds, and atomically commits one file: any existing
// chunks for the path are deleted before the new ones are upserted, so a
// crash between the two never leaves both old and new chunks visible
// together, and a shrinking file never leaves orphaned trailing chunks.
func (o *Orchestrator) commitFile(ctx context.Context, t fileTask) (int, error) {
	content, err := os.ReadFile(t.absPath)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", t.relPath, err)
	}

	chunks := chunker.ChunkFile(t.relPath, string(content), o.ChunkConfig)
	if len(chunks) == 0 {
		return 0, o.Client.DeleteByFilter(ctx, o.Collection, vectorstoreclient.Filter{
			Must: []vectorstoreclient.FieldMatch{{Key: "path", Value: t.relPath}},
		})
	}

	texts := make([]string, len(chunks))
	hashes := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		hashes[i] = fingerprint.FileHash([]byte(c.Content))
	}

	var vectors [][]float32
	if he, ok := o.Embedder.(hashedEmbedder); ok {
		vectors, err = he.EmbedBatchHashed(ctx, texts, hashes)
	} else {
		vectors, err = o.Embedder.EmbedBatch(ctx, texts)
	}
	if err != nil {
		return 0, fmt.Errorf("embed %s: %w", t.relPath, err)
	}

	language := filetypes.GetLanguage(t.relPath)
	branch, commit := o.currentBranchAndCommit()
	fileHash := fingerprint.FileHash(content)
	indexedAt := time.Now().Unix()

	points := make([]vectorstoreclient.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstoreclient.Point{
			ID:     fingerprint.DocumentID(o.ProjectID, t.relPath, c.ChunkIndex, chunkDocType),
			Vector: vectors[i],
			Payload: map[string]any{
				"project_id":      o.ProjectID,
				"path":            t.relPath,
				"language":        language,
				"git_branch":      branch,
				"git_commit":      commit,
				"file_mtime":      t.mtime.Unix(),
				"file_hash":       fileHash,
				"file_size":       len(content),
				"indexed_at":      indexedAt,
				"type":            chunkDocType,
				"line_start":      c.LineStart,
				"line_end":        c.LineEnd,
				"chunk_index":     c.ChunkIndex,
				"total_chunks":    c.TotalChunks,
				"content":         c.Content,
				"hidden_branches": []string{},
			},
		}
	}

	if err := o.Client.DeleteByFilter(ctx, o.Collection, vectorstoreclient.Filter{
		Must: []vectorstoreclient.FieldMatch{{Key: "path", Value: t.relPath}},
	}); err != nil {
		return 0, fmt.Errorf("delete stale chunks of %s: %w", t.relPath, err)
	}
	if err := o.Client.UpsertPoints(ctx, o.Collection, points); err != nil {
		return 0, fmt.Errorf("upsert chunks of %s: %w", t.relPath, err)
	}

	return len(chunks), nil
}

// runReconcile resolves drift between the working tree and the index: it
// hides chunks for files the working tree no longer has, unhides chunks for
// files that reappeared, and recommits any file whose on-disk content hash
// no longer matches what was last indexed (a change that neither a git diff
// nor an mtime comparison happened to catch).
func (o *Orchestrator) runReconcile(ctx context.Context, branch string) (*RunResult, error) {
	tasks, err := o.walkAll()
	if err != nil {
		return nil, err
	}

	current := make(map[string]bool, len(tasks))
	byPath := make(map[string]fileTask, len(tasks))
	for _, t := range tasks {
		current[t.relPath] = true
		byPath[t.relPath] = t
	}

	if err := o.Branches.ReconcileBranchVisibility(ctx, branch, current); err != nil {
		return nil, fmt.Errorf("reconcile branch visibility: %w", err)
	}

	recommitted, err := o.reconcileHashMismatches(ctx, branch, byPath)
	if err != nil {
		return nil, fmt.Errorf("reconcile content hashes: %w", err)
	}

	if o.Metrics != nil {
		o.Metrics.RecordRunFinished(string(ModeReconcile), "completed")
	}
	return &RunResult{Mode: ModeReconcile, Outcome: "completed", FilesIndexed: recommitted}, nil
}

// reconcileHashMismatches scrolls every chunk indexed for branch, compares
// its stored file_hash against the file's current on-disk hash, and
// recommits any file that drifted.
func (o *Orchestrator) reconcileHashMismatches(ctx context.Context, branch string, onDisk map[string]fileTask) (int, error) {
	filter := vectorstoreclient.Filter{Must: []vectorstoreclient.FieldMatch{
		{Key: "project_id", Value: o.ProjectID},
		{Key: "git_branch", Value: branch},
	}}

	storedHash := make(map[string]string)
	offset := ""
	for {
		page, err := o.Client.Scroll(ctx, o.Collection, filter, 256, offset)
		if err != nil {
			return 0, fmt.Errorf("scroll indexed chunks: %w", err)
		}
		for _, p := range page.Points {
			path, _ := p.Payload["path"].(string)
			if path == "" {
				continue
			}
			if h, ok := p.Payload["file_hash"].(string); ok {
				storedHash[path] = h
			}
		}
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}

	var recommitted int
	for path, t := range onDisk {
		content, err := os.ReadFile(t.absPath)
		if err != nil {
			continue
		}
		if fingerprint.FileHash(content) == storedHash[path] {
			continue
		}
		if _, err := o.commitFile(ctx, t); err != nil {
			o.Logger.Warn().Err(err).Str("path", path).Msg("failed to recommit file with changed content during reconcile")
			continue
		}
		recommitted++
	}
	return recommitted, nil
}
