package cache

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phasergun/phasergun/internal/config"
	"github.com/phasergun/phasergun/internal/embed"
	pherrors "github.com/phasergun/phasergun/internal/errors"
	"github.com/phasergun/phasergun/internal/fingerprint"
	"github.com/phasergun/phasergun/internal/lockfile"
	"github.com/phasergun/phasergun/internal/parser"
	"github.com/phasergun/phasergun/internal/store"
)

// Entry is one published cache generation. Entries are immutable once
// published; a changed project produces a new Entry, never a mutation.
type Entry struct {
	Fingerprint      string
	Store            *store.VectorStore
	SOPSummaries     *store.SummaryStore
	ContextSummaries *store.SummaryStore
	BuiltAt          time.Time
}

// Coordinator serves cache entries, building them at most once per
// fingerprint across goroutines and cooperating processes.
type Coordinator struct {
	cfg      config.Config
	embedder embed.Embedder
	parser   parser.DocumentParser
	locks    *lockfile.Manager

	mu       sync.Mutex
	projects map[string]*projectState
}

// projectState serializes builds for one project root.
type projectState struct {
	buildMu sync.Mutex
	current atomic.Pointer[Entry]
}

// NewCoordinator wires a coordinator from configuration.
func NewCoordinator(cfg config.Config, embedder embed.Embedder, docParser parser.DocumentParser) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		embedder: embedder,
		parser:   docParser,
		locks: lockfile.NewManager(lockfile.Options{
			Stale:      time.Duration(cfg.Lock.StaleMs) * time.Millisecond,
			MaxRetries: cfg.Lock.MaxRetries,
			MinBackoff: time.Duration(cfg.Lock.MinBackoffMs) * time.Millisecond,
			MaxBackoff: time.Duration(cfg.Lock.MaxBackoffMs) * time.Millisecond,
		}),
		projects: make(map[string]*projectState),
	}
}

// project returns the per-root state, creating it on first use.
func (c *Coordinator) project(absRoot string) *projectState {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, ok := c.projects[absRoot]
	if !ok {
		ps = &projectState{}
		c.projects[absRoot] = ps
	}
	return ps
}

// GetOrBuild returns the current cache entry for the project, building it
// if the project changed since the last build or no usable cache exists.
// Concurrent callers for the same unchanged project share one build.
func (c *Coordinator) GetOrBuild(ctx context.Context, projectRoot, primaryContextPath string) (*Entry, error) {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, pherrors.New(pherrors.ErrCodeInvalidPath, "resolve project root", err)
	}

	fp, err := fingerprint.Project(absRoot, primaryContextPath, c.cfg.Excludes)
	if err != nil {
		return nil, err
	}

	ps := c.project(absRoot)

	// Fast path: the published entry is still current.
	if e := ps.current.Load(); e != nil && e.Fingerprint == fp {
		return e, nil
	}

	ps.buildMu.Lock()
	defer ps.buildMu.Unlock()

	// A concurrent caller may have finished while we waited.
	if e := ps.current.Load(); e != nil && e.Fingerprint == fp {
		return e, nil
	}

	paths := NewPaths(c.cfg.Cache.Dir, absRoot)

	if c.cfg.Cache.Enabled {
		if e := c.loadFromDisk(paths, absRoot, fp); e != nil {
			ps.current.Store(e)
			return e, nil
		}
	}

	entry, err := c.buildLocked(ctx, paths, absRoot, fp)
	if err != nil {
		return nil, err
	}
	ps.current.Store(entry)
	return entry, nil
}

// buildLocked performs the cross-process-locked build.
func (c *Coordinator) buildLocked(ctx context.Context, paths Paths, absRoot, fp string) (*Entry, error) {
	var memo *embed.DiskMemo
	if c.cfg.Cache.Enabled {
		lock, err := c.locks.Acquire(ctx, paths.BuildLock())
		if err != nil {
			return nil, err
		}
		defer func() { _ = lock.Release() }()

		// Another process may have completed the build while we contended.
		if e := c.loadFromDisk(paths, absRoot, fp); e != nil {
			return e, nil
		}

		if m, err := embed.NewDiskMemo(paths.EmbeddingMemo()); err == nil {
			memo = m
		}
	}

	result, err := c.build(ctx, absRoot, memo)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Fingerprint:      fp,
		Store:            result.Store,
		SOPSummaries:     result.SOPSummaries,
		ContextSummaries: result.ContextSummaries,
		BuiltAt:          time.Now().UTC(),
	}

	if c.cfg.Cache.Enabled {
		c.persist(paths, absRoot, fp, result)
	}
	return entry, nil
}

// persist writes all artifacts, metadata last. A failed data write skips
// metadata entirely, so a later reader never trusts a partial generation.
func (c *Coordinator) persist(paths Paths, absRoot, fp string, result *buildResult) {
	for _, file := range paths.DataFiles() {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			slog.Warn("cache directory creation failed",
				slog.String("path", file),
				slog.String("error", err.Error()))
			return
		}
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"vector store", func() error { return result.Store.Save(paths.VectorStore()) }},
		{"sop summaries", func() error { return result.SOPSummaries.Save(paths.SOPSummaries()) }},
		{"context summaries", func() error { return result.ContextSummaries.Save(paths.ContextSummaries()) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			slog.Warn("cache persist failed, serving in-memory build",
				slog.String("artifact", step.name),
				slog.String("error", err.Error()))
			return
		}
	}

	err := saveMetadata(paths.Metadata(), Metadata{
		ProjectPath:            absRoot,
		Fingerprint:            fp,
		VectorStoreFingerprint: result.Store.Fingerprint(),
		ModelVersion:           c.embedder.ModelVersion(),
		ProcedureFiles:         result.ProcedureFiles,
		ContextFiles:           result.ContextFiles,
		TotalChunks:            result.Store.Len(),
		IndexedAt:              time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("cache metadata write failed, serving in-memory build",
			slog.String("error", err.Error()))
	}
}

// loadFromDisk returns a usable persisted entry, or nil when none exists,
// the fingerprint or model changed, or any artifact fails validation.
// Corruption is logged and treated as a miss so the caller rebuilds.
func (c *Coordinator) loadFromDisk(paths Paths, absRoot, fp string) *Entry {
	meta, err := loadMetadata(paths.Metadata())
	if err != nil {
		slog.Warn("discarding corrupt cache metadata",
			slog.String("project", absRoot),
			slog.String("error", err.Error()))
		return nil
	}
	if meta == nil || meta.Fingerprint != fp || meta.ModelVersion != c.embedder.ModelVersion() {
		return nil
	}

	vs, err := store.Load(paths.VectorStore())
	if err != nil {
		slog.Warn("discarding unusable vector store",
			slog.String("project", absRoot),
			slog.String("error", err.Error()))
		return nil
	}
	if vs.Fingerprint() != meta.VectorStoreFingerprint {
		slog.Warn("discarding vector store from a different generation",
			slog.String("project", absRoot))
		return nil
	}
	sop, err := store.LoadSummaries(paths.SOPSummaries())
	if err != nil {
		slog.Warn("discarding unusable sop summaries",
			slog.String("project", absRoot),
			slog.String("error", err.Error()))
		return nil
	}
	ctxSummaries, err := store.LoadSummaries(paths.ContextSummaries())
	if err != nil {
		slog.Warn("discarding unusable context summaries",
			slog.String("project", absRoot),
			slog.String("error", err.Error()))
		return nil
	}

	return &Entry{
		Fingerprint:      fp,
		Store:            vs,
		SOPSummaries:     sop,
		ContextSummaries: ctxSummaries,
		BuiltAt:          meta.IndexedAt,
	}
}

// Invalidate drops the published in-memory entry for a project. The next
// GetOrBuild re-validates against disk and the live tree.
func (c *Coordinator) Invalidate(projectRoot string) {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return
	}
	c.project(absRoot).current.Store(nil)
}

// Current returns the published entry without building, or nil.
func (c *Coordinator) Current(projectRoot string) *Entry {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil
	}
	return c.project(absRoot).current.Load()
}
