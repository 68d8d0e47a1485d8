// Package cache coordinates building, persisting, and reusing the per-project
// retrieval stores. Builds are guarded in-process by a per-project mutex and
// cross-process by a file lock; readers always see either a complete
// published build or none at all.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
)

// Cache subdirectories, one namespace per artifact kind.
const (
	vectorStoreDir      = "vector-store"
	sopSummariesDir     = "sop-summaries"
	contextSummariesDir = "context-summaries"
	metadataDir         = "metadata"
	locksDir            = "locks"
)

// ProjectHash derives the short directory key for a project root. MD5 is
// used only as a path partitioner, never for integrity.
func ProjectHash(absProjectRoot string) string {
	sum := md5.Sum([]byte(absProjectRoot))
	return hex.EncodeToString(sum[:])[:8]
}

// Paths resolves the on-disk locations of one project's cache artifacts.
type Paths struct {
	baseDir     string
	projectHash string
}

// NewPaths creates the path resolver for a project under baseDir.
func NewPaths(baseDir, absProjectRoot string) Paths {
	return Paths{baseDir: baseDir, projectHash: ProjectHash(absProjectRoot)}
}

// ProjectHash returns the project's short directory key.
func (p Paths) ProjectHash() string {
	return p.projectHash
}

// VectorStore is the embedded-chunk index file.
func (p Paths) VectorStore() string {
	return filepath.Join(p.baseDir, vectorStoreDir, p.projectHash, "vector-store.json")
}

// SOPSummaries is the procedure summary file.
func (p Paths) SOPSummaries() string {
	return filepath.Join(p.baseDir, sopSummariesDir, p.projectHash, "sop-summaries.json")
}

// ContextSummaries is the context-document summary file.
func (p Paths) ContextSummaries() string {
	return filepath.Join(p.baseDir, contextSummariesDir, p.projectHash, "context-summaries.json")
}

// Metadata is the build manifest, written last so its presence marks a
// complete cache generation.
func (p Paths) Metadata() string {
	return filepath.Join(p.baseDir, metadataDir, p.projectHash, "cache-metadata.json")
}

// BuildLock is the cross-process build lock file.
func (p Paths) BuildLock() string {
	return filepath.Join(p.baseDir, locksDir, p.projectHash, "cache-build.lock")
}

// EmbeddingMemo is the directory for persisted chunk embeddings.
func (p Paths) EmbeddingMemo() string {
	return filepath.Join(p.baseDir, "embeddings", p.projectHash)
}

// DataFiles lists the artifact files in write order, metadata last.
func (p Paths) DataFiles() []string {
	return []string{p.VectorStore(), p.SOPSummaries(), p.ContextSummaries(), p.Metadata()}
}
