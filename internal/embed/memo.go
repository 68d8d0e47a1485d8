package embed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	pherrors "github.com/phasergun/phasergun/internal/errors"
)

// DiskMemo persists chunk embeddings so unchanged chunks survive in-memory
// cache eviction and process restarts. Entries are keyed by relative path,
// content hash, and model version, so edits and scheme changes miss cleanly.
type DiskMemo struct {
	dir string
}

// NewDiskMemo creates a memo rooted at dir, creating it if needed.
func NewDiskMemo(dir string) (*DiskMemo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pherrors.IOError(fmt.Sprintf("create embedding memo dir %s", dir), err)
	}
	return &DiskMemo{dir: dir}, nil
}

type memoEntry struct {
	ModelVersion string    `json:"modelVersion"`
	Vector       []float32 `json:"vector"`
}

// Key derives the memo key for one chunk.
func (m *DiskMemo) Key(relPath, contentHash, modelVersion string) string {
	sum := sha256.Sum256([]byte(relPath + "\x00" + contentHash + "\x00" + modelVersion))
	return hex.EncodeToString(sum[:])
}

func (m *DiskMemo) path(key string) string {
	return filepath.Join(m.dir, key+".json")
}

// Get returns the memoized vector, or (nil, false) on any miss. Unreadable
// or malformed entries count as misses; the caller recomputes.
func (m *DiskMemo) Get(key, modelVersion string) ([]float32, bool) {
	data, err := os.ReadFile(m.path(key))
	if err != nil {
		return nil, false
	}

	var entry memoEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Debug("discarding corrupt embedding memo entry",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil, false
	}
	if entry.ModelVersion != modelVersion || len(entry.Vector) != Dimensions {
		return nil, false
	}
	return entry.Vector, true
}

// Put stores a vector atomically. Write failures are logged and swallowed:
// the memo is an optimization, not a correctness dependency.
func (m *DiskMemo) Put(ctx context.Context, key, modelVersion string, vector []float32) {
	if err := ctx.Err(); err != nil {
		return
	}

	data, err := json.Marshal(memoEntry{ModelVersion: modelVersion, Vector: vector})
	if err != nil {
		return
	}
	if err := atomic.WriteFile(m.path(key), bytes.NewReader(data)); err != nil {
		slog.Warn("embedding memo write failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}
