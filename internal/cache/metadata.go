package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/natefinch/atomic"

	pherrors "github.com/phasergun/phasergun/internal/errors"
)

// Metadata is the manifest of one completed cache build. It is written
// after every data file, so loading valid metadata guarantees the data
// files of the same generation exist.
type Metadata struct {
	ProjectPath            string    `json:"projectPath"`
	Fingerprint            string    `json:"fingerprint"`
	VectorStoreFingerprint string    `json:"vectorStoreFingerprint"`
	ModelVersion           string    `json:"modelVersion"`
	ProcedureFiles         int       `json:"procedureFiles"`
	ContextFiles           int       `json:"contextFiles"`
	TotalChunks            int       `json:"totalChunks"`
	IndexedAt              time.Time `json:"indexedAt"`
}

// saveMetadata writes the manifest atomically.
func saveMetadata(path string, m Metadata) error {
	data, err := json.Marshal(m)
	if err != nil {
		return pherrors.IOError(fmt.Sprintf("encode cache metadata %s", path), err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return pherrors.New(pherrors.ErrCodeWriteFailed, fmt.Sprintf("write cache metadata %s", path), err)
	}
	return nil
}

// LoadMetadata reads a build manifest for inspection. A missing file
// returns (nil, nil); malformed metadata is a corruption error.
func LoadMetadata(path string) (*Metadata, error) {
	return loadMetadata(path)
}

// loadMetadata reads the manifest. A missing file returns (nil, nil);
// unreadable or malformed metadata is a corruption error.
func loadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, pherrors.IOError(fmt.Sprintf("read cache metadata %s", path), err)
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, pherrors.CacheCorrupt(fmt.Sprintf("decode cache metadata %s", path), err)
	}
	if m.Fingerprint == "" || m.ModelVersion == "" {
		return nil, pherrors.CacheCorrupt(fmt.Sprintf("cache metadata %s missing required fields", path), nil)
	}
	return &m, nil
}
