// Package store holds the embedded chunks of one project and answers
// similarity queries over them. The store is insertion-ordered and its
// search is exact and fully deterministic, so identical inputs produce
// byte-identical results across processes.
package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/natefinch/atomic"

	"github.com/phasergun/phasergun/internal/chunk"
	"github.com/phasergun/phasergun/internal/embed"
	pherrors "github.com/phasergun/phasergun/internal/errors"
)

// similarityEpsilon is the window inside which two scores count as tied;
// ties resolve to the byte-lexicographically smaller entry ID.
const similarityEpsilon = 1e-10

// EntryMetadata carries everything needed to present a retrieved chunk.
type EntryMetadata struct {
	FileName        string                `json:"fileName"`
	FilePath        string                `json:"filePath"`
	Category        chunk.Category        `json:"category"`
	ChunkIndex      int                   `json:"chunkIndex"`
	Content         string                `json:"content"`
	ContentHash     string                `json:"contentHash"`
	ContextCategory chunk.ContextCategory `json:"contextCategory,omitempty"`
}

// Entry is one embedded chunk.
type Entry struct {
	ID        string        `json:"id"`
	Embedding []float32     `json:"embedding"`
	Metadata  EntryMetadata `json:"metadata"`
}

// SearchResult pairs an entry with its similarity to the query.
type SearchResult struct {
	Entry      Entry
	Similarity float64
}

// VectorStore is the in-memory vector index for one project.
type VectorStore struct {
	projectPath  string
	modelVersion string
	entries      []Entry
	createdAt    time.Time
	updatedAt    time.Time
}

// New creates an empty store for the given project root.
func New(projectPath, modelVersion string) *VectorStore {
	now := time.Now().UTC()
	return &VectorStore{
		projectPath:  projectPath,
		modelVersion: modelVersion,
		createdAt:    now,
		updatedAt:    now,
	}
}

// Add appends one entry, preserving insertion order.
func (s *VectorStore) Add(e Entry) {
	s.entries = append(s.entries, e)
	s.updatedAt = time.Now().UTC()
}

// AddChunk appends a chunk with its embedding.
func (s *VectorStore) AddChunk(c chunk.Chunk, embedding []float32) {
	s.Add(Entry{
		ID:        c.ID,
		Embedding: embedding,
		Metadata: EntryMetadata{
			FileName:        c.FileName,
			FilePath:        c.SourcePath,
			Category:        c.Category,
			ChunkIndex:      c.Index,
			Content:         c.Text,
			ContentHash:     c.ContentHash,
			ContextCategory: c.ContextCategory,
		},
	})
}

// Len returns the number of entries.
func (s *VectorStore) Len() int {
	return len(s.entries)
}

// Entries returns the entries in insertion order.
func (s *VectorStore) Entries() []Entry {
	return s.entries
}

// ModelVersion returns the embedding scheme the store was built with.
func (s *VectorStore) ModelVersion() string {
	return s.modelVersion
}

// Search returns the topK most similar entries in the given category,
// most similar first. Vectors are unit length, so similarity is the dot
// product. An empty category matches all entries.
func (s *VectorStore) Search(query []float32, topK int, category chunk.Category) []SearchResult {
	if topK <= 0 || len(query) != embed.Dimensions {
		return nil
	}

	results := make([]SearchResult, 0, len(s.entries))
	for _, e := range s.entries {
		if category != "" && e.Metadata.Category != category {
			continue
		}
		results = append(results, SearchResult{Entry: e, Similarity: dotProduct(query, e.Embedding)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		di := results[i].Similarity - results[j].Similarity
		if di > similarityEpsilon {
			return true
		}
		if di < -similarityEpsilon {
			return false
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

func dotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Fingerprint digests the content hashes of all entries in insertion order
// together with the model version. Equal fingerprints imply equal stores.
func (s *VectorStore) Fingerprint() string {
	h := sha256.New()
	for _, e := range s.entries {
		h.Write([]byte(e.Metadata.ContentHash))
		h.Write([]byte{0})
	}
	h.Write([]byte(s.modelVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// storeFile is the on-disk envelope.
type storeFile struct {
	ProjectPath  string    `json:"projectPath"`
	Entries      []Entry   `json:"entries"`
	Fingerprint  string    `json:"fingerprint"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	ModelVersion string    `json:"modelVersion"`
	TotalEntries int       `json:"totalEntries"`
}

// Save writes the store atomically to path.
func (s *VectorStore) Save(path string) error {
	envelope := storeFile{
		ProjectPath:  s.projectPath,
		Entries:      s.entries,
		Fingerprint:  s.Fingerprint(),
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
		ModelVersion: s.modelVersion,
		TotalEntries: len(s.entries),
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return pherrors.IOError(fmt.Sprintf("encode vector store for %s", s.projectPath), err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return pherrors.New(pherrors.ErrCodeWriteFailed, fmt.Sprintf("write vector store %s", path), err)
	}
	return nil
}

// Load reads a store from path, validating internal consistency. A store
// that fails validation returns a cache-corruption error so callers can
// rebuild instead of serving bad results.
func Load(path string) (*VectorStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pherrors.New(pherrors.ErrCodeFileNotFound, fmt.Sprintf("vector store %s", path), err)
		}
		return nil, pherrors.IOError(fmt.Sprintf("read vector store %s", path), err)
	}

	var envelope storeFile
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, pherrors.CacheCorrupt(fmt.Sprintf("decode vector store %s", path), err)
	}
	if envelope.TotalEntries != len(envelope.Entries) {
		return nil, pherrors.CacheCorrupt(
			fmt.Sprintf("vector store %s entry count mismatch: header %d, actual %d",
				path, envelope.TotalEntries, len(envelope.Entries)), nil)
	}
	for i, e := range envelope.Entries {
		if len(e.Embedding) != embed.Dimensions {
			return nil, pherrors.CacheCorrupt(
				fmt.Sprintf("vector store %s entry %d has %d dimensions, want %d",
					path, i, len(e.Embedding), embed.Dimensions), nil)
		}
	}

	s := &VectorStore{
		projectPath:  envelope.ProjectPath,
		modelVersion: envelope.ModelVersion,
		entries:      envelope.Entries,
		createdAt:    envelope.CreatedAt,
		updatedAt:    envelope.UpdatedAt,
	}
	if envelope.Fingerprint != s.Fingerprint() {
		return nil, pherrors.CacheCorrupt(fmt.Sprintf("vector store %s fingerprint mismatch", path), nil)
	}
	return s, nil
}
