package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phasergun/phasergun/internal/chunk"
	"github.com/phasergun/phasergun/internal/embed"
)

// axisVector returns a unit vector along one dimension.
func axisVector(dim int) []float32 {
	v := make([]float32, embed.Dimensions)
	v[dim] = 1
	return v
}

func testEntry(id string, dim int, category chunk.Category) Entry {
	return Entry{
		ID:        id,
		Embedding: axisVector(dim),
		Metadata: EntryMetadata{
			FileName:    fmt.Sprintf("%s.md", id),
			FilePath:    fmt.Sprintf("/p/%s.md", id),
			Category:    category,
			Content:     "content of " + id,
			ContentHash: chunk.ContentHash("content of " + id),
		},
	}
}

func TestSearch_RanksByDotProduct(t *testing.T) {
	// Given: entries along different axes
	s := New("/p", "hash-v1")
	s.Add(testEntry("aaa", 0, chunk.CategoryProcedure))
	s.Add(testEntry("bbb", 1, chunk.CategoryProcedure))
	s.Add(testEntry("ccc", 2, chunk.CategoryProcedure))

	// When: querying closest to axis 1
	query := make([]float32, embed.Dimensions)
	query[1] = 0.9
	query[0] = 0.1
	results := s.Search(query, 2, chunk.CategoryProcedure)

	// Then: the axis-1 entry ranks first
	require.Len(t, results, 2)
	assert.Equal(t, "bbb", results[0].Entry.ID)
	assert.Equal(t, "aaa", results[1].Entry.ID)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestSearch_TiesBreakBySmallerID(t *testing.T) {
	// Given: two entries with identical embeddings
	s := New("/p", "hash-v1")
	s.Add(testEntry("zzz", 3, chunk.CategoryProcedure))
	s.Add(testEntry("mmm", 3, chunk.CategoryProcedure))

	results := s.Search(axisVector(3), 2, chunk.CategoryProcedure)

	// Then: the byte-smaller ID wins the tie regardless of insertion order
	require.Len(t, results, 2)
	assert.Equal(t, "mmm", results[0].Entry.ID)
	assert.Equal(t, "zzz", results[1].Entry.ID)
}

func TestSearch_CategoryFilter(t *testing.T) {
	s := New("/p", "hash-v1")
	s.Add(testEntry("proc", 0, chunk.CategoryProcedure))
	s.Add(testEntry("ctx", 0, chunk.CategoryContext))

	results := s.Search(axisVector(0), 10, chunk.CategoryContext)

	require.Len(t, results, 1)
	assert.Equal(t, "ctx", results[0].Entry.ID)
}

func TestSearch_TopKBoundsAndBadQuery(t *testing.T) {
	s := New("/p", "hash-v1")
	s.Add(testEntry("a", 0, chunk.CategoryProcedure))
	s.Add(testEntry("b", 1, chunk.CategoryProcedure))

	assert.Len(t, s.Search(axisVector(0), 1, ""), 1)
	assert.Len(t, s.Search(axisVector(0), 10, ""), 2)
	assert.Nil(t, s.Search(axisVector(0), 0, ""))
	assert.Nil(t, s.Search([]float32{1, 2, 3}, 5, ""), "wrong-width query returns nothing")
}

func TestEntries_PreserveInsertionOrder(t *testing.T) {
	s := New("/p", "hash-v1")
	ids := []string{"delta", "alpha", "omega"}
	for i, id := range ids {
		s.Add(testEntry(id, i, chunk.CategoryProcedure))
	}

	for i, e := range s.Entries() {
		assert.Equal(t, ids[i], e.ID)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	// Given: a populated store saved to disk
	path := filepath.Join(t.TempDir(), "store.json")
	s := New("/projects/acme", "hash-v1")
	s.Add(testEntry("aaa", 0, chunk.CategoryProcedure))
	s.Add(testEntry("bbb", 1, chunk.CategoryContext))
	require.NoError(t, s.Save(path))

	// When: loading it back
	loaded, err := Load(path)

	// Then: entries, order, and fingerprint survive
	require.NoError(t, err)
	assert.Equal(t, s.Fingerprint(), loaded.Fingerprint())
	require.Equal(t, 2, loaded.Len())
	assert.Equal(t, "aaa", loaded.Entries()[0].ID)
	assert.Equal(t, "bbb", loaded.Entries()[1].ID)
	assert.Equal(t, "hash-v1", loaded.ModelVersion())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoad_CorruptJSONIsCacheCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, writeFile(path, "{not json"))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_TamperedEntriesFailFingerprint(t *testing.T) {
	// Given: a saved store whose content is then modified on disk
	path := filepath.Join(t.TempDir(), "store.json")
	s := New("/p", "hash-v1")
	s.Add(testEntry("aaa", 0, chunk.CategoryProcedure))
	require.NoError(t, s.Save(path))

	data, err := readFile(path)
	require.NoError(t, err)
	oldHash := chunk.ContentHash("content of aaa")
	newHash := chunk.ContentHash("something else entirely")
	tampered := strings.Replace(data, oldHash, newHash, 1)
	require.NotEqual(t, data, tampered)
	require.NoError(t, writeFile(path, tampered))

	// Then: loading detects the mismatch
	_, err = Load(path)
	assert.Error(t, err)
}

func TestFingerprint_Deterministic(t *testing.T) {
	build := func() *VectorStore {
		s := New("/p", "hash-v1")
		s.Add(testEntry("aaa", 0, chunk.CategoryProcedure))
		s.Add(testEntry("bbb", 1, chunk.CategoryContext))
		return s
	}

	assert.Equal(t, build().Fingerprint(), build().Fingerprint())
}

func TestFingerprint_SensitiveToOrderAndModel(t *testing.T) {
	forward := New("/p", "hash-v1")
	forward.Add(testEntry("aaa", 0, chunk.CategoryProcedure))
	forward.Add(testEntry("bbb", 1, chunk.CategoryProcedure))

	reversed := New("/p", "hash-v1")
	reversed.Add(testEntry("bbb", 1, chunk.CategoryProcedure))
	reversed.Add(testEntry("aaa", 0, chunk.CategoryProcedure))

	otherModel := New("/p", "hash-v2")
	otherModel.Add(testEntry("aaa", 0, chunk.CategoryProcedure))
	otherModel.Add(testEntry("bbb", 1, chunk.CategoryProcedure))

	assert.NotEqual(t, forward.Fingerprint(), reversed.Fingerprint())
	assert.NotEqual(t, forward.Fingerprint(), otherModel.Fingerprint())
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

func TestSummarize_TruncatesAndCollapsesWhitespace(t *testing.T) {
	long := strings.Repeat("word ", 300)
	summary := Summarize(long)

	assert.Len(t, strings.Fields(summary), 250)
	assert.NotContains(t, summary, "  ")

	short := Summarize("Purpose:\n\tdefine   design controls")
	assert.Equal(t, "Purpose: define design controls", short)
}

func TestSummaryStore_RoundTripAndOrdering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summaries.json")
	s := NewSummaryStore()
	s.Put("zeta.md", "h1", "last alphabetically")
	s.Put("alpha.md", "h2", "first alphabetically")
	require.NoError(t, s.Save(path))

	loaded, err := LoadSummaries(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha.md", "zeta.md"}, loaded.FileNames())
	entry, ok := loaded.Get("alpha.md")
	require.True(t, ok)
	assert.Equal(t, "first alphabetically", entry.Summary)
	assert.Equal(t, "h2", entry.Hash)
}
