package footnote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phasergun/phasergun/internal/chunk"
)

func TestAddChunk_SequentialIDsInFirstReferenceOrder(t *testing.T) {
	tr := NewTracker()

	first := tr.AddChunk(chunk.CategoryProcedure, "SOP-001.md", 0)
	second := tr.AddChunk(chunk.CategoryContext, "device.md", 2)
	third := tr.AddChunk(chunk.CategoryProcedure, "SOP-002.md", 1)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, 3, third)
}

func TestAddChunk_DuplicateReturnsExistingID(t *testing.T) {
	tr := NewTracker()

	first := tr.AddChunk(chunk.CategoryProcedure, "SOP-001.md", 0)
	again := tr.AddChunk(chunk.CategoryProcedure, "SOP-001.md", 0)

	assert.Equal(t, first, again)
	assert.Equal(t, 1, tr.Len())
}

func TestAddChunk_SameFileDifferentChunksAreDistinct(t *testing.T) {
	tr := NewTracker()

	a := tr.AddChunk(chunk.CategoryProcedure, "SOP-001.md", 0)
	b := tr.AddChunk(chunk.CategoryProcedure, "SOP-001.md", 1)

	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, tr.Len())
}

func TestAddChunk_CategoryDisambiguatesSameFileName(t *testing.T) {
	// A procedure and a context file can share a base name.
	tr := NewTracker()

	a := tr.AddChunk(chunk.CategoryProcedure, "overview.md", 0)
	b := tr.AddChunk(chunk.CategoryContext, "overview.md", 0)

	assert.NotEqual(t, a, b)
}

func TestAddStandard_DedupesByName(t *testing.T) {
	tr := NewTracker()

	a := tr.AddStandard("ISO 13485", "Medical devices quality management systems")
	b := tr.AddStandard("ISO 13485", "Medical devices quality management systems")
	c := tr.AddStandard("ISO 14971", "Application of risk management to medical devices")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 2, tr.Len())
}

func TestRender_FormatsAllKinds(t *testing.T) {
	tr := NewTracker()
	tr.AddChunk(chunk.CategoryProcedure, "SOP-001.md", 2)
	tr.AddChunk(chunk.CategoryContext, "predicate.md", 0)
	tr.AddStandard("IEC 62304", "Medical device software life cycle processes")

	out := tr.Render()

	assert.Contains(t, out, "## Sources")
	assert.Contains(t, out, "[1] Procedure: SOP-001.md (Section 2)")
	assert.Contains(t, out, "[2] Context: predicate.md (Section 0)")
	assert.Contains(t, out, "[3] Regulatory Standard: IEC 62304 — Medical device software life cycle processes")
}

func TestRender_EmptyTrackerRendersNothing(t *testing.T) {
	assert.Empty(t, NewTracker().Render())
}

func TestReset_ClearsAndRestartsNumbering(t *testing.T) {
	tr := NewTracker()
	tr.AddChunk(chunk.CategoryProcedure, "SOP-001.md", 0)
	require.Equal(t, 1, tr.Len())

	tr.Reset()

	assert.Zero(t, tr.Len())
	assert.Equal(t, 1, tr.AddChunk(chunk.CategoryContext, "device.md", 0))
}

func TestFootnotes_DenseIDs(t *testing.T) {
	tr := NewTracker()
	tr.AddChunk(chunk.CategoryProcedure, "a.md", 0)
	tr.AddChunk(chunk.CategoryProcedure, "a.md", 0) // duplicate
	tr.AddChunk(chunk.CategoryProcedure, "b.md", 0)
	tr.AddStandard("EU MDR", "Regulation (EU) 2017/745")

	notes := tr.Footnotes()
	require.Len(t, notes, 3)
	for i, fn := range notes {
		assert.Equal(t, i+1, fn.ID, "IDs must be dense with no gaps")
	}
}
