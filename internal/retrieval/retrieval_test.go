package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phasergun/phasergun/internal/cache"
	"github.com/phasergun/phasergun/internal/chunk"
	"github.com/phasergun/phasergun/internal/config"
	"github.com/phasergun/phasergun/internal/embed"
	"github.com/phasergun/phasergun/internal/parser"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newRetriever(t *testing.T) *Retriever {
	t.Helper()
	cfg := config.Default()
	cfg.Cache.Dir = filepath.Join(t.TempDir(), "phasergun-cache")
	embedder := embed.NewCachedEmbedder(embed.NewHashEmbedder(), 100)
	coordinator := cache.NewCoordinator(cfg, embedder, parser.NewRegistry())
	return New(coordinator, embedder)
}

func defaultOpts() Options {
	return DefaultOptions(config.Default())
}

func TestRetrieve_EmptyProjectStillProducesTask(t *testing.T) {
	// Given: a project with empty subtrees
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Procedures"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Context"), 0o755))

	// When: retrieving
	result, err := newRetriever(t).Retrieve(context.Background(), root, "", "draft the verification plan", defaultOpts())

	// Then: the envelope is just the delimited task
	require.NoError(t, err)
	assert.Empty(t, result.Procedures)
	assert.Empty(t, result.Context)
	assert.Empty(t, result.Sources)

	contextPart, task := SplitTask(result.AssembledContext)
	assert.Empty(t, contextPart)
	assert.Equal(t, "draft the verification plan", task)
}

func TestRetrieve_FindsMatchingProcedure(t *testing.T) {
	// Given: two procedures, one about design verification
	root := t.TempDir()
	writeFile(t, root, "Procedures/SOP-DV.md",
		"# Design Verification\n\nVerification protocols confirm design outputs meet design inputs.")
	writeFile(t, root, "Procedures/SOP-PUR.md",
		"# Purchasing Controls\n\nSuppliers are evaluated and monitored for quality.")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Context"), 0o755))

	opts := defaultOpts()
	opts.TopKProcedures = 1
	result, err := newRetriever(t).Retrieve(context.Background(), root,
		"", "write the design verification protocol for design outputs", opts)

	// Then: the verification SOP is the retrieved chunk
	require.NoError(t, err)
	require.Len(t, result.Procedures, 1)
	assert.Equal(t, "SOP-DV.md", result.Procedures[0].Entry.Metadata.FileName)
	assert.Contains(t, result.AssembledContext, "[SOP-DV.md (Section 0)]")
	require.Len(t, result.Sources, 1)
	assert.Equal(t, chunk.CategoryProcedure, result.Sources[0].Category)
}

func TestRetrieve_EnvelopeSectionsInOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Procedures/SOP-001.md", "# Design Control\n\nDesign inputs are reviewed.")
	writeFile(t, root, "Context/General/device.md", "The device is an infusion pump.")
	writeFile(t, root, "ROLE.md", "You are a regulatory affairs writer.")

	result, err := newRetriever(t).Retrieve(context.Background(), root,
		filepath.Join(root, "ROLE.md"), "describe design input review", defaultOpts())
	require.NoError(t, err)

	text := result.AssembledContext
	positions := []int{
		strings.Index(text, "ROLE & BEHAVIORAL INSTRUCTIONS"),
		strings.Index(text, "COMPANY PROCEDURES OVERVIEW"),
		strings.Index(text, "PROJECT CONTEXT OVERVIEW"),
		strings.Index(text, "RELEVANT PROCEDURE EXCERPTS"),
		strings.Index(text, "RELEVANT CONTEXT EXCERPTS"),
		strings.Index(text, TaskDelimiter),
	}
	for i, pos := range positions {
		require.GreaterOrEqual(t, pos, 0, "section %d missing", i)
		if i > 0 {
			assert.Greater(t, pos, positions[i-1], "section %d out of order", i)
		}
	}
	assert.Contains(t, text, "You are a regulatory affairs writer.")
	assert.True(t, strings.HasSuffix(text, "describe design input review"))
}

func TestRetrieve_SummariesCanBeDisabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Procedures/SOP-001.md", "# Design Control\n\nDesign inputs are reviewed.")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Context"), 0o755))

	opts := defaultOpts()
	opts.IncludeSummaries = false
	result, err := newRetriever(t).Retrieve(context.Background(), root, "", "design inputs", opts)
	require.NoError(t, err)

	assert.NotContains(t, result.AssembledContext, "COMPANY PROCEDURES OVERVIEW")
	assert.NotContains(t, result.AssembledContext, "PROJECT CONTEXT OVERVIEW")
}

func TestRetrieve_TokenBudgetDropsContextExcerptsFirst(t *testing.T) {
	// Given: a project whose excerpts overflow a tiny budget
	root := t.TempDir()
	writeFile(t, root, "Procedures/SOP-001.md",
		"# Design Control\n\n"+strings.Repeat("procedure detail. ", 100))
	writeFile(t, root, "Context/General/device.md",
		strings.Repeat("device background. ", 100))

	opts := defaultOpts()
	opts.IncludeSummaries = false
	opts.MaxTokens = 600
	result, err := newRetriever(t).Retrieve(context.Background(), root, "", "design control detail", opts)
	require.NoError(t, err)

	// Then: context excerpts are sacrificed before procedure excerpts
	assert.NotEmpty(t, result.Procedures)
	assert.Empty(t, result.Context)
	assert.LessOrEqual(t, result.EstimatedTokens, opts.MaxTokens)
	_, task := SplitTask(result.AssembledContext)
	assert.Equal(t, "design control detail", task, "the task survives any budget")
}

func TestRetrieve_TaskAlwaysSurvivesBudget(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Procedures/SOP-001.md",
		"# Design Control\n\n"+strings.Repeat("procedure detail. ", 200))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Context"), 0o755))

	opts := defaultOpts()
	opts.IncludeSummaries = false
	opts.MaxTokens = 10
	result, err := newRetriever(t).Retrieve(context.Background(), root, "", "tiny budget task", opts)
	require.NoError(t, err)

	assert.Empty(t, result.Procedures)
	assert.Empty(t, result.Context)
	_, task := SplitTask(result.AssembledContext)
	assert.Equal(t, "tiny budget task", task)
}

func TestRetrieve_ExcerptsInDocumentOrder(t *testing.T) {
	root := t.TempDir()
	var sb strings.Builder
	for i := 1; i <= 3; i++ {
		sb.WriteString("## Part ")
		sb.WriteString(strings.Repeat("I", i))
		sb.WriteString("\n\n")
		sb.WriteString(strings.Repeat("design verification content. ", 100))
		sb.WriteString("\n\n")
	}
	writeFile(t, root, "Procedures/SOP-001.md", sb.String())
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Context"), 0o755))

	opts := defaultOpts()
	opts.TopKProcedures = 3
	result, err := newRetriever(t).Retrieve(context.Background(), root, "", "design verification content", opts)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(result.Procedures), 2)
	for i := 1; i < len(result.Procedures); i++ {
		prev := result.Procedures[i-1].Entry.Metadata
		cur := result.Procedures[i].Entry.Metadata
		if prev.FileName == cur.FileName {
			assert.Less(t, prev.ChunkIndex, cur.ChunkIndex, "chunks of a file appear in index order")
		}
	}
}

func TestSplitTask(t *testing.T) {
	contextPart, task := SplitTask("before\n\n" + TaskDelimiter + "\n\nafter")
	assert.Equal(t, "before", contextPart)
	assert.Equal(t, "after", task)

	contextPart, task = SplitTask("no delimiter here")
	assert.Empty(t, contextPart)
	assert.Equal(t, "no delimiter here", task)
}
