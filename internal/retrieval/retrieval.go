// Package retrieval turns a task prompt into an assembled context envelope:
// role instructions, document overviews, the most similar procedure and
// context excerpts, and finally the task itself behind a fixed delimiter.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/phasergun/phasergun/internal/cache"
	"github.com/phasergun/phasergun/internal/chunk"
	"github.com/phasergun/phasergun/internal/config"
	"github.com/phasergun/phasergun/internal/embed"
	"github.com/phasergun/phasergun/internal/store"
)

// TaskDelimiter separates assembled context from the task prompt. Consumers
// split on it to recover the original prompt.
const TaskDelimiter = "=== TASK ==="

// Section headers of the assembled envelope, in order.
const (
	sectionRole              = "ROLE & BEHAVIORAL INSTRUCTIONS"
	sectionProcedureOverview = "COMPANY PROCEDURES OVERVIEW"
	sectionContextOverview   = "PROJECT CONTEXT OVERVIEW"
	sectionProcedureExcerpts = "RELEVANT PROCEDURE EXCERPTS"
	sectionContextExcerpts   = "RELEVANT CONTEXT EXCERPTS"
)

// charsPerToken is the approximation used for the context budget.
const charsPerToken = 4

// Options controls one retrieval.
type Options struct {
	// TopKProcedures is the number of procedure chunks retrieved; 0 skips
	// procedure retrieval.
	TopKProcedures int

	// TopKContext is the number of context chunks retrieved; 0 skips
	// context retrieval.
	TopKContext int

	// IncludeSummaries adds the overview sections.
	IncludeSummaries bool

	// MaxTokens caps the assembled envelope.
	MaxTokens int
}

// DefaultOptions derives retrieval options from configuration.
func DefaultOptions(cfg config.Config) Options {
	return Options{
		TopKProcedures:   cfg.Retrieval.TopKProcedures,
		TopKContext:      cfg.Retrieval.TopKContext,
		IncludeSummaries: cfg.Retrieval.IncludeSummaries,
		MaxTokens:        cfg.Retrieval.MaxTokens,
	}
}

// Source identifies one retrieved chunk for citation.
type Source struct {
	Category   chunk.Category
	FileName   string
	ChunkIndex int
}

// Result is one completed retrieval.
type Result struct {
	// AssembledContext is the full envelope, task included.
	AssembledContext string

	// Procedures and Context are the retrieved chunks in presentation
	// order (file name, then chunk index).
	Procedures []store.SearchResult
	Context    []store.SearchResult

	// Sources lists the cited chunks in presentation order, procedures
	// first.
	Sources []Source

	// EstimatedTokens is the envelope size under the token heuristic.
	EstimatedTokens int
}

// Retriever answers prompts against a project's cache entry.
type Retriever struct {
	coordinator *cache.Coordinator
	embedder    embed.Embedder
}

// New creates a retriever. The embedder must match the one the coordinator
// builds stores with, or queries will land in a different vector space.
func New(coordinator *cache.Coordinator, embedder embed.Embedder) *Retriever {
	return &Retriever{coordinator: coordinator, embedder: embedder}
}

// Retrieve builds or reuses the project cache, searches both categories,
// and assembles the context envelope around the prompt.
func (r *Retriever) Retrieve(ctx context.Context, projectRoot, primaryContextPath, prompt string, opts Options) (*Result, error) {
	entry, err := r.coordinator.GetOrBuild(ctx, projectRoot, primaryContextPath)
	if err != nil {
		return nil, err
	}

	query, err := r.embedder.Embed(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var procResults, ctxResults []store.SearchResult
	if opts.TopKProcedures > 0 {
		procResults = entry.Store.Search(query, opts.TopKProcedures, chunk.CategoryProcedure)
	}
	if opts.TopKContext > 0 {
		ctxResults = entry.Store.Search(query, opts.TopKContext, chunk.CategoryContext)
	}

	// Excerpts read best in document order, not similarity order.
	sortForPresentation(procResults)
	sortForPresentation(ctxResults)

	role := loadPrimaryText(primaryContextPath)

	assembled, kept := assemble(assembleInput{
		role:        role,
		entry:       entry,
		procResults: procResults,
		ctxResults:  ctxResults,
		prompt:      prompt,
		includeSums: opts.IncludeSummaries,
		maxTokens:   opts.MaxTokens,
	})

	result := &Result{
		AssembledContext: assembled,
		Procedures:       kept.procs,
		Context:          kept.ctxs,
		EstimatedTokens:  estimateTokens(assembled),
	}
	for _, sr := range kept.procs {
		result.Sources = append(result.Sources, Source{
			Category:   chunk.CategoryProcedure,
			FileName:   sr.Entry.Metadata.FileName,
			ChunkIndex: sr.Entry.Metadata.ChunkIndex,
		})
	}
	for _, sr := range kept.ctxs {
		result.Sources = append(result.Sources, Source{
			Category:   chunk.CategoryContext,
			FileName:   sr.Entry.Metadata.FileName,
			ChunkIndex: sr.Entry.Metadata.ChunkIndex,
		})
	}

	slog.Debug("retrieval complete",
		slog.String("project", projectRoot),
		slog.Int("procedureChunks", len(kept.procs)),
		slog.Int("contextChunks", len(kept.ctxs)),
		slog.Int("estimatedTokens", result.EstimatedTokens))

	return result, nil
}

// sortForPresentation orders results by file name, then chunk index.
func sortForPresentation(results []store.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Entry.Metadata, results[j].Entry.Metadata
		if a.FileName != b.FileName {
			return a.FileName < b.FileName
		}
		return a.ChunkIndex < b.ChunkIndex
	})
}

// loadPrimaryText reads the primary context document; a missing or
// unreadable document is simply absent.
func loadPrimaryText(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

type assembleInput struct {
	role        string
	entry       *cache.Entry
	procResults []store.SearchResult
	ctxResults  []store.SearchResult
	prompt      string
	includeSums bool
	maxTokens   int
}

type keptResults struct {
	procs []store.SearchResult
	ctxs  []store.SearchResult
}

// assemble renders the envelope, dropping excerpts from the bottom up until
// it fits the token budget: context excerpts go first, then procedure
// excerpts. Role, overviews, and the task are never dropped.
func assemble(in assembleInput) (string, keptResults) {
	kept := keptResults{procs: in.procResults, ctxs: in.ctxResults}

	for {
		envelope := render(in, kept)
		if estimateTokens(envelope) <= in.maxTokens {
			return envelope, kept
		}
		if len(kept.ctxs) > 0 {
			kept.ctxs = kept.ctxs[:len(kept.ctxs)-1]
			continue
		}
		if len(kept.procs) > 0 {
			kept.procs = kept.procs[:len(kept.procs)-1]
			continue
		}
		// Nothing left to drop; the fixed tiers exceed the budget.
		slog.Warn("assembled context exceeds token budget after dropping all excerpts",
			slog.Int("estimatedTokens", estimateTokens(envelope)),
			slog.Int("maxTokens", in.maxTokens))
		return envelope, kept
	}
}

// render produces the envelope text for the kept excerpt set.
func render(in assembleInput, kept keptResults) string {
	var sb strings.Builder

	section := func(header string) {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("## ")
		sb.WriteString(header)
		sb.WriteString("\n\n")
	}

	if in.role != "" {
		section(sectionRole)
		sb.WriteString(in.role)
	}

	if in.includeSums {
		if in.entry.SOPSummaries.Len() > 0 {
			section(sectionProcedureOverview)
			writeSummaries(&sb, in.entry.SOPSummaries)
		}
		if in.entry.ContextSummaries.Len() > 0 {
			section(sectionContextOverview)
			writeSummaries(&sb, in.entry.ContextSummaries)
		}
	}

	if len(kept.procs) > 0 {
		section(sectionProcedureExcerpts)
		writeExcerpts(&sb, kept.procs)
	}
	if len(kept.ctxs) > 0 {
		section(sectionContextExcerpts)
		writeExcerpts(&sb, kept.ctxs)
	}

	if sb.Len() > 0 {
		sb.WriteString("\n\n")
	}
	sb.WriteString(TaskDelimiter)
	sb.WriteString("\n\n")
	sb.WriteString(in.prompt)

	return sb.String()
}

// writeSummaries renders one overview section, files in byte order.
func writeSummaries(sb *strings.Builder, summaries *store.SummaryStore) {
	for i, name := range summaries.FileNames() {
		entry, _ := summaries.Get(name)
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(sb, "### %s\n\n%s", name, entry.Summary)
	}
}

// writeExcerpts renders labeled chunks in presentation order.
func writeExcerpts(sb *strings.Builder, results []store.SearchResult) {
	for i, sr := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		m := sr.Entry.Metadata
		fmt.Fprintf(sb, "[%s (Section %d)]\n%s", m.FileName, m.ChunkIndex, m.Content)
	}
}

// estimateTokens applies the chars-per-token heuristic.
func estimateTokens(s string) int {
	return len(s) / charsPerToken
}

// SplitTask separates an assembled envelope into context and task. If the
// delimiter is absent the whole input is the task.
func SplitTask(assembled string) (contextPart, task string) {
	idx := strings.Index(assembled, TaskDelimiter)
	if idx < 0 {
		return "", strings.TrimSpace(assembled)
	}
	return strings.TrimSpace(assembled[:idx]),
		strings.TrimSpace(assembled[idx+len(TaskDelimiter):])
}
