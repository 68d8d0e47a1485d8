package cache

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/phasergun/phasergun/internal/chunk"
	"github.com/phasergun/phasergun/internal/embed"
	pherrors "github.com/phasergun/phasergun/internal/errors"
	"github.com/phasergun/phasergun/internal/fingerprint"
	"github.com/phasergun/phasergun/internal/parser"
	"github.com/phasergun/phasergun/internal/store"
)

// buildResult is the output of one full project build.
type buildResult struct {
	Store            *store.VectorStore
	SOPSummaries     *store.SummaryStore
	ContextSummaries *store.SummaryStore
	ProcedureFiles   int
	ContextFiles     int
}

// sourceDoc pairs a parsed document with its chunking inputs.
type sourceDoc struct {
	doc             *parser.ParsedDocument
	relPath         string // relative to the project root, slash-separated
	category        chunk.Category
	contextCategory chunk.ContextCategory
}

// build parses, chunks, and embeds the whole project. Document parsing runs
// concurrently; everything downstream is strictly ordered so that two builds
// of the same tree produce identical stores.
func (c *Coordinator) build(ctx context.Context, projectRoot string, memo *embed.DiskMemo) (*buildResult, error) {
	procDocs, err := c.parseSubtree(ctx, projectRoot, fingerprint.ProceduresDir, chunk.CategoryProcedure)
	if err != nil {
		return nil, err
	}
	ctxDocs, err := c.parseSubtree(ctx, projectRoot, fingerprint.ContextDir, chunk.CategoryContext)
	if err != nil {
		return nil, err
	}

	// Insertion order: procedures before context, files by name, chunks by
	// index. This fixes the store fingerprint for a given tree.
	sortDocs(procDocs)
	sortDocs(ctxDocs)

	sopSummaries := store.NewSummaryStore()
	ctxSummaries := store.NewSummaryStore()

	var chunks []chunk.Chunk
	var chunkRelPaths []string
	addDoc := func(sd sourceDoc, summaries *store.SummaryStore) {
		summaries.Put(sd.doc.FileName, chunk.ContentHash(sd.doc.Text), store.Summarize(sd.doc.Text))
		for _, ch := range chunk.Split(chunk.Source{
			Path:            sd.doc.AbsolutePath,
			FileName:        sd.doc.FileName,
			Category:        sd.category,
			ContextCategory: sd.contextCategory,
			Text:            sd.doc.Text,
		}) {
			chunks = append(chunks, ch)
			chunkRelPaths = append(chunkRelPaths, sd.relPath)
		}
	}
	for _, sd := range procDocs {
		addDoc(sd, sopSummaries)
	}
	for _, sd := range ctxDocs {
		addDoc(sd, ctxSummaries)
	}

	vectors, err := c.embedChunks(ctx, chunks, chunkRelPaths, memo)
	if err != nil {
		return nil, err
	}

	vs := store.New(projectRoot, c.embedder.ModelVersion())
	for i, ch := range chunks {
		vs.AddChunk(ch, vectors[i])
	}

	slog.Info("project build complete",
		slog.String("project", projectRoot),
		slog.Int("procedureFiles", len(procDocs)),
		slog.Int("contextFiles", len(ctxDocs)),
		slog.Int("chunks", len(chunks)))

	return &buildResult{
		Store:            vs,
		SOPSummaries:     sopSummaries,
		ContextSummaries: ctxSummaries,
		ProcedureFiles:   len(procDocs),
		ContextFiles:     len(ctxDocs),
	}, nil
}

// parseSubtree enumerates and parses one category subtree concurrently.
// The enumeration is the same one fingerprinting uses.
func (c *Coordinator) parseSubtree(ctx context.Context, projectRoot, subtree string, category chunk.Category) ([]sourceDoc, error) {
	root := filepath.Join(projectRoot, subtree)
	opts := fingerprint.TreeOptions{ExcludePatterns: c.cfg.Excludes}
	if subtree == fingerprint.ContextDir {
		opts.ExcludeChildren = []string{fingerprint.PromptDir}
	}

	files, err := fingerprint.TreeFiles(root, opts)
	if err != nil {
		return nil, err
	}

	docs := make([]*parser.ParsedDocument, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	var mu sync.Mutex
	for i, rel := range files {
		g.Go(func() error {
			doc, err := c.parser.Parse(gctx, filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				// A file that cannot be extracted is excluded from this
				// build; only walk and cancellation errors abort it.
				if gctx.Err() == nil && pherrors.GetCode(err) == pherrors.ErrCodeParseFailed {
					slog.Warn("skipping unparseable document",
						slog.String("path", subtree+"/"+rel),
						slog.String("error", err.Error()))
					return nil
				}
				return err
			}
			mu.Lock()
			docs[i] = doc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]sourceDoc, 0, len(files))
	for i, rel := range files {
		if docs[i] == nil {
			continue
		}
		sd := sourceDoc{
			doc:      docs[i],
			relPath:  subtree + "/" + rel,
			category: category,
		}
		if category == chunk.CategoryContext {
			sd.contextCategory = contextCategoryOf(rel)
		}
		result = append(result, sd)
	}
	return result, nil
}

// contextCategoryOf maps a Context-relative path to its category by its
// immediate subfolder; files at the Context root are General.
func contextCategoryOf(rel string) chunk.ContextCategory {
	if i := strings.Index(rel, "/"); i >= 0 {
		return chunk.ParseContextCategory(rel[:i])
	}
	return chunk.ContextGeneral
}

// sortDocs orders documents by file name, then path for equal names.
func sortDocs(docs []sourceDoc) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].doc.FileName != docs[j].doc.FileName {
			return docs[i].doc.FileName < docs[j].doc.FileName
		}
		return docs[i].relPath < docs[j].relPath
	})
}

// embedChunks produces vectors for all chunks in order, consulting the disk
// memo first when the cache is enabled.
func (c *Coordinator) embedChunks(ctx context.Context, chunks []chunk.Chunk, relPaths []string, memo *embed.DiskMemo) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	modelVersion := c.embedder.ModelVersion()

	missIdx := make([]int, 0, len(chunks))
	missTexts := make([]string, 0, len(chunks))
	for i, ch := range chunks {
		if memo != nil {
			key := memo.Key(relPaths[i], ch.ContentHash, modelVersion)
			if vec, ok := memo.Get(key, modelVersion); ok {
				vectors[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, ch.Text)
	}

	batchSize := c.cfg.Embedding.BatchSize
	for start := 0; start < len(missTexts); start += batchSize {
		end := start + batchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}
		batch, err := c.embedder.EmbedBatch(ctx, missTexts[start:end])
		if err != nil {
			return nil, err
		}
		for j, vec := range batch {
			i := missIdx[start+j]
			vectors[i] = vec
			if memo != nil {
				key := memo.Key(relPaths[i], chunks[i].ContentHash, modelVersion)
				memo.Put(ctx, key, modelVersion, vec)
			}
		}
	}

	return vectors, nil
}
