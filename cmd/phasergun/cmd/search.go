package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phasergun/phasergun/internal/retrieval"
	"github.com/phasergun/phasergun/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	topProcedures int
	topContext    int
	format        string // "text", "json"
	showAssembled bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve the most relevant procedure and context chunks",
		Long: `Search the project cache for the chunks most similar to a query.

The cache is built first if missing or stale. Results are deterministic:
the same query against the same project always returns the same chunks
in the same order.

Examples:
  phasergun search "design verification protocol"
  phasergun search "predicate device" --top-context 4 --format json
  phasergun search "risk analysis" --assembled`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVar(&opts.topProcedures, "top-procedures", 0, "Procedure chunks to retrieve (default from config)")
	cmd.Flags().IntVar(&opts.topContext, "top-context", 0, "Context chunks to retrieve (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.showAssembled, "assembled", false, "Print the full assembled context envelope")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	s, err := newStack()
	if err != nil {
		return err
	}

	retOpts := retrieval.DefaultOptions(s.cfg)
	if opts.topProcedures > 0 {
		retOpts.TopKProcedures = opts.topProcedures
	}
	if opts.topContext > 0 {
		retOpts.TopKContext = opts.topContext
	}

	result, err := s.retriever.Retrieve(ctx, s.root, s.primary, query, retOpts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if opts.showAssembled {
		fmt.Fprintln(out, result.AssembledContext)
		return nil
	}

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(searchOutput{
			Query:           query,
			Procedures:      toHits(result.Procedures),
			Context:         toHits(result.Context),
			EstimatedTokens: result.EstimatedTokens,
		})
	}

	printHits(cmd, "procedures", result.Procedures)
	printHits(cmd, "context", result.Context)
	fmt.Fprintf(out, "estimated tokens: %d\n", result.EstimatedTokens)
	return nil
}

// searchOutput is the JSON shape of a search.
type searchOutput struct {
	Query           string      `json:"query"`
	Procedures      []searchHit `json:"procedures"`
	Context         []searchHit `json:"context"`
	EstimatedTokens int         `json:"estimatedTokens"`
}

type searchHit struct {
	FileName   string  `json:"fileName"`
	ChunkIndex int     `json:"chunkIndex"`
	Similarity float64 `json:"similarity"`
	Excerpt    string  `json:"excerpt"`
}

func toHits(results []store.SearchResult) []searchHit {
	hits := make([]searchHit, 0, len(results))
	for _, sr := range results {
		hits = append(hits, searchHit{
			FileName:   sr.Entry.Metadata.FileName,
			ChunkIndex: sr.Entry.Metadata.ChunkIndex,
			Similarity: sr.Similarity,
			Excerpt:    excerpt(sr.Entry.Metadata.Content, 160),
		})
	}
	return hits
}

func printHits(cmd *cobra.Command, label string, results []store.SearchResult) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintf(out, "%s: no matches\n", label)
		return
	}
	fmt.Fprintf(out, "%s:\n", label)
	for _, sr := range results {
		m := sr.Entry.Metadata
		fmt.Fprintf(out, "  %s (Section %d)  sim=%.4f\n", m.FileName, m.ChunkIndex, sr.Similarity)
		fmt.Fprintf(out, "    %s\n", excerpt(m.Content, 120))
	}
}

// excerpt flattens and truncates chunk content for terminal display.
func excerpt(content string, limit int) string {
	flat := strings.Join(strings.Fields(content), " ")
	if len(flat) <= limit {
		return flat
	}
	return flat[:limit] + "..."
}
