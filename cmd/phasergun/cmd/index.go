package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/phasergun/phasergun/internal/cache"
	"github.com/phasergun/phasergun/internal/watcher"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	format string // "text", "json"
	watch  bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or refresh the project cache",
		Long: `Build the vector store and document summaries for the project.

An unchanged project is a no-op: the existing cache generation is
validated against the project fingerprint and reused. With --watch the
command keeps running and rebuilds whenever indexable files change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Keep watching and rebuild on change")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	s, err := newStack()
	if err != nil {
		return err
	}

	entry, err := s.coordinator.GetOrBuild(ctx, s.root, s.primary)
	if err != nil {
		return err
	}
	if err := printIndexResult(cmd, opts.format, s.root, entry); err != nil {
		return err
	}

	if !opts.watch {
		return nil
	}
	return watchAndRebuild(ctx, cmd, s)
}

// watchAndRebuild blocks, rebuilding the cache after each change burst.
func watchAndRebuild(ctx context.Context, cmd *cobra.Command, s *stack) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rebuilds := make(chan struct{}, 1)
	w, err := watcher.New(s.root, watcher.Options{}, func() {
		s.coordinator.Invalidate(s.root)
		select {
		case rebuilds <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	go func() { _ = w.Start(ctx) }()
	fmt.Fprintln(cmd.OutOrStdout(), "watching for changes (ctrl-c to stop)")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-rebuilds:
			entry, err := s.coordinator.GetOrBuild(ctx, s.root, s.primary)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "rebuild failed: %v\n", err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rebuilt: %d chunks (fingerprint %.12s)\n",
				entry.Store.Len(), entry.Fingerprint)
		}
	}
}

// indexSummary is the printable result of a build.
type indexSummary struct {
	Project        string `json:"project"`
	Fingerprint    string `json:"fingerprint"`
	Chunks         int    `json:"chunks"`
	ProcedureFiles int    `json:"procedureFiles"`
	ContextFiles   int    `json:"contextFiles"`
	BuiltAt        string `json:"builtAt"`
}

func printIndexResult(cmd *cobra.Command, format, root string, entry *cache.Entry) error {
	summary := indexSummary{
		Project:        root,
		Fingerprint:    entry.Fingerprint,
		Chunks:         entry.Store.Len(),
		ProcedureFiles: entry.SOPSummaries.Len(),
		ContextFiles:   entry.ContextSummaries.Len(),
		BuiltAt:        entry.BuiltAt.Format(time.RFC3339),
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "project:          %s\n", summary.Project)
	fmt.Fprintf(out, "fingerprint:      %.12s\n", summary.Fingerprint)
	fmt.Fprintf(out, "chunks:           %d\n", summary.Chunks)
	fmt.Fprintf(out, "procedure files:  %d\n", summary.ProcedureFiles)
	fmt.Fprintf(out, "context files:    %d\n", summary.ContextFiles)
	fmt.Fprintf(out, "built at:         %s\n", summary.BuiltAt)
	return nil
}
