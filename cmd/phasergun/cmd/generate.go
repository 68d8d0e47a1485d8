package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phasergun/phasergun/internal/generate"
)

// generateOptions holds CLI flags for generate.
type generateOptions struct {
	format    string // "text", "json"
	output    string
	maxTokens int
	seed      int64
}

func newGenerateCmd() *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate a document draft with citations",
		Long: `Run the full pipeline: parse inline references from the prompt,
retrieve supporting procedures and context, generate a draft, and
append numbered source citations.

Prompts may reference sources inline:
  [Procedure|Design Control]     widen retrieval to that procedure area
  [Master Record|device_name]    pull a master record field
  [Context|Predicates|k123.md]   cite a specific context document

Examples:
  phasergun generate "Draft the design input summary"
  phasergun generate "Summarize [Procedure|Risk Management]" --format json
  phasergun generate "Draft the verification plan" -o plan.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write generated content to file")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "Output token ceiling (default 32000)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Generation seed")

	return cmd
}

func runGenerate(ctx context.Context, cmd *cobra.Command, prompt string, opts generateOptions) error {
	s, err := newStack()
	if err != nil {
		return err
	}

	orchestrator := generate.NewOrchestrator(s.retriever, generate.NewStaticGenerator(), s.cfg)
	output, err := orchestrator.Run(ctx, generate.Request{
		ProjectRoot:        s.root,
		PrimaryContextPath: s.primary,
		Prompt:             prompt,
		Generation: generate.GenerateOptions{
			Seed:      opts.seed,
			MaxTokens: opts.maxTokens,
		},
	})
	if err != nil {
		return err
	}

	if opts.output != "" {
		if err := os.WriteFile(opts.output, []byte(output.GeneratedContent), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", opts.output, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d references, confidence %s)\n",
			opts.output, len(output.References), output.Confidence)
		return nil
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, output.GeneratedContent)
	fmt.Fprintf(out, "\nconfidence: %s  references: %d  tokens in/out: %d/%d\n",
		output.Confidence, len(output.References),
		output.Usage.InputTokens, output.Usage.OutputTokens)
	return nil
}
