package generate

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phasergun/phasergun/internal/config"
	pherrors "github.com/phasergun/phasergun/internal/errors"
	"github.com/phasergun/phasergun/internal/footnote"
	"github.com/phasergun/phasergun/internal/retrieval"
)

// minTopKWithProcedureRef is the retrieval floor when the prompt explicitly
// references a procedure: explicit references signal the writer needs that
// material, so retrieval widens.
const minTopKWithProcedureRef = 5

// Confidence thresholds on retrieval coverage, the fraction of requested
// chunks actually returned.
const (
	highConfidenceCoverage = 0.8
	lowConfidenceCoverage  = 0.3
)

// Request is one generation job.
type Request struct {
	ProjectRoot        string
	PrimaryContextPath string
	Prompt             string

	// Retrieval overrides the configured retrieval options when non-nil.
	Retrieval *retrieval.Options

	// Generation tunes the text generator.
	Generation GenerateOptions
}

// Orchestrator runs the full pipeline: references, retrieval, generation,
// citations.
type Orchestrator struct {
	retriever *retrieval.Retriever
	generator TextGenerator
	cfg       config.Config
}

// NewOrchestrator wires an orchestrator.
func NewOrchestrator(retriever *retrieval.Retriever, generator TextGenerator, cfg config.Config) *Orchestrator {
	return &Orchestrator{retriever: retriever, generator: generator, cfg: cfg}
}

// Run executes one generation request.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Output, error) {
	requestID := uuid.NewString()
	started := time.Now().UTC()

	opts := retrieval.DefaultOptions(o.cfg)
	if req.Retrieval != nil {
		opts = *req.Retrieval
	}

	refs := ParseReferences(req.Prompt)
	if HasProcedureRef(refs) && opts.TopKProcedures < minTopKWithProcedureRef {
		opts.TopKProcedures = minTopKWithProcedureRef
	}

	result, err := o.retriever.Retrieve(ctx, req.ProjectRoot, req.PrimaryContextPath, req.Prompt, opts)
	if err != nil {
		return nil, err
	}

	genOpts := req.Generation
	if genOpts.MaxTokens <= 0 || genOpts.MaxTokens > MaxOutputTokens {
		genOpts.MaxTokens = MaxOutputTokens
	}
	// Deterministic sampling contract: temperature 0, nucleus disabled.
	if genOpts.TopP <= 0 {
		genOpts.TopP = 1
	}

	contextPart, task := retrieval.SplitTask(result.AssembledContext)
	genResult, err := o.generator.Generate(ctx, contextPart, task, genOpts)
	if err != nil {
		return nil, pherrors.GeneratorError("text generation failed", err)
	}

	tracker := footnote.NewTracker()
	for _, src := range result.Sources {
		tracker.AddChunk(src.Category, src.FileName, src.ChunkIndex)
	}
	for _, std := range scanStandards(genResult.Text + "\n" + req.Prompt) {
		tracker.AddStandard(std.Name, std.Description)
	}

	content := genResult.Text
	if sources := tracker.Render(); sources != "" {
		content += "\n\n" + sources
	}

	output := &Output{
		Status:           StatusCompleted,
		GeneratedContent: content,
		References:       tracker.Footnotes(),
		Confidence:       grade(result, opts),
		Usage: UsageStats{
			InputTokens:     genResult.InputTokens,
			OutputTokens:    genResult.OutputTokens,
			ContextTokens:   result.EstimatedTokens,
			ProcedureChunks: len(result.Procedures),
			ContextChunks:   len(result.Context),
		},
		Metadata: Metadata{
			RequestID:   requestID,
			Model:       o.generator.Model(),
			ProjectRoot: req.ProjectRoot,
			GeneratedAt: started,
		},
	}

	slog.Info("generation complete",
		slog.String("requestId", requestID),
		slog.String("confidence", string(output.Confidence)),
		slog.Int("references", len(output.References)),
		slog.Int("outputTokens", output.Usage.OutputTokens))

	return output, nil
}

// grade derives confidence from retrieval coverage: high needs most of the
// requested chunks returned with support from both categories, low means
// sparse or no support.
func grade(result *retrieval.Result, opts retrieval.Options) Confidence {
	returned := len(result.Procedures) + len(result.Context)
	requested := opts.TopKProcedures + opts.TopKContext
	if returned == 0 || requested == 0 {
		return ConfidenceLow
	}

	coverage := float64(returned) / float64(requested)
	bothCategories := len(result.Procedures) > 0 && len(result.Context) > 0

	switch {
	case coverage >= highConfidenceCoverage && bothCategories:
		return ConfidenceHigh
	case coverage < lowConfidenceCoverage:
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}
