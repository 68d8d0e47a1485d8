// Package generate orchestrates document generation: it parses source
// references out of the prompt, retrieves supporting material, invokes a
// text generator, and attaches numbered citations to the result.
package generate

import (
	"context"
	"time"

	"github.com/phasergun/phasergun/internal/footnote"
)

// MaxOutputTokens is the hard ceiling on generated output length.
const MaxOutputTokens = 32000

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	Temperature float64
	TopP        float64
	Seed        int64
	MaxTokens   int
}

// GenerateResult is the raw output of a text generator.
type GenerateResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TextGenerator produces document text from an instruction context and a
// task. Implementations must honor ctx cancellation.
type TextGenerator interface {
	Generate(ctx context.Context, systemText, userText string, opts GenerateOptions) (*GenerateResult, error)

	// Model identifies the generator for output metadata.
	Model() string
}

// Status of a generation run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Confidence grades how well retrieval supported the generation.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// UsageStats accounts for token consumption.
type UsageStats struct {
	InputTokens     int `json:"inputTokens"`
	OutputTokens    int `json:"outputTokens"`
	ContextTokens   int `json:"contextTokens"`
	ProcedureChunks int `json:"procedureChunks"`
	ContextChunks   int `json:"contextChunks"`
}

// Metadata describes one generation run.
type Metadata struct {
	RequestID   string    `json:"requestId"`
	Model       string    `json:"model"`
	ProjectRoot string    `json:"projectRoot"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Output is the complete result of one generation run.
type Output struct {
	Status           Status              `json:"status"`
	GeneratedContent string              `json:"generatedContent"`
	References       []footnote.Footnote `json:"references"`
	Confidence       Confidence          `json:"confidence"`
	Usage            UsageStats          `json:"usage"`
	Metadata         Metadata            `json:"metadata"`
}
