package generate

import (
	"context"
	"fmt"
	"strings"

	pherrors "github.com/phasergun/phasergun/internal/errors"
)

// StaticGenerator produces a deterministic plain-text draft without any
// external model. It exists for dry runs and tests: the output restates the
// task and the supporting material it would draw on, so pipelines can be
// exercised end to end offline.
type StaticGenerator struct{}

// NewStaticGenerator creates the offline generator.
func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

// Generate renders the deterministic draft.
func (g *StaticGenerator) Generate(ctx context.Context, systemText, userText string, opts GenerateOptions) (*GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, pherrors.GeneratorError("generation cancelled", err)
	}

	var sb strings.Builder
	sb.WriteString("# Draft\n\n")
	sb.WriteString(strings.TrimSpace(userText))

	if systemText != "" {
		sb.WriteString("\n\n## Supporting Material\n\n")
		sb.WriteString(excerptHeadings(systemText))
	}

	text := sb.String()
	if opts.MaxTokens > 0 && len(text) > opts.MaxTokens*4 {
		text = text[:opts.MaxTokens*4]
	}

	return &GenerateResult{
		Text:         text,
		InputTokens:  (len(systemText) + len(userText)) / 4,
		OutputTokens: len(text) / 4,
	}, nil
}

// Model identifies the offline generator.
func (g *StaticGenerator) Model() string {
	return "static"
}

// excerptHeadings lists the section headers of the assembled context so the
// draft records what material was available.
func excerptHeadings(systemText string) string {
	var lines []string
	for _, line := range strings.Split(systemText, "\n") {
		if strings.HasPrefix(line, "## ") {
			lines = append(lines, fmt.Sprintf("- %s", strings.TrimPrefix(line, "## ")))
		}
	}
	if len(lines) == 0 {
		return "- (no assembled context)"
	}
	return strings.Join(lines, "\n")
}
