// Package embed produces fixed-dimension vectors for chunks and prompts.
// The hash embedder is fully deterministic: the same text yields the same
// vector on every process, machine, and run, which is what makes cached
// vector stores shareable across processes.
package embed

import (
	"context"
	"math"
)

// Dimensions is the embedding vector width.
const Dimensions = 384

// Embedder converts text into L2-normalized vectors.
type Embedder interface {
	// Embed returns the vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns vectors for texts in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector width.
	Dimensions() int

	// ModelVersion identifies the embedding scheme; stores built with a
	// different version are invalid.
	ModelVersion() string

	// Close releases resources. Embed after Close is an error.
	Close() error
}

// normalizeVector scales v to unit L2 norm so cosine similarity reduces to
// a dot product. Zero vectors are returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSquares))
	for i := range v {
		v[i] /= norm
	}
	return v
}
