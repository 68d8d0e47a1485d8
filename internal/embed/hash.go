package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"

	pherrors "github.com/phasergun/phasergun/internal/errors"
)

// HashEmbedder generates embeddings with a hash-based scheme. It needs no
// network and no model download, and the same text always maps to the same
// vector.
type HashEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// documentStopWords filters boilerplate common to regulatory documents so
// it does not dominate the token signal.
var documentStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true,
	"shall": true, "must": true, "may": true, "will": true,
	"this": true, "that": true, "are": true, "is": true,
	"of": true, "to": true, "in": true, "a": true, "an": true,
	"be": true, "or": true, "as": true, "by": true, "on": true,
}

// Weights for vector generation.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// tokenRegex matches alphanumeric sequences.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewHashEmbedder creates the deterministic hash embedder.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{}
}

// Embed generates the vector for a single text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, pherrors.EmbedderUnavailable("embedder is closed", nil)
	}
	e.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, pherrors.EmbedderUnavailable("embedding cancelled", err)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, Dimensions), nil
	}

	return normalizeVector(e.generateVector(trimmed)), nil
}

// generateVector builds the raw hash vector: tokens carry most of the
// weight, character trigrams add robustness to inflection and typos.
func (e *HashEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, Dimensions)

	tokens := filterStopWords(tokenize(text))
	for _, token := range tokens {
		vector[hashToIndex(token, Dimensions)] += tokenWeight
	}

	normalized := normalizeForNgrams(text)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		vector[hashToIndex(ngram, Dimensions)] += ngramWeight
	}

	return vector
}

// tokenize splits text into lowercased word tokens, breaking apart
// identifiers like "DesignInput" or "risk_file" that show up in document
// names and traceability tables.
func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitCompoundToken(word) {
			if lower := strings.ToLower(t); lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// splitCompoundToken splits snake_case and camelCase identifiers.
func splitCompoundToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			// Split when leaving lowercase or when an acronym run ends.
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

func filterStopWords(tokens []string) []string {
	var filtered []string
	for _, t := range tokens {
		if !documentStopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// normalizeForNgrams strips everything but letters and digits.
func normalizeForNgrams(text string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// extractNgrams extracts n-character sliding windows.
func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return []string{}
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

// hashToIndex maps a string to a vector index with FNV-64.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// EmbedBatch generates embeddings for texts in order.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, pherrors.EmbedderUnavailable("batch embedding failed", err)
		}
		results[i] = emb
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return Dimensions
}

// ModelVersion returns the embedding scheme identifier.
func (e *HashEmbedder) ModelVersion() string {
	return "hash-v1"
}

// Close marks the embedder unusable.
func (e *HashEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
