// Package chunk splits parsed documents into retrievable units.
// Procedures use section-aware chunking keyed on markdown and numbered
// headings; context documents use overlap-paragraph chunking. Both assign
// dense chunk indices in emission order and together cover every
// non-whitespace character of the source.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Category is the retrieval bucket a chunk belongs to.
type Category string

const (
	// CategoryProcedure marks SOP content.
	CategoryProcedure Category = "procedure"
	// CategoryContext marks project-specific material.
	CategoryContext Category = "context"
)

// ContextCategory is the fixed set of Context subfolders.
type ContextCategory string

const (
	ContextInitiation         ContextCategory = "Initiation"
	ContextOngoing            ContextCategory = "Ongoing"
	ContextPredicates         ContextCategory = "Predicates"
	ContextRegulatoryStrategy ContextCategory = "Regulatory Strategy"
	ContextGeneral            ContextCategory = "General"
)

// ParseContextCategory maps a Context subfolder name to its category.
// Unknown folders (including files at the Context root) map to General.
func ParseContextCategory(folder string) ContextCategory {
	switch ContextCategory(folder) {
	case ContextInitiation, ContextOngoing, ContextPredicates,
		ContextRegulatoryStrategy, ContextGeneral:
		return ContextCategory(folder)
	default:
		return ContextGeneral
	}
}

// Chunk is one contiguous span of a source document.
type Chunk struct {
	// ID is hash(sourcePath, chunkIndex, contentHash).
	ID string `json:"id"`

	// SourcePath is the absolute path of the source document.
	SourcePath string `json:"sourcePath"`

	// FileName is the base name of the source document.
	FileName string `json:"fileName"`

	// Category is procedure or context.
	Category Category `json:"category"`

	// ContextCategory is set for context chunks only.
	ContextCategory ContextCategory `json:"contextCategory,omitempty"`

	// Index is the 0-based position within the source document.
	Index int `json:"chunkIndex"`

	// Text is the chunk content.
	Text string `json:"text"`

	// ContentHash is a short digest of Text.
	ContentHash string `json:"contentHash"`
}

// Source is one document to be split.
type Source struct {
	Path            string
	FileName        string
	Category        Category
	ContextCategory ContextCategory
	Text            string
}

// ContentHash computes the short content digest used in chunk identity and
// store fingerprints.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// chunkID derives the chunk identifier from its position and content.
func chunkID(sourcePath string, index int, contentHash string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s", sourcePath, index, contentHash)))
	return hex.EncodeToString(sum[:])[:16]
}

// build assembles chunks from piece texts, assigning dense indices in
// emission order.
func build(src Source, pieces []string) []Chunk {
	chunks := make([]Chunk, 0, len(pieces))
	for _, text := range pieces {
		hash := ContentHash(text)
		chunks = append(chunks, Chunk{
			ID:              chunkID(src.Path, len(chunks), hash),
			SourcePath:      src.Path,
			FileName:        src.FileName,
			Category:        src.Category,
			ContextCategory: src.ContextCategory,
			Index:           len(chunks),
			Text:            text,
			ContentHash:     hash,
		})
	}
	return chunks
}
