// Package parser extracts plain text from heterogeneous project documents.
// Markdown and plain text are read directly; PDF, DOCX, and XLSX go through
// format-specific extractors. Unsupported or unreadable files yield a nil
// document so builds can skip them without failing.
package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// ParsedDocument is the text of one source file, immutable within a run.
type ParsedDocument struct {
	// ID is a stable short hash of the absolute path.
	ID string

	// AbsolutePath is the source file location.
	AbsolutePath string

	// FileName is the base name of the source file.
	FileName string

	// Text is the extracted plain text.
	Text string

	// MimeType describes the source format.
	MimeType string

	// Metadata carries extractor-specific details (page counts, sheets).
	Metadata map[string]string
}

// DocumentParser turns a file into a ParsedDocument.
// A nil document with nil error means the file is unsupported; callers skip it.
type DocumentParser interface {
	Parse(ctx context.Context, path string) (*ParsedDocument, error)
}

// DocumentID derives the stable short identifier for an absolute path.
func DocumentID(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])[:12]
}
