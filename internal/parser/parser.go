package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	pherrors "github.com/phasergun/phasergun/internal/errors"
)

// MaxFileSize is the largest file the registry will read (50MB).
// Oversized files are skipped rather than failed.
const MaxFileSize int64 = 50 * 1024 * 1024

// Registry dispatches to the right extractor by file extension.
type Registry struct{}

// NewRegistry creates the default parser registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// textExtensions are read directly as UTF-8 text.
var textExtensions = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".text":     "text/plain",
}

// Parse extracts text from the file at path. It returns (nil, nil) for
// unsupported extensions and for unreadable or binary-looking text files,
// and a ParseError for supported files whose extraction fails.
func (r *Registry) Parse(ctx context.Context, path string) (*ParsedDocument, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, pherrors.New(pherrors.ErrCodeInvalidPath, fmt.Sprintf("resolve %s", path), err)
	}

	info, err := os.Lstat(abs)
	if err != nil {
		return nil, pherrors.IOError(fmt.Sprintf("stat %s", abs), err)
	}
	// Symlinks are not followed.
	if info.Mode()&os.ModeSymlink != 0 {
		slog.Debug("skipping symlink", slog.String("path", abs))
		return nil, nil
	}
	if info.Size() > MaxFileSize {
		slog.Warn("skipping oversized file",
			slog.String("path", abs),
			slog.Int64("size", info.Size()))
		return nil, nil
	}

	ext := strings.ToLower(filepath.Ext(abs))

	var text string
	var mimeType string
	metadata := make(map[string]string)

	switch {
	case textExtensions[ext] != "":
		mimeType = textExtensions[ext]
		text, err = r.parseText(abs)
	case ext == ".pdf":
		mimeType = "application/pdf"
		text, err = r.parsePDF(ctx, abs, info.Size(), metadata)
	case ext == ".docx":
		mimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		text, err = r.parseDocx(abs, metadata)
	case ext == ".xlsx":
		mimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		text, err = r.parseXlsx(ctx, abs, metadata)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	return &ParsedDocument{
		ID:           DocumentID(abs),
		AbsolutePath: abs,
		FileName:     filepath.Base(abs),
		Text:         text,
		MimeType:     mimeType,
		Metadata:     metadata,
	}, nil
}

// parseText reads a plain text or markdown file, rejecting binary content.
func (r *Registry) parseText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", pherrors.ParseError(fmt.Sprintf("read %s", path), err)
	}
	if isBinaryContent(data) {
		return "", nil
	}
	return string(data), nil
}

// parsePDF extracts page text in order, skipping pages that fail.
func (r *Registry) parsePDF(ctx context.Context, path string, size int64, metadata map[string]string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", pherrors.ParseError(fmt.Sprintf("open pdf %s", path), err)
	}
	defer f.Close()

	reader, err := pdf.NewReader(f, size)
	if err != nil {
		return "", pherrors.ParseError(fmt.Sprintf("parse pdf %s", path), err)
	}

	totalPages := reader.NumPage()
	metadata["pages"] = fmt.Sprintf("%d", totalPages)

	var parts []string
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		select {
		case <-ctx.Done():
			return "", pherrors.ParseError(fmt.Sprintf("parse pdf %s cancelled", path), ctx.Err())
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Debug("pdf page extraction failed",
				slog.String("path", path),
				slog.Int("page", pageNum),
				slog.String("error", err.Error()))
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, "\n\n"), nil
}

// parseDocx extracts the document body of a Word file.
func (r *Registry) parseDocx(path string, metadata map[string]string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", pherrors.ParseError(fmt.Sprintf("parse docx %s", path), err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	text := stripXMLTags(content)
	metadata["paragraphs"] = fmt.Sprintf("%d", len(strings.Split(text, "\n\n")))
	return text, nil
}

// parseXlsx flattens sheet cells into labeled lines.
func (r *Registry) parseXlsx(ctx context.Context, path string, metadata map[string]string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", pherrors.ParseError(fmt.Sprintf("parse xlsx %s", path), err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	metadata["sheets"] = fmt.Sprintf("%d", len(sheets))

	var parts []string
	for _, sheetName := range sheets {
		select {
		case <-ctx.Done():
			return "", pherrors.ParseError(fmt.Sprintf("parse xlsx %s cancelled", path), ctx.Err())
		default:
		}

		rows, err := f.GetRows(sheetName)
		if err != nil {
			slog.Debug("xlsx sheet read failed",
				slog.String("path", path),
				slog.String("sheet", sheetName),
				slog.String("error", err.Error()))
			continue
		}

		var sb strings.Builder
		sb.WriteString("Sheet: " + sheetName + "\n")
		for _, row := range rows {
			var cells []string
			for _, cell := range row {
				if text := strings.TrimSpace(cell); text != "" {
					cells = append(cells, text)
				}
			}
			if len(cells) > 0 {
				sb.WriteString(strings.Join(cells, " | "))
				sb.WriteString("\n")
			}
		}
		if strings.TrimSpace(sb.String()) != "Sheet: "+sheetName {
			parts = append(parts, sb.String())
		}
	}

	return strings.Join(parts, "\n\n"), nil
}

// stripXMLTags removes residual markup from docx body content.
func stripXMLTags(s string) string {
	var sb strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// isBinaryContent heuristically detects binary data: a NUL byte in the
// first 8KB marks the file as binary.
func isBinaryContent(data []byte) bool {
	probe := data
	if len(probe) > 8192 {
		probe = probe[:8192]
	}
	return bytes.IndexByte(probe, 0) != -1
}
