// Package footnote assigns stable citation numbers to the sources a
// generated document draws on and renders them as a trailing sources block.
package footnote

import (
	"fmt"
	"strings"

	"github.com/phasergun/phasergun/internal/chunk"
)

// Kind distinguishes citation targets.
type Kind string

const (
	KindProcedure Kind = "Procedure"
	KindContext   Kind = "Context"
	KindStandard  Kind = "Regulatory Standard"
)

// Footnote is one numbered citation.
type Footnote struct {
	ID          int
	Kind        Kind
	FileName    string
	ChunkIndex  int
	Name        string // standards only
	Description string // standards only
}

// Tracker deduplicates citations and hands out dense sequential IDs in
// first-reference order.
type Tracker struct {
	byKey map[string]int
	notes []Footnote
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{byKey: make(map[string]int)}
}

// AddChunk records a chunk citation, returning its footnote ID. Citing the
// same chunk again returns the existing ID.
func (t *Tracker) AddChunk(category chunk.Category, fileName string, chunkIndex int) int {
	key := fmt.Sprintf("%s|%s|%d", category, fileName, chunkIndex)
	if id, ok := t.byKey[key]; ok {
		return id
	}

	kind := KindContext
	if category == chunk.CategoryProcedure {
		kind = KindProcedure
	}
	return t.add(key, Footnote{
		Kind:       kind,
		FileName:   fileName,
		ChunkIndex: chunkIndex,
	})
}

// AddStandard records a regulatory standard citation by its identifier.
func (t *Tracker) AddStandard(name, description string) int {
	key := "standard|" + name
	if id, ok := t.byKey[key]; ok {
		return id
	}
	return t.add(key, Footnote{
		Kind:        KindStandard,
		Name:        name,
		Description: description,
	})
}

func (t *Tracker) add(key string, fn Footnote) int {
	fn.ID = len(t.notes) + 1
	t.byKey[key] = fn.ID
	t.notes = append(t.notes, fn)
	return fn.ID
}

// Footnotes returns all citations in ID order.
func (t *Tracker) Footnotes() []Footnote {
	return t.notes
}

// Len returns the number of distinct citations.
func (t *Tracker) Len() int {
	return len(t.notes)
}

// Reset clears all citations for the next document.
func (t *Tracker) Reset() {
	t.byKey = make(map[string]int)
	t.notes = nil
}

// Render produces the sources block, or an empty string with no citations.
func (t *Tracker) Render() string {
	if len(t.notes) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Sources\n")
	for _, fn := range t.notes {
		switch fn.Kind {
		case KindStandard:
			fmt.Fprintf(&sb, "\n[%d] %s: %s — %s", fn.ID, fn.Kind, fn.Name, fn.Description)
		default:
			fmt.Fprintf(&sb, "\n[%d] %s: %s (Section %d)", fn.ID, fn.Kind, fn.FileName, fn.ChunkIndex)
		}
	}
	return sb.String()
}
