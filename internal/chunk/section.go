package chunk

import (
	"regexp"
	"strings"
)

const (
	// sectionMin is the accumulated size at which a new header starts a
	// fresh chunk.
	sectionMin = 2000
	// sectionMax is the size past which the next paragraph boundary forces
	// a split even without a header.
	sectionMax = 4000
)

var (
	mdHeaderRe  = regexp.MustCompile(`^#{1,6}\s+\S`)
	numHeaderRe = regexp.MustCompile(`^\d+(\.\d+)*[.)]?\s+\S`)
)

// isHeader reports whether a line opens a new document section: a markdown
// heading or a numbered heading like "4.2 Design Inputs".
func isHeader(line string) bool {
	return mdHeaderRe.MatchString(line) || numHeaderRe.MatchString(line)
}

// hasHeaders reports whether any line of the text is a section header.
func hasHeaders(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if isHeader(line) {
			return true
		}
	}
	return false
}

// splitSections chunks header-structured text. Sections accumulate until a
// header arrives past sectionMin; an overlong section without headers breaks
// at the first paragraph boundary past sectionMax. Every line lands in
// exactly one piece.
func splitSections(text string) []string {
	var pieces []string
	var cur strings.Builder
	overflow := false

	emit := func() {
		if piece := cur.String(); strings.TrimSpace(piece) != "" {
			pieces = append(pieces, strings.Trim(piece, "\n"))
		}
		cur.Reset()
		overflow = false
	}

	for _, line := range strings.Split(text, "\n") {
		if isHeader(line) && cur.Len() > sectionMin {
			emit()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)

		if cur.Len() > sectionMax {
			overflow = true
		}
		if overflow && strings.TrimSpace(line) == "" {
			emit()
		}
	}
	emit()

	return pieces
}
