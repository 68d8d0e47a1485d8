package chunk

import (
	"regexp"
	"strings"
)

const (
	// overlapTarget is the preferred chunk size for unstructured text.
	overlapTarget = 3000
	// overlapCap is the hard ceiling; a single paragraph past it becomes
	// its own chunk.
	overlapCap = 4000
	// overlapSize is how much of the previous chunk seeds the next one.
	overlapSize = 400
)

var paragraphSplitRe = regexp.MustCompile(`\n[ \t]*\n+`)

// splitOverlap chunks unstructured text by paragraph with a sliding overlap.
// Consecutive chunks share up to overlapSize trailing characters so that
// sentences spanning a chunk boundary stay retrievable from both sides.
func splitOverlap(text string) []string {
	var paragraphs []string
	for _, p := range paragraphSplitRe.Split(text, -1) {
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, strings.Trim(p, "\n"))
		}
	}

	var pieces []string
	var cur string
	seeded := false // cur holds only overlap carried from the previous chunk

	flush := func() {
		if strings.TrimSpace(cur) != "" && !seeded {
			pieces = append(pieces, cur)
		}
		cur = ""
		seeded = false
	}

	for _, p := range paragraphs {
		if len(p) > overlapCap {
			// Oversized paragraphs stand alone and seed the next chunk.
			flush()
			pieces = append(pieces, p)
			cur = overlapTail(p)
			seeded = true
			continue
		}

		if cur != "" && !seeded && len(cur)+2+len(p) > overlapTarget {
			prev := cur
			flush()
			cur = overlapTail(prev)
			seeded = true
		}

		if cur == "" {
			cur = p
		} else {
			cur += "\n\n" + p
		}
		seeded = false
	}
	flush()

	return pieces
}

// overlapTail returns up to overlapSize trailing characters of s, advanced
// to the nearest whitespace so the seed never starts mid-word.
func overlapTail(s string) string {
	if len(s) <= overlapSize {
		return s
	}
	start := len(s) - overlapSize
	for start < len(s) && !isSpaceByte(s[start-1]) {
		start++
	}
	return strings.TrimLeft(s[start:], " \t\n\r")
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
