package chunk

// Split chunks one source document. Procedures and other header-structured
// text split on section boundaries; text without a single header falls back
// to overlap-paragraph chunking so prose documents are still covered.
func Split(src Source) []Chunk {
	var pieces []string
	if src.Category == CategoryProcedure && hasHeaders(src.Text) {
		pieces = splitSections(src.Text)
	} else {
		pieces = splitOverlap(src.Text)
	}
	return build(src, pieces)
}
