package generate

import "strings"

// standard is one recognized regulatory standard.
type standard struct {
	Name        string
	Description string
}

// knownStandards are the standards whose mentions in generated content
// become citations.
var knownStandards = []standard{
	{"ISO 13485", "Medical devices quality management systems"},
	{"ISO 14971", "Application of risk management to medical devices"},
	{"IEC 62304", "Medical device software life cycle processes"},
	{"21 CFR 820", "FDA Quality System Regulation"},
	{"EU MDR", "Regulation (EU) 2017/745 on medical devices"},
}

// scanStandards returns the known standards mentioned in text, in the fixed
// registry order so citation numbering stays deterministic.
func scanStandards(text string) []standard {
	var found []standard
	for _, std := range knownStandards {
		if strings.Contains(text, std.Name) {
			found = append(found, std)
		}
	}
	return found
}
