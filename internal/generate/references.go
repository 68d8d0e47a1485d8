package generate

import "regexp"

// RefKind is the kind of inline source reference a prompt may carry.
type RefKind string

const (
	RefProcedure    RefKind = "procedure"
	RefMasterRecord RefKind = "master-record"
	RefContext      RefKind = "context"
)

// Reference is one parsed inline reference.
type Reference struct {
	Kind RefKind

	// Category names the procedure area for procedure references.
	Category string

	// Field names the master record field for master-record references.
	Field string

	// Folder and FileName locate context references.
	Folder   string
	FileName string

	// Raw is the reference text as written.
	Raw string
}

// Inline reference notation: [Procedure|category], [Master Record|field],
// [Context|folder|filename].
var (
	procedureRefRe    = regexp.MustCompile(`\[Procedure\|([^\]|]+)\]`)
	masterRecordRefRe = regexp.MustCompile(`\[Master Record\|([^\]|]+)\]`)
	contextRefRe      = regexp.MustCompile(`\[Context\|([^\]|]+)\|([^\]|]+)\]`)
)

// ParseReferences extracts all inline references from a prompt, in order of
// appearance within each kind.
func ParseReferences(prompt string) []Reference {
	var refs []Reference

	for _, m := range procedureRefRe.FindAllStringSubmatch(prompt, -1) {
		refs = append(refs, Reference{Kind: RefProcedure, Category: m[1], Raw: m[0]})
	}
	for _, m := range masterRecordRefRe.FindAllStringSubmatch(prompt, -1) {
		refs = append(refs, Reference{Kind: RefMasterRecord, Field: m[1], Raw: m[0]})
	}
	for _, m := range contextRefRe.FindAllStringSubmatch(prompt, -1) {
		refs = append(refs, Reference{Kind: RefContext, Folder: m[1], FileName: m[2], Raw: m[0]})
	}

	return refs
}

// HasProcedureRef reports whether any reference names a procedure.
func HasProcedureRef(refs []Reference) bool {
	for _, r := range refs {
		if r.Kind == RefProcedure {
			return true
		}
	}
	return false
}
