package scip

import (
	"typelens/internal/lens"
)

// Metadata is the header an indexer writes at the top of an index.
type Metadata struct {
	Version string
	Tool    *ToolInfo

	// ProjectRoot is a file:// URI.
	ProjectRoot string

	// Encoding names the unit of occurrence columns, "UTF8" or "UTF16".
	Encoding string
}

// ToolInfo names the indexer and how it was invoked.
type ToolInfo struct {
	Name      string
	Version   string
	Arguments []string
}

// Document holds the occurrences indexed for one file.
type Document struct {
	RelativePath string
	Language     string
	Occurrences  []*Occurrence
	Symbols      []*SymbolInformation
}

// Occurrence is one mention of a symbol. Range is [line, startCol, endCol]
// for single-line spans and [startLine, startCol, endLine, endCol] otherwise.
type Occurrence struct {
	Range       []int32
	Symbol      string
	SymbolRoles int32

	// EnclosingRange covers the whole declaration when the indexer emits it.
	EnclosingRange []int32
}

// IsDefinition reports whether the occurrence defines its symbol.
func (o *Occurrence) IsDefinition() bool {
	return o.SymbolRoles&SymbolRoleDefinition != 0
}

// SymbolInformation describes a symbol defined in the index.
type SymbolInformation struct {
	Symbol string

	// Kind is a SCIP kind name such as "Class", or empty when unspecified.
	Kind string

	DisplayName     string
	EnclosingSymbol string
}

// Occurrence role bits used here.
const (
	SymbolRoleDefinition  int32 = 1
	SymbolRoleWriteAccess int32 = 4
	SymbolRoleReadAccess  int32 = 8
)

// toRange converts a SCIP range to a lens range. ok is false for malformed
// ranges.
func toRange(r []int32) (lens.Range, bool) {
	switch len(r) {
	case 3:
		return lens.NewRange(int(r[0]), int(r[1]), int(r[0]), int(r[2])), true
	case 4:
		return lens.NewRange(int(r[0]), int(r[1]), int(r[2]), int(r[3])), true
	}
	return lens.Range{}, false
}

// kindByName maps SCIP kind names onto LSP symbol kinds.
var kindByName = map[string]lens.SymbolKind{
	"Class":         lens.KindClass,
	"Constant":      lens.KindConstant,
	"Constructor":   lens.KindConstructor,
	"Enum":          lens.KindEnum,
	"EnumMember":    lens.KindEnumMember,
	"Event":         lens.KindEvent,
	"Field":         lens.KindField,
	"Function":      lens.KindFunction,
	"Interface":     lens.KindInterface,
	"Method":        lens.KindMethod,
	"Module":        lens.KindModule,
	"Namespace":     lens.KindNamespace,
	"Package":       lens.KindPackage,
	"Property":      lens.KindProperty,
	"Struct":        lens.KindStruct,
	"TypeAlias":     lens.KindClass,
	"TypeParameter": lens.KindTypeParameter,
	"Variable":      lens.KindVariable,
}
