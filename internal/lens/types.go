// Package lens decides which symbols of a document get a reference-count
// annotation, where the annotation anchors, how the count is labelled, and
// which anchors are highlighted as unused.
//
// All language knowledge (outline, word boundaries, references) comes from
// the host through the interfaces in host.go.
package lens

import "fmt"

// Position is a 0-based line/character pair. Characters are UTF-16 code units.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Before reports whether p sorts strictly before other.
func (p Position) Before(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Character < other.Character
}

// After reports whether p sorts strictly after other.
func (p Position) After(other Position) bool {
	return other.Before(p)
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Range is a half-open span of document positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// NewRange builds a range from line/character pairs.
func NewRange(startLine, startChar, endLine, endChar int) Range {
	return Range{
		Start: Position{Line: startLine, Character: startChar},
		End:   Position{Line: endLine, Character: endChar},
	}
}

// Contains reports whether other lies entirely inside r. Endpoints are
// inclusive, matching the editor's range containment.
func (r Range) Contains(other Range) bool {
	return r.ContainsPosition(other.Start) && r.ContainsPosition(other.End)
}

// ContainsPosition reports whether p lies within r, endpoints included.
func (r Range) ContainsPosition(p Position) bool {
	return !p.Before(r.Start) && !r.End.Before(p)
}

// IsEmpty reports whether r covers no characters.
func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Start, r.End)
}

// SymbolKind follows the LSP numeric symbol kind enumeration.
type SymbolKind int

const (
	KindFile SymbolKind = iota + 1
	KindModule
	KindNamespace
	KindPackage
	KindClass
	KindMethod
	KindProperty
	KindField
	KindConstructor
	KindEnum
	KindInterface
	KindFunction
	KindVariable
	KindConstant
	KindString
	KindNumber
	KindBoolean
	KindArray
	KindObject
	KindKey
	KindNull
	KindEnumMember
	KindStruct
	KindEvent
	KindOperator
	KindTypeParameter
)

var kindNames = map[SymbolKind]string{
	KindFile:          "file",
	KindModule:        "module",
	KindNamespace:     "namespace",
	KindPackage:       "package",
	KindClass:         "class",
	KindMethod:        "method",
	KindProperty:      "property",
	KindField:         "field",
	KindConstructor:   "constructor",
	KindEnum:          "enum",
	KindInterface:     "interface",
	KindFunction:      "function",
	KindVariable:      "variable",
	KindConstant:      "constant",
	KindString:        "string",
	KindNumber:        "number",
	KindBoolean:       "boolean",
	KindArray:         "array",
	KindObject:        "object",
	KindKey:           "key",
	KindNull:          "null",
	KindEnumMember:    "enumMember",
	KindStruct:        "struct",
	KindEvent:         "event",
	KindOperator:      "operator",
	KindTypeParameter: "typeParameter",
}

func (k SymbolKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseSymbolKind maps a kind name back to its SymbolKind.
func ParseSymbolKind(name string) (SymbolKind, bool) {
	for kind, n := range kindNames {
		if n == name {
			return kind, true
		}
	}
	return 0, false
}

// FlattenedSymbol is one declaration from the outline. Range is nil when the
// host supplied none.
type FlattenedSymbol struct {
	Kind  SymbolKind
	Name  string
	Range *Range
}

// Location is a reference site reported by the host.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// ActionKind is the follow-up command attached to a resolved label.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionShowReferences
	ActionFindReferences
	ActionBlackboxed
)

// Command returns the host command id for the action.
func (a ActionKind) Command() string {
	switch a {
	case ActionShowReferences:
		return "editor.action.showReferences"
	case ActionFindReferences:
		return "editor.action.findReferences"
	default:
		return ""
	}
}

func (a ActionKind) String() string {
	switch a {
	case ActionShowReferences:
		return "show-references"
	case ActionFindReferences:
		return "find-references"
	case ActionBlackboxed:
		return "blackboxed"
	default:
		return "none"
	}
}

// LabelResult is the resolved annotation for one candidate.
type LabelResult struct {
	// Range is the anchor start stretched to the end of its line.
	Range     Range
	Text      string
	Action    ActionKind
	Locations []Location
}

// lineEndCharacter stands in for "end of line" in label ranges.
const lineEndCharacter = 90000

// Candidate is an eligible symbol with its resolved anchor.
type Candidate struct {
	URI         string
	Name        string
	Kind        SymbolKind
	Declaration Range
	Anchor      Range
	// Offset is the document offset of Anchor.Start; unique within a pass.
	Offset int
	// Pass identifies the evaluation pass that produced the candidate.
	Pass uint64
}
