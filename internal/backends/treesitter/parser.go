//go:build cgo

package treesitter

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"typelens/internal/lens"
)

// Available reports whether this build can parse documents.
func Available() bool {
	return true
}

func getLanguage(grammar string) (*sitter.Language, error) {
	switch grammar {
	case grammarGo:
		return golang.GetLanguage(), nil
	case grammarJavaScript:
		return javascript.GetLanguage(), nil
	case grammarTypeScript:
		return typescript.GetLanguage(), nil
	case grammarTSX:
		return tsx.GetLanguage(), nil
	case grammarPython:
		return python.GetLanguage(), nil
	case grammarRust:
		return rust.GetLanguage(), nil
	case grammarJava:
		return java.GetLanguage(), nil
	case grammarKotlin:
		return kotlin.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported grammar: %s", grammar)
	}
}

// declarationKinds maps declaration node types to outline kinds per grammar.
var declarationKinds = map[string]map[string]lens.SymbolKind{
	grammarGo: {
		"function_declaration": lens.KindFunction,
		"method_declaration":   lens.KindMethod,
		"type_spec":            lens.KindClass,
		"field_declaration":    lens.KindField,
		"method_spec":          lens.KindMethod,
		"method_elem":          lens.KindMethod,
	},
	grammarJavaScript: {
		"function_declaration":           lens.KindFunction,
		"generator_function_declaration": lens.KindFunction,
		"class_declaration":              lens.KindClass,
		"method_definition":              lens.KindMethod,
		"field_definition":               lens.KindProperty,
		"variable_declarator":            lens.KindVariable,
	},
	grammarTypeScript: tsKinds,
	grammarTSX:        tsKinds,
	grammarPython: {
		"function_definition": lens.KindFunction,
		"class_definition":    lens.KindClass,
	},
	grammarRust: {
		"function_item":           lens.KindFunction,
		"function_signature_item": lens.KindMethod,
		"struct_item":             lens.KindStruct,
		"enum_item":               lens.KindEnum,
		"trait_item":              lens.KindInterface,
		"field_declaration":       lens.KindField,
	},
	grammarJava: {
		"class_declaration":       lens.KindClass,
		"interface_declaration":   lens.KindInterface,
		"enum_declaration":        lens.KindEnum,
		"method_declaration":      lens.KindMethod,
		"constructor_declaration": lens.KindConstructor,
	},
	grammarKotlin: {
		"class_declaration":    lens.KindClass,
		"object_declaration":   lens.KindClass,
		"function_declaration": lens.KindFunction,
	},
}

var tsKinds = map[string]lens.SymbolKind{
	"function_declaration":           lens.KindFunction,
	"generator_function_declaration": lens.KindFunction,
	"class_declaration":              lens.KindClass,
	"abstract_class_declaration":     lens.KindClass,
	"interface_declaration":          lens.KindInterface,
	"enum_declaration":               lens.KindEnum,
	"method_definition":              lens.KindMethod,
	"method_signature":               lens.KindMethod,
	"public_field_definition":        lens.KindProperty,
	"property_signature":             lens.KindProperty,
	"variable_declarator":            lens.KindVariable,
}

// functionBodies are the node types whose locals stay out of the outline.
var functionBodies = map[string]bool{
	"statement_block": true,
	"block":           true,
	"function_body":   true,
}

// implBlocks hold methods without being declarations themselves.
var implBlocks = map[string]bool{
	"impl_item": true,
}

// parseOutline returns the declarations of text as a symbol tree.
func parseOutline(ctx context.Context, grammar, text string) ([]lens.DocumentSymbol, error) {
	tsLang, err := getLanguage(grammar)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(tsLang)

	source := []byte(text)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	defer tree.Close()

	w := &outlineWalker{
		kinds:  declarationKinds[grammar],
		source: source,
		index:  newPositionIndex(text),
	}
	return w.walk(tree.RootNode(), false, false), nil
}

type outlineWalker struct {
	kinds  map[string]lens.SymbolKind
	source []byte
	index  *positionIndex
}

// walk returns the declarations under node. Declarations nest the ones found
// inside them; variables inside function bodies are skipped and functions
// declared in a type body become methods.
func (w *outlineWalker) walk(node *sitter.Node, inBody, inType bool) []lens.DocumentSymbol {
	var out []lens.DocumentSymbol
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		childInBody := inBody || functionBodies[child.Type()]
		childInType := inType || implBlocks[child.Type()]

		kind, ok := w.kinds[child.Type()]
		if ok && kind == lens.KindVariable && inBody {
			ok = false
		}
		if !ok {
			out = append(out, w.walk(child, childInBody, childInType)...)
			continue
		}

		sym, named := w.symbol(child, kind)
		if !named {
			out = append(out, w.walk(child, childInBody, childInType)...)
			continue
		}
		if sym.Kind == lens.KindFunction && inType {
			sym.Kind = lens.KindMethod
		}
		sym.Children = w.walk(child, childInBody, isTypeKind(sym.Kind))
		out = append(out, sym)
	}
	return out
}

func isTypeKind(kind lens.SymbolKind) bool {
	switch kind {
	case lens.KindClass, lens.KindInterface, lens.KindStruct, lens.KindEnum:
		return true
	}
	return false
}

func (w *outlineWalker) symbol(node *sitter.Node, kind lens.SymbolKind) (lens.DocumentSymbol, bool) {
	nameNode := w.nameNode(node)
	if nameNode == nil {
		return lens.DocumentSymbol{}, false
	}

	declNode := node
	switch node.Type() {
	case "type_spec":
		kind = goTypeKind(node)
		// A lone spec spans its "type" keyword too.
		if parent := node.Parent(); parent != nil && parent.Type() == "type_declaration" && parent.NamedChildCount() == 1 {
			declNode = parent
		}
	case "variable_declarator":
		// Cover the const/let keyword.
		if parent := node.Parent(); parent != nil && parent.NamedChildCount() == 1 {
			declNode = parent
		}
	}

	return lens.DocumentSymbol{
		Name:           nameNode.Content(w.source),
		Detail:         firstLine(declNode.Content(w.source)),
		Kind:           kind,
		Range:          w.index.rangeOf(declNode),
		SelectionRange: w.index.rangeOf(nameNode),
	}, true
}

// nameNode finds the identifier naming a declaration.
func (w *outlineWalker) nameNode(node *sitter.Node) *sitter.Node {
	if name := node.ChildByFieldName("name"); name != nil {
		return name
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "identifier", "simple_identifier", "type_identifier", "field_identifier", "property_identifier":
			return child
		}
	}
	return nil
}

func goTypeKind(spec *sitter.Node) lens.SymbolKind {
	typ := spec.ChildByFieldName("type")
	if typ == nil {
		return lens.KindClass
	}
	switch typ.Type() {
	case "struct_type":
		return lens.KindStruct
	case "interface_type":
		return lens.KindInterface
	default:
		return lens.KindClass
	}
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\n{"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// positionIndex converts tree-sitter byte points to UTF-16 positions.
type positionIndex struct {
	text       string
	lineStarts []int
}

func newPositionIndex(text string) *positionIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &positionIndex{text: text, lineStarts: starts}
}

func (p *positionIndex) position(pt sitter.Point) lens.Position {
	row := int(pt.Row)
	if row >= len(p.lineStarts) {
		row = len(p.lineStarts) - 1
	}
	start := p.lineStarts[row]
	end := min(start+int(pt.Column), len(p.text))

	units := 0
	for _, r := range p.text[start:end] {
		if r == utf8.RuneError {
			units++
			continue
		}
		units += utf16.RuneLen(r)
	}
	return lens.Position{Line: row, Character: units}
}

func (p *positionIndex) rangeOf(node *sitter.Node) lens.Range {
	return lens.Range{
		Start: p.position(node.StartPoint()),
		End:   p.position(node.EndPoint()),
	}
}
