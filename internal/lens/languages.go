package lens

// standardKinds is the interest set for languages without their own entry.
var standardKinds = []SymbolKind{
	KindMethod,
	KindFunction,
	KindProperty,
	KindClass,
	KindInterface,
	KindVariable,
}

var cssKinds = []SymbolKind{KindMethod, KindFunction, KindProperty, KindVariable}

// defaultLanguageKinds lists the symbol kinds worth annotating per document
// language.
var defaultLanguageKinds = map[string][]SymbolKind{
	"scss":            cssKinds,
	"less":            cssKinds,
	"typescript":      append(append([]SymbolKind{}, standardKinds...), KindEnum),
	"typescriptreact": append(append([]SymbolKind{}, standardKinds...), KindEnum),
	"javascript":      standardKinds,
}

// typeAnnotatedLanguages get the variable refinement check.
var typeAnnotatedLanguages = map[string]bool{
	"typescript":      true,
	"typescriptreact": true,
}

func kindSet(kinds []SymbolKind) map[SymbolKind]bool {
	set := make(map[SymbolKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}
