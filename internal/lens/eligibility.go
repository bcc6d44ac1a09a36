package lens

import (
	"strings"

	"typelens/internal/config"
)

// anonymousFunctionName is what outline providers report for unnamed
// function expressions.
const anonymousFunctionName = "<function>"

// Refinement is an extra, kind-specific eligibility check.
type Refinement func(sym FlattenedSymbol, doc *Document) bool

// refinements holds the kind-specific checks. Kinds without an entry pass.
var refinements = map[SymbolKind]Refinement{
	KindVariable: refineVariable,
}

// refineVariable keeps module-level and exported variables of TypeScript
// documents and drops locals. It works on raw text and is approximate:
// a variable qualifies when it starts at column 0, when its line up to the
// end of the declaration starts with "type" or "export", or when it starts
// at column 6 behind a leading "const". Documents in other languages never
// qualify.
func refineVariable(sym FlattenedSymbol, doc *Document) bool {
	if !typeAnnotatedLanguages[doc.LanguageID] {
		return false
	}
	r := *sym.Range
	if r.Start.Character == 0 {
		return true
	}
	text := doc.Text(Range{Start: Position{Line: r.Start.Line}, End: r.End})
	return strings.HasPrefix(text, "type") ||
		strings.HasPrefix(text, "export") ||
		(r.Start.Character == 6 && strings.HasPrefix(text, "const"))
}

// EligibilityConfig is the per-evaluation snapshot of the settings that
// decide eligibility.
type EligibilityConfig struct {
	Toggles       map[SymbolKind]bool
	IgnoreList    map[string]bool
	SkipLanguages map[string]bool
	// LanguageKinds maps a language id to its kinds of interest. Languages
	// without an entry use the standard set.
	LanguageKinds map[string]map[SymbolKind]bool
}

// NewEligibilityConfig snapshots s. Kind names in s.Languages that are not
// recognized are ignored.
func NewEligibilityConfig(s config.Settings) EligibilityConfig {
	cfg := EligibilityConfig{
		Toggles: map[SymbolKind]bool{
			KindMethod:    s.ShowReferencesForMethods,
			KindFunction:  s.ShowReferencesForFunctions,
			KindProperty:  s.ShowReferencesForProperties,
			KindClass:     s.ShowReferencesForClasses,
			KindInterface: s.ShowReferencesForInterfaces,
			KindEnum:      s.ShowReferencesForEnums,
			KindVariable:  s.ShowReferencesForVariables,
		},
		IgnoreList:    make(map[string]bool, len(s.IgnoreList)),
		SkipLanguages: make(map[string]bool, len(s.SkipLanguages)),
		LanguageKinds: make(map[string]map[SymbolKind]bool, len(defaultLanguageKinds)+len(s.Languages)),
	}
	for _, name := range s.IgnoreList {
		cfg.IgnoreList[name] = true
	}
	for _, lang := range s.SkipLanguages {
		cfg.SkipLanguages[lang] = true
	}
	for lang, kinds := range defaultLanguageKinds {
		cfg.LanguageKinds[lang] = kindSet(kinds)
	}
	for lang, names := range s.Languages {
		kinds := make([]SymbolKind, 0, len(names))
		for _, name := range names {
			if kind, ok := ParseSymbolKind(name); ok {
				kinds = append(kinds, kind)
			}
		}
		cfg.LanguageKinds[lang] = kindSet(kinds)
	}
	return cfg
}

// Filter decides which flattened symbols get an annotation.
type Filter struct {
	cfg         EligibilityConfig
	standard    map[SymbolKind]bool
	refinements map[SymbolKind]Refinement
}

// NewFilter builds a filter over cfg.
func NewFilter(cfg EligibilityConfig) *Filter {
	return &Filter{
		cfg:         cfg,
		standard:    kindSet(standardKinds),
		refinements: refinements,
	}
}

// SkipsLanguage reports whether documents in lang are never annotated.
func (f *Filter) SkipsLanguage(lang string) bool {
	return f.cfg.SkipLanguages[lang]
}

// Eligible reports whether sym deserves an annotation in doc.
func (f *Filter) Eligible(sym FlattenedSymbol, doc *Document) bool {
	if sym.Name == "" || sym.Range == nil {
		return false
	}

	interest, ok := f.cfg.LanguageKinds[doc.LanguageID]
	if !ok {
		interest = f.standard
	}
	if !interest[sym.Kind] {
		return false
	}

	// Kinds without a toggle only get here through a language override.
	if enabled, ok := f.cfg.Toggles[sym.Kind]; ok && !enabled {
		return false
	}

	if isExcludedName(sym.Name) || f.cfg.IgnoreList[sym.Name] {
		return false
	}

	if refine, ok := f.refinements[sym.Kind]; ok {
		return refine(sym, doc)
	}
	return true
}

// isExcludedName matches qualified names and anonymous callbacks.
func isExcludedName(name string) bool {
	return strings.Contains(name, ".") ||
		name == anonymousFunctionName ||
		strings.HasSuffix(name, " callback")
}
