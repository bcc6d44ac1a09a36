package scip

import (
	"fmt"
	"strings"

	"typelens/internal/lens"
)

// SCIPIdentifier represents a parsed SCIP symbol identifier
type SCIPIdentifier struct {
	// Scheme is the indexer scheme (e.g., "scip-typescript", "scip-go")
	Scheme string

	// Manager is the package manager (e.g., "npm", "gomod")
	Manager string

	// Package is the package name
	Package string

	// Descriptor is the symbol descriptor path
	Descriptor string

	// Raw is the original SCIP identifier
	Raw string
}

// ParseSCIPIdentifier parses a global SCIP symbol identifier:
//
//	<scheme> <manager> <package> <version> <descriptor>
//
// Examples:
//
//	scip-typescript npm @types/node 18.0.0 process.
//	scip-go gomod example.com/app a6af7cfb `example.com/app/api`/NewServer().
func ParseSCIPIdentifier(id string) (*SCIPIdentifier, error) {
	if id == "" {
		return nil, fmt.Errorf("empty SCIP identifier")
	}
	if IsLocalSymbol(id) {
		return nil, fmt.Errorf("local SCIP symbol has no descriptor: %s", id)
	}

	// The descriptor may contain spaces.
	parts := strings.SplitN(id, " ", 5)
	if len(parts) < 4 {
		return nil, fmt.Errorf("invalid SCIP identifier format: %s", id)
	}

	result := &SCIPIdentifier{
		Scheme:  parts[0],
		Manager: parts[1],
		Package: parts[2],
		Raw:     id,
	}
	if len(parts) == 4 {
		result.Descriptor = parts[3]
	} else {
		result.Descriptor = parts[4]
	}

	return result, nil
}

// IsLocalSymbol reports whether id is a document-local symbol ("local 12").
func IsLocalSymbol(id string) bool {
	return strings.HasPrefix(id, "local ")
}

// GetSimpleName extracts the simple name from the descriptor
// Examples:
//   - "process.env.NODE_ENV." -> "NODE_ENV"
//   - "`example.com/app/api`/NewServer()." -> "NewServer"
//   - "Widget#render(+1)." -> "render"
func (s *SCIPIdentifier) GetSimpleName() string {
	descriptor := strings.TrimSuffix(s.Descriptor, ".")
	descriptor = strings.TrimSuffix(descriptor, "#")
	descriptor = strings.TrimSuffix(descriptor, "()")

	// A package descriptor is just its quoted path.
	if quoted, ok := strings.CutSuffix(descriptor, "`/"); ok {
		if first := strings.LastIndex(quoted, "`"); first != -1 {
			quoted = quoted[first+1:]
		}
		return quoted[strings.LastIndex(quoted, "/")+1:]
	}

	// Drop backtick-quoted package paths first; they contain separators.
	if last := strings.LastIndex(descriptor, "`"); last != -1 {
		descriptor = descriptor[last+1:]
	}

	cut := strings.LastIndexAny(descriptor, "/#.")
	name := descriptor[cut+1:]
	if i := strings.Index(name, "("); i > 0 && strings.HasSuffix(name, ")") {
		name = name[:i]
	}
	return strings.Trim(name, "`")
}

// InferKind guesses a symbol kind from descriptor suffixes when the index
// carries no kind: "()." is a method inside a type and a function otherwise,
// "#" is a type, everything else a variable.
func (s *SCIPIdentifier) InferKind() lens.SymbolKind {
	d := s.Descriptor
	switch {
	case strings.HasSuffix(d, ")."):
		owner := strings.TrimSuffix(d, ").")
		if i := strings.LastIndex(owner, "("); i != -1 {
			owner = owner[:i]
		}
		if strings.Contains(owner, "#") {
			return lens.KindMethod
		}
		return lens.KindFunction
	case strings.HasSuffix(d, "#"):
		return lens.KindClass
	case strings.HasSuffix(d, "/"):
		return lens.KindPackage
	case d == "":
		return 0
	}
	return lens.KindVariable
}

// IsParameter reports whether the descriptor names a parameter or type
// parameter rather than a declaration.
func (s *SCIPIdentifier) IsParameter() bool {
	return strings.HasSuffix(s.Descriptor, ")") || strings.HasSuffix(s.Descriptor, "]")
}
