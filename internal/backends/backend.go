// Package backends chooses where outline and reference answers come from:
// a SCIP index when one covers the document, a language server otherwise,
// and a tree-sitter parse as the outline of last resort.
package backends

import (
	"typelens/internal/lens"
)

// BackendID uniquely identifies a backend type
type BackendID string

const (
	// BackendSCIP represents the SCIP index backend
	BackendSCIP BackendID = "scip"
	// BackendLSP represents the Language Server Protocol backend
	BackendLSP BackendID = "lsp"
	// BackendTreeSitter parses open documents for outlines only
	BackendTreeSitter BackendID = "treesitter"
)

// Backend answers lens host queries for the documents it covers.
type Backend interface {
	lens.OutlineProvider
	lens.ReferenceProvider

	// ID returns the unique identifier for this backend
	ID() BackendID

	// Covers reports whether the backend can answer for uri right now
	Covers(uri string) bool
}
