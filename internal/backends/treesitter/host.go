// Package treesitter outlines open documents by parsing them. It has no
// reference information and only serves as the outline of last resort.
package treesitter

import (
	"context"
	"fmt"
	"log/slog"

	"typelens/internal/backends"
	lenserrors "typelens/internal/errors"
	"typelens/internal/lens"
)

// DocumentSource returns the latest snapshot of an open document.
type DocumentSource interface {
	Document(uri string) (*lens.Document, bool)
}

// Host answers outline queries from a syntax tree of the open document.
type Host struct {
	docs   DocumentSource
	logger *slog.Logger
}

// NewHost creates a parser-backed host over docs.
func NewHost(docs DocumentSource, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Host{docs: docs, logger: logger}
}

// ID implements backends.Backend.
func (h *Host) ID() backends.BackendID {
	return backends.BackendTreeSitter
}

// Covers reports whether uri is open in a language with a grammar.
func (h *Host) Covers(uri string) bool {
	if !Available() {
		return false
	}
	doc, ok := h.docs.Document(uri)
	return ok && grammarFor(doc.LanguageID) != ""
}

// Outline parses the open document.
func (h *Host) Outline(ctx context.Context, uri string) ([]lens.OutlineNode, error) {
	doc, ok := h.docs.Document(uri)
	if !ok {
		return nil, lenserrors.NewLensError(lenserrors.MissingData, fmt.Sprintf("document not open: %s", uri), nil, nil)
	}
	grammar := grammarFor(doc.LanguageID)
	if grammar == "" {
		return nil, lenserrors.NewLensError(lenserrors.BackendUnavailable,
			fmt.Sprintf("no grammar for %s", doc.LanguageID), nil, nil)
	}

	symbols, err := parseOutline(ctx, grammar, doc.FullText())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, lenserrors.Wrap(lenserrors.BackendUnavailable, err, "parse %s", uri)
	}
	h.logger.Debug("Parsed outline", "uri", uri, "grammar", grammar, "symbols", len(symbols))

	nodes := make([]lens.OutlineNode, len(symbols))
	for i := range symbols {
		nodes[i] = &symbols[i]
	}
	return nodes, nil
}

// References always falls through: a syntax tree knows no references.
func (h *Host) References(ctx context.Context, uri string, pos lens.Position) ([]lens.Location, error) {
	return nil, lenserrors.NewLensError(lenserrors.BackendUnavailable,
		"tree-sitter backend has no reference information", nil, nil)
}

var _ backends.Backend = (*Host)(nil)
