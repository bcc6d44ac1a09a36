package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"typelens/internal/backends"
	lenserrors "typelens/internal/errors"
	"typelens/internal/lens"
)

// serverAliases maps document languages onto the server that handles them.
var serverAliases = map[string]string{
	"typescriptreact": "typescript",
	"javascript":      "typescript",
	"javascriptreact": "typescript",
}

// ServerKey returns the configured server key for a document language.
func ServerKey(languageID string) string {
	if key, ok := serverAliases[languageID]; ok {
		return key
	}
	return languageID
}

// DocumentSource returns the latest snapshot of an open document.
type DocumentSource interface {
	Document(uri string) (*lens.Document, bool)
}

// Host answers lens outline and reference queries from language servers.
type Host struct {
	pool   *Pool
	docs   DocumentSource
	logger *slog.Logger
}

// NewHost creates a lens host backed by pool.
func NewHost(pool *Pool, docs DocumentSource, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Host{
		pool:   pool,
		docs:   docs,
		logger: logger,
	}
}

// ID implements backends.Backend.
func (h *Host) ID() backends.BackendID {
	return backends.BackendLSP
}

// Covers reports whether uri is open and its language has a server.
func (h *Host) Covers(uri string) bool {
	doc, ok := h.docs.Document(uri)
	return ok && h.IsAvailable(doc.LanguageID)
}

// IsAvailable reports whether a server is configured for the language
func (h *Host) IsAvailable(languageID string) bool {
	return h.pool.Enabled() && h.pool.Configured(ServerKey(languageID))
}

// sync pushes the current text of uri to its server and returns the server key.
func (h *Host) sync(uri string) (string, error) {
	doc, ok := h.docs.Document(uri)
	if !ok {
		return "", lenserrors.NewLensError(lenserrors.MissingData, fmt.Sprintf("document not open: %s", uri), nil, nil)
	}
	if !h.IsAvailable(doc.LanguageID) {
		return "", lenserrors.NewLensError(
			lenserrors.BackendUnavailable,
			fmt.Sprintf("no LSP server configured for language: %s", doc.LanguageID),
			nil,
			lenserrors.GetSuggestedFixes(lenserrors.BackendUnavailable),
		)
	}

	key := ServerKey(doc.LanguageID)
	if err := h.pool.SyncDocument(key, uri, doc.LanguageID, doc.FullText(), doc.Version); err != nil {
		return "", err
	}
	return key, nil
}

// Outline returns the document symbols of uri.
func (h *Host) Outline(ctx context.Context, uri string) ([]lens.OutlineNode, error) {
	key, err := h.sync(uri)
	if err != nil {
		return nil, err
	}

	result, err := h.pool.DocumentSymbols(ctx, key, uri)
	if err != nil {
		return nil, err
	}

	nodes, err := parseOutline(result, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document symbols: %w", err)
	}

	h.logger.Debug("Fetched outline",
		"uri", uri,
		"nodes", len(nodes),
	)
	return nodes, nil
}

// References returns every reference to the symbol at pos, declaration
// included.
func (h *Host) References(ctx context.Context, uri string, pos lens.Position) ([]lens.Location, error) {
	key, err := h.sync(uri)
	if err != nil {
		return nil, err
	}

	result, err := h.pool.References(ctx, key, uri, pos.Line, pos.Character, true)
	if err != nil {
		return nil, err
	}

	return parseLocations(result)
}

// CloseDocument tells the document's server it is no longer open.
func (h *Host) CloseDocument(uri, languageID string) error {
	return h.pool.CloseDocument(ServerKey(languageID), uri)
}

// wireDocumentSymbol is the LSP DocumentSymbol shape.
type wireDocumentSymbol struct {
	Name           string               `json:"name"`
	Detail         string               `json:"detail,omitempty"`
	Kind           int                  `json:"kind"`
	Range          lens.Range           `json:"range"`
	SelectionRange lens.Range           `json:"selectionRange"`
	Children       []wireDocumentSymbol `json:"children,omitempty"`
}

func (w *wireDocumentSymbol) toLens() lens.DocumentSymbol {
	sym := lens.DocumentSymbol{
		Name:           w.Name,
		Detail:         w.Detail,
		Kind:           lens.SymbolKind(w.Kind),
		Range:          w.Range,
		SelectionRange: w.SelectionRange,
	}
	if len(w.Children) > 0 {
		sym.Children = make([]lens.DocumentSymbol, len(w.Children))
		for i := range w.Children {
			sym.Children[i] = w.Children[i].toLens()
		}
	}
	return sym
}

// wireSymbolInformation is the flat LSP SymbolInformation shape.
type wireSymbolInformation struct {
	Name          string         `json:"name"`
	Kind          int            `json:"kind"`
	ContainerName string         `json:"containerName,omitempty"`
	Location      *lens.Location `json:"location"`
}

// parseOutline decodes a documentSymbol result. Each element is a
// SymbolInformation when it carries a location, otherwise a DocumentSymbol.
func parseOutline(result json.RawMessage, uri string) ([]lens.OutlineNode, error) {
	if isNull(result) {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(result, &items); err != nil {
		return nil, err
	}

	nodes := make([]lens.OutlineNode, 0, len(items))
	for _, item := range items {
		var probe struct {
			Location json.RawMessage `json:"location"`
		}
		if err := json.Unmarshal(item, &probe); err != nil {
			return nil, err
		}

		if len(probe.Location) > 0 {
			var info wireSymbolInformation
			if err := json.Unmarshal(item, &info); err != nil {
				return nil, err
			}
			if info.Location != nil && info.Location.URI == "" {
				info.Location.URI = uri
			}
			nodes = append(nodes, &lens.SymbolInformation{
				Name:          info.Name,
				Kind:          lens.SymbolKind(info.Kind),
				ContainerName: info.ContainerName,
				Location:      info.Location,
			})
			continue
		}

		var sym wireDocumentSymbol
		if err := json.Unmarshal(item, &sym); err != nil {
			return nil, err
		}
		converted := sym.toLens()
		nodes = append(nodes, &converted)
	}

	return nodes, nil
}

// parseLocations decodes a references result.
func parseLocations(result json.RawMessage) ([]lens.Location, error) {
	if isNull(result) {
		return nil, nil
	}

	var locs []lens.Location
	if err := json.Unmarshal(result, &locs); err != nil {
		return nil, fmt.Errorf("failed to parse references: %w", err)
	}
	return locs, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, nullResult)
}
