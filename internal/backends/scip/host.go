package scip

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"typelens/internal/backends"
	lenserrors "typelens/internal/errors"
	"typelens/internal/lens"
	"typelens/internal/watcher"
)

// reloadDelay is the quiet period after the last index write before reloading.
const reloadDelay = 250 * time.Millisecond

// Host answers lens outline and reference queries from a SCIP index.
type Host struct {
	repoRoot  string
	indexPath string
	logger    *slog.Logger

	index atomic.Pointer[Index]
}

// NewHost creates a host for the index at indexPath. The index is not read
// until Load is called.
func NewHost(repoRoot, indexPath string, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Host{
		repoRoot:  repoRoot,
		indexPath: ResolveIndexPath(repoRoot, indexPath),
		logger:    logger,
	}
}

// ID implements backends.Backend.
func (h *Host) ID() backends.BackendID {
	return backends.BackendSCIP
}

// Index returns the loaded index, or nil.
func (h *Host) Index() *Index {
	return h.index.Load()
}

// Load reads the index from disk. A failed load keeps the previous index.
func (h *Host) Load() error {
	idx, err := LoadIndex(h.indexPath)
	if err != nil {
		return err
	}
	h.index.Store(idx)

	h.logger.Info("Loaded SCIP index",
		"path", h.indexPath,
		"documents", len(idx.Documents),
		"occurrences", idx.OccurrenceCount(),
		"indexedCommit", idx.IndexedCommit,
	)
	return nil
}

// document resolves uri against the loaded index.
func (h *Host) document(uri string) (*Index, *Document, error) {
	idx := h.index.Load()
	if idx == nil {
		return nil, nil, lenserrors.NewLensError(
			lenserrors.IndexMissing,
			fmt.Sprintf("no SCIP index loaded from %s", h.indexPath),
			nil,
			lenserrors.GetSuggestedFixes(lenserrors.IndexMissing),
		)
	}

	rel, ok := backends.RelativePath(h.repoRoot, uri)
	if !ok {
		return nil, nil, lenserrors.NewLensError(lenserrors.MissingData, fmt.Sprintf("%s is outside %s", uri, h.repoRoot), nil, nil)
	}
	doc := idx.Document(rel)
	if doc == nil {
		return nil, nil, lenserrors.NewLensError(lenserrors.MissingData, fmt.Sprintf("%s is not in the SCIP index", rel), nil, nil)
	}
	return idx, doc, nil
}

// Covers reports whether the loaded index has uri.
func (h *Host) Covers(uri string) bool {
	_, _, err := h.document(uri)
	return err == nil
}

// Outline lists the global definitions of uri as flat symbols.
func (h *Host) Outline(ctx context.Context, uri string) ([]lens.OutlineNode, error) {
	idx, doc, err := h.document(uri)
	if err != nil {
		return nil, err
	}

	var nodes []lens.OutlineNode
	for _, occ := range doc.Occurrences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !occ.IsDefinition() || IsLocalSymbol(occ.Symbol) {
			continue
		}
		id, err := ParseSCIPIdentifier(occ.Symbol)
		if err != nil || id.IsParameter() {
			continue
		}

		r, ok := toRange(occ.EnclosingRange)
		if !ok {
			if r, ok = toRange(occ.Range); !ok {
				continue
			}
		}

		name := id.GetSimpleName()
		kind := id.InferKind()
		if info := idx.Symbol(occ.Symbol); info != nil {
			if info.DisplayName != "" {
				name = info.DisplayName
			}
			if k, ok := kindByName[info.Kind]; ok {
				kind = k
			}
		}

		nodes = append(nodes, &lens.SymbolInformation{
			Name:     name,
			Kind:     kind,
			Location: &lens.Location{URI: uri, Range: r},
		})
	}

	return nodes, nil
}

// References returns every occurrence of the symbol at pos, definition
// included. A position on no symbol has no references.
func (h *Host) References(ctx context.Context, uri string, pos lens.Position) ([]lens.Location, error) {
	idx, doc, err := h.document(uri)
	if err != nil {
		return nil, err
	}

	var symbol string
	for _, occ := range doc.Occurrences {
		if r, ok := toRange(occ.Range); ok && occ.Symbol != "" && r.ContainsPosition(pos) {
			symbol = occ.Symbol
			break
		}
	}
	if symbol == "" {
		return nil, nil
	}

	occs := idx.mentionsOf(doc, symbol)
	locs := make([]lens.Location, 0, len(occs))
	for _, so := range occs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, ok := toRange(so.occ.Range)
		if !ok {
			continue
		}
		locs = append(locs, lens.Location{
			URI:   backends.PathToURI(filepath.Join(h.repoRoot, filepath.FromSlash(so.doc.RelativePath))),
			Range: r,
		})
	}
	return locs, nil
}

// Watch reloads the index whenever the file is rewritten. It blocks until
// ctx is done.
func (h *Host) Watch(ctx context.Context) error {
	dir := filepath.Dir(h.indexPath)
	w, err := watcher.New(dir, watcher.MatchPath(h.indexPath), reloadDelay, h.logger)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return w.Run(ctx, func(events []watcher.Event) {
		if events[len(events)-1].Type == watcher.EventDelete {
			return
		}
		if err := h.Load(); err != nil {
			h.logger.Warn("SCIP index reload failed, keeping previous index",
				"path", h.indexPath,
				"error", err.Error(),
			)
		}
	})
}
