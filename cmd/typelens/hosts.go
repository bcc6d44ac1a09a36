package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"typelens/internal/backends"
	"typelens/internal/backends/lsp"
	"typelens/internal/backends/scip"
	"typelens/internal/backends/treesitter"
	"typelens/internal/config"
	"typelens/internal/repostate"
	"typelens/internal/slogutil"
)

// maxInFlightReferences bounds concurrent reference queries per backend.
const maxInFlightReferences = 16

// hostSet is the backend ladder plus the hosts behind it.
type hostSet struct {
	root       string
	ladder     *backends.Ladder
	lsp        *lsp.Host
	pool       *lsp.Pool
	scip       *scip.Host
	syntax     *treesitter.Host
	scipLoaded bool
}

// openHosts builds the language server, SCIP and tree-sitter hosts for root.
// kind picks the preferred backend; an unreadable index is only fatal when
// SCIP was asked for explicitly. The tree-sitter host always comes last.
func openHosts(cfg *config.Config, root, kind, indexPath string, docs lsp.DocumentSource, logger *slog.Logger) (*hostSet, error) {
	if kind == "" {
		kind = cfg.Backend.Kind
	}
	switch kind {
	case string(backends.BackendLSP), string(backends.BackendSCIP):
	default:
		return nil, fmt.Errorf("unknown backend %q (want lsp or scip)", kind)
	}

	if indexPath == "" {
		indexPath = cfg.Backend.Scip.IndexPath
	}
	if !filepath.IsAbs(indexPath) {
		indexPath = filepath.Join(root, indexPath)
	}

	hs := &hostSet{root: root}
	hs.pool = lsp.NewPool(cfg, logger.With(slogutil.ComponentKey, "lsp"))
	hs.lsp = lsp.NewHost(hs.pool, docs, logger.With(slogutil.ComponentKey, "lsp"))
	hs.scip = scip.NewHost(root, indexPath, logger.With(slogutil.ComponentKey, "scip"))
	hs.syntax = treesitter.NewHost(docs, logger.With(slogutil.ComponentKey, "treesitter"))

	if err := hs.scip.Load(); err != nil {
		if kind == string(backends.BackendSCIP) {
			_ = hs.pool.Shutdown()
			return nil, fmt.Errorf("failed to load SCIP index: %w", err)
		}
		logger.Info("No SCIP index, using language servers only",
			"path", indexPath,
			"error", err.Error(),
		)
	} else {
		hs.scipLoaded = true
		if f, ok := hs.indexFreshness(context.Background()); ok && f.Stale {
			logger.Warn("SCIP index was built from a different commit, references may be out of date",
				"indexedCommit", f.IndexedCommit,
				"headCommit", f.HeadCommit,
			)
		}
	}

	hs.ladder = backends.NewLadder(
		backends.BackendID(kind),
		[]backends.Backend{hs.scip, hs.lsp, hs.syntax},
		backends.NewLimiter(maxInFlightReferences, backends.BackendSCIP, backends.BackendLSP, backends.BackendTreeSitter),
		logger,
	)
	return hs, nil
}

// health reports backend state for the metrics endpoint.
func (hs *hostSet) health(ctx context.Context) map[string]any {
	order := hs.ladder.Order()
	ids := make([]string, len(order))
	for i, id := range order {
		ids[i] = string(id)
	}

	status := map[string]any{
		"backends":      ids,
		"lspServers":    hs.pool.Stats(),
		"scipAvailable": false,
		"treesitter":    treesitter.Available(),
	}
	if idx := hs.scip.Index(); idx != nil {
		status["scipAvailable"] = true
		status["scipDocuments"] = len(idx.Documents)
		status["scipLoadedAt"] = idx.LoadedAt
		if f, ok := hs.indexFreshness(ctx); ok {
			status["scipFreshness"] = f
		}
	}
	return status
}

// indexFreshness compares the loaded index with the repository HEAD. It
// fails when no index is loaded or root is not a git working copy.
func (hs *hostSet) indexFreshness(ctx context.Context) (repostate.Freshness, bool) {
	idx := hs.scip.Index()
	if idx == nil {
		return repostate.Freshness{}, false
	}
	state, err := repostate.Compute(ctx, hs.root)
	if err != nil {
		return repostate.Freshness{}, false
	}
	return repostate.CheckIndex(idx.IndexedCommit, state), true
}

func (hs *hostSet) Close() error {
	return hs.pool.Shutdown()
}
