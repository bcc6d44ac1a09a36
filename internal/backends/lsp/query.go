package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lenserrors "typelens/internal/errors"
)

func unavailable(key string) error {
	return lenserrors.NewLensError(lenserrors.BackendUnavailable,
		fmt.Sprintf("no language server available for %s", key), nil, nil)
}

// ready returns the server for key, starting it if needed.
func (p *Pool) ready(key string) (*Server, error) {
	if !p.Configured(key) {
		return nil, unavailable(key)
	}
	if !p.Ready(key) {
		if err := p.Start(key); err != nil {
			return nil, err
		}
	}
	srv := p.Server(key)
	if srv == nil || !srv.Ready() {
		return nil, unavailable(key)
	}
	return srv, nil
}

// Query sends method to the server for key through its queue and waits for
// the result.
func (p *Pool) Query(ctx context.Context, key, method string, params interface{}) (json.RawMessage, error) {
	if _, err := p.ready(key); err != nil {
		return nil, err
	}

	c := newCall(ctx, method, params)
	if err := p.queue(key).submit(c); err != nil {
		return nil, err
	}

	select {
	case r := <-c.reply:
		return r.result, r.err
	case <-ctx.Done():
		return nil, lenserrors.NewLensError(lenserrors.Cancelled, method+" cancelled", ctx.Err(), nil)
	}
}

// run executes c on the current server for key. It runs on the queue worker.
func (p *Pool) run(key string, c *call) reply {
	start := time.Now()

	srv := p.Server(key)
	if srv == nil || !srv.Ready() {
		return reply{err: unavailable(key), took: time.Since(start)}
	}

	result, err := srv.conn.call(c.ctx, c.method, c.params)
	took := time.Since(start)

	switch {
	case err != nil && c.ctx.Err() != nil:
		// The caller gave up; the server did nothing wrong.
		return reply{err: lenserrors.NewLensError(lenserrors.Cancelled, c.method+" cancelled", err, nil), took: took}
	case lenserrors.HasCode(err, lenserrors.Cancelled), lenserrors.HasCode(err, lenserrors.BackendUnavailable):
		p.logger.Debug("Query not answered", "server", key, "method", c.method, "error", err.Error())
	case err != nil:
		srv.failed()
		p.logger.Error("Query failed", "server", key, "method", c.method, "error", err.Error())
	default:
		srv.succeeded()
		p.logger.Debug("Query answered", "server", key, "method", c.method,
			"tookMs", took.Milliseconds(), "queuedMs", start.Sub(c.queued).Milliseconds())
	}
	return reply{result: result, err: err, took: took}
}

func textDocument(uri string) map[string]interface{} {
	return map[string]interface{}{"uri": uri}
}

// References asks for every reference to the symbol at line:character.
// Calls are paced by the configured references rate.
func (p *Pool) References(ctx context.Context, key, uri string, line, character int, includeDeclaration bool) (json.RawMessage, error) {
	if err := p.references.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, lenserrors.NewLensError(lenserrors.Cancelled, "references cancelled", ctx.Err(), nil)
		}
		return nil, lenserrors.NewLensError(lenserrors.RateLimited, "references rate exceeded", err,
			lenserrors.GetSuggestedFixes(lenserrors.RateLimited))
	}

	return p.Query(ctx, key, "textDocument/references", map[string]interface{}{
		"textDocument": textDocument(uri),
		"position":     map[string]int{"line": line, "character": character},
		"context":      map[string]bool{"includeDeclaration": includeDeclaration},
	})
}

// DocumentSymbols asks for the outline of uri.
func (p *Pool) DocumentSymbols(ctx context.Context, key, uri string) (json.RawMessage, error) {
	return p.Query(ctx, key, "textDocument/documentSymbol", map[string]interface{}{
		"textDocument": textDocument(uri),
	})
}

// SyncDocument makes the server for key hold version of uri.
func (p *Pool) SyncDocument(key, uri, languageID, text string, version int) error {
	srv, err := p.ready(key)
	if err != nil {
		return err
	}
	return srv.syncDocument(uri, languageID, text, version)
}

// CloseDocument tells a running server that uri is closed. It never starts
// a server.
func (p *Pool) CloseDocument(key, uri string) error {
	srv := p.Server(key)
	if srv == nil || !srv.Ready() {
		return nil
	}
	return srv.closeDocument(uri)
}
