// Package server exposes the lens provider to editors as a stdio language
// server. Lenses are listed with textDocument/codeLens and labelled with
// codeLens/resolve; unused-symbol highlights travel as typelens/*
// notifications.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"typelens/internal/config"
	"typelens/internal/lens"
)

// Backend answers outline and reference queries.
type Backend interface {
	lens.OutlineProvider
	lens.ReferenceProvider
}

// DocumentCloser is told when the client closes a document.
type DocumentCloser interface {
	CloseDocument(uri, languageID string) error
}

// SettingsStore is the configuration the server reads and updates.
type SettingsStore interface {
	lens.SettingsSource
	Apply(overrides map[string]interface{})
	Changes() <-chan struct{}
}

// ErrExitWithoutShutdown is returned by Serve when the client sent exit
// before shutdown.
var ErrExitWithoutShutdown = errors.New("exit received before shutdown")

// Options configures a Server.
type Options struct {
	Backend   Backend
	Documents *Documents
	Settings  SettingsStore
	// Closer is optional.
	Closer   DocumentCloser
	Logger   *slog.Logger
	Observer lens.Observer
	Version  string
}

type requestHandler func(ctx context.Context, params json.RawMessage) (any, *responseError)

// Server is a single-client stdio language server.
type Server struct {
	docs     *Documents
	settings SettingsStore
	closer   DocumentCloser
	logger   *slog.Logger
	version  string
	provider *lens.Provider

	conn atomic.Pointer[conn]

	activeMu sync.RWMutex
	active   string

	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc
	wg         sync.WaitGroup

	shutdown atomic.Bool
	handlers map[string]requestHandler
}

// New creates a server. It does nothing until Serve is called.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	docs := opts.Documents
	if docs == nil {
		docs = NewDocuments()
	}

	s := &Server{
		docs:     docs,
		settings: opts.Settings,
		closer:   opts.Closer,
		logger:   logger,
		version:  opts.Version,
		inflight: make(map[string]context.CancelFunc),
	}
	s.provider = lens.NewProvider(lens.Options{
		Outline:     opts.Backend,
		References:  opts.Backend,
		Highlighter: s,
		Workspace:   s,
		Settings:    opts.Settings,
		Logger:      logger,
		Observer:    opts.Observer,
	})
	s.handlers = map[string]requestHandler{
		"textDocument/codeLens":    s.codeLens,
		"codeLens/resolve":         s.resolveCodeLens,
		"workspace/executeCommand": s.executeCommand,
	}
	return s
}

// Provider returns the lens provider driven by the server.
func (s *Server) Provider() *lens.Provider {
	return s.provider
}

// Documents returns the open document store.
func (s *Server) Documents() *Documents {
	return s.docs
}

// Serve reads requests from in and writes responses to out until the
// client sends exit or in is closed. Requests run concurrently;
// notifications are applied in arrival order.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	c := newConn(in, out)
	s.conn.Store(c)

	defer s.wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watchSettings(ctx)
	}()

	for {
		msg, err := c.read()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			var rpcErr *responseError
			if errors.As(err, &rpcErr) {
				s.logger.Warn("Dropping malformed message", "error", err.Error())
				continue
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		switch {
		case msg.isResponse():
			// Replies to workspace/codeLens/refresh carry nothing we need.
		case msg.Method == "exit":
			if !s.shutdown.Load() {
				return ErrExitWithoutShutdown
			}
			return nil
		case msg.isRequest():
			s.handleRequest(ctx, msg)
		default:
			s.handleNotification(msg)
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, msg *message) {
	switch msg.Method {
	case "initialize":
		s.reply(msg.ID, s.initialize(), nil)
		return
	case "shutdown":
		s.shutdown.Store(true)
		s.cancelAll()
		s.reply(msg.ID, nil, nil)
		return
	}

	if s.shutdown.Load() {
		s.reply(msg.ID, nil, &responseError{Code: codeInvalidRequest, Message: "server is shutting down"})
		return
	}

	handler, ok := s.handlers[msg.Method]
	if !ok {
		s.reply(msg.ID, nil, &responseError{Code: codeMethodNotFound, Message: "method not found: " + msg.Method})
		return
	}

	reqCtx, cancel := context.WithCancel(ctx)
	key := requestKey(msg.ID)
	s.inflightMu.Lock()
	s.inflight[key] = cancel
	s.inflightMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.inflightMu.Lock()
			delete(s.inflight, key)
			s.inflightMu.Unlock()
			cancel()
		}()

		result, rpcErr := handler(reqCtx, msg.Params)
		s.reply(msg.ID, result, rpcErr)
	}()
}

func (s *Server) handleNotification(msg *message) {
	var err error
	switch msg.Method {
	case "initialized":
	case "textDocument/didOpen":
		err = s.didOpen(msg.Params)
	case "textDocument/didChange":
		err = s.didChange(msg.Params)
	case "textDocument/didClose":
		err = s.didClose(msg.Params)
	case "$/cancelRequest":
		err = s.cancelRequest(msg.Params)
	case "workspace/didChangeConfiguration":
		err = s.didChangeConfiguration(msg.Params)
	case methodActiveEditor:
		err = s.didChangeActiveEditor(msg.Params)
	default:
		s.logger.Debug("Ignoring notification", "method", msg.Method)
	}
	if err != nil {
		s.logger.Warn("Notification failed", "method", msg.Method, "error", err.Error())
	}
}

func (s *Server) reply(id json.RawMessage, result any, rpcErr *responseError) {
	if err := s.conn.Load().reply(id, result, rpcErr); err != nil {
		s.logger.Warn("Failed to write response", "error", err.Error())
	}
}

func (s *Server) notify(method string, params any) {
	c := s.conn.Load()
	if c == nil {
		return
	}
	if err := c.notify(method, params); err != nil {
		s.logger.Warn("Failed to write notification", "method", method, "error", err.Error())
	}
}

// refreshLenses asks the client to re-request every code lens.
func (s *Server) refreshLenses() {
	c := s.conn.Load()
	if c == nil {
		return
	}
	if err := c.request(methodCodeLensRefresh, nil); err != nil {
		s.logger.Warn("Failed to request lens refresh", "error", err.Error())
	}
}

func (s *Server) cancelAll() {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	for _, cancel := range s.inflight {
		cancel()
	}
}

// watchSettings re-renders highlights and refreshes lenses whenever the
// settings change.
func (s *Server) watchSettings(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.settings.Changes():
			s.provider.SettingsChanged()
			s.refreshLenses()
		}
	}
}

// requestKey normalizes a JSON-RPC id for lookups.
func requestKey(id json.RawMessage) string {
	return string(bytes.TrimSpace(id))
}

// Apply implements lens.Highlighter.
func (s *Server) Apply(uri string, style lens.StyleHandle, color string, ranges []lens.Range) {
	if ranges == nil {
		ranges = []lens.Range{}
	}
	s.notify(methodApplyHighlight, applyHighlightParams{
		URI:    uri,
		Handle: style.String(),
		Color:  color,
		Ranges: ranges,
	})
}

// Dispose implements lens.Highlighter.
func (s *Server) Dispose(style lens.StyleHandle) {
	s.notify(methodDisposeHighlight, disposeHighlightParams{Handle: style.String()})
}

// ActiveDocument implements lens.Workspace.
func (s *Server) ActiveDocument() string {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()
	return s.active
}

var _ SettingsStore = (*config.Store)(nil)
