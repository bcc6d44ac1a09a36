package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"typelens/internal/backends"
)

// ServerState is the lifecycle state of a language server.
type ServerState string

const (
	StateStarting     ServerState = "starting"
	StateInitializing ServerState = "initializing"
	StateReady        ServerState = "ready"
	StateUnhealthy    ServerState = "unhealthy"
	StateDead         ServerState = "dead"
)

// stopTimeout bounds the shutdown request sent before the process is killed.
const stopTimeout = 2 * time.Second

// Server is one running language server. It serves every document whose
// language maps to Key.
type Server struct {
	Key  string
	Root string

	cmd    *exec.Cmd
	conn   *conn
	logger *slog.Logger

	mu           sync.RWMutex
	state        ServerState
	lastResponse time.Time
	failures     int
	capabilities map[string]interface{}
	// versions holds the document version last sent, per open URI.
	versions map[string]int
}

func newServer(key, root string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		Key:      key,
		Root:     root,
		logger:   logger.With("server", key),
		state:    StateStarting,
		versions: make(map[string]int),
	}
}

// connect starts talking to the server over its stdio. stderr may be nil.
func (s *Server) connect(stdin io.WriteCloser, stdout, stderr io.ReadCloser, timeout time.Duration) {
	s.conn = newConn(stdin, stdout, timeout, s.answer, s.logger)
	if stderr != nil {
		go s.forwardStderr(stderr)
	}
}

// State reports the lifecycle state. A server whose stream ended is dead
// whatever was last recorded.
func (s *Server) State() ServerState {
	if s.conn != nil {
		select {
		case <-s.conn.exited:
			return StateDead
		default:
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Server) setState(state ServerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Ready reports whether the server accepts queries.
func (s *Server) Ready() bool {
	return s.State() == StateReady
}

func (s *Server) succeeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResponse = time.Now()
	s.failures = 0
}

func (s *Server) failed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
}

// Failures counts failed queries since the last success.
func (s *Server) Failures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures
}

// LastResponse is when the server last answered successfully.
func (s *Server) LastResponse() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResponse
}

// Capabilities returns what the server announced during initialize.
func (s *Server) Capabilities() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capabilities
}

// processExited reports whether the OS process is gone.
func (s *Server) processExited() (int, bool) {
	if s.cmd == nil || s.cmd.ProcessState == nil {
		return 0, false
	}
	return s.cmd.ProcessState.ExitCode(), s.cmd.ProcessState.Exited()
}

// initialize runs the handshake and marks the server ready.
func (s *Server) initialize(ctx context.Context) error {
	s.setState(StateInitializing)

	root, err := filepath.Abs(s.Root)
	if err != nil {
		root = s.Root
	}

	params := map[string]interface{}{
		"processId": nil,
		"rootUri":   backends.PathToURI(root),
		"capabilities": map[string]interface{}{
			"textDocument": map[string]interface{}{
				"synchronization": map[string]interface{}{"didSave": false},
				"references":      map[string]interface{}{},
				"documentSymbol": map[string]interface{}{
					"hierarchicalDocumentSymbolSupport": true,
				},
			},
			"workspace": map[string]interface{}{"configuration": true},
		},
	}

	result, err := s.conn.call(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	var reply struct {
		Capabilities map[string]interface{} `json:"capabilities"`
	}
	if json.Unmarshal(result, &reply) == nil {
		s.mu.Lock()
		s.capabilities = reply.Capabilities
		s.mu.Unlock()
	}

	if err := s.conn.notify("initialized", map[string]interface{}{}); err != nil {
		return fmt.Errorf("initialized: %w", err)
	}

	s.setState(StateReady)
	s.succeeded()
	return nil
}

// syncDocument sends didOpen the first time a URI is seen and a full-text
// didChange whenever its version moved since.
func (s *Server) syncDocument(uri, languageID, text string, version int) error {
	s.mu.RLock()
	sent, open := s.versions[uri]
	s.mu.RUnlock()

	var err error
	switch {
	case !open:
		err = s.conn.notify("textDocument/didOpen", map[string]interface{}{
			"textDocument": map[string]interface{}{
				"uri":        uri,
				"languageId": languageID,
				"version":    version,
				"text":       text,
			},
		})
	case sent != version:
		err = s.conn.notify("textDocument/didChange", map[string]interface{}{
			"textDocument":   map[string]interface{}{"uri": uri, "version": version},
			"contentChanges": []map[string]interface{}{{"text": text}},
		})
	default:
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.versions[uri] = version
	s.mu.Unlock()
	return nil
}

// closeDocument sends didClose for a URI previously opened.
func (s *Server) closeDocument(uri string) error {
	s.mu.Lock()
	_, open := s.versions[uri]
	delete(s.versions, uri)
	s.mu.Unlock()
	if !open {
		return nil
	}
	return s.conn.notify("textDocument/didClose", map[string]interface{}{
		"textDocument": map[string]interface{}{"uri": uri},
	})
}

// answer handles requests and notifications the server sends us.
func (s *Server) answer(msg *message) json.RawMessage {
	switch msg.Method {
	case "window/logMessage", "window/showMessage":
		var params struct {
			Type    int    `json:"type"`
			Message string `json:"message"`
		}
		if json.Unmarshal(msg.Params, &params) == nil {
			s.logger.Debug("Server message", "type", params.Type, "message", params.Message)
		}
	case "workspace/configuration":
		// null for each item keeps the server defaults
		var params struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(msg.Params, &params)
		if data, err := json.Marshal(make([]interface{}, len(params.Items))); err == nil {
			return data
		}
	}
	return nullResult
}

func (s *Server) forwardStderr(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		s.logger.Debug("Server stderr", "line", scanner.Text())
	}
}

// stop asks a ready server to exit, then tears the process down.
func (s *Server) stop() {
	if s.conn != nil {
		if s.State() == StateReady {
			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			_, _ = s.conn.call(ctx, "shutdown", nil)
			cancel()
			_ = s.conn.notify("exit", nil)
		}
		s.conn.close()
	}

	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.setState(StateDead)
}

// spawnServer runs the configured command with piped stdio.
func spawnServer(key, root, command string, args []string, timeout time.Duration, logger *slog.Logger) (*Server, error) {
	cmd := exec.Command(command, args...)
	cmd.Dir = root

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	srv := newServer(key, root, logger)
	srv.cmd = cmd
	srv.connect(stdin, stdout, stderr, timeout)
	return srv, nil
}
