package server

import (
	"encoding/json"

	"typelens/internal/lens"
)

// JSON-RPC error codes
const (
	codeParseError       = -32700
	codeInvalidParams    = -32602
	codeMethodNotFound   = -32601
	codeInternalError    = -32603
	codeInvalidRequest   = -32600
	codeRequestCancelled = -32800
	codeContentModified  = -32801
)

// ToggleCommand flips lens evaluation on and off.
const ToggleCommand = "typelens.toggle"

// Custom notifications exchanged with the client.
const (
	methodActiveEditor     = "typelens/didChangeActiveEditor"
	methodApplyHighlight   = "typelens/applyHighlight"
	methodDisposeHighlight = "typelens/disposeHighlight"
	methodCodeLensRefresh  = "workspace/codeLens/refresh"
)

type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *responseError  `json:"error,omitempty"`
}

func (m *message) isRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

func (m *message) isResponse() bool {
	return m.Method == "" && len(m.ID) > 0
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *responseError  `json:"error"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *responseError) Error() string {
	return e.Message
}

type outgoingRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type textDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type versionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

type contentChange struct {
	Range *lens.Range `json:"range,omitempty"`
	Text  string      `json:"text"`
}

type didOpenParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type didChangeParams struct {
	TextDocument   versionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []contentChange                 `json:"contentChanges"`
}

type didCloseParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type codeLensParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type cancelParams struct {
	ID json.RawMessage `json:"id"`
}

type executeCommandParams struct {
	Command   string            `json:"command"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

type didChangeConfigurationParams struct {
	Settings json.RawMessage `json:"settings"`
}

type activeEditorParams struct {
	URI string `json:"uri"`
}

type applyHighlightParams struct {
	URI    string       `json:"uri"`
	Handle string       `json:"handle"`
	Color  string       `json:"color"`
	Ranges []lens.Range `json:"ranges"`
}

type disposeHighlightParams struct {
	Handle string `json:"handle"`
}

type command struct {
	Title     string `json:"title"`
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

type codeLens struct {
	Range   lens.Range      `json:"range"`
	Command *command        `json:"command,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// lensData round-trips an annotation through the client between codeLens
// and codeLens/resolve.
type lensData struct {
	URI         string          `json:"uri"`
	Name        string          `json:"name"`
	Kind        lens.SymbolKind `json:"kind"`
	Declaration lens.Range      `json:"declaration"`
	Anchor      lens.Range      `json:"anchor"`
	Offset      int             `json:"offset"`
	Pass        uint64          `json:"pass"`
}

func newLensData(a lens.Annotation) lensData {
	return lensData{
		URI:         a.URI,
		Name:        a.Name,
		Kind:        a.Kind,
		Declaration: a.Declaration,
		Anchor:      a.Anchor,
		Offset:      a.Offset,
		Pass:        a.Pass,
	}
}

func (d lensData) annotation() lens.Annotation {
	return lens.Annotation{Candidate: lens.Candidate{
		URI:         d.URI,
		Name:        d.Name,
		Kind:        d.Kind,
		Declaration: d.Declaration,
		Anchor:      d.Anchor,
		Offset:      d.Offset,
		Pass:        d.Pass,
	}}
}

type serverCapabilities struct {
	TextDocumentSync int `json:"textDocumentSync"`
	CodeLensProvider struct {
		ResolveProvider bool `json:"resolveProvider"`
	} `json:"codeLensProvider"`
	ExecuteCommandProvider struct {
		Commands []string `json:"commands"`
	} `json:"executeCommandProvider"`
}

type initializeResult struct {
	Capabilities serverCapabilities `json:"capabilities"`
	ServerInfo   map[string]string  `json:"serverInfo,omitempty"`
}
