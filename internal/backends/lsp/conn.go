package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	lenserrors "typelens/internal/errors"
)

// message is a JSON-RPC 2.0 request, notification or response. ID is kept
// raw because servers may number their own requests with strings.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

func (m *message) hasID() bool {
	return len(m.ID) > 0 && string(m.ID) != "null"
}

func (m *message) isResponse() bool {
	return m.hasID() && m.Method == ""
}

// intID decodes the id of a response to one of our calls. Numeric ids
// echoed back as strings are accepted.
func (m *message) intID() (int, bool) {
	var n int
	if err := json.Unmarshal(m.ID, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(m.ID, &s); err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// ResponseError is the error member of a failed response.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("language server error %d: %s", e.Code, e.Message)
}

// Error codes a server may answer with.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeRequestCancelled = -32800
	CodeContentModified  = -32801
)

var nullResult = json.RawMessage("null")

var errMalformedFrame = errors.New("malformed frame")

// requestHandler answers a request the server sent us.
type requestHandler func(msg *message) json.RawMessage

// conn multiplexes calls over one server's stdio.
type conn struct {
	w       io.WriteCloser
	r       io.ReadCloser
	writeMu sync.Mutex

	mu      sync.Mutex
	seq     int
	pending map[int]chan *message

	timeout time.Duration
	handle  requestHandler
	logger  *slog.Logger

	// exited closes when the read side stops.
	exited    chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
}

func newConn(w io.WriteCloser, r io.ReadCloser, timeout time.Duration, handle requestHandler, logger *slog.Logger) *conn {
	c := &conn{
		w:       w,
		r:       r,
		pending: make(map[int]chan *message),
		timeout: timeout,
		handle:  handle,
		logger:  logger,
		exited:  make(chan struct{}),
		closing: make(chan struct{}),
	}
	go c.listen()
	return c
}

func encodeParams(params interface{}) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(params)
	}
}

// call sends a request and waits for its response. Giving up on a call,
// whether through ctx or the timeout, sends $/cancelRequest.
func (c *conn) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	raw, err := encodeParams(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}

	c.mu.Lock()
	c.seq++
	id := c.seq
	ch := make(chan *message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	abandon := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		_ = c.notify("$/cancelRequest", map[string]int{"id": id})
	}

	if err := c.write(&message{JSONRPC: "2.0", ID: json.RawMessage(strconv.Itoa(id)), Method: method, Params: raw}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, lenserrors.NewLensError(lenserrors.BackendUnavailable, "language server exited", nil, nil)
		}
		if resp.Error != nil {
			return nil, serverError(method, resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	case <-timer.C:
		abandon()
		return nil, lenserrors.NewLensError(lenserrors.Timeout,
			fmt.Sprintf("%s timed out after %s", method, c.timeout), nil, nil)
	case <-c.closing:
		return nil, lenserrors.NewLensError(lenserrors.BackendUnavailable, "language server shutting down", nil, nil)
	}
}

func (c *conn) notify(method string, params interface{}) error {
	raw, err := encodeParams(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", method, err)
	}
	return c.write(&message{JSONRPC: "2.0", Method: method, Params: raw})
}

func (c *conn) write(msg *message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	frame := make([]byte, 0, len(body)+32)
	frame = append(frame, "Content-Length: "...)
	frame = strconv.AppendInt(frame, int64(len(body)), 10)
	frame = append(frame, "\r\n\r\n"...)
	frame = append(frame, body...)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(frame); err != nil {
		return lenserrors.Wrap(lenserrors.BackendUnavailable, err, "write %s", describe(msg))
	}
	return nil
}

func describe(msg *message) string {
	if msg.Method != "" {
		return msg.Method
	}
	return "response"
}

// listen dispatches incoming frames until the stream ends, then fails every
// call still waiting.
func (c *conn) listen() {
	defer func() {
		c.mu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
		close(c.exited)
	}()

	reader := bufio.NewReader(c.r)
	for {
		msg, err := readFrame(reader)
		if errors.Is(err, errMalformedFrame) {
			c.logger.Debug("Dropping malformed frame", "error", err.Error())
			continue
		}
		if err != nil {
			return
		}

		if msg.isResponse() {
			id, ok := msg.intID()
			if !ok {
				c.logger.Debug("Dropping response with unknown id", "id", string(msg.ID))
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[id]
			delete(c.pending, id)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
			continue
		}

		result := nullResult
		if c.handle != nil {
			result = c.handle(msg)
		}
		if msg.hasID() {
			_ = c.write(&message{JSONRPC: "2.0", ID: msg.ID, Result: result})
		}
	}
}

// close stops the connection and both pipes.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closing)
		_ = c.w.Close()
		_ = c.r.Close()
	})
}

// readFrame reads one Content-Length framed message.
func readFrame(reader *bufio.Reader) (*message, error) {
	length := -1
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w: bad Content-Length %q", errMalformedFrame, value)
		}
		length = n
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: no Content-Length header", errMalformedFrame)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(reader, body); err != nil {
		return nil, err
	}

	var msg message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	return &msg, nil
}

// serverError classifies an error response. Cancelled requests and
// results invalidated by an edit are not server faults.
func serverError(method string, e *ResponseError) error {
	switch e.Code {
	case CodeRequestCancelled:
		return lenserrors.NewLensError(lenserrors.Cancelled, method+" cancelled by server", e, nil)
	case CodeContentModified:
		return lenserrors.NewLensError(lenserrors.BackendUnavailable, method+" result invalidated by an edit", e, nil)
	default:
		return lenserrors.NewLensError(lenserrors.HostCallFailed, method+" failed", e, nil)
	}
}
