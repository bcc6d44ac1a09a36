package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// conn frames JSON-RPC messages with Content-Length headers. Writes are
// serialized; reads happen on the serve loop only.
type conn struct {
	reader *bufio.Reader

	mu     sync.Mutex
	writer io.Writer

	nextID atomic.Int64
}

func newConn(r io.Reader, w io.Writer) *conn {
	return &conn{
		reader: bufio.NewReader(r),
		writer: w,
	}
}

// read returns the next message. io.EOF means the client went away.
func (c *conn) read() (*message, error) {
	contentLength := -1
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid Content-Length %q: %w", value, err)
		}
		contentLength = n
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, err
	}

	var msg message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, &responseError{Code: codeParseError, Message: err.Error()}
	}
	return &msg, nil
}

func (c *conn) write(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	frame := make([]byte, 0, len(body)+32)
	frame = append(frame, "Content-Length: "...)
	frame = strconv.AppendInt(frame, int64(len(body)), 10)
	frame = append(frame, "\r\n\r\n"...)
	frame = append(frame, body...)

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.writer.Write(frame)
	return err
}

func (c *conn) reply(id json.RawMessage, result any, rpcErr *responseError) error {
	if rpcErr != nil {
		return c.write(errorResponse{JSONRPC: "2.0", ID: id, Error: rpcErr})
	}
	return c.write(response{JSONRPC: "2.0", ID: id, Result: result})
}

func (c *conn) notify(method string, params any) error {
	return c.write(notification{JSONRPC: "2.0", Method: method, Params: params})
}

// request sends a server-to-client request. Responses are not awaited.
func (c *conn) request(method string, params any) error {
	return c.write(outgoingRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
}
