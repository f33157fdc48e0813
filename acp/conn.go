package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dstanek/agentbridge"
	"github.com/dstanek/agentbridge/internal/errfmt"
	"github.com/dstanek/agentbridge/internal/metrics"
)

// Standard JSON-RPC 2.0 error codes.
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// frameKind classifies an inbound frame once, at parse time. All later
// handling dispatches on the kind, never by re-inspecting fields.
type frameKind int

const (
	frameInvalid frameKind = iota
	frameResponse            // id, no method
	frameRequest             // id and method — a reverse request
	frameNotification        // method, no id
)

func classify(msg *rpcMessage) frameKind {
	switch {
	case msg.ID != nil && msg.Method == "":
		return frameResponse
	case msg.ID != nil:
		return frameRequest
	case msg.Method != "":
		return frameNotification
	default:
		return frameInvalid
	}
}

// conn multiplexes bidirectional JSON-RPC 2.0 over newline-delimited
// JSON. Outbound frames (calls, notifications, reverse-request
// responses) are serialized through one mutex-protected encoder so
// concurrent writers never interleave mid-frame. Inbound frames are
// read by a single readLoop and dispatched by frame kind.
//
// Reverse requests are served synchronously on the readLoop goroutine:
// a handler that blocks stalls all further message processing, so
// handlers must be fast or hand off.
type conn struct {
	mu  sync.Mutex // guards enc and pending
	enc *json.Encoder

	nextID  atomic.Int64
	pending map[int64]chan *rpcResponse

	onNotify  func(method string, params json.RawMessage)
	onRequest func(method string, params json.RawMessage) (any, *wireError)

	scanner *bufio.Scanner
	log     *slog.Logger

	done    chan struct{}
	readErr atomic.Value // stores error
}

func newConn(r io.Reader, w io.Writer, maxMessageSize int, log *slog.Logger) *conn {
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}
	c := &conn{
		enc:     json.NewEncoder(w),
		pending: make(map[int64]chan *rpcResponse),
		log:     log,
		done:    make(chan struct{}),
	}
	c.scanner = bufio.NewScanner(r)
	c.scanner.Buffer(make([]byte, 0, min(4096, maxMessageSize)), maxMessageSize)
	return c
}

// call sends a request and blocks until the matching response arrives,
// ctx expires, or the process terminates. Identifiers increase
// monotonically and are never reused for the connection's lifetime.
func (c *conn) call(ctx context.Context, method string, params, result any) error {
	id := c.nextID.Add(1)

	ch := make(chan *rpcResponse, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	metrics.PendingRequests.Inc()

	req := &rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
	if err := c.send(req); err != nil {
		c.removePending(id)
		select {
		case <-c.done:
			// Writes to a dead subprocess surface as pipe errors.
			return fmt.Errorf("%s: %w", method, agentbridge.ErrTerminated)
		default:
		}
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp, ok := <-ch:
		return decodeCallResponse(resp, ok, method, result)
	case <-ctx.Done():
		c.removePending(id)
		// The response may have raced ctx cancellation — a late
		// arrival after this point is silently dropped by resolve.
		select {
		case resp, ok := <-ch:
			return decodeCallResponse(resp, ok, method, result)
		default:
			return ctx.Err()
		}
	}
}

// decodeCallResponse turns a received response (or closed channel) into
// the caller's result or error.
func decodeCallResponse(resp *rpcResponse, ok bool, method string, result any) error {
	if !ok {
		// Channel closed by failPending: the subprocess is gone.
		return fmt.Errorf("%s: %w", method, agentbridge.ErrTerminated)
	}
	if resp.Error != nil {
		return &RPCError{
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Data:    resp.Error.Data,
		}
	}
	if result != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// notify sends a notification: no id, no response expected.
func (c *conn) notify(method string, params any) error {
	return c.send(&rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

// readLoop reads and dispatches inbound frames until the stream closes.
// Blank lines are skipped; lines that fail to parse are logged and
// skipped — malformed input never kills the session. On exit every
// still-pending call fails with a terminal process-terminated error.
// Must be called exactly once.
func (c *conn) readLoop() {
	defer close(c.done)
	defer c.failPending()

	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' {
			// Startup banners and other non-protocol chatter.
			c.log.Debug("skipping non-JSON line", "line", errfmt.Truncate(string(line)))
			continue
		}

		var msg rpcMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			metrics.ParseErrors.Inc()
			c.log.Warn("skipping malformed frame", "error", err)
			continue
		}

		switch classify(&msg) {
		case frameResponse:
			c.resolve(&msg)
		case frameRequest:
			c.serveRequest(&msg)
		case frameNotification:
			c.onNotify(msg.Method, msg.Params)
		default:
			c.log.Warn("frame with neither id nor method, dropping")
		}
	}

	if err := c.scanner.Err(); err != nil {
		c.readErr.Store(err)
	}
}

// err returns the readLoop error after it exits, nil on clean EOF.
func (c *conn) err() error {
	if v := c.readErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// doneCh is closed when readLoop exits.
func (c *conn) doneCh() <-chan struct{} { return c.done }

// resolve delivers a response to the waiting call. Responses for
// unknown ids (timed out, duplicate, unsolicited) are dropped.
func (c *conn) resolve(msg *rpcMessage) {
	c.mu.Lock()
	ch, ok := c.pending[*msg.ID]
	if ok {
		delete(c.pending, *msg.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	metrics.PendingRequests.Dec()
	ch <- &rpcResponse{Result: msg.Result, Error: msg.Error}
}

// serveRequest answers a reverse request from the agent. Every request
// gets exactly one response — success or error — or the agent would
// hang waiting. Runs synchronously in readLoop.
func (c *conn) serveRequest(msg *rpcMessage) {
	id := *msg.ID
	if c.onRequest == nil {
		c.respondError(id, &wireError{Code: codeMethodNotFound, Message: "method not supported: " + msg.Method})
		return
	}
	result, werr := c.onRequest(msg.Method, msg.Params)
	if werr != nil {
		c.respondError(id, werr)
		return
	}
	c.respondResult(id, result)
}

// respondResult writes a success response. Write errors are logged,
// not propagated: the connection may already be closing and the agent
// will observe the missing response as a terminated session.
func (c *conn) respondResult(id int64, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		c.respondError(id, &wireError{Code: codeInternalError, Message: "marshal result: " + err.Error()})
		return
	}
	resp := &rpcResponse{JSONRPC: "2.0", ID: &id, Result: data}
	if err := c.send(resp); err != nil {
		c.log.Warn("write response failed", "id", id, "error", err)
	}
}

func (c *conn) respondError(id int64, werr *wireError) {
	resp := &rpcResponse{
		JSONRPC: "2.0",
		ID:      &id,
		Error:   &rpcError{Code: werr.Code, Message: werr.Message},
	}
	if err := c.send(resp); err != nil {
		c.log.Warn("write error response failed", "id", id, "error", err)
	}
}

// send serializes one outbound frame. The encoder appends the newline.
func (c *conn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(v)
}

// removePending drops one pending entry, e.g. after a send failure or
// ctx expiry. A response arriving later is silently ignored.
func (c *conn) removePending(id int64) {
	c.mu.Lock()
	_, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if ok {
		metrics.PendingRequests.Dec()
	}
}

// failPending unblocks every outstanding call with a terminal error and
// clears the table. Runs once, when readLoop exits.
func (c *conn) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
		metrics.PendingRequests.Dec()
	}
}

// --- Wire types ---

// wireError is an error a reverse-request handler returns for the
// agent; it becomes the JSON-RPC error object of the response.
type wireError struct {
	Code    int
	Message string
}

// rpcRequest is an outbound request or notification.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcMessage is a generic inbound frame before classification.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcResponse is an outbound response, also reused to hand a received
// response to the pending call.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is the JSON-RPC 2.0 error object. Data, when it is a JSON
// string, carries the agent's detailed message.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RPCError is a JSON-RPC error returned by the agent for one of our
// requests.
type RPCError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

// Text returns the most specific human-readable message: a
// string-typed data field when present, the message otherwise.
func (e *RPCError) Text() string {
	if len(e.Data) > 0 {
		var s string
		if err := json.Unmarshal(e.Data, &s); err == nil && s != "" {
			return s
		}
	}
	return e.Message
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Text())
}
