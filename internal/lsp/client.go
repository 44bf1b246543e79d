// Package lsp is a minimal language server client: enough of the protocol to
// open documents, fetch their symbol tree and collect published
// diagnostics.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"earshot/internal/diagnostics"
	"earshot/internal/logging"
	"earshot/internal/source"
	"earshot/internal/wire"

	"github.com/tidwall/gjson"
)

// ErrNotConnected is returned once the server connection is gone.
var ErrNotConnected = errors.New("language server not connected")

// ResponseError is a JSON-RPC error response.
type ResponseError struct {
	Method  string
	Code    int
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s failed (%d): %s", e.Method, e.Code, e.Message)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

// Client talks to one language server.
type Client struct {
	conn    *wire.Conn
	timeout time.Duration

	mu      sync.Mutex
	nextID  int
	pending map[int]chan []byte
	closed  bool
	version map[string]int

	diagMu sync.RWMutex
	diags  map[string][]diagnostics.Diagnostic

	subMu   sync.RWMutex
	nextSub int
	subs    map[int]func(uri string)

	wg sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request that has no earlier deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient starts reading from rwc.
func NewClient(rwc io.ReadWriteCloser, opts ...Option) *Client {
	c := &Client{
		conn:    wire.NewConn(rwc),
		timeout: 10 * time.Second,
		pending: make(map[int]chan []byte),
		version: make(map[string]int),
		diags:   make(map[string][]diagnostics.Diagnostic),
		subs:    make(map[int]func(string)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.wg.Add(1)
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer c.shutdown()

	for {
		raw, err := c.conn.Read()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed && !errors.Is(err, io.EOF) {
				logging.Get(logging.CategoryLSP).Error("Error reading from language server: %v", err)
			}
			return
		}

		msg := gjson.ParseBytes(raw)
		id, method := msg.Get("id"), msg.Get("method").String()
		switch {
		case id.Exists() && method != "":
			c.replyNull(id.Raw, method)
		case id.Exists():
			c.mu.Lock()
			ch, ok := c.pending[int(id.Int())]
			delete(c.pending, int(id.Int()))
			c.mu.Unlock()
			if ok {
				ch <- raw
			}
		case method == "textDocument/publishDiagnostics":
			c.storeDiagnostics(msg.Get("params"))
		default:
			logging.LSPDebug("ignoring notification %s", method)
		}
	}
}

// replyNull answers server requests (workspace/configuration,
// window/workDoneProgress/create, ...) with a null result.
func (c *Client) replyNull(id, method string) {
	logging.LSPDebug("answering server request %s with null", method)
	if err := c.conn.Write(response{JSONRPC: "2.0", ID: json.RawMessage(id)}); err != nil {
		logging.Get(logging.CategoryLSP).Warn("Failed to answer %s: %v", method, err)
	}
}

func (c *Client) storeDiagnostics(params gjson.Result) {
	uri := params.Get("uri").String()
	var diags []diagnostics.Diagnostic
	for _, d := range params.Get("diagnostics").Array() {
		sev := diagnostics.Severity(d.Get("severity").Int())
		if sev == 0 {
			sev = diagnostics.SeverityError
		}
		diags = append(diags, diagnostics.Diagnostic{
			Line:     int(d.Get("range.start.line").Int()),
			Severity: sev,
			Message:  d.Get("message").String(),
			Source:   d.Get("source").String(),
		})
	}

	c.diagMu.Lock()
	c.diags[source.Path(uri)] = diags
	c.diagMu.Unlock()
	logging.LSPDebug("%d diagnostics for %s", len(diags), uri)

	c.subMu.RLock()
	subs := make([]func(string), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.RUnlock()
	for _, fn := range subs {
		fn(uri)
	}
}

// Diagnostics returns the last diagnostics published for uri.
func (c *Client) Diagnostics(uri string) []diagnostics.Diagnostic {
	c.diagMu.RLock()
	defer c.diagMu.RUnlock()
	return c.diags[source.Path(uri)]
}

// OnDiagnostics registers fn for publishDiagnostics notifications.
func (c *Client) OnDiagnostics(fn func(uri string)) (unsubscribe func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// call sends a request and waits for its result.
func (c *Client) call(ctx context.Context, method string, params any) (gjson.Result, error) {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return gjson.Result{}, ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	ch := make(chan []byte, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.conn.Write(request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		c.forget(id)
		return gjson.Result{}, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case raw, ok := <-ch:
		if !ok {
			return gjson.Result{}, ErrNotConnected
		}
		msg := gjson.ParseBytes(raw)
		if e := msg.Get("error"); e.Exists() {
			return gjson.Result{}, &ResponseError{Method: method, Code: int(e.Get("code").Int()), Message: e.Get("message").String()}
		}
		return msg.Get("result"), nil
	case <-ctx.Done():
		c.forget(id)
		return gjson.Result{}, fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

func (c *Client) forget(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// notify sends a notification.
func (c *Client) notify(method string, params any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrNotConnected
	}
	if err := c.conn.Write(request{JSONRPC: "2.0", Method: method, Params: params}); err != nil {
		return fmt.Errorf("failed to send %s: %w", method, err)
	}
	return nil
}

// Close drops the connection and waits briefly for the reader to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		logging.Get(logging.CategoryLSP).Warn("Timeout waiting for language server reader to exit")
	}
	return err
}
