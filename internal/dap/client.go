// Package dap is a debug adapter protocol client. It correlates requests
// with responses by sequence number, fans raw incoming messages out to
// subscribers and tracks where the adapter actually placed each breakpoint.
package dap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"earshot/internal/logging"
	"earshot/internal/wire"

	"github.com/google/go-dap"
	"github.com/tidwall/gjson"
)

// ErrNotConnected is returned once the adapter connection is gone.
var ErrNotConnected = errors.New("debug adapter not connected")

// RequestError is an unsuccessful response from the adapter.
type RequestError struct {
	Command string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Command, e.Message)
}

// Client talks to one debug adapter. Subscribers are invoked on the reader
// goroutine and must not issue requests synchronously.
type Client struct {
	conn    *wire.Conn
	timeout time.Duration

	mu      sync.Mutex
	seq     int
	pending map[int]chan []byte
	closed  bool

	subMu   sync.RWMutex
	nextSub int
	subs    map[int]func([]byte)

	bpMu      sync.RWMutex
	placed    map[string]placement
	byAdapter map[int]string

	initialized     chan struct{}
	initializedOnce sync.Once
	terminated      chan struct{}
	terminatedOnce  sync.Once

	wg sync.WaitGroup
}

// placement is the adapter's view of one registry breakpoint.
type placement struct {
	path      string
	adapterID int
	line      int
	verified  bool
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
		conn:        wire.NewConn(rwc),
		timeout:     10 * time.Second,
		pending:     make(map[int]chan []byte),
		subs:        make(map[int]func([]byte)),
		placed:      make(map[string]placement),
		byAdapter:   make(map[int]string),
		initialized: make(chan struct{}),
		terminated:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.wg.Add(1)
	go c.readLoop()
	return c
}

// Subscribe registers fn for every incoming message.
func (c *Client) Subscribe(fn func(raw []byte)) (unsubscribe func()) {
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

// Initialized is closed when the adapter sends the initialized event.
func (c *Client) Initialized() <-chan struct{} { return c.initialized }

// Terminated is closed when the session ends or the connection drops.
func (c *Client) Terminated() <-chan struct{} { return c.terminated }

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
				logging.Get(logging.CategoryDAP).Error("Error reading from adapter: %v", err)
			}
			return
		}

		switch gjson.GetBytes(raw, "type").String() {
		case "response":
			seq := int(gjson.GetBytes(raw, "request_seq").Int())
			c.mu.Lock()
			ch, ok := c.pending[seq]
			delete(c.pending, seq)
			c.mu.Unlock()
			if ok {
				ch <- raw
			} else {
				logging.DAPDebug("Received response for unknown seq: %d", seq)
			}
		case "event":
			c.handleEvent(raw)
		case "request":
			c.rejectReverseRequest(raw)
		}

		c.publish(raw)
	}
}

func (c *Client) publish(raw []byte) {
	c.subMu.RLock()
	subs := make([]func([]byte), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.RUnlock()
	for _, fn := range subs {
		fn(raw)
	}
}

func (c *Client) handleEvent(raw []byte) {
	event := gjson.GetBytes(raw, "event").String()
	logging.DAPDebug("event %s", event)

	switch event {
	case "initialized":
		c.initializedOnce.Do(func() { close(c.initialized) })
	case "terminated":
		c.terminatedOnce.Do(func() { close(c.terminated) })
	case "breakpoint":
		var ev dap.BreakpointEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			logging.Get(logging.CategoryDAP).Warn("Malformed breakpoint event: %v", err)
			return
		}
		if ev.Body.Reason != "changed" {
			return
		}
		c.bpMu.Lock()
		defer c.bpMu.Unlock()
		id, ok := c.byAdapter[ev.Body.Breakpoint.Id]
		if !ok {
			return
		}
		p := c.placed[id]
		if ev.Body.Breakpoint.Line > 0 {
			p.line = ev.Body.Breakpoint.Line - 1
		}
		p.verified = ev.Body.Breakpoint.Verified
		c.placed[id] = p
	}
}

// rejectReverseRequest answers adapter-initiated requests such as
// runInTerminal, which this client does not support.
func (c *Client) rejectReverseRequest(raw []byte) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	resp := dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "response"},
		RequestSeq:      int(gjson.GetBytes(raw, "seq").Int()),
		Success:         false,
		Command:         gjson.GetBytes(raw, "command").String(),
		Message:         "not supported",
	}
	if err := c.conn.Write(resp); err != nil {
		logging.Get(logging.CategoryDAP).Warn("Failed to reject reverse request: %v", err)
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	for seq, ch := range c.pending {
		close(ch)
		delete(c.pending, seq)
	}
	c.mu.Unlock()
	c.terminatedOnce.Do(func() { close(c.terminated) })
}

// call sends a request built around base and waits for its response.
func (c *Client) call(ctx context.Context, command string, build func(base dap.Request) any) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.seq++
	seq := c.seq
	ch := make(chan []byte, 1)
	c.pending[seq] = ch
	c.mu.Unlock()

	base := dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
		Command:         command,
	}
	if err := c.conn.Write(build(base)); err != nil {
		c.forget(seq)
		return nil, fmt.Errorf("failed to send %s: %w", command, err)
	}

	select {
	case raw, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		if !gjson.GetBytes(raw, "success").Bool() {
			msg := gjson.GetBytes(raw, "body.error.format").String()
			if msg == "" {
				msg = gjson.GetBytes(raw, "message").String()
			}
			return nil, &RequestError{Command: command, Message: msg}
		}
		return raw, nil
	case <-ctx.Done():
		c.forget(seq)
		return nil, fmt.Errorf("%s: %w", command, ctx.Err())
	}
}

func (c *Client) forget(seq int) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
}

// Close drops the connection and waits briefly for the reader to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.wg.Wait()
		return nil
	}
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
		logging.Get(logging.CategoryDAP).Warn("Timeout waiting for adapter reader to exit")
	}
	return err
}
