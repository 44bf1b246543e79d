// Package wire carries Content-Length framed JSON messages, the base
// protocol shared by the debug adapter and the language server.
package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/go-dap"
)

// Conn reads and writes framed messages over a byte stream. Reads must come
// from a single goroutine; writes are serialized.
type Conn struct {
	rwc io.ReadWriteCloser
	r   *bufio.Reader

	wmu sync.Mutex
}

// NewConn wraps rwc.
func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{rwc: rwc, r: bufio.NewReader(rwc)}
}

// Read returns the body of the next message.
func (c *Conn) Read() ([]byte, error) {
	return dap.ReadBaseMessage(c.r)
}

// Write marshals v and sends it as one message.
func (c *Conn) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.WriteRaw(data)
}

// WriteRaw sends an already encoded body.
func (c *Conn) WriteRaw(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return dap.WriteBaseMessage(c.rwc, data)
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.rwc.Close()
}
