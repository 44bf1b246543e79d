package dap

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"earshot/internal/wire"

	"github.com/tidwall/gjson"
)

var errNoReply = errors.New("no reply")

type handler func(args gjson.Result) (any, error)

// fakeAdapter answers requests over an in-memory pipe.
type fakeAdapter struct {
	conn *wire.Conn
	done chan struct{}

	mu       sync.Mutex
	seq      int
	handlers map[string]handler
	requests []gjson.Result
	replies  []gjson.Result
}

func newFakeAdapter(t *testing.T) (*fakeAdapter, *Client) {
	t.Helper()
	clientSide, adapterSide := net.Pipe()
	fa := &fakeAdapter{
		conn:     wire.NewConn(adapterSide),
		done:     make(chan struct{}),
		handlers: make(map[string]handler),
	}
	go fa.serve()

	client := NewClient(clientSide, WithTimeout(2*time.Second))
	t.Cleanup(func() {
		_ = client.Close()
		_ = adapterSide.Close()
		<-fa.done
	})
	return fa, client
}

func (fa *fakeAdapter) handle(command string, h handler) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.handlers[command] = h
}

func (fa *fakeAdapter) serve() {
	defer close(fa.done)
	for {
		raw, err := fa.conn.Read()
		if err != nil {
			return
		}
		msg := gjson.ParseBytes(raw)
		if msg.Get("type").String() == "response" {
			fa.mu.Lock()
			fa.replies = append(fa.replies, msg)
			fa.mu.Unlock()
			continue
		}

		command := msg.Get("command").String()
		fa.mu.Lock()
		fa.requests = append(fa.requests, msg)
		h := fa.handlers[command]
		fa.mu.Unlock()

		var body any
		if h != nil {
			body, err = h(msg.Get("arguments"))
		}
		if errors.Is(err, errNoReply) {
			continue
		}
		resp := map[string]any{
			"seq":         fa.nextSeq(),
			"type":        "response",
			"request_seq": msg.Get("seq").Int(),
			"command":     command,
			"success":     err == nil,
		}
		if err != nil {
			resp["message"] = err.Error()
		}
		if body != nil {
			resp["body"] = body
		}
		if werr := fa.conn.Write(resp); werr != nil {
			return
		}
	}
}

func (fa *fakeAdapter) nextSeq() int {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.seq++
	return fa.seq
}

func (fa *fakeAdapter) event(name string, body any) error {
	return fa.conn.Write(map[string]any{
		"seq":   fa.nextSeq(),
		"type":  "event",
		"event": name,
		"body":  body,
	})
}

func (fa *fakeAdapter) received(command string) []gjson.Result {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	var out []gjson.Result
	for _, r := range fa.requests {
		if r.Get("command").String() == command {
			out = append(out, r)
		}
	}
	return out
}
