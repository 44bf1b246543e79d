package lsp

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"earshot/internal/diagnostics"
	"earshot/internal/navigation"
	"earshot/internal/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type rpcError struct {
	code int
	msg  string
}

func (e *rpcError) Error() string { return e.msg }

// fakeServer answers requests by method over an in-memory pipe.
type fakeServer struct {
	conn *wire.Conn
	done chan struct{}

	mu       sync.Mutex
	handlers map[string]func(params gjson.Result) (any, error)
	seen     []gjson.Result
}

func newFakeServer(t *testing.T) (*fakeServer, *Client) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	fs := &fakeServer{
		conn:     wire.NewConn(serverSide),
		done:     make(chan struct{}),
		handlers: make(map[string]func(gjson.Result) (any, error)),
	}
	go fs.serve()
	client := NewClient(clientSide, WithTimeout(2*time.Second))
	t.Cleanup(func() {
		_ = client.Close()
		_ = serverSide.Close()
		<-fs.done
	})
	return fs, client
}

func (fs *fakeServer) handle(method string, h func(gjson.Result) (any, error)) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.handlers[method] = h
}

func (fs *fakeServer) serve() {
	defer close(fs.done)
	for {
		raw, err := fs.conn.Read()
		if err != nil {
			return
		}
		msg := gjson.ParseBytes(raw)
		fs.mu.Lock()
		fs.seen = append(fs.seen, msg)
		h := fs.handlers[msg.Get("method").String()]
		fs.mu.Unlock()

		if !msg.Get("id").Exists() || !msg.Get("method").Exists() {
			continue // notification or reply to our own request
		}
		var result any
		if h != nil {
			result, err = h(msg.Get("params"))
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": msg.Get("id").Int()}
		var re *rpcError
		if errors.As(err, &re) {
			resp["error"] = map[string]any{"code": re.code, "message": re.msg}
		} else {
			resp["result"] = result
		}
		if werr := fs.conn.Write(resp); werr != nil {
			return
		}
	}
}

func (fs *fakeServer) methods() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []string
	for _, m := range fs.seen {
		out = append(out, m.Get("method").String())
	}
	return out
}

func TestInitializeSendsInitialized(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.handle("initialize", func(p gjson.Result) (any, error) {
		if !p.Get("capabilities.textDocument.documentSymbol.hierarchicalDocumentSymbolSupport").Bool() {
			return nil, &rpcError{code: -32602, msg: "expected hierarchical symbols"}
		}
		return map[string]any{"capabilities": map[string]any{}, "serverInfo": map[string]any{"name": "fake"}}, nil
	})

	require.NoError(t, client.Initialize(context.Background(), "/work"))
	require.NoError(t, client.DidOpen("file:///work/a.py", "python", "x = 1\n"))
	require.NoError(t, client.DidChange("file:///work/a.py", "x = 2\n"))

	require.Eventually(t, func() bool { return len(fs.methods()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"initialize", "initialized", "textDocument/didOpen", "textDocument/didChange"}, fs.methods())

	fs.mu.Lock()
	change := fs.seen[3]
	fs.mu.Unlock()
	assert.Equal(t, int64(2), change.Get("params.textDocument.version").Int())
}

func TestDocumentSymbolsHierarchical(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.handle("textDocument/documentSymbol", func(gjson.Result) (any, error) {
		return []map[string]any{{
			"name":           "Server",
			"kind":           5,
			"range":          rng(0, 20),
			"selectionRange": rng(0, 0),
			"children": []map[string]any{
				{"name": "run", "kind": 6, "range": rng(2, 8), "selectionRange": rng(2, 2)},
			},
		}}, nil
	})

	syms, err := client.DocumentSymbols(context.Background(), "file:///a.py")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, navigation.KindClass, syms[0].Kind)
	require.Len(t, syms[0].Children, 1)
	assert.Equal(t, "run", syms[0].Children[0].Name)
	assert.Equal(t, navigation.Range{StartLine: 2, EndLine: 8}, syms[0].Children[0].Range)
}

func TestDocumentSymbolsFlatAreNested(t *testing.T) {
	fs, client := newFakeServer(t)
	loc := func(start, end int) map[string]any {
		return map[string]any{"uri": "file:///a.py", "range": rng(start, end)}
	}
	fs.handle("textDocument/documentSymbol", func(gjson.Result) (any, error) {
		return []map[string]any{
			{"name": "helper", "kind": 12, "location": loc(30, 35)},
			{"name": "Server", "kind": 5, "location": loc(0, 20)},
			{"name": "run", "kind": 6, "location": loc(2, 8)},
			{"name": "stop", "kind": 6, "location": loc(10, 12)},
		}, nil
	})

	syms, err := client.DocumentSymbols(context.Background(), "file:///a.py")
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "Server", syms[0].Name)
	require.Len(t, syms[0].Children, 2)
	assert.Equal(t, "stop", syms[0].Children[1].Name)
	assert.Equal(t, "helper", syms[1].Name)
}

func TestErrorResponse(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.handle("textDocument/documentSymbol", func(gjson.Result) (any, error) {
		return nil, &rpcError{code: -32601, msg: "method not found"}
	})

	_, err := client.DocumentSymbols(context.Background(), "file:///a.py")
	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, -32601, re.Code)
}

func TestPublishDiagnostics(t *testing.T) {
	fs, client := newFakeServer(t)

	got := make(chan string, 1)
	unsubscribe := client.OnDiagnostics(func(uri string) { got <- uri })
	defer unsubscribe()

	require.NoError(t, fs.conn.Write(map[string]any{
		"jsonrpc": "2.0",
		"method":  "textDocument/publishDiagnostics",
		"params": map[string]any{
			"uri": "file:///a.py",
			"diagnostics": []map[string]any{
				{"range": rng(3, 3), "severity": 1, "message": "undefined name", "source": "pyflakes"},
				{"range": rng(5, 5), "message": "no severity"},
			},
		},
	}))

	select {
	case uri := <-got:
		assert.Equal(t, "file:///a.py", uri)
	case <-time.After(time.Second):
		t.Fatal("no diagnostics notification")
	}

	diags := client.Diagnostics("/a.py")
	require.Len(t, diags, 2)
	assert.Equal(t, diagnostics.Diagnostic{Line: 3, Severity: diagnostics.SeverityError, Message: "undefined name", Source: "pyflakes"}, diags[0])
	assert.Equal(t, diagnostics.SeverityError, diags[1].Severity)
}

func TestServerRequestsGetNullReplies(t *testing.T) {
	fs, _ := newFakeServer(t)

	require.NoError(t, fs.conn.Write(map[string]any{
		"jsonrpc": "2.0", "id": "progress-1", "method": "window/workDoneProgress/create",
	}))
	require.Eventually(t, func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		for _, m := range fs.seen {
			if m.Get("id").String() == "progress-1" && m.Get("result").Type == gjson.Null && m.Get("result").Exists() {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestShutdown(t *testing.T) {
	fs, client := newFakeServer(t)
	require.NoError(t, client.Shutdown(context.Background()))
	require.Eventually(t, func() bool {
		m := fs.methods()
		return len(m) == 2 && m[0] == "shutdown" && m[1] == "exit"
	}, time.Second, 5*time.Millisecond)

	_, err := client.DocumentSymbols(context.Background(), "file:///a.py")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func rng(start, end int) map[string]any {
	return map[string]any{
		"start": map[string]int{"line": start, "character": 0},
		"end":   map[string]int{"line": end, "character": 0},
	}
}
