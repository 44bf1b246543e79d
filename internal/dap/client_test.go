package dap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"earshot/internal/debugger"
	"earshot/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInitializeReturnsCapabilities(t *testing.T) {
	fa, client := newFakeAdapter(t)
	fa.handle("initialize", func(args gjson.Result) (any, error) {
		if !args.Get("linesStartAt1").Bool() {
			return nil, errors.New("expected 1-based lines")
		}
		return map[string]any{"supportsConfigurationDoneRequest": true}, nil
	})

	caps, err := client.Initialize(context.Background(), "python")
	require.NoError(t, err)
	assert.True(t, caps.SupportsConfigurationDoneRequest)

	reqs := fa.received("initialize")
	require.Len(t, reqs, 1)
	assert.Equal(t, "python", reqs[0].Get("arguments.adapterID").String())
}

func TestSetBreakpointsRecordsAdapterPlacement(t *testing.T) {
	fa, client := newFakeAdapter(t)
	fa.handle("setBreakpoints", func(args gjson.Result) (any, error) {
		var out []map[string]any
		for i, bp := range args.Get("breakpoints").Array() {
			line := bp.Get("line").Int()
			if i == 0 {
				line-- // adapter moves the first breakpoint up a line
			}
			out = append(out, map[string]any{"id": i + 1, "verified": true, "line": line})
		}
		return map[string]any{"breakpoints": out}, nil
	})

	bps := []debugger.Breakpoint{
		{ID: "a", Location: source.Location{URI: "/src/main.py", Line: 10}},
		{ID: "b", Location: source.Location{URI: "/src/main.py", Line: 20}},
	}
	require.NoError(t, client.SetBreakpoints(context.Background(), "/src/main.py", bps))

	reqs := fa.received("setBreakpoints")
	require.Len(t, reqs, 1)
	assert.Equal(t, int64(11), reqs[0].Get("arguments.breakpoints.0.line").Int(), "lines go out 1-based")

	line, err := client.ResolvedLine(context.Background(), bps[0])
	require.NoError(t, err)
	assert.Equal(t, 9, line)

	line, err = client.ResolvedLine(context.Background(), bps[1])
	require.NoError(t, err)
	assert.Equal(t, 20, line)

	// A later "changed" event moves breakpoint b.
	require.NoError(t, fa.event("breakpoint", map[string]any{
		"reason":     "changed",
		"breakpoint": map[string]any{"id": 2, "verified": true, "line": 23},
	}))
	require.Eventually(t, func() bool {
		l, err := client.ResolvedLine(context.Background(), bps[1])
		return err == nil && l == 22
	}, time.Second, 10*time.Millisecond)

	_, err = client.ResolvedLine(context.Background(), debugger.Breakpoint{ID: "ghost"})
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestSetBreakpointsReplacesFileState(t *testing.T) {
	fa, client := newFakeAdapter(t)
	fa.handle("setBreakpoints", func(args gjson.Result) (any, error) {
		var out []map[string]any
		for i, bp := range args.Get("breakpoints").Array() {
			out = append(out, map[string]any{"id": i + 1, "verified": true, "line": bp.Get("line").Int()})
		}
		return map[string]any{"breakpoints": out}, nil
	})

	bp := debugger.Breakpoint{ID: "a", Location: source.Location{URI: "/x.py", Line: 1}}
	require.NoError(t, client.SetBreakpoints(context.Background(), "/x.py", []debugger.Breakpoint{bp}))
	require.NoError(t, client.SetBreakpoints(context.Background(), "/x.py", nil))

	_, err := client.ResolvedLine(context.Background(), bp)
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestTopFrameConvertsToZeroBasedLines(t *testing.T) {
	fa, client := newFakeAdapter(t)
	fa.handle("stackTrace", func(args gjson.Result) (any, error) {
		if args.Get("threadId").Int() != 3 {
			return nil, fmt.Errorf("unexpected thread %d", args.Get("threadId").Int())
		}
		return map[string]any{
			"stackFrames": []map[string]any{
				{"id": 1000, "name": "main", "line": 13, "column": 1, "source": map[string]any{"path": "/a.py"}},
			},
			"totalFrames": 4,
		}, nil
	})

	frame, err := client.TopFrame(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, Frame{ID: 1000, Name: "main", Path: "/a.py", Line: 12}, frame)
}

func TestFailedRequestReturnsRequestError(t *testing.T) {
	fa, client := newFakeAdapter(t)
	fa.handle("evaluate", func(args gjson.Result) (any, error) {
		if args.Get("expression").String() == "oops(" {
			return nil, errors.New("SyntaxError")
		}
		return map[string]any{"result": "42", "variablesReference": 0}, nil
	})

	got, err := client.Evaluate(context.Background(), "x * 2", 7)
	require.NoError(t, err)
	assert.Equal(t, "42", got)

	_, err = client.Evaluate(context.Background(), "oops(", 7)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "evaluate", reqErr.Command)
	assert.Equal(t, "SyntaxError", reqErr.Message)
}

func TestRequestTimesOutWithContext(t *testing.T) {
	fa, client := newFakeAdapter(t)
	fa.handle("continue", func(gjson.Result) (any, error) { return nil, errNoReply })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := client.Continue(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseReleasesPendingRequests(t *testing.T) {
	fa, client := newFakeAdapter(t)
	fa.handle("continue", func(gjson.Result) (any, error) { return nil, errNoReply })

	var wg sync.WaitGroup
	var callErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		callErr = client.Continue(context.Background(), 1)
	}()

	require.Eventually(t, func() bool { return len(fa.received("continue")) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, client.Close())
	wg.Wait()

	assert.ErrorIs(t, callErr, ErrNotConnected)
	assert.ErrorIs(t, client.Continue(context.Background(), 1), ErrNotConnected)
	select {
	case <-client.Terminated():
	default:
		t.Error("Terminated should be closed after Close")
	}
}

func TestEventsReachSubscribers(t *testing.T) {
	fa, client := newFakeAdapter(t)

	events := make(chan string, 4)
	unsubscribe := client.Subscribe(func(raw []byte) {
		events <- gjson.GetBytes(raw, "event").String()
	})
	defer unsubscribe()

	require.NoError(t, fa.event("initialized", nil))
	require.NoError(t, fa.event("stopped", map[string]any{"reason": "breakpoint", "threadId": 1}))

	assert.Equal(t, "initialized", <-events)
	assert.Equal(t, "stopped", <-events)
	select {
	case <-client.Initialized():
	case <-time.After(time.Second):
		t.Fatal("Initialized not closed")
	}
}

func TestReverseRequestsAreRejected(t *testing.T) {
	fa, _ := newFakeAdapter(t)

	require.NoError(t, fa.conn.Write(map[string]any{
		"seq": 99, "type": "request", "command": "runInTerminal",
	}))
	require.Eventually(t, func() bool {
		fa.mu.Lock()
		defer fa.mu.Unlock()
		return len(fa.replies) == 1
	}, time.Second, 5*time.Millisecond)

	fa.mu.Lock()
	reply := fa.replies[0]
	fa.mu.Unlock()
	assert.Equal(t, int64(99), reply.Get("request_seq").Int())
	assert.False(t, reply.Get("success").Bool())
}

func TestDisconnect(t *testing.T) {
	fa, client := newFakeAdapter(t)
	require.NoError(t, client.Disconnect(context.Background()))
	assert.Len(t, fa.received("disconnect"), 1)
}
