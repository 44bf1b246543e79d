package dap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"earshot/internal/debugger"
	"earshot/internal/logging"
	"earshot/internal/source"

	"github.com/google/go-dap"
)

// ErrUnresolved is returned for breakpoints the adapter has not placed.
var ErrUnresolved = errors.New("breakpoint not resolved by adapter")

// Frame is a stack frame with a 0-based line.
type Frame struct {
	ID   int
	Name string
	Path string
	Line int
}

// Initialize performs the initialize handshake.
func (c *Client) Initialize(ctx context.Context, adapterID string) (dap.Capabilities, error) {
	raw, err := c.call(ctx, "initialize", func(base dap.Request) any {
		return dap.InitializeRequest{
			Request: base,
			Arguments: dap.InitializeRequestArguments{
				ClientID:        "earshot",
				ClientName:      "earshot",
				AdapterID:       adapterID,
				PathFormat:      "path",
				LinesStartAt1:   true,
				ColumnsStartAt1: true,
			},
		}
	})
	if err != nil {
		return dap.Capabilities{}, err
	}
	var resp dap.InitializeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return dap.Capabilities{}, fmt.Errorf("failed to parse initialize response: %w", err)
	}
	logging.DAP("adapter initialized (configurationDone=%v)", resp.Body.SupportsConfigurationDoneRequest)
	return resp.Body, nil
}

// Launch starts the debuggee. Many adapters answer only after
// configurationDone, so callers usually run it in its own goroutine.
func (c *Client) Launch(ctx context.Context, args map[string]any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal launch arguments: %w", err)
	}
	_, err = c.call(ctx, "launch", func(base dap.Request) any {
		return dap.LaunchRequest{Request: base, Arguments: data}
	})
	return err
}

// Attach attaches to a running debuggee.
func (c *Client) Attach(ctx context.Context, args map[string]any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal attach arguments: %w", err)
	}
	_, err = c.call(ctx, "attach", func(base dap.Request) any {
		return dap.AttachRequest{Request: base, Arguments: data}
	})
	return err
}

// ConfigurationDone ends the configuration phase.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	_, err := c.call(ctx, "configurationDone", func(base dap.Request) any {
		return dap.ConfigurationDoneRequest{Request: base}
	})
	return err
}

// SetBreakpoints replaces every breakpoint in path with bps and records
// where the adapter placed each one.
func (c *Client) SetBreakpoints(ctx context.Context, path string, bps []debugger.Breakpoint) error {
	lines := make([]dap.SourceBreakpoint, len(bps))
	for i, bp := range bps {
		lines[i] = dap.SourceBreakpoint{Line: bp.Location.Line + 1}
	}

	raw, err := c.call(ctx, "setBreakpoints", func(base dap.Request) any {
		return dap.SetBreakpointsRequest{
			Request: base,
			Arguments: dap.SetBreakpointsArguments{
				Source:      dap.Source{Path: path},
				Breakpoints: lines,
			},
		}
	})
	if err != nil {
		return err
	}

	var resp dap.SetBreakpointsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("failed to parse setBreakpoints response: %w", err)
	}

	c.bpMu.Lock()
	defer c.bpMu.Unlock()
	for id, p := range c.placed {
		if p.path == path {
			delete(c.byAdapter, p.adapterID)
			delete(c.placed, id)
		}
	}
	for i, bp := range bps {
		if i >= len(resp.Body.Breakpoints) {
			break
		}
		got := resp.Body.Breakpoints[i]
		p := placement{path: path, adapterID: got.Id, line: bp.Location.Line, verified: got.Verified}
		if got.Line > 0 {
			p.line = got.Line - 1
		}
		c.placed[bp.ID] = p
		if got.Id != 0 {
			c.byAdapter[got.Id] = bp.ID
		}
		if p.line != bp.Location.Line {
			logging.DAPDebug("breakpoint %s moved by adapter from %d to %d", bp.ID, bp.Location.Line, p.line)
		}
	}
	return nil
}

// ResolvedLine returns the 0-based line where the adapter placed bp.
func (c *Client) ResolvedLine(ctx context.Context, bp debugger.Breakpoint) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.bpMu.RLock()
	defer c.bpMu.RUnlock()
	p, ok := c.placed[bp.ID]
	if !ok {
		return 0, fmt.Errorf("%s: %w", bp.ID, ErrUnresolved)
	}
	return p.line, nil
}

// StackTrace fetches up to levels frames of a thread; 0 means all.
func (c *Client) StackTrace(ctx context.Context, threadID, levels int) ([]Frame, error) {
	raw, err := c.call(ctx, "stackTrace", func(base dap.Request) any {
		return dap.StackTraceRequest{
			Request:   base,
			Arguments: dap.StackTraceArguments{ThreadId: threadID, Levels: levels},
		}
	})
	if err != nil {
		return nil, err
	}

	var resp dap.StackTraceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse stackTrace response: %w", err)
	}
	frames := make([]Frame, 0, len(resp.Body.StackFrames))
	for _, f := range resp.Body.StackFrames {
		fr := Frame{ID: f.Id, Name: f.Name, Line: f.Line - 1}
		if f.Source != nil {
			fr.Path = source.Path(f.Source.Path)
		}
		frames = append(frames, fr)
	}
	return frames, nil
}

// TopFrame returns frame 0 of a thread.
func (c *Client) TopFrame(ctx context.Context, threadID int) (Frame, error) {
	frames, err := c.StackTrace(ctx, threadID, 1)
	if err != nil {
		return Frame{}, err
	}
	if len(frames) == 0 {
		return Frame{}, fmt.Errorf("thread %d has no stack frames", threadID)
	}
	return frames[0], nil
}

// Evaluate evaluates expression in the scope of a frame.
func (c *Client) Evaluate(ctx context.Context, expression string, frameID int) (string, error) {
	raw, err := c.call(ctx, "evaluate", func(base dap.Request) any {
		return dap.EvaluateRequest{
			Request: base,
			Arguments: dap.EvaluateArguments{
				Expression: expression,
				FrameId:    frameID,
				Context:    "watch",
			},
		}
	})
	if err != nil {
		return "", err
	}
	var resp dap.EvaluateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("failed to parse evaluate response: %w", err)
	}
	return resp.Body.Result, nil
}

// Continue resumes a thread.
func (c *Client) Continue(ctx context.Context, threadID int) error {
	_, err := c.call(ctx, "continue", func(base dap.Request) any {
		return dap.ContinueRequest{
			Request:   base,
			Arguments: dap.ContinueArguments{ThreadId: threadID},
		}
	})
	return err
}

// Disconnect ends the session and closes the connection.
func (c *Client) Disconnect(ctx context.Context) error {
	_, err := c.call(ctx, "disconnect", func(base dap.Request) any {
		return dap.DisconnectRequest{Request: base}
	})
	if errors.Is(err, ErrNotConnected) {
		err = nil
	}
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}
