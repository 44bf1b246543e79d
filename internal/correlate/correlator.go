// Package correlate turns debug adapter "stopped" events into talkpoint
// feedback. It finds the breakpoints the adapter actually stopped on, using
// the adapter's own view of each breakpoint's line, dispatches each matched
// talkpoint and resumes the thread when the talkpoints ask for it.
package correlate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"earshot/internal/dap"
	"earshot/internal/debugger"
	"earshot/internal/feedback"
	"earshot/internal/logging"
	"earshot/internal/source"
	"earshot/internal/talkpoint"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

// Session is the debug adapter surface the correlator needs.
type Session interface {
	TopFrame(ctx context.Context, threadID int) (dap.Frame, error)
	ResolvedLine(ctx context.Context, bp debugger.Breakpoint) (int, error)
	Evaluate(ctx context.Context, expression string, frameID int) (string, error)
	Continue(ctx context.Context, threadID int) error
}

// Breakpoints lists the live breakpoint set.
type Breakpoints interface {
	All() []debugger.Breakpoint
}

// Talkpoints is read-only access to the talkpoint store.
type Talkpoints interface {
	Get(id string) (talkpoint.Talkpoint, bool)
}

// Tones plays talkpoint sounds without blocking.
type Tones interface {
	PlaySound(ctx context.Context, sound string)
}

// Options configures a Correlator.
type Options struct {
	Session     Session
	Breakpoints Breakpoints
	Talkpoints  Talkpoints
	Tones       Tones
	Announcer   feedback.Announcer

	// ResolveConcurrency bounds in-flight line resolutions; 0 is unbounded.
	ResolveConcurrency int
}

// Result summarizes one stop.
type Result struct {
	Frame     dap.Frame
	Matched   []debugger.Breakpoint
	Handled   int
	Continued bool
}

// Correlator handles the message stream of one debug session.
type Correlator struct {
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a correlator.
func New(opts Options) *Correlator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Correlator{opts: opts, ctx: ctx, cancel: cancel}
}

// HandleMessage inspects a raw adapter message and, for a stop on a
// breakpoint or step, handles it on its own goroutine. It never blocks on
// the adapter, so it is safe to call from the client's reader.
func (c *Correlator) HandleMessage(raw []byte) {
	threadID, ok := StoppedThread(raw)
	if !ok {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		if _, err := c.HandleStopped(c.ctx, threadID); err != nil {
			logging.CorrelatorWarn("stop on thread %d not handled: %v", threadID, err)
		}
	}()
}

// StoppedThread reports whether raw is a stopped event for a breakpoint or
// step and returns its thread.
func StoppedThread(raw []byte) (int, bool) {
	msg := gjson.ParseBytes(raw)
	if msg.Get("type").String() != "event" || msg.Get("event").String() != "stopped" {
		return 0, false
	}
	switch msg.Get("body.reason").String() {
	case "breakpoint", "step":
		return int(msg.Get("body.threadId").Int()), true
	default:
		return 0, false
	}
}

// HandleStopped correlates one stop and dispatches its talkpoints.
func (c *Correlator) HandleStopped(ctx context.Context, threadID int) (Result, error) {
	start := time.Now()
	log := logging.Get(logging.CategoryCorrelator).WithContext(map[string]interface{}{"thread": threadID})

	frame, err := c.opts.Session.TopFrame(ctx, threadID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch top frame: %w", err)
	}
	res := Result{Frame: frame}
	res.Matched = c.match(ctx, frame)

	var matched []talkpoint.Talkpoint
	for _, bp := range res.Matched {
		if tp, ok := c.opts.Talkpoints.Get(bp.ID); ok {
			matched = append(matched, tp)
		}
	}
	res.Handled = len(matched)
	logging.Audit().Stopped(fmt.Sprintf("%s:%d", frame.Path, frame.Line+1), len(matched), time.Since(start))
	if len(matched) == 0 {
		log.Debug("stopped at %s:%d, no talkpoints", frame.Path, frame.Line+1)
		return res, nil
	}
	log.Info("stopped at %s:%d, dispatching %d talkpoints", frame.Path, frame.Line+1, len(matched))

	var wg sync.WaitGroup
	for _, tp := range matched {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.dispatch(ctx, frame, tp)
		}()
	}
	wg.Wait()

	if shouldContinue(matched) {
		err := c.opts.Session.Continue(ctx, threadID)
		logging.Audit().Continued(threadID, err)
		if err != nil {
			c.opts.Announcer.Error(fmt.Sprintf("Could not continue execution: %v", err))
			return res, nil
		}
		res.Continued = true
	}
	return res, nil
}

// match resolves every live breakpoint's adapter line concurrently and keeps
// those on the frame's path and line. A breakpoint whose resolution fails is
// skipped.
func (c *Correlator) match(ctx context.Context, frame dap.Frame) []debugger.Breakpoint {
	bps := c.opts.Breakpoints.All()
	lines := make([]int, len(bps))
	resolved := make([]bool, len(bps))

	var g errgroup.Group
	if c.opts.ResolveConcurrency > 0 {
		g.SetLimit(c.opts.ResolveConcurrency)
	}
	for i, bp := range bps {
		g.Go(func() error {
			line, err := c.opts.Session.ResolvedLine(ctx, bp)
			if err != nil {
				logging.CorrelatorDebug("breakpoint %s skipped: %v", bp.ID, err)
				return nil
			}
			lines[i], resolved[i] = line, true
			return nil
		})
	}
	_ = g.Wait()

	framePath := source.Path(frame.Path)
	var out []debugger.Breakpoint
	for i, bp := range bps {
		if resolved[i] && lines[i] == frame.Line && bp.Location.Path() == framePath {
			out = append(out, bp)
		}
	}
	return out
}

// dispatch performs one talkpoint's feedback. Expression evaluation finishes
// before it returns because the frame id is only valid while the thread is
// stopped; tones are started and left to play.
func (c *Correlator) dispatch(ctx context.Context, frame dap.Frame, tp talkpoint.Talkpoint) {
	var err error
	switch a := tp.Action.(type) {
	case talkpoint.Tonal:
		c.opts.Tones.PlaySound(ctx, a.Sound)
	case talkpoint.Text:
		c.opts.Announcer.Info(a.Text)
	case talkpoint.Expression:
		var result string
		result, err = c.opts.Session.Evaluate(ctx, a.Expression, frame.ID)
		if err != nil {
			c.opts.Announcer.Warn(fmt.Sprintf("Invalid expression: %s", a.Expression))
		} else {
			c.opts.Announcer.Info(fmt.Sprintf("%s: %s", a.Expression, result))
		}
	default:
		err = fmt.Errorf("unrecognized talkpoint type %q", tp.KindName())
		c.opts.Announcer.Error(fmt.Sprintf("Talkpoint %s has an unrecognized type: %s", tp.BreakpointID, tp.KindName()))
	}
	logging.Audit().Dispatched(tp.BreakpointID, tp.KindName(), err)
}

// shouldContinue resumes only when every matched talkpoint asks for it.
// Mixed matches, some continuing and some pausing, keep the thread stopped
// whatever their order.
func shouldContinue(tps []talkpoint.Talkpoint) bool {
	for _, tp := range tps {
		if !tp.ShouldContinue {
			return false
		}
	}
	return len(tps) > 0
}

// Close abandons in-flight stops and waits for their handlers to return.
func (c *Correlator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
	logging.Correlator("correlator closed")
}
