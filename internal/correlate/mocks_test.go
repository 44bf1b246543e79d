package correlate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"earshot/internal/dap"
	"earshot/internal/debugger"
	"earshot/internal/talkpoint"
)

var _ Session = (*dap.Client)(nil)

type fakeSession struct {
	mu sync.Mutex

	frame    dap.Frame
	frameErr error
	resolved map[string]int
	failing  map[string]bool
	values   map[string]string

	evaluated []string
	continued []int
	frameIDs  []int
}

func (f *fakeSession) TopFrame(_ context.Context, _ int) (dap.Frame, error) {
	return f.frame, f.frameErr
}

func (f *fakeSession) ResolvedLine(_ context.Context, bp debugger.Breakpoint) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[bp.ID] {
		return 0, errors.New("adapter timed out")
	}
	line, ok := f.resolved[bp.ID]
	if !ok {
		return 0, dap.ErrUnresolved
	}
	return line, nil
}

func (f *fakeSession) Evaluate(_ context.Context, expression string, frameID int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, expression)
	f.frameIDs = append(f.frameIDs, frameID)
	v, ok := f.values[expression]
	if !ok {
		return "", &dap.RequestError{Command: "evaluate", Message: fmt.Sprintf("name '%s' is not defined", expression)}
	}
	return v, nil
}

func (f *fakeSession) Continue(_ context.Context, threadID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.continued = append(f.continued, threadID)
	return nil
}

func (f *fakeSession) continueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.continued)
}

type staticBreakpoints []debugger.Breakpoint

func (s staticBreakpoints) All() []debugger.Breakpoint { return s }

type mapTalkpoints map[string]talkpoint.Talkpoint

func (m mapTalkpoints) Get(id string) (talkpoint.Talkpoint, bool) {
	tp, ok := m[id]
	return tp, ok
}

type recordingTones struct {
	mu     sync.Mutex
	played []string
}

func (r *recordingTones) PlaySound(_ context.Context, sound string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.played = append(r.played, sound)
}

type recordingAnnouncer struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func (r *recordingAnnouncer) Info(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, msg)
}

func (r *recordingAnnouncer) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warns = append(r.warns, msg)
}

func (r *recordingAnnouncer) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}
