package lifecycle

import (
	"context"
	"sync"

	"earshot/internal/debugger"
	"earshot/internal/source"
)

type scriptedInteraction struct {
	mu    sync.Mutex
	defs  []Definition
	errs  []error
	calls int
}

func (s *scriptedInteraction) CollectTalkpoint(_ context.Context, _ source.Location) (Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	var def Definition
	var err error
	if i < len(s.defs) {
		def = s.defs[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return def, err
}

// always returns the same definition.
type fixedInteraction struct {
	def Definition
}

func (f fixedInteraction) CollectTalkpoint(context.Context, source.Location) (Definition, error) {
	return f.def, nil
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

// breakpointSettingInteraction sets a plain breakpoint at the location
// while the user is still filling in the definition.
type breakpointSettingInteraction struct {
	registry *debugger.Registry
	def      Definition
}

func (b breakpointSettingInteraction) CollectTalkpoint(_ context.Context, loc source.Location) (Definition, error) {
	b.registry.Add(b.registry.Stage(loc))
	return b.def, nil
}
