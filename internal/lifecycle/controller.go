// Package lifecycle creates, toggles and deletes talkpoints, keeping the
// talkpoint store consistent with the live breakpoint set.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"earshot/internal/debugger"
	"earshot/internal/feedback"
	"earshot/internal/logging"
	"earshot/internal/source"
	"earshot/internal/talkpoint"
)

var (
	// ErrAbandoned is returned by an Interaction the user dismissed.
	ErrAbandoned = errors.New("talkpoint creation abandoned")

	// ErrNoEditor means there is no document or cursor to act on.
	ErrNoEditor = errors.New("no active editor position")
)

// Definition is what the creation flow collects.
type Definition struct {
	Action         talkpoint.Action
	ShouldContinue bool
}

// Interaction collects a talkpoint definition from the user.
type Interaction interface {
	CollectTalkpoint(ctx context.Context, loc source.Location) (Definition, error)
}

// Breakpoints is the narrow surface of the live breakpoint set the
// controller mutates.
type Breakpoints interface {
	Find(loc source.Location) (debugger.Breakpoint, bool)
	Stage(loc source.Location) debugger.Breakpoint
	Add(bps ...debugger.Breakpoint)
	Remove(ids ...string) []debugger.Breakpoint
	OnChange(fn func(debugger.ChangeEvent)) (unsubscribe func())
}

// Outcome is the result of CreateOrToggle.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeRemoved
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeRemoved:
		return "removed"
	default:
		return "abandoned"
	}
}

// Controller owns talkpoint mutations. It listens for breakpoint removals
// from any source and drops the matching talkpoints.
type Controller struct {
	store       *talkpoint.Store
	bus         *talkpoint.Bus
	breakpoints Breakpoints
	interaction Interaction
	announcer   feedback.Announcer

	mu          sync.Mutex
	unsubscribe func()
}

// NewController wires a controller and subscribes it to breakpoint removals.
func NewController(store *talkpoint.Store, bus *talkpoint.Bus, bps Breakpoints, interaction Interaction, announcer feedback.Announcer) *Controller {
	c := &Controller{
		store:       store,
		bus:         bus,
		breakpoints: bps,
		interaction: interaction,
		announcer:   announcer,
	}
	c.unsubscribe = bps.OnChange(func(ev debugger.ChangeEvent) {
		if len(ev.Removed) > 0 {
			c.RemoveForBreakpoints(ev.Removed)
		}
	})
	return c
}

// Close stops listening for breakpoint removals.
func (c *Controller) Close() {
	c.unsubscribe()
}

// CreateOrToggle adds a talkpoint at (uri, line) or, if one already exists
// on the breakpoint there, removes it. A breakpoint created for the new
// talkpoint only goes live once the user completes the creation flow.
func (c *Controller) CreateOrToggle(ctx context.Context, uri string, line int) (Outcome, error) {
	if uri == "" || line < 0 {
		return OutcomeAbandoned, ErrNoEditor
	}
	loc := source.Location{URI: uri, Line: line}

	bp, exists := c.breakpoints.Find(loc)
	if exists {
		if tp, ok := c.store.Get(bp.ID); ok {
			c.toggleOff(tp)
			return OutcomeRemoved, nil
		}
	} else {
		bp = c.breakpoints.Stage(loc)
	}

	def, err := c.interaction.CollectTalkpoint(ctx, loc)
	if errors.Is(err, ErrAbandoned) {
		c.announcer.Warn("Talkpoint creation cancelled")
		logging.LifecycleDebug("creation abandoned at %s", loc)
		return OutcomeAbandoned, nil
	}
	if err != nil {
		return OutcomeAbandoned, fmt.Errorf("talkpoint creation failed: %w", err)
	}
	if def.Action == nil {
		return OutcomeAbandoned, errors.New("talkpoint creation returned no action")
	}

	// A breakpoint may have appeared at loc while the flow was open. Attach
	// to it; the staged one would be skipped as a duplicate and never go live.
	owns := !exists
	if owns {
		if live, ok := c.breakpoints.Find(loc); ok {
			logging.LifecycleDebug("breakpoint %s appeared at %s during creation, attaching to it", live.ID, loc)
			bp, owns = live, false
		}
	}

	tp := talkpoint.Talkpoint{
		BreakpointID:   bp.ID,
		URI:            uri,
		Position:       talkpoint.Position{Line: line},
		ShouldContinue: def.ShouldContinue,
		OwnsBreakpoint: owns,
		Action:         def.Action,
	}
	c.store.Set(bp.ID, tp)
	if owns {
		c.breakpoints.Add(bp)
	}
	c.bus.Emit(talkpoint.TalkpointsChanged)

	logging.Lifecycle("created %s talkpoint %s at %s", tp.KindName(), bp.ID, loc)
	logging.Audit().TalkpointCreated(bp.ID, tp.KindName(), loc.String())
	c.announcer.Info("Added talkpoint: " + tp.Describe())
	return OutcomeCreated, nil
}

// toggleOff deletes tp before touching its breakpoint so the resulting
// removal event finds nothing left to remove.
func (c *Controller) toggleOff(tp talkpoint.Talkpoint) {
	c.store.Delete(tp.BreakpointID)
	if tp.OwnsBreakpoint {
		c.breakpoints.Remove(tp.BreakpointID)
	}
	c.bus.Emit(talkpoint.TalkpointsChanged)

	logging.Lifecycle("toggled off talkpoint %s", tp.BreakpointID)
	logging.Audit().TalkpointRemoved(tp.BreakpointID, "toggle")
	c.announcer.Info("Removed talkpoint at " + tp.Location().String())
}

// RemoveForBreakpoints deletes the talkpoints of breakpoints removed
// elsewhere and returns how many were removed.
func (c *Controller) RemoveForBreakpoints(bps []debugger.Breakpoint) int {
	removed := 0
	for _, bp := range bps {
		tp, ok := c.store.Get(bp.ID)
		if !ok || !c.store.Delete(bp.ID) {
			continue
		}
		removed++
		logging.Audit().TalkpointRemoved(bp.ID, "breakpoint removed")
		c.announcer.Info("Removed talkpoint at " + tp.Location().String())
	}
	if removed > 0 {
		logging.Lifecycle("removed %d talkpoints with their breakpoints", removed)
		c.bus.Emit(talkpoint.TalkpointsChanged)
	}
	return removed
}

// RemoveAll deletes every talkpoint together with its breakpoint and
// returns the count. Plain breakpoints are untouched.
func (c *Controller) RemoveAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.Len() == 0 {
		c.announcer.Info("No talkpoints registered")
		return 0
	}

	ids := make([]string, 0, c.store.Len())
	for id := range c.store.Entries() {
		ids = append(ids, id)
	}
	c.store.Clear()
	c.breakpoints.Remove(ids...)
	c.bus.Emit(talkpoint.TalkpointsChanged)

	for _, id := range ids {
		logging.Audit().TalkpointRemoved(id, "remove all")
	}
	logging.Lifecycle("removed all %d talkpoints", len(ids))
	c.announcer.Info(fmt.Sprintf("Removed %d talkpoints", len(ids)))
	return len(ids)
}

// List returns the talkpoints ordered by location.
func (c *Controller) List() []talkpoint.Talkpoint {
	return c.store.List()
}
