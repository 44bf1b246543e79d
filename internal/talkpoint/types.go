package talkpoint

import (
	"fmt"

	"earshot/internal/source"
)

// Kind names a talkpoint variant as it appears in persisted data.
type Kind string

const (
	KindTonal      Kind = "tonal"
	KindText       Kind = "text"
	KindExpression Kind = "expression"
)

// Action is the feedback a talkpoint performs when hit. The set of
// implementations is closed: Tonal, Text, Expression and Unknown.
type Action interface {
	Kind() Kind
	sealed()
}

// Tonal plays a sound. An empty Sound means the configured talkpoint tone.
type Tonal struct {
	Sound string
}

// Text announces a fixed string.
type Text struct {
	Text string
}

// Expression evaluates an expression in the top stack frame and announces
// the result.
type Expression struct {
	Expression string
}

// Unknown carries a persisted talkpoint whose type this build does not
// recognize. It is kept so saving does not lose it, and it is reported as an
// error when hit.
type Unknown struct {
	Type string
}

func (Tonal) Kind() Kind      { return KindTonal }
func (Text) Kind() Kind       { return KindText }
func (Expression) Kind() Kind { return KindExpression }
func (u Unknown) Kind() Kind  { return Kind(u.Type) }

func (Tonal) sealed()      {}
func (Text) sealed()       {}
func (Expression) sealed() {}
func (Unknown) sealed()    {}

// Position is a 0-based line/character pair.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Talkpoint is a breakpoint augmented with audible feedback and a
// continue-or-stop policy. Values are replaced wholesale, never mutated in
// place.
type Talkpoint struct {
	BreakpointID string
	URI          string
	Position     Position

	// ShouldContinue resumes execution automatically after feedback.
	ShouldContinue bool

	// OwnsBreakpoint is set when the breakpoint was created only to host
	// this talkpoint; removing the talkpoint then removes the breakpoint.
	OwnsBreakpoint bool

	Action Action
}

// Location returns the talkpoint's source location.
func (t Talkpoint) Location() source.Location {
	return source.Location{URI: t.URI, Line: t.Position.Line}
}

// Key returns the durable (path, line) identity.
func (t Talkpoint) Key() source.Key {
	return t.Location().Key()
}

// WithBreakpointID returns a copy bound to another breakpoint identity.
func (t Talkpoint) WithBreakpointID(id string) Talkpoint {
	t.BreakpointID = id
	return t
}

// KindName returns the action's kind, or "missing" when there is none.
func (t Talkpoint) KindName() string {
	if t.Action == nil || t.Action.Kind() == "" {
		return "missing"
	}
	return string(t.Action.Kind())
}

// Describe renders the talkpoint for announcements and listings.
func (t Talkpoint) Describe() string {
	var what string
	switch a := t.Action.(type) {
	case Tonal:
		if a.Sound == "" {
			what = "tone"
		} else {
			what = fmt.Sprintf("tone %s", a.Sound)
		}
	case Text:
		what = fmt.Sprintf("say %q", a.Text)
	case Expression:
		what = fmt.Sprintf("evaluate %s", a.Expression)
	default:
		what = fmt.Sprintf("%s talkpoint", t.KindName())
	}
	if t.ShouldContinue {
		what += ", then continue"
	}
	return fmt.Sprintf("%s at %s", what, t.Location())
}
