package talkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned when persisted data does not describe a talkpoint.
var ErrMalformed = errors.New("malformed talkpoint")

// wireTalkpoint is the flat persisted form, discriminated by Type.
type wireTalkpoint struct {
	BreakpointID   string   `json:"breakpointId"`
	URI            string   `json:"uri"`
	Position       Position `json:"position"`
	ShouldContinue bool     `json:"shouldContinue"`
	OwnsBreakpoint bool     `json:"ownsBreakpoint,omitempty"`
	Type           string   `json:"type,omitempty"`
	Sound          string   `json:"sound,omitempty"`
	Text           string   `json:"text,omitempty"`
	Expression     string   `json:"expression,omitempty"`
}

// MarshalJSON encodes the talkpoint as a flat tagged object.
func (t Talkpoint) MarshalJSON() ([]byte, error) {
	w := wireTalkpoint{
		BreakpointID:   t.BreakpointID,
		URI:            t.URI,
		Position:       t.Position,
		ShouldContinue: t.ShouldContinue,
		OwnsBreakpoint: t.OwnsBreakpoint,
	}
	switch a := t.Action.(type) {
	case Tonal:
		w.Type, w.Sound = string(KindTonal), a.Sound
	case Text:
		w.Type, w.Text = string(KindText), a.Text
	case Expression:
		w.Type, w.Expression = string(KindExpression), a.Expression
	case Unknown:
		w.Type = a.Type
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the flat tagged object. Unrecognized types decode to
// Unknown; a missing breakpointId is ErrMalformed.
func (t *Talkpoint) UnmarshalJSON(data []byte) error {
	var w wireTalkpoint
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.BreakpointID == "" {
		return fmt.Errorf("%w: missing breakpointId", ErrMalformed)
	}

	*t = Talkpoint{
		BreakpointID:   w.BreakpointID,
		URI:            w.URI,
		Position:       w.Position,
		ShouldContinue: w.ShouldContinue,
		OwnsBreakpoint: w.OwnsBreakpoint,
	}
	switch Kind(w.Type) {
	case KindTonal:
		t.Action = Tonal{Sound: w.Sound}
	case KindText:
		t.Action = Text{Text: w.Text}
	case KindExpression:
		t.Action = Expression{Expression: w.Expression}
	default:
		t.Action = Unknown{Type: w.Type}
	}
	return nil
}
