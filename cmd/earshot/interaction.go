package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"earshot/internal/lifecycle"
	"earshot/internal/source"
	"earshot/internal/talkpoint"

	"github.com/charmbracelet/huh"
)

// formInteraction asks for a talkpoint definition with a terminal form.
type formInteraction struct {
	accessible bool
}

func (f formInteraction) CollectTalkpoint(ctx context.Context, loc source.Location) (lifecycle.Definition, error) {
	var (
		kind      string
		payload   string
		sound     string
		keepGoing bool
	)
	kind = string(talkpoint.KindTonal)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Talkpoint at %s", loc)).
				Options(
					huh.NewOption("Tone", string(talkpoint.KindTonal)),
					huh.NewOption("Text message", string(talkpoint.KindText)),
					huh.NewOption("Expression", string(talkpoint.KindExpression)),
				).
				Value(&kind),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Sound file (empty for the default tone)").
				Value(&sound),
		).WithHideFunc(func() bool { return kind != string(talkpoint.KindTonal) }),
		huh.NewGroup(
			huh.NewInput().
				Title("Message to speak").
				Value(&payload).
				Validate(notBlank("message")),
		).WithHideFunc(func() bool { return kind != string(talkpoint.KindText) }),
		huh.NewGroup(
			huh.NewInput().
				Title("Expression to evaluate").
				Value(&payload).
				Validate(notBlank("expression")),
		).WithHideFunc(func() bool { return kind != string(talkpoint.KindExpression) }),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Continue after speaking?").
				Affirmative("Continue").
				Negative("Stay stopped").
				Value(&keepGoing),
		),
	)
	if err := form.WithAccessible(f.accessible).RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) || errors.Is(err, context.Canceled) {
			return lifecycle.Definition{}, lifecycle.ErrAbandoned
		}
		return lifecycle.Definition{}, err
	}
	if kind == string(talkpoint.KindTonal) {
		payload = sound
	}
	return definitionFromAnswers(kind, payload, keepGoing)
}

var errUnknownKind = errors.New("unknown talkpoint type")

func checkKind(kind string) error {
	switch talkpoint.Kind(kind) {
	case talkpoint.KindTonal, talkpoint.KindText, talkpoint.KindExpression:
		return nil
	}
	return fmt.Errorf("%w %q (want tonal, text or expression)", errUnknownKind, kind)
}

// definitionFromAnswers turns raw form answers into a definition. Text and
// expression payloads are required; a blank one abandons creation.
func definitionFromAnswers(kind, payload string, shouldContinue bool) (lifecycle.Definition, error) {
	payload = strings.TrimSpace(payload)
	var action talkpoint.Action
	switch talkpoint.Kind(kind) {
	case talkpoint.KindTonal:
		action = talkpoint.Tonal{Sound: payload}
	case talkpoint.KindText:
		if payload == "" {
			return lifecycle.Definition{}, lifecycle.ErrAbandoned
		}
		action = talkpoint.Text{Text: payload}
	case talkpoint.KindExpression:
		if payload == "" {
			return lifecycle.Definition{}, lifecycle.ErrAbandoned
		}
		action = talkpoint.Expression{Expression: payload}
	default:
		return lifecycle.Definition{}, checkKind(kind)
	}
	return lifecycle.Definition{Action: action, ShouldContinue: shouldContinue}, nil
}

func notBlank(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

// flagInteraction builds the definition from command-line flags, skipping
// the form entirely.
type flagInteraction struct {
	kind           string
	payload        string
	shouldContinue bool
}

func (f flagInteraction) CollectTalkpoint(_ context.Context, _ source.Location) (lifecycle.Definition, error) {
	return definitionFromAnswers(f.kind, f.payload, f.shouldContinue)
}
