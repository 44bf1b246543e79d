package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"earshot/internal/decoration"
	"earshot/internal/lifecycle"
	"earshot/internal/source"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	talkpointType     string
	talkpointValue    string
	talkpointContinue bool
	accessibleForm    bool
)

var talkpointCmd = &cobra.Command{
	Use:   "talkpoint",
	Short: "Manage talkpoints (breakpoints that speak)",
}

var talkpointAddCmd = &cobra.Command{
	Use:   "add <file> <line>",
	Short: "Add a talkpoint at a line, or remove the one already there",
	Long: `Adds a talkpoint on the breakpoint at <file>:<line>, creating the
breakpoint if needed. Running it again on the same line removes the talkpoint.

Without --type an interactive form asks for the talkpoint's action.`,
	Args: cobra.ExactArgs(2),
	RunE: runTalkpointAdd,
}

var talkpointRemoveAllCmd = &cobra.Command{
	Use:   "remove-all",
	Short: "Remove every talkpoint and its breakpoint",
	Args:  cobra.NoArgs,
	RunE:  runTalkpointRemoveAll,
}

var talkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List talkpoints as gutter annotations",
	Args:  cobra.NoArgs,
	RunE:  runTalkpointList,
}

func init() {
	talkpointAddCmd.Flags().StringVarP(&talkpointType, "type", "t", "", "Action type: tonal, text or expression")
	talkpointAddCmd.Flags().StringVar(&talkpointValue, "value", "", "Sound file, message or expression for the action")
	talkpointAddCmd.Flags().BoolVarP(&talkpointContinue, "continue", "c", false, "Continue execution after the action")
	talkpointAddCmd.Flags().BoolVar(&accessibleForm, "accessible", false, "Use a line-based prompt suitable for screen readers")
}

func runTalkpointAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	line, err := parseLine(args[1])
	if err != nil {
		return err
	}

	var interaction lifecycle.Interaction = formInteraction{accessible: accessibleForm}
	if talkpointType != "" {
		if err := checkKind(talkpointType); err != nil {
			return err
		}
		interaction = flagInteraction{kind: talkpointType, payload: talkpointValue, shouldContinue: talkpointContinue}
	}

	a, err := openApp(ctx, interaction, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	uri := source.FileURI(resolveFile(a.ws, args[0]))
	outcome, err := a.controller.CreateOrToggle(ctx, uri, line)
	if err != nil {
		return err
	}
	logger.Debug("talkpoint add finished", zap.String("uri", uri), zap.Stringer("outcome", outcome))
	return nil
}

func runTalkpointRemoveAll(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), nil, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	a.controller.RemoveAll()
	return nil
}

func runTalkpointList(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), nil, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	tps := a.controller.List()
	if len(tps) == 0 {
		fmt.Println("No talkpoints registered")
		return nil
	}

	r := decoration.NewRenderer(a.store, a.bus, textSink{w: os.Stdout, root: a.ws}, a.cfg.GetDecorationInterval())
	defer r.Close()
	seen := make(map[string]bool)
	for _, tp := range tps {
		if seen[tp.URI] {
			continue
		}
		seen[tp.URI] = true
		r.Open(tp.URI)
	}
	return nil
}

// textSink renders decorations as an indented listing per file.
type textSink struct {
	w    io.Writer
	root string
}

func (s textSink) Render(uri string, decorations []decoration.Decoration) {
	path := source.Path(uri)
	if rel, err := filepath.Rel(s.root, path); err == nil && !strings.HasPrefix(rel, "..") {
		path = rel
	}
	fmt.Fprintln(s.w, headingStyle.Render(path))
	for _, d := range decorations {
		fmt.Fprintf(s.w, "  %4d  %s\n", d.Line+1, d.Label)
	}
}
