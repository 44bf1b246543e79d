package main

import (
	"context"
	"fmt"
	"os"

	"earshot/internal/source"

	"github.com/spf13/cobra"
)

var breakpointCmd = &cobra.Command{
	Use:   "breakpoint",
	Short: "Manage plain breakpoints",
	Long: `Manage the workspace breakpoints that talkpoints attach to. Removing a
breakpoint also removes any talkpoint on it.`,
}

var breakpointAddCmd = &cobra.Command{
	Use:   "add <file> <line>",
	Short: "Add a breakpoint",
	Args:  cobra.ExactArgs(2),
	RunE:  runBreakpointAdd,
}

var breakpointRemoveCmd = &cobra.Command{
	Use:   "remove <file> <line>",
	Short: "Remove a breakpoint and its talkpoint",
	Args:  cobra.ExactArgs(2),
	RunE:  runBreakpointRemove,
}

var breakpointRemoveAllCmd = &cobra.Command{
	Use:   "remove-all",
	Short: "Remove every breakpoint and its talkpoint",
	Args:  cobra.NoArgs,
	RunE:  runBreakpointRemoveAll,
}

var breakpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List breakpoints",
	Args:  cobra.NoArgs,
	RunE:  runBreakpointList,
}

func breakpointLocation(ws string, args []string) (source.Location, error) {
	line, err := parseLine(args[1])
	if err != nil {
		return source.Location{}, err
	}
	return source.Location{URI: source.FileURI(resolveFile(ws, args[0])), Line: line}, nil
}

func runBreakpointAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), nil, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	loc, err := breakpointLocation(a.ws, args)
	if err != nil {
		return err
	}
	if _, ok := a.registry.Find(loc); ok {
		fmt.Printf("Breakpoint already set at %s\n", loc)
		return nil
	}
	a.registry.Add(a.registry.Stage(loc))
	fmt.Printf("Breakpoint set at %s\n", loc)
	return nil
}

func runBreakpointRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), nil, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	loc, err := breakpointLocation(a.ws, args)
	if err != nil {
		return err
	}
	bp, ok := a.registry.Find(loc)
	if !ok {
		return fmt.Errorf("no breakpoint at %s", loc)
	}
	a.registry.Remove(bp.ID)
	fmt.Printf("Breakpoint removed at %s\n", loc)
	return nil
}

func runBreakpointRemoveAll(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), nil, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	removed := a.registry.RemoveAll()
	if len(removed) == 0 {
		fmt.Println("No breakpoints set")
		return nil
	}
	fmt.Printf("Removed %d breakpoints\n", len(removed))
	return nil
}

func runBreakpointList(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), nil, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	bps := a.registry.All()
	if len(bps) == 0 {
		fmt.Println("No breakpoints set")
		return nil
	}
	for _, bp := range bps {
		marker := " "
		if _, ok := a.store.Get(bp.ID); ok {
			marker = "*"
		}
		fmt.Printf("%s %s %s\n", marker, bp.Location, mutedStyle.Render(bp.ID))
	}
	return nil
}
