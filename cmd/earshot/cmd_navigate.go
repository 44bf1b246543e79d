package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"earshot/internal/feedback"
	"earshot/internal/logging"
	"earshot/internal/navigation"

	"github.com/spf13/cobra"
)

var functionsCmd = &cobra.Command{
	Use:   "functions <file>",
	Short: "List the functions in a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNavigator(args[0], func(ctx context.Context, nav *navigation.Navigator, uri string, out feedback.Announcer) error {
			entries, err := nav.Functions(ctx, uri)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				out.Info("No functions found")
				return nil
			}
			for _, e := range entries {
				out.Info(e.String())
			}
			return nil
		})
	},
}

var contextCmd = &cobra.Command{
	Use:   "context <file> <line>",
	Short: "Describe the symbols enclosing a line",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := parseLine(args[1])
		if err != nil {
			return err
		}
		return withNavigator(args[0], func(ctx context.Context, nav *navigation.Navigator, uri string, out feedback.Announcer) error {
			chain, err := nav.Context(ctx, uri, line)
			if err != nil {
				return err
			}
			out.Info(navigation.DescribeContext(chain))
			return nil
		})
	},
}

var parentCmd = &cobra.Command{
	Use:   "parent <file> <line>",
	Short: "Name the symbol enclosing the one at a line",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := parseLine(args[1])
		if err != nil {
			return err
		}
		return withNavigator(args[0], func(ctx context.Context, nav *navigation.Navigator, uri string, out feedback.Announcer) error {
			parent, err := nav.Parent(ctx, uri, line)
			if errors.Is(err, navigation.ErrNotFound) {
				out.Warn("No enclosing symbol")
				return nil
			}
			if err != nil {
				return err
			}
			out.Info(fmt.Sprintf("%s %s, line %d", parent.Kind, parent.Name, parent.Range.StartLine+1))
			return nil
		})
	},
}

var entryCmd = &cobra.Command{
	Use:   "entry <file> <function>",
	Short: "Find the line a function starts on",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNavigator(args[0], func(ctx context.Context, nav *navigation.Navigator, uri string, out feedback.Announcer) error {
			e, err := nav.FunctionEntry(ctx, uri, args[1])
			if errors.Is(err, navigation.ErrNotFound) {
				out.Warn(fmt.Sprintf("No function named %s", args[1]))
				return nil
			}
			if err != nil {
				return err
			}
			out.Info(e.String())
			return nil
		})
	},
}

// withNavigator runs fn against a language server with file open.
func withNavigator(file string, fn func(ctx context.Context, nav *navigation.Navigator, uri string, out feedback.Announcer) error) error {
	ws, _, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.CloseAll()
	defer logging.CloseAudit()

	announcer, speaker := newAnnouncer(cfg, os.Stdout)
	if speaker != nil {
		defer speaker.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.GetLanguageServerTimeout())
	defer cancel()

	ls, err := startLanguageServer(ctx, ws, cfg, resolveFile(ws, file))
	if err != nil {
		return err
	}
	defer ls.Close()

	return fn(ctx, navigation.New(ls.client), ls.uri, announcer)
}
