package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose      bool
	workspaceDir string
	configPath   string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "earshot",
	Short: "earshot - audible talkpoints and code navigation for debugging by ear",
	Long: `earshot attaches spoken and tonal feedback to breakpoints ("talkpoints"),
plays tones for diagnostics and reads out code structure.

Talkpoints persist per workspace and are re-linked to breakpoints by file
and line every session. Run "earshot debug" to hear them fire.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspaceDir, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.earshot/config.yaml)")

	talkpointCmd.AddCommand(talkpointAddCmd)
	talkpointCmd.AddCommand(talkpointRemoveAllCmd)
	talkpointCmd.AddCommand(talkpointListCmd)

	breakpointCmd.AddCommand(breakpointAddCmd)
	breakpointCmd.AddCommand(breakpointRemoveCmd)
	breakpointCmd.AddCommand(breakpointRemoveAllCmd)
	breakpointCmd.AddCommand(breakpointListCmd)

	rootCmd.AddCommand(talkpointCmd)
	rootCmd.AddCommand(breakpointCmd)
	rootCmd.AddCommand(functionsCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(parentCmd)
	rootCmd.AddCommand(entryCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveWorkspace returns the absolute workspace directory.
func resolveWorkspace() (string, error) {
	ws := workspaceDir
	if ws == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		ws = cwd
	}
	return filepath.Abs(ws)
}

// resolveFile makes a file argument absolute, relative to the workspace.
func resolveFile(ws, file string) string {
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	return filepath.Join(ws, file)
}

// parseLine converts a 1-based line argument to a 0-based line.
func parseLine(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid line %q: lines start at 1", arg)
	}
	return n - 1, nil
}
