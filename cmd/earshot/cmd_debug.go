package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"earshot/internal/config"
	"earshot/internal/correlate"
	"earshot/internal/dap"
	"earshot/internal/logging"
	"earshot/internal/wire"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	debugAdapter string
	debugAddress string
	debugProgram string
	debugAttach  bool
	debugArgs    []string
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Run a debug session and speak talkpoints as they are hit",
	Long: `Starts (or connects to) a debug adapter, sends the workspace breakpoints
and launches the program. Each stop on a talkpoint plays its tone, speaks its
message or evaluates its expression, then continues if asked to.

Examples:
  earshot debug --adapter "python -m debugpy.adapter" --program app.py
  earshot debug --address localhost:4711 --attach`,
	Args: cobra.NoArgs,
	RunE: runDebug,
}

func init() {
	debugCmd.Flags().StringVar(&debugAdapter, "adapter", "", "Debug adapter command (overrides debugger.adapter)")
	debugCmd.Flags().StringVar(&debugAddress, "address", "", "Dial a debug adapter at host:port instead of spawning one")
	debugCmd.Flags().StringVarP(&debugProgram, "program", "p", "", "Program to launch")
	debugCmd.Flags().BoolVar(&debugAttach, "attach", false, "Attach instead of launch")
	debugCmd.Flags().StringArrayVar(&debugArgs, "arg", nil, "Program argument (repeatable)")
}

func runDebug(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nDebug session interrupted")
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := openApp(ctx, nil, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	rwc, err := connectAdapter(ctx, a.cfg)
	if err != nil {
		return err
	}

	defer a.watchConfig(ctx)()

	return runSession(ctx, a, rwc, sessionOptions{
		program: debugProgram,
		args:    debugArgs,
		attach:  debugAttach,
	})
}

// connectAdapter dials --address or debugger.address when set, otherwise
// spawns the adapter command.
func connectAdapter(ctx context.Context, cfg *config.Config) (io.ReadWriteCloser, error) {
	address := firstNonEmpty(debugAddress, cfg.Debugger.Address)
	if address != "" {
		return wire.Dial(ctx, address)
	}

	command := firstNonEmpty(debugAdapter, cfg.Debugger.Adapter)
	if command == "" {
		return nil, errors.New("no debug adapter configured (use --adapter or set debugger.adapter)")
	}
	proc, err := wire.Spawn(command, func(line string) {
		logging.DAPDebug("adapter stderr: %s", line)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start debug adapter: %w", err)
	}
	logging.DAP("debug adapter started (pid %d): %s", proc.Pid(), command)
	return proc, nil
}

type sessionOptions struct {
	program string
	args    []string
	attach  bool
}

// runSession drives one debug session over rwc until the debuggee
// terminates or ctx is cancelled.
func runSession(ctx context.Context, a *app, rwc io.ReadWriteCloser, opts sessionOptions) (err error) {
	sessionID := uuid.NewString()
	audit := logging.AuditWithSession(sessionID)
	audit.SessionStart(opts.program)
	defer func() { audit.SessionEnd(err) }()

	client := dap.NewClient(rwc, dap.WithTimeout(a.cfg.GetRequestTimeout()))
	defer client.Close()

	corr := correlate.New(correlate.Options{
		Session:            client,
		Breakpoints:        a.registry,
		Talkpoints:         a.store,
		Tones:              a.tones,
		Announcer:          a.announcer,
		ResolveConcurrency: a.cfg.Debugger.ResolveConcurrency,
	})
	defer corr.Close()
	unsubscribe := client.Subscribe(corr.HandleMessage)
	defer unsubscribe()

	if _, err := client.Initialize(ctx, a.cfg.Debugger.AdapterID); err != nil {
		return fmt.Errorf("failed to initialize debug adapter: %w", err)
	}

	startArgs := map[string]any{"cwd": a.ws}
	if opts.program != "" {
		startArgs["program"] = resolveFile(a.ws, opts.program)
		startArgs["args"] = opts.args
	}
	started := make(chan error, 1)
	go func() {
		if opts.attach {
			started <- client.Attach(ctx, startArgs)
		} else {
			started <- client.Launch(ctx, startArgs)
		}
	}()

	// Adapters may answer the launch before or after sending initialized.
	startDone := false
	select {
	case <-client.Initialized():
	case err := <-started:
		startDone = true
		if err != nil {
			return fmt.Errorf("failed to start debuggee: %w", err)
		}
		select {
		case <-client.Initialized():
		case <-client.Terminated():
			return errors.New("debug adapter exited before initialization")
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-client.Terminated():
		return errors.New("debug adapter exited before initialization")
	case <-ctx.Done():
		return ctx.Err()
	}

	binder := dap.Bind(ctx, client, a.registry)
	defer binder.Close()
	if err := binder.SyncAll(ctx); err != nil {
		a.announcer.Warn(fmt.Sprintf("Some breakpoints could not be set: %v", err))
	}
	if err := client.ConfigurationDone(ctx); err != nil {
		return fmt.Errorf("configurationDone failed: %w", err)
	}
	if !startDone {
		select {
		case err := <-started:
			if err != nil {
				return fmt.Errorf("failed to start debuggee: %w", err)
			}
		case <-client.Terminated():
		case <-ctx.Done():
		}
	}

	name := "debuggee"
	if opts.program != "" {
		name = filepath.Base(opts.program)
	}
	a.announcer.Info(fmt.Sprintf("Debugging %s with %d talkpoints", name, a.store.Len()))

	select {
	case <-client.Terminated():
		a.announcer.Info("Debug session ended")
		return nil
	case <-ctx.Done():
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			logging.DAPDebug("disconnect: %v", err)
		}
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
