package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"earshot/internal/config"
	"earshot/internal/decoration"
	"earshot/internal/diagnostics"
	"earshot/internal/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Play diagnostic tones and redraw talkpoint annotations as a file changes",
	Long: `Opens <file> in the configured language server. Every time the file is
saved it is re-sent to the server; new errors or warnings play their tone
(at most once per feedback.diagnostic_interval) and the talkpoint
annotations for the file are redrawn.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := openApp(ctx, nil, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	path := resolveFile(a.ws, args[0])
	ls, err := startLanguageServer(ctx, a.ws, a.cfg, path)
	if err != nil {
		return err
	}
	defer ls.Close()

	var reloads []func(*config.Config)
	if a.cfg.Feedback.DiagnosticSounds {
		monitor := diagnostics.NewMonitor(ls.client, a.tones, a.announcer, a.cfg.GetDiagnosticInterval())
		defer monitor.Close()
		monitor.SetActive(ls.uri)
		defer monitor.Summary(ls.uri)
		reloads = append(reloads, func(cfg *config.Config) { monitor.SetInterval(cfg.GetDiagnosticInterval()) })
	}

	if a.cfg.Decorations.Enabled {
		renderer := decoration.NewRenderer(a.store, a.bus, textSink{w: os.Stdout, root: a.ws}, a.cfg.GetDecorationInterval())
		defer renderer.Close()
		renderer.Open(ls.uri)
		defer renderer.CloseDocument(ls.uri)
		ls.onSave = func() { renderer.DocumentChanged(ls.uri) }
		reloads = append(reloads, func(cfg *config.Config) { renderer.SetInterval(cfg.GetDecorationInterval()) })
	}
	defer a.watchConfig(ctx, reloads...)()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	a.announcer.Info(fmt.Sprintf("Watching %s", filepath.Base(path)))
	for {
		select {
		case <-sigCh:
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := ls.reload(path); err != nil {
				logging.Get(logging.CategoryLSP).Warn("failed to resend %s: %v", path, err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryDiagnostics).Error("file watcher error: %v", err)
		}
	}
}
