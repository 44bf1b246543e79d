package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"earshot/internal/config"
	"earshot/internal/debugger"
	"earshot/internal/feedback"
	"earshot/internal/lifecycle"
	"earshot/internal/logging"
	"earshot/internal/reconcile"
	"earshot/internal/talkpoint"
	"earshot/internal/workspace"

	"go.uber.org/zap"
)

// app is one workspace session: the persisted talkpoints, the live
// breakpoint set re-keyed for this process, and the feedback channels.
type app struct {
	ws      string
	cfgPath string
	cfg     *config.Config

	db        *workspace.Store
	bus       *talkpoint.Bus
	store     *talkpoint.Store
	persister *talkpoint.Persister
	registry  *debugger.Registry
	detach    func()

	speaker   *feedback.Speaker
	announcer feedback.Announcer
	player    *feedback.CommandPlayer
	tones     *feedback.ToneBank

	controller *lifecycle.Controller
}

// loadConfig resolves the workspace, loads its config and starts file
// logging.
func loadConfig() (ws, cfgPath string, cfg *config.Config, err error) {
	ws, err = resolveWorkspace()
	if err != nil {
		return "", "", nil, err
	}

	cfgPath = configPath
	if cfgPath == "" {
		cfgPath = config.Path(ws)
	}
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	if err := logging.Initialize(ws, loggingOptions(cfg)); err != nil {
		return "", "", nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logging.InitAudit(); err != nil {
		logger.Warn("audit log unavailable", zap.Error(err))
	}
	logging.Boot("config loaded from %s", cfgPath)
	return ws, cfgPath, cfg, nil
}

// newAnnouncer writes announcements to out and, when speech is enabled,
// speaks them too. The returned speaker is nil unless speech is on.
func newAnnouncer(cfg *config.Config, out io.Writer) (feedback.Announcer, *feedback.Speaker) {
	console := feedback.NewConsole(out)
	if !cfg.Feedback.Speak {
		return console, nil
	}
	speaker := feedback.NewSpeaker(console, cfg.Feedback.SpeechCommand)
	return speaker, speaker
}

// openApp loads config, opens workspace storage and reconciles the saved
// talkpoints against this session's breakpoint identities.
func openApp(ctx context.Context, interaction lifecycle.Interaction, out io.Writer) (*app, error) {
	ws, cfgPath, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := workspace.Open(cfg.DatabasePath(ws), cfg.Storage.Driver)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace storage: %w", err)
	}

	a := &app{ws: ws, cfgPath: cfgPath, cfg: cfg, db: db, bus: talkpoint.NewBus()}

	a.store, err = talkpoint.NewStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load talkpoints: %w", err)
	}
	a.persister = talkpoint.NewPersister(context.Background(), a.store, a.bus)

	a.registry = debugger.NewRegistry(db)
	a.detach = reconcile.New(a.store, a.bus).Attach(a.registry)
	if _, err := a.registry.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load breakpoints: %w", err)
	}

	a.announcer, a.speaker = newAnnouncer(cfg, out)
	a.player = feedback.NewCommandPlayer(cfg.Feedback.PlayerCommand)
	a.tones = feedback.NewToneBank(feedback.FileLoader{}, a.player, a.announcer)
	if err := a.tones.Configure(ctx, cfg.Feedback); err != nil {
		logger.Debug("custom sounds not loaded", zap.Error(err))
	}

	a.controller = lifecycle.NewController(a.store, a.bus, a.registry, interaction, a.announcer)

	logging.BootDebug("workspace %s: %d talkpoints, %d breakpoints", ws, a.store.Len(), len(a.registry.All()))
	logger.Debug("workspace opened",
		zap.String("workspace", ws),
		zap.Int("talkpoints", a.store.Len()),
		zap.Int("breakpoints", len(a.registry.All())))
	return a, nil
}

func loggingOptions(cfg *config.Config) logging.Options {
	return logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat(),
		Categories: cfg.Logging.Categories,
	}
}

// watchConfig reloads logging and sounds whenever the config file changes,
// then runs each hook with the new config. Hot reload failing to start is
// logged, not fatal.
func (a *app) watchConfig(ctx context.Context, hooks ...func(*config.Config)) (stop func()) {
	watcher, err := config.NewWatcher(a.cfgPath)
	if err != nil {
		logger.Warn("config hot reload unavailable", zap.Error(err))
		return func() {}
	}
	watcher.OnChange(func(cfg *config.Config) {
		logging.Reconfigure(loggingOptions(cfg))
		if err := a.tones.Configure(ctx, cfg.Feedback); err != nil {
			logging.Config("sound reload failed: %v", err)
		}
		for _, hook := range hooks {
			hook(cfg)
		}
	})
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config hot reload unavailable", zap.Error(err))
	}
	return watcher.Stop
}

// Close flushes pending saves and releases everything openApp acquired.
func (a *app) Close() {
	if a.controller != nil {
		a.controller.Close()
	}
	if a.detach != nil {
		a.detach()
	}
	if a.persister != nil {
		a.persister.Close()
	}
	if a.tones != nil {
		a.tones.Close()
	}
	if a.player != nil {
		a.player.Close()
	}
	if a.speaker != nil {
		a.speaker.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close workspace storage: %v\n", err)
		}
	}
	logging.CloseAudit()
	logging.CloseAll()
}
