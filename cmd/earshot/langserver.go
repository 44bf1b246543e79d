package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"earshot/internal/config"
	"earshot/internal/logging"
	"earshot/internal/lsp"
	"earshot/internal/source"
	"earshot/internal/wire"
)

var errNoLanguageServer = errors.New("no language server configured (set language_server.command)")

// languageServer is a spawned, initialized language server with one
// document open.
type languageServer struct {
	client *lsp.Client
	uri    string

	// onSave runs after each reload.
	onSave func()
}

// startLanguageServer spawns the configured server, initializes it for ws
// and opens path.
func startLanguageServer(ctx context.Context, ws string, cfg *config.Config, path string) (*languageServer, error) {
	if cfg.LanguageServer.Command == "" {
		return nil, errNoLanguageServer
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	proc, err := wire.Spawn(cfg.LanguageServer.Command, func(line string) {
		logging.LSPDebug("stderr: %s", line)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start language server: %w", err)
	}
	logging.LSP("language server started (pid %d): %s", proc.Pid(), cfg.LanguageServer.Command)

	client := lsp.NewClient(proc, lsp.WithTimeout(cfg.GetLanguageServerTimeout()))
	if err := client.Initialize(ctx, ws); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize language server: %w", err)
	}

	uri := source.FileURI(path)
	if err := client.DidOpen(uri, cfg.LanguageServer.LanguageID, string(text)); err != nil {
		client.Close()
		return nil, err
	}
	return &languageServer{client: client, uri: uri}, nil
}

// reload re-reads path and sends its full text to the server.
func (s *languageServer) reload(path string) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := s.client.DidChange(s.uri, string(text)); err != nil {
		return err
	}
	if s.onSave != nil {
		s.onSave()
	}
	return nil
}

// Close shuts the server down, giving it a few seconds to comply.
func (s *languageServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Shutdown(ctx); err != nil {
		logging.Get(logging.CategoryLSP).Warn("language server shutdown: %v", err)
	}
}
