package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "earshot" {
		t.Errorf("expected Name=earshot, got %s", cfg.Name)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("expected Driver=sqlite, got %s", cfg.Storage.Driver)
	}
	if cfg.GetDiagnosticInterval() != 2*time.Second {
		t.Errorf("expected 2s diagnostic interval, got %v", cfg.GetDiagnosticInterval())
	}
	if cfg.GetDecorationInterval() != time.Second {
		t.Errorf("expected 1s decoration interval, got %v", cfg.GetDecorationInterval())
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("EARSHOT_DEBUG_ADAPTER", "")
	path := filepath.Join(t.TempDir(), ".earshot", "config.yaml")

	cfg := DefaultConfig()
	cfg.Debugger.Adapter = "dlv dap"
	cfg.Feedback.TalkpointSound = "/sounds/ding.wav"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Debugger.Adapter != "dlv dap" {
		t.Errorf("expected Adapter=dlv dap, got %s", loaded.Debugger.Adapter)
	}
	if loaded.Feedback.TalkpointSound != "/sounds/ding.wav" {
		t.Errorf("expected TalkpointSound to round-trip, got %s", loaded.Feedback.TalkpointSound)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "earshot", cfg.Name)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("debugger: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EARSHOT_DEBUG_ADAPTER", "python -m debugpy.adapter")
	t.Setenv("EARSHOT_SPEAK", "true")
	t.Setenv("EARSHOT_DB", "/tmp/ws.db")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "python -m debugpy.adapter", cfg.Debugger.Adapter)
	assert.True(t, cfg.Feedback.Speak)
	assert.Equal(t, "/tmp/ws.db", cfg.DatabasePath("/ws"))
}

func TestDatabasePath_Relative(t *testing.T) {
	t.Setenv("EARSHOT_DB", "")
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("/ws", ".earshot", "workspace.db"), cfg.DatabasePath("/ws"))
}

func TestParseDuration_Fallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Debugger.RequestTimeout = "soon"
	assert.Equal(t, 10*time.Second, cfg.GetRequestTimeout())
	cfg.Debugger.RequestTimeout = "-1s"
	assert.Equal(t, 10*time.Second, cfg.GetRequestTimeout())
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	ws := t.TempDir()
	path := Path(ws)
	require.NoError(t, DefaultConfig().Save(path))

	w, err := NewWatcher(path)
	require.NoError(t, err)

	got := make(chan *Config, 4)
	w.OnChange(func(c *Config) { got <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	cfg := DefaultConfig()
	cfg.Feedback.ErrorSound = "/sounds/buzz.wav"
	require.NoError(t, cfg.Save(path))

	select {
	case c := <-got:
		assert.Equal(t, "/sounds/buzz.wav", c.Feedback.ErrorSound)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
