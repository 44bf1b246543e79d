package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all earshot configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Logging        LoggingConfig        `yaml:"logging"`
	Storage        StorageConfig        `yaml:"storage"`
	Debugger       DebuggerConfig       `yaml:"debugger"`
	LanguageServer LanguageServerConfig `yaml:"language_server"`
	Feedback       FeedbackConfig       `yaml:"feedback"`
	Decorations    DecorationsConfig    `yaml:"decorations"`
}

// StorageConfig configures workspace-scoped durable storage.
type StorageConfig struct {
	// Driver selects the database/sql driver: "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `yaml:"driver"`
	// Path is relative to the workspace unless absolute.
	Path string `yaml:"path"`
}

// DebuggerConfig configures the debug adapter connection.
type DebuggerConfig struct {
	// Adapter is the command line that starts a stdio debug adapter,
	// e.g. "python -m debugpy.adapter" or "dlv dap".
	Adapter string `yaml:"adapter"`
	// Address dials a TCP debug adapter instead of spawning one.
	Address        string `yaml:"address"`
	AdapterID      string `yaml:"adapter_id"`
	RequestTimeout string `yaml:"request_timeout"`
	// ResolveConcurrency bounds concurrent breakpoint line resolutions per stop.
	ResolveConcurrency int `yaml:"resolve_concurrency"`
}

// LanguageServerConfig configures the out-of-process language service.
type LanguageServerConfig struct {
	Command        string `yaml:"command"`
	LanguageID     string `yaml:"language_id"`
	RequestTimeout string `yaml:"request_timeout"`
}

// FeedbackConfig configures tones and speech.
type FeedbackConfig struct {
	// Custom sound files; empty means the built-in tone for that category.
	TalkpointSound string `yaml:"talkpoint_sound"`
	ErrorSound     string `yaml:"error_sound"`
	WarningSound   string `yaml:"warning_sound"`

	// PlayerCommand receives WAV data on stdin.
	PlayerCommand string `yaml:"player_command"`
	// SpeechCommand receives the announced text as its final argument.
	SpeechCommand string `yaml:"speech_command"`
	Speak         bool   `yaml:"speak"`

	DiagnosticSounds   bool   `yaml:"diagnostic_sounds"`
	DiagnosticInterval string `yaml:"diagnostic_interval"`
}

// DecorationsConfig configures gutter annotation rendering.
type DecorationsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "earshot",
		Version: "0.4.0",

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},

		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   ".earshot/workspace.db",
		},

		Debugger: DebuggerConfig{
			AdapterID:          "earshot",
			RequestTimeout:     "10s",
			ResolveConcurrency: 8,
		},

		LanguageServer: LanguageServerConfig{
			RequestTimeout: "10s",
		},

		Feedback: FeedbackConfig{
			PlayerCommand:      "aplay -q -",
			SpeechCommand:      "espeak",
			Speak:              false,
			DiagnosticSounds:   true,
			DiagnosticInterval: "2s",
		},

		Decorations: DecorationsConfig{
			Enabled:  true,
			Interval: "1s",
		},
	}
}

// Path returns the config file location for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, ".earshot", "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EARSHOT_DEBUG_ADAPTER"); v != "" {
		c.Debugger.Adapter = v
	}
	if v := os.Getenv("EARSHOT_DEBUG_ADDRESS"); v != "" {
		c.Debugger.Address = v
	}
	if v := os.Getenv("EARSHOT_LANGUAGE_SERVER"); v != "" {
		c.LanguageServer.Command = v
	}
	if v := os.Getenv("EARSHOT_DB"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("EARSHOT_SPEAK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Feedback.Speak = b
		}
	}
	if v := os.Getenv("EARSHOT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// DatabasePath resolves the storage path against the workspace.
func (c *Config) DatabasePath(workspace string) string {
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(workspace, c.Storage.Path)
}

// GetRequestTimeout returns the debug adapter request timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Debugger.RequestTimeout, 10*time.Second)
}

// GetLanguageServerTimeout returns the language server request timeout.
func (c *Config) GetLanguageServerTimeout() time.Duration {
	return parseDuration(c.LanguageServer.RequestTimeout, 10*time.Second)
}

// GetDiagnosticInterval returns the minimum spacing between diagnostic sounds.
func (c *Config) GetDiagnosticInterval() time.Duration {
	return parseDuration(c.Feedback.DiagnosticInterval, 2*time.Second)
}

// GetDecorationInterval returns the minimum spacing between decoration redraws.
func (c *Config) GetDecorationInterval() time.Duration {
	return parseDuration(c.Decorations.Interval, time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
