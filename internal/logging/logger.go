// Package logging provides config-driven categorized file-based logging for earshot.
// Logs are written to .earshot/logs/ with separate files per category.
// Logging is controlled by debug_mode in .earshot/config.yaml - when false, no logs are written.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot        Category = "boot"        // Boot/initialization
	CategoryConfig      Category = "config"      // Config load and hot reload
	CategoryStore       Category = "store"       // Talkpoint store and workspace persistence
	CategoryBreakpoints Category = "breakpoints" // Live breakpoint registry
	CategoryReconcile   Category = "reconcile"   // Identity reconciliation
	CategoryLifecycle   Category = "lifecycle"   // Talkpoint create/toggle/remove
	CategoryCorrelator  Category = "correlator"  // Stopped-event matching and dispatch
	CategoryDAP         Category = "dap"         // Debug adapter wire traffic
	CategoryLSP         Category = "lsp"         // Language server wire traffic
	CategoryFeedback    Category = "feedback"    // Tones, speech, announcements
	CategoryDecoration  Category = "decoration"  // Gutter decoration rendering
	CategoryDiagnostics Category = "diagnostics" // Diagnostic sound feedback
	CategoryNavigation  Category = "navigation"  // Function list / context commands
)

// Options mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type Options struct {
	DebugMode  bool
	Level      string
	JSONFormat bool
	Categories map[string]bool
}

// Logger wraps a zap logger bound to one category file
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	workspace string
	options   Options
	configMu  sync.RWMutex
	level     = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Initialize sets up the logging directory and applies options.
// Should be called once at startup with the workspace path.
func Initialize(ws string, opts Options) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	configMu.Lock()
	workspace = ws
	logsDir = filepath.Join(workspace, ".earshot", "logs")
	options = opts
	level.SetLevel(parseLevel(opts.Level))
	configMu.Unlock()

	// Silent no-op in production mode
	if !opts.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== earshot logging initialized ===")
	boot.Info("Workspace: %s", workspace)
	boot.Info("Log level: %s", level.Level())
	if len(opts.Categories) == 0 {
		boot.Info("All categories enabled (no category filter)")
	} else {
		enabled := 0
		for cat, on := range opts.Categories {
			if on {
				enabled++
			}
			boot.Debug("Category '%s': %v", cat, on)
		}
		boot.Info("Enabled categories: %d/%d", enabled, len(opts.Categories))
	}
	return nil
}

// Reconfigure swaps options at runtime (config hot reload). Open category
// files stay open; the level change applies immediately.
func Reconfigure(opts Options) {
	configMu.Lock()
	options = opts
	level.SetLevel(parseLevel(opts.Level))
	configMu.Unlock()
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return options.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !options.DebugMode {
		return false
	}
	if options.Categories == nil {
		return true
	}
	enabled, exists := options.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	configMu.RLock()
	dir := logsDir
	jsonFormat := options.JSONFormat
	configMu.RUnlock()
	if dir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		sugar:    zap.New(newCore(file, jsonFormat)).Sugar().With("cat", string(category)),
	}
	loggers[category] = l
	return l
}

func newCore(file *os.File, jsonFormat bool) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.MessageKey = "msg"
	encCfg.LevelKey = "lvl"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if jsonFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(enc, zapcore.AddSync(file), level)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// WithContext returns a context logger carrying key-value context
func (l *Logger) WithContext(ctx map[string]interface{}) *ContextLogger {
	if l.sugar == nil {
		return &ContextLogger{}
	}
	kv := make([]interface{}, 0, len(ctx)*2)
	for k, v := range ctx {
		kv = append(kv, k, v)
	}
	return &ContextLogger{sugar: l.sugar.With(kv...)}
}

// ContextLogger provides structured logging with key-value context
type ContextLogger struct {
	sugar *zap.SugaredLogger
}

func (c *ContextLogger) Debug(format string, args ...interface{}) {
	if c.sugar != nil {
		c.sugar.Debugf(format, args...)
	}
}

func (c *ContextLogger) Info(format string, args ...interface{}) {
	if c.sugar != nil {
		c.sugar.Infof(format, args...)
	}
}

func (c *ContextLogger) Warn(format string, args ...interface{}) {
	if c.sugar != nil {
		c.sugar.Warnf(format, args...)
	}
}

func (c *ContextLogger) Error(format string, args ...interface{}) {
	if c.sugar != nil {
		c.sugar.Errorf(format, args...)
	}
}

// CloseAll flushes and closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.sugar != nil {
			_ = l.sugar.Sync()
		}
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// Config logs to the config category
func Config(format string, args ...interface{}) {
	Get(CategoryConfig).Info(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// Breakpoints logs to the breakpoints category
func Breakpoints(format string, args ...interface{}) {
	Get(CategoryBreakpoints).Info(format, args...)
}

// BreakpointsDebug logs debug to the breakpoints category
func BreakpointsDebug(format string, args ...interface{}) {
	Get(CategoryBreakpoints).Debug(format, args...)
}

// Reconcile logs to the reconcile category
func Reconcile(format string, args ...interface{}) {
	Get(CategoryReconcile).Info(format, args...)
}

// ReconcileDebug logs debug to the reconcile category
func ReconcileDebug(format string, args ...interface{}) {
	Get(CategoryReconcile).Debug(format, args...)
}

// Lifecycle logs to the lifecycle category
func Lifecycle(format string, args ...interface{}) {
	Get(CategoryLifecycle).Info(format, args...)
}

// LifecycleDebug logs debug to the lifecycle category
func LifecycleDebug(format string, args ...interface{}) {
	Get(CategoryLifecycle).Debug(format, args...)
}

// Correlator logs to the correlator category
func Correlator(format string, args ...interface{}) {
	Get(CategoryCorrelator).Info(format, args...)
}

// CorrelatorDebug logs debug to the correlator category
func CorrelatorDebug(format string, args ...interface{}) {
	Get(CategoryCorrelator).Debug(format, args...)
}

// CorrelatorWarn logs warning to the correlator category
func CorrelatorWarn(format string, args ...interface{}) {
	Get(CategoryCorrelator).Warn(format, args...)
}

// DAP logs to the dap category
func DAP(format string, args ...interface{}) {
	Get(CategoryDAP).Info(format, args...)
}

// DAPDebug logs debug to the dap category
func DAPDebug(format string, args ...interface{}) {
	Get(CategoryDAP).Debug(format, args...)
}

// LSP logs to the lsp category
func LSP(format string, args ...interface{}) {
	Get(CategoryLSP).Info(format, args...)
}

// LSPDebug logs debug to the lsp category
func LSPDebug(format string, args ...interface{}) {
	Get(CategoryLSP).Debug(format, args...)
}

// Feedback logs to the feedback category
func Feedback(format string, args ...interface{}) {
	Get(CategoryFeedback).Info(format, args...)
}

// FeedbackDebug logs debug to the feedback category
func FeedbackDebug(format string, args ...interface{}) {
	Get(CategoryFeedback).Debug(format, args...)
}

// Decoration logs debug to the decoration category
func Decoration(format string, args ...interface{}) {
	Get(CategoryDecoration).Debug(format, args...)
}

// Diagnostics logs to the diagnostics category
func Diagnostics(format string, args ...interface{}) {
	Get(CategoryDiagnostics).Info(format, args...)
}

// Navigation logs debug to the navigation category
func Navigation(format string, args ...interface{}) {
	Get(CategoryNavigation).Debug(format, args...)
}
