// Package logging provides config-driven categorized file logging for kano-init.
// Logs are written to a single file (default /var/log/kano-init/kano-init.log)
// through zap, one named logger per category. Nothing is ever written to the
// terminal: while the onboarding owns the screen, stray output would corrupt it.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Process start, configuration
	CategoryFlow      Category = "flow"      // Stage sequencing and handlers
	CategoryStatus    Category = "status"    // Persisted status file
	CategoryRender    Category = "render"    // Canvas and terminal mode
	CategoryInput     Category = "input"     // Keystroke capture
	CategoryChallenge Category = "challenge" // Mini-game state machines
	CategorySystem    Category = "system"    // Provisioning collaborators
	CategoryJournal   Category = "journal"   // Transition journal
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Dir        string
	Level      string
	DebugMode  bool
	JSONFormat bool
	Categories map[string]bool
}

// FileName is the name of the log file inside Config.Dir.
const FileName = "kano-init.log"

// Logger wraps a named zap logger with printf-style helpers.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    *zap.Logger
	file    *os.File
	config  Config
	loggers = make(map[Category]*Logger)
)

// Initialize opens the log file and builds the zap core.
// Should be called once at startup. An empty Dir leaves logging disabled.
func Initialize(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	config = cfg
	if cfg.Dir == "" {
		return nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.Dir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.JSONFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	level := parseLevel(cfg.Level)
	if cfg.DebugMode {
		level = zapcore.DebugLevel
	}

	file = f
	base = zap.New(zapcore.NewCore(enc, zapcore.AddSync(f), level))
	base.Named(string(CategoryBoot)).Sugar().Infow("logging initialized",
		"dir", cfg.Dir, "level", level.String(), "json", cfg.JSONFormat)
	return nil
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

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if base == nil {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if logging is not initialized or the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}
	if !categoryEnabledLocked(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	l := &Logger{category: category, sugar: base.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Zap exposes the underlying zap logger for callers that want typed fields.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// CloseAll flushes and closes the log file (call at shutdown)
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if base != nil {
		_ = base.Sync()
	}
	if file != nil {
		file.Close()
	}
	base = nil
	file = nil
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

// Flow logs to the flow category
func Flow(format string, args ...interface{}) {
	Get(CategoryFlow).Info(format, args...)
}

// FlowDebug logs debug to the flow category
func FlowDebug(format string, args ...interface{}) {
	Get(CategoryFlow).Debug(format, args...)
}

// Status logs to the status category
func Status(format string, args ...interface{}) {
	Get(CategoryStatus).Info(format, args...)
}

// Render logs to the render category
func Render(format string, args ...interface{}) {
	Get(CategoryRender).Info(format, args...)
}

// InputDebug logs debug to the input category
func InputDebug(format string, args ...interface{}) {
	Get(CategoryInput).Debug(format, args...)
}

// Challenge logs to the challenge category
func Challenge(format string, args ...interface{}) {
	Get(CategoryChallenge).Info(format, args...)
}

// ChallengeDebug logs debug to the challenge category
func ChallengeDebug(format string, args ...interface{}) {
	Get(CategoryChallenge).Debug(format, args...)
}

// System logs to the system category
func System(format string, args ...interface{}) {
	Get(CategorySystem).Info(format, args...)
}

// Journal logs to the journal category
func Journal(format string, args ...interface{}) {
	Get(CategoryJournal).Info(format, args...)
}
