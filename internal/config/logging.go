package config

import "kanoinit/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`      // debug, info, warn, error
	Format     string          `yaml:"format"`     // json, text
	DebugMode  bool            `yaml:"debug_mode"` // Forces debug level
	Categories map[string]bool `yaml:"categories"` // Per-category toggles
}

// ToLogging converts the section into the logging package's settings.
func (c *Config) ToLogging() logging.Config {
	return logging.Config{
		Dir:        c.Paths.LogDir,
		Level:      c.Logging.Level,
		DebugMode:  c.Logging.DebugMode,
		JSONFormat: c.Logging.Format == "json",
		Categories: c.Logging.Categories,
	}
}
