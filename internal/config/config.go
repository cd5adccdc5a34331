package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the packaged configuration lives on the device.
const DefaultPath = "/etc/kano-init/config.yaml"

// Config holds all kano-init configuration.
type Config struct {
	// Filesystem locations
	Paths PathsConfig `yaml:"paths"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Presentation of the onboarding flow
	UX UXConfig `yaml:"ux"`

	// Provisioning collaborators
	System SystemConfig `yaml:"system"`
}

// PathsConfig locates every file kano-init reads or writes.
type PathsConfig struct {
	StatusFile  string `yaml:"status_file"`
	BootConfig  string `yaml:"boot_config"`
	AssetDir    string `yaml:"asset_dir"` // empty = embedded assets
	JournalDB   string `yaml:"journal_db"`
	LogDir      string `yaml:"log_dir"`
	LightDMConf string `yaml:"lightdm_conf"`
}

// UXConfig tunes the animations and language.
type UXConfig struct {
	Language     string  `yaml:"language"`      // BCP 47 tag, empty = $LANG
	SpeedFactor  float64 `yaml:"speed_factor"`  // multiplies every frame interval
	RainDuration string  `yaml:"rain_duration"` // budget for the matrix rain
	BombTarget   string  `yaml:"bomb_target"`   // word typed to defuse the bomb
	RabbitCycles int     `yaml:"rabbit_cycles"`
}

// SystemConfig configures the exec-based collaborators.
type SystemConfig struct {
	CommandTimeout  string   `yaml:"command_timeout"`
	UserGroups      []string `yaml:"user_groups"`
	UsersGroup      string   `yaml:"users_group"`
	DefaultPassword string   `yaml:"default_password"`
	DisplayManager  string   `yaml:"display_manager"`
	DryRun          bool     `yaml:"dry_run"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			StatusFile:  "/var/cache/kano-init/status.json",
			BootConfig:  "/boot/init.conf",
			JournalDB:   "/var/cache/kano-init/journal.db",
			LogDir:      "/var/log/kano-init",
			LightDMConf: "/etc/lightdm/lightdm.conf",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		UX: UXConfig{
			SpeedFactor:  1.0,
			RainDuration: "2s",
			BombTarget:   "startx",
			RabbitCycles: 1,
		},
		System: SystemConfig{
			CommandTimeout: "60s",
			UserGroups: []string{
				"tty", "adm", "dialout", "cdrom", "audio", "users", "sudo",
				"video", "games", "plugdev", "input", "kanousers",
			},
			UsersGroup:      "kanousers",
			DefaultPassword: "kano",
			DisplayManager:  "lightdm",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
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
	if path := os.Getenv("KANO_INIT_STATUS_FILE"); path != "" {
		c.Paths.StatusFile = path
	}
	if path := os.Getenv("KANO_INIT_BOOT_CONFIG"); path != "" {
		c.Paths.BootConfig = path
	}
	if dir := os.Getenv("KANO_INIT_ASSET_DIR"); dir != "" {
		c.Paths.AssetDir = dir
	}
	if dir := os.Getenv("KANO_INIT_LOG_DIR"); dir != "" {
		c.Paths.LogDir = dir
	}
	if level := os.Getenv("KANO_INIT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if lang := os.Getenv("KANO_INIT_LANG"); lang != "" {
		c.UX.Language = lang
	}
	if v := os.Getenv("KANO_INIT_SPEED"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.UX.SpeedFactor = f
		}
	}
	if v := os.Getenv("KANO_INIT_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.System.DryRun = b
		}
	}
}

// GetCommandTimeout returns the collaborator command timeout as a duration.
func (c *Config) GetCommandTimeout() time.Duration {
	d, err := time.ParseDuration(c.System.CommandTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetRainDuration returns the matrix rain budget as a duration.
func (c *Config) GetRainDuration() time.Duration {
	d, err := time.ParseDuration(c.UX.RainDuration)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// GetSpeedFactor returns a usable speed factor.
func (c *Config) GetSpeedFactor() float64 {
	if c.UX.SpeedFactor <= 0 {
		return 1.0
	}
	return c.UX.SpeedFactor
}
