// Package config provides configuration management for the simulator.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"gpwsim/internal/errors"
	"gpwsim/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Data       DataConfig       `mapstructure:"data"`
	Store      StoreConfig      `mapstructure:"store"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Log        LogSettings      `mapstructure:"log"`
	UI         UIConfig         `mapstructure:"ui"`
}

// DataConfig describes where price CSV files live and how they are laid out.
type DataConfig struct {
	Dir        string `mapstructure:"dir"`
	Separator  string `mapstructure:"separator"`
	DateFormat string `mapstructure:"date_format"`
}

// StoreConfig holds the SQLite database location.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// SimulationConfig holds driver settings for automatic stepping.
type SimulationConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	MaxSteps     int           `mapstructure:"max_steps"`
}

// LogSettings holds logging configuration.
type LogSettings struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// UIConfig holds output-related configuration.
type UIConfig struct {
	ColorEnabled bool `mapstructure:"color_enabled"`
	ChartWidth   int  `mapstructure:"chart_width"`
	ChartHeight  int  `mapstructure:"chart_height"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/gpwsim"
	}
	return filepath.Join(home, ".config", "gpwsim")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// A .env in the working directory may carry GPWSIM_* overrides.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.separator", ";")
	v.SetDefault("data.date_format", "2006-01-02")
	v.SetDefault("store.path", filepath.Join(configDir, "gpwsim.db"))
	v.SetDefault("simulation.tick_interval", "1s")
	v.SetDefault("simulation.max_steps", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", false)
	v.SetDefault("log.file_path", filepath.Join(configDir, "logs", "gpwsim.log"))
	v.SetDefault("log.max_size", 20)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.chart_width", 60)
	v.SetDefault("ui.chart_height", 12)
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Config file not found: write a template and run on defaults.
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GPWSIM_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("GPWSIM_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("GPWSIM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("GPWSIM_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Simulation.TickInterval = d
		}
	}
	if v := os.Getenv("GPWSIM_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.MaxSteps = n
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len([]rune(c.Data.Separator)) != 1 {
		return errors.NewValidationError("data.separator", c.Data.Separator, "must be a single character", errors.ErrConfigInvalid)
	}
	if c.Data.DateFormat == "" {
		return errors.NewValidationError("data.date_format", c.Data.DateFormat, "is required", errors.ErrConfigInvalid)
	}
	if c.Simulation.TickInterval < 0 {
		return errors.NewValidationError("simulation.tick_interval", c.Simulation.TickInterval, "must be non-negative", errors.ErrConfigInvalid)
	}
	if c.Simulation.MaxSteps < 0 {
		return errors.NewValidationError("simulation.max_steps", c.Simulation.MaxSteps, "must be non-negative", errors.ErrConfigInvalid)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.NewValidationError("log.level", c.Log.Level, "must be debug, info, warn or error", errors.ErrConfigInvalid)
	}
	if c.UI.ChartWidth < 10 || c.UI.ChartHeight < 3 {
		return errors.NewValidationError("ui.chart_width", c.UI.ChartWidth, "chart must be at least 10x3", errors.ErrConfigInvalid)
	}
	return nil
}

// Separator returns the CSV field separator as a rune.
func (c *Config) Separator() rune {
	return []rune(c.Data.Separator)[0]
}

// LogConfig converts the log settings for the logging package.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Log.Level,
		Console:    c.Log.Console,
		File:       c.Log.File,
		FilePath:   c.Log.FilePath,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
	}
}
