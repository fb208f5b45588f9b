// Package config loads dirsync runtime configuration with viper.
//
// Lookup order for the config file: an explicit path, ./dirsync.yaml, then
// ~/.config/dirsync/dirsync.yaml. Every key can be overridden through the
// environment with the DIRSYNC_ prefix (tracing.enabled -> DIRSYNC_TRACING_ENABLED).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/dirsync/internal/engine"
	"github.com/roach88/dirsync/internal/tracing"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DIRSYNC"

// Config holds all runtime options.
type Config struct {
	// Database is the SQLite file path.
	Database string `mapstructure:"database"`

	// Profile is a CUE profile path. Empty selects the embedded default.
	Profile string `mapstructure:"profile"`

	// Addr is the HTTP listen address for serve.
	Addr string `mapstructure:"addr"`

	Log     LogConfig      `mapstructure:"log"`
	Engine  EngineConfig   `mapstructure:"engine"`
	Tracing tracing.Config `mapstructure:"tracing"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

// EngineConfig tunes the event engine.
type EngineConfig struct {
	MaxSteps int `mapstructure:"max_steps"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Database: "dirsync.db",
		Addr:     ":8080",
		Log:      LogConfig{Level: "info", Format: "text"},
		Engine:   EngineConfig{MaxSteps: engine.DefaultMaxSteps},
		Tracing:  tracing.DefaultConfig(),
	}
}

// New returns a viper instance with defaults, env binding and the config
// file search path applied. The file is not read yet.
func New(path string) *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("database", d.Database)
	v.SetDefault("profile", d.Profile)
	v.SetDefault("addr", d.Addr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("engine.max_steps", d.Engine.MaxSteps)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		return v
	}
	v.SetConfigName("dirsync")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "dirsync"))
	}
	return v
}

// Read reads the config file, if any, and decodes the result. A missing
// file in the search path is not an error; a missing explicit file is.
func Read(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load is New followed by Read.
func Load(path string) (Config, error) {
	return Read(New(path))
}

// Validate checks option values that viper cannot type-check.
func (c Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database: must not be empty")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unsupported value %q (want text or json)", c.Log.Format)
	}
	if c.Engine.MaxSteps <= 0 {
		return fmt.Errorf("engine.max_steps: must be positive, got %d", c.Engine.MaxSteps)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate: must be within [0, 1], got %v", c.Tracing.SampleRate)
	}
	return nil
}

// ParseLevel maps a level name onto slog.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: unsupported value %q", s)
	}
	return l, nil
}
