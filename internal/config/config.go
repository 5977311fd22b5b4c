package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the daemon settings. Values come from Default(), then an
// optional sage.yaml, then SAGE_* environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Engine    EngineConfig    `yaml:"engine"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // empty: resolved via store.DefaultDBPath()
}

type EngineConfig struct {
	WindowSeconds   int  `yaml:"window_seconds"`
	TopN            int  `yaml:"top_n"`
	Personalization bool `yaml:"personalization"`
}

// Window returns the buffer span as a duration.
func (e EngineConfig) Window() time.Duration {
	return time.Duration(e.WindowSeconds) * time.Second
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

type TelemetryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Engine: EngineConfig{
			WindowSeconds:   3,
			TopN:            3,
			Personalization: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			BatchSize:     32,
			FlushInterval: 2 * time.Second,
		},
	}
}

// Load reads settings from path on top of the defaults and applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read settings: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, &Error{File: filepath.Base(path), Err: err}
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Bind = getenv("SAGE_BIND", c.Server.Bind)
	c.Server.Port = getenvInt("SAGE_PORT", c.Server.Port)
	c.Database.Path = getenv("SAGE_DB", c.Database.Path)
	c.Log.Level = getenv("SAGE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenv("SAGE_LOG_FORMAT", c.Log.Format)
	c.Engine.WindowSeconds = getenvInt("SAGE_WINDOW_SECONDS", c.Engine.WindowSeconds)
	c.Engine.TopN = getenvInt("SAGE_TOP_N", c.Engine.TopN)
	c.Engine.Personalization = getenvBool("SAGE_PERSONALIZATION", c.Engine.Personalization)
	c.Telemetry.Enabled = getenvBool("SAGE_TELEMETRY", c.Telemetry.Enabled)
}

// Validate checks settings that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Engine.WindowSeconds < 1 {
		errs = append(errs, fmt.Errorf("engine.window_seconds must be positive, got %d", c.Engine.WindowSeconds))
	}
	if c.Engine.TopN < 1 {
		errs = append(errs, fmt.Errorf("engine.top_n must be positive, got %d", c.Engine.TopN))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	if c.Telemetry.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("telemetry.batch_size must be positive, got %d", c.Telemetry.BatchSize))
	}
	if c.Telemetry.FlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.flush_interval must be positive, got %s", c.Telemetry.FlushInterval))
	}
	if len(errs) > 0 {
		return &Error{File: SettingsFile, Err: errors.Join(errs...)}
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// DefaultDir returns the configuration directory: $SAGE_CONFIG_DIR or
// ~/.config/shortcut-sage.
func DefaultDir() string {
	if dir := os.Getenv("SAGE_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "shortcut-sage")
	}
	return filepath.Join(home, ".config", "shortcut-sage")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
