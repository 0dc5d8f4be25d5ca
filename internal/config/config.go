// Package config loads mediagrab settings from an optional TOML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Environment variables that override the file.
const (
	EnvConfigPath = "MEDIAGRAB_CONFIG"
	EnvBackendURL = "MEDIAGRAB_BACKEND_URL"
	EnvChooserURL = "MEDIAGRAB_CHOOSER_URL"
	EnvAddr       = "MEDIAGRAB_ADDR"
	EnvLogLevel   = "MEDIAGRAB_LOG_LEVEL"

	EnvMaxConnectAttempts = "MEDIAGRAB_MAX_CONNECT_ATTEMPTS"
)

// Config holds every tunable of a session and the local bridge.
type Config struct {
	BackendURL string `toml:"backend_url"`
	ChooserURL string `toml:"chooser_url"`
	Addr       string `toml:"addr"`
	LogLevel   string `toml:"log_level"`

	DebounceMS         int `toml:"debounce_ms"`
	ScanRetryMS        int `toml:"scan_retry_ms"`
	ReconnectDelayMS   int `toml:"reconnect_delay_ms"`
	CompletionDwellMS  int `toml:"completion_dwell_ms"`
	MaxConnectAttempts int `toml:"max_connect_attempts"`
}

// Default returns the reference behaviour.
func Default() Config {
	return Config{
		BackendURL:        "ws://127.0.0.1:8000/ws",
		ChooserURL:        "http://127.0.0.1:8000/api/choose-path",
		Addr:              ":8080",
		LogLevel:          "info",
		DebounceMS:        800,
		ScanRetryMS:       500,
		ReconnectDelayMS:  1000,
		CompletionDwellMS: 4000,
	}
}

// Load reads path (when non-empty), applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.BackendURL = envOrDefault(EnvBackendURL, c.BackendURL)
	c.ChooserURL = envOrDefault(EnvChooserURL, c.ChooserURL)
	c.Addr = envOrDefault(EnvAddr, c.Addr)
	c.LogLevel = envOrDefault(EnvLogLevel, c.LogLevel)
	c.MaxConnectAttempts = envIntOrDefault(EnvMaxConnectAttempts, c.MaxConnectAttempts)
}

func (c *Config) normalize() {
	c.BackendURL = strings.TrimSpace(c.BackendURL)
	c.ChooserURL = strings.TrimSpace(c.ChooserURL)
	c.Addr = strings.TrimSpace(c.Addr)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("backend_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("backend_url: scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.ChooserURL != "" {
		cu, err := url.Parse(c.ChooserURL)
		if err != nil {
			return fmt.Errorf("chooser_url: %w", err)
		}
		if cu.Scheme != "http" && cu.Scheme != "https" {
			return fmt.Errorf("chooser_url: scheme must be http or https, got %q", cu.Scheme)
		}
	}
	for name, v := range map[string]int{
		"debounce_ms":         c.DebounceMS,
		"scan_retry_ms":       c.ScanRetryMS,
		"reconnect_delay_ms":  c.ReconnectDelayMS,
		"completion_dwell_ms": c.CompletionDwellMS,
	} {
		if v <= 0 {
			return fmt.Errorf("%s: must be positive, got %d", name, v)
		}
	}
	if c.MaxConnectAttempts < 0 {
		return errors.New("max_connect_attempts: must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unsupported value %q", c.LogLevel)
	}
	return nil
}

func (c Config) Debounce() time.Duration { return ms(c.DebounceMS) }

func (c Config) ScanRetry() time.Duration { return ms(c.ScanRetryMS) }

func (c Config) ReconnectDelay() time.Duration { return ms(c.ReconnectDelayMS) }

func (c Config) CompletionDwell() time.Duration { return ms(c.CompletionDwellMS) }

// Level maps LogLevel onto a slog level.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
