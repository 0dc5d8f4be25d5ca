package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvConfigPath, EnvBackendURL, EnvChooserURL, EnvAddr, EnvLogLevel, EnvMaxConnectAttempts} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Debounce() != 800*time.Millisecond {
		t.Errorf("Debounce() = %v, expected 800ms", cfg.Debounce())
	}
	if cfg.ScanRetry() != 500*time.Millisecond {
		t.Errorf("ScanRetry() = %v, expected 500ms", cfg.ScanRetry())
	}
	if cfg.ReconnectDelay() != time.Second {
		t.Errorf("ReconnectDelay() = %v, expected 1s", cfg.ReconnectDelay())
	}
	if cfg.CompletionDwell() != 4*time.Second {
		t.Errorf("CompletionDwell() = %v, expected 4s", cfg.CompletionDwell())
	}
	if cfg.MaxConnectAttempts != 0 {
		t.Errorf("MaxConnectAttempts = %d, expected 0", cfg.MaxConnectAttempts)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "mediagrab.toml")
	content := `
backend_url = "wss://media.example.com/ws"
debounce_ms = 300
log_level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvAddr, ":9090")
	t.Setenv(EnvMaxConnectAttempts, "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BackendURL != "wss://media.example.com/ws" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.Debounce() != 300*time.Millisecond {
		t.Errorf("Debounce() = %v, expected 300ms", cfg.Debounce())
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, expected debug", cfg.LogLevel)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q, expected :9090", cfg.Addr)
	}
	if cfg.MaxConnectAttempts != 5 {
		t.Errorf("MaxConnectAttempts = %d, expected 5", cfg.MaxConnectAttempts)
	}
	if cfg.ScanRetryMS != 500 {
		t.Errorf("ScanRetryMS = %d, expected default 500", cfg.ScanRetryMS)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"http backend", func(c *Config) { c.BackendURL = "http://x/ws" }, "backend_url"},
		{"ftp chooser", func(c *Config) { c.ChooserURL = "ftp://x" }, "chooser_url"},
		{"zero debounce", func(c *Config) { c.DebounceMS = 0 }, "debounce_ms"},
		{"negative attempts", func(c *Config) { c.MaxConnectAttempts = -1 }, "max_connect_attempts"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}
	for _, test := range tests {
		cfg := Default()
		test.mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), test.errSub) {
			t.Errorf("%s: Validate() = %v, expected error mentioning %s", test.name, err, test.errSub)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, expected := range tests {
		cfg := Default()
		cfg.LogLevel = name
		if got := cfg.Level(); got != expected {
			t.Errorf("Level(%q) = %v, expected %v", name, got, expected)
		}
	}
}
