// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 3857 {
		t.Errorf("Server.Port = %d, want 3857", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Environment != "development" {
		t.Errorf("Server.Environment = %q, want development", cfg.Server.Environment)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 30s", cfg.Server.ReadTimeout)
	}

	if cfg.Library.Path != "/data/danmu.duckdb" {
		t.Errorf("Library.Path = %q, want /data/danmu.duckdb", cfg.Library.Path)
	}
	if cfg.Library.MaxMemory != "2GB" {
		t.Errorf("Library.MaxMemory = %q, want 2GB", cfg.Library.MaxMemory)
	}

	if cfg.Limiter.ArtifactPath != "/data/rate_limit.bin" {
		t.Errorf("Limiter.ArtifactPath = %q, want /data/rate_limit.bin", cfg.Limiter.ArtifactPath)
	}
	if cfg.Limiter.WatchDebounceSecs != 2 {
		t.Errorf("Limiter.WatchDebounceSecs = %d, want 2", cfg.Limiter.WatchDebounceSecs)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
server:
  host: "127.0.0.1"
  port: 9000
library:
  path: "/tmp/test.duckdb"
logging:
  level: "debug"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Library.Path != "/tmp/test.duckdb" {
		t.Errorf("Library.Path = %q, want /tmp/test.duckdb", cfg.Library.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	// Unset fields still fall back to defaults.
	if cfg.Limiter.ArtifactPath != "/data/rate_limit.bin" {
		t.Errorf("Limiter.ArtifactPath = %q, want default", cfg.Limiter.ArtifactPath)
	}
}

func TestLoadFromEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  port: 8080\n"), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999 (env should win over file)", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestEnvTransformFuncIgnoresUnmappedKeys(t *testing.T) {
	if got := envTransformFunc("SOME_RANDOM_VAR"); got != "" {
		t.Errorf("envTransformFunc(SOME_RANDOM_VAR) = %q, want empty", got)
	}
	if got := envTransformFunc("HTTP_PORT"); got != "server.port" {
		t.Errorf("envTransformFunc(HTTP_PORT) = %q, want server.port", got)
	}
}

func TestFindConfigFileReturnsEmptyWhenNoneExist(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	defer os.Chdir(cwd)

	if path := findConfigFile(); path != "" {
		t.Errorf("findConfigFile() = %q, want empty in a directory with no config file", path)
	}
}
