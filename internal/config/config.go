// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the process's boot-time configuration: the HTTP
// server bind address, the embedded library database path, the rate-limit
// artifact directory, and logging. It is immutable once loaded — anything
// that needs to change at runtime without a restart belongs in
// internal/configstore instead.
package config

import "time"

// Config holds all boot-time settings loaded from defaults, an optional
// YAML file, and environment variables, in that order of precedence.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Library LibraryConfig `koanf:"library"`
	Limiter LimiterConfig `koanf:"limiter"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	// Environment gates non-production conveniences (verbose error bodies,
	// relaxed CORS); set to "production" to disable them.
	Environment string `koanf:"environment"`
}

// LibraryConfig points at the embedded DuckDB file backing internal/library.
type LibraryConfig struct {
	// Path is the DuckDB database file. ":memory:" is valid for tests.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads is the DuckDB thread pool size; 0 lets DuckDB pick
	// runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// LimiterConfig points internal/ratelimit at the signed artifact pair it
// watches for hot reload.
type LimiterConfig struct {
	ArtifactPath      string `koanf:"artifact_path"`
	SignaturePath     string `koanf:"signature_path"`
	PublicKeyPath     string `koanf:"public_key_path"`
	WatchDebounceSecs int    `koanf:"watch_debounce_seconds"`
}

// LoggingConfig controls internal/logging's global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
	Caller bool   `koanf:"caller"`
}

// Validate rejects a Config with malformed or contradictory settings.
// Called by Load after env/file overrides are applied, before the caller
// ever sees the result.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"}
	}
	if c.Server.Environment != "development" && c.Server.Environment != "production" {
		return &ValidationError{Field: "server.environment", Message: "must be \"development\" or \"production\""}
	}
	if c.Library.Path == "" {
		return &ValidationError{Field: "library.path", Message: "must not be empty"}
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return &ValidationError{Field: "logging.format", Message: "must be \"json\" or \"console\""}
	}
	return nil
}

// ValidationError reports a single invalid Config field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
