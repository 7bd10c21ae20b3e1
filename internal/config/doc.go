// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package config loads the process's boot-time configuration.

Layering, lowest to highest precedence:

  1. Built-in defaults (defaultConfig in koanf.go)
  2. An optional YAML file, found via CONFIG_PATH or DefaultConfigPaths
  3. Environment variables, mapped through envMappings

This covers the server bind address, the embedded library database path,
the rate-limit artifact locations, and logging — everything the process
needs before it can start. Anything that operators tune without a restart
(provider cookies, TTLs, blacklist patterns, rate-limit caps) lives in
internal/configstore instead, which is a runtime key/value service backed
by the library database rather than a boot-time struct.

# Usage

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

# See Also

  - internal/configstore: the persistent, mutable config service
  - internal/logging: consumes LoggingConfig
*/
package config
