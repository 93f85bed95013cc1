// Package config loads and watches the engine configuration file.
//
// Top-level sections:
//   - engine: thresholds, periods, roles, recompute interval
//   - inputs: snapshot and history file paths, file watching
//   - server: HTTP port and API key auth
//   - redis: optional run summary publication
//   - export: Prometheus textfile path
//   - alerts: rules over network statistics and webhook targets
//   - log: log level
//
// Secrets are never stored in the file: fields ending in _env name an
// environment variable. LoadDotEnv reads a .env file into the environment
// before the config is resolved.
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) reloads the file on change via fsnotify.
package config
