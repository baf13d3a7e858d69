// Package config loads pitchwatch's config.yaml.
//
// Top-level sections:
//   - upstream: provider base URL, API key env var and header, request
//     timeout, 429 cooldown, request pacing
//   - scan: interval, explicit fixture ids or live discovery, concurrency,
//     alerting minute window, grace period for finished fixtures
//   - signals: pressure index weights
//   - alerts: ring size, threshold rules, webhook / telegram / redis sinks
//   - http, stream, log
//
// Load(path) applies defaults (12s interval, 15s timeout, 60s cooldown,
// 200 alert history), unmarshals, then validates. Secrets are never stored
// in the file; fields ending in _env name the environment variable to read.
//
// Watch(ctx, path, onChange) reloads the file on change via fsnotify. The
// server uses it to swap alert rules without a restart.
package config
