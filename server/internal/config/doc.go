// Package config loads the relay configuration from the `server:` section of
// config.yaml.
//
// Config fields:
//   - HTTPPort: port for room endpoints, WebSocket sessions, /metrics (default 1999)
//   - Prefix: first path segment of room routes (default "parties")
//   - Retention: how long a file survives without updates (default 3h)
//   - LogLevel: debug | info | warn | error (default info)
//   - Rooms.IdleTimeout: how long an unused room stays loaded (default 10m)
//   - Rooms.SendBuffer: per-session outgoing queue depth (default 16)
//   - Storage.Backend: memory | file | sqlite | redis | s3 (default memory)
//
// Secrets (redis password, s3 credentials) are never stored in the file; the
// config names the environment variables that hold them.
//
// Load(path) applies defaults before unmarshalling, then validates.
// LoadOrDefault(path) falls back to the defaults when the file is absent.
package config
