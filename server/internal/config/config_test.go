package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// A file without a server section still yields a usable config.
	p := writeConfig(t, `watcher:
  room: "sql-room"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Server.Prefix != DefaultPrefix {
		t.Errorf("prefix: got %q, want %q", cfg.Server.Prefix, DefaultPrefix)
	}
	if cfg.Server.Retention != DefaultRetention {
		t.Errorf("retention: got %v, want %v", cfg.Server.Retention, DefaultRetention)
	}
	if cfg.Server.Rooms.SendBuffer != DefaultSendBuffer {
		t.Errorf("rooms.send_buffer: got %d, want %d", cfg.Server.Rooms.SendBuffer, DefaultSendBuffer)
	}
	if cfg.Server.Storage.Backend != "memory" {
		t.Errorf("storage.backend: got %q, want memory", cfg.Server.Storage.Backend)
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9091
  prefix: rooms
  retention: 90m
  log_level: debug
  rooms:
    idle_timeout: 1m
    send_buffer: 4
  storage:
    backend: sqlite
    path: /var/lib/relay/relay.db
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9091 {
		t.Errorf("http_port: got %d, want 9091", cfg.Server.HTTPPort)
	}
	if cfg.Server.Prefix != "rooms" {
		t.Errorf("prefix: got %q, want rooms", cfg.Server.Prefix)
	}
	if cfg.Server.Retention != 90*time.Minute {
		t.Errorf("retention: got %v, want 90m", cfg.Server.Retention)
	}
	if cfg.Server.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel: got %v, want debug", cfg.Server.SlogLevel())
	}
	if cfg.Server.Rooms.IdleTimeout != time.Minute {
		t.Errorf("rooms.idle_timeout: got %v, want 1m", cfg.Server.Rooms.IdleTimeout)
	}
	if cfg.Server.Storage.Path != "/var/lib/relay/relay.db" {
		t.Errorf("storage.path: got %q", cfg.Server.Storage.Path)
	}
}

func TestLoad_SecretsFromEnv(t *testing.T) {
	t.Setenv("TEST_REDIS_PASSWORD", "hunter2")
	t.Setenv("TEST_S3_ACCESS", "AKIA")
	t.Setenv("TEST_S3_SECRET", "shh")
	p := writeConfig(t, `server:
  storage:
    backend: redis
    redis:
      addr: "redis:6379"
      password_env: TEST_REDIS_PASSWORD
    s3:
      access_key_env: TEST_S3_ACCESS
      secret_key_env: TEST_S3_SECRET
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Server.Storage.Redis.Password(); got != "hunter2" {
		t.Errorf("Password(): got %q, want hunter2", got)
	}
	if got := cfg.Server.Storage.S3.AccessKey(); got != "AKIA" {
		t.Errorf("AccessKey(): got %q, want AKIA", got)
	}
	if got := cfg.Server.Storage.S3.SecretKey(); got != "shh" {
		t.Errorf("SecretKey(): got %q, want shh", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"port out of range", "server:\n  http_port: 70000\n"},
		{"prefix with slash", "server:\n  prefix: a/b\n"},
		{"negative retention", "server:\n  retention: -1h\n"},
		{"unknown log level", "server:\n  log_level: loud\n"},
		{"zero send buffer", "server:\n  rooms:\n    send_buffer: 0\n"},
		{"unknown backend", "server:\n  storage:\n    backend: tape\n"},
		{"s3 without bucket", "server:\n  storage:\n    backend: s3\n    s3:\n      endpoint: minio:9000\n"},
		{"sqlite without path", "server:\n  storage:\n    backend: sqlite\n    path: \"\"\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
}

func TestLoadOrDefault_InvalidFileStillFails(t *testing.T) {
	if _, err := LoadOrDefault(writeConfig(t, "server: [")); err == nil {
		t.Fatal("expected parse error, got nil")
	}
}
