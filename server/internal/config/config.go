package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the relay configuration.
const (
	DefaultHTTPPort       = 1999
	DefaultPrefix         = "parties"
	DefaultRetention      = 3 * time.Hour
	DefaultIdleTimeout    = 10 * time.Minute
	DefaultSendBuffer     = 16
	DefaultStorageBackend = "memory"
	DefaultStoragePath    = "data"
	DefaultRedisAddr      = "localhost:6379"
	DefaultLogLevel       = "info"
)

// Config holds the relay configuration parsed from the `server:` section
// of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all relay settings.
type ServerConfig struct {
	// HTTPPort is the port the room endpoints, WebSocket sessions and
	// metrics listen on (default 1999).
	HTTPPort int `yaml:"http_port"`

	// Prefix is the first URL path segment of every room route,
	// as in /<prefix>/<party>/<room> (default "parties").
	Prefix string `yaml:"prefix"`

	// Retention is how long a file stays in a room after its last update.
	// Default: 3h.
	Retention time.Duration `yaml:"retention"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Rooms controls room lifetimes and session fan-out.
	Rooms RoomsConfig `yaml:"rooms"`

	// Storage selects where room snapshots are persisted.
	Storage StorageConfig `yaml:"storage"`
}

// RoomsConfig controls in-memory room instances.
type RoomsConfig struct {
	// IdleTimeout is how long a room with no connected sessions stays loaded
	// after its last request. An unloaded room reloads from storage on the
	// next request. Default: 10m.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// SendBuffer is the per-session outgoing message queue depth. A session
	// whose queue fills up is disconnected. Default: 16.
	SendBuffer int `yaml:"send_buffer"`
}

// StorageConfig selects and configures the durable snapshot backend.
type StorageConfig struct {
	// Backend is one of: memory | file | sqlite | redis | s3.
	Backend string `yaml:"backend"`

	// Path is the directory for the file backend or the database file for
	// the sqlite backend.
	Path string `yaml:"path"`

	Redis RedisConfig `yaml:"redis"`
	S3    S3Config    `yaml:"s3"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr string `yaml:"addr"`

	// PasswordEnv is the name of the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`

	DB int `yaml:"db"`
}

// Password returns the redis password resolved from the environment.
func (r RedisConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// S3Config configures the s3 backend (any S3-compatible object store).
type S3Config struct {
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`

	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`

	// AccessKeyEnv and SecretKeyEnv name the environment variables holding
	// the credentials.
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`

	UseSSL bool `yaml:"use_ssl"`
}

// AccessKey returns the access key resolved from the environment.
func (s S3Config) AccessKey() string {
	if s.AccessKeyEnv == "" {
		return ""
	}
	return os.Getenv(s.AccessKeyEnv)
}

// SecretKey returns the secret key resolved from the environment.
func (s S3Config) SecretKey() string {
	if s.SecretKeyEnv == "" {
		return ""
	}
	return os.Getenv(s.SecretKeyEnv)
}

// SlogLevel maps LogLevel to a slog.Level.
func (s ServerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
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

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but returns the defaults when path does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = defaults()
		return cfg, validate(cfg)
	}
	return cfg, err
}

// Parse decodes YAML config data, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:  DefaultHTTPPort,
			Prefix:    DefaultPrefix,
			Retention: DefaultRetention,
			LogLevel:  DefaultLogLevel,
			Rooms: RoomsConfig{
				IdleTimeout: DefaultIdleTimeout,
				SendBuffer:  DefaultSendBuffer,
			},
			Storage: StorageConfig{
				Backend: DefaultStorageBackend,
				Path:    DefaultStoragePath,
				Redis:   RedisConfig{Addr: DefaultRedisAddr},
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.Prefix == "" || strings.Contains(s.Prefix, "/") {
		return fmt.Errorf("server.prefix %q must be a single non-empty path segment", s.Prefix)
	}
	if s.Retention <= 0 {
		return fmt.Errorf("server.retention must be positive")
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	if s.Rooms.IdleTimeout <= 0 {
		return fmt.Errorf("server.rooms.idle_timeout must be positive")
	}
	if s.Rooms.SendBuffer <= 0 {
		return fmt.Errorf("server.rooms.send_buffer must be positive")
	}
	switch s.Storage.Backend {
	case "memory":
	case "file", "sqlite":
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for the %s backend", s.Storage.Backend)
		}
	case "redis":
		if s.Storage.Redis.Addr == "" {
			return fmt.Errorf("server.storage.redis.addr is required")
		}
	case "s3":
		if s.Storage.S3.Endpoint == "" || s.Storage.S3.Bucket == "" {
			return fmt.Errorf("server.storage.s3 requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want memory|file|sqlite|redis|s3", s.Storage.Backend)
	}
	return nil
}
