package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file,
// the environment and the command line.
const (
	DefaultHost         = "localhost:1999"
	DefaultParty        = "main"
	DefaultPrefix       = "parties"
	DefaultRoom         = "sql-room"
	DefaultDir          = "."
	DefaultSuffix       = ".sql"
	DefaultIgnorePrefix = "_"
	DefaultDebounce     = 200 * time.Millisecond
	DefaultBufferSize   = 256
	DefaultLogLevel     = "info"
)

// Environment variables read by ApplyEnv.
const (
	EnvHost     = "RELAY_HOST"
	EnvProtocol = "RELAY_PROTOCOL"
	EnvParty    = "RELAY_PARTY"
	EnvPrefix   = "RELAY_PREFIX"
	EnvRoom     = "RELAY_ROOM"
	EnvPrune    = "RELAY_PRUNE"
)

// Config is the watcher configuration parsed from the `watcher:` section of
// the optional config file.
type Config struct {
	Watcher WatcherConfig `yaml:"watcher"`
}

// WatcherConfig holds all watcher settings.
type WatcherConfig struct {
	// Host is the relay's host[:port] (default localhost:1999).
	Host string `yaml:"host"`

	// Protocol is http or https. Empty picks http for localhost and
	// 127.0.0.1, https otherwise.
	Protocol string `yaml:"protocol"`

	// Party, Prefix and Room address the target room as
	// <protocol>://<host>/<prefix>/<party>/<room>.
	Party  string `yaml:"party"`
	Prefix string `yaml:"prefix"`
	Room   string `yaml:"room"`

	// Prune clears the room instead of watching.
	Prune bool `yaml:"prune"`

	// Dir is the directory watched recursively (default ".").
	Dir string `yaml:"dir"`

	// Suffix selects which files are shipped (default ".sql").
	Suffix string `yaml:"suffix"`

	// IgnorePrefix skips files whose base name starts with it (default "_").
	IgnorePrefix string `yaml:"ignore_prefix"`

	// Debounce is the quiet period after the last change to a file before
	// it is shipped (default 200ms).
	Debounce time.Duration `yaml:"debounce"`

	// BufferSize is the maximum number of pending uploads held while the
	// relay is unreachable (default 256).
	BufferSize int `yaml:"buffer_size"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// Scheme returns the configured protocol, or the one implied by Host.
func (w WatcherConfig) Scheme() string {
	if w.Protocol != "" {
		return w.Protocol
	}
	if strings.Contains(w.Host, "localhost") || strings.Contains(w.Host, "127.0.0.1") {
		return "http"
	}
	return "https"
}

// BaseURL returns <protocol>://<host>/<prefix>/<party>/<room>.
func (w WatcherConfig) BaseURL() string {
	return fmt.Sprintf("%s://%s/%s/%s/%s", w.Scheme(), w.Host,
		url.PathEscape(w.Prefix), url.PathEscape(w.Party), url.PathEscape(w.Room))
}

// IngestURL returns the room's ingest endpoint.
func (w WatcherConfig) IngestURL() string { return w.BaseURL() + "/ingest" }

// PruneURL returns the room's prune endpoint.
func (w WatcherConfig) PruneURL() string { return w.BaseURL() + "/prune" }

// StreamURL returns the room's WebSocket endpoint (ws or wss).
func (w WatcherConfig) StreamURL() string {
	base := w.BaseURL()
	if strings.HasPrefix(base, "https://") {
		return "wss://" + strings.TrimPrefix(base, "https://")
	}
	return "ws://" + strings.TrimPrefix(base, "http://")
}

// SlogLevel maps LogLevel to a slog.Level.
func (w WatcherConfig) SlogLevel() slog.Level {
	switch strings.ToLower(w.LogLevel) {
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

// Load reads the config file at path. An empty path yields the defaults.
// The result is not validated; call Validate after applying overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("watcher config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("watcher config: parse yaml: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Watcher: WatcherConfig{
			Host:         DefaultHost,
			Party:        DefaultParty,
			Prefix:       DefaultPrefix,
			Room:         DefaultRoom,
			Dir:          DefaultDir,
			Suffix:       DefaultSuffix,
			IgnorePrefix: DefaultIgnorePrefix,
			Debounce:     DefaultDebounce,
			BufferSize:   DefaultBufferSize,
			LogLevel:     DefaultLogLevel,
		},
	}
}

// ApplyEnv overrides fields from RELAY_* environment variables read through
// getenv. Unset or empty variables leave the field alone.
func (c *Config) ApplyEnv(getenv func(string) string) {
	w := &c.Watcher
	for env, field := range map[string]*string{
		EnvHost:     &w.Host,
		EnvProtocol: &w.Protocol,
		EnvParty:    &w.Party,
		EnvPrefix:   &w.Prefix,
		EnvRoom:     &w.Room,
	} {
		if v := getenv(env); v != "" {
			*field = v
		}
	}
	if v := getenv(EnvPrune); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			w.Prune = b
		}
	}
}

// Validate checks structural constraints on the merged configuration.
func (c *Config) Validate() error {
	w := c.Watcher
	if w.Host == "" {
		return fmt.Errorf("watcher.host is required")
	}
	switch w.Protocol {
	case "", "http", "https":
	default:
		return fmt.Errorf("watcher.protocol %q unknown: want http|https", w.Protocol)
	}
	if w.Party == "" || w.Prefix == "" || w.Room == "" {
		return fmt.Errorf("watcher.party, watcher.prefix and watcher.room must be non-empty")
	}
	if w.Suffix == "" {
		return fmt.Errorf("watcher.suffix is required")
	}
	if w.Debounce < 0 {
		return fmt.Errorf("watcher.debounce must not be negative")
	}
	if w.BufferSize <= 0 {
		return fmt.Errorf("watcher.buffer_size must be positive")
	}
	switch strings.ToLower(w.LogLevel) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("watcher.log_level %q unknown: want debug|info|warn|error", w.LogLevel)
	}
	return nil
}
