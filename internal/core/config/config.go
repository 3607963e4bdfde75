package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/retry"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ECOGRID_"

// Feed sources.
const (
	FeedNone  = "none"
	FeedKafka = "kafka"
	FeedMQTT  = "mqtt"
)

// Config represents the top-level gateway configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server" yaml:"server"`
	Log        LogConfig        `koanf:"log" yaml:"log"`
	Upstream   UpstreamConfig   `koanf:"upstream" yaml:"upstream"`
	Auth       AuthConfig       `koanf:"auth" yaml:"auth"`
	Cache      CacheConfig      `koanf:"cache" yaml:"cache"`
	Retry      RetryConfig      `koanf:"retry" yaml:"retry"`
	Stream     StreamConfig     `koanf:"stream" yaml:"stream"`
	DeviceFeed DeviceFeedConfig `koanf:"devicefeed" yaml:"devicefeed"`
	Database   DatabaseConfig   `koanf:"database" yaml:"database"`
	Watchers   WatchersConfig   `koanf:"watchers" yaml:"watchers"`
}

type ServerConfig struct {
	Port int    `koanf:"port" yaml:"port"`
	Host string `koanf:"host" yaml:"host"`
	Mode string `koanf:"mode" yaml:"mode"` // debug | release
}

// Addr is the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level string `koanf:"level" yaml:"level"` // debug | info | warn | error
}

type UpstreamConfig struct {
	BaseURL string        `koanf:"base_url" yaml:"base_url"`
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
}

// AuthConfig holds optional credentials for logging in at startup.
type AuthConfig struct {
	Email    string `koanf:"email" yaml:"email"`
	Password string `koanf:"password" yaml:"password"`
}

type CacheConfig struct {
	DefaultTTL      time.Duration `koanf:"default_ttl" yaml:"default_ttl"`
	JanitorInterval time.Duration `koanf:"janitor_interval" yaml:"janitor_interval"`
}

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay" yaml:"base_delay"`
	Multiplier  float64       `koanf:"multiplier" yaml:"multiplier"`
	MaxDelay    time.Duration `koanf:"max_delay" yaml:"max_delay"`
}

func (c RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		Multiplier:  c.Multiplier,
		MaxDelay:    c.MaxDelay,
	}
}

type StreamConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	URL     string `koanf:"url" yaml:"url"`
	// SiteIDs restricts which sites may be streamed. Empty allows any; the
	// listed ones are connected at startup.
	SiteIDs              []string      `koanf:"site_ids" yaml:"site_ids"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `koanf:"reconnect_base_delay" yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `koanf:"reconnect_max_delay" yaml:"reconnect_max_delay"`
	Heartbeat            time.Duration `koanf:"heartbeat" yaml:"heartbeat"`
	KeepAlive            time.Duration `koanf:"keep_alive" yaml:"keep_alive"`
	// IdleTimeout releases feeds of unlisted sites nobody used for that long.
	IdleTimeout time.Duration `koanf:"idle_timeout" yaml:"idle_timeout"`
	// MaxSites bounds the feeds open at once. Zero is unbounded.
	MaxSites int `koanf:"max_sites" yaml:"max_sites"`
}

// ReconnectPolicy is the backoff of the push channel.
func (c StreamConfig) ReconnectPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.MaxReconnectAttempts,
		BaseDelay:   c.ReconnectBaseDelay,
		Multiplier:  2,
		MaxDelay:    c.ReconnectMaxDelay,
	}
}

type DeviceFeedConfig struct {
	Source      string        `koanf:"source" yaml:"source"` // none | kafka | mqtt
	Brokers     []string      `koanf:"brokers" yaml:"brokers"`
	Topic       string        `koanf:"topic" yaml:"topic"`
	GroupID     string        `koanf:"group_id" yaml:"group_id"`
	PollTimeout time.Duration `koanf:"poll_timeout" yaml:"poll_timeout"`
	MQTTBroker  string        `koanf:"mqtt_broker" yaml:"mqtt_broker"`
	MQTTTopic   string        `koanf:"mqtt_topic" yaml:"mqtt_topic"`
	ClientID    string        `koanf:"client_id" yaml:"client_id"`
}

type DatabaseConfig struct {
	Enabled      bool   `koanf:"enabled" yaml:"enabled"`
	DSN          string `koanf:"dsn" yaml:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns" yaml:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate" yaml:"auto_migrate"`
}

type WatchersConfig struct {
	RefreshInterval time.Duration `koanf:"refresh_interval" yaml:"refresh_interval"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" yaml:"idle_timeout"`
	SweepInterval   time.Duration `koanf:"sweep_interval" yaml:"sweep_interval"`
	OverviewWait    time.Duration `koanf:"overview_wait" yaml:"overview_wait"`
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}

	if err := validateURL("upstream.base_url", c.Upstream.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be > 0")
	}
	if (c.Auth.Email == "") != (c.Auth.Password == "") {
		return fmt.Errorf("auth.email and auth.password must be set together")
	}

	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache.default_ttl must be > 0")
	}
	if c.Cache.JanitorInterval < 0 {
		return fmt.Errorf("cache.janitor_interval must be >= 0")
	}

	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be >= 0")
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be > 0")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1")
	}

	if c.Stream.Enabled {
		if err := validateURL("stream.url", c.Stream.URL, "ws", "wss"); err != nil {
			return err
		}
		if c.Stream.MaxReconnectAttempts <= 0 {
			return fmt.Errorf("stream.max_reconnect_attempts must be > 0")
		}
		if c.Stream.ReconnectBaseDelay <= 0 {
			return fmt.Errorf("stream.reconnect_base_delay must be > 0")
		}
		if c.Stream.Heartbeat <= 0 {
			return fmt.Errorf("stream.heartbeat must be > 0")
		}
		if c.Stream.IdleTimeout < 0 {
			return fmt.Errorf("stream.idle_timeout must be >= 0")
		}
		if c.Stream.MaxSites < 0 {
			return fmt.Errorf("stream.max_sites must be >= 0")
		}
		if c.Stream.MaxSites > 0 && len(c.Stream.SiteIDs) > c.Stream.MaxSites {
			return fmt.Errorf("stream.site_ids lists more sites than stream.max_sites")
		}
	}

	switch c.DeviceFeed.Source {
	case FeedNone:
	case FeedKafka:
		if len(c.DeviceFeed.Brokers) == 0 {
			return fmt.Errorf("devicefeed.brokers is required for the kafka source")
		}
		if strings.TrimSpace(c.DeviceFeed.GroupID) == "" {
			return fmt.Errorf("devicefeed.group_id is required for the kafka source")
		}
	case FeedMQTT:
		if strings.TrimSpace(c.DeviceFeed.MQTTBroker) == "" {
			return fmt.Errorf("devicefeed.mqtt_broker is required for the mqtt source")
		}
	default:
		return fmt.Errorf("unsupported devicefeed.source %q (must be none, kafka or mqtt)", c.DeviceFeed.Source)
	}

	if c.Database.Enabled {
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required")
		}
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			return fmt.Errorf("database.max_idle_conns must be > 0")
		}
	}

	if c.Watchers.IdleTimeout <= 0 {
		return fmt.Errorf("watchers.idle_timeout must be > 0")
	}
	if c.Watchers.RefreshInterval < 0 || c.Watchers.SweepInterval < 0 {
		return fmt.Errorf("watchers intervals must be >= 0")
	}

	return nil
}

func validateURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid %s %q", name, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q (scheme must be one of %s)", name, raw, strings.Join(schemes, ", "))
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Auth.Password != "" {
		c.Auth.Password = "******"
	}
	if u, err := url.Parse(c.Database.DSN); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "******")
			c.Database.DSN = u.String()
		}
	}
	c.Stream.SiteIDs = append([]string(nil), c.Stream.SiteIDs...)
	c.DeviceFeed.Brokers = append([]string(nil), c.DeviceFeed.Brokers...)
	return c
}

// Load parses config from defaults, an optional YAML file and ECOGRID_
// environment variables (double underscore separates levels), then
// validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                   8090,
		"server.host":                   "0.0.0.0",
		"server.mode":                   "release",
		"log.level":                     "info",
		"upstream.base_url":             "http://localhost:8080/api",
		"upstream.timeout":              "10s",
		"cache.default_ttl":             "5m",
		"cache.janitor_interval":        "1m",
		"retry.max_attempts":            3,
		"retry.base_delay":              "1s",
		"retry.multiplier":              2.0,
		"retry.max_delay":               "0s",
		"stream.enabled":                false,
		"stream.url":                    "ws://localhost:8080/ws/ems",
		"stream.site_ids":               []string{},
		"stream.max_reconnect_attempts": 5,
		"stream.reconnect_base_delay":   "5s",
		"stream.reconnect_max_delay":    "40s",
		"stream.heartbeat":              "30s",
		"stream.keep_alive":             "15s",
		"stream.idle_timeout":           "10m",
		"stream.max_sites":              100,
		"devicefeed.source":             FeedNone,
		"devicefeed.brokers":            []string{},
		"devicefeed.topic":              "device-telemetry",
		"devicefeed.group_id":           "ecogrid-gateway",
		"devicefeed.poll_timeout":       "1s",
		"devicefeed.mqtt_broker":        "",
		"devicefeed.mqtt_topic":         "ecogrid/sites/+/devices/+/telemetry/+",
		"devicefeed.client_id":          "ecogrid-gateway",
		"database.enabled":              false,
		"database.dsn":                  "",
		"database.max_open_conns":       10,
		"database.max_idle_conns":       5,
		"database.auto_migrate":         true,
		"watchers.refresh_interval":     "30s",
		"watchers.idle_timeout":         "5m",
		"watchers.sweep_interval":       "1m",
		"watchers.overview_wait":        "5s",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
