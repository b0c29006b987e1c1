package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	HSL       HSLConfig       `mapstructure:"hsl"`
	Log       LogConfig       `mapstructure:"log"`
	Cache     CacheConfig     `mapstructure:"cache"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// HSLConfig points at the upstream Digitransit GraphQL endpoint.
type HSLConfig struct {
	URL     string `mapstructure:"url"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CacheConfig configures the Valkey board cache. An empty Addr disables
// caching.
type CacheConfig struct {
	Addr string `mapstructure:"addr"`
	TTL  int    `mapstructure:"ttl"` // seconds
}

// NATSConfig configures the board-update broker. An empty URL disables
// publishing and the WebSocket relay.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// WatchConfig lists stop codes whose boards are refreshed in the
// background and published to NATS.
type WatchConfig struct {
	Stops    []string `mapstructure:"stops"`
	Interval int      `mapstructure:"interval"` // seconds
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("hsl.url", "https://api.digitransit.fi/routing/v1/routers/hsl/index/graphql")
	v.SetDefault("hsl.timeout", 15)
	v.SetDefault("log.level", "warning")
	v.SetDefault("log.format", "json")
	v.SetDefault("cache.addr", "")
	v.SetDefault("cache.ttl", 10)
	v.SetDefault("nats.url", "")
	v.SetDefault("watch.stops", []string{})
	v.SetDefault("watch.interval", 30)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: HSLPROXY_LOG_LEVEL → log.level
	v.SetEnvPrefix("HSLPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.HSL.URL == "" {
		errs = append(errs, "hsl.url is required")
	}
	if c.HSL.Timeout <= 0 {
		errs = append(errs, "hsl.timeout must be positive")
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be positive")
	}
	if c.Watch.Interval <= 0 {
		errs = append(errs, "watch.interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
