package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	KeyPrefix    string `mapstructure:"key_prefix"`
}

type SessionConfig struct {
	// Backend is "memory" or "redis".
	Backend       string `mapstructure:"backend"`
	TTLSec        int    `mapstructure:"ttl_sec"`
	GCIntervalSec int    `mapstructure:"gc_interval_sec"`
}

func (s SessionConfig) TTL() time.Duration { return time.Duration(s.TTLSec) * time.Second }

func (s SessionConfig) GCInterval() time.Duration {
	return time.Duration(s.GCIntervalSec) * time.Second
}

type AccessLogConfig struct {
	// Path of the sqlite database. Empty disables the access log.
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	ListenAddr   string          `mapstructure:"listen_addr"`
	AppRoot      string          `mapstructure:"app_root"`
	ResourceRoot string          `mapstructure:"resource_root"`
	Descriptor   string          `mapstructure:"descriptor"`
	LogLevel     string          `mapstructure:"log_level"`
	ShutdownSec  int             `mapstructure:"shutdown_sec"`
	Session      SessionConfig   `mapstructure:"session"`
	Redis        RedisConfig     `mapstructure:"redis"`
	AccessLog    AccessLogConfig `mapstructure:"access_log"`
}

func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSec) * time.Second
}

func (c ServerConfig) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is empty"))
	}
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("session backend redis needs redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.Session.Backend))
	}
	if c.Session.TTLSec < 0 || c.Session.GCIntervalSec < 0 {
		errs = append(errs, errors.New("session ttl_sec and gc_interval_sec must not be negative"))
	}
	return errors.Join(errs...)
}

var defaults = map[string]any{
	"listen_addr":             ":8080",
	"app_root":                "webapps",
	"resource_root":           "resources",
	"descriptor":              "webapps/WEB-INF/web.yaml",
	"log_level":               "info",
	"shutdown_sec":            10,
	"session.backend":         "memory",
	"session.ttl_sec":         0,
	"session.gc_interval_sec": 60,
	"redis.addr":              "127.0.0.1:6379",
	"redis.db":                0,
	"redis.pool_size":         16,
	"redis.min_idle_conns":    2,
	"redis.key_prefix":        "webapp:",
	"access_log.path":         "",
}

// New returns a viper instance carrying the server defaults. Environment
// variables prefixed WEBAPP_ override file values, e.g. WEBAPP_SESSION_BACKEND.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("webapp")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default is the configuration used when no file is given.
func Default() ServerConfig {
	var cfg ServerConfig
	if err := New().Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads path (json, yaml or toml by extension) over the defaults into out.
// An empty path yields the defaults and the environment only.
func Load(path string, out any) error {
	return LoadWith(New(), path, out)
}

func LoadWith(v *viper.Viper, path string, out any) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
