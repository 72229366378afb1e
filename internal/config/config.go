// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package config loads service configuration from an optional YAML
// file layered under command-line flags.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Server holds listener settings.
type Server struct {
	Addr        string `koanf:"addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	LogFormat   string `koanf:"log_format"`
}

// Database holds PostgreSQL settings.
type Database struct {
	URL string `koanf:"url"`
}

// Redis holds session cache settings.
type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// Session holds cookie and maintenance settings. The session TTL
// itself is fixed by the auth package.
type Session struct {
	CookieSecure  bool          `koanf:"cookie_secure"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// Config is the full service configuration.
type Config struct {
	Server          Server   `koanf:"server"`
	Database        Database `koanf:"database"`
	Redis           Redis    `koanf:"redis"`
	Session         Session  `koanf:"session"`
	ProtectedRoutes []string `koanf:"protected_routes"`
}

// Default returns the configuration used when neither file nor flags
// override a value.
func Default() Config {
	return Config{
		Server: Server{
			Addr:        "127.0.0.1:8080",
			MetricsAddr: "127.0.0.1:9100",
			LogFormat:   "json",
		},
		Redis: Redis{
			Addr: "127.0.0.1:6379",
		},
		Session: Session{
			SweepInterval: time.Hour,
		},
		ProtectedRoutes: []string{"/api/auth/me"},
	}
}

// flagKeys maps command-line flag names onto config keys. Flags not
// listed here are ignored by the loader.
var flagKeys = map[string]string{
	"http-addr":      "server.addr",
	"metrics-addr":   "server.metrics_addr",
	"log-format":     "server.log_format",
	"database-url":   "database.url",
	"redis-addr":     "redis.addr",
	"redis-password": "redis.password",
	"redis-db":       "redis.db",
	"cookie-secure":  "session.cookie_secure",
	"sweep-interval": "session.sweep_interval",
}

// Load builds the configuration: defaults, then the YAML file at path
// (if non-empty), then any flags the user set. DATABASE_URL from the
// environment fills in the database URL when nothing else did.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.
				Code("CONFIG_FILE_UNREADABLE").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			// Only flags the user actually set participate, so flag
			// defaults never shadow file values or built-in defaults.
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return oops.Errorf("server addr is required")
	}
	if c.Server.LogFormat != "json" && c.Server.LogFormat != "text" {
		return oops.Errorf("log format must be 'json' or 'text', got %q", c.Server.LogFormat)
	}
	if c.Database.URL == "" {
		return oops.Errorf("database URL is required (flag, config file, or DATABASE_URL)")
	}
	if c.Redis.Addr == "" {
		return oops.Errorf("redis addr is required")
	}
	if c.Session.SweepInterval <= 0 {
		return oops.Errorf("sweep interval must be positive")
	}
	return nil
}
