// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads and validates sessionauth configuration.
package config

import (
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/sessionauth/internal/auth"
)

const redactedValue = "******"

// minSecretLength is the shortest accepted signing secret.
const minSecretLength = 16

// Config is the complete process configuration. It is not modified after Load.
type Config struct {
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	Secret   string         `koanf:"secret" yaml:"secret"`
	Cookie   CookieConfig   `koanf:"cookie" yaml:"cookie"`
	Session  SessionConfig  `koanf:"session" yaml:"session"`
	Redis    RedisConfig    `koanf:"redis" yaml:"redis"`
	Token    TokenConfig    `koanf:"token" yaml:"token"`
	Password PasswordConfig `koanf:"password" yaml:"password"`
	Log      LogConfig      `koanf:"log" yaml:"log"`
	HTTP     HTTPConfig     `koanf:"http" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
}

// DatabaseConfig holds the parts of the database connection string.
type DatabaseConfig struct {
	Driver   string `koanf:"driver" yaml:"driver"`
	Server   string `koanf:"server" yaml:"server"`
	Name     string `koanf:"name" yaml:"name"`
	User     string `koanf:"user" yaml:"user"`
	Password string `koanf:"password" yaml:"password"`
	SSLMode  string `koanf:"sslmode" yaml:"sslmode"`
}

// CookieConfig configures the encrypted session cookie.
type CookieConfig struct {
	Name string `koanf:"name" yaml:"name"`
	// Secret keys cookie encryption; empty means reuse the token secret.
	Secret   string `koanf:"secret" yaml:"secret"`
	Path     string `koanf:"path" yaml:"path"`
	Domain   string `koanf:"domain" yaml:"domain"`
	Secure   bool   `koanf:"secure" yaml:"secure"`
	SameSite string `koanf:"samesite" yaml:"samesite"`
}

// Session backends.
const (
	SessionBackendCookie = "cookie"
	SessionBackendRedis  = "redis"
)

// SessionConfig controls where session entries live and how long a login
// stays valid.
type SessionConfig struct {
	Backend string        `koanf:"backend" yaml:"backend"`
	Key     string        `koanf:"key" yaml:"key"`
	MaxAge  time.Duration `koanf:"maxage" yaml:"maxage"`
}

// RedisConfig locates the Redis server used by the redis session backend.
type RedisConfig struct {
	Addr     string `koanf:"addr" yaml:"addr"`
	Password string `koanf:"password" yaml:"password"`
	DB       int    `koanf:"db" yaml:"db"`
	Prefix   string `koanf:"prefix" yaml:"prefix"`
}

// TokenConfig selects the token wire format.
type TokenConfig struct {
	Format string `koanf:"format" yaml:"format"`
}

// PasswordConfig selects the password hashing algorithm.
type PasswordConfig struct {
	Algorithm string `koanf:"algorithm" yaml:"algorithm"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// HTTPConfig configures the HTTP host.
type HTTPConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// MetricsConfig configures the observability listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// Default returns the configuration used for keys absent from every source.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:  "postgres",
			Server:  "localhost:5432",
			Name:    "sessionauth",
			SSLMode: "disable",
		},
		Cookie: CookieConfig{
			Name:     "auth_cookie",
			Path:     "/",
			SameSite: "lax",
		},
		Session: SessionConfig{
			Backend: SessionBackendCookie,
			Key:     auth.DefaultSessionKey,
			MaxAge:  auth.DefaultTokenMaxAge,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "sessionauth:session:",
		},
		Token:    TokenConfig{Format: auth.TokenFormatItsdangerous},
		Password: PasswordConfig{Algorithm: auth.AlgorithmSHA256},
		Log:      LogConfig{Format: "json", Level: "info"},
		HTTP:     HTTPConfig{Addr: "127.0.0.1:8080"},
		Metrics:  MetricsConfig{Addr: "127.0.0.1:9100"},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "postgresql":
	default:
		return invalid("database.driver", "must be postgres or postgresql, got %q", c.Database.Driver)
	}
	if c.Database.Server == "" {
		return invalid("database.server", "is required")
	}
	if c.Database.Name == "" {
		return invalid("database.name", "is required")
	}
	if len(c.Secret) < minSecretLength {
		return invalid("secret", "must be at least %d characters", minSecretLength)
	}
	if c.Cookie.Name == "" {
		return invalid("cookie.name", "is required")
	}
	switch c.Cookie.SameSite {
	case "", "lax", "strict", "none":
	default:
		return invalid("cookie.samesite", "must be lax, strict or none, got %q", c.Cookie.SameSite)
	}
	if c.Cookie.SameSite == "none" && !c.Cookie.Secure {
		return invalid("cookie.samesite", "none requires cookie.secure")
	}
	switch c.Session.Backend {
	case SessionBackendCookie:
	case SessionBackendRedis:
		if c.Redis.Addr == "" {
			return invalid("redis.addr", "is required by the redis session backend")
		}
	default:
		return invalid("session.backend", "must be cookie or redis, got %q", c.Session.Backend)
	}
	if c.Session.MaxAge <= 0 {
		return invalid("session.maxage", "must be positive")
	}
	switch c.Token.Format {
	case auth.TokenFormatItsdangerous, auth.TokenFormatJWT:
	default:
		return invalid("token.format", "unsupported format %q", c.Token.Format)
	}
	switch c.Password.Algorithm {
	case auth.AlgorithmSHA256, auth.AlgorithmArgon2id, auth.AlgorithmBcrypt:
	default:
		return invalid("password.algorithm", "unsupported algorithm %q", c.Password.Algorithm)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be 'json' or 'text', got %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", "must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(key+" "+format, args...)
}

// DSN assembles the database connection string.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: d.Driver,
		Host:   d.Server,
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{d.SSLMode}}.Encode()
	}
	return u.String()
}

// CookieSecret returns the key material for cookie encryption.
func (c *Config) CookieSecret() []byte {
	if c.Cookie.Secret != "" {
		return []byte(c.Cookie.Secret)
	}
	return []byte(c.Secret)
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	if c.Secret != "" {
		c.Secret = redactedValue
	}
	if c.Cookie.Secret != "" {
		c.Cookie.Secret = redactedValue
	}
	if c.Database.Password != "" {
		c.Database.Password = redactedValue
	}
	if c.Redis.Password != "" {
		c.Redis.Password = redactedValue
	}
	return c
}
