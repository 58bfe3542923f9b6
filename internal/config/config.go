// Package config holds cmd/cairn and internal/server's runtime
// configuration: a flat struct plus functional options, grounded on the
// teacher's internal/api.Config, loaded from kong flags and CAIRN_*
// environment variables.
package config

import "os"

// Config is the active process configuration.
type Config struct {
	DSN          string // storage connection string (internal/dsn grammar)
	ListenAddr   string // internal/server bind address, e.g. ":8080"
	CacheSize    int    // page cache size hint
	Fsync        bool
	AllowOrigins []string // CORS allowed origins for internal/server (empty = any origin)
}

// Default returns a Config with the engine's baseline settings.
func Default() Config {
	return Config{
		DSN:        "file:cairn.db",
		ListenAddr: ":8080",
		Fsync:      true,
	}
}

// Option mutates a Config being built by New.
type Option func(*Config)

// WithDSN overrides the storage connection string.
func WithDSN(dsn string) Option { return func(c *Config) { c.DSN = dsn } }

// WithListenAddr overrides the internal/server bind address.
func WithListenAddr(addr string) Option { return func(c *Config) { c.ListenAddr = addr } }

// WithCacheSize overrides the page cache size hint.
func WithCacheSize(n int) Option { return func(c *Config) { c.CacheSize = n } }

// WithAllowOrigins overrides the CORS allow-list.
func WithAllowOrigins(origins []string) Option {
	return func(c *Config) { c.AllowOrigins = origins }
}

// New builds a Config starting from Default, applying opts in order.
func New(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// FromEnvironment layers CAIRN_DSN / CAIRN_LISTEN_ADDR over c: each variable
// that is set and non-empty replaces c's value, including one that came
// from a cmd/cairn flag.
func FromEnvironment(c Config) Config {
	if v := os.Getenv("CAIRN_DSN"); v != "" {
		c.DSN = v
	}
	if v := os.Getenv("CAIRN_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	return c
}
