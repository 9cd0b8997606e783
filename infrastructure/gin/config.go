// Package gin holds the HTTP server plumbing shared by the mirror's gin
// surfaces: middleware, health routes and server lifecycle.
package gin

import "time"

// Default timeout values for HTTP server configuration.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultAddress         = ":8080"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Address is the listen address, e.g. ":8080".
	Address string

	// Debug enables gin debug mode.
	Debug bool

	ReadTimeout time.Duration
	// WriteTimeout bounds a whole response, including a synchronous mirror run.
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// ServiceName and ServiceVersion are reported by the health endpoint.
	ServiceName    string
	ServiceVersion string
}

// SetDefaults applies default values to the config where values are not set.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "dev"
	}
}
