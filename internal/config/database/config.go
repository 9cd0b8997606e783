// Package database provides the run-history database configuration.
package database

import (
	"fmt"
	"time"
)

// Default configuration values
const (
	DefaultPort     = 5432
	DefaultUser     = "postgres"
	DefaultDBName   = "mirror"
	DefaultSSLMode  = "disable"
	defaultMaxConns = 5
	defaultLifetime = 5 * time.Minute
)

// Config represents database configuration settings. An empty Host disables
// run history.
type Config struct {
	Host            string        `env:"DB_HOST"     yaml:"host"`
	Port            int           `env:"DB_PORT"     yaml:"port"`
	User            string        `env:"DB_USER"     yaml:"user"`
	Password        string        `env:"DB_PASSWORD" yaml:"password"`
	DBName          string        `env:"DB_NAME"     yaml:"dbname"`
	SSLMode         string        `env:"DB_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.DBName == "" {
		c.DBName = DefaultDBName
	}
	if c.SSLMode == "" {
		c.SSLMode = DefaultSSLMode
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = defaultMaxConns
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = defaultLifetime
	}
}

// Enabled reports whether a database is configured.
func (c *Config) Enabled() bool {
	return c.Host != ""
}

// DSN returns the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
