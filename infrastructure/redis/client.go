// Package redis opens the go-redis client backing the fetch response cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmptyAddress is returned when Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

const (
	defaultDialTimeout = 5 * time.Second
	defaultIOTimeout   = 3 * time.Second
)

// Config holds Redis connection configuration. An empty Address disables the
// cache.
type Config struct {
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
	// DialTimeout also bounds the startup ping.
	DialTimeout time.Duration `yaml:"dial_timeout"`
	// IOTimeout bounds every cache read and write. A slow cache must not
	// hold up a mirror run.
	IOTimeout time.Duration `yaml:"io_timeout"`
}

// Enabled reports whether an address is configured.
func (c Config) Enabled() bool {
	return c.Address != ""
}

func (c Config) options() *redis.Options {
	dial, io := c.DialTimeout, c.IOTimeout
	if dial <= 0 {
		dial = defaultDialTimeout
	}
	if io <= 0 {
		io = defaultIOTimeout
	}
	return &redis.Options{
		Addr:         c.Address,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  dial,
		ReadTimeout:  io,
		WriteTimeout: io,
	}
}

// NewClient connects to Redis and pings it before returning, so callers can
// fall back to running without a cache.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, ErrEmptyAddress
	}

	opts := cfg.options()
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Address, err)
	}
	return client, nil
}
