// Package database persists mirroring run history in PostgreSQL.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	dbconfig "github.com/jonesrussell/north-cloud/mirror/internal/config/database"
)

const (
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 2
	// DefaultPingTimeout is the default timeout for ping operations
	DefaultPingTimeout = 5 * time.Second
)

// NewPostgresConnection opens and pings a PostgreSQL connection pool.
func NewPostgresConnection(ctx context.Context, cfg *dbconfig.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return db, nil
}
