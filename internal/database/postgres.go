// Package database provides PostgreSQL access for job records, enrichment
// tasks and attempt audit rows.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// PostgreSQL driver.
	_ "github.com/lib/pq"
)

// connectTimeout bounds the initial connectivity check.
const connectTimeout = 5 * time.Second

// Config holds connection pool settings.
type Config struct {
	DSN             string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Connect opens a PostgreSQL connection pool and verifies connectivity.
func Connect(cfg Config) (*sql.DB, error) {
	db, openErr := sql.Open("postgres", cfg.DSN)
	if openErr != nil {
		return nil, fmt.Errorf("open database: %w", openErr)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	return db, nil
}
