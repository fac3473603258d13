// Package sqldb opens database/sql pools for the supported checkpoint backends.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	logx "github.com/Chative-core-poc-v1/docagent/pkg/logger"
)

// Dialects, named after their database/sql driver.
const (
	Postgres = "postgres"
	SQLite   = "sqlite3"
)

type Config struct {
	Dialect string
	DSN     string
	MaxOpen int
	MaxIdle int
}

// DialectFor maps a checkpoint backend name to its dialect.
func DialectFor(backend string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported sql backend %q", backend)
	}
}

// Open opens and pings a pool. SQLite gets a single connection so writers
// never see "database is locked".
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sql.Open(cfg.Dialect, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Dialect == SQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		if cfg.MaxOpen > 0 {
			db.SetMaxOpenConns(cfg.MaxOpen)
		}
		if cfg.MaxIdle > 0 {
			db.SetMaxIdleConns(cfg.MaxIdle)
		}
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Dialect == SQLite {
		if _, err := db.ExecContext(pingCtx, "PRAGMA busy_timeout=10000"); err != nil {
			logx.Warn().Err(err).Msg("Failed to set SQLite busy timeout")
		}
	}

	logx.Debug().Str("dialect", cfg.Dialect).Msg("Database pool ready")
	return db, nil
}
