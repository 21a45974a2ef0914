package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"zapfilter/platform/logger"
)

// Database wraps the sqlite session store connection. whatsmeow's
// sqlstore owns the schema; this layer only opens, pings and closes.
type Database struct {
	*sqlx.DB
	path   string
	logger *logger.Logger
}

// Open connects to the session database, creating the parent
// directory when needed. sqlite tolerates exactly one writer, so the
// pool is pinned to a single connection.
func Open(path string, log *logger.Logger) (*Database, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	log.InfoWithFields("Session database opened", map[string]interface{}{
		"module": "database",
		"path":   path,
	})

	return &Database{DB: db, path: path, logger: log}, nil
}

// Close closes the connection.
func (d *Database) Close() error {
	d.logger.InfoWithFields("Closing session database", map[string]interface{}{
		"module": "database",
	})
	return d.DB.Close()
}

// Health pings the database with a short deadline.
func (d *Database) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.PingContext(ctx)
}

// Path returns the on-disk location of the session store.
func (d *Database) Path() string {
	return d.path
}

// Raw exposes the underlying sql.DB for libraries that manage their
// own schema on top of it.
func (d *Database) Raw() *sql.DB {
	return d.DB.DB
}
