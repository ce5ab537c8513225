// Package store encapsulates sqlite database management and the registry
// tables.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"xui_reseller_bot/internal/config"
)

// Table names used across the bot.
const (
	TableUsers       = "users"
	TableAssignments = "reseller_inbounds"
	TableLastReports = "last_reports"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// openDatabase is overridable for tests.
var openDatabase = func(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", path)
}

// Manager owns the sqlite handle for the bot's local state.
type Manager struct {
	db *sql.DB
}

// NewManager opens the sqlite database at the configured path and verifies
// connectivity with a ping.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := openDatabase(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Manager{db: db}, nil
}

// DB returns the underlying database handle.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Ping verifies database connectivity.
func (m *Manager) Ping(ctx context.Context) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.db.PingContext(ctx)
}

// EnsureSchema creates the registry tables when absent. Safe to call on
// every startup.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + TableUsers + ` (
			telegram_id INTEGER PRIMARY KEY,
			role TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ` + TableAssignments + ` (
			telegram_id INTEGER NOT NULL,
			inbound_id INTEGER NOT NULL,
			PRIMARY KEY (telegram_id, inbound_id)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + TableLastReports + ` (
			telegram_id INTEGER PRIMARY KEY,
			snapshot_json TEXT NOT NULL,
			reported_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}

	return nil
}

// Close releases the database handle.
func (m *Manager) Close() error {
	if m == nil || m.db == nil {
		return nil
	}

	return m.db.Close()
}
