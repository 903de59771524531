package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB represents the database connection.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens the database at path and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode and busy timeout keep readers off the writer's back;
	// _txlock=immediate takes the write lock at BEGIN so a conflict check and
	// the insert that follows it cannot interleave with another writer.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS seasons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			from_date DATETIME NOT NULL,
			to_date DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'DRAFT',
			cost INTEGER NOT NULL DEFAULT 0,
			created_by TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS weeks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			season_id INTEGER NOT NULL,
			week_number INTEGER NOT NULL,
			from_date DATETIME NOT NULL,
			to_date DATETIME NOT NULL,
			week_status TEXT NOT NULL DEFAULT 'FULLY_BOOKABLE',
			not_bookable_days TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (season_id) REFERENCES seasons(id)
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			week_id INTEGER NOT NULL,
			season_id INTEGER NOT NULL,
			user_id TEXT NOT NULL,
			priority TEXT NOT NULL,
			points_spent INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'APPLIED',
			requested_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (week_id) REFERENCES weeks(id),
			FOREIGN KEY (season_id) REFERENCES seasons(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_seasons_status ON seasons(status)`,
		`CREATE INDEX IF NOT EXISTS idx_weeks_season ON weeks(season_id, from_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_week_status ON bookings(week_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id, status)`,

		// One live request per (user, season, priority) and one winner per week.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_active_slot
			ON bookings(user_id, season_id, priority) WHERE status IN ('APPLIED', 'BOOKED')`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_week_booked
			ON bookings(week_id) WHERE status = 'BOOKED'`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.DB.Close()
}
