package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the sqlite connection used by the scheduler.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("time slot conflict")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// NewDB opens the database at path and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, logger: logger}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS availability_templates (
			practitioner_id INTEGER PRIMARY KEY,
			slot_duration INTEGER NOT NULL DEFAULT 30,
			buffer_minutes INTEGER NOT NULL DEFAULT 5,
			max_bookings_per_day INTEGER NOT NULL DEFAULT 12,
			booking_horizon_days INTEGER NOT NULL DEFAULT 30,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// One row per weekday; windows is a JSON array of {start,end} minute pairs.
		`CREATE TABLE IF NOT EXISTS availability_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			practitioner_id INTEGER NOT NULL,
			weekday INTEGER NOT NULL,
			working_day BOOLEAN NOT NULL DEFAULT 0,
			windows TEXT NOT NULL DEFAULT '[]',
			UNIQUE(practitioner_id, weekday),
			FOREIGN KEY(practitioner_id) REFERENCES availability_templates(practitioner_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS availability_exceptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			practitioner_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			kind TEXT NOT NULL,
			reason TEXT,
			windows TEXT NOT NULL DEFAULT '[]',
			UNIQUE(practitioner_id, date),
			FOREIGN KEY(practitioner_id) REFERENCES availability_templates(practitioner_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			practitioner_id INTEGER NOT NULL,
			patient_id INTEGER NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			duration INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'scheduled',
			reason TEXT,
			notes TEXT,
			cancellation_reason TEXT,
			cancelled_by TEXT,
			cancelled_at DATETIME,
			rescheduled_from TEXT,
			rescheduled_to TEXT,
			rescheduling_reason TEXT,
			created_by TEXT,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// Written only after a reminder is dispatched; the unique index makes
		// re-sending the same offset a no-op.
		`CREATE TABLE IF NOT EXISTS booking_reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_id TEXT NOT NULL,
			offset_hours INTEGER NOT NULL,
			channel TEXT NOT NULL,
			sent_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(booking_id, offset_hours),
			FOREIGN KEY(booking_id) REFERENCES bookings(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_practitioner_start ON bookings(practitioner_id, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_patient ON bookings(patient_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_start ON bookings(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_booking ON booking_reminders(booking_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("failed to execute query %q: %w", q, err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
