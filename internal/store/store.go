// Package store provides durable, race-safe storage of reservations, the
// slot catalog and flow tokens on top of sqlite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/booking"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Store wraps the sqlite connection.
type Store struct {
	*sql.DB
	logger *zerolog.Logger
}

// New opens the database at path and creates tables if they don't exist.
func New(path string, logger *zerolog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode and a busy timeout keep concurrent webhook handlers from
	// tripping over each other on writes.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	s := &Store{DB: db, logger: logger}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return s, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS slots (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			weekday INTEGER NOT NULL,
			start_hour INTEGER NOT NULL,
			end_hour INTEGER NOT NULL,
			price INTEGER NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_weekday ON slots(weekday, sort_order)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			token TEXT PRIMARY KEY,
			mobile TEXT NOT NULL,
			date TEXT NOT NULL,
			amount INTEGER NOT NULL,
			state TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL,
			expires_at DATETIME,
			payment_reference TEXT,
			payment_payload TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_mobile_state ON reservations(mobile, state)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_date_state ON reservations(date, state)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_expiry ON reservations(state, expires_at)`,

		// One row per held slot. The partial unique index is the
		// double-booking guard: two live reservations can never insert
		// the same (date, slot_id) pair.
		`CREATE TABLE IF NOT EXISTS reservation_slots (
			reservation_token TEXT NOT NULL REFERENCES reservations(token),
			date TEXT NOT NULL,
			slot_id TEXT NOT NULL,
			live BOOLEAN NOT NULL DEFAULT 1
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservation_slots_live
			ON reservation_slots(date, slot_id) WHERE live = 1`,
		`CREATE INDEX IF NOT EXISTS idx_reservation_slots_token
			ON reservation_slots(reservation_token)`,

		// Fallback storage for flow tokens when redis is unavailable.
		`CREATE TABLE IF NOT EXISTS flow_tokens (
			token TEXT PRIMARY KEY,
			mobile TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_flow_tokens_expiry ON flow_tokens(expires_at)`,
	}

	for _, q := range queries {
		if _, err := s.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr(err)
	}
	return nil
}

// storageErr wraps driver-level failures as the retryable storage kind.
// Domain errors pass through untouched.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, booking.ErrNotFound) ||
		errors.Is(err, booking.ErrSlotUnavailable) ||
		errors.Is(err, booking.ErrConflictingPendingReservation) ||
		errors.Is(err, booking.ErrAmbiguousState) {
		return err
	}
	return fmt.Errorf("%w: %v", booking.ErrStorageUnavailable, err)
}

// isUniqueViolation reports whether err is a sqlite unique-constraint error.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
