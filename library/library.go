/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package library stores the shared board game library, the log of played
// sessions and each table's current selection in a SQLite database.
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrInvalid   = errors.New("invalid input")
	ErrDuplicate = errors.New("already exists")
	ErrNotFound  = errors.New("not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS available_games (
	id         TEXT PRIMARY KEY,
	game_name  TEXT NOT NULL UNIQUE COLLATE NOCASE,
	game_image TEXT NOT NULL DEFAULT '',
	bgg_id     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS game_logs (
	id               TEXT PRIMARY KEY,
	game_name        TEXT NOT NULL,
	winner           TEXT NOT NULL,
	players          TEXT NOT NULL,
	duration_minutes INTEGER,
	played_at        TEXT NOT NULL,
	notes            TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS game_logs_played_at ON game_logs (played_at);

CREATE TABLE IF NOT EXISTS current_selection (
	table_id    TEXT PRIMARY KEY,
	game_id     TEXT NOT NULL,
	game_name   TEXT NOT NULL,
	game_image  TEXT NOT NULL DEFAULT '',
	bgg_id      TEXT NOT NULL DEFAULT '',
	selected_at TEXT NOT NULL
);
`

// Store is a handle on the library database. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database at path, creating it and its tables if needed.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("open library: empty path: %w", ErrInvalid)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open library %s: %w", path, err)
	}

	// SQLite allows a single writer; funnelling everything through one
	// connection also keeps ":memory:" databases alive and shared.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initialize library %s: %w", path, err)
		}
	}

	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
