package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"mcp9808/sensor"
)

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	topic   TEXT    NOT NULL,
	celsius REAL    NOT NULL,
	updated INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS readings_topic_updated ON readings (topic, updated DESC);
`

const DefaultLimit = 100

// History keeps every reading the monitor accepted
type History struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*History, error) {
	if path == "" {
		return nil, errors.New("storage: database path must be provided")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// Writes come from a single callback, one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: enable wal: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create schema: %w", err)
	}

	return &History{db: db}, nil
}

func (h *History) Insert(ctx context.Context, reading sensor.Reading) error {
	_, err := h.db.ExecContext(ctx,
		"INSERT INTO readings (topic, celsius, updated) VALUES (?, ?, ?)",
		reading.Topic, reading.Celsius, reading.Updated)
	if err != nil {
		return fmt.Errorf("storage: insert reading: %w", err)
	}

	return nil
}

// Recent returns the newest readings for topic, newest first
func (h *History) Recent(ctx context.Context, topic string, limit int) ([]sensor.Reading, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := h.db.QueryContext(ctx,
		"SELECT topic, celsius, updated FROM readings WHERE topic = ? ORDER BY updated DESC, id DESC LIMIT ?",
		topic, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: query readings: %w", err)
	}
	defer rows.Close()

	readings := []sensor.Reading{}
	for rows.Next() {
		var r sensor.Reading
		if err := rows.Scan(&r.Topic, &r.Celsius, &r.Updated); err != nil {
			return nil, fmt.Errorf("storage: scan reading: %w", err)
		}
		readings = append(readings, r)
	}

	return readings, rows.Err()
}

func (h *History) Close() error {
	return h.db.Close()
}
