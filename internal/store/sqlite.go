// Package store implements the persistence layer for the learning pipeline
// using SQLite. Each service owns one database file: patterns.db,
// analytics.db, knowledge.db. Relationships between records are resolved by
// signature/subject matching at query time, never by cross-database joins.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// openDatabase opens (creating if needed) a SQLite database file and
// verifies the connection.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	// Single-writer-worker / multi-reader-caller pattern; one connection
	// avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)
	return db, nil
}

// marshalMap encodes an open key/value map as JSON, tolerating nil.
func marshalMap(m map[string]interface{}) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// unmarshalMap decodes a JSON object column, tolerating empty and malformed
// values.
func unmarshalMap(s string) map[string]interface{} {
	if s == "" {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// timeLayout is RFC3339 with fixed-width fractional seconds. Trailing-zero
// trimming (as in RFC3339Nano) would break lexicographic comparison of the
// stored text, which the trend queries rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime stores timestamps as fixed-width UTC RFC3339 text.
func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(timeLayout)
}

// parseTime reads an RFC3339 timestamp column, tolerating malformed values.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
