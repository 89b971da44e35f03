package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"vlearn/internal/logging"
	"vlearn/internal/types"
)

// StoredEvent is the persisted form of a processed validation event plus its
// observed processing time.
type StoredEvent struct {
	EventID      string
	EventType    string
	SourceSystem string
	Success      bool
	Confidence   float64
	ProcessingMS float64
	Context      map[string]interface{}
	Timestamp    time.Time
}

// SourceTrend aggregates one source system's events within a window.
type SourceTrend struct {
	SourceSystem    string  `json:"source_system"`
	Events          int64   `json:"events"`
	SuccessRate     float64 `json:"success_rate"`
	AvgConfidence   float64 `json:"avg_confidence"`
	AvgProcessingMS float64 `json:"avg_processing_ms"`
}

// EventStore persists processed events and serves trend rollups.
type EventStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewEventStore creates or opens the analytics event database.
func NewEventStore(dbPath string) (*EventStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewEventStore")
	defer timer.Stop()

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	s := &EventStore{db: db, dbPath: dbPath}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("event store initialized at %s", dbPath)
	return s, nil
}

func (s *EventStore) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		source_system TEXT NOT NULL,
		success INTEGER NOT NULL,
		confidence REAL NOT NULL,
		processing_ms REAL NOT NULL DEFAULT 0,
		context TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_type_source ON events(event_type, source_system);
	CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}
	return nil
}

// InsertEvent appends one processed event.
func (s *EventStore) InsertEvent(ctx context.Context, e types.ValidationEvent, processing time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	success := 0
	if e.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events (event_id, event_type, source_system, success, confidence, processing_ms, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EventID, e.EventType, e.SourceSystem, success, e.Confidence,
		float64(processing.Microseconds())/1000.0, marshalMap(e.Context), formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// SimilarEvents returns the most recent events sharing an event type, and
// optionally a source system.
func (s *EventStore) SimilarEvents(ctx context.Context, eventType, sourceSystem string, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT event_id, event_type, source_system, success, confidence, processing_ms, context, created_at
		FROM events WHERE event_type = ?`
	args := []interface{}{eventType}
	if sourceSystem != "" {
		query += " AND source_system = ?"
		args = append(args, sourceSystem)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		var success int
		var contextJSON, createdAt string
		if err := rows.Scan(&ev.EventID, &ev.EventType, &ev.SourceSystem,
			&success, &ev.Confidence, &ev.ProcessingMS, &contextJSON, &createdAt); err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to scan event row: %v", err)
			continue
		}
		ev.Success = success == 1
		ev.Context = unmarshalMap(contextJSON)
		ev.Timestamp = parseTime(createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// TrendsSince aggregates success rate, average confidence, and average
// processing time per source system for events at or after since. A zero
// since aggregates all time.
func (s *EventStore) TrendsSince(ctx context.Context, since time.Time) ([]SourceTrend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT source_system, COUNT(*), AVG(success), AVG(confidence), AVG(processing_ms)
		FROM events`
	var args []interface{}
	if !since.IsZero() {
		query += " WHERE created_at >= ?"
		args = append(args, formatTime(since))
	}
	query += " GROUP BY source_system ORDER BY COUNT(*) DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trends: %w", err)
	}
	defer rows.Close()

	var trends []SourceTrend
	for rows.Next() {
		var tr SourceTrend
		if err := rows.Scan(&tr.SourceSystem, &tr.Events, &tr.SuccessRate,
			&tr.AvgConfidence, &tr.AvgProcessingMS); err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to scan trend row: %v", err)
			continue
		}
		trends = append(trends, tr)
	}
	return trends, rows.Err()
}

// Count returns the number of stored events.
func (s *EventStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n)
	return n, err
}

// Close closes the database connection.
func (s *EventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
