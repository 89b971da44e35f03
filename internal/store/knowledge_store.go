package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"vlearn/internal/logging"
	"vlearn/internal/types"
)

// KnowledgeStore persists subject-indexed knowledge entries.
type KnowledgeStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewKnowledgeStore creates or opens the knowledge database.
func NewKnowledgeStore(dbPath string) (*KnowledgeStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewKnowledgeStore")
	defer timer.Stop()

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	s := &KnowledgeStore{db: db, dbPath: dbPath}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("knowledge store initialized at %s", dbPath)
	return s, nil
}

func (s *KnowledgeStore) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_entries (
		entry_id TEXT PRIMARY KEY,
		knowledge_type TEXT NOT NULL,
		subject TEXT NOT NULL,
		content TEXT,
		confidence REAL NOT NULL DEFAULT 0,
		evidence_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_subject ON knowledge_entries(subject);
	CREATE INDEX IF NOT EXISTS idx_knowledge_type ON knowledge_entries(knowledge_type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create knowledge_entries table: %w", err)
	}
	return nil
}

// GetEntry retrieves one entry by id.
func (s *KnowledgeStore) GetEntry(ctx context.Context, entryID string) (types.KnowledgeEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT entry_id, knowledge_type, subject, content, confidence, evidence_count, created_at, updated_at
		FROM knowledge_entries WHERE entry_id = ?
	`, entryID)

	e, err := scanKnowledgeEntry(row)
	if err == sql.ErrNoRows {
		return types.KnowledgeEntry{}, false, nil
	}
	if err != nil {
		return types.KnowledgeEntry{}, false, fmt.Errorf("failed to query entry: %w", err)
	}
	return e, true, nil
}

// UpsertEntry writes the merged entry state through to storage. The
// knowledge base owns the confidence-weighted merge; this write is absolute.
func (s *KnowledgeStore) UpsertEntry(ctx context.Context, e types.KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_entries (entry_id, knowledge_type, subject, content, confidence, evidence_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			content = excluded.content,
			confidence = excluded.confidence,
			evidence_count = excluded.evidence_count,
			updated_at = excluded.updated_at
	`, e.EntryID, e.KnowledgeType, e.Subject, marshalMap(e.Content),
		e.Confidence, e.EvidenceCount, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert knowledge entry: %w", err)
	}
	logging.StoreDebug("knowledge entry upserted: id=%s evidence=%d confidence=%.3f",
		e.EntryID, e.EvidenceCount, e.Confidence)
	return nil
}

// EntriesForSubject returns the most relevant entries for a subject, ordered
// by confidence then recency. Safe with zero entries.
func (s *KnowledgeStore) EntriesForSubject(ctx context.Context, subject string, limit int) ([]types.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, knowledge_type, subject, content, confidence, evidence_count, created_at, updated_at
		FROM knowledge_entries WHERE subject = ?
		ORDER BY confidence DESC, updated_at DESC
		LIMIT ?
	`, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()
	return collectKnowledgeEntries(rows)
}

// ListEntries returns up to limit entries across all subjects.
func (s *KnowledgeStore) ListEntries(ctx context.Context, limit int) ([]types.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, knowledge_type, subject, content, confidence, evidence_count, created_at, updated_at
		FROM knowledge_entries
		ORDER BY confidence DESC, updated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()
	return collectKnowledgeEntries(rows)
}

// Count returns the number of stored entries.
func (s *KnowledgeStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge_entries").Scan(&n)
	return n, err
}

// Close closes the database connection.
func (s *KnowledgeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func scanKnowledgeEntry(r rowScanner) (types.KnowledgeEntry, error) {
	var e types.KnowledgeEntry
	var content, createdAt, updatedAt string
	if err := r.Scan(&e.EntryID, &e.KnowledgeType, &e.Subject, &content,
		&e.Confidence, &e.EvidenceCount, &createdAt, &updatedAt); err != nil {
		return types.KnowledgeEntry{}, err
	}
	e.Content = unmarshalMap(content)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

func collectKnowledgeEntries(rows *sql.Rows) ([]types.KnowledgeEntry, error) {
	var entries []types.KnowledgeEntry
	for rows.Next() {
		e, err := scanKnowledgeEntry(rows)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to scan knowledge row: %v", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
