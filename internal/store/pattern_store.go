package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"vlearn/internal/logging"
	"vlearn/internal/types"
)

// PatternStore persists aggregated validation patterns keyed by pattern id.
type PatternStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewPatternStore creates or opens the pattern database.
func NewPatternStore(dbPath string) (*PatternStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewPatternStore")
	defer timer.Stop()

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	s := &PatternStore{db: db, dbPath: dbPath}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("pattern store initialized at %s", dbPath)
	return s, nil
}

func (s *PatternStore) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patterns (
		pattern_id TEXT PRIMARY KEY,
		pattern_type TEXT NOT NULL,
		context_signature TEXT NOT NULL,
		success_rate REAL NOT NULL DEFAULT 0,
		usage_count INTEGER NOT NULL DEFAULT 0,
		first_seen TEXT NOT NULL,
		last_seen TEXT NOT NULL,
		payload TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_signature ON patterns(context_signature);
	CREATE INDEX IF NOT EXISTS idx_patterns_type ON patterns(pattern_type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create patterns table: %w", err)
	}
	return nil
}

// UpsertPattern writes the merged pattern state through to storage. The
// in-memory pattern cache owns the merge; this write is absolute.
func (s *PatternStore) UpsertPattern(ctx context.Context, p types.ValidationPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns (pattern_id, pattern_type, context_signature, success_rate, usage_count, first_seen, last_seen, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern_id) DO UPDATE SET
			success_rate = excluded.success_rate,
			usage_count = excluded.usage_count,
			last_seen = excluded.last_seen,
			payload = excluded.payload
	`, p.PatternID, p.PatternType, p.ContextSignature, p.SuccessRate, p.UsageCount,
		formatTime(p.FirstSeen), formatTime(p.LastSeen), marshalMap(p.Payload))
	if err != nil {
		return fmt.Errorf("failed to upsert pattern: %w", err)
	}
	logging.StoreDebug("pattern upserted: id=%s usage=%d rate=%.3f", p.PatternID, p.UsageCount, p.SuccessRate)
	return nil
}

// GetPattern retrieves one pattern by id.
func (s *PatternStore) GetPattern(ctx context.Context, patternID string) (types.ValidationPattern, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT pattern_id, pattern_type, context_signature, success_rate, usage_count, first_seen, last_seen, payload
		FROM patterns WHERE pattern_id = ?
	`, patternID)

	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return types.ValidationPattern{}, false, nil
	}
	if err != nil {
		return types.ValidationPattern{}, false, fmt.Errorf("failed to query pattern: %w", err)
	}
	return p, true, nil
}

// GetBySignature retrieves patterns matching an exact context signature.
func (s *PatternStore) GetBySignature(ctx context.Context, signature string) ([]types.ValidationPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern_id, pattern_type, context_signature, success_rate, usage_count, first_seen, last_seen, payload
		FROM patterns WHERE context_signature = ?
		ORDER BY success_rate DESC, usage_count DESC
	`, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to query by signature: %w", err)
	}
	defer rows.Close()
	return collectPatterns(rows)
}

// ListPatterns returns up to limit patterns ranked by success rate then
// usage count.
func (s *PatternStore) ListPatterns(ctx context.Context, limit int) ([]types.ValidationPattern, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern_id, pattern_type, context_signature, success_rate, usage_count, first_seen, last_seen, payload
		FROM patterns
		ORDER BY success_rate DESC, usage_count DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	defer rows.Close()
	return collectPatterns(rows)
}

// Count returns the number of stored patterns.
func (s *PatternStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patterns").Scan(&n)
	return n, err
}

// Close closes the database connection.
func (s *PatternStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPattern(r rowScanner) (types.ValidationPattern, error) {
	var p types.ValidationPattern
	var firstSeen, lastSeen, payload string
	if err := r.Scan(&p.PatternID, &p.PatternType, &p.ContextSignature,
		&p.SuccessRate, &p.UsageCount, &firstSeen, &lastSeen, &payload); err != nil {
		return types.ValidationPattern{}, err
	}
	p.FirstSeen = parseTime(firstSeen)
	p.LastSeen = parseTime(lastSeen)
	p.Payload = unmarshalMap(payload)
	return p, nil
}

func collectPatterns(rows *sql.Rows) ([]types.ValidationPattern, error) {
	var patterns []types.ValidationPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to scan pattern row: %v", err)
			continue
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}
