package patterns

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"vlearn/internal/logging"
	"vlearn/internal/store"
	"vlearn/internal/types"
)

// similarityCandidates bounds how many stored patterns the fallback search
// scores per query.
const similarityCandidates = 200

// Memory aggregates validation events into patterns. Hot patterns live in a
// bounded LRU cache; every merge writes through to the pattern store, so an
// evicted pattern loses nothing and reloads on the next matching event.
type Memory struct {
	store    *store.PatternStore
	scorer   Scorer
	capacity int

	mu    sync.Mutex
	cache map[string]*list.Element // pattern id -> element
	lru   *list.List               // front = most recently used
}

type cacheEntry struct {
	pattern types.ValidationPattern
}

// NewMemory creates pattern memory over the given store. A nil scorer
// selects token overlap.
func NewMemory(ps *store.PatternStore, scorer Scorer, capacity int) *Memory {
	if scorer == nil {
		scorer = TokenOverlapScorer{}
	}
	if capacity <= 0 {
		capacity = 256
	}
	return &Memory{
		store:    ps,
		scorer:   scorer,
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// StorePattern folds one event into its pattern: merge into the cached
// aggregate (loading from storage on a cache miss) and write the merged
// state through. Errors are logged at debug level and swallowed; the learn
// path must stay silent.
func (m *Memory) StorePattern(ctx context.Context, event types.ValidationEvent) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryPatterns).Error("store pattern panicked: %v", r)
		}
	}()

	signature := ContextSignature(event.Context)
	id := PatternID(event.EventType, signature)

	m.mu.Lock()
	p := m.lookupLocked(ctx, id, signature, event)
	p.Merge(event.Success, event.Timestamp)
	m.insertLocked(id, p)
	merged := p
	m.mu.Unlock()

	if err := m.store.UpsertPattern(ctx, merged); err != nil {
		logging.PatternsDebug("write-through failed for %s: %v", id, err)
	}
}

// lookupLocked returns the working copy of the pattern for id: cached state,
// else persisted state, else a fresh pattern seeded from the event.
func (m *Memory) lookupLocked(ctx context.Context, id, signature string, event types.ValidationEvent) types.ValidationPattern {
	if el, ok := m.cache[id]; ok {
		return el.Value.(*cacheEntry).pattern
	}
	if stored, found, err := m.store.GetPattern(ctx, id); err == nil && found {
		logging.PatternsDebug("cache miss, loaded from storage: %s", id)
		return stored
	}
	logging.Patterns("new pattern: id=%s signature=%s type=%s", id, signature, event.EventType)
	return types.ValidationPattern{
		PatternID:        id,
		PatternType:      event.EventType,
		ContextSignature: signature,
		Payload: map[string]interface{}{
			"context":       event.Context,
			"source_system": event.SourceSystem,
		},
	}
}

// insertLocked installs the merged pattern as most recently used, evicting
// the least recently used entry beyond capacity. Evicted patterns remain in
// persistent storage.
func (m *Memory) insertLocked(id string, p types.ValidationPattern) {
	if el, ok := m.cache[id]; ok {
		el.Value.(*cacheEntry).pattern = p
		m.lru.MoveToFront(el)
		return
	}
	m.cache[id] = m.lru.PushFront(&cacheEntry{pattern: p})
	for m.lru.Len() > m.capacity {
		oldest := m.lru.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*cacheEntry).pattern
		m.lru.Remove(oldest)
		delete(m.cache, evicted.PatternID)
		logging.PatternsDebug("evicted from cache: %s (usage=%d)", evicted.PatternID, evicted.UsageCount)
	}
}

// Match is one similarity-search result.
type Match struct {
	Pattern    types.ValidationPattern
	Similarity float64
	Exact      bool
}

// FindSimilarPatterns returns up to limit patterns for the given context:
// exact signature matches first, then a similarity-scored fallback over
// stored patterns ranked by (score, success rate, usage count) descending.
// Any internal error yields an empty result.
func (m *Memory) FindSimilarPatterns(ctx context.Context, queryContext map[string]interface{}, limit int) (matches []Match) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryPatterns).Error("similarity search panicked: %v", r)
			matches = nil
		}
	}()
	if limit <= 0 {
		limit = 5
	}

	signature := ContextSignature(queryContext)
	exact, err := m.store.GetBySignature(ctx, signature)
	if err != nil {
		logging.PatternsDebug("signature lookup failed: %v", err)
	}
	if len(exact) > 0 {
		if len(exact) > limit {
			exact = exact[:limit]
		}
		for _, p := range exact {
			matches = append(matches, Match{Pattern: p, Similarity: 1.0, Exact: true})
		}
		return matches
	}

	candidates, err := m.store.ListPatterns(ctx, similarityCandidates)
	if err != nil {
		logging.PatternsDebug("candidate listing failed: %v", err)
		return nil
	}

	for _, p := range candidates {
		stored, _ := p.Payload["context"].(map[string]interface{})
		score := m.scorer.Score(queryContext, stored)
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{Pattern: p, Similarity: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if matches[i].Pattern.SuccessRate != matches[j].Pattern.SuccessRate {
			return matches[i].Pattern.SuccessRate > matches[j].Pattern.SuccessRate
		}
		return matches[i].Pattern.UsageCount > matches[j].Pattern.UsageCount
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	logging.PatternsDebug("similarity search (%s): %d matches", m.scorer.Name(), len(matches))
	return matches
}

// PatternSuccessRate returns a pattern's running success rate, or 0.0 when
// the pattern is unknown or storage is unavailable.
func (m *Memory) PatternSuccessRate(ctx context.Context, patternID string) float64 {
	m.mu.Lock()
	if el, ok := m.cache[patternID]; ok {
		rate := el.Value.(*cacheEntry).pattern.SuccessRate
		m.mu.Unlock()
		return rate
	}
	m.mu.Unlock()

	p, found, err := m.store.GetPattern(ctx, patternID)
	if err != nil || !found {
		return 0.0
	}
	return p.SuccessRate
}

// CachedCount returns the number of patterns currently cached.
func (m *Memory) CachedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// StoredCount returns the number of persisted patterns.
func (m *Memory) StoredCount(ctx context.Context) int64 {
	n, err := m.store.Count(ctx)
	if err != nil {
		return 0
	}
	return n
}

// Close releases the underlying store. The pattern memory exclusively owns
// its storage handle.
func (m *Memory) Close() error {
	return m.store.Close()
}
