// Package knowledge maintains subject-indexed, confidence-weighted beliefs
// derived from repeated validation outcomes. A single event nudges an
// entry's confidence; it never rewrites it.
package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"vlearn/internal/logging"
	"vlearn/internal/store"
	"vlearn/internal/types"
)

// successConfidenceFloor is the minimum event confidence for a success to
// count as evidence of a successful pattern.
const successConfidenceFloor = 0.7

// Base is the knowledge layer. It exclusively owns its knowledge store.
type Base struct {
	store *store.KnowledgeStore
}

// NewBase creates the knowledge base over the given store.
func NewBase(ks *store.KnowledgeStore) *Base {
	return &Base{store: ks}
}

// EntryID derives the stable identifier for a (knowledge type, subject)
// pair, so repeated observations of the same subject merge into one entry.
func EntryID(knowledgeType, subject string) string {
	sum := sha256.Sum256([]byte(knowledgeType + "\x00" + subject))
	return hex.EncodeToString(sum[:8])
}

// ObserveEvent folds one validation outcome into the knowledge base:
// confident successes reinforce a successful_pattern entry for the
// (event type, source system) pair, failures reinforce a failure_pattern
// entry, and every event updates the source system's behavior profile.
func (b *Base) ObserveEvent(ctx context.Context, event types.ValidationEvent) error {
	subject := fmt.Sprintf("%s/%s", event.EventType, event.SourceSystem)

	switch {
	case event.Success && event.Confidence >= successConfidenceFloor:
		err := b.reinforce(ctx, types.KnowledgeSuccessfulPattern, subject, event.Confidence, map[string]interface{}{
			"event_type":    event.EventType,
			"source_system": event.SourceSystem,
			"last_context":  event.Context,
		})
		if err != nil {
			return err
		}
	case !event.Success:
		confidence := 1.0 - event.Confidence
		if confidence < 0.5 {
			confidence = 0.5
		}
		err := b.reinforce(ctx, types.KnowledgeFailurePattern, subject, confidence, map[string]interface{}{
			"event_type":    event.EventType,
			"source_system": event.SourceSystem,
			"last_context":  event.Context,
		})
		if err != nil {
			return err
		}
	}

	return b.reinforce(ctx, types.KnowledgeSystemBehavior, event.SourceSystem, event.Confidence, map[string]interface{}{
		"source_system":   event.SourceSystem,
		"last_event_type": event.EventType,
		"last_success":    event.Success,
	})
}

// reinforce merges one observation into the entry for (knowledgeType,
// subject): evidence count grows by one and confidence moves by an
// evidence-weighted running average, so established beliefs resist single
// outliers. Content keys are merged, newest value winning.
func (b *Base) reinforce(ctx context.Context, knowledgeType, subject string, confidence float64, content map[string]interface{}) error {
	id := EntryID(knowledgeType, subject)
	now := time.Now().UTC()

	entry, found, err := b.store.GetEntry(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load knowledge entry %s: %w", id, err)
	}
	if !found {
		entry = types.KnowledgeEntry{
			EntryID:       id,
			KnowledgeType: knowledgeType,
			Subject:       subject,
			Content:       map[string]interface{}{},
			CreatedAt:     now,
		}
		logging.Knowledge("new %s entry: subject=%s", knowledgeType, subject)
	}

	n := float64(entry.EvidenceCount)
	entry.Confidence = types.ClampConfidence((entry.Confidence*n + confidence) / (n + 1))
	entry.EvidenceCount++
	entry.UpdatedAt = now
	if entry.Content == nil {
		entry.Content = map[string]interface{}{}
	}
	for k, v := range content {
		entry.Content[k] = v
	}

	if err := b.store.UpsertEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to persist knowledge entry %s: %w", id, err)
	}
	return nil
}

// EntriesForSubject returns the subject's entries ordered by confidence,
// then recency. Zero entries is a normal result.
func (b *Base) EntriesForSubject(ctx context.Context, subject string, limit int) []types.KnowledgeEntry {
	entries, err := b.store.EntriesForSubject(ctx, subject, limit)
	if err != nil {
		logging.KnowledgeDebug("subject lookup failed for %q: %v", subject, err)
		return nil
	}
	return entries
}

// StoredCount returns the number of persisted knowledge entries.
func (b *Base) StoredCount(ctx context.Context) int64 {
	n, err := b.store.Count(ctx)
	if err != nil {
		return 0
	}
	return n
}

// Close releases the underlying store.
func (b *Base) Close() error {
	return b.store.Close()
}
