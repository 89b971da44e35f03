package knowledge

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"vlearn/internal/store"
	"vlearn/internal/types"
)

func newTestBase(t *testing.T) *Base {
	t.Helper()
	ks, err := store.NewKnowledgeStore(filepath.Join(t.TempDir(), "knowledge.db"))
	if err != nil {
		t.Fatalf("opening knowledge store: %v", err)
	}
	b := NewBase(ks)
	t.Cleanup(func() { b.Close() })
	return b
}

func observe(t *testing.T, b *Base, success bool, confidence float64) {
	t.Helper()
	e := types.ValidationEvent{
		EventType:    "evidence_validation",
		SourceSystem: "test_host",
		Success:      success,
		Confidence:   confidence,
		Timestamp:    time.Now().UTC(),
	}
	e.Normalize()
	if err := b.ObserveEvent(context.Background(), e); err != nil {
		t.Fatalf("observing event: %v", err)
	}
}

func TestObserveEvent_ConfidentSuccess(t *testing.T) {
	b := newTestBase(t)
	observe(t, b, true, 0.9)

	entries := b.EntriesForSubject(context.Background(), "evidence_validation/test_host", 10)
	if len(entries) != 1 {
		t.Fatalf("subject entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.KnowledgeType != types.KnowledgeSuccessfulPattern {
		t.Errorf("knowledge type = %q, want successful_pattern", e.KnowledgeType)
	}
	if e.EvidenceCount != 1 {
		t.Errorf("evidence count = %d, want 1", e.EvidenceCount)
	}
	if math.Abs(e.Confidence-0.9) > 1e-9 {
		t.Errorf("confidence = %v, want 0.9", e.Confidence)
	}

	// Every event also updates the source behavior profile.
	behavior := b.EntriesForSubject(context.Background(), "test_host", 10)
	if len(behavior) != 1 || behavior[0].KnowledgeType != types.KnowledgeSystemBehavior {
		t.Errorf("expected one system_behavior entry, got %+v", behavior)
	}
}

func TestObserveEvent_LowConfidenceSuccessIsNotAPattern(t *testing.T) {
	b := newTestBase(t)
	observe(t, b, true, 0.5)

	entries := b.EntriesForSubject(context.Background(), "evidence_validation/test_host", 10)
	if len(entries) != 0 {
		t.Errorf("low-confidence success must not create a pattern entry, got %+v", entries)
	}
	if got := b.StoredCount(context.Background()); got != 1 {
		t.Errorf("stored entries = %d, want 1 (behavior only)", got)
	}
}

func TestObserveEvent_Failure(t *testing.T) {
	b := newTestBase(t)
	observe(t, b, false, 0.9)

	entries := b.EntriesForSubject(context.Background(), "evidence_validation/test_host", 10)
	if len(entries) != 1 {
		t.Fatalf("subject entries = %d, want 1", len(entries))
	}
	if entries[0].KnowledgeType != types.KnowledgeFailurePattern {
		t.Errorf("knowledge type = %q, want failure_pattern", entries[0].KnowledgeType)
	}
}

func TestReinforce_WeightedAverage(t *testing.T) {
	b := newTestBase(t)
	// Three confident successes, then one less confident.
	for i := 0; i < 3; i++ {
		observe(t, b, true, 0.9)
	}
	observe(t, b, true, 0.7)

	entries := b.EntriesForSubject(context.Background(), "evidence_validation/test_host", 10)
	if len(entries) != 1 {
		t.Fatalf("subject entries = %d, want 1 merged entry", len(entries))
	}
	e := entries[0]
	if e.EvidenceCount != 4 {
		t.Errorf("evidence count = %d, want 4", e.EvidenceCount)
	}
	want := (0.9*3 + 0.7) / 4
	if math.Abs(e.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v (single events must not jump it)", e.Confidence, want)
	}
}

func TestEntryID_Stable(t *testing.T) {
	a := EntryID(types.KnowledgeSuccessfulPattern, "x/y")
	if a != EntryID(types.KnowledgeSuccessfulPattern, "x/y") {
		t.Error("entry id must be deterministic")
	}
	if a == EntryID(types.KnowledgeFailurePattern, "x/y") {
		t.Error("knowledge type must contribute to the id")
	}
}

func TestEntriesForSubject_Empty(t *testing.T) {
	b := newTestBase(t)
	if entries := b.EntriesForSubject(context.Background(), "never_seen", 10); len(entries) != 0 {
		t.Errorf("unknown subject entries = %d, want 0", len(entries))
	}
}
