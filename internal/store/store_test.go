package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vlearn/internal/types"
)

func TestPatternStore_RoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "patterns.db")
	s, err := NewPatternStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	p := types.ValidationPattern{
		PatternID:        "pat-1",
		PatternType:      "evidence_validation",
		ContextSignature: "sig-abc",
		SuccessRate:      0.75,
		UsageCount:       4,
		FirstSeen:        now.Add(-time.Hour),
		LastSeen:         now,
		Payload:          map[string]interface{}{"component": "X"},
	}
	require.NoError(t, s.UpsertPattern(ctx, p))

	got, found, err := s.GetPattern(ctx, "pat-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, p.PatternID, got.PatternID)
	assert.Equal(t, p.ContextSignature, got.ContextSignature)
	assert.InDelta(t, 0.75, got.SuccessRate, 1e-9)
	assert.Equal(t, int64(4), got.UsageCount)
	assert.Equal(t, "X", got.Payload["component"])

	// Upsert merges by replacing the aggregate, not duplicating the row.
	p.SuccessRate = 0.8
	p.UsageCount = 5
	require.NoError(t, s.UpsertPattern(ctx, p))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, found, err = s.GetPattern(ctx, "pat-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(5), got.UsageCount)
}

func TestPatternStore_GetMissing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "patterns.db")
	s, err := NewPatternStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.GetPattern(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPatternStore_GetBySignature(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "patterns.db")
	s, err := NewPatternStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for i, rate := range []float64{0.2, 0.9, 0.5} {
		require.NoError(t, s.UpsertPattern(ctx, types.ValidationPattern{
			PatternID:        fmt.Sprintf("pat-%d", i),
			PatternType:      "t",
			ContextSignature: "shared-sig",
			SuccessRate:      rate,
			UsageCount:       int64(i + 1),
		}))
	}

	got, err := s.GetBySignature(ctx, "shared-sig")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 0.9, got[0].SuccessRate, 1e-9, "results ordered by success rate desc")
}

func TestEventStore_InsertAndSimilar(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "analytics.db")
	s, err := NewEventStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		e := types.ValidationEvent{
			EventID:      fmt.Sprintf("ev-%d", i),
			EventType:    "evidence_validation",
			SourceSystem: "checker",
			Success:      i%2 == 0,
			Confidence:   0.8,
			Timestamp:    base.Add(time.Duration(i) * time.Second),
			Context:      map[string]interface{}{"component": "X"},
		}
		require.NoError(t, s.InsertEvent(ctx, e, 3*time.Millisecond))
	}
	// A different event type must not show up in similarity queries.
	require.NoError(t, s.InsertEvent(ctx, types.ValidationEvent{
		EventID: "other", EventType: "env_probe", SourceSystem: "probe",
		Timestamp: base,
	}, time.Millisecond))

	events, err := s.SimilarEvents(ctx, "evidence_validation", "checker", 10)
	require.NoError(t, err)
	assert.Len(t, events, 5)
	assert.Equal(t, "evidence_validation", events[0].EventType)
	assert.Equal(t, "X", events[0].Context["component"])

	// Most recent first.
	assert.True(t, !events[0].Timestamp.Before(events[len(events)-1].Timestamp))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestEventStore_Trends(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "analytics.db")
	s, err := NewEventStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)

	insert := func(id string, ts time.Time, success bool, conf float64) {
		require.NoError(t, s.InsertEvent(ctx, types.ValidationEvent{
			EventID: id, EventType: "t", SourceSystem: "sysA",
			Success: success, Confidence: conf, Timestamp: ts,
		}, 2*time.Millisecond))
	}
	insert("e1", now, true, 0.9)
	insert("e2", now, false, 0.3)
	insert("e3", old, true, 0.5)

	all, err := s.TrendsSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(3), all[0].Events)
	assert.InDelta(t, 2.0/3.0, all[0].SuccessRate, 1e-9)

	recent, err := s.TrendsSince(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(2), recent[0].Events)
	assert.InDelta(t, 0.5, recent[0].SuccessRate, 1e-9)
}

func TestKnowledgeStore_UpsertAndQuery(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "knowledge.db")
	s, err := NewKnowledgeStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	e := types.KnowledgeEntry{
		EntryID:       "k1",
		KnowledgeType: types.KnowledgeSystemBehavior,
		Subject:       "checker",
		Content:       map[string]interface{}{"observed_success_rate": 0.7},
		Confidence:    0.6,
		EvidenceCount: 3,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.UpsertEntry(ctx, e))

	got, found, err := s.GetEntry(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.KnowledgeSystemBehavior, got.KnowledgeType)
	assert.Equal(t, int64(3), got.EvidenceCount)

	// Second upsert replaces the aggregate.
	e.Confidence = 0.65
	e.EvidenceCount = 4
	require.NoError(t, s.UpsertEntry(ctx, e))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := s.EntriesForSubject(ctx, "checker", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.InDelta(t, 0.65, entries[0].Confidence, 1e-9)

	// Unknown subject is a safe empty read.
	empty, err := s.EntriesForSubject(ctx, "unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
