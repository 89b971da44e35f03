// Package analytics keeps a bounded in-memory history of processed
// validation events, persists them for trend rollups, and answers advisory
// questions: insights for a context, outcome predictions, and per-source
// trend windows. Every answer is optional; a nil result is a normal outcome.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vlearn/internal/logging"
	"vlearn/internal/store"
	"vlearn/internal/types"
)

// minSampleSize is the smallest history a context needs before any insight
// is generated for it.
const minSampleSize = 5

// minPredictionSamples is the smallest history a context needs before an
// outcome prediction is offered.
const minPredictionSamples = 3

// maxInsightConfidence caps confidence so insights never claim certainty.
const maxInsightConfidence = 0.95

// historyEntry is one processed event held in the in-memory window.
type historyEntry struct {
	Event      types.ValidationEvent
	Processing time.Duration
}

// TrendReport aggregates per-source trends over the standard windows.
type TrendReport struct {
	Last24h     []store.SourceTrend `json:"last_24h"`
	Last7d      []store.SourceTrend `json:"last_7d"`
	AllTime     []store.SourceTrend `json:"all_time"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Service is the analytics layer. It exclusively owns its event store.
type Service struct {
	store      *store.EventStore
	prediction bool

	// The history is a ring buffer: head is the next write slot, count the
	// number of live entries, and the oldest entry is overwritten once the
	// ring is full. Recording stays O(1) per event.
	mu      sync.Mutex
	history []historyEntry
	head    int
	count   int
}

// NewService creates the analytics service over the given event store.
func NewService(es *store.EventStore, historyCap int, prediction bool) *Service {
	if historyCap <= 0 {
		historyCap = 1000
	}
	return &Service{
		store:      es,
		prediction: prediction,
		history:    make([]historyEntry, historyCap),
	}
}

// RecordEvent appends the event to the in-memory history and persists it.
// The history update always happens; only the persistence error is returned
// so the caller can track storage health.
func (s *Service) RecordEvent(ctx context.Context, event types.ValidationEvent, processing time.Duration) error {
	s.mu.Lock()
	s.history[s.head] = historyEntry{Event: event, Processing: processing}
	s.head = (s.head + 1) % len(s.history)
	if s.count < len(s.history) {
		s.count++
	}
	s.mu.Unlock()

	if err := s.store.InsertEvent(ctx, event, processing); err != nil {
		return fmt.Errorf("failed to persist event %s: %w", event.EventID, err)
	}
	return nil
}

// RecentEvents returns up to limit events from the in-memory history, most
// recent first.
func (s *Service) RecentEvents(limit int) []types.ValidationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > s.count {
		limit = s.count
	}
	events := make([]types.ValidationEvent, 0, limit)
	idx := s.head
	for i := 0; i < limit; i++ {
		if idx--; idx < 0 {
			idx = len(s.history) - 1
		}
		events = append(events, s.history[idx].Event)
	}
	return events
}

// GenerateInsights builds advisory insights for a validation context. The
// context's "event_type" (and optional "source_system") select the history
// to learn from; without an event type, or below the minimum sample size,
// there is nothing trustworthy to say and the result is nil.
func (s *Service) GenerateInsights(ctx context.Context, queryContext map[string]interface{}) *types.ValidationInsights {
	eventType := types.ExtractString(queryContext["event_type"])
	if eventType == "" {
		return nil
	}
	sourceSystem := types.ExtractString(queryContext["source_system"])

	events, err := s.store.SimilarEvents(ctx, eventType, sourceSystem, 100)
	if err != nil {
		logging.AnalyticsDebug("similar events lookup failed: %v", err)
		return nil
	}
	if len(events) < minSampleSize {
		return nil
	}

	successRate, avgConfidence := summarize(events)
	confidence := sampleConfidence(len(events))

	insights := &types.ValidationInsights{
		InsightType: "historical_outcomes",
		Confidence:  confidence,
		GeneratedAt: time.Now().UTC(),
	}

	switch {
	case successRate < 0.4:
		insights.Recommendations = append(insights.Recommendations, types.Recommendation{
			Kind:       "caution",
			Message:    fmt.Sprintf("low success rate (%.0f%%) for %s - proceed with caution", successRate*100, eventType),
			Confidence: confidence,
		})
	case successRate >= 0.8:
		insights.Recommendations = append(insights.Recommendations, types.Recommendation{
			Kind:       "reliable",
			Message:    fmt.Sprintf("%s has been reliable (%.0f%% success over %d events)", eventType, successRate*100, len(events)),
			Confidence: confidence,
		})
	default:
		insights.Recommendations = append(insights.Recommendations, types.Recommendation{
			Kind:       "mixed",
			Message:    fmt.Sprintf("mixed outcomes (%.0f%% success) for %s - verify results", successRate*100, eventType),
			Confidence: confidence,
		})
	}
	if avgConfidence < 0.5 {
		insights.Recommendations = append(insights.Recommendations, types.Recommendation{
			Kind:       "low_confidence",
			Message:    fmt.Sprintf("past validations of %s reported low confidence (avg %.2f)", eventType, avgConfidence),
			Confidence: confidence,
		})
	}

	if s.prediction {
		insights.Predictions = append(insights.Predictions,
			types.Prediction{
				Kind:       "success_probability",
				Value:      successRate,
				Confidence: confidence,
				SampleSize: len(events),
			},
			types.Prediction{
				Kind:       "expected_confidence",
				Value:      avgConfidence,
				Confidence: confidence,
				SampleSize: len(events),
			})
	}

	logging.AnalyticsDebug("insights for %s: %d samples, success=%.2f", eventType, len(events), successRate)
	return insights
}

// PredictOutcome forecasts the success probability for a context. Fewer
// than three comparable events, or prediction disabled, yields nil.
func (s *Service) PredictOutcome(ctx context.Context, queryContext map[string]interface{}) *types.Prediction {
	if !s.prediction {
		return nil
	}
	eventType := types.ExtractString(queryContext["event_type"])
	if eventType == "" {
		return nil
	}
	sourceSystem := types.ExtractString(queryContext["source_system"])

	events, err := s.store.SimilarEvents(ctx, eventType, sourceSystem, 100)
	if err != nil {
		logging.AnalyticsDebug("prediction lookup failed: %v", err)
		return nil
	}
	if len(events) < minPredictionSamples {
		return nil
	}

	successRate, _ := summarize(events)
	return &types.Prediction{
		Kind:       "success_probability",
		Value:      successRate,
		Confidence: sampleConfidence(len(events)),
		SampleSize: len(events),
	}
}

// AnalyzeTrends rolls up per-source trends over 24h, 7d, and all time.
func (s *Service) AnalyzeTrends(ctx context.Context) (TrendReport, error) {
	now := time.Now().UTC()
	report := TrendReport{GeneratedAt: now}

	var err error
	if report.Last24h, err = s.store.TrendsSince(ctx, now.Add(-24*time.Hour)); err != nil {
		return report, fmt.Errorf("failed to aggregate 24h trends: %w", err)
	}
	if report.Last7d, err = s.store.TrendsSince(ctx, now.Add(-7*24*time.Hour)); err != nil {
		return report, fmt.Errorf("failed to aggregate 7d trends: %w", err)
	}
	if report.AllTime, err = s.store.TrendsSince(ctx, time.Time{}); err != nil {
		return report, fmt.Errorf("failed to aggregate all-time trends: %w", err)
	}
	return report, nil
}

// StoredCount returns the number of persisted events.
func (s *Service) StoredCount(ctx context.Context) int64 {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0
	}
	return n
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}

// summarize returns the success rate and average confidence of a sample.
func summarize(events []store.StoredEvent) (successRate, avgConfidence float64) {
	if len(events) == 0 {
		return 0, 0
	}
	successes := 0
	total := 0.0
	for _, e := range events {
		if e.Success {
			successes++
		}
		total += e.Confidence
	}
	n := float64(len(events))
	return float64(successes) / n, total / n
}

// sampleConfidence scales insight confidence with sample size, saturating
// well below certainty.
func sampleConfidence(n int) float64 {
	c := float64(n) / (float64(n) + 5.0)
	if c > maxInsightConfidence {
		c = maxInsightConfidence
	}
	return c
}
