// Package types defines the shared data model for the vlearn learning
// pipeline: validation events submitted by host systems, the patterns and
// knowledge derived from them, and the advisory insights returned.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Knowledge entry types accumulated by the knowledge base.
const (
	KnowledgeSuccessfulPattern = "successful_pattern"
	KnowledgeFailurePattern    = "failure_pattern"
	KnowledgeSystemBehavior    = "system_behavior"
)

// ValidationEvent is one observed outcome of a host system's validation
// operation. Events are immutable once normalized; the pipeline consumes
// each event exactly once and retains it only inside derived records.
type ValidationEvent struct {
	EventID      string                 `json:"event_id"`
	EventType    string                 `json:"event_type"`
	Context      map[string]interface{} `json:"context,omitempty"`
	Result       map[string]interface{} `json:"result,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	SourceSystem string                 `json:"source_system"`
	Success      bool                   `json:"success"`
	Confidence   float64                `json:"confidence"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Normalize repairs a partially populated event in place and reports whether
// the result is usable. Missing identifiers and timestamps get safe defaults;
// confidence is clamped to [0,1]. An event without an event type cannot be
// grouped into a pattern and is reported unusable.
func (e *ValidationEvent) Normalize() bool {
	if e == nil {
		return false
	}
	if e.EventType == "" {
		return false
	}
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.SourceSystem == "" {
		e.SourceSystem = "unknown"
	}
	e.Confidence = ClampConfidence(e.Confidence)
	return true
}

// ClampConfidence clamps a confidence score to [0,1]. NaN collapses to 0.
func ClampConfidence(c float64) float64 {
	if c != c { // NaN
		return 0
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// ValidationPattern is an aggregated, context-keyed summary of similar
// events. SuccessRate is a usage-weighted running average; UsageCount only
// grows; updates merge into the existing record rather than replacing it.
type ValidationPattern struct {
	PatternID        string                 `json:"pattern_id"`
	PatternType      string                 `json:"pattern_type"`
	ContextSignature string                 `json:"context_signature"`
	SuccessRate      float64                `json:"success_rate"`
	UsageCount       int64                  `json:"usage_count"`
	FirstSeen        time.Time              `json:"first_seen"`
	LastSeen         time.Time              `json:"last_seen"`
	Payload          map[string]interface{} `json:"payload,omitempty"`
}

// Merge folds one more observation into the pattern. The running success
// rate stays a weighted average over every contributing event, so merge
// order never changes the converged value.
func (p *ValidationPattern) Merge(success bool, seen time.Time) {
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	n := float64(p.UsageCount)
	p.SuccessRate = (p.SuccessRate*n + outcome) / (n + 1)
	p.UsageCount++
	if p.FirstSeen.IsZero() || seen.Before(p.FirstSeen) {
		p.FirstSeen = seen
	}
	if seen.After(p.LastSeen) {
		p.LastSeen = seen
	}
}

// Recommendation is one advisory record inside ValidationInsights.
type Recommendation struct {
	Kind       string  `json:"kind"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
}

// Prediction is one numeric forecast inside ValidationInsights.
type Prediction struct {
	Kind       string  `json:"kind"`
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
	SampleSize int     `json:"sample_size"`
}

// ValidationInsights is the advisory output of the learning pipeline.
// Nothing in it is binding on the caller, and a nil insights value is a
// normal, non-error outcome.
type ValidationInsights struct {
	InsightType     string           `json:"insight_type"`
	Confidence      float64          `json:"confidence"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Predictions     []Prediction     `json:"predictions,omitempty"`
	MatchedPatterns []string         `json:"matched_patterns,omitempty"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// KnowledgeEntry is a longer-lived, subject-indexed belief derived from
// repeated events. Confidence is an evidence-count-weighted running average
// and never jumps discontinuously from a single event.
type KnowledgeEntry struct {
	EntryID       string                 `json:"entry_id"`
	KnowledgeType string                 `json:"knowledge_type"`
	Subject       string                 `json:"subject"`
	Content       map[string]interface{} `json:"content,omitempty"`
	Confidence    float64                `json:"confidence"`
	EvidenceCount int64                  `json:"evidence_count"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// HealthCounters aggregates the coordinator's lifetime counters.
type HealthCounters struct {
	Submitted      int64 `json:"submitted"`
	Processed      int64 `json:"processed"`
	DroppedFull    int64 `json:"dropped_queue_full"`
	DroppedUnsafe  int64 `json:"dropped_unsafe"`
	DroppedInvalid int64 `json:"dropped_invalid"`
	Failures       int64 `json:"failures"`
	Panics         int64 `json:"panics"`
}

// HealthStatus is the coordinator's always-available snapshot.
type HealthStatus struct {
	Mode          string         `json:"mode"`
	State         string         `json:"state"`
	SafeToLearn   bool           `json:"safe_to_learn"`
	QueueDepth    int            `json:"queue_depth"`
	QueueCapacity int            `json:"queue_capacity"`
	Counters      HealthCounters `json:"counters"`
	LastActivity  time.Time      `json:"last_activity"`
	StoreCounts   map[string]int64 `json:"store_counts,omitempty"`
}
