package types

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestValidationEvent_Normalize(t *testing.T) {
	e := &ValidationEvent{EventType: "evidence_validation", Confidence: 1.7}
	if !e.Normalize() {
		t.Fatal("expected normalize to succeed")
	}
	if e.EventID == "" {
		t.Error("expected generated event id")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected default timestamp")
	}
	if e.SourceSystem != "unknown" {
		t.Errorf("SourceSystem = %q, want unknown", e.SourceSystem)
	}
	if e.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want clamped 1.0", e.Confidence)
	}
}

func TestValidationEvent_Normalize_Rejects(t *testing.T) {
	var nilEvent *ValidationEvent
	if nilEvent.Normalize() {
		t.Error("nil event must be rejected")
	}
	e := &ValidationEvent{Confidence: 0.5}
	if e.Normalize() {
		t.Error("event with no type must be rejected")
	}
}

func TestClampConfidence(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-1, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{2.3, 1},
		{math.NaN(), 0},
	}
	for _, tc := range cases {
		if got := ClampConfidence(tc.in); got != tc.want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestValidationPattern_Merge_WeightedAverage(t *testing.T) {
	p := &ValidationPattern{}
	now := time.Now()
	outcomes := []bool{true, true, false, true, false, true, true}
	for i, s := range outcomes {
		p.Merge(s, now.Add(time.Duration(i)*time.Second))
	}
	if p.UsageCount != int64(len(outcomes)) {
		t.Errorf("UsageCount = %d, want %d", p.UsageCount, len(outcomes))
	}
	want := 5.0 / 7.0
	if math.Abs(p.SuccessRate-want) > 1e-9 {
		t.Errorf("SuccessRate = %v, want %v", p.SuccessRate, want)
	}
	if !p.LastSeen.After(p.FirstSeen) {
		t.Error("LastSeen should trail FirstSeen")
	}
}

// Merge order must never change the converged success rate.
func TestValidationPattern_Merge_Commutative(t *testing.T) {
	outcomes := make([]bool, 50)
	successes := 0
	for i := range outcomes {
		outcomes[i] = i%3 != 0
		if outcomes[i] {
			successes++
		}
	}
	want := float64(successes) / float64(len(outcomes))

	now := time.Now()
	for trial := 0; trial < 5; trial++ {
		shuffled := make([]bool, len(outcomes))
		copy(shuffled, outcomes)
		rng := rand.New(rand.NewSource(int64(trial)))
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		p := &ValidationPattern{}
		for _, s := range shuffled {
			p.Merge(s, now)
		}
		if math.Abs(p.SuccessRate-want) > 1e-9 {
			t.Fatalf("trial %d: SuccessRate = %v, want %v", trial, p.SuccessRate, want)
		}
	}
}

func TestExtractFloat(t *testing.T) {
	if v, ok := ExtractFloat(0.83); !ok || v != 0.83 {
		t.Errorf("ExtractFloat(float64) = %v, %v", v, ok)
	}
	if v, ok := ExtractFloat(int64(4)); !ok || v != 4 {
		t.Errorf("ExtractFloat(int64) = %v, %v", v, ok)
	}
	if _, ok := ExtractFloat("0.83"); ok {
		t.Error("strings are not numeric")
	}
}

func TestExtractBool(t *testing.T) {
	if v, ok := ExtractBool(true); !ok || !v {
		t.Error("ExtractBool(true) failed")
	}
	if v, ok := ExtractBool("passed"); !ok || !v {
		t.Error("ExtractBool(passed) failed")
	}
	if v, ok := ExtractBool("failed"); !ok || v {
		t.Error("ExtractBool(failed) failed")
	}
	if _, ok := ExtractBool(1); ok {
		t.Error("ints are not booleans")
	}
}
