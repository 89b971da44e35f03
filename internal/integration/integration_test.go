package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"vlearn/internal/config"
	"vlearn/internal/learning"
)

func testCapability(t *testing.T) *Capability {
	t.Helper()
	cfg := config.Default()
	cfg.StoragePath = t.TempDir()
	c := learning.NewCoordinator(cfg)
	t.Cleanup(c.Shutdown)
	return &Capability{SourceSystem: "host_under_test", Coordinator: c}
}

func TestExtractOutcome(t *testing.T) {
	tests := []struct {
		name           string
		result         interface{}
		err            error
		wantSuccess    bool
		wantConfidence float64
	}{
		{"error is failure", map[string]interface{}{"success": true}, errors.New("boom"), false, 0.9},
		{"bool result", true, nil, true, 0.9},
		{"bool failure", false, nil, false, 0.9},
		{"explicit keys", map[string]interface{}{"success": false, "confidence": 0.8}, nil, false, 0.8},
		{"string success key", map[string]interface{}{"success": "passed"}, nil, true, 0.5},
		{"confidence clamped", map[string]interface{}{"confidence": 7.0}, nil, true, 1.0},
		{"opaque result", struct{}{}, nil, true, 0.5},
		{"nil result", nil, nil, true, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			success, confidence := ExtractOutcome(tt.result, tt.err)
			if success != tt.wantSuccess {
				t.Errorf("success = %v, want %v", success, tt.wantSuccess)
			}
			if confidence != tt.wantConfidence {
				t.Errorf("confidence = %v, want %v", confidence, tt.wantConfidence)
			}
		})
	}
}

func TestCapability_LearnFromValidationResult(t *testing.T) {
	capability := testCapability(t)

	capability.LearnFromValidationResult("schema_check",
		map[string]interface{}{"table": "users"},
		map[string]interface{}{"success": true, "confidence": 0.9}, nil)

	status := capability.Coordinator.HealthStatus()
	if status.Counters.Submitted != 1 {
		t.Fatalf("submitted = %d, want 1", status.Counters.Submitted)
	}
}

func TestCapability_CustomExtractor(t *testing.T) {
	capability := testCapability(t)
	capability.Extract = func(result interface{}, err error) (bool, float64) {
		return false, 0.25
	}

	capability.LearnFromValidationResult("schema_check", nil, true, nil)
	if got := capability.Coordinator.HealthStatus().Counters.Submitted; got != 1 {
		t.Fatalf("submitted = %d, want 1", got)
	}
}

func TestWrapValidator_ResultUntouched(t *testing.T) {
	capability := testCapability(t)
	wantErr := errors.New("validation failed")
	inner := func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"checked": input["field"]}, wantErr
	}

	wrapped := WrapValidatorWith("field_check", inner, capability)
	result, err := wrapped(context.Background(), map[string]interface{}{"field": "email"})

	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want the validator's own error", err)
	}
	if result["checked"] != "email" {
		t.Errorf("result = %v, want the validator's own result", result)
	}
	if got := capability.Coordinator.HealthStatus().Counters.Submitted; got != 1 {
		t.Errorf("submitted = %d, want 1", got)
	}
}

func TestWrapValidator_LearningPanicsContained(t *testing.T) {
	capability := testCapability(t)
	capability.Extract = func(result interface{}, err error) (bool, float64) {
		panic("extractor bug")
	}

	wrapped := WrapValidatorWith("panicky", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	}, capability)

	result, err := wrapped(context.Background(), nil)
	if err != nil {
		t.Errorf("err = %v, learning failures must not surface", err)
	}
	if result == nil || result["ok"] != true {
		t.Errorf("result = %v, want the validator's own result", result)
	}
}

func TestCapability_Insights(t *testing.T) {
	capability := testCapability(t)

	for i := 0; i < 10; i++ {
		capability.LearnFromValidationResult("evidence_validation",
			map[string]interface{}{"component": "X"},
			map[string]interface{}{"success": i < 7, "confidence": 0.9}, nil)
	}
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if capability.Coordinator.HealthStatus().Counters.Processed == 10 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	insights := capability.ValidationInsights(context.Background(), map[string]interface{}{
		"event_type":    "evidence_validation",
		"source_system": "host_under_test",
		"component":     "X",
	})
	if insights == nil {
		t.Fatal("expected insights after ten observations")
	}
	if len(insights.MatchedPatterns) == 0 {
		t.Error("expected matched patterns")
	}
}
