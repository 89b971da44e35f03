package patterns

import (
	"math"
	"testing"
)

func TestTokenOverlap_Score(t *testing.T) {
	scorer := TokenOverlapScorer{}

	a := map[string]interface{}{"component": "X", "operation": "upgrade"}
	if got := scorer.Score(a, a); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("identical contexts score %v, want 1.0", got)
	}

	b := map[string]interface{}{"service": "billing", "zone": "eu"}
	if got := scorer.Score(a, b); got != 0 {
		t.Errorf("disjoint contexts score %v, want 0", got)
	}

	// Shares component/x/operation out of {component, x, operation,
	// upgrade, install}.
	c := map[string]interface{}{"component": "X", "operation": "install"}
	got := scorer.Score(a, c)
	if math.Abs(got-0.6) > 1e-9 {
		t.Errorf("partial overlap score = %v, want 0.6", got)
	}
}

func TestTokenOverlap_EmptyContexts(t *testing.T) {
	scorer := TokenOverlapScorer{}
	full := map[string]interface{}{"component": "X"}
	if scorer.Score(nil, full) != 0 || scorer.Score(full, nil) != 0 {
		t.Error("empty side must score 0")
	}
	if scorer.Score(nil, nil) != 0 {
		t.Error("two empty contexts must score 0")
	}
}

func TestCosine_Score(t *testing.T) {
	scorer := CosineScorer{}

	a := map[string]interface{}{"component": "X", "operation": "upgrade"}
	if got := scorer.Score(a, a); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("identical contexts score %v, want 1.0", got)
	}
	if got := scorer.Score(a, map[string]interface{}{"zone": "eu"}); got != 0 {
		t.Errorf("disjoint contexts score %v, want 0", got)
	}

	partial := scorer.Score(a, map[string]interface{}{"component": "X"})
	if partial <= 0 || partial >= 1 {
		t.Errorf("partial overlap score = %v, want in (0,1)", partial)
	}
}

func TestScorers_SymmetricAndBounded(t *testing.T) {
	a := map[string]interface{}{"component": "X", "operation": "upgrade", "depth": 3}
	b := map[string]interface{}{"component": "X", "phase": "apply"}
	for _, scorer := range []Scorer{TokenOverlapScorer{}, CosineScorer{}} {
		ab := scorer.Score(a, b)
		ba := scorer.Score(b, a)
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("%s: asymmetric score %v vs %v", scorer.Name(), ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Errorf("%s: score %v outside [0,1]", scorer.Name(), ab)
		}
	}
}

func TestContextTokens_NumericAndMixedValues(t *testing.T) {
	tokens := contextTokens(map[string]interface{}{
		"retry-count": 3,
		"path":        "cmd/server",
	})
	for _, want := range []string{"retry", "count", "3", "path", "cmd", "server"} {
		if tokens[want] == 0 {
			t.Errorf("missing token %q in %v", want, tokens)
		}
	}
}
