package patterns

import (
	"math"
	"strings"
	"unicode"

	"vlearn/internal/types"
)

// Scorer scores the similarity of two validation contexts in [0,1]. The
// strategy is pluggable so token overlap can later be swapped for a vector
// implementation without changing the pattern-memory contract.
type Scorer interface {
	Score(a, b map[string]interface{}) float64
	Name() string
}

// TokenOverlapScorer is the default strategy: Jaccard overlap of the token
// sets drawn from context keys and values.
type TokenOverlapScorer struct{}

// Name identifies the strategy.
func (TokenOverlapScorer) Name() string { return "token_overlap" }

// Score computes |A ∩ B| / |A ∪ B| over context tokens.
func (TokenOverlapScorer) Score(a, b map[string]interface{}) float64 {
	ta := contextTokens(a)
	tb := contextTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// CosineScorer is the alternative strategy: cosine similarity over
// term-frequency vectors of the same token stream.
type CosineScorer struct{}

// Name identifies the strategy.
func (CosineScorer) Name() string { return "cosine_tf" }

// Score computes cosine similarity between term-frequency vectors.
func (CosineScorer) Score(a, b map[string]interface{}) float64 {
	ta := contextTokens(a)
	tb := contextTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for tok, ca := range ta {
		normA += float64(ca * ca)
		if cb, ok := tb[tok]; ok {
			dot += float64(ca * cb)
		}
	}
	for _, cb := range tb {
		normB += float64(cb * cb)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// contextTokens builds a term-frequency map from a context's keys and
// values. Tokens are lowercased runs of letters and digits.
func contextTokens(context map[string]interface{}) map[string]int {
	tokens := make(map[string]int)
	for k, v := range context {
		addTokens(tokens, k)
		addTokens(tokens, types.ExtractString(v))
	}
	return tokens
}

func addTokens(dst map[string]int, s string) {
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if tok != "" {
			dst[tok]++
		}
	}
}
