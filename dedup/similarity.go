package dedup

import (
	"context"
	"math"

	"github.com/c360studio/casegen/testcase"
)

// cosine computes cosine similarity between two vectors. Mismatched lengths
// and zero vectors compare as 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// DedupeCasesByEmbedding removes semantically duplicate test cases, keeping
// the first occurrence of each duplicate group. Safe no-op on 0 or 1 items
// and when no embedder is configured.
func (e *Engine) DedupeCasesByEmbedding(ctx context.Context, cases []testcase.TestCase) []testcase.TestCase {
	if len(cases) <= 1 {
		return cases
	}
	texts := make([]string, len(cases))
	for i, tc := range cases {
		texts[i] = tc.EmbeddingText()
	}
	keep := e.DedupeCases(ctx, texts)
	if len(keep) == len(cases) {
		return cases
	}
	result := make([]testcase.TestCase, 0, len(keep))
	for _, i := range keep {
		result = append(result, cases[i])
	}
	e.logger.Info("Embedding dedup", "before", len(cases), "after", len(result))
	return result
}

// RemoveNearDuplicateTitles removes test cases whose normalized titles are
// equal to, or contained in, an earlier case's title. The more detailed case
// of each pair wins its slot; kept items preserve their original order.
// Idempotent: running it on its own output removes nothing further.
func RemoveNearDuplicateTitles(cases []testcase.TestCase) []testcase.TestCase {
	if len(cases) <= 1 {
		return cases
	}
	result := make([]testcase.TestCase, 0, len(cases))
	for _, tc := range cases {
		key := NormalizeTitle(tc.Scenario)
		found := false
		for i, existing := range result {
			if titlesNearDuplicate(key, NormalizeTitle(existing.Scenario)) {
				if tc.Detail() > existing.Detail() {
					result[i] = tc
				}
				found = true
				break
			}
		}
		if !found {
			result = append(result, tc)
		}
	}
	return result
}
