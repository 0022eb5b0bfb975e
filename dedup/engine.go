package dedup

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// DefaultThreshold is the cosine similarity at or above which two items are
// treated as duplicates.
const DefaultThreshold = 0.90

// Embedding models. Scenario titles are short, so they use the larger model;
// full test cases carry enough text for the small one.
const (
	CaseEmbeddingModel     = "text-embedding-3-small"
	ScenarioEmbeddingModel = "text-embedding-3-large"
)

// Embedder fetches embedding vectors for a batch of texts. Result order
// matches input order.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Engine deduplicates scenarios and test cases. Without an Embedder the
// semantic passes are passthroughs; lexical title dedup is independent of it.
type Engine struct {
	embedder  Embedder
	threshold float64
	logger    *slog.Logger

	mu     sync.Mutex
	cache  map[string][]float32
	warned bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmbedder sets the embedding backend. A nil embedder leaves semantic
// dedup disabled.
func WithEmbedder(e Embedder) Option {
	return func(eng *Engine) {
		eng.embedder = e
	}
}

// WithThreshold overrides the duplicate similarity threshold.
func WithThreshold(t float64) Option {
	return func(eng *Engine) {
		eng.threshold = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) {
		eng.logger = l
	}
}

// NewEngine creates a deduplication engine. Embedding vectors are cached by
// normalized text for the life of the engine; long-lived callers take a
// run-scoped cache via NewRun.
func NewEngine(opts ...Option) *Engine {
	eng := &Engine{
		threshold: DefaultThreshold,
		logger:    slog.Default(),
		cache:     make(map[string][]float32),
	}
	for _, opt := range opts {
		opt(eng)
	}
	return eng
}

// Semantic reports whether embedding-based dedup is available.
func (e *Engine) Semantic() bool {
	return e.embedder != nil
}

// NewRun returns an engine sharing this engine's embedder, threshold, and
// logger but with a fresh embedding cache, so a long-lived engine can hand
// out run-scoped caches.
func (e *Engine) NewRun() *Engine {
	return &Engine{
		embedder:  e.embedder,
		threshold: e.threshold,
		logger:    e.logger,
		cache:     make(map[string][]float32),
	}
}

// DedupeScenarios removes semantically duplicate scenario titles. When two
// titles embed within the threshold, the shorter (more concise) original is
// kept. Order-preserving over kept items; returns the input unchanged when no
// embedder is configured. Never fails: embedding errors degrade to the
// lexical-prefiltered list.
func (e *Engine) DedupeScenarios(ctx context.Context, scenarios []string) []string {
	if len(scenarios) <= 1 {
		return scenarios
	}
	if e.embedder == nil {
		e.warnDegraded()
		return scenarios
	}

	// Exact-match prefilter on normalized text.
	seen := make(map[string]bool, len(scenarios))
	uniqueOrig := make([]string, 0, len(scenarios))
	uniqueNorm := make([]string, 0, len(scenarios))
	for _, orig := range scenarios {
		norm := NormalizeScenario(orig)
		if norm != "" && seen[norm] {
			continue
		}
		seen[norm] = true
		uniqueOrig = append(uniqueOrig, orig)
		uniqueNorm = append(uniqueNorm, norm)
	}
	if len(uniqueOrig) <= 1 {
		return uniqueOrig
	}

	embeddings, err := e.embedCached(ctx, ScenarioEmbeddingModel, uniqueNorm)
	if err != nil {
		e.logger.Warn("Embeddings request failed; keeping scenarios as-is", "error", err)
		return uniqueOrig
	}

	keep := []int{0}
	for j := 1; j < len(uniqueOrig); j++ {
		dup := false
		for _, i := range keep {
			if cosine(embeddings[i], embeddings[j]) >= e.threshold {
				dup = true
				if len(uniqueOrig[j]) < len(uniqueOrig[i]) {
					keep = removeIndex(keep, i)
					keep = append(keep, j)
				}
				break
			}
		}
		if !dup {
			keep = append(keep, j)
		}
	}
	sort.Ints(keep)

	result := make([]string, 0, len(keep))
	for _, i := range keep {
		result = append(result, uniqueOrig[i])
	}
	if len(result) < len(scenarios) {
		e.logger.Info("Scenario dedup",
			"before", len(scenarios),
			"after", len(result),
			"removed", len(scenarios)-len(result))
	}
	return result
}

// DedupeCases removes semantically duplicate test cases, keeping the first
// occurrence of each duplicate group. Passthrough without an embedder or on
// embedding failure.
func (e *Engine) DedupeCases(ctx context.Context, texts []string) []int {
	all := identityIndices(len(texts))
	if len(texts) <= 1 {
		return all
	}
	if e.embedder == nil {
		e.warnDegraded()
		return all
	}
	embeddings, err := e.embedCached(ctx, CaseEmbeddingModel, texts)
	if err != nil {
		e.logger.Warn("Embeddings request failed; keeping cases as-is", "error", err)
		return all
	}
	keep := make([]int, 0, len(texts))
	for j := range texts {
		dup := false
		for _, i := range keep {
			if cosine(embeddings[i], embeddings[j]) >= e.threshold {
				dup = true
				break
			}
		}
		if !dup {
			keep = append(keep, j)
		}
	}
	return keep
}

// embedCached resolves embeddings through the cache, fetching only misses.
func (e *Engine) embedCached(ctx context.Context, model string, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	e.mu.Lock()
	for i, t := range texts {
		if vec, ok := e.cache[model+"\x00"+t]; ok {
			result[i] = vec
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
		}
	}
	e.mu.Unlock()

	if len(missTexts) > 0 {
		fetched, err := e.embedder.Embed(ctx, model, missTexts)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		for k, vec := range fetched {
			e.cache[model+"\x00"+missTexts[k]] = vec
			result[missIdx[k]] = vec
		}
		e.mu.Unlock()
	}
	return result, nil
}

// warnDegraded logs once per engine that semantic dedup is disabled, so the
// degraded mode is visible without spamming every layer.
func (e *Engine) warnDegraded() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.warned {
		return
	}
	e.warned = true
	e.logger.Warn("No embedding backend configured; semantic dedup disabled, duplicates may pass through")
}

func removeIndex(s []int, v int) []int {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func identityIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
