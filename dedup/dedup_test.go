package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/c360studio/casegen/testcase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns configured vectors by text, tracking fetches for
// cache verification.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	fetched []string
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		f.fetched = append(f.fetched, t)
		vec, ok := f.vectors[t]
		if !ok {
			vec = []float32{1, 0, 0}
		}
		out[i] = vec
	}
	return out, nil
}

func TestNormalizeTitle(t *testing.T) {
	a := NormalizeTitle("User login with valid credentials")
	b := NormalizeTitle("user   login  with valid credentials")
	assert.Equal(t, a, b)
}

func TestNormalizeScenario_StripsFillerPhrases(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Verify that the user can log in", "the user can log in"},
		{"Ensure that the user can log in", "the user can log in"},
		{"Check   that the user can log in", "the user can log in"},
		{"the user can log in", "the user can log in"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeScenario(tt.in), "input %q", tt.in)
	}
}

func TestRemoveNearDuplicateTitles(t *testing.T) {
	short := testcase.TestCase{
		Scenario:       "User login",
		Steps:          []string{"1. login"},
		ExpectedResult: "ok",
	}
	detailed := testcase.TestCase{
		Scenario:       "user   login",
		Steps:          []string{"1. Open the page", "2. Enter credentials", "3. Submit"},
		ExpectedResult: "User is redirected to the dashboard",
	}
	other := testcase.TestCase{
		Scenario:       "Password reset",
		Steps:          []string{"1. reset"},
		ExpectedResult: "ok",
	}

	result := RemoveNearDuplicateTitles([]testcase.TestCase{short, detailed, other})
	require.Len(t, result, 2)
	// The duplicate slot holds the more detailed variant, in the original position.
	assert.Equal(t, detailed.Scenario, result[0].Scenario)
	assert.Equal(t, other.Scenario, result[1].Scenario)
}

func TestRemoveNearDuplicateTitles_SubstringContainment(t *testing.T) {
	a := testcase.TestCase{Scenario: "User login", Steps: []string{"1. x"}, ExpectedResult: "r"}
	b := testcase.TestCase{Scenario: "User login with valid credentials", Steps: []string{"1. x", "2. y"}, ExpectedResult: "longer result"}
	result := RemoveNearDuplicateTitles([]testcase.TestCase{a, b})
	require.Len(t, result, 1)
	assert.Equal(t, b.Scenario, result[0].Scenario)
}

func TestRemoveNearDuplicateTitles_Idempotent(t *testing.T) {
	cases := []testcase.TestCase{
		{Scenario: "A", Steps: []string{"1"}, ExpectedResult: "r"},
		{Scenario: "a ", Steps: []string{"1", "2"}, ExpectedResult: "rr"},
		{Scenario: "B", Steps: []string{"1"}, ExpectedResult: "r"},
	}
	once := RemoveNearDuplicateTitles(cases)
	twice := RemoveNearDuplicateTitles(once)
	assert.Equal(t, once, twice)
}

func TestRemoveNearDuplicateTitles_SmallInputs(t *testing.T) {
	assert.Empty(t, RemoveNearDuplicateTitles(nil))
	one := []testcase.TestCase{{Scenario: "only"}}
	assert.Equal(t, one, RemoveNearDuplicateTitles(one))
}

func TestDedupeScenarios_NoEmbedderPassthrough(t *testing.T) {
	eng := NewEngine()
	in := []string{"b scenario", "a scenario", "b scenario"}
	out := eng.DedupeScenarios(context.Background(), in)
	assert.Equal(t, in, out)
}

func TestDedupeScenarios_ExactNormalizedDuplicates(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	eng := NewEngine(WithEmbedder(emb))
	out := eng.DedupeScenarios(context.Background(), []string{
		"Verify that the user can log in",
		"ensure that the user can log in",
	})
	// Both normalize to the same text; the embedding pass never runs on one item.
	assert.Len(t, out, 1)
}

func TestDedupeScenarios_EmbeddingDuplicatesKeepShorter(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		NormalizeScenario("User login with valid credentials succeeds"): {1, 0, 0},
		NormalizeScenario("Login ok"):           {0.99, 0.01, 0},
		NormalizeScenario("Reject empty field"): {0, 1, 0},
	}}
	eng := NewEngine(WithEmbedder(emb))
	out := eng.DedupeScenarios(context.Background(), []string{
		"User login with valid credentials succeeds",
		"Login ok",
		"Reject empty field",
	})
	require.Len(t, out, 2)
	assert.Equal(t, []string{"Login ok", "Reject empty field"}, out)
}

func TestDedupeScenarios_EmbeddingFailureDegrades(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("backend down")}
	eng := NewEngine(WithEmbedder(emb))
	in := []string{"scenario one", "scenario two"}
	out := eng.DedupeScenarios(context.Background(), in)
	assert.Equal(t, in, out)
}

func TestDedupeScenarios_SmallInputs(t *testing.T) {
	eng := NewEngine(WithEmbedder(&fakeEmbedder{}))
	assert.Empty(t, eng.DedupeScenarios(context.Background(), nil))
	one := []string{"only"}
	assert.Equal(t, one, eng.DedupeScenarios(context.Background(), one))
}

func TestDedupeCasesByEmbedding(t *testing.T) {
	a := testcase.TestCase{Scenario: "A", Description: "d", Steps: []string{"1"}}
	b := testcase.TestCase{Scenario: "B", Description: "d", Steps: []string{"1"}}
	c := testcase.TestCase{Scenario: "C", Description: "other", Steps: []string{"2"}}
	emb := &fakeEmbedder{vectors: map[string][]float32{
		a.EmbeddingText(): {1, 0, 0},
		b.EmbeddingText(): {0.999, 0, 0.001},
		c.EmbeddingText(): {0, 1, 0},
	}}
	eng := NewEngine(WithEmbedder(emb))
	out := eng.DedupeCasesByEmbedding(context.Background(), []testcase.TestCase{a, b, c})
	require.Len(t, out, 2)
	// Keep-first policy for full cases.
	assert.Equal(t, "A", out[0].Scenario)
	assert.Equal(t, "C", out[1].Scenario)
}

func TestDedupeCasesByEmbedding_NoEmbedder(t *testing.T) {
	eng := NewEngine()
	in := []testcase.TestCase{{Scenario: "A"}, {Scenario: "B"}}
	assert.Equal(t, in, eng.DedupeCasesByEmbedding(context.Background(), in))
}

func TestEngine_CachesEmbeddingsAcrossCalls(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"alpha": {1, 0, 0},
		"beta":  {0, 1, 0},
	}}
	eng := NewEngine(WithEmbedder(emb))

	_, err := eng.embedCached(context.Background(), ScenarioEmbeddingModel, []string{"alpha", "beta"})
	require.NoError(t, err)
	_, err = eng.embedCached(context.Background(), ScenarioEmbeddingModel, []string{"alpha", "beta"})
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, emb.fetched, "second call should be served from cache")
}

func TestEngine_NewRunStartsWithEmptyCache(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"alpha": {1, 0, 0},
	}}
	eng := NewEngine(WithEmbedder(emb), WithThreshold(0.95))

	_, err := eng.embedCached(context.Background(), ScenarioEmbeddingModel, []string{"alpha"})
	require.NoError(t, err)

	run := eng.NewRun()
	assert.True(t, run.Semantic(), "embedder carries over")
	assert.Equal(t, 0.95, run.threshold)

	_, err = run.embedCached(context.Background(), ScenarioEmbeddingModel, []string{"alpha"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "alpha"}, emb.fetched, "a new run re-fetches what the parent cached")

	assert.Len(t, eng.cache, 1, "parent cache untouched by the run")
	assert.Len(t, run.cache, 1)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{1}))
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 0}))
}
