package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/c360studio/casegen/dedup"
	"github.com/c360studio/casegen/llm"
	"github.com/c360studio/casegen/parse"
	"github.com/c360studio/casegen/testcase"
)

// Expansion retry settings. Parse and validation failures on the expansion
// step are retried with a growing delay; provider transport retries happen
// below this layer.
const (
	expansionMaxAttempts = 3
	expansionDelayFactor = 1.5
)

var defaultExpansionDelay = time.Second

// Generator produces raw model output for a prompt. Satisfied by
// *llm.Client.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error)
}

// Request describes one feature to generate test cases for.
type Request struct {
	FeatureName        string `json:"feature_name"`
	FeatureDescription string `json:"feature_description"`
	AllowedActions     string `json:"allowed_actions,omitempty"`
	ExcludedFeatures   string `json:"excluded_features,omitempty"`
	CoverageLevel      string `json:"coverage_level,omitempty"`
	Provider           string `json:"provider,omitempty"`
	ModelProfile       string `json:"model_profile,omitempty"`
	ModelID            string `json:"model_id,omitempty"`
}

// options converts the request into provider routing options.
func (r Request) options() llm.GenerateOptions {
	return llm.GenerateOptions{
		Provider:      r.Provider,
		ModelID:       r.ModelID,
		ModelProfile:  r.ModelProfile,
		CoverageLevel: r.CoverageLevel,
	}
}

// Pipeline runs the scenario-driven generation for a single feature: per
// coverage layer, extract scenarios, dedupe them, expand into test cases,
// then dedupe the accumulated result.
type Pipeline struct {
	gen            Generator
	dedup          *dedup.Engine
	logger         *slog.Logger
	expansionDelay time.Duration
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the logger.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithExpansionDelay overrides the base retry delay for expansion failures.
func WithExpansionDelay(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.expansionDelay = d
	}
}

// NewPipeline creates a pipeline over a generator and a dedup engine.
func NewPipeline(gen Generator, engine *dedup.Engine, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		gen:            gen,
		dedup:          engine,
		logger:         slog.Default(),
		expansionDelay: defaultExpansionDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run generates test cases for one feature at its coverage level. Any
// unrecoverable failure aborts the feature and discards partial output.
func (p *Pipeline) Run(ctx context.Context, req Request) ([]testcase.TestCase, error) {
	level, err := ParseCoverageLevel(req.CoverageLevel)
	if err != nil {
		return nil, err
	}
	req.CoverageLevel = level
	layers := LayersFor(level)

	p.logger.Info("Generating test cases",
		"feature_name", req.FeatureName,
		"coverage_level", level,
		"layers", len(layers))

	instructions := featureInstructions(req)
	var accumulated []testcase.TestCase

	// The embedding cache is scoped to this run; concurrent runs do not
	// share or accumulate cached vectors.
	engine := p.dedup.NewRun()

	for _, layer := range layers {
		started := time.Now()
		batch, err := p.runLayer(ctx, engine, instructions, layer, accumulated, req)
		observeLayer(string(layer), time.Since(started), err)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", layer, err)
		}
		accumulated = append(accumulated, batch...)
		p.logger.Debug("Layer complete",
			"layer", layer,
			"cases", len(batch),
			"total", len(accumulated))
	}

	before := len(accumulated)
	accumulated = engine.DedupeCasesByEmbedding(ctx, accumulated)
	accumulated = dedup.RemoveNearDuplicateTitles(accumulated)
	if removed := before - len(accumulated); removed > 0 {
		casesDeduped.Add(float64(removed))
		p.logger.Info("Removed duplicate cases",
			"feature_name", req.FeatureName,
			"removed", removed,
			"remaining", len(accumulated))
	}
	casesGenerated.Add(float64(len(accumulated)))
	return accumulated, nil
}

// runLayer executes one coverage dimension: extract, dedupe, expand.
func (p *Pipeline) runLayer(ctx context.Context, engine *dedup.Engine, instructions string, layer Layer, accumulated []testcase.TestCase, req Request) ([]testcase.TestCase, error) {
	scenarios, err := p.extractScenarios(ctx, instructions, layer, req)
	if err != nil {
		return nil, err
	}
	scenariosExtracted.Add(float64(len(scenarios)))
	p.logger.Debug("Extracted scenarios", "layer", layer, "count", len(scenarios))

	scenarios = engine.DedupeScenarios(ctx, scenarios)
	p.logger.Debug("Scenarios after dedup", "layer", layer, "count", len(scenarios))

	return p.expandScenarios(ctx, instructions, layer, scenarios, accumulated, req)
}

// extractScenarios lists scenario titles for one dimension. When the model
// returns fewer than the layer floor, it re-prompts exactly once with the
// shortfall and the prior titles as a do-not-repeat block, and accepts the
// second yield whatever its size.
func (p *Pipeline) extractScenarios(ctx context.Context, instructions string, layer Layer, req Request) ([]string, error) {
	var (
		existingJSON string
		expansion    string
	)
	for attempt := 0; ; attempt++ {
		prompt := scenarioExtractionPrompt(instructions, layer, existingJSON, expansion)
		raw, err := p.gen.Generate(ctx, prompt, req.options())
		if err != nil {
			return nil, fmt.Errorf("scenario extraction: %w", err)
		}
		obj, err := parse.Object(raw, "scenarios")
		if err != nil {
			return nil, fmt.Errorf("scenario extraction: %w", err)
		}
		scenarios, err := parse.StringsField(obj, "scenarios")
		if err != nil {
			return nil, fmt.Errorf("scenario extraction: %w", err)
		}
		if len(scenarios) == 0 {
			return nil, parse.NewMalformedOutputError("model returned no scenarios", raw)
		}

		min := layer.MinScenarios()
		if attempt == 0 && min > 0 && len(scenarios) < min {
			p.logger.Info("Re-prompting for more scenarios",
				"layer", layer,
				"current", len(scenarios),
				"min", min)
			existingJSON = scenariosJSON(scenarios)
			expansion = expansionRequest(len(scenarios), min)
			continue
		}
		return scenarios, nil
	}
}

// expandScenarios converts scenario titles into structured test cases,
// retrying parse and validation failures with a growing delay.
func (p *Pipeline) expandScenarios(ctx context.Context, instructions string, layer Layer, scenarios []string, accumulated []testcase.TestCase, req Request) ([]testcase.TestCase, error) {
	if len(scenarios) == 0 {
		return nil, nil
	}
	prompt := testExpansionPrompt(instructions, layer, scenarios, existingCasesJSON(accumulated))

	var lastErr error
	for attempt := 1; attempt <= expansionMaxAttempts; attempt++ {
		p.logger.Debug("Test expansion",
			"layer", layer,
			"attempt", attempt,
			"max_attempts", expansionMaxAttempts)

		cases, err := p.expandOnce(ctx, prompt, req)
		if err == nil {
			p.logger.Debug("Test expansion parsed", "layer", layer, "cases", len(cases))
			return cases, nil
		}
		lastErr = err

		// Provider errors already went through their own routing; only
		// malformed output is worth another attempt here.
		if !parse.IsMalformed(err) {
			return nil, err
		}
		p.logger.Warn("Test expansion failed",
			"layer", layer,
			"attempt", attempt,
			"max_attempts", expansionMaxAttempts,
			"error", err)
		if attempt < expansionMaxAttempts {
			delay := time.Duration(float64(p.expansionDelay) * math.Pow(expansionDelayFactor, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, fmt.Errorf("test expansion failed after %d attempts: %w", expansionMaxAttempts, lastErr)
}

// expandOnce performs a single expansion round trip.
func (p *Pipeline) expandOnce(ctx context.Context, prompt string, req Request) ([]testcase.TestCase, error) {
	raw, err := p.gen.Generate(ctx, prompt, req.options())
	if err != nil {
		return nil, fmt.Errorf("test expansion: %w", err)
	}
	obj, err := parse.Object(raw, "test_cases")
	if err != nil {
		return nil, err
	}
	items, err := parse.ObjectsField(obj, "test_cases")
	if err != nil {
		return nil, err
	}
	cases := make([]testcase.TestCase, len(items))
	for i, item := range items {
		cases[i] = testcase.FromRaw(item)
	}
	return cases, nil
}

func scenariosJSON(scenarios []string) string {
	encoded, err := json.MarshalIndent(scenarios, "", "  ")
	if err != nil {
		return ""
	}
	return string(encoded)
}
