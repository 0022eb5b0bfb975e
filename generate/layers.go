// Package generate implements the scenario-driven test case pipeline: for
// each coverage layer it extracts scenario titles, dedupes them, and expands
// them into structured test cases, then dedupes the accumulated result. The
// batch coordinator runs the pipeline across many features concurrently.
package generate

import (
	"fmt"
	"strings"
)

// Layer is one coverage dimension of the generation pipeline.
type Layer string

// Coverage dimensions, in pipeline order. Higher coverage levels include all
// lower dimensions.
const (
	LayerCore        Layer = "core"
	LayerValidation  Layer = "validation"
	LayerNegative    Layer = "negative"
	LayerBoundary    Layer = "boundary"
	LayerState       Layer = "state"
	LayerSecurity    Layer = "security"
	LayerDestructive Layer = "destructive"
)

// layerFocus is the focus instruction included in prompts per dimension.
var layerFocus = map[Layer]string{
	LayerCore: "Fundamental workflows, happy paths, and required validations. " +
		"Highest priority: never skip basic flows or mandatory checks.",
	LayerValidation: "Field validation, required inputs, format errors, and user input mistakes. " +
		"Do not duplicate core flows.",
	LayerNegative: "Invalid inputs, error paths, rejection cases, and user mistakes. " +
		"Each independent failure mode is its own scenario.",
	LayerBoundary: "Boundary values, unusual inputs, limits, and edge values. " +
		"Do not duplicate core, validation, or negative scenarios.",
	LayerState: "State transitions, multi-step flows, and state-dependent behavior. " +
		"Do not duplicate earlier dimensions.",
	LayerSecurity: "Security-related scenarios: auth, authorization, injection, sensitive data. " +
		"Do not duplicate earlier dimensions.",
	LayerDestructive: "Data corruption, conflicting operations, resilience failures, and recovery. " +
		"Do not duplicate earlier dimensions.",
}

// Focus returns the prompt focus text for the layer, falling back to the
// core focus for unknown layers.
func (l Layer) Focus() string {
	if f, ok := layerFocus[l]; ok {
		return f
	}
	return layerFocus[LayerCore]
}

// minScenariosPerLayer is the safety floor per dimension: below it, the
// pipeline re-prompts once for expansion. There is no cap on the maximum.
var minScenariosPerLayer = map[Layer]int{
	LayerCore:        5,
	LayerValidation:  6,
	LayerNegative:    6,
	LayerBoundary:    8,
	LayerState:       6,
	LayerSecurity:    6,
	LayerDestructive: 6,
}

// MinScenarios returns the scenario floor for the layer, or 0 when none.
func (l Layer) MinScenarios() int {
	return minScenariosPerLayer[l]
}

// Coverage levels, from cheapest to most thorough.
const (
	CoverageLow           = "low"
	CoverageMedium        = "medium"
	CoverageHigh          = "high"
	CoverageComprehensive = "comprehensive"
)

// coverageLayers maps each coverage level to the dimensions it runs, in
// order. Levels are cumulative: each includes everything below it.
var coverageLayers = map[string][]Layer{
	CoverageLow:    {LayerCore},
	CoverageMedium: {LayerCore, LayerValidation, LayerNegative},
	CoverageHigh:   {LayerCore, LayerValidation, LayerNegative, LayerBoundary, LayerState},
	CoverageComprehensive: {
		LayerCore, LayerValidation, LayerNegative,
		LayerBoundary, LayerState, LayerSecurity, LayerDestructive,
	},
}

// LayersFor returns the dimensions a coverage level runs, defaulting to
// medium for unknown levels.
func LayersFor(coverageLevel string) []Layer {
	if layers, ok := coverageLayers[strings.ToLower(strings.TrimSpace(coverageLevel))]; ok {
		return layers
	}
	return coverageLayers[CoverageMedium]
}

// ParseCoverageLevel validates a coverage level string, defaulting empty to
// medium.
func ParseCoverageLevel(s string) (string, error) {
	level := strings.ToLower(strings.TrimSpace(s))
	if level == "" {
		return CoverageMedium, nil
	}
	if _, ok := coverageLayers[level]; !ok {
		return "", fmt.Errorf("invalid coverage level %q (use low, medium, high, or comprehensive)", s)
	}
	return level, nil
}

// LevelForCaseCount maps a legacy requested case count onto a coverage
// level. Kept for callers that still send number_of_cases.
func LevelForCaseCount(n int) string {
	switch {
	case n <= 5:
		return CoverageLow
	case n <= 15:
		return CoverageMedium
	case n <= 30:
		return CoverageHigh
	default:
		return CoverageComprehensive
	}
}
