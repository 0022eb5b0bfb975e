package llm

import "strings"

// Output token budgeting. The budget is the minimum of what remains of the
// model's usable context after the prompt and a per-coverage-level cap,
// floored at zero.

// coverageMaxTokens caps output tokens per coverage level.
var coverageMaxTokens = map[string]int{
	"low":           1000,
	"medium":        2500,
	"high":          5000,
	"comprehensive": 7000,
}

// defaultCoverageMaxTokens applies when the coverage level is unknown.
const defaultCoverageMaxTokens = 2500

// safetyBufferTokens is reserved and never used for output.
const safetyBufferTokens = 1000

// maxContextFraction bounds prompt + output to a fraction of the context
// window.
const maxContextFraction = 0.70

// contextWindows holds context window sizes for known models.
var contextWindows = map[string]int{
	"gpt-4o-mini":   128_000,
	"gpt-4o":        128_000,
	"gpt-4-turbo":   128_000,
	"gpt-4-32k":     32_768,
	"gpt-4":         8_192,
	"gpt-3.5-turbo": 16_385,
}

// defaultContextWindow applies to unknown models.
const defaultContextWindow = 128_000

// EstimateTokens approximates the token count of a prompt. The 4-bytes-per-
// token heuristic is close enough for budgeting English prose.
func EstimateTokens(prompt string) int {
	n := len(prompt) / 4
	if n < 1 {
		return 1
	}
	return n
}

// ContextWindow returns the context window size for a model name, matching
// known model families by substring (longest keys first so "gpt-4-32k" wins
// over "gpt-4").
func ContextWindow(modelName string) int {
	lower := strings.ToLower(modelName)
	best := 0
	bestLen := 0
	for key, size := range contextWindows {
		if strings.Contains(lower, key) && len(key) > bestLen {
			best = size
			bestLen = len(key)
		}
	}
	if bestLen == 0 {
		return defaultContextWindow
	}
	return best
}

// CoverageCap returns the output token cap for a coverage level.
func CoverageCap(coverageLevel string) int {
	if cap, ok := coverageMaxTokens[strings.ToLower(strings.TrimSpace(coverageLevel))]; ok {
		return cap
	}
	return defaultCoverageMaxTokens
}

// MaxOutputTokens computes a safe output token budget for a completion.
// contextWindow of 0 means look the window up by model name.
func MaxOutputTokens(prompt, coverageLevel, modelName string, contextWindow int) int {
	if contextWindow <= 0 {
		contextWindow = ContextWindow(modelName)
	}
	usable := int(float64(contextWindow) * maxContextFraction)
	available := usable - EstimateTokens(prompt) - safetyBufferTokens
	if available < 0 {
		available = 0
	}
	if cap := CoverageCap(coverageLevel); available > cap {
		return cap
	}
	return available
}
