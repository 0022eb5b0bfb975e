// Package testcase defines the canonical test case entity and its in-memory
// store. The same shape is used for AI-generated and directly created cases.
package testcase

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Default values substituted for required fields the model omitted or left
// empty. Substitution is silent repair, not an error condition.
const (
	DefaultScenario       = "Test scenario as described"
	DefaultDescription    = "Verify behavior per requirements"
	DefaultPrecondition   = "No specific preconditions required"
	DefaultTestData       = "Standard test data as per feature requirements"
	DefaultExpectedResult = "Behavior matches the test scenario and acceptance criteria."
	DefaultStep           = "1. Execute the test scenario as described"
)

// TestCase is one concrete, executable test.
type TestCase struct {
	ID             uuid.UUID `json:"id"`
	Scenario       string    `json:"test_scenario"`
	Description    string    `json:"test_description"`
	Precondition   string    `json:"pre_condition"`
	TestData       string    `json:"test_data"`
	Steps          []string  `json:"test_steps"`
	ExpectedResult string    `json:"expected_result"`
	CreatedAt      time.Time `json:"created_at"`
	CreatedBy      string    `json:"created_by,omitempty"`
}

// Detail is a proxy for how detailed a case is: combined length of its steps
// and expected result. Used to pick the representative among near-duplicates.
func (tc TestCase) Detail() int {
	return len(strings.Join(tc.Steps, " ")) + len(tc.ExpectedResult)
}

// EmbeddingText is the text representation used for semantic comparison.
func (tc TestCase) EmbeddingText() string {
	return strings.TrimSpace(tc.Scenario + " " + tc.Description + " " + strings.Join(tc.Steps, " "))
}

// FromRaw builds a TestCase from a decoded JSON object, substituting defaults
// for missing or empty required fields and assigning identity and timestamp.
func FromRaw(raw map[string]any) TestCase {
	tc := TestCase{
		ID:             uuid.New(),
		Scenario:       cleanField(raw["test_scenario"], DefaultScenario),
		Description:    cleanField(raw["test_description"], DefaultDescription),
		Precondition:   cleanField(raw["pre_condition"], DefaultPrecondition),
		TestData:       cleanField(raw["test_data"], DefaultTestData),
		ExpectedResult: cleanField(raw["expected_result"], DefaultExpectedResult),
		CreatedAt:      time.Now().UTC(),
	}
	tc.Steps = cleanSteps(raw["test_steps"])
	return tc
}

func cleanField(v any, def string) string {
	s, ok := v.(string)
	if !ok && v != nil {
		s = stringify(v)
	}
	s = Sanitize(s)
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func cleanSteps(v any) []string {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return []string{DefaultStep}
	}
	steps := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		s := Sanitize(stringify(item))
		if strings.TrimSpace(s) != "" {
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		return []string{DefaultStep}
	}
	return steps
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; render integers without a fraction.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Sanitize removes surrogate code points that some models emit and that
// break downstream JSON encoding.
func Sanitize(s string) string {
	if !strings.ContainsFunc(s, isSurrogate) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isSurrogate(r) {
			return -1
		}
		return r
	}, s)
}

func isSurrogate(r rune) bool {
	return unicode.Is(unicode.Cs, r) || r == unicode.ReplacementChar
}
