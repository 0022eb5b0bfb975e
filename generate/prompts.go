package generate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360studio/casegen/testcase"
)

// scenarioExtractionPrompt builds the prompt that lists scenario titles for
// one coverage dimension. existingJSON, when non-empty, is a JSON array of
// scenarios already produced that the model must not repeat; expansion, when
// non-empty, is the shortfall re-prompt text.
func scenarioExtractionPrompt(instructions string, layer Layer, existingJSON, expansion string) string {
	var b strings.Builder

	b.WriteString("You are a senior QA test architect. Your task is to list ALL distinct test scenarios for one coverage dimension.\n\n")
	fmt.Fprintf(&b, "Coverage dimension: %s\n", layer)
	fmt.Fprintf(&b, "Focus: %s\n", layer.Focus())
	if min := layer.MinScenarios(); min > 0 {
		fmt.Fprintf(&b, "\nAim for at least %d distinct scenarios for this dimension. Be exhaustive.\n", min)
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Do NOT merge scenarios. Each independent validation or flow must be its own scenario.\n")
	b.WriteString("- Be exhaustive. List every distinct scenario you can identify for this dimension.\n")
	b.WriteString(`- Each scenario should be one short phrase (e.g. "User login with valid credentials", "Reject empty required field").` + "\n")
	b.WriteString("- Do not write test cases yet; only scenario titles or one-line descriptions.\n")
	b.WriteString("- Core scenarios (happy path, required validations) are highest priority and must never be skipped.\n")
	if strings.TrimSpace(existingJSON) != "" {
		fmt.Fprintf(&b, "\nYou already listed these scenarios. Do NOT repeat them. Add ONLY new, distinct scenarios:\n%s\n", existingJSON)
	}
	if expansion != "" {
		fmt.Fprintf(&b, "\n%s\n", expansion)
	}
	fmt.Fprintf(&b, "\nInput context:\n%s\n", instructions)
	b.WriteString("\nReturn ONLY valid JSON with this exact structure (no other text, no markdown):\n")
	b.WriteString(`{"scenarios": ["scenario 1", "scenario 2", ...]}` + "\n")
	b.WriteString("\nOutput:")

	return b.String()
}

// expansionRequest is the one-shot re-prompt text when a layer comes back
// under its scenario floor.
func expansionRequest(got, min int) string {
	return fmt.Sprintf(
		"You returned %d scenarios. We need at least %d distinct scenarios for this dimension. "+
			"List more distinct scenarios; do not merge or summarize.", got, min)
}

// testExpansionPrompt builds the prompt that converts scenario titles into
// structured test cases. existingJSON, when non-empty, lists cases from
// earlier layers the model must not duplicate.
func testExpansionPrompt(instructions string, layer Layer, scenarios []string, existingJSON string) string {
	scenariosJSON, _ := json.MarshalIndent(scenarios, "", "  ")

	var b strings.Builder
	b.WriteString("You are a senior QA test architect. Convert each listed scenario into one or more structured test cases.\n\n")
	b.WriteString("CRITICAL RULES - OUTPUT FORMAT:\n")
	b.WriteString("- Output ONLY valid JSON. Nothing else.\n")
	b.WriteString("- Do NOT wrap the JSON in markdown code blocks (no ```json or ```).\n")
	b.WriteString("- Do NOT add any explanatory text, comments, or prose before or after the JSON.\n")
	b.WriteString("- Do NOT use single quotes; use double quotes only.\n")
	b.WriteString("- Do NOT use trailing commas in arrays or objects.\n")
	b.WriteString("- The response must be strictly parseable JSON with no preprocessing.\n\n")
	fmt.Fprintf(&b, "Coverage dimension: %s\n", layer)
	fmt.Fprintf(&b, "Focus: %s\n", layer.Focus())
	fmt.Fprintf(&b, "\nScenarios to expand (each must become at least one test case):\n%s\n", scenariosJSON)
	if strings.TrimSpace(existingJSON) != "" {
		fmt.Fprintf(&b, "\nThe following test cases already exist. Do NOT duplicate them:\n%s\n", existingJSON)
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Minimum one test case per scenario. Create additional test cases when variations (e.g. different inputs, boundaries) are needed.\n")
	b.WriteString("- Never summarize multiple distinct failures or validations into one test case.\n")
	b.WriteString("- Quality is more important than brevity. Each test case must be concrete and executable.\n")
	b.WriteString(`- test_steps must be ordered and numbered (e.g. "1. Do X", "2. Do Y").` + "\n")
	b.WriteString("- pre_condition, test_data, expected_result must be non-empty strings.\n")
	b.WriteString("\nUse this exact JSON structure (top-level key must be \"test_cases\"):\n")
	b.WriteString(`{
  "test_cases": [
    {
      "test_scenario": "short title",
      "test_description": "what is validated",
      "pre_condition": "conditions before test",
      "test_data": "input/state required",
      "test_steps": ["1. step", "2. step"],
      "expected_result": "expected outcome"
    }
  ]
}
`)
	fmt.Fprintf(&b, "\nInput context:\n%s\n", instructions)
	b.WriteString("\nOutput ONLY the JSON object, no other text:")

	return b.String()
}

// existingCasesJSON renders accumulated cases as a minimal JSON array for
// cross-layer duplicate suppression. Returns "" when there are none.
func existingCasesJSON(cases []testcase.TestCase) string {
	if len(cases) == 0 {
		return ""
	}
	type minimal struct {
		TestScenario    string   `json:"test_scenario"`
		TestDescription string   `json:"test_description"`
		TestSteps       []string `json:"test_steps"`
	}
	out := make([]minimal, len(cases))
	for i, tc := range cases {
		out[i] = minimal{
			TestScenario:    tc.Scenario,
			TestDescription: tc.Description,
			TestSteps:       tc.Steps,
		}
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return ""
	}
	return string(encoded)
}

// featureInstructions assembles the input context block from a feature
// request.
func featureInstructions(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Feature name: %s\n", req.FeatureName)
	fmt.Fprintf(&b, "Feature description: %s\n", req.FeatureDescription)
	if s := strings.TrimSpace(req.AllowedActions); s != "" {
		b.WriteString("\n\nAllowed actions: " + s)
	}
	if s := strings.TrimSpace(req.ExcludedFeatures); s != "" {
		b.WriteString("\n\nExcluded features: " + s)
	}
	return b.String()
}
