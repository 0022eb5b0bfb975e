// Package parse turns raw LLM output into validated JSON objects.
// LLM responses routinely arrive wrapped in markdown fences, padded with
// prose, or structurally broken (trailing commas, missing commas between
// array objects). The parser strips, extracts, and repairs before giving up.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled patterns for cleaning LLM responses.
var (
	// openFencePattern matches a leading ``` or ```json fence.
	openFencePattern = regexp.MustCompile(`(?i)^` + "```" + `\s*json\s*\n?|^` + "```" + `\s*\n?`)
	// closeFencePattern matches a trailing ``` fence.
	closeFencePattern = regexp.MustCompile(`\n?` + "```" + `\s*$`)
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
	// adjacentObjectPattern matches }{ with optional whitespace, a common
	// malformation in arrays of objects.
	adjacentObjectPattern = regexp.MustCompile(`}\s*{`)
)

const snippetLimit = 300

// MalformedOutputError reports LLM output that could not be parsed or
// validated, carrying a content snippet for diagnosis.
type MalformedOutputError struct {
	Reason  string
	Snippet string
}

func (e *MalformedOutputError) Error() string {
	if e.Snippet == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s; content received (first %d chars): %q", e.Reason, snippetLimit, e.Snippet)
}

// NewMalformedOutputError builds a MalformedOutputError, truncating the
// snippet to a diagnosable size.
func NewMalformedOutputError(reason, content string) *MalformedOutputError {
	return &MalformedOutputError{Reason: reason, Snippet: snippet(content)}
}

// IsMalformed reports whether err is a MalformedOutputError.
func IsMalformed(err error) bool {
	var m *MalformedOutputError
	return errors.As(err, &m)
}

// Object parses raw LLM output into a JSON object and requires expectedKey to
// be present at the top level. A camelCase alias of expectedKey is accepted
// and normalized.
func Object(raw, expectedKey string) (map[string]json.RawMessage, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &MalformedOutputError{Reason: "LLM returned empty response; expected JSON object"}
	}

	cleaned := StripCodeFences(raw)
	cleaned = extractObjectSpan(cleaned)

	parsed, err := parseLenient(cleaned)
	if err != nil {
		return nil, NewMalformedOutputError(fmt.Sprintf("LLM output is not valid JSON: %v", err), cleaned)
	}

	// Require an object. Arrays and scalars parse but carry no named keys.
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(parsed, &obj); err != nil {
		return nil, NewMalformedOutputError(
			fmt.Sprintf("LLM output must be a JSON object with a %q field; received %s", expectedKey, jsonTypeName(parsed)),
			cleaned)
	}

	if _, ok := obj[expectedKey]; !ok {
		if alias := snakeToCamel(expectedKey); alias != expectedKey {
			if v, ok := obj[alias]; ok {
				obj[expectedKey] = v
				delete(obj, alias)
			}
		}
	}
	if _, ok := obj[expectedKey]; !ok {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
			if len(keys) == 10 {
				break
			}
		}
		return nil, NewMalformedOutputError(
			fmt.Sprintf("LLM output must be a JSON object with a %q field; received keys: %v", expectedKey, keys),
			cleaned)
	}
	return obj, nil
}

// StringsField decodes obj[key] as an array of non-empty strings.
// Non-string elements are stringified; empty and null elements are dropped.
func StringsField(obj map[string]json.RawMessage, key string) ([]string, error) {
	raw, ok := obj[key]
	if !ok {
		return nil, &MalformedOutputError{Reason: fmt.Sprintf("missing %q field", key)}
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &MalformedOutputError{
			Reason: fmt.Sprintf("LLM output %q field must be a JSON array; got %s", key, jsonTypeName(raw)),
		}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprintf("%v", item))
		if s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// ObjectsField decodes obj[key] as an array of JSON objects.
func ObjectsField(obj map[string]json.RawMessage, key string) ([]map[string]any, error) {
	raw, ok := obj[key]
	if !ok {
		return nil, &MalformedOutputError{Reason: fmt.Sprintf("missing %q field", key)}
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &MalformedOutputError{
			Reason: fmt.Sprintf("LLM output %q field must be a JSON array of objects; got %s", key, jsonTypeName(raw)),
		}
	}
	return items, nil
}

// StripCodeFences removes a single leading/trailing markdown code fence,
// with or without a language tag.
func StripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	s = openFencePattern.ReplaceAllString(s, "")
	s = closeFencePattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// extractObjectSpan takes the substring from the first { to the last },
// tolerating leading/trailing prose the model adds despite instructions.
func extractObjectSpan(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return text
	}
	return text[start : end+1]
}

// Repair fixes common LLM JSON malformations: trailing commas before closing
// brackets, and a missing comma between adjacent objects in an array.
func Repair(text string) string {
	repaired := trailingCommaPattern.ReplaceAllString(text, "$1")
	repaired = adjacentObjectPattern.ReplaceAllString(repaired, "}, {")
	return repaired
}

// parseLenient attempts a strict parse, then repair-and-reparse, then a final
// pass that also strips line comments outside string values.
func parseLenient(text string) (json.RawMessage, error) {
	if valid(text) {
		return json.RawMessage(text), nil
	}
	repaired := Repair(text)
	if valid(repaired) {
		return json.RawMessage(repaired), nil
	}
	lenient := Repair(stripLineComments(repaired))
	if valid(lenient) {
		return json.RawMessage(lenient), nil
	}
	var js any
	err := json.Unmarshal([]byte(repaired), &js)
	return nil, err
}

func valid(text string) bool {
	return json.Valid([]byte(text))
}

// stripLineComments removes // comments that are not inside JSON string
// values, processing line by line.
func stripLineComments(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, stripLineComment(line))
	}
	return strings.Join(cleaned, "\n")
}

// stripLineComment removes a // comment from a JSON line, respecting string
// values (a // inside quotes, e.g. a URL, is left alone).
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}

// jsonTypeName names the JSON type of raw for error messages.
func jsonTypeName(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return "empty"
	}
	switch trimmed[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

// snakeToCamel converts snake_case to camelCase (test_cases → testCases).
func snakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	if len(parts) == 1 {
		return s
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

func snippet(content string) string {
	if len(content) > snippetLimit {
		return content[:snippetLimit] + "..."
	}
	return content
}
