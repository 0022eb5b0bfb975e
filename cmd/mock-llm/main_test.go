package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func fixtureServer(t *testing.T) *server {
	t.Helper()
	dir := t.TempDir()
	writeFixture(t, dir, "scenarios.json", `{"scenarios": ["fallback scenario"]}`)
	writeFixture(t, dir, "scenarios.core.json", `{"scenarios": ["core scenario"]}`)
	writeFixture(t, dir, "cases.json", `{"test_cases": []}`)

	fixtures, err := loadFixtures(dir)
	require.NoError(t, err)
	return newServer(fixtures)
}

func TestLoadFixtures(t *testing.T) {
	s := fixtureServer(t)
	assert.Len(t, s.fixtures, 3)
	assert.Contains(t, s.fixtures, "scenarios.core")

	_, err := loadFixtures(t.TempDir())
	assert.Error(t, err, "empty fixture dir")
}

func TestLoadFixturesRejectsInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "scenarios.json", "not json")
	_, err := loadFixtures(dir)
	assert.ErrorContains(t, err, "invalid JSON")
}

func TestResolveFixture(t *testing.T) {
	s := fixtureServer(t)

	key, ok := s.resolveFixture("Coverage dimension: core\nList scenarios")
	require.True(t, ok)
	assert.Equal(t, "scenarios.core", key, "dimension fixture wins")

	key, ok = s.resolveFixture("Coverage dimension: boundary\nList scenarios")
	require.True(t, ok)
	assert.Equal(t, "scenarios", key, "phase fallback when no dimension fixture")

	key, ok = s.resolveFixture("Convert each listed scenario into test cases.\nCoverage dimension: core")
	require.True(t, ok)
	assert.Equal(t, "cases", key, "expansion prompts route to cases")
}

func TestChatCompletions(t *testing.T) {
	s := fixtureServer(t)
	body, _ := json.Marshal(chatRequest{
		Model: "gpt-4o-mini",
		Messages: []chatMessage{
			{Role: "user", Content: "Coverage dimension: core\nList scenarios"},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleChatCompletions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)
	assert.JSONEq(t, `{"scenarios": ["core scenario"]}`, resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, int64(1), s.calls.Load())
}

func TestOllamaGenerate(t *testing.T) {
	s := fixtureServer(t)
	body, _ := json.Marshal(ollamaRequest{
		Model:  "llama3.2:3b",
		Prompt: "Convert each listed scenario into test cases",
		Format: "json",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleOllamaGenerate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ollamaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Done)
	assert.JSONEq(t, `{"test_cases": []}`, resp.Response)
}

func TestStatsAndRequests(t *testing.T) {
	s := fixtureServer(t)
	for range 2 {
		_, err := s.respond(s.calls.Add(1), "m", "Coverage dimension: core\nList scenarios")
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	s.handleStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var stats struct {
		TotalCalls     int64          `json:"total_calls"`
		CallsByFixture map[string]int `json:"calls_by_fixture"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalCalls)
	assert.Equal(t, 2, stats.CallsByFixture["scenarios.core"])

	rec = httptest.NewRecorder()
	s.handleRequests(rec, httptest.NewRequest(http.MethodGet, "/requests?fixture=scenarios.core", nil))
	var reqs struct {
		ByFixture map[string][]capturedRequest `json:"requests_by_fixture"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reqs))
	require.Len(t, reqs.ByFixture["scenarios.core"], 2)
	assert.Equal(t, 1, reqs.ByFixture["scenarios.core"][0].CallIndex)
	assert.Equal(t, 2, reqs.ByFixture["scenarios.core"][1].CallIndex)
}

func TestUnknownFixture(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "scenarios.json", `{"scenarios": []}`)
	fixtures, err := loadFixtures(dir)
	require.NoError(t, err)
	s := newServer(fixtures)

	_, err = s.respond(1, "m", "Convert each listed scenario")
	assert.ErrorContains(t, err, "cases")
}
