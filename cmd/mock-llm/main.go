// Package main implements a mock LLM server for e2e testing.
// It serves OpenAI-compatible /v1/chat/completions and Ollama-compatible
// /api/generate responses from JSON fixture files, routing by the pipeline
// phase of the incoming prompt. This eliminates the need for a real LLM
// during API wiring tests, making them fast, deterministic, and
// offline-capable.
//
// Usage:
//
//	mock-llm -fixtures /path/to/fixtures -port 11434
//
// Fixture files are JSON named by phase and coverage dimension:
// "scenarios.core.json" answers the scenario extraction prompt for the core
// dimension, "cases.core.json" answers the test expansion prompt for it.
// The phase-only files "scenarios.json" and "cases.json" are fallbacks for
// dimensions with no dedicated fixture, so a minimal fixture set is two
// files.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Ollama-compatible types ---

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// --- Server ---

// capturedRequest stores the key fields of an incoming LLM request for test
// verification.
type capturedRequest struct {
	Fixture   string `json:"fixture"`
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	CallIndex int    `json:"call_index"` // 1-indexed per-fixture call number
	Timestamp int64  `json:"timestamp"`
}

type server struct {
	fixtures map[string]string // fixture key → response content
	calls    atomic.Int64      // total calls served

	// Per-fixture call counters and request capture for prompt
	// verification in e2e tests.
	mu              sync.Mutex
	fixtureCalls    map[string]int
	fixtureRequests map[string][]capturedRequest
}

func newServer(fixtures map[string]string) *server {
	return &server{
		fixtures:        fixtures,
		fixtureCalls:    make(map[string]int),
		fixtureRequests: make(map[string][]capturedRequest),
	}
}

// dimensionRe pulls the coverage dimension out of a pipeline prompt.
var dimensionRe = regexp.MustCompile(`Coverage dimension: (\w+)`)

// resolveFixture maps a prompt to a fixture key. Expansion prompts ask the
// model to convert scenarios into cases; everything else is extraction.
// Dimension-specific fixtures win over the phase fallback.
func (s *server) resolveFixture(prompt string) (string, bool) {
	phase := "scenarios"
	if strings.Contains(prompt, "Convert each listed scenario") {
		phase = "cases"
	}

	if m := dimensionRe.FindStringSubmatch(prompt); m != nil {
		key := phase + "." + m[1]
		if _, ok := s.fixtures[key]; ok {
			return key, true
		}
	}
	_, ok := s.fixtures[phase]
	return phase, ok
}

// respond records the call and returns the fixture content for a prompt.
func (s *server) respond(callNum int64, model, prompt string) (string, error) {
	key, ok := s.resolveFixture(prompt)
	if !ok {
		log.Printf("[call %d] WARNING: no fixture for key=%q", callNum, key)
		return "", fmt.Errorf("no fixture %q", key)
	}

	s.mu.Lock()
	s.fixtureCalls[key]++
	callIndex := s.fixtureCalls[key]
	s.fixtureRequests[key] = append(s.fixtureRequests[key], capturedRequest{
		Fixture:   key,
		Model:     model,
		Prompt:    prompt,
		CallIndex: callIndex,
		Timestamp: time.Now().UnixMilli(),
	})
	s.mu.Unlock()

	log.Printf("[call %d] fixture=%s call_index=%d model=%s", callNum, key, callIndex, model)
	return s.fixtures[key], nil
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	// Allow env var override
	if envDir := os.Getenv("MOCK_LLM_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}
	if *fixtureDir == "" {
		*fixtureDir = "/fixtures"
	}

	fixtures, err := loadFixtures(*fixtureDir)
	if err != nil {
		log.Fatalf("Failed to load fixtures from %s: %v", *fixtureDir, err)
	}
	log.Printf("Loaded %d fixture(s) from %s", len(fixtures), *fixtureDir)
	for key := range fixtures {
		log.Printf("  fixture: %s", key)
	}

	s := newServer(fixtures)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/api/generate", s.handleOllamaGenerate)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/requests", s.handleRequests)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock LLM server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	var prompt string
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			prompt = msg.Content
		}
	}

	callNum := s.calls.Add(1)
	content, err := s.respond(callNum, req.Model, prompt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	// Wrap in OpenAI response envelope
	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index: 0,
				Message: chatMessage{
					Role:    "assistant",
					Content: content,
				},
				FinishReason: "stop",
			},
		},
		Usage: chatUsage{
			PromptTokens:     len(prompt) / 4, // rough estimate
			CompletionTokens: len(content) / 4,
			TotalTokens:      (len(prompt) + len(content)) / 4,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *server) handleOllamaGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ollamaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	content, err := s.respond(callNum, req.Model, req.Prompt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ollamaResponse{
		Model:     req.Model,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Response:  content,
		Done:      true,
	})
}

// handleStats returns call counts for test assertions.
// Returns total_calls and per-fixture calls_by_fixture breakdown.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	callsByFixture := make(map[string]int, len(s.fixtureCalls))
	for key, count := range s.fixtureCalls {
		callsByFixture[key] = count
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_calls":      s.calls.Load(),
		"calls_by_fixture": callsByFixture,
	})
}

// handleRequests returns captured request bodies for test assertions.
// Query params:
//   - fixture: filter by fixture key (optional, returns all if omitted)
//
// Returns {"requests_by_fixture": {"scenarios.core": [...], ...}}
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("fixture")

	s.mu.Lock()
	result := make(map[string][]capturedRequest)
	for key, reqs := range s.fixtureRequests {
		if filter != "" && key != filter {
			continue
		}
		result[key] = reqs
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"requests_by_fixture": result,
	})
}

// loadFixtures reads JSON files from dir and returns a map of fixture
// key → content. "scenarios.core.json" keys as "scenarios.core".
func loadFixtures(dir string) (map[string]string, error) {
	fixtures := make(map[string]string)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s", path)
		}

		key := strings.TrimSuffix(info.Name(), ".json")
		fixtures[key] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
