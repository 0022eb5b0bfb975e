package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/casegen/llm"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "llama3.2:3b"
	defaultOllamaTimeout = 600 * time.Second
)

func init() {
	llm.RegisterProvider("ollama", newOllama)
}

// Ollama calls a local Ollama HTTP API. Unlike the hosted backends it
// performs its own bounded retry on transient failures: a local model server
// restarts and hiccups often enough that pushing every blip to the caller
// would be noise.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
	retry      llm.RetryConfig
	logger     *slog.Logger
}

func newOllama(cfg llm.ProviderConfig) (llm.Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Ollama{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: httpClient,
		retry:      llm.DefaultRetryConfig(),
		logger:     slog.Default(),
	}, nil
}

// Name returns the provider identifier.
func (o *Ollama) Name() string {
	return "ollama"
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format"`
	Options map[string]any `json:"options"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends the prompt to /api/generate with JSON-constrained output,
// retrying transient failures with exponential backoff.
func (o *Ollama) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	model := o.model
	if opts.ModelID != "" && llm.ModelBelongsTo(opts.ModelID, "ollama") {
		model = opts.ModelID
	}

	body, err := json.Marshal(ollamaRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
		Options: map[string]any{
			"temperature": 0.1,
			"top_p":       0.9,
			"num_predict": 16000,
		},
	})
	if err != nil {
		return "", llm.NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	var lastErr error
	for attempt := 1; attempt <= o.retry.MaxAttempts; attempt++ {
		o.logger.Debug("Requesting generation from Ollama",
			"model", model,
			"attempt", attempt,
			"max_attempts", o.retry.MaxAttempts)

		respBody, err := postJSON(ctx, o.httpClient, o.baseURL+"/api/generate", nil, body)
		if err == nil {
			var resp ollamaResponse
			if err := json.Unmarshal(respBody, &resp); err != nil {
				return "", llm.NewFatalError(fmt.Errorf("parse ollama response: %w", err))
			}
			return resp.Response, nil
		}

		lastErr = err
		if llm.IsFatal(err) {
			return "", err
		}
		if attempt < o.retry.MaxAttempts {
			backoff := llm.Backoff(o.retry, attempt)
			o.logger.Warn("Ollama request failed, retrying",
				"attempt", attempt,
				"backoff", backoff,
				"error", err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return "", lastErr
}
