package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/casegen/llm"
)

const (
	defaultGroqBaseURL = "https://api.groq.com/openai"
	defaultGroqModel   = "llama-3.3-70b-versatile"
	defaultGroqTimeout = 120 * time.Second
	groqMaxTokens      = 16384
)

func init() {
	llm.RegisterProvider("groq", newGroq)
}

// Groq calls the Groq OpenAI-compatible chat completions API. Retries are
// the caller's responsibility.
type Groq struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func newGroq(cfg llm.ProviderConfig) (llm.Provider, error) {
	if cfg.APIKey == "" {
		return nil, llm.NewAuthError(errors.New(
			"Groq API key is required when using the groq provider; set GROQ_API_KEY"))
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultGroqModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGroqTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Groq{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: httpClient,
		logger:     slog.Default(),
	}, nil
}

// Name returns the provider identifier.
func (g *Groq) Name() string {
	return "groq"
}

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	Choices []struct {
		Message groqMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends the prompt as a single user message.
func (g *Groq) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	model := g.model
	if opts.ModelID != "" && llm.ModelBelongsTo(opts.ModelID, "groq") {
		model = opts.ModelID
	}

	body, err := json.Marshal(groqRequest{
		Model:       model,
		Messages:    []groqMessage{{Role: "user", Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   groqMaxTokens,
	})
	if err != nil {
		return "", llm.NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	g.logger.Debug("Groq request", "model", model, "max_tokens", groqMaxTokens)

	respBody, err := postJSON(ctx, g.httpClient, g.baseURL+"/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + g.apiKey}, body)
	if err != nil {
		return "", err
	}

	var resp groqResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", llm.NewFatalError(fmt.Errorf("parse groq response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
