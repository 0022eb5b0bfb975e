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
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-2.5-flash"
	defaultGeminiTimeout = 120 * time.Second
	geminiMaxOutput      = 16384
)

func init() {
	llm.RegisterProvider("gemini", newGemini)
}

// Gemini calls the Gemini generateContent REST API with a JSON response MIME
// type. Retries are the caller's responsibility.
type Gemini struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func newGemini(cfg llm.ProviderConfig) (llm.Provider, error) {
	if cfg.APIKey == "" {
		return nil, llm.NewAuthError(errors.New(
			"Gemini API key is required when using the gemini provider; set GEMINI_API_KEY"))
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGeminiTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Gemini{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: httpClient,
		logger:     slog.Default(),
	}, nil
}

// Name returns the provider identifier.
func (g *Gemini) Name() string {
	return "gemini"
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends the prompt to models/{model}:generateContent.
func (g *Gemini) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	model := g.model
	if opts.ModelID != "" && llm.ModelBelongsTo(opts.ModelID, "gemini") {
		model = opts.ModelID
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      0.3,
			MaxOutputTokens:  geminiMaxOutput,
			ResponseMimeType: "application/json",
		},
	})
	if err != nil {
		return "", llm.NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, model)
	headers := map[string]string{"x-goog-api-key": g.apiKey}

	g.logger.Debug("Gemini request", "model", model)

	respBody, err := postJSON(ctx, g.httpClient, url, headers, body)
	if err != nil {
		return "", err
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", llm.NewFatalError(fmt.Errorf("parse gemini response: %w", err))
	}
	if len(resp.Candidates) == 0 {
		return "", nil
	}
	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}
	return out.String(), nil
}
