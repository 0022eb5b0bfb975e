package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360studio/casegen/llm"
	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultOpenAITimeout = 120 * time.Second
)

func init() {
	llm.RegisterProvider("openai", newOpenAI)
}

// OpenAI calls the OpenAI chat completions API through the go-openai SDK.
// Transient failures are surfaced for the caller to retry.
type OpenAI struct {
	client       *openai.Client
	defaultModel string
	logger       *slog.Logger
}

func newOpenAI(cfg llm.ProviderConfig) (llm.Provider, error) {
	if cfg.APIKey == "" {
		return nil, llm.NewAuthError(errors.New(
			"OpenAI API key is required when using the openai provider; set OPENAI_API_KEY"))
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOpenAITimeout
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: model,
		logger:       slog.Default(),
	}, nil
}

// Name returns the provider identifier.
func (o *OpenAI) Name() string {
	return "openai"
}

// Generate sends the prompt as a single user message. The model comes from
// the exact model id when it belongs to this family, else the legacy
// profile mapping, else the configured default. Output tokens are budgeted
// dynamically from the prompt size, context window, and coverage level.
func (o *OpenAI) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	model := o.defaultModel
	if opts.ModelID != "" && llm.ModelBelongsTo(opts.ModelID, "openai") {
		model = opts.ModelID
	} else {
		model = llm.ResolveProfileModel(opts.ModelProfile, model)
	}
	maxTokens := llm.MaxOutputTokens(prompt, opts.CoverageLevel, model, 0)

	o.logger.Debug("OpenAI request", "model", model, "max_tokens", maxTokens)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyOpenAIError maps SDK errors into the llm error taxonomy.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		classified := llm.ClassifyHTTPError(apiErr.HTTPStatusCode, []byte(apiErr.Message))
		return fmt.Errorf("openai: %w", classified)
	}
	// Anything below the HTTP layer (DNS, timeouts, connection resets).
	return llm.NewTransientError(fmt.Errorf("openai request failed: %w", err))
}
