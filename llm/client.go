package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Config configures a Client with per-provider settings and a default
// provider used when a request names neither a provider nor a model id.
type Config struct {
	DefaultProvider string
	Providers       map[string]ProviderConfig
}

// Client routes generation requests to the right provider, constructing and
// caching provider instances lazily.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	instances map[string]Provider
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client over registered providers.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:       cfg,
		logger:    slog.Default(),
		instances: make(map[string]Provider),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveProviderName decides which provider serves a request: the model id
// mapping wins, then the explicit provider name, then the configured default.
// A model id that maps to no provider fails unless an explicit provider name
// is given alongside it.
func (c *Client) ResolveProviderName(opts GenerateOptions) (string, error) {
	if opts.ModelID != "" {
		if name := ProviderForModel(opts.ModelID); name != "" {
			return name, nil
		}
		if opts.Provider == "" {
			return "", &UnsupportedProviderError{Name: opts.ModelID}
		}
	}
	if opts.Provider != "" {
		return strings.ToLower(strings.TrimSpace(opts.Provider)), nil
	}
	if opts.ModelProfile == ProfilePrivate {
		return "ollama", nil
	}
	return c.cfg.DefaultProvider, nil
}

// Generate sends the prompt to the resolved provider and returns the raw
// model output.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	name, err := c.ResolveProviderName(opts)
	if err != nil {
		return "", err
	}
	provider, err := c.provider(name)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Sending LLM request",
		"provider", name,
		"model_id", opts.ModelID,
		"model_profile", opts.ModelProfile,
		"coverage_level", opts.CoverageLevel,
		"prompt_chars", len(prompt))

	started := time.Now()
	out, err := provider.Generate(ctx, prompt, opts)
	observeRequest(name, time.Since(started), err)
	if err != nil {
		return "", fmt.Errorf("provider %s: %w", name, err)
	}
	return out, nil
}

// provider returns the cached instance for a name, constructing it on first
// use. Construction failures (unknown name, missing credentials) are not
// cached.
func (c *Client) provider(name string) (Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.instances[name]; ok {
		return p, nil
	}
	p, err := NewProvider(name, c.cfg.Providers[name])
	if err != nil {
		return nil, err
	}
	c.instances[name] = p
	return p, nil
}
