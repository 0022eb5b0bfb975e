// Package llm provides a provider-agnostic text generation client over
// multiple LLM backends with retry, error classification, and dynamic
// output-token budgeting.
package llm

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// GenerateOptions selects the backend and model for one generation call.
type GenerateOptions struct {
	// Provider is the explicit provider name (openai, ollama, gemini, groq).
	// Overridden by ModelID when the model id resolves to a provider.
	Provider string

	// ModelID selects an exact model (e.g. "gpt-4o-mini"). Takes precedence
	// over ModelProfile and the configured default.
	ModelID string

	// ModelProfile is the legacy profile knob: fast, smart, or private.
	ModelProfile string

	// CoverageLevel bounds the output token budget (low, medium, high,
	// comprehensive).
	CoverageLevel string
}

// Provider generates raw model output for a prompt. Implementations own
// their transport, model selection, and timeout policy.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "ollama").
	Name() string

	// Generate sends the prompt and returns the raw response text. Callers
	// are responsible for parsing and validating the output.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// ProviderConfig carries per-provider settings.
type ProviderConfig struct {
	// BaseURL overrides the provider's default endpoint.
	BaseURL string

	// APIKey is the provider credential. Empty means unauthenticated;
	// providers that require a key fail construction with an AuthError.
	APIKey string

	// Model is the default model for this provider.
	Model string

	// Timeout bounds one request.
	Timeout time.Duration

	// HTTPClient overrides the HTTP client, used by tests.
	HTTPClient *http.Client
}

// Constructor builds a provider from its configuration.
type Constructor func(cfg ProviderConfig) (Provider, error)

var (
	constructorRegistry = make(map[string]Constructor)
	constructorMu       sync.RWMutex
)

// RegisterProvider adds a provider constructor to the registry. Providers
// self-register via init().
func RegisterProvider(name string, ctor Constructor) {
	constructorMu.Lock()
	defer constructorMu.Unlock()
	constructorRegistry[name] = ctor
}

// NewProvider constructs a provider by name. Unknown names fail with an
// UnsupportedProviderError.
func NewProvider(name string, cfg ProviderConfig) (Provider, error) {
	constructorMu.RLock()
	ctor, ok := constructorRegistry[name]
	constructorMu.RUnlock()
	if !ok {
		return nil, &UnsupportedProviderError{Name: name}
	}
	return ctor(cfg)
}

// RegisteredProviders returns all registered provider names, sorted.
func RegisteredProviders() []string {
	constructorMu.RLock()
	defer constructorMu.RUnlock()

	names := make([]string, 0, len(constructorRegistry))
	for name := range constructorRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
