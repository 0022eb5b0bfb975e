package llm

import "strings"

// Model profiles exposed by legacy callers. Profiles are a coarse knob that
// predates model ids; model ids take precedence wherever both are given.
const (
	ProfileFast    = "fast"
	ProfileSmart   = "smart"
	ProfilePrivate = "private"
)

// modelProviders maps concrete model identifiers to the provider family that
// serves them. Used when a caller supplies a model id instead of a provider
// name.
var modelProviders = map[string]string{
	"gpt-4o-mini":             "openai",
	"gpt-4o":                  "openai",
	"gemini-2.5-flash":        "gemini",
	"llama-3.3-70b-versatile": "groq",
	"llama3.2:3b":             "ollama",
}

// openaiModelByProfile maps legacy profiles to OpenAI models. The private
// profile routes to ollama and has no entry here.
var openaiModelByProfile = map[string]string{
	ProfileFast:  "gpt-4o-mini",
	ProfileSmart: "gpt-4o",
}

// ProviderForModel returns the provider family serving a model id, or ""
// when the model is unknown.
func ProviderForModel(modelID string) string {
	return modelProviders[strings.TrimSpace(modelID)]
}

// ModelBelongsTo reports whether a model id belongs to the given provider.
func ModelBelongsTo(modelID, provider string) bool {
	return ProviderForModel(modelID) == provider
}

// ResolveProfileModel maps a legacy profile to a model name for the openai
// family, falling back to the configured default for private or unknown
// profiles.
func ResolveProfileModel(profile, fallback string) string {
	if profile == "" {
		return fallback
	}
	if m, ok := openaiModelByProfile[strings.ToLower(strings.TrimSpace(profile))]; ok {
		return m
	}
	return fallback
}
