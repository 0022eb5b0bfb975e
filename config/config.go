// Package config provides configuration loading for casegen.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/casegen/llm"
)

// Config represents the complete casegen configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	// Addr is the listen address (default: ":8000")
	Addr string `yaml:"addr"`
	// ReadTimeout bounds request reads
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout bounds response writes; generous because generation
	// requests run for minutes
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ProvidersConfig configures the LLM backends
type ProvidersConfig struct {
	// Default is the provider used when a request names none
	Default string         `yaml:"default"`
	OpenAI  ProviderConfig `yaml:"openai"`
	Ollama  ProviderConfig `yaml:"ollama"`
	Gemini  ProviderConfig `yaml:"gemini"`
	Groq    ProviderConfig `yaml:"groq"`
}

// ProviderConfig configures one LLM backend
type ProviderConfig struct {
	// BaseURL overrides the provider endpoint (required for ollama)
	BaseURL string `yaml:"base_url"`
	// APIKey is the provider credential (not needed for ollama)
	APIKey string `yaml:"api_key"`
	// Model is the default model for this provider
	Model string `yaml:"model"`
	// Timeout is the maximum time to wait for model responses
	Timeout time.Duration `yaml:"timeout"`
}

// DedupConfig configures semantic deduplication
type DedupConfig struct {
	// Threshold is the cosine similarity above which two items are
	// duplicates (0-1)
	Threshold float64 `yaml:"threshold"`
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	// Level is debug, info, warn, or error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 15 * time.Minute,
		},
		Providers: ProvidersConfig{
			Default: "openai",
			OpenAI:  ProviderConfig{Model: "gpt-4o-mini", Timeout: 2 * time.Minute},
			Ollama:  ProviderConfig{BaseURL: "http://localhost:11434", Model: "llama3.2:3b", Timeout: 10 * time.Minute},
			Gemini:  ProviderConfig{Model: "gemini-2.5-flash", Timeout: 2 * time.Minute},
			Groq:    ProviderConfig{Model: "llama-3.3-70b-versatile", Timeout: 2 * time.Minute},
		},
		Dedup: DedupConfig{
			Threshold: 0.90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Providers.Default == "" {
		return fmt.Errorf("providers.default is required")
	}
	switch c.Providers.Default {
	case "openai", "ollama", "gemini", "groq":
	default:
		return fmt.Errorf("providers.default must be one of openai, ollama, gemini, groq; got %q", c.Providers.Default)
	}
	if c.Dedup.Threshold < 0 || c.Dedup.Threshold > 1 {
		return fmt.Errorf("dedup.threshold must be between 0 and 1")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error; got %q", c.Logging.Level)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// Load loads configuration with layered precedence: defaults, then the
// YAML file (when path is non-empty), then environment variables.
func Load(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv overrides configuration from environment variables. Credentials
// normally arrive this way rather than through the file.
func (c *Config) applyEnv() {
	setString(&c.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.Providers.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.Providers.Groq.APIKey, "GROQ_API_KEY")
	setString(&c.Providers.Ollama.BaseURL, "OLLAMA_BASE_URL")
	setString(&c.Providers.Default, "CASEGEN_DEFAULT_PROVIDER")
	setString(&c.Server.Addr, "CASEGEN_ADDR")
	setString(&c.Logging.Level, "CASEGEN_LOG_LEVEL")
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// LLMConfig converts the provider section into the llm client
// configuration.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		DefaultProvider: c.Providers.Default,
		Providers: map[string]llm.ProviderConfig{
			"openai": providerConfig(c.Providers.OpenAI),
			"ollama": providerConfig(c.Providers.Ollama),
			"gemini": providerConfig(c.Providers.Gemini),
			"groq":   providerConfig(c.Providers.Groq),
		},
	}
}

func providerConfig(pc ProviderConfig) llm.ProviderConfig {
	return llm.ProviderConfig{
		BaseURL: pc.BaseURL,
		APIKey:  pc.APIKey,
		Model:   pc.Model,
		Timeout: pc.Timeout,
	}
}

// OpenAIKey returns the credential the embedding-based dedup uses.
func (c *Config) OpenAIKey() string {
	return c.Providers.OpenAI.APIKey
}
