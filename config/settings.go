// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/switchboard/llm"
)

// Settings holds all application configuration.
type Settings struct {
	LLM     LLMConfig
	Journal JournalConfig
	Log     LogConfig
}

// LLMConfig holds provider-independent LLM configuration.
type LLMConfig struct {
	Provider    llm.ProviderID // empty when the user picks interactively
	MaxTokens   int64
	Timeout     time.Duration
	FullHistory bool
}

// JournalConfig holds turn journal configuration.
type JournalConfig struct {
	Path string // empty disables the journal
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level slog.Level
}

// providerInfo holds environment variable names for a specific provider.
type providerInfo struct {
	modelEnv   string
	apiKeyEnv  string
	baseURLEnv string
}

// Supported providers and their configuration.
var providers = map[llm.ProviderID]providerInfo{
	llm.Gemini:    {"GEMINI_MODEL", "GEMINI_API_KEY", "GEMINI_BASE_URL"},
	llm.OpenAI:    {"OPENAI_MODEL", "OPENAI_API_KEY", "OPENAI_BASE_URL"},
	llm.Groq:      {"GROQ_MODEL", "GROQ_API_KEY", "GROQ_BASE_URL"},
	llm.Anthropic: {"ANTHROPIC_MODEL", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL"},
	llm.Cohere:    {"COHERE_MODEL", "COHERE_API_KEY", "COHERE_BASE_URL"},
}

// New creates settings, loading values from environment variables.
// An empty provider falls back to SWITCHBOARD_PROVIDER; if that is unset too,
// LLM.Provider stays empty. Returns an error if the provider is unknown or
// environment variables contain invalid values.
func New(provider string) (Settings, error) {
	if provider == "" {
		provider = os.Getenv("SWITCHBOARD_PROVIDER")
	}

	var id llm.ProviderID
	if provider != "" {
		var err error
		id, err = normalizeProvider(provider)
		if err != nil {
			return Settings{}, err
		}
	}

	// Zero leaves the reply length to each vendor; Anthropic applies its own floor.
	maxTokens, err := getEnvInt64("LLM_MAX_TOKENS", 0)
	if err != nil {
		return Settings{}, err
	}
	if maxTokens < 0 {
		return Settings{}, fmt.Errorf("invalid value for LLM_MAX_TOKENS: must not be negative, got %d", maxTokens)
	}

	timeout, err := getEnvDuration("LLM_TIMEOUT", 0)
	if err != nil {
		return Settings{}, err
	}

	fullHistory, err := getEnvBool("GEMINI_FULL_HISTORY", false)
	if err != nil {
		return Settings{}, err
	}

	level, err := getEnvLevel("LOG_LEVEL", slog.LevelWarn)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		LLM: LLMConfig{
			Provider:    id,
			MaxTokens:   maxTokens,
			Timeout:     timeout,
			FullHistory: fullHistory,
		},
		Journal: JournalConfig{
			Path: os.Getenv("SWITCHBOARD_JOURNAL"),
		},
		Log: LogConfig{
			Level: level,
		},
	}, nil
}

// ProviderOptions returns adapter options for a provider: per-provider model
// and base URL overrides plus the shared token and history settings.
// Unset values are left zero so the registry defaults apply.
func (s Settings) ProviderOptions(id llm.ProviderID) llm.Options {
	opts := llm.Options{
		MaxTokens: s.LLM.MaxTokens,
	}
	if info, ok := providers[id]; ok {
		opts.Model = os.Getenv(info.modelEnv)
		opts.BaseURL = os.Getenv(info.baseURLEnv)
	}
	if id == llm.Gemini {
		opts.FullHistory = s.LLM.FullHistory
	}
	return opts
}

// normalizeProvider converts provider names and aliases to canonical ids.
func normalizeProvider(provider string) (llm.ProviderID, error) {
	id, err := llm.ParseProviderID(provider)
	if err != nil {
		return "", err
	}
	if _, ok := providers[id]; !ok {
		return "", fmt.Errorf("%w: %q", llm.ErrUnknownProvider, provider)
	}
	return id, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	id, err := normalizeProvider(provider)
	if err != nil {
		return "", err
	}

	info := providers[id]
	key := strings.TrimSpace(os.Getenv(info.apiKeyEnv))
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first
// and falling back to the registry default.
func ModelFor(provider string) (string, error) {
	id, err := normalizeProvider(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(providers[id].modelEnv); val != "" {
		return val, nil
	}
	entry, err := llm.DefaultRegistry().Lookup(id)
	if err != nil {
		return "", err
	}
	return entry.DefaultModel, nil
}

// Environment variable helpers with proper error handling

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid value for %s: %q: must not be negative", key, val)
	}
	return d, nil
}

func getEnvLevel(key string, defaultVal slog.Level) (slog.Level, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(val)); err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return level, nil
}
