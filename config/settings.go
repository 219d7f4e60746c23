// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig
	Agent     AgentConfig
	Context   ContextConfig
	Recursion RecursionConfig
	Storage   StorageConfig
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	MaxTokens   uint32
	Temperature float64
}

// AgentConfig holds turn-taking loop configuration.
type AgentConfig struct {
	MaxIterations    int
	RecursionControl bool
}

// ContextConfig holds token budgeting and compression configuration.
type ContextConfig struct {
	MaxContextTokens     int
	CompressionThreshold float64
	CompressionRetries   int
	FallbackWindowSize   int
}

// RecursionConfig holds recursion-monitor heuristics.
type RecursionConfig struct {
	DuplicateThreshold  int
	LoopDetectionWindow int
	ErrorThreshold      float64
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DatabasePath string
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-3-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// New creates settings for the specified provider, loading values from
// environment variables. Returns an error if the provider is unknown
// or environment variables contain invalid values.
func New(provider string) (Settings, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}
	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}

	maxIterations, err := getEnvInt("AGENT_MAX_ITERATIONS", 10)
	if err != nil {
		return Settings{}, err
	}
	recursionControl, err := getEnvBool("AGENT_RECURSION_CONTROL", true)
	if err != nil {
		return Settings{}, err
	}

	maxContextTokens, err := getEnvInt("CONTEXT_MAX_TOKENS", 100000)
	if err != nil {
		return Settings{}, err
	}
	compressionThreshold, err := getEnvFloat64("COMPRESSION_THRESHOLD", 0.92)
	if err != nil {
		return Settings{}, err
	}
	compressionRetries, err := getEnvInt("COMPRESSION_MAX_RETRIES", 3)
	if err != nil {
		return Settings{}, err
	}
	fallbackWindow, err := getEnvInt("COMPRESSION_WINDOW_SIZE", 10)
	if err != nil {
		return Settings{}, err
	}

	duplicateThreshold, err := getEnvInt("RECURSION_DUPLICATE_THRESHOLD", 3)
	if err != nil {
		return Settings{}, err
	}
	loopWindow, err := getEnvInt("RECURSION_LOOP_WINDOW", 3)
	if err != nil {
		return Settings{}, err
	}
	errorThreshold, err := getEnvFloat64("RECURSION_ERROR_THRESHOLD", 0.5)
	if err != nil {
		return Settings{}, err
	}

	// Get model from environment or use default
	model := os.Getenv(info.modelEnv)
	if model == "" {
		model = info.defaultModel
	}

	return Settings{
		LLM: LLMConfig{
			Provider:    provider,
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
		Agent: AgentConfig{
			MaxIterations:    maxIterations,
			RecursionControl: recursionControl,
		},
		Context: ContextConfig{
			MaxContextTokens:     maxContextTokens,
			CompressionThreshold: compressionThreshold,
			CompressionRetries:   compressionRetries,
			FallbackWindowSize:   fallbackWindow,
		},
		Recursion: RecursionConfig{
			DuplicateThreshold:  duplicateThreshold,
			LoopDetectionWindow: loopWindow,
			ErrorThreshold:      errorThreshold,
		},
		Storage: StorageConfig{
			DatabasePath: getEnvString("LOOM_DB_PATH", ""),
		},
	}, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// APIKeyEnv returns the API key environment variable for the
// configured provider.
func (s Settings) APIKeyEnv() string {
	if info, ok := providers[s.LLM.Provider]; ok {
		return info.apiKeyEnv
	}
	return ""
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer", key, value)
	}
	return parsed, nil
}

func getEnvUint32(key string, defaultValue uint32) (uint32, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an unsigned integer", key, value)
	}
	return uint32(parsed), nil
}

func getEnvFloat64(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not a number", key, value)
	}
	return parsed, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q is not a boolean", key, value)
	}
	return parsed, nil
}
