package config

import (
	"strings"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	t.Setenv("LLM_MAX_TOKENS", "")
	t.Setenv("AGENT_MAX_ITERATIONS", "")
	t.Setenv("CONTEXT_MAX_TOKENS", "")

	settings, err := New("openai")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if settings.LLM.Provider != "openai" || settings.LLM.Model != "gpt-4o" {
		t.Errorf("LLM config = %+v", settings.LLM)
	}
	if settings.LLM.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d", settings.LLM.MaxTokens)
	}
	if settings.Agent.MaxIterations != 10 || !settings.Agent.RecursionControl {
		t.Errorf("Agent config = %+v", settings.Agent)
	}
	if settings.Context.MaxContextTokens != 100000 {
		t.Errorf("MaxContextTokens = %d", settings.Context.MaxContextTokens)
	}
	if settings.Context.CompressionThreshold != 0.92 {
		t.Errorf("CompressionThreshold = %f", settings.Context.CompressionThreshold)
	}
	if settings.Recursion.DuplicateThreshold != 3 || settings.Recursion.ErrorThreshold != 0.5 {
		t.Errorf("Recursion config = %+v", settings.Recursion)
	}
}

func TestNewAliases(t *testing.T) {
	for alias, canonical := range map[string]string{
		"claude": "anthropic",
		"gpt":    "openai",
		"google": "gemini",
	} {
		settings, err := New(alias)
		if err != nil {
			t.Errorf("New(%q): %v", alias, err)
			continue
		}
		if settings.LLM.Provider != canonical {
			t.Errorf("New(%q).Provider = %q, want %q", alias, settings.LLM.Provider, canonical)
		}
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New("cohere"); err == nil {
		t.Error("unknown provider should fail")
	}
}

func TestNewEnvOverrides(t *testing.T) {
	t.Setenv("AGENT_MAX_ITERATIONS", "25")
	t.Setenv("COMPRESSION_THRESHOLD", "0.8")
	t.Setenv("RECURSION_LOOP_WINDOW", "5")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("AGENT_RECURSION_CONTROL", "false")

	settings, err := New("openai")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if settings.Agent.MaxIterations != 25 {
		t.Errorf("MaxIterations = %d", settings.Agent.MaxIterations)
	}
	if settings.Agent.RecursionControl {
		t.Error("RecursionControl should be disabled")
	}
	if settings.Context.CompressionThreshold != 0.8 {
		t.Errorf("CompressionThreshold = %f", settings.Context.CompressionThreshold)
	}
	if settings.Recursion.LoopDetectionWindow != 5 {
		t.Errorf("LoopDetectionWindow = %d", settings.Recursion.LoopDetectionWindow)
	}
	if settings.LLM.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", settings.LLM.Model)
	}
}

func TestNewInvalidEnv(t *testing.T) {
	t.Setenv("AGENT_MAX_ITERATIONS", "lots")

	_, err := New("openai")
	if err == nil {
		t.Fatal("invalid integer should fail")
	}
	if !strings.Contains(err.Error(), "AGENT_MAX_ITERATIONS") {
		t.Errorf("error should name the variable: %v", err)
	}
}

func TestAPIKeyEnv(t *testing.T) {
	settings, _ := New("anthropic")
	if got := settings.APIKeyEnv(); got != "ANTHROPIC_API_KEY" {
		t.Errorf("APIKeyEnv = %q", got)
	}
}
