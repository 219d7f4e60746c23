package agent

import "fmt"

// Config holds the loop's tunable limits. Use DefaultConfig and adjust
// fields; Validate runs at executor construction.
type Config struct {
	// MaxIterations bounds the number of recursive steps.
	MaxIterations int

	// MaxContextTokens is the context-window budget driving compression.
	MaxContextTokens int

	// RecursionControl enables the Monitor's termination heuristics.
	// The hard iteration limit applies regardless.
	RecursionControl bool

	// SuppressGuidance drops the synthetic guidance message from
	// prepared message lists.
	SuppressGuidance bool
}

// DefaultConfig returns the standard loop limits.
func DefaultConfig() Config {
	return Config{
		MaxIterations:    10,
		MaxContextTokens: 100000,
		RecursionControl: true,
	}
}

// Validate surfaces configuration errors before the loop runs.
func (c Config) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be > 0, got %d", c.MaxIterations)
	}
	if c.MaxContextTokens <= 0 {
		return fmt.Errorf("max context tokens must be > 0, got %d", c.MaxContextTokens)
	}
	return nil
}
