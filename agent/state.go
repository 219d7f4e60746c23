// Package agent implements the recursive turn-taking execution loop:
// LLM call, tool dispatch, recursion control, message preparation,
// repeated until the model stops requesting tools or a termination
// heuristic fires.
//
// Information Hiding:
// - Loop state transitions and termination order
// - Guidance and depth-hint message construction
// - When and how compression is applied mid-conversation
package agent

import (
	"sync"

	"github.com/google/uuid"
)

// TurnState is an immutable snapshot of loop progress. Every recursive
// step produces a new instance via NextTurn; no component mutates a
// TurnState in place.
type TurnState struct {
	TurnCounter     int
	TurnID          string
	MaxIterations   int
	Depth           int
	ToolCallHistory []string
	ErrorCount      int
}

// InitialTurnState creates the state for a fresh loop.
func InitialTurnState(maxIterations int) TurnState {
	return TurnState{
		TurnCounter:   0,
		TurnID:        uuid.New().String(),
		MaxIterations: maxIterations,
	}
}

// NextTurn derives the state for the next recursive step: the counter
// and depth advance by exactly one, the tool-call history grows by the
// names just dispatched, and a fresh turn id is assigned. The receiver
// is left untouched.
func (s TurnState) NextTurn(toolNames []string, newErrors int) TurnState {
	history := make([]string, 0, len(s.ToolCallHistory)+len(toolNames))
	history = append(history, s.ToolCallHistory...)
	history = append(history, toolNames...)

	return TurnState{
		TurnCounter:     s.TurnCounter + 1,
		TurnID:          uuid.New().String(),
		MaxIterations:   s.MaxIterations,
		Depth:           s.Depth + 1,
		ToolCallHistory: history,
		ErrorCount:      s.ErrorCount + newErrors,
	}
}

// RecursionState is the transient snapshot handed to the Monitor.
// Constructed fresh per check and never persisted.
type RecursionState struct {
	Iteration       int
	ToolCallHistory []string
	ErrorCount      int
	LastOutputs     []string
}

// ExecutionContext carries per-run identity and an observability
// side-channel shared between loop components. Metadata access is
// goroutine-safe.
type ExecutionContext struct {
	CorrelationID string
	WorkDir       string

	mu       sync.RWMutex
	metadata map[string]any
}

// NewExecutionContext creates a context with a generated correlation id.
func NewExecutionContext(workDir string) *ExecutionContext {
	return &ExecutionContext{
		CorrelationID: uuid.New().String(),
		WorkDir:       workDir,
		metadata:      make(map[string]any),
	}
}

// SetMetadata records an observability value under key.
func (c *ExecutionContext) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Metadata returns the value recorded under key.
func (c *ExecutionContext) Metadata(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.metadata[key]
	return v, ok
}
