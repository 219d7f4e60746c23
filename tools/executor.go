package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomlabs/loom/llm"
)

// Dispatcher executes the batch of tool calls requested in one LLM
// turn and converts outcomes into Results. Errors never escape a
// dispatch: unknown tools, validation failures, and execution failures
// all become error-flagged Results the loop can feed back to the LLM.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch executes every tool call in order and returns one Result
// per call, preserving input order. Calls without an ID get a fresh
// uuid so tool results can always be correlated.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []llm.ToolCall) []Result {
	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		results = append(results, d.dispatchOne(ctx, call))
	}
	return results
}

// dispatchOne uses a named return so the deferred timing write lands
// in the Result the caller receives.
func (d *Dispatcher) dispatchOne(ctx context.Context, call llm.ToolCall) (result Result) {
	id := call.ID
	if id == "" {
		id = uuid.New().String()
	}

	result = Result{
		ToolCallID: id,
		ToolName:   call.Name,
	}

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		result.IsError = true
		result.Content = fmt.Sprintf("unknown tool: %s", call.Name)
		return result
	}

	start := time.Now()
	defer func() {
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
	}()

	if err := tool.Validate(call.Arguments); err != nil {
		result.IsError = true
		result.Content = fmt.Sprintf("invalid arguments for %s: %v", call.Name, err)
		return result
	}

	output, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		result.IsError = true
		result.Content = fmt.Sprintf("tool %s failed: %v", call.Name, err)
		return result
	}

	result.Content = output
	return result
}
