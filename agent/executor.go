package agent

import (
	"context"
	"fmt"

	"github.com/loomlabs/loom/compression"
	"github.com/loomlabs/loom/internal/dsa"
	"github.com/loomlabs/loom/llm"
	"github.com/loomlabs/loom/tools"
)

// Executor drives the turn-taking loop. Construct with NewExecutor,
// attach collaborators with the With* methods, then consume the event
// stream from TT (or use Execute for just the final answer).
type Executor struct {
	provider   llm.Provider
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	monitor    *Monitor
	preparer   *Preparer
	config     Config
}

// NewExecutor creates an executor for the given provider and limits.
func NewExecutor(provider llm.Provider, config Config) (*Executor, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	preparer := NewPreparer(config.MaxContextTokens)
	if config.SuppressGuidance {
		preparer.WithoutGuidance()
	}

	return &Executor{
		provider: provider,
		monitor:  NewMonitor(config.MaxIterations),
		preparer: preparer,
		config:   config,
	}, nil
}

// WithTools attaches a tool registry; the loop advertises its
// definitions to the LLM and dispatches requested calls.
func (e *Executor) WithTools(registry *tools.Registry) *Executor {
	e.registry = registry
	e.dispatcher = tools.NewDispatcher(registry)
	return e
}

// WithCompressor enables history compression once the context budget
// is exceeded.
func (e *Executor) WithCompressor(c *compression.Manager) *Executor {
	e.preparer.WithCompressor(c)
	return e
}

// WithMonitor replaces the default recursion monitor.
func (e *Executor) WithMonitor(m *Monitor) *Executor {
	e.monitor = m
	return e
}

// TT runs the turn-taking loop and streams events. The channel closes
// after a terminal event (agent_finish, recursion_terminated,
// max_iterations_reached, or error). Cancel ctx to stop the loop; it
// emits a final phase_end reflecting partial completion.
func (e *Executor) TT(ctx context.Context, execCtx *ExecutionContext, messages []llm.Message) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		e.run(ctx, execCtx, messages, events)
	}()
	return events
}

// Execute runs the loop to completion and returns the final content.
// Errors announced on the event stream are returned after the stream
// drains. Recursion-control and max-iteration stops are not errors;
// the partial content is returned.
func (e *Executor) Execute(ctx context.Context, messages []llm.Message) (string, error) {
	execCtx := NewExecutionContext("")

	var content string
	var runErr error
	for event := range e.TT(ctx, execCtx, messages) {
		switch event.Type {
		case EventAgentFinish:
			content = event.Content
		case EventRecursionTerminated, EventMaxIterationsReached:
			if partial, ok := event.Data["partial_content"].(string); ok {
				content = partial
			}
		case EventError:
			runErr = event.Err
		}
	}
	return content, runErr
}

func (e *Executor) run(ctx context.Context, execCtx *ExecutionContext, messages []llm.Message, events chan<- Event) {
	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	state := InitialTurnState(e.config.MaxIterations)
	history := append([]llm.Message{}, messages...)
	outputs := dsa.NewRing[string](2 * e.monitor.LoopWindow())
	finalContent := ""

	start := newEvent(EventPhaseStart)
	if execCtx != nil {
		start.Data = map[string]any{"correlation_id": execCtx.CorrelationID}
	}
	if !emit(start) {
		return
	}

	for {
		// Cancellation is checked at the top of every iteration and
		// honored before any further LLM or tool call.
		if ctx.Err() != nil {
			end := newEvent(EventPhaseEnd)
			end.Content = finalContent
			end.Data = map[string]any{"cancelled": true}
			select {
			case events <- end:
			default:
			}
			return
		}

		iterStart := newEvent(EventIterationStart)
		iterStart.Iteration = state.TurnCounter
		if !emit(iterStart) {
			return
		}
		if !emit(newEvent(EventLLMStart)) {
			return
		}

		resp, err := e.callLLM(ctx, history)
		if err != nil {
			ev := newEvent(EventError)
			ev.Err = fmt.Errorf("llm call failed: %w", err)
			emit(ev)
			return
		}

		complete := newEvent(EventLLMComplete)
		complete.Content = resp.Content
		if !emit(complete) {
			return
		}

		outputs.Push(resp.Content)
		if resp.Content != "" {
			finalContent = resp.Content
		}

		if !resp.HasToolCalls() {
			finish := newEvent(EventAgentFinish)
			finish.Content = resp.Content
			finish.Iteration = state.TurnCounter
			emit(finish)
			emit(newEvent(EventPhaseEnd))
			return
		}

		toolCallsEv := newEvent(EventLLMToolCalls)
		toolCallsEv.Data = map[string]any{"count": len(resp.ToolCalls)}
		if !emit(toolCallsEv) {
			return
		}

		assistant := llm.AssistantMessage(resp.Content)
		assistant.ToolCalls = resp.ToolCalls
		history = append(history, assistant)

		results, ok := e.dispatch(ctx, resp.ToolCalls, emit)
		if !ok {
			return
		}

		toolNames := make([]string, len(results))
		errCount := 0
		for i, r := range results {
			toolNames[i] = r.ToolName
			if r.IsError {
				errCount++
			}
		}

		next := state.NextTurn(toolNames, errCount)
		snapshot := RecursionState{
			Iteration:       next.TurnCounter,
			ToolCallHistory: next.ToolCallHistory,
			ErrorCount:      next.ErrorCount,
			LastOutputs:     outputs.Items(),
		}

		if reason := e.checkTermination(snapshot); reason != "" {
			ev := newEvent(EventRecursionTerminated)
			if reason == TerminationMaxIterations {
				ev = newEvent(EventMaxIterationsReached)
			}
			ev.Reason = reason
			ev.Iteration = next.TurnCounter
			ev.Content = e.monitor.TerminationMessage(reason)
			ev.Data = map[string]any{
				"partial_content":   finalContent,
				"tool_call_history": snapshot.ToolCallHistory,
			}
			emit(ev)
			emit(newEvent(EventPhaseEnd))
			return
		}

		advisory := ""
		if e.config.RecursionControl {
			advisory, _ = e.monitor.ShouldWarn(snapshot)
		}

		prepared, meta := e.preparer.Prepare(ctx, execCtx, next, history, results, advisory)
		if meta != nil {
			ev := newEvent(EventCompressionApplied)
			ev.Data = map[string]any{
				"original_tokens":   meta.OriginalTokens,
				"compressed_tokens": meta.CompressedTokens,
				"compression_ratio": meta.CompressionRatio,
				"fallback":          meta.Fallback(),
				// Full metadata so consumers can persist the pass.
				"metadata": *meta,
			}
			if !emit(ev) {
				return
			}
		}

		history = prepared
		state = next

		recursion := newEvent(EventRecursion)
		recursion.Iteration = state.TurnCounter
		recursion.Data = map[string]any{
			"depth":         state.Depth,
			"message_count": len(history),
		}
		if !emit(recursion) {
			return
		}

		iterEnd := newEvent(EventIterationEnd)
		iterEnd.Iteration = state.TurnCounter - 1
		if !emit(iterEnd) {
			return
		}
	}
}

func (e *Executor) callLLM(ctx context.Context, history []llm.Message) (llm.Response, error) {
	if e.registry != nil && e.registry.Len() > 0 {
		return e.provider.ChatWithTools(ctx, history, e.registry.Definitions())
	}
	return e.provider.Chat(ctx, history)
}

// dispatch executes the batch and emits per-call events. Returns false
// when the consumer went away mid-stream.
func (e *Executor) dispatch(ctx context.Context, calls []llm.ToolCall, emit func(Event) bool) ([]tools.Result, bool) {
	for i := range calls {
		ev := newEvent(EventToolExecutionStart)
		ev.ToolCall = &calls[i]
		if !emit(ev) {
			return nil, false
		}
	}

	var results []tools.Result
	if e.dispatcher != nil {
		results = e.dispatcher.Dispatch(ctx, calls)
	} else {
		// Tool calls without a registry: report each as an error so
		// the loop can surface the misconfiguration to the LLM.
		for _, call := range calls {
			results = append(results, tools.Result{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Content:    "no tools are configured",
				IsError:    true,
			})
		}
	}

	for i := range results {
		ev := newEvent(EventToolResult)
		if results[i].IsError {
			ev = newEvent(EventToolError)
		}
		ev.ToolResult = &results[i]
		if !emit(ev) {
			return nil, false
		}
	}
	return results, true
}

// checkTermination applies the monitor, or only the hard iteration
// limit when recursion control is disabled.
func (e *Executor) checkTermination(snapshot RecursionState) TerminationReason {
	if e.config.RecursionControl {
		return e.monitor.CheckTermination(snapshot)
	}
	if snapshot.Iteration >= e.config.MaxIterations {
		return TerminationMaxIterations
	}
	return ""
}
