package agent

import (
	"time"

	"github.com/loomlabs/loom/llm"
	"github.com/loomlabs/loom/tools"
)

// EventType discriminates the Event tagged union.
type EventType string

const (
	EventPhaseStart EventType = "phase_start"
	EventPhaseEnd   EventType = "phase_end"

	EventLLMStart     EventType = "llm_start"
	EventLLMDelta     EventType = "llm_delta"
	EventLLMComplete  EventType = "llm_complete"
	EventLLMToolCalls EventType = "llm_tool_calls"

	EventToolExecutionStart EventType = "tool_execution_start"
	EventToolProgress       EventType = "tool_progress"
	EventToolResult         EventType = "tool_result"
	EventToolError          EventType = "tool_error"

	EventIterationStart EventType = "iteration_start"
	EventIterationEnd   EventType = "iteration_end"

	EventRecursion           EventType = "recursion"
	EventRecursionTerminated EventType = "recursion_terminated"

	EventAgentFinish          EventType = "agent_finish"
	EventMaxIterationsReached EventType = "max_iterations_reached"
	EventCompressionApplied   EventType = "compression_applied"
	EventError                EventType = "error"
)

// Event is one element of the stream produced by the tt loop. Type
// discriminates which payload fields are set.
type Event struct {
	Type      EventType
	Timestamp time.Time

	// Content carries LLM output, final answers, or human-readable detail.
	Content string

	// Iteration is set on iteration, recursion, and terminal events.
	Iteration int

	// ToolCall is set on tool_execution_start events.
	ToolCall *llm.ToolCall

	// ToolResult is set on tool_result and tool_error events.
	ToolResult *tools.Result

	// Reason is set on recursion_terminated and max_iterations_reached.
	Reason TerminationReason

	// Err is set on error events; the loop re-raises it to the caller
	// after emitting.
	Err error

	// Data carries event-specific extras (depths, counts, token totals).
	Data map[string]any
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventAgentFinish, EventRecursionTerminated, EventMaxIterationsReached, EventError:
		return true
	}
	return false
}

func newEvent(t EventType) Event {
	return Event{Type: t, Timestamp: time.Now()}
}
