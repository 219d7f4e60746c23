package agent

import "fmt"

// TerminationReason identifies why the loop was stopped by recursion
// control. These are clean stopping conditions, not errors.
type TerminationReason string

const (
	TerminationMaxIterations  TerminationReason = "max_iterations"
	TerminationDuplicateTools TerminationReason = "duplicate_tools"
	TerminationLoopDetected   TerminationReason = "loop_detected"
	TerminationErrorThreshold TerminationReason = "error_threshold"
)

const (
	defaultDuplicateThreshold  = 3
	defaultLoopDetectionWindow = 3
	defaultErrorThreshold      = 0.5
	warningIterationFraction   = 0.8
)

// Monitor decides whether the loop must stop due to pathological
// behavior. It is a stateless policy object: every check operates on
// the RecursionState snapshot alone.
//
// Checks run in fixed priority order so the hard iteration limit is
// never masked by softer heuristics: max iterations, then duplicate
// tools, then output-loop detection, then error rate.
type Monitor struct {
	maxIterations       int
	duplicateThreshold  int
	loopDetectionWindow int
	errorThreshold      float64
}

// NewMonitor creates a monitor with default heuristics.
func NewMonitor(maxIterations int) *Monitor {
	return &Monitor{
		maxIterations:       maxIterations,
		duplicateThreshold:  defaultDuplicateThreshold,
		loopDetectionWindow: defaultLoopDetectionWindow,
		errorThreshold:      defaultErrorThreshold,
	}
}

// WithDuplicateThreshold sets how many identical trailing tool calls
// count as stuck.
func (m *Monitor) WithDuplicateThreshold(n int) *Monitor {
	if n > 1 {
		m.duplicateThreshold = n
	}
	return m
}

// WithLoopDetectionWindow sets the repeated-pattern length to detect.
func (m *Monitor) WithLoopDetectionWindow(n int) *Monitor {
	if n > 0 {
		m.loopDetectionWindow = n
	}
	return m
}

// WithErrorThreshold sets the tolerated error_count/iteration ratio.
func (m *Monitor) WithErrorThreshold(t float64) *Monitor {
	if t > 0 && t <= 1 {
		m.errorThreshold = t
	}
	return m
}

// LoopWindow returns the configured loop-detection pattern length.
func (m *Monitor) LoopWindow() int {
	return m.loopDetectionWindow
}

// CheckTermination inspects the snapshot and returns the first
// matching termination reason, or "" to continue looping.
func (m *Monitor) CheckTermination(state RecursionState) TerminationReason {
	if state.Iteration >= m.maxIterations {
		return TerminationMaxIterations
	}
	if m.hasDuplicateTools(state.ToolCallHistory) {
		return TerminationDuplicateTools
	}
	if m.hasOutputLoop(state.LastOutputs) {
		return TerminationLoopDetected
	}
	if state.Iteration > 0 {
		if float64(state.ErrorCount)/float64(state.Iteration) >= m.errorThreshold {
			return TerminationErrorThreshold
		}
	}
	return ""
}

// ShouldWarn returns a non-terminating advisory: the iteration count
// has reached 80% of the maximum, or the last two tool calls are
// identical (one repeat away from the duplicate cutoff).
func (m *Monitor) ShouldWarn(state RecursionState) (string, bool) {
	if m.maxIterations > 0 && float64(state.Iteration) >= float64(m.maxIterations)*warningIterationFraction {
		remaining := m.maxIterations - state.Iteration
		return fmt.Sprintf("Approaching iteration limit: only %d of %d iterations remaining. Wrap up the task.",
			remaining, m.maxIterations), true
	}

	n := len(state.ToolCallHistory)
	if n >= 2 && state.ToolCallHistory[n-1] == state.ToolCallHistory[n-2] {
		return fmt.Sprintf("The last two tool calls were both %q. Repeating it again will terminate the loop.",
			state.ToolCallHistory[n-1]), true
	}

	return "", false
}

// TerminationMessage produces a human-readable explanation per reason.
func (m *Monitor) TerminationMessage(reason TerminationReason) string {
	const prefix = "⚠️ Recursion control terminated the loop: "
	switch reason {
	case TerminationMaxIterations:
		return prefix + fmt.Sprintf("reached the maximum of %d iterations.", m.maxIterations)
	case TerminationDuplicateTools:
		return prefix + fmt.Sprintf("the same tool was called %d times in a row.", m.duplicateThreshold)
	case TerminationLoopDetected:
		return prefix + fmt.Sprintf("the last outputs repeat a pattern of length %d.", m.loopDetectionWindow)
	case TerminationErrorThreshold:
		return prefix + fmt.Sprintf("the error rate crossed %.0f%%.", m.errorThreshold*100)
	default:
		return prefix + string(reason)
	}
}

func (m *Monitor) hasDuplicateTools(history []string) bool {
	if len(history) < m.duplicateThreshold {
		return false
	}
	tail := history[len(history)-m.duplicateThreshold:]
	for _, name := range tail[1:] {
		if name != tail[0] {
			return false
		}
	}
	return true
}

// hasOutputLoop reports whether the last 2×window outputs consist of
// one pattern of length window repeated exactly twice.
func (m *Monitor) hasOutputLoop(outputs []string) bool {
	w := m.loopDetectionWindow
	if len(outputs) < 2*w {
		return false
	}
	tail := outputs[len(outputs)-2*w:]
	for i := 0; i < w; i++ {
		if tail[i] != tail[i+w] {
			return false
		}
	}
	return true
}
