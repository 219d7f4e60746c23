package agent

import (
	"context"
	"fmt"

	"github.com/loomlabs/loom/compression"
	"github.com/loomlabs/loom/llm"
	"github.com/loomlabs/loom/token"
	"github.com/loomlabs/loom/tools"
)

// depthHintThreshold is the recursion depth past which a progress hint
// is injected each step.
const depthHintThreshold = 3

// Preparer builds the message list handed to the LLM on the next
// recursive step: a guidance message, one tool message per result, an
// optional depth hint, and at most one compression pass over the
// accumulated history when the token budget is exceeded.
type Preparer struct {
	estimator        token.Estimator
	compressor       *compression.Manager
	maxContextTokens int
	suppressGuidance bool
}

// NewPreparer creates a preparer. Compression is opt-in: with no
// compressor configured, oversized histories pass through silently.
func NewPreparer(maxContextTokens int) *Preparer {
	return &Preparer{
		estimator:        token.NewCharEstimator(),
		maxContextTokens: maxContextTokens,
	}
}

// WithCompressor enables history compression via the given manager.
func (p *Preparer) WithCompressor(c *compression.Manager) *Preparer {
	p.compressor = c
	return p
}

// WithEstimator replaces the default chars/4 estimator.
func (p *Preparer) WithEstimator(e token.Estimator) *Preparer {
	p.estimator = e
	return p
}

// WithoutGuidance suppresses the synthetic guidance message.
func (p *Preparer) WithoutGuidance() *Preparer {
	p.suppressGuidance = true
	return p
}

// Prepare extends history with the next step's messages and returns
// the full list for the next LLM call. The returned metadata is non-nil
// only when compression ran. An empty result list still yields a valid
// message list.
//
// The advisory string, when non-empty, is folded into the guidance
// message so the LLM sees recursion-control warnings inline.
func (p *Preparer) Prepare(
	ctx context.Context,
	execCtx *ExecutionContext,
	state TurnState,
	history []llm.Message,
	results []tools.Result,
	advisory string,
) ([]llm.Message, *compression.Metadata) {
	next := make([]llm.Message, 0, len(history)+len(results)+2)
	next = append(next, history...)

	if !p.suppressGuidance {
		next = append(next, llm.SystemMessage(p.guidance(advisory)))
	}

	for _, r := range results {
		msg := llm.ToolMessage(r.ToolCallID, r.Content)
		if len(r.Metadata) > 0 {
			msg.Metadata = r.Metadata
		}
		next = append(next, msg)
	}

	if state.Depth > depthHintThreshold {
		next = append(next, llm.SystemMessage(depthHint(state)))
	}

	if p.compressor == nil {
		return next, nil
	}

	estimate := token.EstimateMessages(p.estimator, next)
	if estimate <= p.maxContextTokens {
		return next, nil
	}

	compressed, meta := p.compressor.Compress(ctx, next)
	after := token.EstimateMessages(p.estimator, compressed)
	if execCtx != nil {
		execCtx.SetMetadata("last_compression", map[string]any{
			"tokens_before": estimate,
			"tokens_after":  after,
		})
	}
	return compressed, &meta
}

func (p *Preparer) guidance(advisory string) string {
	msg := "Tool results follow. Use them to continue working toward the original goal; respond without tool calls once the task is complete."
	if advisory != "" {
		msg += "\n" + advisory
	}
	return msg
}

// depthHint states current depth, limit, progress, and remaining
// iteration budget. Added once per step, not cumulatively.
func depthHint(state TurnState) string {
	progress := 0.0
	if state.MaxIterations > 0 {
		progress = float64(state.TurnCounter) / float64(state.MaxIterations) * 100
	}
	return fmt.Sprintf("Recursion depth %d of %d (%.0f%% of budget used, %d iterations remaining).",
		state.Depth, state.MaxIterations, progress, state.MaxIterations-state.TurnCounter)
}
