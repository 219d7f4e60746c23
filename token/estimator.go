// Package token estimates token counts for prompt budgeting.
//
// Information Hiding:
// - Estimation strategy (character heuristic vs. real tokenizer)
// - Per-message framing overhead
//
// The default estimator uses the chars/4 heuristic. It is deliberately
// crude: budgets downstream carry safety buffers, so a rough count is
// enough. Inject a TiktokenEstimator when model-accurate counts matter.
package token

import "github.com/loomlabs/loom/llm"

// messageOverhead approximates the framing tokens (role markers,
// separators) each message adds on the wire.
const messageOverhead = 4

// Estimator approximates the token count of a piece of text.
type Estimator interface {
	Estimate(text string) int
}

// CharEstimator estimates tokens as len(text)/4. This matches the
// rule of thumb that one token averages about four characters of
// English text.
type CharEstimator struct{}

// NewCharEstimator creates the default character-based estimator.
func NewCharEstimator() *CharEstimator {
	return &CharEstimator{}
}

// Estimate returns len(text)/4.
func (e *CharEstimator) Estimate(text string) int {
	return len(text) / 4
}

// EstimateMessages sums the estimated tokens of each message's content
// plus a fixed per-message overhead.
func EstimateMessages(e Estimator, messages []llm.Message) int {
	total := 0
	for _, msg := range messages {
		total += e.Estimate(msg.Content) + messageOverhead
	}
	return total
}

// Verify CharEstimator implements Estimator
var _ Estimator = (*CharEstimator)(nil)
