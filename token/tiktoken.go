package token

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenEstimator counts tokens with a real BPE tokenizer. Slower
// than CharEstimator but accurate for OpenAI-family models.
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenEstimator creates an estimator for the given model.
// Unknown models fall back to the cl100k_base encoding.
func NewTiktokenEstimator(model string) (*TiktokenEstimator, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to load tokenizer: %w", err)
		}
	}
	return &TiktokenEstimator{encoding: encoding}, nil
}

// Estimate returns the exact token count under the loaded encoding.
func (e *TiktokenEstimator) Estimate(text string) int {
	return len(e.encoding.Encode(text, nil, nil))
}

// Verify TiktokenEstimator implements Estimator
var _ Estimator = (*TiktokenEstimator)(nil)
