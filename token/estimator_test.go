package token

import (
	"strings"
	"testing"

	"github.com/loomlabs/loom/llm"
)

func TestCharEstimator(t *testing.T) {
	e := NewCharEstimator()

	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"abcd", 1},
		{"hello world!", 3},
		{strings.Repeat("x", 400), 100},
	}

	for _, tc := range cases {
		if got := e.Estimate(tc.text); got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestEstimateMessages(t *testing.T) {
	e := NewCharEstimator()

	messages := []llm.Message{
		llm.SystemMessage(strings.Repeat("s", 40)), // 10 tokens
		llm.UserMessage(strings.Repeat("u", 80)),   // 20 tokens
	}

	// 10 + 20 content plus 4 overhead per message
	want := 30 + 2*messageOverhead
	if got := EstimateMessages(e, messages); got != want {
		t.Errorf("EstimateMessages = %d, want %d", got, want)
	}
}

func TestEstimateMessagesEmpty(t *testing.T) {
	e := NewCharEstimator()
	if got := EstimateMessages(e, nil); got != 0 {
		t.Errorf("EstimateMessages(nil) = %d, want 0", got)
	}
}
