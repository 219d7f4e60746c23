package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/loomlabs/loom/compression"
	"github.com/loomlabs/loom/llm"
	"github.com/loomlabs/loom/tools"
)

func TestPrepareEmptyResults(t *testing.T) {
	p := NewPreparer(100000)
	state := InitialTurnState(10).NextTurn(nil, 0)
	history := []llm.Message{llm.UserMessage("do the thing")}

	next, meta := p.Prepare(context.Background(), nil, state, history, nil, "")
	if meta != nil {
		t.Error("no compressor configured, meta should be nil")
	}
	// History plus the guidance message.
	if len(next) != 2 {
		t.Fatalf("got %d messages, want 2", len(next))
	}
	if next[1].Role != llm.RoleSystem {
		t.Errorf("guidance role = %q", next[1].Role)
	}
}

func TestPrepareToolMessages(t *testing.T) {
	p := NewPreparer(100000).WithoutGuidance()
	state := InitialTurnState(10).NextTurn([]string{"a", "b"}, 0)

	results := []tools.Result{
		{ToolCallID: "call-1", ToolName: "a", Content: "first"},
		{ToolCallID: "call-2", ToolName: "b", Content: "second", Metadata: map[string]any{"ms": 12}},
	}

	next, _ := p.Prepare(context.Background(), nil, state, nil, results, "")
	if len(next) != 2 {
		t.Fatalf("got %d messages, want 2", len(next))
	}
	for i, want := range []string{"call-1", "call-2"} {
		if next[i].Role != llm.RoleTool || next[i].ToolCallID != want {
			t.Errorf("message %d = %+v", i, next[i])
		}
	}
	if next[1].Metadata["ms"] != 12 {
		t.Errorf("result metadata not carried: %v", next[1].Metadata)
	}
}

func TestPrepareDepthHint(t *testing.T) {
	p := NewPreparer(100000).WithoutGuidance()

	state := InitialTurnState(10)
	for i := 0; i < 4; i++ {
		state = state.NextTurn([]string{"t"}, 0)
	}
	// Depth 4 > threshold 3: hint expected.
	next, _ := p.Prepare(context.Background(), nil, state, nil, nil, "")
	if len(next) != 1 {
		t.Fatalf("got %d messages, want depth hint only", len(next))
	}
	hint := next[0].Content
	for _, want := range []string{"depth 4", "of 10", "6 iterations remaining"} {
		if !strings.Contains(hint, want) {
			t.Errorf("hint missing %q: %q", want, hint)
		}
	}

	// Depth 3 is at the threshold, not past it.
	shallow := InitialTurnState(10).NextTurn(nil, 0).NextTurn(nil, 0).NextTurn(nil, 0)
	next, _ = p.Prepare(context.Background(), nil, shallow, nil, nil, "")
	if len(next) != 0 {
		t.Errorf("depth 3 should not produce a hint, got %d messages", len(next))
	}
}

func TestPrepareAdvisoryInGuidance(t *testing.T) {
	p := NewPreparer(100000)
	state := InitialTurnState(10).NextTurn(nil, 0)

	next, _ := p.Prepare(context.Background(), nil, state, nil, nil, "slow down")
	if len(next) != 1 || !strings.Contains(next[0].Content, "slow down") {
		t.Errorf("advisory not folded into guidance: %+v", next)
	}
}

func TestPrepareNoCompressorNoCompression(t *testing.T) {
	p := NewPreparer(10).WithoutGuidance() // tiny budget, no compressor
	state := InitialTurnState(10).NextTurn(nil, 0)
	history := []llm.Message{llm.UserMessage(strings.Repeat("x", 4000))}

	next, meta := p.Prepare(context.Background(), nil, state, history, nil, "")
	if meta != nil {
		t.Error("compression must be opt-in")
	}
	if len(next) != 1 {
		t.Errorf("history should pass through, got %d messages", len(next))
	}
}

func TestPrepareCompressesOverBudget(t *testing.T) {
	manager := compression.NewManager(nil).WithWindowSize(2) // nil provider: fallback path
	p := NewPreparer(50).WithCompressor(manager).WithoutGuidance()

	state := InitialTurnState(10).NextTurn(nil, 0)
	var history []llm.Message
	history = append(history, llm.SystemMessage("rules"))
	for i := 0; i < 8; i++ {
		history = append(history, llm.UserMessage(strings.Repeat("m", 200)))
	}

	execCtx := NewExecutionContext("")
	next, meta := p.Prepare(context.Background(), execCtx, state, history, nil, "")
	if meta == nil {
		t.Fatal("oversized history should compress")
	}
	if !meta.Fallback() {
		t.Error("nil-provider manager should report fallback")
	}
	// System message plus the 2-message window.
	if len(next) != 3 {
		t.Errorf("compressed to %d messages, want 3", len(next))
	}
	if next[0].Role != llm.RoleSystem {
		t.Error("system message should survive compression")
	}

	v, ok := execCtx.Metadata("last_compression")
	if !ok {
		t.Fatal("last_compression not recorded")
	}
	record, _ := v.(map[string]any)
	before, _ := record["tokens_before"].(int)
	after, _ := record["tokens_after"].(int)
	if before <= after {
		t.Errorf("tokens_before=%d tokens_after=%d", before, after)
	}
}
