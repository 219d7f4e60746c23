package assembler

import (
	"strings"
	"testing"
)

func TestNewRejectsInvalidBudget(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("New(0) should fail")
	}
	if _, err := New(-5); err == nil {
		t.Error("New(-5) should fail")
	}
	if _, err := New(100); err != nil {
		t.Errorf("New(100) failed: %v", err)
	}
}

func TestAddComponentIgnoresEmpty(t *testing.T) {
	a, _ := New(1000)
	a.AddComponent("empty", "", 10, true)
	a.AddComponent("blank", "   \n\t ", 10, true)

	if got := a.Assemble(); got != "" {
		t.Errorf("empty components should produce empty output, got %q", got)
	}
}

func TestAssembleAllFit(t *testing.T) {
	a, _ := New(1000)
	a.AddComponent("system", "You are a helpful assistant.", 100, false)
	a.AddComponent("task", "Summarize the report.", 50, true)

	out := a.Assemble()
	if !strings.Contains(out, "# SYSTEM") || !strings.Contains(out, "You are a helpful assistant.") {
		t.Errorf("output missing system component: %q", out)
	}
	if !strings.Contains(out, "# TASK") {
		t.Errorf("output missing task component: %q", out)
	}
}

// Higher-priority content must appear before lower-priority content.
func TestPriorityOrdering(t *testing.T) {
	a, _ := New(10000)
	a.AddComponent("low", "low priority text", 1, true)
	a.AddComponent("high", "high priority text", 100, true)
	a.AddComponent("mid", "mid priority text", 50, true)

	out := a.Assemble()
	hi := strings.Index(out, "high priority text")
	mid := strings.Index(out, "mid priority text")
	lo := strings.Index(out, "low priority text")
	if hi == -1 || mid == -1 || lo == -1 {
		t.Fatalf("missing components in output: %q", out)
	}
	if !(hi < mid && mid < lo) {
		t.Errorf("priority order violated: hi=%d mid=%d lo=%d", hi, mid, lo)
	}
}

// Output must respect the token budget even when inputs exceed it.
func TestBudgetRespected(t *testing.T) {
	maxTokens := 500
	a, _ := New(maxTokens)
	a.AddComponent("huge", strings.Repeat("word ", 2000), 10, true) // ~2500 tokens
	a.AddComponent("small", "short note", 20, false)

	out := a.Assemble()
	// chars/4 with slack for headers and marker
	if got := len(out) / 4; got > maxTokens+30 {
		t.Errorf("assembled output is %d tokens, budget %d", got, maxTokens)
	}
	if !strings.Contains(out, "short note") {
		t.Error("non-truncatable component missing from output")
	}
}

// A non-truncatable component alone over budget is dropped with a warning.
func TestOversizedNonTruncatableDropped(t *testing.T) {
	a, _ := New(100)
	a.AddComponent("giant", strings.Repeat("x", 4000), 100, false) // 1000 tokens
	a.AddComponent("keep", "fits fine", 10, false)

	out := a.Assemble()
	if strings.Contains(out, "xxxx") {
		t.Error("oversized non-truncatable component should be dropped")
	}
	if !strings.Contains(out, "fits fine") {
		t.Error("fitting component should survive")
	}
	if len(a.Warnings()) == 0 {
		t.Error("dropping should record a warning")
	}
}

// Critical content survives in full; the filler is cut with a marker.
func TestTruncation(t *testing.T) {
	a, _ := New(200)
	critical := strings.Repeat("core ", 40) // ~50 tokens
	filler := strings.Repeat("pad ", 10000) // ~10000 tokens
	a.AddComponent("critical", critical, 100, false)
	a.AddComponent("filler", filler, 10, true)

	out := a.Assemble()
	if !strings.Contains(out, critical) {
		t.Error("critical component should appear in full")
	}
	if !strings.Contains(out, "pad") {
		t.Error("filler should appear truncated, not dropped")
	}
	if !strings.HasSuffix(out, "[truncated]") {
		t.Errorf("truncated filler should end with marker, got tail %q", out[len(out)-40:])
	}
	if len(out)/4 > 200 {
		t.Errorf("truncated output is %d tokens, budget 200", len(out)/4)
	}
}

// Nothing more is added once remaining budget drops under the floor.
func TestSmallRemainingBudgetStops(t *testing.T) {
	a, _ := New(120) // budget 108
	a.AddComponent("pinned", strings.Repeat("a", 200), 100, false) // 50 tokens
	a.AddComponent("big", strings.Repeat("b", 2000), 50, true)     // 500 tokens, remaining 58 < 100
	a.AddComponent("tiny", "bit", 10, true)

	out := a.Assemble()
	if strings.Contains(out, "bbbb") {
		t.Error("truncatable component should be skipped below the budget floor")
	}
}

func TestAssembleCaching(t *testing.T) {
	a, _ := New(1000)
	a.AddComponent("one", "first block", 10, true)
	a.AddComponent("two", "second block", 20, true)

	first := a.Assemble()
	second := a.Assemble()
	if first != second {
		t.Error("repeated Assemble with unchanged components should be byte-identical")
	}

	// Mutation invalidates the cache.
	a.AddComponent("three", "third block", 30, true)
	third := a.Assemble()
	if !strings.Contains(third, "third block") {
		t.Error("cache should invalidate when a component is added")
	}
}

func TestAdjustPriority(t *testing.T) {
	a, _ := New(1000)
	a.AddComponent("one", "first block", 10, true)
	a.AddComponent("two", "second block", 20, true)

	before := a.Assemble()
	if strings.Index(before, "second block") > strings.Index(before, "first block") {
		t.Fatal("setup: two should lead")
	}

	if !a.AdjustPriority("one", 99) {
		t.Fatal("AdjustPriority should find existing component")
	}
	after := a.Assemble()
	if strings.Index(after, "first block") > strings.Index(after, "second block") {
		t.Error("adjusted priority should reorder output")
	}

	if a.AdjustPriority("missing", 5) {
		t.Error("AdjustPriority should report unknown names")
	}
}

func TestDuplicateNameReplaces(t *testing.T) {
	a, _ := New(1000)
	a.AddComponent("note", "old content", 10, true)
	a.AddComponent("note", "new content", 10, true)

	out := a.Assemble()
	if strings.Contains(out, "old content") {
		t.Error("duplicate name should replace earlier registration")
	}
	if !strings.Contains(out, "new content") {
		t.Error("replacement content missing")
	}
}

func TestClear(t *testing.T) {
	a, _ := New(1000)
	a.AddComponent("one", "content", 10, true)
	a.Assemble()
	a.Clear()

	if got := a.Assemble(); got != "" {
		t.Errorf("Assemble after Clear = %q, want empty", got)
	}
	if len(a.Warnings()) != 0 {
		t.Error("Clear should drop warnings")
	}
}
