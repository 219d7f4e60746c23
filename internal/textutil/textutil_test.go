package textutil

import (
	"reflect"
	"strings"
	"testing"
)

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"no fences", "plain text", "plain text"},
		{"plain fence", "```\nhello\n```", "hello"},
		{"language tag", "```markdown\n## Section\nbody\n```", "## Section\nbody"},
		{"leading whitespace", "  ```\ncontent\n```  ", "content"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripCodeFences(tc.input); got != tc.want {
				t.Errorf("StripCodeFences(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestSection(t *testing.T) {
	text := strings.Join([]string{
		"## Task Overview",
		"Build a parser.",
		"",
		"## Key Decisions",
		"- Use recursive descent",
		"- Skip whitespace",
		"",
		"## Next Steps",
		"Write tests.",
	}, "\n")

	if got := Section(text, "Task Overview"); got != "Build a parser." {
		t.Errorf("Section(Task Overview) = %q", got)
	}
	if got := Section(text, "key decisions"); !strings.Contains(got, "recursive descent") {
		t.Errorf("case-insensitive lookup failed: %q", got)
	}
	if got := Section(text, "Next Steps"); got != "Write tests." {
		t.Errorf("final section = %q", got)
	}
	if got := Section(text, "Missing"); got != "" {
		t.Errorf("missing section should be empty, got %q", got)
	}
}

func TestSectionColonSuffix(t *testing.T) {
	text := "## Blockers:\nnone"
	if got := Section(text, "Blockers"); got != "none" {
		t.Errorf("Section with colon heading = %q", got)
	}
}

func TestBullets(t *testing.T) {
	text := "- alpha\n* beta\nnot a bullet\n- gamma\n-\n- delta"

	got := Bullets(text, 0)
	want := []string{"alpha", "beta", "gamma", "delta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Bullets = %v, want %v", got, want)
	}

	limited := Bullets(text, 2)
	if len(limited) != 2 || limited[1] != "beta" {
		t.Errorf("Bullets limit = %v", limited)
	}
}

func TestCutAtWordBoundary(t *testing.T) {
	text := "the quick brown fox jumps"

	if got := CutAtWordBoundary(text, 100); got != text {
		t.Errorf("short text should pass through, got %q", got)
	}
	if got := CutAtWordBoundary(text, 13); got != "the quick" {
		t.Errorf("CutAtWordBoundary = %q, want %q", got, "the quick")
	}
	if got := CutAtWordBoundary("abcdefghij", 5); got != "abcde" {
		t.Errorf("no-space cut = %q", got)
	}
	if got := CutAtWordBoundary(text, 0); got != "" {
		t.Errorf("zero budget should return empty, got %q", got)
	}
}
