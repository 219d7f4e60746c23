// Package assembler merges named, prioritized text blocks into a single
// prompt string that fits a token budget.
//
// Information Hiding:
// - Budget arithmetic (buffer, truncation reserve, safety margin)
// - Component fingerprinting and result caching
// - Truncation mechanics (word boundaries, marker)
//
// Higher-priority components survive intact; truncatable components are
// cut or dropped when the budget runs out. An assembler instance owns
// its component list and cache and must not be shared across concurrent
// requests; use a fresh assembler (or Clear) per independent request.
package assembler

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/loomlabs/loom/internal/textutil"
	"github.com/loomlabs/loom/token"
)

const (
	// defaultTokenBuffer leaves headroom under the hard maximum.
	defaultTokenBuffer = 0.9
	// truncationReserve is held back for the truncation marker.
	truncationReserve = 20
	// truncationMargin shaves the estimate to absorb heuristic error.
	truncationMargin = 0.95
	// minTruncationBudget below which no further truncatable
	// components are added at all.
	minTruncationBudget = 100

	truncationMarker = "\n... [truncated]"
)

// Component is a named, prioritized block of text.
type Component struct {
	Name        string
	Content     string
	Priority    int
	TokenCount  int
	Truncatable bool
}

// Assembler merges components into a budget-bounded prompt string.
type Assembler struct {
	estimator   token.Estimator
	maxTokens   int
	tokenBuffer float64

	components []Component
	warnings   []string

	cached           string
	cacheFingerprint uint64
	cacheValid       bool
}

// New creates an assembler with the given hard token maximum.
// Returns an error when maxTokens is not positive.
func New(maxTokens int) (*Assembler, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("invalid token budget: %d (must be > 0)", maxTokens)
	}
	return &Assembler{
		estimator:   token.NewCharEstimator(),
		maxTokens:   maxTokens,
		tokenBuffer: defaultTokenBuffer,
	}, nil
}

// WithEstimator replaces the default chars/4 estimator.
func (a *Assembler) WithEstimator(e token.Estimator) *Assembler {
	a.estimator = e
	a.invalidate()
	return a
}

// WithTokenBuffer sets the fraction of maxTokens usable as budget.
// Values outside (0, 1] are ignored.
func (a *Assembler) WithTokenBuffer(buffer float64) *Assembler {
	if buffer > 0 && buffer <= 1 {
		a.tokenBuffer = buffer
		a.invalidate()
	}
	return a
}

// AddComponent registers a component. Empty or whitespace-only content
// is silently ignored. A component with the same name replaces the
// earlier registration.
func (a *Assembler) AddComponent(name, content string, priority int, truncatable bool) {
	if strings.TrimSpace(content) == "" {
		return
	}

	c := Component{
		Name:        name,
		Content:     content,
		Priority:    priority,
		TokenCount:  a.estimator.Estimate(content),
		Truncatable: truncatable,
	}

	for i := range a.components {
		if a.components[i].Name == name {
			a.components[i] = c
			a.invalidate()
			return
		}
	}

	a.components = append(a.components, c)
	a.invalidate()
}

// AdjustPriority updates a component's priority in place. Returns
// whether the component was found.
func (a *Assembler) AdjustPriority(name string, newPriority int) bool {
	for i := range a.components {
		if a.components[i].Name == name {
			a.components[i].Priority = newPriority
			a.invalidate()
			return true
		}
	}
	return false
}

// Clear removes all components, warnings, and the cached result.
func (a *Assembler) Clear() {
	a.components = nil
	a.warnings = nil
	a.invalidate()
}

// Warnings returns the warnings recorded by the most recent Assemble.
func (a *Assembler) Warnings() []string {
	return a.warnings
}

// Assemble merges the registered components into one prompt string.
// Repeated calls with an unchanged component set return the cached
// result without recomputation.
func (a *Assembler) Assemble() string {
	fp := a.fingerprint()
	if a.cacheValid && fp == a.cacheFingerprint {
		return a.cached
	}

	a.warnings = nil
	result := a.assemble()

	a.cached = result
	a.cacheFingerprint = fp
	a.cacheValid = true
	return result
}

func (a *Assembler) assemble() string {
	if len(a.components) == 0 {
		return ""
	}

	// Priority descending; ties keep insertion order.
	sorted := make([]Component, len(a.components))
	copy(sorted, a.components)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	budget := int(float64(a.maxTokens) * a.tokenBuffer)

	total := 0
	for _, c := range sorted {
		total += c.TokenCount
	}
	if total <= budget {
		return render(sorted)
	}

	// Over budget: non-truncatable components claim space first.
	included := make([]bool, len(sorted))
	remaining := budget
	for i, c := range sorted {
		if c.Truncatable {
			continue
		}
		if c.TokenCount > remaining {
			a.warn("dropped non-truncatable component %q (%d tokens > %d remaining)",
				c.Name, c.TokenCount, remaining)
			continue
		}
		included[i] = true
		remaining -= c.TokenCount
	}

	// Then truncatable components in priority order, truncating the
	// first one that does not fully fit and stopping there.
	truncated := make(map[int]string)
	for i, c := range sorted {
		if !c.Truncatable {
			continue
		}
		if c.TokenCount <= remaining {
			included[i] = true
			remaining -= c.TokenCount
			continue
		}
		if remaining < minTruncationBudget {
			break
		}
		avail := int(float64(remaining-truncationReserve) * truncationMargin)
		if avail <= 0 {
			break
		}
		cut := textutil.CutAtWordBoundary(c.Content, avail*4)
		if cut == "" {
			break
		}
		included[i] = true
		truncated[i] = cut + truncationMarker
		a.warn("truncated component %q from %d to ~%d tokens", c.Name, c.TokenCount, avail)
		break
	}

	var final []Component
	for i, c := range sorted {
		if !included[i] {
			continue
		}
		if t, ok := truncated[i]; ok {
			c.Content = t
		}
		final = append(final, c)
	}
	return render(final)
}

// fingerprint hashes name, priority, token count, and truncatability
// of every component. Content changes surface through the token count
// recomputed at AddComponent time.
func (a *Assembler) fingerprint() uint64 {
	h := fnv.New64a()
	for _, c := range a.components {
		fmt.Fprintf(h, "%s|%d|%d|%t;", c.Name, c.Priority, c.TokenCount, c.Truncatable)
	}
	return h.Sum64()
}

func (a *Assembler) invalidate() {
	a.cacheValid = false
}

func (a *Assembler) warn(format string, args ...any) {
	a.warnings = append(a.warnings, fmt.Sprintf(format, args...))
}

func render(components []Component) string {
	parts := make([]string, len(components))
	for i, c := range components {
		parts[i] = fmt.Sprintf("# %s\n%s", strings.ToUpper(c.Name), c.Content)
	}
	return strings.Join(parts, "\n\n")
}
