// Package compression reduces long message histories to bounded-size
// summaries when the context window approaches its limit.
//
// Information Hiding:
// - Summarization prompt and required summary structure
// - Retry policy for the summarizing LLM call
// - Sliding-window fallback when summarization fails
//
// Compress never propagates an error: after retries are exhausted the
// manager degrades to a sliding window over recent messages, and the
// conversation continues. System messages pass through untouched in
// every path.
package compression

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/loomlabs/loom/internal/textutil"
	"github.com/loomlabs/loom/llm"
	"github.com/loomlabs/loom/token"
)

const (
	// defaultThreshold triggers compression at 92% of the window.
	defaultThreshold = 0.92
	// defaultMaxRetries bounds summarization attempts after the first.
	defaultMaxRetries = 3
	// defaultWindowSize is the fallback's recent-message count.
	defaultWindowSize = 10
	// maxKeyTopics caps topics extracted from the summary.
	maxKeyTopics = 10
	// transcriptEntryLimit truncates each message in the prompt
	// transcript so one huge message cannot dominate it.
	transcriptEntryLimit = 500
)

// summarySections are the labeled sections the summary must carry, in order.
var summarySections = []string{
	"Task Overview",
	"Key Decisions",
	"Progress",
	"Blockers",
	"Open Items",
	"Context",
	"Next Steps",
	"Metadata",
}

// Metadata describes one compression pass. Produced once per Compress
// call and never mutated afterward.
type Metadata struct {
	OriginalMessageCount   int      `json:"original_message_count"`
	CompressedMessageCount int      `json:"compressed_message_count"`
	CompressionRatio       float64  `json:"compression_ratio"`
	OriginalTokens         int      `json:"original_tokens"`
	CompressedTokens       int      `json:"compressed_tokens"`
	KeyTopics              []string `json:"key_topics"`
}

// Fallback reports whether this pass degraded to the sliding window.
func (m Metadata) Fallback() bool {
	return len(m.KeyTopics) == 1 && m.KeyTopics[0] == "fallback"
}

// Manager compresses message histories via a summarizing LLM.
// It holds no request-scoped state; Compress calls from unrelated
// conversations are safe concurrently.
type Manager struct {
	client     *llm.Client
	estimator  token.Estimator
	threshold  float64
	maxRetries int
	windowSize int
}

// NewManager creates a compression manager backed by the given provider.
// A nil provider is allowed; every Compress call then takes the
// sliding-window path.
func NewManager(provider llm.Provider) *Manager {
	var client *llm.Client
	if provider != nil {
		client = llm.NewClient(provider)
	}
	return &Manager{
		client:     client,
		estimator:  token.NewCharEstimator(),
		threshold:  defaultThreshold,
		maxRetries: defaultMaxRetries,
		windowSize: defaultWindowSize,
	}
}

// WithThreshold sets the compression trigger fraction.
// Values outside (0, 1] are ignored.
func (m *Manager) WithThreshold(threshold float64) *Manager {
	if threshold > 0 && threshold <= 1 {
		m.threshold = threshold
	}
	return m
}

// WithMaxRetries sets retry attempts after the first summarization call.
func (m *Manager) WithMaxRetries(retries int) *Manager {
	if retries >= 0 {
		m.maxRetries = retries
	}
	return m
}

// WithWindowSize sets the fallback's recent-message count.
func (m *Manager) WithWindowSize(size int) *Manager {
	if size > 0 {
		m.windowSize = size
	}
	return m
}

// WithEstimator replaces the default chars/4 estimator.
func (m *Manager) WithEstimator(e token.Estimator) *Manager {
	m.estimator = e
	return m
}

// ShouldCompress reports whether currentTokens has reached the trigger
// threshold. The exact boundary is inclusive.
func (m *Manager) ShouldCompress(currentTokens, maxTokens int) bool {
	if maxTokens <= 0 {
		return false
	}
	return float64(currentTokens) >= float64(maxTokens)*m.threshold
}

// Compress reduces messages to the system messages plus one synthetic
// summary message. It never returns an error: summarization failures
// are retried with exponential backoff and finally degrade to
// SlidingWindowFallback.
//
// A history with no non-system messages passes through unchanged; the
// metadata then mirrors the input count (zero for an empty history)
// with ratio 1, rather than the usual minimum of one summary message.
func (m *Manager) Compress(ctx context.Context, messages []llm.Message) ([]llm.Message, Metadata) {
	systemMessages, rest := splitSystem(messages)
	if len(rest) == 0 {
		return messages, Metadata{
			OriginalMessageCount:   len(messages),
			CompressedMessageCount: len(messages),
			CompressionRatio:       1,
		}
	}

	if m.client == nil {
		return m.SlidingWindowFallback(messages, m.windowSize)
	}

	summary, err := m.summarize(ctx, rest)
	if err != nil {
		return m.SlidingWindowFallback(messages, m.windowSize)
	}

	summaryMsg := llm.AssistantMessage(summary)
	summaryMsg.Metadata = map[string]any{"compressed": true}

	compressed := append(append([]llm.Message{}, systemMessages...), summaryMsg)

	originalTokens := token.EstimateMessages(m.estimator, messages)
	compressedTokens := token.EstimateMessages(m.estimator, compressed)

	return compressed, Metadata{
		OriginalMessageCount:   len(messages),
		CompressedMessageCount: len(compressed),
		CompressionRatio:       ratio(compressedTokens, originalTokens),
		OriginalTokens:         originalTokens,
		CompressedTokens:       compressedTokens,
		KeyTopics:              extractKeyTopics(summary),
	}
}

// SlidingWindowFallback keeps all system messages plus the last
// windowSize non-system messages, in original relative order. The
// metadata carries key_topics=["fallback"] as a degradation sentinel.
func (m *Manager) SlidingWindowFallback(messages []llm.Message, windowSize int) ([]llm.Message, Metadata) {
	systemMessages, rest := splitSystem(messages)
	if windowSize > 0 && len(rest) > windowSize {
		rest = rest[len(rest)-windowSize:]
	}

	kept := append(append([]llm.Message{}, systemMessages...), rest...)

	originalTokens := token.EstimateMessages(m.estimator, messages)
	keptTokens := token.EstimateMessages(m.estimator, kept)

	return kept, Metadata{
		OriginalMessageCount:   len(messages),
		CompressedMessageCount: len(kept),
		CompressionRatio:       ratio(keptTokens, originalTokens),
		OriginalTokens:         originalTokens,
		CompressedTokens:       keptTokens,
		KeyTopics:              []string{"fallback"},
	}
}

// summarize asks the provider for the structured summary, retrying
// with 1s/2s/4s backoff.
func (m *Manager) summarize(ctx context.Context, messages []llm.Message) (string, error) {
	prompt := buildSummaryPrompt(messages)

	operation := func() (string, error) {
		content, err := m.client.Chat(ctx, []llm.Message{llm.UserMessage(prompt)})
		if err != nil {
			return "", err
		}
		summary := textutil.StripCodeFences(content)
		if err := validateSummary(summary); err != nil {
			return "", err
		}
		return summary, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.RandomizationFactor = 0
	b.Multiplier = 2

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(m.maxRetries)+1),
	)
}

// buildSummaryPrompt formats the non-system messages into a numbered
// transcript and instructs the model to emit the 8 required sections.
func buildSummaryPrompt(messages []llm.Message) string {
	var transcript strings.Builder
	for i, msg := range messages {
		content := msg.Content
		if len(content) > transcriptEntryLimit {
			content = content[:transcriptEntryLimit] + "..."
		}
		fmt.Fprintf(&transcript, "[%d] %s: %s\n", i+1, strings.ToUpper(string(msg.Role)), content)
	}

	var sections strings.Builder
	for _, s := range summarySections {
		fmt.Fprintf(&sections, "## %s\n", s)
	}

	return fmt.Sprintf(`Summarize the following conversation so an agent can resume the task without the full history.

Produce exactly these markdown sections, in this order:
%s
The Metadata section must include a line "Key topics: ..." listing up to %d comma-separated topics.

Conversation:
%s`, sections.String(), maxKeyTopics, transcript.String())
}

// validateSummary checks that every required section label is present.
func validateSummary(summary string) error {
	lower := strings.ToLower(summary)
	for _, section := range summarySections {
		if !strings.Contains(lower, strings.ToLower(section)) {
			return fmt.Errorf("summary missing section %q", section)
		}
	}
	return nil
}

// extractKeyTopics pulls comma-separated topics out of the summary's
// Metadata section, capped at maxKeyTopics.
func extractKeyTopics(summary string) []string {
	section := textutil.Section(summary, "Metadata")
	if section == "" {
		return nil
	}

	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		lower := strings.ToLower(trimmed)
		if !strings.HasPrefix(lower, "key topics") {
			continue
		}
		_, rest, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		var topics []string
		for _, t := range strings.Split(rest, ",") {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			topics = append(topics, t)
			if len(topics) == maxKeyTopics {
				break
			}
		}
		return topics
	}
	return nil
}

func splitSystem(messages []llm.Message) (system, rest []llm.Message) {
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}
	return system, rest
}

func ratio(compressed, original int) float64 {
	if original == 0 {
		return 1
	}
	return float64(compressed) / float64(original)
}
