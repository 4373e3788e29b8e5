package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/conversation"
)

// DefaultCompactionThreshold: compact once the context reaches this
// fraction of the provider's token budget (§4.H).
const DefaultCompactionThreshold = 0.85

// DefaultCompactionMinMessages is the minimum conversation length before
// compaction is ever considered, regardless of token ratio.
const DefaultCompactionMinMessages = 10

// Summarizer produces a condensed textual summary of a run of messages,
// analogous to AgentLoop.tryLLMSummarize. A nil Summarizer falls back to
// CompactionManager's own truncation-based summary.
type Summarizer interface {
	Summarize(ctx context.Context, messages []*conversation.Message) (string, error)
}

// CompactionStats is the running aggregate CompactionManager keeps across
// calls to RecordCompaction, used for reporting and for driver decisions
// about whether compaction is paying for itself.
type CompactionStats struct {
	TotalCompactions        int
	TotalTokensSaved        int64
	AverageReductionPercent float64
}

// CompactionManager implements §4.H: decide when a conversation needs
// compaction and produce a reduced replacement conversation, independent
// of any particular ReplyDriver instance.
type CompactionManager struct {
	threshold   float64
	minMessages int
	keepLast    int
	summarizer  Summarizer
	logger      *zap.Logger

	stats CompactionStats
}

// CompactionManagerOption configures a CompactionManager at construction.
type CompactionManagerOption func(*CompactionManager)

// WithCompactionThreshold overrides DefaultCompactionThreshold.
func WithCompactionThreshold(t float64) CompactionManagerOption {
	return func(m *CompactionManager) { m.threshold = t }
}

// WithCompactionMinMessages overrides DefaultCompactionMinMessages.
func WithCompactionMinMessages(n int) CompactionManagerOption {
	return func(m *CompactionManager) { m.minMessages = n }
}

// WithCompactionKeepLast sets how many trailing messages are always
// preserved uncompacted.
func WithCompactionKeepLast(n int) CompactionManagerOption {
	return func(m *CompactionManager) { m.keepLast = n }
}

// WithSummarizer installs the LLM-backed (or other) summarizer.
func WithSummarizer(s Summarizer) CompactionManagerOption {
	return func(m *CompactionManager) { m.summarizer = s }
}

// NewCompactionManager builds a CompactionManager with the §4.H defaults,
// overridable via options.
func NewCompactionManager(logger *zap.Logger, opts ...CompactionManagerOption) *CompactionManager {
	m := &CompactionManager{
		threshold:   DefaultCompactionThreshold,
		minMessages: DefaultCompactionMinMessages,
		keepLast:    10,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ShouldCompact reports whether a conversation with the given token ratio
// (used tokens / context window) and message count needs compaction.
func (m *CompactionManager) ShouldCompact(tokenRatio float64, messageCount int) bool {
	if messageCount < m.minMessages {
		return false
	}
	return tokenRatio >= m.threshold
}

// Compact reduces conv to a system-prompt-plus-summary-plus-tail shape. If
// conv is too short to usefully compact, it is returned unchanged. The
// estimatedTokensBefore/After pair drives RecordCompaction's running stats.
func (m *CompactionManager) Compact(ctx context.Context, conv *conversation.Conversation, estimateTokens func([]*conversation.Message) int64) (*conversation.Conversation, error) {
	messages := conv.Messages
	if m.keepLast >= len(messages) {
		return conv, nil
	}

	firstNonSystem := 0
	if len(messages) > 0 && messages[0].Role == conversation.RoleSystem {
		firstNonSystem = 1
	}

	middleEnd := len(messages) - m.keepLast
	if middleEnd <= firstNonSystem {
		return conv, nil
	}
	middle := messages[firstNonSystem:middleEnd]

	summary, err := m.summarize(ctx, middle)
	if err != nil {
		return nil, fmt.Errorf("compaction manager: summarize: %w", err)
	}

	compacted := make([]*conversation.Message, 0, 2+m.keepLast)
	if firstNonSystem > 0 {
		compacted = append(compacted, messages[0])
	}
	compacted = append(compacted, conversation.NewTextMessage(conversation.RoleUser, summary))
	compacted = append(compacted, messages[len(messages)-m.keepLast:]...)

	result := conversation.NewConversation(compacted...)

	if estimateTokens != nil {
		before := estimateTokens(messages)
		after := estimateTokens(compacted)
		m.RecordCompaction(before, after)
	}

	if m.logger != nil {
		m.logger.Info("context compaction completed",
			zap.Int("before", len(messages)),
			zap.Int("after", len(compacted)),
			zap.Int("compacted_messages", middleEnd-firstNonSystem),
		)
	}

	return result, nil
}

func (m *CompactionManager) summarize(ctx context.Context, messages []*conversation.Message) (string, error) {
	if m.summarizer != nil {
		summary, err := m.summarizer.Summarize(ctx, messages)
		if err == nil && summary != "" {
			return fmt.Sprintf("[Context compacted — %d messages → summary]\n\n%s", len(messages), summary), nil
		}
	}
	return m.truncationSummary(messages), nil
}

// truncationSummary is the stdlib fallback used when no Summarizer is wired
// or the summarizer call fails, mirroring AgentLoop's prior behavior.
func (m *CompactionManager) truncationSummary(messages []*conversation.Message) string {
	userCount, assistantCount, toolCallCount := 0, 0, 0
	var lines []string

	for _, msg := range messages {
		switch msg.Role {
		case conversation.RoleAssistant:
			assistantCount++
			toolCallCount += len(msg.ToolRequestParts())
			if text := msg.Text(); text != "" {
				if len(text) > 200 {
					text = text[:200] + "..."
				}
				lines = append(lines, "Assistant: "+text)
			}
		case conversation.RoleUser:
			userCount++
			if text := msg.Text(); text != "" {
				if len(text) > 100 {
					text = text[:100] + "..."
				}
				lines = append(lines, "User: "+text)
			}
		}
	}

	joined := ""
	for i, l := range lines {
		if i > 0 {
			joined += "\n"
		}
		joined += l
	}

	return fmt.Sprintf(
		"[Context compacted: %d messages summarized (%d user, %d assistant, %d tool calls)]\n\n%s",
		len(messages), userCount, assistantCount, toolCallCount, joined,
	)
}

// RecordCompaction updates the running CompactionStats after a compaction
// of beforeTokens -> afterTokens.
func (m *CompactionManager) RecordCompaction(beforeTokens, afterTokens int64) {
	saved := beforeTokens - afterTokens
	if saved < 0 {
		saved = 0
	}
	m.stats.TotalCompactions++
	m.stats.TotalTokensSaved += saved

	var reduction float64
	if beforeTokens > 0 {
		reduction = float64(saved) / float64(beforeTokens) * 100
	}
	n := float64(m.stats.TotalCompactions)
	m.stats.AverageReductionPercent = ((m.stats.AverageReductionPercent * (n - 1)) + reduction) / n
}

// Stats returns a snapshot of the running compaction statistics.
func (m *CompactionManager) Stats() CompactionStats {
	return m.stats
}
