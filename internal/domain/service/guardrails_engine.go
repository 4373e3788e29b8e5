package service

import (
	"strings"

	"go.uber.org/zap"
)

// GuardrailSeverity orders the severities a guardrail scan can report.
type GuardrailSeverity string

const (
	GuardrailNone   GuardrailSeverity = "none"
	GuardrailLow    GuardrailSeverity = "low"
	GuardrailMedium GuardrailSeverity = "medium"
	GuardrailHigh   GuardrailSeverity = "high"
)

// GuardrailFinding is one matched pattern from a scan.
type GuardrailFinding struct {
	Kind     string
	Severity GuardrailSeverity
	Excerpt  string
}

// DetectionContext carries the scan's caller-supplied context (source of
// the text, session id) so individual detectors can tune their behavior.
type DetectionContext struct {
	Source    string // "user_message" | "tool_output" | "assistant_message"
	SessionID string
}

// ScanResult is the §4.M scan() return shape.
type ScanResult struct {
	Passed        bool
	MaxSeverity   GuardrailSeverity
	Findings      []GuardrailFinding
	BlockedReason string
}

// guardrailPattern is one substring->finding rule the default detector set
// checks for. Real deployments would swap in an actual moderation/DLP
// backend; this is the teacher-style "plain substring heuristics" approach
// mirrored from SecurityHook's trusted/dangerous list checks.
type guardrailPattern struct {
	substring string
	kind      string
	severity  GuardrailSeverity
}

var defaultGuardrailPatterns = []guardrailPattern{
	{"ignore previous instructions", "prompt_injection", GuardrailHigh},
	{"ignore all previous", "prompt_injection", GuardrailHigh},
	{"disregard your instructions", "prompt_injection", GuardrailHigh},
	{"reveal your system prompt", "prompt_exfiltration", GuardrailMedium},
	{"rm -rf /", "destructive_command", GuardrailHigh},
}

// GuardrailsEngine implements §4.M: scan(text, DetectionContext) → ScanResult.
// Default policy is "warn" — a non-passing scan never throws; it is surfaced
// to the caller as a ScanResult whose Findings should be folded into the
// system prompt as a `[GUARDRAILS WARNING]` block. Scan errors fail open
// (logged, treated as Passed=true) rather than blocking the turn.
type GuardrailsEngine struct {
	patterns []guardrailPattern
	logger   *zap.Logger
}

// NewGuardrailsEngine builds a GuardrailsEngine. A nil/empty patterns list
// falls back to defaultGuardrailPatterns.
func NewGuardrailsEngine(patterns []guardrailPattern, logger *zap.Logger) *GuardrailsEngine {
	if len(patterns) == 0 {
		patterns = defaultGuardrailPatterns
	}
	return &GuardrailsEngine{patterns: patterns, logger: logger}
}

// Scan checks text against the configured pattern set. It never returns an
// error — a scan failure (e.g. a panic recovered internally) fails open.
func (e *GuardrailsEngine) Scan(text string, ctx DetectionContext) (result ScanResult) {
	defer func() {
		if r := recover(); r != nil {
			if e.logger != nil {
				e.logger.Warn("guardrails scan panicked, failing open", zap.Any("recover", r))
			}
			result = ScanResult{Passed: true, MaxSeverity: GuardrailNone}
		}
	}()

	lower := strings.ToLower(text)
	result.Passed = true
	result.MaxSeverity = GuardrailNone

	for _, p := range e.patterns {
		if !strings.Contains(lower, p.substring) {
			continue
		}
		result.Findings = append(result.Findings, GuardrailFinding{
			Kind:     p.kind,
			Severity: p.severity,
			Excerpt:  p.substring,
		})
		if severityRank(p.severity) > severityRank(result.MaxSeverity) {
			result.MaxSeverity = p.severity
		}
	}

	// Default policy is "warn": findings never flip Passed to false or set
	// BlockedReason. A stricter deployment policy would do so here for
	// High-severity findings; the ReplyDriver only consumes Findings to
	// build the [GUARDRAILS WARNING] system prompt block.
	return result
}

func severityRank(s GuardrailSeverity) int {
	switch s {
	case GuardrailLow:
		return 1
	case GuardrailMedium:
		return 2
	case GuardrailHigh:
		return 3
	default:
		return 0
	}
}

// WarningBlock renders a ScanResult's findings as the `[GUARDRAILS WARNING]`
// system-prompt block the ReplyDriver inserts per §4.M.
func (r *ScanResult) WarningBlock() string {
	if len(r.Findings) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("[GUARDRAILS WARNING]\n")
	for _, f := range r.Findings {
		sb.WriteString("- ")
		sb.WriteString(string(f.Severity))
		sb.WriteString(": ")
		sb.WriteString(f.Kind)
		sb.WriteString(" (matched: \"")
		sb.WriteString(f.Excerpt)
		sb.WriteString("\")\n")
	}
	return sb.String()
}
