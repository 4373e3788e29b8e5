package service

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/ngoclaw/goosecore/internal/domain/conversation"
)

// FindingSeverity orders the severities a ToolInspector can raise.
type FindingSeverity string

const (
	SeverityLow      FindingSeverity = "low"
	SeverityMedium   FindingSeverity = "medium"
	SeverityHigh     FindingSeverity = "high"
	SeverityCritical FindingSeverity = "critical"
)

// Finding is one inspector's verdict on a single ToolRequest.
type Finding struct {
	RequestID string
	Severity  FindingSeverity
	Kind      string
	Message   string
}

// ToolInspector is one stage of the §4.I chain.
type ToolInspector interface {
	Inspect(requests []*conversation.ToolRequest) []Finding
}

// defaultDangerousCommandSubstrings flags shell invocations an operator
// would want a human to confirm before they run.
var defaultDangerousCommandSubstrings = []string{
	"rm -rf", "dd if=", "mkfs", ":(){ :|:& };:", "> /dev/sda", "shutdown", "reboot",
}

// SecurityInspector flags tool requests whose arguments look outright
// dangerous (destructive shell commands). It runs first in the chain
// because its High/Critical findings must preempt the Permission inspector
// (§4.I).
type SecurityInspector struct {
	dangerousSubstrings []string
}

// NewSecurityInspector builds a SecurityInspector. A nil/empty list falls
// back to defaultDangerousCommandSubstrings.
func NewSecurityInspector(dangerousSubstrings []string) *SecurityInspector {
	if len(dangerousSubstrings) == 0 {
		dangerousSubstrings = defaultDangerousCommandSubstrings
	}
	return &SecurityInspector{dangerousSubstrings: dangerousSubstrings}
}

func (s *SecurityInspector) Inspect(requests []*conversation.ToolRequest) []Finding {
	var findings []Finding
	for _, req := range requests {
		call, ok := req.ToolCall.Unwrap()
		if !ok || call == nil {
			continue
		}
		cmd, _ := call.Arguments["command"].(string)
		if cmd == "" {
			continue
		}
		lower := strings.ToLower(cmd)
		for _, substr := range s.dangerousSubstrings {
			if strings.Contains(lower, substr) {
				findings = append(findings, Finding{
					RequestID: req.ID,
					Severity:  SeverityHigh,
					Kind:      "dangerous_command",
					Message:   "command matches a known-destructive pattern: " + substr,
				})
				break
			}
		}
	}
	return findings
}

// PermissionInspector flags tool requests for names not present in the
// allowed set, surfacing a Medium "not_in_allowlist" finding. It does not
// itself deny, and PermissionGate.Check does not act on this finding kind.
type PermissionInspector struct {
	allowed map[string]bool
}

// NewPermissionInspector builds a PermissionInspector over the allowed tool
// name set. A nil/empty set allows everything (no restriction beyond
// PermissionGate's own policy map).
func NewPermissionInspector(allowed []string) *PermissionInspector {
	set := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		set[name] = true
	}
	return &PermissionInspector{allowed: set}
}

func (p *PermissionInspector) Inspect(requests []*conversation.ToolRequest) []Finding {
	if len(p.allowed) == 0 {
		return nil
	}
	var findings []Finding
	for _, req := range requests {
		call, ok := req.ToolCall.Unwrap()
		if !ok || call == nil {
			continue
		}
		if !p.allowed[call.Name] {
			findings = append(findings, Finding{
				RequestID: req.ID,
				Severity:  SeverityMedium,
				Kind:      "not_in_allowlist",
				Message:   "tool " + call.Name + " is not in the allowed tool set",
			})
		}
	}
	return findings
}

// RepetitionInspector detects when the same tool name with identical
// arguments appears more than K times within the last M turns (§4.I
// defaults: K=5, M=20), escalating to a NeedsApproval-triggering finding.
type RepetitionInspector struct {
	mu          sync.Mutex
	maxRepeats  int
	windowTurns int
	currentTurn int
	history     []repetitionEntry
}

type repetitionEntry struct {
	turn        int
	fingerprint string
}

// NewRepetitionInspector builds a RepetitionInspector with the §4.I defaults.
func NewRepetitionInspector(maxRepeats, windowTurns int) *RepetitionInspector {
	if maxRepeats <= 0 {
		maxRepeats = 5
	}
	if windowTurns <= 0 {
		windowTurns = 20
	}
	return &RepetitionInspector{maxRepeats: maxRepeats, windowTurns: windowTurns}
}

// RecordTurn advances the inspector's notion of the current turn, dropping
// history entries that have fallen out of the window. Call it once per turn
// before Inspect; calls inspected afterwards are stamped with this turn.
func (r *RepetitionInspector) RecordTurn(turn int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentTurn = turn
	cutoff := turn - r.windowTurns
	kept := r.history[:0]
	for _, e := range r.history {
		if e.turn > cutoff {
			kept = append(kept, e)
		}
	}
	r.history = kept
}

// fingerprintCall matches the §4.I "identical arguments" requirement: it
// joins the tool name and a JSON encoding of its arguments with "|", mirroring
// AgentLoop's loop-detector fingerprinting of tool call args.
func fingerprintCall(name string, args map[string]interface{}) string {
	raw, err := json.Marshal(args)
	if err != nil {
		return name
	}
	return name + "|" + string(raw)
}

func (r *RepetitionInspector) Inspect(requests []*conversation.ToolRequest) []Finding {
	r.mu.Lock()
	defer r.mu.Unlock()

	var findings []Finding
	currentTurn := r.currentTurn

	counts := make(map[string]int)
	for _, e := range r.history {
		counts[e.fingerprint]++
	}

	for _, req := range requests {
		call, ok := req.ToolCall.Unwrap()
		if !ok || call == nil {
			continue
		}
		fp := fingerprintCall(call.Name, call.Arguments)
		counts[fp]++
		r.history = append(r.history, repetitionEntry{turn: currentTurn, fingerprint: fp})

		if counts[fp] > r.maxRepeats {
			findings = append(findings, Finding{
				RequestID: req.ID,
				Severity:  SeverityMedium,
				Kind:      "repetition",
				Message:   "tool call repeated more than the configured limit within the turn window",
			})
		}
	}
	return findings
}

// ToolInspectionManager chains Security -> Permission -> Repetition (§4.I).
// Security findings with severity >= High cause the request to be routed
// into the denied bucket before the Permission inspector sees it.
type ToolInspectionManager struct {
	security   *SecurityInspector
	permission *PermissionInspector
	repetition *RepetitionInspector
}

// NewToolInspectionManager builds a ToolInspectionManager over the fixed
// three-stage chain.
func NewToolInspectionManager(security *SecurityInspector, permission *PermissionInspector, repetition *RepetitionInspector) *ToolInspectionManager {
	return &ToolInspectionManager{security: security, permission: permission, repetition: repetition}
}

// InspectAll runs every inspector over requests and returns the merged
// finding list plus the set of request ids that were preempted by a High+
// security finding (the denied-before-permission rule).
func (m *ToolInspectionManager) InspectAll(requests []*conversation.ToolRequest) (findings []Finding, preempted map[string]bool) {
	preempted = make(map[string]bool)

	securityFindings := m.security.Inspect(requests)
	findings = append(findings, securityFindings...)
	for _, f := range securityFindings {
		if f.Severity == SeverityHigh || f.Severity == SeverityCritical {
			preempted[f.RequestID] = true
		}
	}

	var remaining []*conversation.ToolRequest
	for _, req := range requests {
		if !preempted[req.ID] {
			remaining = append(remaining, req)
		}
	}

	findings = append(findings, m.permission.Inspect(remaining)...)
	findings = append(findings, m.repetition.Inspect(remaining)...)

	return findings, preempted
}
