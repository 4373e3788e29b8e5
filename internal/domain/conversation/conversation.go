package conversation

import "fmt"

// Conversation is the session-owned, append-only ordered sequence of
// Message. Messages and the Conversation snapshot they belong to are
// immutable once appended; "replacing" a conversation (compaction,
// MemGPT continuation) produces a new Conversation value rather than
// mutating messages in place.
type Conversation struct {
	Messages []*Message `json:"messages"`
}

// NewConversation builds a Conversation from the given messages, in order.
func NewConversation(messages ...*Message) *Conversation {
	return &Conversation{Messages: messages}
}

// Append returns a new Conversation with msg appended. The receiver is left
// untouched so callers holding the prior snapshot keep seeing the old view.
func (c *Conversation) Append(msg *Message) *Conversation {
	next := make([]*Message, len(c.Messages), len(c.Messages)+1)
	copy(next, c.Messages)
	next = append(next, msg)
	return &Conversation{Messages: next}
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.Messages) }

// Last returns the final message, or nil if empty.
func (c *Conversation) Last() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// PairingViolation describes a tool request/response id that never got
// paired within the conversation (§3 invariant).
type PairingViolation struct {
	ToolRequestID string
	Reason        string
}

// ValidatePairing checks that every ToolRequest id appearing in an
// assistant message is eventually paired with exactly one ToolResponse id
// appearing in a later message (§3 Message invariant). It returns every
// violation found; a nil/empty slice means the conversation is well paired.
func (c *Conversation) ValidatePairing() []PairingViolation {
	pending := make(map[string]int) // id -> index of request
	seenResponse := make(map[string]bool)
	var violations []PairingViolation

	for i, msg := range c.Messages {
		for _, p := range msg.Content {
			id, isRequest, ok := p.ToolRequestID()
			if !ok {
				continue
			}
			if isRequest {
				if _, exists := pending[id]; exists {
					violations = append(violations, PairingViolation{
						ToolRequestID: id,
						Reason:        "duplicate tool request id",
					})
					continue
				}
				pending[id] = i
			} else {
				if seenResponse[id] {
					violations = append(violations, PairingViolation{
						ToolRequestID: id,
						Reason:        "duplicate tool response id",
					})
					continue
				}
				seenResponse[id] = true
				delete(pending, id)
			}
		}
	}

	for id := range pending {
		violations = append(violations, PairingViolation{
			ToolRequestID: id,
			Reason:        "tool request never paired with a response",
		})
	}
	return violations
}

// Fix repairs dangling tool-request pairs by dropping orphan requests (ones
// with no matching response anywhere in the conversation) — the turn-entry
// responsibility named in §4.L ("fix the conversation ... drop orphans").
// It returns the repaired conversation and a human-readable log of what it
// dropped, one line per dropped request; the order of the lines is not
// defined.
func (c *Conversation) Fix() (*Conversation, []string) {
	violations := c.ValidatePairing()
	if len(violations) == 0 {
		return c, nil
	}
	orphans := make(map[string]bool)
	var log []string
	for _, v := range violations {
		if v.Reason == "tool request never paired with a response" {
			orphans[v.ToolRequestID] = true
			log = append(log, fmt.Sprintf("dropped orphan tool request %s: %s", v.ToolRequestID, v.Reason))
		}
	}
	if len(orphans) == 0 {
		return c, log
	}

	fixed := make([]*Message, 0, len(c.Messages))
	for _, msg := range c.Messages {
		kept := make([]ContentPart, 0, len(msg.Content))
		for _, p := range msg.Content {
			if id, isRequest, ok := p.ToolRequestID(); ok && isRequest && orphans[id] {
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 && len(msg.Content) > 0 {
			// The whole message was an orphaned tool request; drop it entirely.
			continue
		}
		clone := *msg
		clone.Content = kept
		fixed = append(fixed, &clone)
	}
	return &Conversation{Messages: fixed}, log
}

// ValidateAlternation checks the §3 Conversation invariant: adjacent roles
// alternate except for thinking/response sequences, and every tool request
// in an assistant turn N has a matching user turn with its response at
// N+1. It is advisory (used by tests and by startup sanity checks) — the
// driver's turn-entry Fix() is what actually repairs a live conversation.
func (c *Conversation) ValidateAlternation() []string {
	var problems []string
	for i := 0; i < len(c.Messages)-1; i++ {
		cur, next := c.Messages[i], c.Messages[i+1]
		if cur.Role == RoleAssistant && cur.HasToolRequests() {
			if next.Role != RoleUser {
				problems = append(problems, fmt.Sprintf(
					"message %d: assistant turn with tool requests not followed by a user tool-response turn", i))
				continue
			}
			for _, req := range cur.ToolRequestParts() {
				found := false
				for _, resp := range next.ToolResponseParts() {
					if resp.ID == req.ID {
						found = true
						break
					}
				}
				if !found {
					problems = append(problems, fmt.Sprintf(
						"message %d: tool request %s has no response in turn %d", i, req.ID, i+1))
				}
			}
		}
	}
	return problems
}
