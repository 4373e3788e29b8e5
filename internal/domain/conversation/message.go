package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Visibility controls whether a message is surfaced to the end user, fed
// back to the provider on the next call, or both.
type Visibility struct {
	UserVisible  bool `json:"user_visible"`
	AgentVisible bool `json:"agent_visible"`
}

// DefaultVisibility is shown to both the user and the next provider call.
func DefaultVisibility() Visibility {
	return Visibility{UserVisible: true, AgentVisible: true}
}

// AgentOnlyVisibility is fed back to the provider but never shown to the
// user (synthetic thinking-echo messages, continuation prompts).
func AgentOnlyVisibility() Visibility {
	return Visibility{UserVisible: false, AgentVisible: true}
}

// UserOnlyVisibility is shown to the user but excluded from the next
// provider call (short-circuit slash-command replies).
func UserOnlyVisibility() Visibility {
	return Visibility{UserVisible: true, AgentVisible: false}
}

// Message is one turn-level unit in a Conversation: a role plus an ordered
// list of ContentPart.
type Message struct {
	ID         string                 `json:"id"`
	Role       Role                   `json:"role"`
	Content    []ContentPart          `json:"content"`
	CreatedAt  time.Time              `json:"created_at"`
	Visibility Visibility             `json:"visibility"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewMessage builds a Message with a fresh id, DefaultVisibility, and the
// given content parts.
func NewMessage(role Role, parts ...ContentPart) *Message {
	return &Message{
		ID:         uuid.NewString(),
		Role:       role,
		Content:    parts,
		CreatedAt:  time.Now(),
		Visibility: DefaultVisibility(),
		Metadata:   make(map[string]interface{}),
	}
}

// NewTextMessage is a convenience constructor for the common single-text-part case.
func NewTextMessage(role Role, text string) *Message {
	return NewMessage(role, TextPart(text))
}

// Text concatenates every Text content part, ignoring thinking/tool parts.
// Used for logging and for the legacy single-string call sites.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Content {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// ThinkingParts returns every thinking content part, in order. Per §3 these
// MUST be echoed back on the next provider call when the same assistant
// message also carries tool requests.
func (m *Message) ThinkingParts() []ContentPart {
	var out []ContentPart
	for _, p := range m.Content {
		if p.Kind == PartThinking {
			out = append(out, p)
		}
	}
	return out
}

// ToolRequestParts returns every tool-request content part in this message.
func (m *Message) ToolRequestParts() []*ToolRequestPart {
	var out []*ToolRequestPart
	for _, p := range m.Content {
		if p.Kind == PartToolRequest {
			out = append(out, p.ToolRequest)
		}
	}
	return out
}

// ToolResponseParts returns every tool-response content part in this message.
func (m *Message) ToolResponseParts() []*ToolResponsePart {
	var out []*ToolResponsePart
	for _, p := range m.Content {
		if p.Kind == PartToolResponse {
			out = append(out, p.ToolResponse)
		}
	}
	return out
}

// HasToolRequests reports whether this message carries any tool request parts.
func (m *Message) HasToolRequests() bool {
	return len(m.ToolRequestParts()) > 0
}
