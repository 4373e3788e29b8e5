package conversation

import "encoding/json"

// PartKind tags the variant carried by a ContentPart.
type PartKind string

const (
	PartText               PartKind = "text"
	PartThinking           PartKind = "thinking"
	PartToolRequest        PartKind = "tool_request"
	PartToolResponse       PartKind = "tool_response"
	PartSystemNotification PartKind = "system_notification"
	PartActionRequired     PartKind = "action_required"
)

// ContentPart is a tagged variant of the pieces that make up a Message's
// content. Exactly one of the typed fields is populated, selected by Kind.
type ContentPart struct {
	Kind PartKind `json:"kind"`

	Text string `json:"text,omitempty"`

	Thinking string `json:"thinking,omitempty"`

	ToolRequest *ToolRequestPart `json:"tool_request,omitempty"`

	ToolResponse *ToolResponsePart `json:"tool_response,omitempty"`

	SystemNotification *SystemNotificationPart `json:"system_notification,omitempty"`

	ActionRequired *ActionRequiredPart `json:"action_required,omitempty"`
}

// ToolRequestPart embeds the ToolRequest id alongside its call params so the
// content part can be paired against a later ToolResponsePart with the same id.
type ToolRequestPart struct {
	ID   string      `json:"id"`
	Call *ToolRequest `json:"call"`
}

// ToolResponsePart carries the resolved result for a prior ToolRequestPart.
type ToolResponsePart struct {
	ID     string          `json:"id"`
	Result *ToolCallOutput `json:"result"`
}

// SystemNotificationPart is a free-form inline notice inserted by the driver
// (e.g. compaction trigger, guardrail warning).
type SystemNotificationPart struct {
	NotificationKind string `json:"notification_kind"`
	Body             string `json:"body"`
}

// ActionRequiredPart describes a pending out-of-band decision (tool approval).
type ActionRequiredPart struct {
	Data map[string]interface{} `json:"data"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Kind: PartText, Text: text}
}

func ThinkingPart(thinking string) ContentPart {
	return ContentPart{Kind: PartThinking, Thinking: thinking}
}

func ToolRequestContentPart(id string, call *ToolRequest) ContentPart {
	return ContentPart{Kind: PartToolRequest, ToolRequest: &ToolRequestPart{ID: id, Call: call}}
}

func ToolResponseContentPart(id string, result *ToolCallOutput) ContentPart {
	return ContentPart{Kind: PartToolResponse, ToolResponse: &ToolResponsePart{ID: id, Result: result}}
}

func SystemNotificationContentPart(kind, body string) ContentPart {
	return ContentPart{Kind: PartSystemNotification, SystemNotification: &SystemNotificationPart{NotificationKind: kind, Body: body}}
}

func ActionRequiredContentPart(data map[string]interface{}) ContentPart {
	return ContentPart{Kind: PartActionRequired, ActionRequired: &ActionRequiredPart{Data: data}}
}

// ToolRequestID returns the paired id when this part carries a tool request
// or tool response, and ok=false otherwise. Used by the conversation-level
// pairing invariant check.
func (p ContentPart) ToolRequestID() (id string, isRequest bool, ok bool) {
	switch p.Kind {
	case PartToolRequest:
		return p.ToolRequest.ID, true, true
	case PartToolResponse:
		return p.ToolResponse.ID, false, true
	default:
		return "", false, false
	}
}

// MarshalJSON is explicit (rather than relying on the omitempty struct tags
// alone) so callers serializing to the AG-UI wire format get a stable shape.
func (p ContentPart) MarshalJSON() ([]byte, error) {
	type alias ContentPart
	return json.Marshal(alias(p))
}
