package entity

import (
	"time"
)

// CoreEventType tags the abstract event frames the core emits (§6), distinct
// from the chat-transport AgentEvent used by the legacy streaming adapters.
type CoreEventType string

const (
	CoreEventMessage         CoreEventType = "message"
	CoreEventMcpNotification CoreEventType = "mcp_notification"
	CoreEventModelChange     CoreEventType = "model_change"
	CoreEventHistoryReplaced CoreEventType = "history_replaced"
	CoreEventActionRequired  CoreEventType = "action_required"
)

// ModelRole is the lead/worker distinction a provider's LeadWorker surface
// reports via ModelChange (§6).
type ModelRole string

const (
	ModelRoleLead    ModelRole = "lead"
	ModelRoleWorker  ModelRole = "worker"
	ModelRoleUnknown ModelRole = "unknown"
)

// CoreFrame is the abstract event frame an EventBus publishes. Exactly one
// of the typed payload fields is populated, selected by Type. The SSE
// adapter (out of core scope) wraps these into the AG-UI taxonomy.
type CoreFrame struct {
	Type      CoreEventType `json:"type"`
	Timestamp time.Time     `json:"timestamp"`

	// CoreEventMessage: payload carries a *conversation.Message, typed as
	// interface{} here to avoid an import cycle between entity and
	// conversation (entity is the lower-level package).
	MessagePayload interface{} `json:"message,omitempty"`

	// CoreEventMcpNotification
	RequestID          string      `json:"request_id,omitempty"`
	ServerNotification interface{} `json:"server_notification,omitempty"`

	// CoreEventModelChange
	Model string    `json:"model,omitempty"`
	Mode  ModelRole `json:"mode,omitempty"`

	// CoreEventHistoryReplaced
	ConversationPayload interface{} `json:"conversation,omitempty"`

	// CoreEventActionRequired: payload carries the pending tool requests
	// awaiting an external PermissionConfirmation, typed as interface{} for
	// the same import-cycle-avoidance reason as MessagePayload.
	ActionRequiredPayload interface{} `json:"action_required,omitempty"`
}

// NewMessageFrame builds a CoreEventMessage frame.
func NewMessageFrame(message interface{}) CoreFrame {
	return CoreFrame{Type: CoreEventMessage, Timestamp: time.Now(), MessagePayload: message}
}

// NewMcpNotificationFrame builds a CoreEventMcpNotification frame.
func NewMcpNotificationFrame(requestID string, notification interface{}) CoreFrame {
	return CoreFrame{Type: CoreEventMcpNotification, Timestamp: time.Now(), RequestID: requestID, ServerNotification: notification}
}

// NewModelChangeFrame builds a CoreEventModelChange frame.
func NewModelChangeFrame(model string, mode ModelRole) CoreFrame {
	return CoreFrame{Type: CoreEventModelChange, Timestamp: time.Now(), Model: model, Mode: mode}
}

// NewHistoryReplacedFrame builds a CoreEventHistoryReplaced frame.
func NewHistoryReplacedFrame(conv interface{}) CoreFrame {
	return CoreFrame{Type: CoreEventHistoryReplaced, Timestamp: time.Now(), ConversationPayload: conv}
}

// NewActionRequiredFrame builds a CoreEventActionRequired frame.
func NewActionRequiredFrame(pending interface{}) CoreFrame {
	return CoreFrame{Type: CoreEventActionRequired, Timestamp: time.Now(), ActionRequiredPayload: pending}
}
