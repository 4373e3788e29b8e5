package websocket

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/domain/service"
	"github.com/ngoclaw/goosecore/internal/infrastructure/eventbus"
)

// DriverFactory builds one session's §4.L ReplyDriver, broadcasting its
// CoreFrame stream onto bus. Shared shape with handlers.DriverFactory —
// duplicated here to avoid an http->websocket package dependency.
type DriverFactory func(sessionID string, bus service.EventPublisher) *service.ReplyDriver

// AgentBridge drives ReplyDriver turns over WebSocket connections instead of
// SSE: the same per-session driver/bus pairing as interfaces/http's
// AgentHandler, but pushed through Hub.SendToClient as WSMessage frames
// rather than written as SSE lines.
type AgentBridge struct {
	hub       *Hub
	newDriver DriverFactory
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*wsSession
}

type wsSession struct {
	driver *service.ReplyDriver
	bus    *eventbus.SessionEventBus
}

// NewAgentBridge wires hub's message handler to drive ReplyDriver turns.
func NewAgentBridge(hub *Hub, newDriver DriverFactory, logger *zap.Logger) *AgentBridge {
	b := &AgentBridge{
		hub:       hub,
		newDriver: newDriver,
		logger:    logger.With(zap.String("component", "ws-agent-bridge")),
		sessions:  make(map[string]*wsSession),
	}
	hub.SetMessageHandler(b.handleMessage)
	return b
}

func (b *AgentBridge) session(sessionID string) *wsSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sess, ok := b.sessions[sessionID]; ok {
		return sess
	}
	bus := eventbus.NewSessionEventBus(eventbus.DefaultAgentEventCapacity, b.logger)
	sess := &wsSession{driver: b.newDriver(sessionID, bus), bus: bus}
	b.sessions[sessionID] = sess
	return sess
}

func (b *AgentBridge) handleMessage(client *Client, msg *WSMessage) {
	if msg.Type != MessageTypeChat {
		return
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = client.SessionID
	}
	if sessionID == "" {
		sessionID = client.ID
	}

	sess := b.session(sessionID)
	receiver := sess.bus.Subscribe()

	ctx := context.Background()
	type turnOutcome struct {
		result *service.TurnResult
		err    error
	}
	doneCh := make(chan turnOutcome, 1)
	go func() {
		result, err := sess.driver.HandleTurn(ctx, msg.Content)
		doneCh <- turnOutcome{result: result, err: err}
	}()

	var lastSegment strings.Builder
	for {
		select {
		case frame, ok := <-receiver.Frames:
			if !ok {
				return
			}
			b.emitFrame(client, sessionID, frame, &lastSegment)

		case outcome := <-doneCh:
			receiver.Unsubscribe()
			b.emitResult(client, sessionID, outcome.result, outcome.err, lastSegment.String())
			return
		}
	}
}

func (b *AgentBridge) emitFrame(client *Client, sessionID string, frame entity.CoreFrame, lastSegment *strings.Builder) {
	switch payload := frame.MessagePayload.(type) {
	case string:
		lastSegment.WriteString(payload)
		client.SendMessage(&WSMessage{
			Type:      MessageTypeStream,
			SessionID: sessionID,
			Content:   payload,
		})

	case entity.AgentEvent:
		switch payload.Type {
		case entity.EventToolCall:
			lastSegment.Reset()
			client.SendMessage(&WSMessage{
				Type:      MessageTypeToolCall,
				SessionID: sessionID,
				Metadata:  map[string]interface{}{"tool_call": payload.ToolCall},
			})
		case entity.EventToolResult:
			client.SendMessage(&WSMessage{
				Type:      MessageTypeToolResult,
				SessionID: sessionID,
				Metadata:  map[string]interface{}{"tool_result": payload.ToolCall},
			})
		case entity.EventTextDelta:
			lastSegment.WriteString(payload.Content)
			client.SendMessage(&WSMessage{
				Type:      MessageTypeStream,
				SessionID: sessionID,
				Content:   payload.Content,
			})
		default:
			client.SendMessage(&WSMessage{
				Type:      MessageTypeStream,
				SessionID: sessionID,
				Content:   payload.Content,
			})
		}
	}
}

func (b *AgentBridge) emitResult(client *Client, sessionID string, result *service.TurnResult, err error, fallback string) {
	if err != nil {
		client.SendMessage(&WSMessage{
			Type:      MessageTypeError,
			SessionID: sessionID,
			Content:   err.Error(),
		})
		return
	}

	finalText := ""
	var meta map[string]interface{}
	if result != nil {
		finalText = strings.TrimSpace(result.FinalText)
		meta = map[string]interface{}{
			"total_steps":  result.TurnsUsed,
			"cost_dollars": result.CostDollars,
			"core_used":    string(result.CoreUsed),
		}
	}
	if finalText == "" {
		finalText = strings.TrimSpace(service.StripReasoningTags(fallback))
	}

	client.SendMessage(&WSMessage{
		Type:      MessageTypeChat,
		SessionID: sessionID,
		Content:   finalText,
		Metadata:  meta,
	})
}
