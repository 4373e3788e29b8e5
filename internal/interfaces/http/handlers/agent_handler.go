package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/domain/service"
	"github.com/ngoclaw/goosecore/internal/infrastructure/eventbus"
	"github.com/ngoclaw/goosecore/internal/infrastructure/prompt"
)

// DriverFactory builds one session's §4.L ReplyDriver, wired to the
// process-wide core registry / checkpoint / experience / guardrails /
// budget collaborators, broadcasting its CoreFrame stream onto bus.
type DriverFactory func(sessionID string, bus service.EventPublisher) *service.ReplyDriver

// AgentHandler handles agent turns with SSE streaming.
// This is the primary endpoint for the VS Code extension and Web UI: each
// session gets its own ReplyDriver, so core auto-switching, checkpointing,
// experience recording, guardrails, and budget tracking all apply here —
// the same state machine every other front end (gRPC, TUI, REPL) wraps.
type AgentHandler struct {
	newDriver    DriverFactory
	toolExec     service.ToolExecutor
	promptEngine *prompt.PromptEngine
	logger       *zap.Logger

	sessions sync.Map // map[string]*httpSession
}

// httpSession pairs one sessionID's ReplyDriver with the SessionEventBus
// it broadcasts CoreFrame on; RunAgent subscribes fresh each turn.
type httpSession struct {
	driver *service.ReplyDriver
	bus    *eventbus.SessionEventBus
}

// NewAgentHandler creates a handler for ReplyDriver-backed SSE streaming.
func NewAgentHandler(newDriver DriverFactory, toolExec service.ToolExecutor, promptEngine *prompt.PromptEngine, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{
		newDriver:    newDriver,
		toolExec:     toolExec,
		promptEngine: promptEngine,
		logger:       logger.With(zap.String("handler", "agent")),
	}
}

func (h *AgentHandler) session(sessionID string) *httpSession {
	if existing, ok := h.sessions.Load(sessionID); ok {
		return existing.(*httpSession)
	}
	bus := eventbus.NewSessionEventBus(eventbus.DefaultAgentEventCapacity, h.logger)
	sess := &httpSession{driver: h.newDriver(sessionID, bus), bus: bus}
	actual, _ := h.sessions.LoadOrStore(sessionID, sess)
	return actual.(*httpSession)
}

// AgentRequest is the JSON body for POST /api/v1/agent
type AgentRequest struct {
	Message      string               `json:"message" binding:"required"`
	SystemPrompt string               `json:"system_prompt,omitempty"`
	Model        string               `json:"model,omitempty"`
	SessionID    string               `json:"session_id,omitempty"`
	History      []service.LLMMessage `json:"history,omitempty"`
}

// SSEEvent represents a single Server-Sent Event
type SSEEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// RunAgent handles POST /api/v1/agent — drives one ReplyDriver turn and
// streams its broadcast frames via SSE.
func (h *AgentHandler) RunAgent(c *gin.Context) {
	var req AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	// Set SSE headers
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.Header().Set("X-Session-Id", req.SessionID)
	c.Writer.WriteHeader(http.StatusOK)

	ctx := c.Request.Context()
	sess := h.session(req.SessionID)
	if req.Model != "" {
		sess.driver.SetModel(req.Model)
	}
	sess.driver.SetBaseSystemPrompt(h.assemblePrompt(req))

	h.logger.Info("Agent request received",
		zap.String("session", req.SessionID),
		zap.String("model", req.Model),
		zap.Int("history_len", len(req.History)),
	)

	receiver := sess.bus.Subscribe()
	defer receiver.Unsubscribe()

	type turnOutcome struct {
		result *service.TurnResult
		err    error
	}
	doneCh := make(chan turnOutcome, 1)
	go func() {
		result, err := sess.driver.HandleTurn(ctx, req.Message)
		doneCh <- turnOutcome{result: result, err: err}
	}()

	flusher, _ := c.Writer.(http.Flusher)
	var lastSegment strings.Builder

	for {
		select {
		case frame, ok := <-receiver.Frames:
			if !ok {
				return
			}
			h.emitFrame(c.Writer, flusher, frame, &lastSegment)

		case outcome := <-doneCh:
			h.emitResult(c.Writer, flusher, outcome.result, outcome.err, lastSegment.String())
			return

		case <-ctx.Done():
			return
		}
	}
}

// emitFrame translates one CoreFrame broadcast by ReplyDriver into SSE,
// mirroring the event-type switch convertEvent used to run directly
// against AgentLoop's channel.
func (h *AgentHandler) emitFrame(w http.ResponseWriter, flusher http.Flusher, frame entity.CoreFrame, lastSegment *strings.Builder) {
	switch payload := frame.MessagePayload.(type) {
	case string:
		lastSegment.WriteString(payload)
		h.writeSSE(w, flusher, SSEEvent{Event: "text_delta", Data: map[string]string{"content": payload}})

	case entity.AgentEvent:
		if payload.Type == entity.EventToolCall {
			// Reset on each tool call so the fallback text is only the
			// final segment (after the last tool result).
			lastSegment.Reset()
		}
		h.writeSSE(w, flusher, h.convertEvent(payload))
	}
}

func (h *AgentHandler) emitResult(w http.ResponseWriter, flusher http.Flusher, result *service.TurnResult, err error, fallback string) {
	if err != nil {
		h.writeSSE(w, flusher, SSEEvent{Event: "error", Data: map[string]string{"error": err.Error()}})
		return
	}

	finalText := ""
	coreUsed := ""
	turnsUsed := 0
	cost := 0.0
	if result != nil {
		finalText = strings.TrimSpace(result.FinalText)
		coreUsed = string(result.CoreUsed)
		turnsUsed = result.TurnsUsed
		cost = result.CostDollars
	}
	if finalText == "" {
		finalText = strings.TrimSpace(service.StripReasoningTags(fallback))
	}

	h.writeSSE(w, flusher, SSEEvent{Event: "done", Data: map[string]interface{}{
		"content":      finalText,
		"total_steps":  turnsUsed,
		"cost_dollars": cost,
		"core_used":    coreUsed,
	}})
}

func (h *AgentHandler) writeSSE(w http.ResponseWriter, flusher http.Flusher, ev SSEEvent) {
	data, _ := json.Marshal(ev.Data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, data)
	if flusher != nil {
		flusher.Flush()
	}
}

// assemblePrompt builds the system prompt using the PromptEngine.
// If the request includes a custom system_prompt, it's appended.
func (h *AgentHandler) assemblePrompt(req AgentRequest) string {
	if h.promptEngine == nil {
		// Fallback: use request's system_prompt directly
		return req.SystemPrompt
	}

	// Build prompt context with runtime information
	toolNames := make([]string, 0)
	for _, d := range h.toolExec.GetDefinitions() {
		toolNames = append(toolNames, d.Name)
	}

	pctx := prompt.PromptContext{
		Channel:         "api",
		RegisteredTools: toolNames,
		ModelName:       req.Model,
		UserMessage:     req.Message,
	}

	// Assemble from SOUL + Components + Variants
	assembled := h.promptEngine.Assemble(pctx)

	// If request also has a custom system_prompt, append it
	if req.SystemPrompt != "" {
		assembled += "\n\n---\n\n## Additional Instructions\n" + req.SystemPrompt
	}

	return assembled
}

// GetTools handles GET /api/v1/agent/tools — lists available tools
func (h *AgentHandler) GetTools(c *gin.Context) {
	defs := h.toolExec.GetDefinitions()
	tools := make([]map[string]interface{}, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, map[string]interface{}{
			"name":        d.Name,
			"description": d.Description,
			"parameters":  d.Parameters,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools})
}

func (h *AgentHandler) convertEvent(event entity.AgentEvent) SSEEvent {
	switch event.Type {
	case entity.EventThinking:
		return SSEEvent{Event: "thinking", Data: map[string]string{
			"content": event.Content,
		}}
	case entity.EventTextDelta:
		return SSEEvent{Event: "text_delta", Data: map[string]string{
			"content": event.Content,
		}}
	case entity.EventToolCall:
		return SSEEvent{Event: "tool_call", Data: event.ToolCall}
	case entity.EventToolResult:
		return SSEEvent{Event: "tool_result", Data: event.ToolCall}
	case entity.EventStepDone:
		return SSEEvent{Event: "step_done", Data: event.StepInfo}

	case entity.EventError:
		return SSEEvent{Event: "error", Data: map[string]string{
			"error": event.Error,
		}}
	case entity.EventDone:
		return SSEEvent{Event: "complete", Data: map[string]string{}}
	default:
		return SSEEvent{Event: "unknown", Data: event}
	}
}
