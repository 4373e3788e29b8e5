package agentgrpc

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/domain/service"
	"github.com/ngoclaw/goosecore/internal/infrastructure/eventbus"
)

// DriverFactory builds one session's §4.L ReplyDriver, sharing the
// process-wide core registry / checkpoint / experience / guardrails /
// budget collaborators, broadcasting its CoreFrame stream onto bus.
type DriverFactory func(sessionID string, bus service.EventPublisher) *service.ReplyDriver

// Server implements the gRPC AgentService for the VS Code extension and
// other clients. Each session gets its own ReplyDriver (the same §4.L
// state machine the HTTP/SSE surface runs), so core auto-switching,
// checkpointing, experience recording, guardrails, and budget tracking
// apply here too.
type Server struct {
	newDriver DriverFactory
	toolExec  service.ToolExecutor
	logger    *zap.Logger
	server    *grpc.Server
	port      int

	sessions sync.Map // map[string]*grpcSession
}

type grpcSession struct {
	driver *service.ReplyDriver
	bus    *eventbus.SessionEventBus
}

// NewServer creates a new gRPC agent server
func NewServer(newDriver DriverFactory, toolExec service.ToolExecutor, port int, logger *zap.Logger) *Server {
	return &Server{
		newDriver: newDriver,
		toolExec:  toolExec,
		logger:    logger.With(zap.String("component", "agent-grpc")),
		port:      port,
	}
}

func (s *Server) session(sessionID string) *grpcSession {
	if existing, ok := s.sessions.Load(sessionID); ok {
		return existing.(*grpcSession)
	}
	bus := eventbus.NewSessionEventBus(eventbus.DefaultAgentEventCapacity, s.logger)
	sess := &grpcSession{driver: s.newDriver(sessionID, bus), bus: bus}
	actual, _ := s.sessions.LoadOrStore(sessionID, sess)
	return actual.(*grpcSession)
}

// Start starts the gRPC server
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen port %d: %w", s.port, err)
	}

	s.server = grpc.NewServer()
	// Register would happen here once proto is generated:
	// pb.RegisterAgentServiceServer(s.server, s)

	s.logger.Info("Starting gRPC agent server", zap.Int("port", s.port))

	go func() {
		if err := s.server.Serve(lis); err != nil {
			s.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the gRPC server
func (s *Server) Stop() {
	if s.server != nil {
		s.server.GracefulStop()
		s.logger.Info("gRPC agent server stopped")
	}
}

// --- gRPC Service Method Implementations ---
// These follow the proto service definition and will be connected
// once proto generation is set up.

// RunAgentRequest is the inbound request for ExecuteAgent RPC
type RunAgentRequest struct {
	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt"`
	Model        string `json:"model"`
	SessionID    string `json:"session_id"`
}

// AgentEvent is the streaming response event for ExecuteAgent RPC
type AgentEvent struct {
	Type     string                 `json:"type"`
	Content  string                 `json:"content,omitempty"`
	ToolName string                 `json:"tool_name,omitempty"`
	ToolID   string                 `json:"tool_id,omitempty"`
	ToolArgs map[string]interface{} `json:"tool_args,omitempty"`
	ToolOut  string                 `json:"tool_output,omitempty"`
	Success  bool                   `json:"success,omitempty"`
	Step     int                    `json:"step,omitempty"`
	Tokens   int                    `json:"tokens,omitempty"`
	Model    string                 `json:"model,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// ToolDefinition describes a tool for the ListTools RPC
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ExecuteAgent runs one ReplyDriver turn and streams its broadcast frames
// back. This method can be called via gRPC server-side streaming once
// proto generation is set up. For now, it exposes the logic directly.
func (s *Server) ExecuteAgent(ctx context.Context, req *RunAgentRequest, sendEvent func(*AgentEvent) error) error {
	if req.Message == "" {
		return status.Error(codes.InvalidArgument, "message is required")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.logger.Info("gRPC ExecuteAgent",
		zap.String("session", sessionID),
		zap.String("model", req.Model),
	)

	sess := s.session(sessionID)
	if req.Model != "" {
		sess.driver.SetModel(req.Model)
	}
	if req.SystemPrompt != "" {
		sess.driver.SetBaseSystemPrompt(req.SystemPrompt)
	}

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

	var lastSegment strings.Builder
	for {
		select {
		case frame, ok := <-receiver.Frames:
			if !ok {
				return nil
			}
			ev := convertFrameToGRPCEvent(frame, &lastSegment)
			if ev == nil {
				continue
			}
			if err := sendEvent(ev); err != nil {
				return err
			}

		case outcome := <-doneCh:
			if outcome.err != nil {
				return sendEvent(&AgentEvent{Type: "error", Error: outcome.err.Error()})
			}
			finalText := lastSegment.String()
			if outcome.result != nil && strings.TrimSpace(outcome.result.FinalText) != "" {
				finalText = outcome.result.FinalText
			}
			return sendEvent(&AgentEvent{Type: "done", Content: strings.TrimSpace(finalText)})

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ListTools returns available tool definitions
func (s *Server) ListTools() []ToolDefinition {
	defs := s.toolExec.GetDefinitions()
	result := make([]ToolDefinition, 0, len(defs))
	for _, d := range defs {
		result = append(result, ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return result
}

func convertFrameToGRPCEvent(frame entity.CoreFrame, lastSegment *strings.Builder) *AgentEvent {
	switch payload := frame.MessagePayload.(type) {
	case string:
		lastSegment.WriteString(payload)
		return &AgentEvent{Type: "text_delta", Content: payload}

	case entity.AgentEvent:
		return convertToGRPCEvent(payload, lastSegment)
	}
	return nil
}

func convertToGRPCEvent(event entity.AgentEvent, lastSegment *strings.Builder) *AgentEvent {
	ge := &AgentEvent{}

	switch event.Type {
	case entity.EventThinking:
		ge.Type = "thinking"
		ge.Content = event.Content
	case entity.EventTextDelta:
		ge.Type = "text_delta"
		ge.Content = event.Content
	case entity.EventToolCall:
		if lastSegment != nil {
			lastSegment.Reset()
		}
		ge.Type = "tool_call"
		if event.ToolCall != nil {
			ge.ToolName = event.ToolCall.Name
			ge.ToolID = event.ToolCall.ID
			ge.ToolArgs = event.ToolCall.Arguments
		}
	case entity.EventToolResult:
		ge.Type = "tool_result"
		if event.ToolCall != nil {
			ge.ToolName = event.ToolCall.Name
			ge.ToolID = event.ToolCall.ID
			ge.ToolOut = event.ToolCall.Output
			ge.Success = event.ToolCall.Success
		}
	case entity.EventStepDone:
		ge.Type = "step_done"
		if event.StepInfo != nil {
			ge.Step = event.StepInfo.Step
			ge.Tokens = event.StepInfo.TokensUsed
			ge.Model = event.StepInfo.ModelUsed
		}
	case entity.EventError:
		ge.Type = "error"
		ge.Error = event.Error
	case entity.EventDone:
		ge.Type = "done"
	}

	return ge
}
