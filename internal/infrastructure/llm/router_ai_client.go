package llm

import (
	"context"
	"fmt"

	"github.com/ngoclaw/goosecore/internal/application/usecase"
	"github.com/ngoclaw/goosecore/internal/domain/service"
)

// RouterAIClient adapts a *Router to usecase.AIServiceClient, so the
// usecase layer (Compactor, and anything wrapped in grpc.ModelFailover) can
// drive the same multi-provider LLM stack the AgentLoop uses, without
// depending on service.LLMClient directly.
type RouterAIClient struct {
	router *Router
}

// NewRouterAIClient wraps router as a usecase.AIServiceClient.
func NewRouterAIClient(router *Router) *RouterAIClient {
	return &RouterAIClient{router: router}
}

var _ usecase.AIServiceClient = (*RouterAIClient)(nil)

func toLLMRequest(req *usecase.AIRequest) *service.LLMRequest {
	messages := make([]service.LLMMessage, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := "user"
		if turn.FromBot {
			role = "assistant"
		}
		messages = append(messages, service.LLMMessage{
			Role:    role,
			Content: turn.Text,
		})
	}
	messages = append(messages, service.LLMMessage{
		Role:    "user",
		Content: req.Prompt,
	})

	return &service.LLMRequest{
		Messages:    messages,
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

// GenerateResponse implements usecase.AIServiceClient by routing a single
// non-streaming generation through the wrapped Router.
func (c *RouterAIClient) GenerateResponse(ctx context.Context, req *usecase.AIRequest) (*usecase.AIResponse, error) {
	resp, err := c.router.Generate(ctx, toLLMRequest(req))
	if err != nil {
		return nil, err
	}
	return &usecase.AIResponse{
		Content:    resp.Content,
		ModelUsed:  resp.ModelUsed,
		TokensUsed: resp.TokensUsed,
	}, nil
}

// GenerateStream implements usecase.AIServiceClient by routing a streaming
// generation through the wrapped Router and translating deltas as they arrive.
func (c *RouterAIClient) GenerateStream(ctx context.Context, req *usecase.AIRequest) (<-chan *usecase.AIStreamChunk, <-chan error) {
	chunkCh := make(chan *usecase.AIStreamChunk, 16)
	errCh := make(chan error, 1)

	deltaCh := make(chan service.StreamChunk, 16)
	llmReq := toLLMRequest(req)

	go func() {
		defer close(chunkCh)
		defer close(errCh)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for delta := range deltaCh {
				chunkCh <- &usecase.AIStreamChunk{
					Content: delta.DeltaText,
					IsFinal: delta.FinishReason != "",
				}
			}
		}()

		_, err := c.router.GenerateStream(ctx, llmReq, deltaCh)
		close(deltaCh)
		<-done
		if err != nil {
			errCh <- err
		}
	}()

	return chunkCh, errCh
}

// ExecuteSkill is not supported by the plain LLM router — skills are served
// by domain/tool.SkillManager, not the model layer.
func (c *RouterAIClient) ExecuteSkill(ctx context.Context, req *usecase.SkillRequest) (*usecase.SkillResponse, error) {
	return nil, fmt.Errorf("llm: RouterAIClient does not support skill execution (skill %q)", req.SkillID)
}
