package usecase

import "context"

// AIRequest is the usecase-layer contract for a single AI generation call —
// shared by Compactor (context summarization) and infrastructure/grpc.ModelFailover
// (multi-model retry wrapper) on top of any AIServiceClient implementation.
type AIRequest struct {
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
	History     []*ConversationTurn
}

// ConversationTurn is a minimal, AI-client-agnostic history entry — deliberately
// decoupled from domain/conversation.Message so this package never imports
// the telegram-era conversation aggregate.
type ConversationTurn struct {
	FromBot     bool
	Username    string
	Text        string
	Attachments []TurnAttachment
}

// TurnAttachment is a media attachment on a ConversationTurn.
type TurnAttachment struct {
	URL      string
	MimeType string
}

// AIResponse is the result of an AIRequest.
type AIResponse struct {
	Content    string
	ModelUsed  string
	TokensUsed int
}

// AIStreamChunk is one incremental piece of a streamed AIResponse.
type AIStreamChunk struct {
	Content string
	IsFinal bool
}

// SkillRequest/SkillResponse let an AIServiceClient delegate a named skill
// (e.g. a server-side prompt module) instead of free-form generation.
type SkillRequest struct {
	SkillID string
	Input   string
	Config  map[string]string
}

type SkillResponse struct {
	Output       string
	Success      bool
	ErrorMessage string
}

// AIServiceClient is any backend capable of serving AIRequests. The default
// implementation (infrastructure/llm.RouterAIClient) wraps the local
// multi-provider llm.Router; infrastructure/grpc.ModelFailover wraps an
// AIServiceClient with per-model cooldown and fallback-chain retry.
type AIServiceClient interface {
	GenerateResponse(ctx context.Context, req *AIRequest) (*AIResponse, error)
	GenerateStream(ctx context.Context, req *AIRequest) (<-chan *AIStreamChunk, <-chan error)
	ExecuteSkill(ctx context.Context, req *SkillRequest) (*SkillResponse, error)
}
