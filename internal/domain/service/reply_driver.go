package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/conversation"
	"github.com/ngoclaw/goosecore/internal/domain/core"
	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/domain/repository"
)

// EventPublisher is the seam ReplyDriver broadcasts CoreFrame over. The
// concrete SessionEventBus lives in infrastructure/eventbus; kept as an
// interface here so domain/service never imports infrastructure (the
// pattern already used for AgentHook/MemoryRecaller in this package).
type EventPublisher interface {
	Publish(frame entity.CoreFrame) bool
}

// MemoryRecaller is the seam for §4.N's "inject recalled memories" turn-entry
// responsibility. Any implementation (including a no-op) satisfies
// ReplyDriver's needs; a nil recaller is replaced by noopMemoryRecaller.
type MemoryRecaller interface {
	Recall(ctx context.Context, query string, limit int) ([]string, error)
}

// noopMemoryRecaller is used when no MemoryRecaller is configured.
type noopMemoryRecaller struct{}

func (noopMemoryRecaller) Recall(ctx context.Context, query string, limit int) ([]string, error) {
	return nil, nil
}

// ReplyDriverConfig holds the tunables named throughout §4.L.
type ReplyDriverConfig struct {
	BaseSystemPrompt       string
	GooseMode              GooseMode
	MaxContinuationResets  int           // hard cap on MemGPT resets per turn (default 3)
	AutoCheckpointInterval time.Duration // default 600s
	MaxSkillsInPrompt      int           // default 3
	MaxInsightsInPrompt    int           // default 5
	MaxRecalledMemories    int           // default 5
}

// DefaultReplyDriverConfig returns the §4.L defaults.
func DefaultReplyDriverConfig() ReplyDriverConfig {
	return ReplyDriverConfig{
		GooseMode:              GooseModeAuto,
		MaxContinuationResets:  3,
		AutoCheckpointInterval: 600 * time.Second,
		MaxSkillsInPrompt:      3,
		MaxInsightsInPrompt:    5,
		MaxRecalledMemories:    5,
	}
}

// ReplyDriver is the §4.L central state machine: it owns one session's
// conversation across turns, resolves which Core handles each turn, and
// wraps the Freeform AgentLoop with the session-level concerns AgentLoop
// itself has no notion of — core selection, checkpointing, experience
// recording, budget enforcement, and MemGPT-style context-overflow
// continuation. AgentLoop (adapted, not rewritten) remains the mechanism
// for the low-level per-iteration ReAct loop (streaming, parallel tool
// dispatch, loop detection, reflection) when the active core is Freeform.
type ReplyDriver struct {
	sessionID string
	config    ReplyDriverConfig

	loop        *AgentLoop
	registry    *core.Registry
	selector    *core.Selector
	checkpoints repository.CheckpointStore
	experience  repository.ExperienceStore
	skills      repository.SkillLibrary
	insights    *InsightExtractor
	guardrails  *GuardrailsEngine
	budget      *BudgetTracker
	bus         EventPublisher
	memory      MemoryRecaller
	model       string

	logger *zap.Logger

	conv               *conversation.Conversation
	lastReflexion      string
	continuationResets int
	lastCheckpointAt   time.Time
}

// NewReplyDriver wires a ReplyDriver for one session. checkpoints,
// experience, skills, bus, and memory may be nil (the corresponding
// turn-entry responsibility degrades gracefully: no checkpoint persistence,
// no experience-derived prompt augmentation, no event broadcast, no
// recalled-memories block).
func NewReplyDriver(
	sessionID string,
	loop *AgentLoop,
	registry *core.Registry,
	checkpoints repository.CheckpointStore,
	experience repository.ExperienceStore,
	skills repository.SkillLibrary,
	guardrails *GuardrailsEngine,
	budget *BudgetTracker,
	bus EventPublisher,
	memory MemoryRecaller,
	config ReplyDriverConfig,
	logger *zap.Logger,
) *ReplyDriver {
	if config.MaxContinuationResets <= 0 {
		config.MaxContinuationResets = 3
	}
	if config.AutoCheckpointInterval <= 0 {
		config.AutoCheckpointInterval = 600 * time.Second
	}
	if config.MaxSkillsInPrompt <= 0 {
		config.MaxSkillsInPrompt = 3
	}
	if config.MaxInsightsInPrompt <= 0 {
		config.MaxInsightsInPrompt = 5
	}
	if config.MaxRecalledMemories <= 0 {
		config.MaxRecalledMemories = 5
	}
	if memory == nil {
		memory = noopMemoryRecaller{}
	}
	selector := core.NewSelector(experience)
	var insights *InsightExtractor
	if experience != nil {
		insights = NewInsightExtractor(experience)
	}

	return &ReplyDriver{
		sessionID:   sessionID,
		config:      config,
		loop:        loop,
		registry:    registry,
		selector:    selector,
		checkpoints: checkpoints,
		experience:  experience,
		skills:      skills,
		insights:    insights,
		guardrails:  guardrails,
		budget:      budget,
		bus:         bus,
		memory:      memory,
		logger:      logger,
		conv:        conversation.NewConversation(),
	}
}

// Conversation returns the driver's current conversation snapshot.
func (d *ReplyDriver) Conversation() *conversation.Conversation { return d.conv }

// SetModel overrides the model passed to AgentLoop.Run for subsequent turns,
// e.g. after a caller-facing "/model" switch changes the session's pick.
// An empty string restores AgentLoop's own configured default.
func (d *ReplyDriver) SetModel(model string) { d.model = model }

// SetBaseSystemPrompt replaces the config's BaseSystemPrompt, letting a
// caller rebuild the channel/tool-aware base layer per turn while
// ReplyDriver still layers its own skills/insights/reflexion/guardrails
// additions on top in buildSystemPrompt.
func (d *ReplyDriver) SetBaseSystemPrompt(prompt string) { d.config.BaseSystemPrompt = prompt }

// LoadConversation replaces the driver's conversation (session resume from
// a CheckpointStore-backed restore, or a freshly loaded thread history).
func (d *ReplyDriver) LoadConversation(conv *conversation.Conversation) { d.conv = conv }

// ResumeFromCheckpoint loads the thread's latest checkpoint, if any, and
// restores it as the driver's conversation. Returns false with no error if
// no checkpoint exists for this thread yet.
func (d *ReplyDriver) ResumeFromCheckpoint(ctx context.Context) (bool, error) {
	if d.checkpoints == nil {
		return false, nil
	}
	cp, err := d.checkpoints.LoadLatest(ctx, d.sessionID)
	if err != nil {
		return false, fmt.Errorf("reply driver: load latest checkpoint: %w", err)
	}
	if cp == nil {
		return false, nil
	}
	conv, err := decodeConversationState(cp.State)
	if err != nil {
		return false, err
	}
	d.conv = conv
	return true, nil
}

// TurnResult is what HandleTurn returns once the InferLoop terminates.
type TurnResult struct {
	FinalText   string
	CoreUsed    entity.CoreType
	TurnsUsed   int
	CostDollars float64
	Completed   bool
	NeedsInput  bool // true when the budget tracker reports the session over budget
	Terminal    bool // true when continuation resets were exhausted
}

// HandleTurn implements §4.L's turn-entry responsibilities followed by the
// InferLoop. For a non-Freeform active core the InferLoop is a single
// Core.Execute dispatch; for Freeform it is AgentLoop's per-iteration ReAct
// loop with the two-stage context-overflow recovery wrapped around it.
func (d *ReplyDriver) HandleTurn(ctx context.Context, userMessage string) (*TurnResult, error) {
	d.fixConversation()

	hint := core.DeriveTaskHint(userMessage)
	activeType := entity.CoreFreeform
	if d.registry != nil {
		activeType = d.registry.ActiveCoreType()
		if sel, err := d.selector.SelectWithHint(ctx, hint, d.registry); err == nil {
			if core.ShouldAutoSwitch(sel, activeType) {
				if _, err := d.registry.SwitchCore(sel.CoreType); err == nil {
					activeType = sel.CoreType
					d.logger.Info("auto-switched core",
						zap.String("to", string(sel.CoreType)),
						zap.Float64("confidence", sel.Confidence),
						zap.String("rationale", sel.Rationale))
				}
			} else {
				activeType = d.registry.ActiveCoreType()
			}
		}
	}

	systemPrompt := d.buildSystemPrompt(ctx, userMessage, hint)
	d.conv = d.conv.Append(conversation.NewTextMessage(conversation.RoleUser, userMessage))

	if activeType != entity.CoreFreeform {
		return d.dispatchCore(ctx, activeType, userMessage, hint)
	}
	return d.runFreeform(ctx, systemPrompt, userMessage, hint)
}

// fixConversation implements the "fix the conversation (drop orphans)"
// turn-entry responsibility (§4.L, conversation.go's Fix()).
func (d *ReplyDriver) fixConversation() {
	fixed, log := d.conv.Fix()
	d.conv = fixed
	for _, line := range log {
		d.logger.Warn("conversation repair", zap.String("detail", line))
	}
}

// buildSystemPrompt assembles base + mode addendum + up to MaxSkillsInPrompt
// skills + up to MaxInsightsInPrompt insights + reflexion + recalled
// memories + guardrails warning, in that order (§4.L).
func (d *ReplyDriver) buildSystemPrompt(ctx context.Context, userMessage string, hint core.TaskHint) string {
	prompt := d.config.BaseSystemPrompt
	if d.config.GooseMode == GooseModeChat {
		prompt += "\n\nYou are in chat mode: describe what you would do, but do not call tools."
	}

	if d.skills != nil {
		if matches, err := d.skills.FindForTask(ctx, userMessage, d.config.MaxSkillsInPrompt); err == nil && len(matches) > 0 {
			prompt += "\n\nRelevant learned skills:\n"
			for _, sk := range matches {
				prompt += fmt.Sprintf("- %s: %s\n", sk.Name(), sk.Description())
			}
		}
	}

	if d.insights != nil {
		if top, err := d.insights.Retrieve(ctx, d.config.MaxInsightsInPrompt); err == nil && len(top) > 0 {
			prompt += "\n\nLearned insights from past executions:\n"
			for _, ins := range top {
				prompt += fmt.Sprintf("- %s (confidence %.0f%%)\n", ins.Text, ins.Confidence*100)
			}
		}
	}

	if d.lastReflexion != "" {
		prompt += "\n\n[REFLEXION] " + d.lastReflexion
		d.lastReflexion = ""
	}

	if recalled, err := d.memory.Recall(ctx, userMessage, d.config.MaxRecalledMemories); err == nil && len(recalled) > 0 {
		prompt += "\n\n[RECALLED MEMORIES]\n"
		for _, m := range recalled {
			prompt += "- " + m + "\n"
		}
	}

	if d.guardrails != nil {
		scan := d.guardrails.Scan(userMessage, DetectionContext{Source: "user_message", SessionID: d.sessionID})
		if block := scan.WarningBlock(); block != "" {
			prompt += "\n\n" + block
		}
	}

	return prompt
}

// dispatchCore runs a non-Freeform active core via Core.Execute, recording
// an Experience and checkpoint around it regardless of outcome (§4.F/§9).
func (d *ReplyDriver) dispatchCore(ctx context.Context, activeType entity.CoreType, userMessage string, hint core.TaskHint) (*TurnResult, error) {
	c := d.registry.ActiveCore()
	if c == nil {
		return nil, fmt.Errorf("reply driver: core %q is not registered", activeType)
	}

	agentCtx := &core.AgentContext{
		SessionID:    d.sessionID,
		Conversation: d.conv,
	}

	start := time.Now()
	output, err := c.Execute(ctx, agentCtx, userMessage)
	elapsed := time.Since(start)

	succeeded := err == nil && output != nil && output.Completed
	summary := ""
	turns := 0
	cost := 0.0
	if output != nil {
		summary = output.Summary
		turns = output.Metrics.Turns
		cost = output.Metrics.CostDollars
	}
	if err != nil {
		summary = err.Error()
	}

	d.conv = d.conv.Append(conversation.NewTextMessage(conversation.RoleAssistant, summary))
	d.publishMessage(d.conv.Last())
	d.recordExperience(ctx, activeType, userMessage, hint.Category, succeeded, turns, cost, elapsed)
	d.checkpoint(ctx, "core_dispatch_complete", false)

	return &TurnResult{
		FinalText:   summary,
		CoreUsed:    activeType,
		TurnsUsed:   turns,
		CostDollars: cost,
		Completed:   succeeded,
	}, err
}

// runFreeform drives the AgentLoop-backed Freeform loop, translating its
// entity.AgentEvent stream into CoreFrame broadcasts, budget updates, and
// periodic auto-checkpoints, and implementing the two-stage context-overflow
// recovery (§4.L): compact once, then MemGPT continuation, hard-capped at
// MaxContinuationResets resets per turn.
func (d *ReplyDriver) runFreeform(ctx context.Context, systemPrompt, userMessage string, hint core.TaskHint) (*TurnResult, error) {
	start := time.Now()
	history := conversationToLLMHistory(d.conv)

	result, eventCh := d.loop.Run(ctx, systemPrompt, userMessage, history, d.model)

	overflowed := false
	for ev := range eventCh {
		d.forwardEvent(ev)
		if ev.Type == entity.EventError && isContextOverflow(ev.Error) {
			overflowed = true
		}
		d.maybeAutoCheckpoint(ctx)
	}

	if overflowed {
		return d.recoverFromOverflow(ctx, systemPrompt, userMessage, hint)
	}

	elapsed := time.Since(start)
	d.conv = d.conv.Append(conversation.NewTextMessage(conversation.RoleAssistant, result.FinalContent))
	d.publishMessage(d.conv.Last())

	if d.budget != nil {
		d.budget.RecordLLMCall(result.ModelUsed, TokenUsage{Output: int64(result.TotalTokens)})
	}

	succeeded := result.FinalContent != ""
	d.recordExperience(ctx, entity.CoreFreeform, userMessage, hint.Category, succeeded, result.TotalSteps, 0, elapsed)
	d.checkpoint(ctx, "turn_complete", false)
	d.continuationResets = 0

	return &TurnResult{
		FinalText:  result.FinalContent,
		CoreUsed:   entity.CoreFreeform,
		TurnsUsed:  result.TotalSteps,
		Completed:  succeeded,
		NeedsInput: d.budget != nil && d.budget.IsOverBudget(),
	}, nil
}

// recoverFromOverflow implements the compact-once-then-continuation policy.
// The first overflow in a turn is handled by AgentLoop's own ContextGuard
// (it already compacts internally); reaching here means AgentLoop terminated
// with an overflow anyway, so the driver replaces the whole conversation
// with a synthetic AgentCheckpointState continuation prompt and retries.
// After MaxContinuationResets such resets, the turn ends with a terminal
// "start a new session" response instead of retrying again.
func (d *ReplyDriver) recoverFromOverflow(ctx context.Context, systemPrompt, userMessage string, hint core.TaskHint) (*TurnResult, error) {
	d.continuationResets++
	if d.continuationResets > d.config.MaxContinuationResets {
		msg := "This session has hit its context limit too many times in a row. Please start a new session."
		d.conv = d.conv.Append(conversation.NewTextMessage(conversation.RoleAssistant, msg))
		d.publishMessage(d.conv.Last())
		return &TurnResult{FinalText: msg, CoreUsed: entity.CoreFreeform, Terminal: true}, nil
	}

	state := d.buildCheckpointState(userMessage)
	continuationPrompt := state.ToContinuationPrompt()
	continuationMsg := conversation.NewMessage(conversation.RoleUser, conversation.TextPart(continuationPrompt))
	continuationMsg.Visibility = conversation.AgentOnlyVisibility()
	d.conv = conversation.NewConversation(continuationMsg)

	d.logger.Warn("context overflow: replaced conversation with MemGPT continuation",
		zap.Int("reset_count", d.continuationResets))

	return d.runFreeform(ctx, systemPrompt, continuationPrompt, hint)
}

// buildCheckpointState synthesizes an AgentCheckpointState from the
// conversation so far, for the continuation prompt.
func (d *ReplyDriver) buildCheckpointState(task string) *entity.AgentCheckpointState {
	var completed []string
	var lastToolResults []string
	for _, msg := range d.conv.Messages {
		if msg.Role == conversation.RoleAssistant {
			if text := msg.Text(); text != "" {
				completed = append(completed, text)
			}
		}
		for _, resp := range msg.ToolResponseParts() {
			if resp.Result != nil {
				lastToolResults = append(lastToolResults, resp.Result.Output)
			}
		}
	}
	if len(completed) > 5 {
		completed = completed[len(completed)-5:]
	}
	if len(lastToolResults) > 5 {
		lastToolResults = lastToolResults[len(lastToolResults)-5:]
	}

	return &entity.AgentCheckpointState{
		TaskDescription: task,
		CompletedSteps:  completed,
		LastToolResults: lastToolResults,
		TurnsTaken:      d.conv.Len(),
		Timestamp:       time.Now(),
	}
}

// forwardEvent publishes an AgentEvent onto the session's EventPublisher,
// wrapped as a message CoreFrame. Text deltas are published as their text;
// every other event is published as the AgentEvent value itself.
func (d *ReplyDriver) forwardEvent(ev entity.AgentEvent) {
	if d.bus == nil {
		return
	}
	switch ev.Type {
	case entity.EventTextDelta:
		d.bus.Publish(entity.NewMessageFrame(ev.Content))
	case entity.EventError:
		d.bus.Publish(entity.NewMessageFrame(ev))
	default:
		d.bus.Publish(entity.NewMessageFrame(ev))
	}
}

func (d *ReplyDriver) publishMessage(msg *conversation.Message) {
	if d.bus == nil || msg == nil {
		return
	}
	d.bus.Publish(entity.NewMessageFrame(msg))
}

// maybeAutoCheckpoint checkpoints at most once per AutoCheckpointInterval,
// per §4.L's "auto-checkpoint every 600s" per-iteration responsibility.
func (d *ReplyDriver) maybeAutoCheckpoint(ctx context.Context) {
	if d.checkpoints == nil {
		return
	}
	if time.Since(d.lastCheckpointAt) < d.config.AutoCheckpointInterval {
		return
	}
	d.checkpoint(ctx, "auto", true)
}

func (d *ReplyDriver) checkpoint(ctx context.Context, label string, auto bool) {
	if d.checkpoints == nil {
		return
	}
	state, err := encodeConversationState(d.conv)
	if err != nil {
		d.logger.Warn("checkpoint encode failed", zap.Error(err))
		return
	}
	cp := &entity.Checkpoint{
		CheckpointID: newCheckpointID(),
		ThreadID:     d.sessionID,
		State:        state,
		Metadata:     entity.CheckpointMetadata{Label: label, Auto: auto},
		CreatedAt:    time.Now(),
	}
	if err := d.checkpoints.Save(ctx, cp); err != nil {
		d.logger.Warn("checkpoint save failed", zap.Error(err))
		return
	}
	d.lastCheckpointAt = time.Now()
}

// recordExperience persists an Experience row for this turn's execution,
// used by InsightExtractor and CoreSelector on later turns (§4.C).
func (d *ReplyDriver) recordExperience(ctx context.Context, coreType entity.CoreType, task, category string, succeeded bool, turns int, cost float64, elapsed time.Duration) {
	if d.experience == nil {
		return
	}
	exp := entity.Experience{
		Task:        task,
		CoreType:    coreType,
		Succeeded:   succeeded,
		TurnsUsed:   uint32(turns),
		CostDollars: cost,
		TimeMs:      uint64(elapsed.Milliseconds()),
		Category:    category,
		CreatedAt:   time.Now(),
	}
	if err := d.experience.Store(ctx, exp); err != nil {
		d.logger.Warn("experience store failed", zap.Error(err))
	}
	if !succeeded {
		d.lastReflexion = fmt.Sprintf("The previous attempt at a %s task did not complete successfully. Consider a different approach.", category)
	}
}

// conversationToLLMHistory flattens a Conversation into the LLMMessage
// history AgentLoop.Run expects, skipping messages not marked AgentVisible
// (§3 Visibility).
func conversationToLLMHistory(conv *conversation.Conversation) []LLMMessage {
	history := make([]LLMMessage, 0, conv.Len())
	for _, msg := range conv.Messages {
		if !msg.Visibility.AgentVisible {
			continue
		}
		role := string(msg.Role)
		history = append(history, LLMMessage{Role: role, Content: msg.Text()})
	}
	return history
}

// isContextOverflow reports whether an AgentEvent error message indicates a
// context-length-exceeded condition rather than some other failure.
func isContextOverflow(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, pattern := range []string{"context_length_exceeded", "maximum context length", "context length exceeded", "too many tokens"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// encodeConversationState serializes a Conversation to the opaque byte blob
// a Checkpoint carries.
func encodeConversationState(conv *conversation.Conversation) ([]byte, error) {
	return json.Marshal(conv)
}

// decodeConversationState is the inverse of encodeConversationState, used
// when resuming a session from its latest checkpoint.
func decodeConversationState(state []byte) (*conversation.Conversation, error) {
	var conv conversation.Conversation
	if err := json.Unmarshal(state, &conv); err != nil {
		return nil, fmt.Errorf("reply driver: decode checkpoint state: %w", err)
	}
	return &conv, nil
}

func newCheckpointID() string {
	return uuid.New().String()
}
