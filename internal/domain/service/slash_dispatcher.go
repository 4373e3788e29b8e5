package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ngoclaw/goosecore/internal/domain/conversation"
	"github.com/ngoclaw/goosecore/internal/domain/core"
	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/domain/repository"
)

// SlashCommand is a parsed `/name arg1 arg2 …` message, whitespace split per
// §4.Q. Generalizes interfaces/cli's ParseSlashCommand to the full command
// grammar (compact-trigger normalization, recipe fallback).
type SlashCommand struct {
	Name string
	Args []string
}

// compactTriggers normalizes free-text compaction requests onto /compact,
// per §4.Q's compact-trigger set.
var compactTriggers = map[string]bool{
	"/compact":                         true,
	"please compact this conversation": true,
	"/summarize":                       true,
}

// ParseSlashCommand parses user input into a SlashCommand, or nil if the
// input is not a recognized slash invocation.
func ParseSlashCommand(input string) *SlashCommand {
	trimmed := strings.TrimSpace(input)
	if compactTriggers[strings.ToLower(trimmed)] {
		return &SlashCommand{Name: "compact"}
	}
	if !strings.HasPrefix(trimmed, "/") {
		return nil
	}
	fields := strings.Fields(trimmed)
	name := strings.TrimPrefix(fields[0], "/")
	var args []string
	if len(fields) > 1 {
		args = fields[1:]
	}
	return &SlashCommand{Name: name, Args: args}
}

// Recipe is a named prompt template a slash command can resolve to, used by
// the recipe-command fallback for names not in the known-command set.
type Recipe struct {
	Name           string
	RequiredParams []string
	PromptTemplate func(args []string) string
}

// OtaController is the seam `self-improve` dispatches through. Any
// implementation works here; with none (nil), the command reports the
// feature as unavailable.
type OtaController interface {
	Status(ctx context.Context) string
	TriggerSelfImprove(ctx context.Context, dryRun bool) (string, error)
}

// DaemonController is the seam `autonomous` dispatches through; with none
// (nil), the command reports the feature as unavailable.
type DaemonController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status(ctx context.Context) string
}

// MemoryController is the seam `memory` dispatches through; with none
// (nil), the command reports the feature as unavailable.
type MemoryController interface {
	Stats(ctx context.Context) string
	Clear(ctx context.Context) error
	Save(ctx context.Context, note string) error
}

// SlashCommandDispatcher implements §4.Q: it recognizes the fixed command
// grammar first, then falls back to a slash→recipe resolution table. Each
// handler returns an Option<Message>-equivalent (*conversation.Message, or
// nil meaning "not consumed, pass the raw text to the provider").
type SlashCommandDispatcher struct {
	registry   *core.Registry
	experience repository.ExperienceStore
	skills     repository.SkillLibrary
	insights   *InsightExtractor
	compaction *CompactionManager
	ota        OtaController
	daemon     DaemonController
	memory     MemoryController
	checkpoint func(ctx context.Context, label string) error
	recipes    map[string]Recipe
}

// NewSlashCommandDispatcher wires a dispatcher. Every dependency beyond
// registry may be nil; the corresponding command then reports that the
// feature is unavailable rather than panicking.
func NewSlashCommandDispatcher(
	registry *core.Registry,
	experience repository.ExperienceStore,
	skills repository.SkillLibrary,
	insights *InsightExtractor,
	compaction *CompactionManager,
	ota OtaController,
	daemon DaemonController,
	memory MemoryController,
	checkpoint func(ctx context.Context, label string) error,
) *SlashCommandDispatcher {
	return &SlashCommandDispatcher{
		registry:   registry,
		experience: experience,
		skills:     skills,
		insights:   insights,
		compaction: compaction,
		ota:        ota,
		daemon:     daemon,
		memory:     memory,
		checkpoint: checkpoint,
		recipes:    make(map[string]Recipe),
	}
}

// RegisterRecipe adds a name to the recipe fallback table consulted when a
// command name matches none of the fixed §4.Q commands.
func (d *SlashCommandDispatcher) RegisterRecipe(r Recipe) {
	d.recipes[r.Name] = r
}

// Dispatch parses userMessage and, if it resolves to a command, returns the
// short-circuit or prompt-replacement message. A nil return means the text
// was not a command and should be sent to the provider unchanged.
func (d *SlashCommandDispatcher) Dispatch(ctx context.Context, userMessage string) (*conversation.Message, error) {
	cmd := ParseSlashCommand(userMessage)
	if cmd == nil {
		return nil, nil
	}

	switch cmd.Name {
	case "prompts":
		return d.reply(d.listRecipes()), nil
	case "prompt":
		return d.handlePrompt(cmd.Args)
	case "compact":
		return d.handleCompact(cmd.Args), nil
	case "clear":
		return d.reply("Conversation cleared."), nil
	case "cores":
		return d.reply(d.listCores()), nil
	case "core":
		return d.handleCoreSwitch(cmd.Args), nil
	case "experience":
		return d.handleExperience(ctx, cmd.Args), nil
	case "skills":
		return d.handleSkills(ctx), nil
	case "insights":
		return d.handleInsights(ctx), nil
	case "self-improve":
		return d.handleSelfImprove(ctx, cmd.Args), nil
	case "autonomous":
		return d.handleAutonomous(ctx, cmd.Args), nil
	case "memory":
		return d.handleMemory(ctx, cmd.Args), nil
	case "pause", "resume", "breakpoint", "bp", "inspect", "plan":
		return d.reply(fmt.Sprintf("HITL command /%s acknowledged (no active breakpoint session).", cmd.Name)), nil
	case "bookmark", "bm", "checkpoint":
		return d.handleBookmark(ctx, cmd.Args), nil
	default:
		return d.handleRecipe(cmd)
	}
}

func (d *SlashCommandDispatcher) reply(text string) *conversation.Message {
	msg := conversation.NewTextMessage(conversation.RoleAssistant, text)
	msg.Visibility = conversation.UserOnlyVisibility()
	return msg
}

// replacePrompt builds a user-visible message that substitutes for the raw
// slash text and is still fed to the provider, per §4.Q's "Some(user-visible)
// means replace the user message with the resolved prompt" semantics.
func (d *SlashCommandDispatcher) replacePrompt(text string) *conversation.Message {
	return conversation.NewTextMessage(conversation.RoleUser, text)
}

func (d *SlashCommandDispatcher) listCores() string {
	if d.registry == nil {
		return "No core registry configured."
	}
	var sb strings.Builder
	sb.WriteString("Registered cores:\n")
	active := d.registry.ActiveCoreType()
	for _, listing := range d.registry.ListCores() {
		marker := " "
		if listing.Type == active {
			marker = "*"
		}
		status := "unregistered"
		if listing.Registered {
			status = "registered"
		}
		sb.WriteString(fmt.Sprintf("%s %s (%s)\n", marker, listing.Type, status))
	}
	return sb.String()
}

func (d *SlashCommandDispatcher) handleCoreSwitch(args []string) *conversation.Message {
	if d.registry == nil {
		return d.reply("No core registry configured.")
	}
	if len(args) == 0 {
		return d.reply(fmt.Sprintf("Usage: /core <name>. Current: %s", d.registry.ActiveCoreType()))
	}
	requested := entity.CoreType(strings.ToLower(args[0]))
	if !requested.Valid() {
		return d.reply(fmt.Sprintf("Unknown core %q. Valid cores: %v", args[0], entity.AllCoreTypes()))
	}
	if _, err := d.registry.SwitchCore(requested); err != nil {
		return d.reply(fmt.Sprintf("Could not switch to %s: %v", requested, err))
	}
	return d.reply(fmt.Sprintf("Switched active core to %s.", requested))
}

func (d *SlashCommandDispatcher) handleCompact(args []string) *conversation.Message {
	if d.compaction == nil {
		return d.reply("Compaction manager is not configured.")
	}
	if len(args) > 0 && args[0] == "status" {
		stats := d.compaction.Stats()
		return d.reply(fmt.Sprintf("Compactions: %d, tokens saved: %d", stats.TotalCompactions, stats.TotalTokensSaved))
	}
	return d.reply("Compaction will be applied on the next turn if the context ratio exceeds threshold.")
}

func (d *SlashCommandDispatcher) handleExperience(ctx context.Context, args []string) *conversation.Message {
	if d.experience == nil {
		return d.reply("Experience store is not configured.")
	}
	if len(args) > 0 && args[0] == "stats" {
		stats, err := d.experience.GetCoreStats(ctx)
		if err != nil {
			return d.reply(fmt.Sprintf("Failed to load experience stats: %v", err))
		}
		if len(stats) == 0 {
			return d.reply("No experience recorded yet.")
		}
		var sb strings.Builder
		for _, s := range stats {
			sb.WriteString(fmt.Sprintf("%s/%s: %d runs, %.0f%% success, avg %.1f turns\n",
				s.CoreType, s.Category, s.TotalExecutions, s.SuccessRate*100, s.AvgTurns))
		}
		return d.reply(sb.String())
	}
	count, err := d.experience.Count(ctx)
	if err != nil {
		return d.reply(fmt.Sprintf("Failed to count experiences: %v", err))
	}
	return d.reply(fmt.Sprintf("%d experiences recorded. Use /experience stats for a breakdown.", count))
}

func (d *SlashCommandDispatcher) handleSkills(ctx context.Context) *conversation.Message {
	if d.skills == nil {
		return d.reply("Skill library is not configured.")
	}
	verified, err := d.skills.VerifiedSkills(ctx)
	if err != nil {
		return d.reply(fmt.Sprintf("Failed to load skills: %v", err))
	}
	if len(verified) == 0 {
		return d.reply("No verified skills yet.")
	}
	var sb strings.Builder
	for _, sk := range verified {
		sb.WriteString(fmt.Sprintf("- %s: %s (used %d times, %.0f%% success)\n",
			sk.Name(), sk.Description(), sk.UseCount(), sk.SuccessRate()*100))
	}
	return d.reply(sb.String())
}

func (d *SlashCommandDispatcher) handleInsights(ctx context.Context) *conversation.Message {
	if d.insights == nil {
		return d.reply("Insight extractor is not configured.")
	}
	top, err := d.insights.Retrieve(ctx, 10)
	if err != nil {
		return d.reply(fmt.Sprintf("Failed to load insights: %v", err))
	}
	if len(top) == 0 {
		return d.reply("No insights learned yet.")
	}
	var sb strings.Builder
	for _, ins := range top {
		sb.WriteString(fmt.Sprintf("- [%s] %s (confidence %.0f%%)\n", ins.Category, ins.Text, ins.Confidence*100))
	}
	return d.reply(sb.String())
}

func (d *SlashCommandDispatcher) handleSelfImprove(ctx context.Context, args []string) *conversation.Message {
	if d.ota == nil {
		return d.reply("Self-improvement pipeline is not configured.")
	}
	if len(args) > 0 && args[0] == "status" {
		return d.reply(d.ota.Status(ctx))
	}
	dryRun := len(args) > 0 && args[0] == "--dry-run"
	summary, err := d.ota.TriggerSelfImprove(ctx, dryRun)
	if err != nil {
		return d.reply(fmt.Sprintf("Self-improvement run failed: %v", err))
	}
	return d.reply(summary)
}

func (d *SlashCommandDispatcher) handleAutonomous(ctx context.Context, args []string) *conversation.Message {
	if d.daemon == nil {
		return d.reply("Autonomous daemon is not configured.")
	}
	if len(args) == 0 {
		return d.reply("Usage: /autonomous [start|stop|status]")
	}
	switch args[0] {
	case "start":
		if err := d.daemon.Start(ctx); err != nil {
			return d.reply(fmt.Sprintf("Failed to start daemon: %v", err))
		}
		return d.reply("Autonomous daemon started.")
	case "stop":
		if err := d.daemon.Stop(ctx); err != nil {
			return d.reply(fmt.Sprintf("Failed to stop daemon: %v", err))
		}
		return d.reply("Autonomous daemon stopped.")
	case "status":
		return d.reply(d.daemon.Status(ctx))
	default:
		return d.reply("Usage: /autonomous [start|stop|status]")
	}
}

func (d *SlashCommandDispatcher) handleMemory(ctx context.Context, args []string) *conversation.Message {
	if d.memory == nil {
		return d.reply("Memory subsystem is not enabled for this session.")
	}
	if len(args) == 0 {
		return d.reply("Usage: /memory [stats|clear|save]")
	}
	switch args[0] {
	case "stats":
		return d.reply(d.memory.Stats(ctx))
	case "clear":
		if err := d.memory.Clear(ctx); err != nil {
			return d.reply(fmt.Sprintf("Failed to clear memory: %v", err))
		}
		return d.reply("Memory cleared.")
	case "save":
		note := strings.Join(args[1:], " ")
		if note == "" {
			return d.reply("Usage: /memory save <note>")
		}
		if err := d.memory.Save(ctx, note); err != nil {
			return d.reply(fmt.Sprintf("Failed to save memory: %v", err))
		}
		return d.reply("Saved to memory.")
	default:
		return d.reply("Usage: /memory [stats|clear|save]")
	}
}

func (d *SlashCommandDispatcher) handleBookmark(ctx context.Context, args []string) *conversation.Message {
	if d.checkpoint == nil {
		return d.reply("Checkpointing is not configured.")
	}
	label := "bookmark"
	if len(args) > 0 {
		label = strings.Join(args, " ")
	}
	if err := d.checkpoint(ctx, label); err != nil {
		return d.reply(fmt.Sprintf("Failed to bookmark: %v", err))
	}
	return d.reply(fmt.Sprintf("Bookmarked as %q.", label))
}

func (d *SlashCommandDispatcher) handlePrompt(args []string) (*conversation.Message, error) {
	if len(args) == 0 {
		return d.reply(d.listRecipes()), nil
	}
	r, ok := d.recipes[args[0]]
	if !ok {
		return d.reply(fmt.Sprintf("Unknown prompt %q.", args[0])), nil
	}
	return d.resolveRecipe(r, args[1:])
}

// handleRecipe resolves an unrecognized command name against the recipe
// table; names matching no fixed command and no recipe fall through to nil
// ("not a command"), per §4.Q.
func (d *SlashCommandDispatcher) handleRecipe(cmd *SlashCommand) (*conversation.Message, error) {
	r, ok := d.recipes[cmd.Name]
	if !ok {
		return nil, nil
	}
	return d.resolveRecipe(r, cmd.Args)
}

// resolveRecipe errors with usage guidance, per §4.Q, when a recipe needing
// more than one required parameter is invoked without all of them supplied.
func (d *SlashCommandDispatcher) resolveRecipe(r Recipe, args []string) (*conversation.Message, error) {
	if len(r.RequiredParams) > 1 && len(args) < len(r.RequiredParams) {
		return nil, fmt.Errorf("recipe %q requires parameters %v, usage: /%s %s",
			r.Name, r.RequiredParams, r.Name, strings.Join(r.RequiredParams, " "))
	}
	return d.replacePrompt(r.PromptTemplate(args)), nil
}

func (d *SlashCommandDispatcher) listRecipes() string {
	if len(d.recipes) == 0 {
		return "No recipes registered."
	}
	var sb strings.Builder
	sb.WriteString("Available recipes:\n")
	for name := range d.recipes {
		sb.WriteString("- /" + name + "\n")
	}
	return sb.String()
}
