package promptloop

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/hooks"
	"github.com/go-go-golems/mangiafuoco/pkg/inference/engine"
	"github.com/go-go-golems/mangiafuoco/pkg/inference/tools"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

// subtaskContextBlocks is how many trailing text blocks of the parent turn
// are folded into the subtask prompt.
const subtaskContextBlocks = 8

const subtaskSystemPrompt = `You are a focused sub-agent. Complete the task you are given and reply with a concise summary of what you did and found. Do not ask follow-up questions.`

// TaskInput is the argument shape of the task tool.
type TaskInput struct {
	Description string `json:"description" jsonschema:"title=description,description=What the subtask should accomplish"`
}

// SubtaskExecutor runs a delegated task in its own turn. It shares the
// resolver with the parent loop, so subtask tool calls go through the same
// normalization, preflight and invalid routing as direct ones.
type SubtaskExecutor struct {
	eng        engine.Engine
	resolver   *tools.Resolver
	dispatcher *hooks.Dispatcher
	loopCfg    LoopConfig
}

type SubtaskOption func(*SubtaskExecutor)

func WithSubtaskEngine(eng engine.Engine) SubtaskOption {
	return func(e *SubtaskExecutor) { e.eng = eng }
}

func WithSubtaskResolver(r *tools.Resolver) SubtaskOption {
	return func(e *SubtaskExecutor) { e.resolver = r }
}

func WithSubtaskDispatcher(d *hooks.Dispatcher) SubtaskOption {
	return func(e *SubtaskExecutor) { e.dispatcher = d }
}

func WithSubtaskLoopConfig(cfg LoopConfig) SubtaskOption {
	return func(e *SubtaskExecutor) { e.loopCfg = cfg }
}

func NewSubtaskExecutor(opts ...SubtaskOption) *SubtaskExecutor {
	e := &SubtaskExecutor{
		loopCfg: DefaultLoopConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Run drives the subtask to completion and returns the sub-agent's final
// assistant text.
func (e *SubtaskExecutor) Run(ctx context.Context, parent *turns.Turn, description string) (string, error) {
	if e == nil || e.eng == nil || e.resolver == nil {
		return "", errors.New("subtask executor is not configured")
	}
	if strings.TrimSpace(description) == "" {
		return "", errors.New("subtask description is empty")
	}

	builder := turns.NewTurnBuilder().
		WithSystemPrompt(subtaskSystemPrompt).
		WithUserPrompt(composeSubtaskPrompt(parent, description))
	if parent != nil {
		if sessionID, ok := parent.Metadata[turns.MetaKeySessionID].(string); ok && sessionID != "" {
			builder = builder.WithMetadata(turns.MetaKeySessionID, sessionID)
		}
	}
	sub := builder.Build()

	loop := New(
		WithEngine(e.eng),
		WithResolver(e.resolver),
		WithDispatcher(e.dispatcher),
		WithLoopConfig(e.loopCfg),
	)

	done, err := loop.RunLoop(ctx, sub)
	if err != nil {
		return "", errors.Wrap(err, "subtask loop")
	}
	text := turns.LastAssistantText(done)
	log.Debug().Int("blocks", len(done.Blocks)).Msg("subtask completed")
	return text, nil
}

// AsTool exposes the executor as the task tool. The parent turn reaches
// the closure through the loop's context so the subtask prompt can carry
// recent conversation context.
func (e *SubtaskExecutor) AsTool() (*tools.ToolDefinition, error) {
	return tools.NewToolFromFunc(
		"task",
		"Delegate a self-contained task to a sub-agent and get back its result. Use this for work that needs multiple steps of its own.",
		func(ctx context.Context, in TaskInput) (string, error) {
			parent, _ := ParentTurnFromContext(ctx)
			return e.Run(ctx, parent, in.Description)
		},
	)
}

// composeSubtaskPrompt merges the task description with the tail of the
// parent conversation so the sub-agent sees what led up to the delegation.
func composeSubtaskPrompt(parent *turns.Turn, description string) string {
	var sb strings.Builder
	sb.WriteString(description)

	if parent == nil {
		return sb.String()
	}
	var texts []string
	for _, b := range parent.Blocks {
		if b.Kind != turns.BlockKindUser && b.Kind != turns.BlockKindLLMText {
			continue
		}
		if s, _ := b.Payload[turns.PayloadKeyText].(string); s != "" {
			texts = append(texts, s)
		}
	}
	if len(texts) > subtaskContextBlocks {
		texts = texts[len(texts)-subtaskContextBlocks:]
	}
	if len(texts) > 0 {
		sb.WriteString("\n\nRecent conversation context:\n")
		for _, s := range texts {
			sb.WriteString("- ")
			sb.WriteString(s)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

type parentTurnKey struct{}

// WithParentTurn attaches the turn currently being resolved so delegated
// tools can read conversation context.
func WithParentTurn(ctx context.Context, t *turns.Turn) context.Context {
	if t == nil {
		return ctx
	}
	return context.WithValue(ctx, parentTurnKey{}, t)
}

// ParentTurnFromContext returns the parent turn attached to the context, if any.
func ParentTurnFromContext(ctx context.Context) (*turns.Turn, bool) {
	t, ok := ctx.Value(parentTurnKey{}).(*turns.Turn)
	return t, ok && t != nil
}
