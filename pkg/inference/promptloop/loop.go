package promptloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/hooks"
	"github.com/go-go-golems/mangiafuoco/pkg/inference/engine"
	"github.com/go-go-golems/mangiafuoco/pkg/inference/tools"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

// Loop drives one user turn to completion: it alternates inference steps
// with tool resolution until the provider signals a terminal finish reason
// and no calls remain unresolved, or the step ceiling is hit.
type Loop struct {
	eng        engine.Engine
	resolver   *tools.Resolver
	dispatcher *hooks.Dispatcher
	loopCfg    LoopConfig

	snapshotHook SnapshotHook
}

type Option func(*Loop)

func New(opts ...Option) *Loop {
	l := &Loop{
		loopCfg: DefaultLoopConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func WithEngine(eng engine.Engine) Option {
	return func(l *Loop) { l.eng = eng }
}

func WithResolver(r *tools.Resolver) Option {
	return func(l *Loop) { l.resolver = r }
}

func WithDispatcher(d *hooks.Dispatcher) Option {
	return func(l *Loop) { l.dispatcher = d }
}

func WithLoopConfig(cfg LoopConfig) Option {
	return func(l *Loop) { l.loopCfg = cfg }
}

func WithSnapshotHook(h SnapshotHook) Option {
	return func(l *Loop) { l.snapshotHook = h }
}

func (l *Loop) snapshot(ctx context.Context, t *turns.Turn, phase string) {
	if l.snapshotHook != nil {
		l.snapshotHook(ctx, t, phase)
		return
	}
	if h, ok := TurnSnapshotHookFromContext(ctx); ok {
		h(ctx, t, phase)
	}
}

// RunLoop runs inference and tool resolution rounds until the turn
// terminates. Every tool_call block emitted by the model ends up with a
// correlated tool_use block before this returns, including on cancellation,
// and the chat.message hook fires exactly once per completed turn.
func (l *Loop) RunLoop(ctx context.Context, initialTurn *turns.Turn) (*turns.Turn, error) {
	if l == nil {
		return nil, errors.New("prompt loop is nil")
	}
	if l.eng == nil {
		return nil, errors.New("prompt loop engine is nil")
	}
	if l.resolver == nil {
		return nil, errors.New("prompt loop resolver is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	t := initialTurn
	if t == nil {
		t = &turns.Turn{}
	}

	if reg := l.resolver.Registry(); reg != nil {
		ctx = tools.WithRegistry(ctx, reg)
	}

	maxSteps := l.loopCfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultLoopConfig().MaxSteps
	}

	for step := 0; step < maxSteps; step++ {
		log.Debug().Int("step", step+1).Msg("promptloop: inference step")

		l.snapshot(ctx, t, "pre_inference")
		updated, err := l.eng.RunInference(ctx, t)
		if err != nil {
			return nil, err
		}
		l.snapshot(ctx, updated, "post_inference")
		updated.SetData(turns.DataKeyStepCount, step+1)

		resolvedCount := l.resolveStep(ctx, updated)
		if resolvedCount > 0 {
			l.snapshot(ctx, updated, "post_tools")
		}

		if ctx.Err() != nil {
			l.fireChatMessage(ctx, updated)
			return updated, ctx.Err()
		}

		// The loop continues when either signal says more work is coming:
		// the finish reason announces tool calls (or declines to commit
		// to a terminal state), or this step actually resolved calls the
		// model now needs to see.
		finish := updated.GetDataString(turns.DataKeyFinishReason)
		if resolvedCount == 0 && !continueFinishReasons[finish] {
			l.fireChatMessage(ctx, updated)
			return updated, nil
		}

		t = updated
	}

	log.Warn().Int("max_steps", maxSteps).Msg("promptloop: step ceiling reached")
	l.fireChatMessage(ctx, t)
	return t, fmt.Errorf("max steps (%d) reached", maxSteps)
}

// resolveStep resolves every pending tool_call block in emission order,
// appending exactly one tool_use block per call, and returns the number of
// calls it resolved.
func (l *Loop) resolveStep(ctx context.Context, t *turns.Turn) int {
	pending := turns.PendingToolCallBlocks(t)
	if len(pending) == 0 {
		return 0
	}

	// delegated tools read the conversation tail from here
	ctx = WithParentTurn(ctx, t)

	resolved := 0
	for _, b := range pending {
		call := toolCallFromBlock(b)

		if ctx.Err() != nil {
			res := tools.CancelledResult(call)
			appendResult(t, call, res)
			turns.SetToolCallStatus(t, call.ID, turns.ToolCallStatusCancelled)
			resolved++
			continue
		}

		turns.SetToolCallStatus(t, call.ID, turns.ToolCallStatusRunning)
		res := l.resolver.Resolve(ctx, call)
		appendResult(t, call, res)

		status := turns.ToolCallStatusCompleted
		switch {
		case res.Output == "cancelled" && res.IsError:
			status = turns.ToolCallStatusCancelled
		case res.IsError:
			status = turns.ToolCallStatusError
		}
		turns.SetToolCallStatus(t, call.ID, status)
		resolved++
	}
	return resolved
}

func toolCallFromBlock(b turns.Block) tools.ToolCall {
	id, _ := b.Payload[turns.PayloadKeyID].(string)
	name, _ := b.Payload[turns.PayloadKeyName].(string)

	var raw json.RawMessage
	switch v := b.Payload[turns.PayloadKeyArgs].(type) {
	case string:
		raw = json.RawMessage(v)
	case json.RawMessage:
		raw = v
	case nil:
		raw = nil
	default:
		encoded, err := json.Marshal(v)
		if err == nil {
			raw = encoded
		}
	}
	return tools.ToolCall{ID: id, Name: name, Arguments: raw}
}

func appendResult(t *turns.Turn, call tools.ToolCall, res tools.ToolResult) {
	b := turns.NewToolUseBlock(call.ID, res.Output, res.IsError)
	if res.Title != "" {
		b.Payload[turns.PayloadKeyTitle] = res.Title
	}
	if len(res.Metadata) > 0 {
		b.Payload[turns.PayloadKeyMetadata] = res.Metadata
	}
	turns.AppendBlock(t, b)
}

// fireChatMessage notifies chat.message listeners once the assistant
// message for this turn is final and every call status has settled.
func (l *Loop) fireChatMessage(ctx context.Context, t *turns.Turn) {
	if l.dispatcher == nil {
		return
	}
	input := map[string]any{
		"turn_id": t.ID,
		"text":    turns.LastAssistantText(t),
	}
	if sessionID, ok := t.Metadata[turns.MetaKeySessionID].(string); ok && sessionID != "" {
		input["session_id"] = sessionID
	}
	if _, err := l.dispatcher.Trigger(context.WithoutCancel(ctx), hooks.EventChatMessage, input, nil); err != nil {
		log.Warn().Err(err).Msg("chat.message hook failed")
	}
}
