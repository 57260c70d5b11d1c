package promptloop

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/mangiafuoco/pkg/hooks"
	"github.com/go-go-golems/mangiafuoco/pkg/inference/tools"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

// toolCallingFakeEngine emits one echo tool call on the first step and a
// closing assistant message once the call has a result. It always reports a
// terminal finish reason so the continuation decision rests on the resolved
// calls alone.
type toolCallingFakeEngine struct {
	calls atomic.Int64
}

func (e *toolCallingFakeEngine) RunInference(ctx context.Context, t *turns.Turn) (*turns.Turn, error) {
	e.calls.Add(1)

	out := &turns.Turn{}
	if t != nil {
		out = t.Clone()
	}

	if turns.FindToolUseByCallID(out, "call-1") == nil {
		turns.AppendBlock(out, turns.NewToolCallBlock("call-1", "echo", `{"text": "hello"}`))
		out.SetData(turns.DataKeyFinishReason, "stop")
		return out, nil
	}

	turns.AppendBlock(out, turns.NewAssistantTextBlock("done"))
	out.SetData(turns.DataKeyFinishReason, "stop")
	return out, nil
}

// chattyFakeEngine never emits tool calls and never commits to a terminal
// finish reason.
type chattyFakeEngine struct {
	calls atomic.Int64
}

func (e *chattyFakeEngine) RunInference(ctx context.Context, t *turns.Turn) (*turns.Turn, error) {
	e.calls.Add(1)
	out := t.Clone()
	turns.AppendBlock(out, turns.NewAssistantTextBlock("thinking..."))
	out.SetData(turns.DataKeyFinishReason, "unknown")
	return out, nil
}

func newEchoRegistry(t *testing.T) tools.ToolRegistry {
	t.Helper()

	reg := tools.NewInMemoryToolRegistry()
	type echoIn struct {
		Text string `json:"text"`
	}
	echoTool, err := tools.NewToolFromFunc("echo", "Echo back the provided text", func(in echoIn) (string, error) {
		return in.Text, nil
	})
	require.NoError(t, err)
	require.NoError(t, reg.RegisterTool("echo", *echoTool))

	invalidTool, err := tools.NewInvalidTool()
	require.NoError(t, err)
	require.NoError(t, reg.RegisterTool(invalidTool.Name, *invalidTool))

	return reg
}

func noRetryConfig() tools.ToolConfig {
	return tools.DefaultToolConfig().WithRetryConfig(tools.RetryConfig{MaxRetries: 0})
}

func newEchoResolver(t *testing.T) *tools.Resolver {
	t.Helper()
	return tools.NewResolver(
		tools.WithResolverRegistry(newEchoRegistry(t)),
		tools.WithResolverConfig(noRetryConfig()),
	)
}

func TestRunLoop_ResolvesToolCallsBeforeTerminating(t *testing.T) {
	t.Parallel()

	eng := &toolCallingFakeEngine{}
	loop := New(
		WithEngine(eng),
		WithResolver(newEchoResolver(t)),
	)

	start := turns.NewTurnBuilder().WithUserPrompt("say hello").Build()
	result, err := loop.RunLoop(context.Background(), start)
	require.NoError(t, err)

	// the terminal finish reason alone must not end the turn while a tool
	// call is unresolved
	require.EqualValues(t, 2, eng.calls.Load())

	use := turns.FindToolUseByCallID(result, "call-1")
	require.NotNil(t, use)
	require.Equal(t, "hello", use.Payload[turns.PayloadKeyResult])

	require.Empty(t, turns.PendingToolCallBlocks(result))
	require.Equal(t, "done", turns.LastAssistantText(result))

	for _, b := range result.Blocks {
		if b.Kind == turns.BlockKindToolCall {
			require.Equal(t, turns.ToolCallStatusCompleted, b.Payload[turns.PayloadKeyStatus])
		}
	}
}

func TestRunLoop_ChatMessageHookFiresExactlyOnce(t *testing.T) {
	t.Parallel()

	var fired atomic.Int64
	var lastText atomic.Value

	d := hooks.New()
	d.Register(hooks.EventChatMessage, hooks.NewHandler("counter", func(ctx context.Context, event hooks.Event, input any, output any) (any, error) {
		fired.Add(1)
		if m, ok := input.(map[string]any); ok {
			if text, ok := m["text"].(string); ok {
				lastText.Store(text)
			}
		}
		return nil, nil
	}))

	loop := New(
		WithEngine(&toolCallingFakeEngine{}),
		WithResolver(newEchoResolver(t)),
		WithDispatcher(d),
	)

	start := turns.NewTurnBuilder().WithUserPrompt("say hello").Build()
	_, err := loop.RunLoop(context.Background(), start)
	require.NoError(t, err)

	require.EqualValues(t, 1, fired.Load())
	require.Equal(t, "done", lastText.Load())
}

func TestRunLoop_StepCeiling(t *testing.T) {
	t.Parallel()

	eng := &chattyFakeEngine{}
	loop := New(
		WithEngine(eng),
		WithResolver(newEchoResolver(t)),
		WithLoopConfig(LoopConfig{MaxSteps: 3}),
	)

	start := turns.NewTurnBuilder().WithUserPrompt("loop forever").Build()
	result, err := loop.RunLoop(context.Background(), start)
	require.Error(t, err)
	require.Contains(t, err.Error(), "max steps (3) reached")
	require.NotNil(t, result)
	require.EqualValues(t, 3, eng.calls.Load())
}

func TestRunLoop_CancellationLeavesNoDanglingCalls(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := New(
		WithEngine(&toolCallingFakeEngine{}),
		WithResolver(newEchoResolver(t)),
	)

	start := turns.NewTurnBuilder().WithUserPrompt("say hello").Build()
	result, err := loop.RunLoop(ctx, start)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	require.Empty(t, turns.PendingToolCallBlocks(result))
	use := turns.FindToolUseByCallID(result, "call-1")
	require.NotNil(t, use)
	require.Equal(t, "cancelled", use.Payload[turns.PayloadKeyResult])
	require.Equal(t, true, use.Payload[turns.PayloadKeyError])

	for _, b := range result.Blocks {
		if b.Kind == turns.BlockKindToolCall {
			require.Equal(t, turns.ToolCallStatusCancelled, b.Payload[turns.PayloadKeyStatus])
		}
	}
}

func TestRunLoop_InvalidCallStillGetsResult(t *testing.T) {
	t.Parallel()

	eng := &invalidCallingFakeEngine{}
	loop := New(
		WithEngine(eng),
		WithResolver(newEchoResolver(t)),
	)

	start := turns.NewTurnBuilder().WithUserPrompt("go").Build()
	result, err := loop.RunLoop(context.Background(), start)
	require.NoError(t, err)

	use := turns.FindToolUseByCallID(result, "call-bad")
	require.NotNil(t, use)
	require.Equal(t, true, use.Payload[turns.PayloadKeyError])
	out, _ := use.Payload[turns.PayloadKeyResult].(string)
	require.Contains(t, out, "unknown tool")
}

// invalidCallingFakeEngine emits a call to a tool that does not exist, then
// finishes.
type invalidCallingFakeEngine struct{}

func (e *invalidCallingFakeEngine) RunInference(ctx context.Context, t *turns.Turn) (*turns.Turn, error) {
	out := t.Clone()
	if turns.FindToolUseByCallID(out, "call-bad") == nil {
		turns.AppendBlock(out, turns.NewToolCallBlock("call-bad", "no_such_tool", `{}`))
		out.SetData(turns.DataKeyFinishReason, "tool-calls")
		return out, nil
	}
	turns.AppendBlock(out, turns.NewAssistantTextBlock("sorry"))
	out.SetData(turns.DataKeyFinishReason, "stop")
	return out, nil
}

func TestRunLoop_SnapshotPhases(t *testing.T) {
	t.Parallel()

	var phases []string
	hook := func(ctx context.Context, tn *turns.Turn, phase string) {
		phases = append(phases, phase)
	}

	loop := New(
		WithEngine(&toolCallingFakeEngine{}),
		WithResolver(newEchoResolver(t)),
		WithSnapshotHook(hook),
	)

	start := turns.NewTurnBuilder().WithUserPrompt("say hello").Build()
	_, err := loop.RunLoop(context.Background(), start)
	require.NoError(t, err)

	require.Equal(t, []string{
		"pre_inference", "post_inference", "post_tools",
		"pre_inference", "post_inference",
	}, phases)
}
