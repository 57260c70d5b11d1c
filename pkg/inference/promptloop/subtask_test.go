package promptloop

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

// answeringFakeEngine replies with fixed text and finishes.
type answeringFakeEngine struct {
	reply    string
	lastSeen *turns.Turn
}

func (e *answeringFakeEngine) RunInference(ctx context.Context, t *turns.Turn) (*turns.Turn, error) {
	e.lastSeen = t
	out := t.Clone()
	turns.AppendBlock(out, turns.NewAssistantTextBlock(e.reply))
	out.SetData(turns.DataKeyFinishReason, "stop")
	return out, nil
}

func TestSubtaskExecutor_RunReturnsFinalText(t *testing.T) {
	t.Parallel()

	eng := &answeringFakeEngine{reply: "subtask finished"}
	exec := NewSubtaskExecutor(
		WithSubtaskEngine(eng),
		WithSubtaskResolver(newEchoResolver(t)),
	)

	parent := turns.NewTurnBuilder().
		WithMetadata(turns.MetaKeySessionID, "s-1").
		WithUserPrompt("parent question").
		Build()

	text, err := exec.Run(context.Background(), parent, "count the files")
	require.NoError(t, err)
	require.Equal(t, "subtask finished", text)

	// the subtask turn carries the parent session and context tail
	require.Equal(t, "s-1", eng.lastSeen.Metadata[turns.MetaKeySessionID])
	var prompt string
	for _, b := range eng.lastSeen.Blocks {
		if b.Kind == turns.BlockKindUser {
			prompt, _ = b.Payload[turns.PayloadKeyText].(string)
		}
	}
	require.Contains(t, prompt, "count the files")
	require.Contains(t, prompt, "parent question")
}

func TestSubtaskExecutor_EmptyDescriptionRejected(t *testing.T) {
	t.Parallel()

	exec := NewSubtaskExecutor(
		WithSubtaskEngine(&answeringFakeEngine{reply: "x"}),
		WithSubtaskResolver(newEchoResolver(t)),
	)
	_, err := exec.Run(context.Background(), nil, "   ")
	require.Error(t, err)
}

func TestComposeSubtaskPrompt_KeepsOnlyTheConversationTail(t *testing.T) {
	t.Parallel()

	parent := &turns.Turn{}
	for i := 0; i < 12; i++ {
		turns.AppendBlock(parent, turns.NewUserTextBlock(fmt.Sprintf("message %d", i)))
	}

	prompt := composeSubtaskPrompt(parent, "do the thing")
	require.Contains(t, prompt, "do the thing")
	require.NotContains(t, prompt, "message 3")
	require.Contains(t, prompt, "message 4")
	require.Contains(t, prompt, "message 11")
	require.Equal(t, subtaskContextBlocks, strings.Count(prompt, "- message"))
}

func TestParentTurnContext(t *testing.T) {
	t.Parallel()

	_, ok := ParentTurnFromContext(context.Background())
	require.False(t, ok)

	tn := &turns.Turn{ID: "t-1"}
	ctx := WithParentTurn(context.Background(), tn)
	got, ok := ParentTurnFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "t-1", got.ID)
}
