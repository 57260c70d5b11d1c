package turns

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPendingToolCallBlocks_OnlyUncorrelatedCallsInEmissionOrder(t *testing.T) {
	t.Parallel()

	tn := &Turn{}
	AppendBlock(tn, NewUserTextBlock("go"))
	AppendBlock(tn, NewToolCallBlock("c1", "read_file", `{}`))
	AppendBlock(tn, NewToolCallBlock("c2", "list_files", `{}`))
	AppendBlock(tn, NewToolCallBlock("c3", "run_command", `{}`))
	AppendBlock(tn, NewToolUseBlock("c2", "results", false))

	pending := PendingToolCallBlocks(tn)
	require.Len(t, pending, 2)
	require.Equal(t, "c1", pending[0].Payload[PayloadKeyID])
	require.Equal(t, "c3", pending[1].Payload[PayloadKeyID])

	AppendBlock(tn, NewToolUseBlock("c1", "", false))
	AppendBlock(tn, NewToolUseBlock("c3", "", true))
	require.Empty(t, PendingToolCallBlocks(tn))
}

func TestSetToolCallStatus(t *testing.T) {
	t.Parallel()

	tn := &Turn{}
	AppendBlock(tn, NewToolCallBlock("c1", "read_file", `{}`))
	require.Equal(t, ToolCallStatusPending, tn.Blocks[0].Payload[PayloadKeyStatus])

	SetToolCallStatus(tn, "c1", ToolCallStatusRunning)
	require.Equal(t, ToolCallStatusRunning, tn.Blocks[0].Payload[PayloadKeyStatus])

	// unknown ids are a no-op
	SetToolCallStatus(tn, "ghost", ToolCallStatusError)
	require.Equal(t, ToolCallStatusRunning, tn.Blocks[0].Payload[PayloadKeyStatus])
}

func TestLastAssistantText_OnlyAfterLastUserBlock(t *testing.T) {
	t.Parallel()

	tn := &Turn{}
	AppendBlock(tn, NewUserTextBlock("first question"))
	AppendBlock(tn, NewAssistantTextBlock("first answer"))
	AppendBlock(tn, NewUserTextBlock("second question"))
	AppendBlock(tn, NewAssistantTextBlock("part one"))
	AppendBlock(tn, NewToolCallBlock("c1", "read_file", `{}`))
	AppendBlock(tn, NewToolUseBlock("c1", "data", false))
	AppendBlock(tn, NewAssistantTextBlock("part two"))

	require.Equal(t, "part one\npart two", LastAssistantText(tn))
}

func TestTurnClone_IsDeep(t *testing.T) {
	t.Parallel()

	tn := NewTurnBuilder().
		WithSystemPrompt("sys").
		WithUserPrompt("hi").
		WithMetadata(MetaKeySessionID, "s-1").
		Build()
	tn.SetData(DataKeyFinishReason, "stop")

	cl := tn.Clone()
	cl.Blocks[0].Payload[PayloadKeyText] = "changed"
	cl.Metadata[MetaKeySessionID] = "s-2"
	cl.SetData(DataKeyFinishReason, "length")

	require.Equal(t, "sys", tn.Blocks[0].Payload[PayloadKeyText])
	require.Equal(t, "s-1", tn.Metadata[MetaKeySessionID])
	require.Equal(t, "stop", tn.GetDataString(DataKeyFinishReason))
}

func TestYAMLRoundTrip(t *testing.T) {
	t.Parallel()

	tn := NewTurnBuilder().WithUserPrompt("hello").Build()
	AppendBlock(tn, NewToolCallBlock("c1", "read_file", `{"file_path": "a.go"}`))
	tn.SetData(DataKeyFinishReason, "tool-calls")

	data, err := MarshalTurnYAML(tn)
	require.NoError(t, err)

	back, err := UnmarshalTurnYAML(data)
	require.NoError(t, err)
	require.Equal(t, tn.ID, back.ID)
	require.Len(t, back.Blocks, 2)
	require.Equal(t, BlockKindToolCall, back.Blocks[1].Kind)
	require.Equal(t, "read_file", back.Blocks[1].Payload[PayloadKeyName])
	require.Equal(t, "tool-calls", back.GetDataString(DataKeyFinishReason))
}
