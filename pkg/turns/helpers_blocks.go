package turns

import "github.com/google/uuid"

// Convenience constructors for commonly used Block shapes.

// Role string constants used for human roles in blocks.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// NewSystemTextBlock returns a Block representing a system directive.
func NewSystemTextBlock(text string) Block {
	return Block{
		ID:      uuid.NewString(),
		Kind:    BlockKindSystem,
		Role:    RoleSystem,
		Payload: map[string]any{PayloadKeyText: text},
	}
}

// NewUserTextBlock returns a Block representing a user text message.
func NewUserTextBlock(text string) Block {
	return Block{
		ID:      uuid.NewString(),
		Kind:    BlockKindUser,
		Role:    RoleUser,
		Payload: map[string]any{PayloadKeyText: text},
	}
}

// NewAssistantTextBlock returns a Block representing assistant LLM text output.
func NewAssistantTextBlock(text string) Block {
	return Block{
		ID:      uuid.NewString(),
		Kind:    BlockKindLLMText,
		Role:    RoleAssistant,
		Payload: map[string]any{PayloadKeyText: text},
	}
}

// NewToolCallBlock returns a Block requesting invocation of a tool.
// id is the provider-assigned identifier used to correlate tool_use results.
// args holds the raw argument payload as received from the provider stream;
// it may not be valid JSON and is only normalized at resolution time.
func NewToolCallBlock(id string, name string, args any) Block {
	return Block{
		ID:   id,
		Kind: BlockKindToolCall,
		Role: RoleAssistant,
		Payload: map[string]any{
			PayloadKeyID:     id,
			PayloadKeyName:   name,
			PayloadKeyArgs:   args,
			PayloadKeyStatus: ToolCallStatusPending,
		},
	}
}

// NewToolUseBlock returns a Block capturing the result of a tool execution.
// id must match the corresponding tool_call id.
func NewToolUseBlock(id string, result any, isError bool) Block {
	payload := map[string]any{
		PayloadKeyID:     id,
		PayloadKeyResult: result,
	}
	if isError {
		payload[PayloadKeyError] = true
	}
	return Block{
		ID:      uuid.NewString(),
		Kind:    BlockKindToolUse,
		Payload: payload,
	}
}

// AppendBlock appends a single block to the turn.
func AppendBlock(t *Turn, b Block) {
	if t == nil {
		return
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	t.Blocks = append(t.Blocks, b)
}

// AppendBlocks appends blocks in order.
func AppendBlocks(t *Turn, blocks ...Block) {
	for _, b := range blocks {
		AppendBlock(t, b)
	}
}

// FindToolUseByCallID returns the tool_use block correlated with the given
// tool_call id, or nil.
func FindToolUseByCallID(t *Turn, callID string) *Block {
	if t == nil {
		return nil
	}
	for i := range t.Blocks {
		b := &t.Blocks[i]
		if b.Kind != BlockKindToolUse {
			continue
		}
		if id, _ := b.Payload[PayloadKeyID].(string); id == callID {
			return b
		}
	}
	return nil
}

// PendingToolCallBlocks returns, in emission order, the tool_call blocks
// that have no correlated tool_use block yet.
func PendingToolCallBlocks(t *Turn) []Block {
	if t == nil {
		return nil
	}
	resolved := map[string]bool{}
	for _, b := range t.Blocks {
		if b.Kind == BlockKindToolUse {
			if id, _ := b.Payload[PayloadKeyID].(string); id != "" {
				resolved[id] = true
			}
		}
	}
	var pending []Block
	for _, b := range t.Blocks {
		if b.Kind != BlockKindToolCall {
			continue
		}
		id, _ := b.Payload[PayloadKeyID].(string)
		if id != "" && !resolved[id] {
			pending = append(pending, b)
		}
	}
	return pending
}

// SetToolCallStatus promotes the status payload of the tool_call block with
// the given call id. Unknown ids are ignored.
func SetToolCallStatus(t *Turn, callID string, status string) {
	if t == nil {
		return
	}
	for i := range t.Blocks {
		b := &t.Blocks[i]
		if b.Kind != BlockKindToolCall {
			continue
		}
		if id, _ := b.Payload[PayloadKeyID].(string); id == callID {
			if b.Payload == nil {
				b.Payload = map[string]any{}
			}
			b.Payload[PayloadKeyStatus] = status
			return
		}
	}
}

// LastAssistantText returns the concatenation of the llm_text blocks that
// follow the last user block, which is the assistant message finalized by
// the current step.
func LastAssistantText(t *Turn) string {
	if t == nil {
		return ""
	}
	start := 0
	for i, b := range t.Blocks {
		if b.Kind == BlockKindUser {
			start = i + 1
		}
	}
	out := ""
	for _, b := range t.Blocks[start:] {
		if b.Kind != BlockKindLLMText {
			continue
		}
		if s, _ := b.Payload[PayloadKeyText].(string); s != "" {
			if out != "" {
				out += "\n"
			}
			out += s
		}
	}
	return out
}
