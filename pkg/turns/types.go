package turns

// BlockKind identifies the type of a Block within a Turn.
type BlockKind int

const (
	BlockKindUnknown BlockKind = iota
	BlockKindSystem
	BlockKindUser
	BlockKindLLMText
	BlockKindToolCall
	BlockKindToolUse
)

func (k BlockKind) String() string {
	switch k {
	case BlockKindSystem:
		return "system"
	case BlockKindUser:
		return "user"
	case BlockKindLLMText:
		return "llm_text"
	case BlockKindToolCall:
		return "tool_call"
	case BlockKindToolUse:
		return "tool_use"
	default:
		return "unknown"
	}
}

// BlockKindFromString parses the string form produced by BlockKind.String.
func BlockKindFromString(s string) BlockKind {
	switch s {
	case "system":
		return BlockKindSystem
	case "user":
		return BlockKindUser
	case "llm_text":
		return BlockKindLLMText
	case "tool_call":
		return BlockKindToolCall
	case "tool_use":
		return BlockKindToolUse
	default:
		return BlockKindUnknown
	}
}

// Block represents a single atomic unit within a Turn.
type Block struct {
	ID      string         `yaml:"id,omitempty"`
	Kind    BlockKind      `yaml:"kind"`
	Role    string         `yaml:"role,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`
	// Metadata stores arbitrary metadata about the block
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// Turn contains an ordered list of Blocks and associated metadata.
type Turn struct {
	ID     string  `yaml:"id,omitempty"`
	Blocks []Block `yaml:"blocks"`
	// Metadata stores arbitrary metadata about the turn
	Metadata map[string]any `yaml:"metadata,omitempty"`
	// Data stores the application data payload associated with this turn
	Data map[string]any `yaml:"data,omitempty"`
}

// Clone returns a deep copy of the Turn suitable for mutation without
// affecting the original. Payload and metadata maps are copied one level
// deep; reference-typed values inside remain shared.
func (t *Turn) Clone() *Turn {
	if t == nil {
		return nil
	}
	out := &Turn{
		ID:       t.ID,
		Metadata: cloneMap(t.Metadata),
		Data:     cloneMap(t.Data),
	}
	if len(t.Blocks) == 0 {
		return out
	}
	out.Blocks = make([]Block, len(t.Blocks))
	for i := range t.Blocks {
		b := t.Blocks[i]
		b.Payload = cloneMap(b.Payload)
		b.Metadata = cloneMap(b.Metadata)
		out.Blocks[i] = b
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// SetData sets a key in Turn.Data, allocating the map if needed.
func (t *Turn) SetData(key string, value any) {
	if t.Data == nil {
		t.Data = map[string]any{}
	}
	t.Data[key] = value
}

// GetDataString returns a string value from Turn.Data, or "" when absent or
// not a string.
func (t *Turn) GetDataString(key string) string {
	if t == nil || t.Data == nil {
		return ""
	}
	s, _ := t.Data[key].(string)
	return s
}
