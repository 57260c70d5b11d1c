package turns

// Standard keys used in Block.Payload maps
const (
	PayloadKeyText     = "text"
	PayloadKeyID       = "id"
	PayloadKeyName     = "name"
	PayloadKeyArgs     = "args"
	PayloadKeyResult   = "result"
	PayloadKeyError    = "error"
	PayloadKeyTitle    = "title"
	PayloadKeyMetadata = "metadata"
	// PayloadKeyStatus tracks the lifecycle of a tool_call block
	PayloadKeyStatus = "status"
)

// Tool-call status values stored under PayloadKeyStatus
const (
	ToolCallStatusPending   = "pending"
	ToolCallStatusRunning   = "running"
	ToolCallStatusCompleted = "completed"
	ToolCallStatusError     = "error"
	ToolCallStatusCancelled = "cancelled"
)

// Standard keys used in Turn.Data
const (
	DataKeyFinishReason = "finish_reason"
	DataKeyStepCount    = "step_count"
	DataKeyToolConfig   = "tool_config"
)

// Turn metadata keys
const (
	MetaKeySessionID = "session_id"
	MetaKeyTraceID   = "trace_id"
)
