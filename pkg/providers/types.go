package providers

import (
	"context"
	"encoding/json"
)

// StreamEventKind discriminates the events a provider stream yields for one
// turn. Tool-call argument fragments arrive incrementally and must be
// accumulated per call id by the consumer.
type StreamEventKind int

const (
	StreamEventTextDelta StreamEventKind = iota
	StreamEventToolCallStart
	StreamEventToolCallDelta
	StreamEventToolCallEnd
	StreamEventFinish
)

// StreamEvent is one element of the ordered event sequence for a turn.
type StreamEvent struct {
	Kind StreamEventKind

	// Text carries the delta for StreamEventTextDelta.
	Text string

	// CallID identifies the tool call for the three tool-call kinds.
	CallID string
	// Name is set on StreamEventToolCallStart.
	Name string
	// Fragment is a piece of argument text for StreamEventToolCallDelta.
	Fragment string

	// Reason is the provider's finish reason, recorded verbatim, for
	// StreamEventFinish.
	Reason string
}

// Finish reasons shared across providers. Providers may emit other strings;
// consumers must treat unrecognized reasons conservatively.
const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool-calls"
	FinishReasonLength    = "length"
	FinishReasonUnknown   = "unknown"
)

// Message is one element of the outbound conversation history.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	// ToolCalls replays assistant tool-call requests for history coherence.
	ToolCalls []ToolCallSpec
}

type ToolCallSpec struct {
	ID        string
	Name      string
	Arguments string
}

// Message roles understood by providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolSpec describes one tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Request is the input for one provider round-trip.
type Request struct {
	Model    string
	Messages []Message
	Tools    []ToolSpec
}

// Provider is the model-provider boundary: one call to Stream performs a
// single round-trip, invoking onEvent for each stream element in order.
// Implementations must tolerate partial and fragmented tool-call argument
// delivery and must emit a final StreamEventFinish.
type Provider interface {
	Stream(ctx context.Context, req Request, onEvent func(StreamEvent) error) error
}
