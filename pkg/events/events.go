package events

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeStart             EventType = "start"
	EventTypePartialCompletion EventType = "partial"
	EventTypeFinal             EventType = "final"

	// Model requested a tool call (received from provider stream)
	EventTypeToolCall EventType = "tool-call"

	// Execution-phase events (we are actually executing tools locally)
	EventTypeToolCallExecute         EventType = "tool-call-execute"
	EventTypeToolCallExecutionResult EventType = "tool-call-execution-result"

	EventTypeError     EventType = "error"
	EventTypeInterrupt EventType = "interrupt"

	// Hook dispatch telemetry (event name, handler id, duration, status)
	EventTypeHookRecord EventType = "hook-record"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Error_    string        `json:"error,omitempty"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// raw JSON this event was deserialized from, if any
	payload []byte
}

func (e *EventImpl) Type() EventType          { return e.Type_ }
func (e *EventImpl) Metadata() EventMetadata  { return e.Metadata_ }
func (e *EventImpl) Payload() []byte          { return e.payload }
func (e *EventImpl) SetPayload(b []byte)      { e.payload = b }

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	if e.Error_ != "" {
		ev.Str("error", e.Error_)
	}
	ev.Object("meta", e.Metadata_)
}

var _ Event = &EventImpl{}

type EventStart struct {
	EventImpl
}

func NewStartEvent(metadata EventMetadata) *EventStart {
	return &EventStart{EventImpl: EventImpl{Type_: EventTypeStart, Metadata_: metadata}}
}

type EventPartialCompletion struct {
	EventImpl
	Delta string `json:"delta"`
	// Completion is the concatenation of all deltas so far
	Completion string `json:"completion"`
}

func NewPartialCompletionEvent(metadata EventMetadata, delta string, completion string) *EventPartialCompletion {
	return &EventPartialCompletion{
		EventImpl:  EventImpl{Type_: EventTypePartialCompletion, Metadata_: metadata},
		Delta:      delta,
		Completion: completion,
	}
}

type EventFinal struct {
	EventImpl
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}

func NewFinalEvent(metadata EventMetadata, text string, finishReason string) *EventFinal {
	return &EventFinal{
		EventImpl:    EventImpl{Type_: EventTypeFinal, Metadata_: metadata},
		Text:         text,
		FinishReason: finishReason,
	}
}

// ToolCallInfo mirrors the tool call as the provider stream delivered it.
// Input is the raw accumulated argument text, not guaranteed to parse.
type ToolCallInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

type EventToolCall struct {
	EventImpl
	ToolCall ToolCallInfo `json:"tool_call"`
}

func NewToolCallEvent(metadata EventMetadata, call ToolCallInfo) *EventToolCall {
	return &EventToolCall{
		EventImpl: EventImpl{Type_: EventTypeToolCall, Metadata_: metadata},
		ToolCall:  call,
	}
}

type EventToolCallExecute struct {
	EventImpl
	ToolCall ToolCallInfo `json:"tool_call"`
}

func NewToolCallExecuteEvent(metadata EventMetadata, call ToolCallInfo) *EventToolCallExecute {
	return &EventToolCallExecute{
		EventImpl: EventImpl{Type_: EventTypeToolCallExecute, Metadata_: metadata},
		ToolCall:  call,
	}
}

type EventToolCallExecutionResult struct {
	EventImpl
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Result     string `json:"result"`
	IsError    bool   `json:"is_error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

func NewToolCallExecutionResultEvent(metadata EventMetadata, callID, name, result string, isError bool, durationMs int64) *EventToolCallExecutionResult {
	return &EventToolCallExecutionResult{
		EventImpl:  EventImpl{Type_: EventTypeToolCallExecutionResult, Metadata_: metadata},
		ToolCallID: callID,
		ToolName:   name,
		Result:     result,
		IsError:    isError,
		DurationMs: durationMs,
	}
}

type EventError struct {
	EventImpl
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	e := &EventError{EventImpl: EventImpl{Type_: EventTypeError, Metadata_: metadata}}
	if err != nil {
		e.Error_ = err.Error()
	}
	return e
}

type EventInterrupt struct {
	EventImpl
	Text string `json:"text,omitempty"`
}

func NewInterruptEvent(metadata EventMetadata, text string) *EventInterrupt {
	return &EventInterrupt{
		EventImpl: EventImpl{Type_: EventTypeInterrupt, Metadata_: metadata},
		Text:      text,
	}
}

type EventHookRecord struct {
	EventImpl
	HookEvent  string `json:"hook_event"`
	HandlerID  string `json:"handler_id"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"` // "ok", "error", "timeout", "short-circuited", "cached"
}

func NewHookRecordEvent(metadata EventMetadata, hookEvent, handlerID string, durationMs int64, status string) *EventHookRecord {
	return &EventHookRecord{
		EventImpl:  EventImpl{Type_: EventTypeHookRecord, Metadata_: metadata},
		HookEvent:  hookEvent,
		HandlerID:  handlerID,
		DurationMs: durationMs,
		Status:     status,
	}
}

// NewEventFromJson parses a serialized event back into its typed form.
func NewEventFromJson(b []byte) (Event, error) {
	var hdr struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, errors.Wrap(err, "parse event header")
	}

	decode := func(target Event) (Event, error) {
		if err := json.Unmarshal(b, target); err != nil {
			return nil, errors.Wrapf(err, "parse %s event", hdr.Type)
		}
		if setter, ok := target.(interface{ SetPayload([]byte) }); ok {
			setter.SetPayload(b)
		}
		return target, nil
	}

	switch hdr.Type {
	case EventTypeStart:
		return decode(&EventStart{})
	case EventTypePartialCompletion:
		return decode(&EventPartialCompletion{})
	case EventTypeFinal:
		return decode(&EventFinal{})
	case EventTypeToolCall:
		return decode(&EventToolCall{})
	case EventTypeToolCallExecute:
		return decode(&EventToolCallExecute{})
	case EventTypeToolCallExecutionResult:
		return decode(&EventToolCallExecutionResult{})
	case EventTypeError:
		return decode(&EventError{})
	case EventTypeInterrupt:
		return decode(&EventInterrupt{})
	case EventTypeHookRecord:
		return decode(&EventHookRecord{})
	default:
		return decode(&EventImpl{})
	}
}
