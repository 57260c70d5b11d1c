package hooks

import (
	"context"
)

// Event names the interception points of the runtime. Handlers registered
// for an event run at the corresponding stage of the turn.
type Event string

const (
	EventToolExecuteBefore Event = "tool.execute.before"
	EventToolExecuteAfter  Event = "tool.execute.after"
	EventChatMessage       Event = "chat.message"
	EventChatParams        Event = "chat.params"
	EventToolDefinition    Event = "tool.definition"
	EventConfigLoaded      Event = "config.loaded"
	EventShellEnv          Event = "shell.env"
	EventSessionCreated    Event = "session.created"
	EventSessionCompacted  Event = "session.compacted"
)

// cacheableEvents are deterministic for a given input: their dispatch result
// may be cached until the handler table is reloaded.
var cacheableEvents = map[Event]bool{
	EventConfigLoaded:   true,
	EventShellEnv:       true,
	EventToolDefinition: true,
}

// fireAndForgetEvents carry no rewrite semantics: callers do not wait on a
// replacement output.
var fireAndForgetEvents = map[Event]bool{
	EventSessionCreated:   true,
	EventSessionCompacted: true,
}

// Handler is one registered hook. Handle receives the current (input, output)
// pair and may return a replacement output; returning nil passes the previous
// output through unchanged. Handlers may be in-process functions or bridges
// to an out-of-process plugin runtime.
type Handler interface {
	ID() string
	Handle(ctx context.Context, event Event, input any, output any) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event, input any, output any) (any, error)

type funcHandler struct {
	id string
	fn HandlerFunc
}

func (h *funcHandler) ID() string { return h.id }

func (h *funcHandler) Handle(ctx context.Context, event Event, input any, output any) (any, error) {
	return h.fn(ctx, event, input, output)
}

// NewHandler wraps fn as a Handler with the given id.
func NewHandler(id string, fn HandlerFunc) Handler {
	return &funcHandler{id: id, fn: fn}
}
