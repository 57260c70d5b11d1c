package tools

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/hooks"
)

// Resolver turns one model-emitted tool call into exactly one ToolResult.
// It is the single routine shared by every execution path: the direct turn
// loop, sub-agent executors and delegated sub-sessions all resolve calls
// through the same instance, so normalization, preflight and invalid
// routing can never diverge between call sites.
type Resolver struct {
	registry   ToolRegistry
	executor   ToolExecutor
	config     ToolConfig
	dispatcher *hooks.Dispatcher
}

type ResolverOption func(*Resolver)

func WithResolverRegistry(reg ToolRegistry) ResolverOption {
	return func(r *Resolver) { r.registry = reg }
}

func WithResolverExecutor(exec ToolExecutor) ResolverOption {
	return func(r *Resolver) { r.executor = exec }
}

func WithResolverConfig(cfg ToolConfig) ResolverOption {
	return func(r *Resolver) { r.config = cfg }
}

func WithResolverDispatcher(d *hooks.Dispatcher) ResolverOption {
	return func(r *Resolver) { r.dispatcher = d }
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		config: DefaultToolConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.executor == nil {
		r.executor = NewSequentialExecutor(WithExecutorConfig(r.config))
	}
	return r
}

// Registry exposes the resolver's registry so callers can compose the tool
// definition list sent to the provider.
func (r *Resolver) Registry() ToolRegistry { return r.registry }

// Config exposes the resolver's tool configuration.
func (r *Resolver) Config() ToolConfig { return r.config }

// Resolve runs the full pipeline for one call: name repair, argument
// normalization, preflight validation, then either registry execution or
// invalid routing. The tool.execute.before and tool.execute.after hooks
// bracket the actual execution, not the normalization or validation.
// Resolve always returns exactly one result; there is no path that drops
// the call.
func (r *Resolver) Resolve(ctx context.Context, call ToolCall) ToolResult {
	repairedName, found := RepairToolName(r.registry, call.Name)
	if found && repairedName != call.Name {
		log.Debug().Str("from", call.Name).Str("to", repairedName).Msg("repaired tool name")
		call.Name = repairedName
	}

	args := Normalize(call.Arguments)
	if args.Repaired {
		log.Debug().Str("tool", call.Name).Str("raw", args.Raw).Msg("repaired tool arguments")
	}
	if args.Irrecoverable {
		return RouteInvalid(ctx, r.registry, call, MalformedArgumentsDiagnostic(args.Reason), args.Raw)
	}

	var def *ToolDefinition
	if r.registry != nil {
		def, _ = r.registry.GetTool(call.Name)
	}

	outcome := Preflight(def, args)
	switch outcome.Kind {
	case ValidationUnknownTool:
		return RouteInvalid(ctx, r.registry, call, UnknownToolDiagnostic(call.Name), args.Value)
	case ValidationMissingFields:
		return RouteInvalid(ctx, r.registry, call, MissingFieldsDiagnostic(outcome.MissingFields), args.Value)
	}

	args.Value = r.fireBefore(ctx, call, args.Value)
	call.Arguments = args.JSON()

	result, err := r.executor.ExecuteToolCall(ctx, call, r.registry)
	if err != nil {
		if IsInvalidArgumentsError(err) {
			// type-level mismatch the preflight check cannot see; same
			// corrective signal as a preflight failure
			return RouteInvalid(ctx, r.registry, call, InvalidArgumentsDiagnostic(err), args.Value)
		}
		var te *ToolError
		if errors.As(err, &te) && te.Type == ToolErrorTypeCancelled {
			return CancelledResult(call)
		}
		result = ToolResult{
			ID:      call.ID,
			Output:  err.Error(),
			Title:   call.Name,
			IsError: true,
		}
	}
	result.ID = call.ID

	result.Output = r.fireAfter(ctx, call, result)
	return result
}

// ResolveAll resolves calls sequentially in emission order, never
// reordering or parallelizing, and returns one result per call.
func (r *Resolver) ResolveAll(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		if ctx.Err() != nil {
			results = append(results, CancelledResult(call))
			continue
		}
		results = append(results, r.Resolve(ctx, call))
	}
	return results
}

// CancelledResult records an explicit cancellation for a call so it never
// dangles without a result.
func CancelledResult(call ToolCall) ToolResult {
	return ToolResult{
		ID:      call.ID,
		Output:  "cancelled",
		Title:   call.Name,
		IsError: true,
	}
}

// fireBefore runs tool.execute.before; a handler may rewrite the argument
// object before execution.
func (r *Resolver) fireBefore(ctx context.Context, call ToolCall, args map[string]any) map[string]any {
	if r.dispatcher == nil {
		return args
	}
	input := map[string]any{"tool": call.Name, "call_id": call.ID}
	out, err := r.dispatcher.Trigger(ctx, hooks.EventToolExecuteBefore, input, args)
	if err != nil {
		log.Warn().Err(err).Str("tool", call.Name).Msg("tool.execute.before hook failed")
		return args
	}
	if rewritten, ok := out.(map[string]any); ok {
		return rewritten
	}
	return args
}

// fireAfter runs tool.execute.after; a handler may rewrite the output text.
func (r *Resolver) fireAfter(ctx context.Context, call ToolCall, result ToolResult) string {
	if r.dispatcher == nil {
		return result.Output
	}
	input := map[string]any{"tool": call.Name, "call_id": call.ID, "is_error": result.IsError}
	out, err := r.dispatcher.Trigger(ctx, hooks.EventToolExecuteAfter, input, result.Output)
	if err != nil {
		log.Warn().Err(err).Str("tool", call.Name).Msg("tool.execute.after hook failed")
		return result.Output
	}
	if rewritten, ok := out.(string); ok {
		return rewritten
	}
	return result.Output
}
