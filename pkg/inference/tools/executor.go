package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/go-go-golems/mangiafuoco/pkg/events"
)

// ToolExecutor runs one validated tool call. Implementations never run
// calls concurrently within a turn; ordering is the caller's contract.
type ToolExecutor interface {
	ExecuteToolCall(ctx context.Context, toolCall ToolCall, registry ToolRegistry) (ToolResult, error)
}

// SequentialExecutor is the default executor: per-call timeout, bounded
// retries with exponential backoff for execution-class failures, schema
// validation at execution time, and a permission gate before anything with
// side effects runs.
type SequentialExecutor struct {
	config      ToolConfig
	permissions PermissionChecker
}

type ExecutorOption func(*SequentialExecutor)

func WithExecutorConfig(cfg ToolConfig) ExecutorOption {
	return func(e *SequentialExecutor) { e.config = cfg }
}

func WithPermissionChecker(pc PermissionChecker) ExecutorOption {
	return func(e *SequentialExecutor) { e.permissions = pc }
}

func NewSequentialExecutor(opts ...ExecutorOption) *SequentialExecutor {
	e := &SequentialExecutor{
		config:      DefaultToolConfig(),
		permissions: AllowAllPermissions(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// ExecuteToolCall runs a single call whose arguments have already been
// normalized to valid JSON. A returned error of the validation class means
// the arguments were rejected at execution time and the call should be
// routed to the invalid tool; other failures come back inside the
// error-flagged ToolResult.
func (e *SequentialExecutor) ExecuteToolCall(ctx context.Context, toolCall ToolCall, registry ToolRegistry) (ToolResult, error) {
	start := time.Now()

	def, err := registry.GetTool(toolCall.Name)
	if err != nil {
		return ToolResult{}, &ToolError{ToolName: toolCall.Name, ToolID: toolCall.ID, Type: ToolErrorTypeNotFound, Message: fmt.Sprintf("tool not found: %s", toolCall.Name)}
	}

	if !e.config.IsToolAllowed(toolCall.Name) {
		return errorResult(toolCall, fmt.Sprintf("tool not allowed: %s", toolCall.Name), start), nil
	}

	var argsMap map[string]any
	_ = json.Unmarshal(toolCall.Arguments, &argsMap)

	if e.permissions != nil {
		decision, err := e.permissions.Check(ctx, toolCall.Name, argsMap)
		if err != nil {
			return errorResult(toolCall, fmt.Sprintf("permission check failed: %v", err), start), nil
		}
		if decision == PermissionDeny {
			return errorResult(toolCall, fmt.Sprintf("permission denied for tool %s", toolCall.Name), start), nil
		}
	}

	if err := validateAgainstSchema(def, toolCall.Arguments); err != nil {
		return ToolResult{}, err
	}

	meta := events.EventMetadata{ID: uuid.New()}
	events.PublishEventToContext(ctx, events.NewToolCallExecuteEvent(meta, events.ToolCallInfo{
		ID:    toolCall.ID,
		Name:  toolCall.Name,
		Input: string(toolCall.Arguments),
	}))

	result, err := e.executeWithRetry(ctx, toolCall, def)
	result.ID = toolCall.ID
	result.Duration = time.Since(start)

	events.PublishEventToContext(ctx, events.NewToolCallExecutionResultEvent(
		meta, toolCall.ID, toolCall.Name, result.Output, result.IsError, result.Duration.Milliseconds(),
	))

	return result, err
}

func (e *SequentialExecutor) executeWithRetry(ctx context.Context, toolCall ToolCall, def *ToolDefinition) (ToolResult, error) {
	maxAttempts := e.config.RetryConfig.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := scaledBackoff(e.config.RetryConfig, attempt)
			log.Debug().Str("tool", toolCall.Name).Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying tool execution")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ToolResult{}, &ToolError{ToolName: toolCall.Name, ToolID: toolCall.ID, Type: ToolErrorTypeCancelled, Message: "cancelled while waiting to retry"}
			}
		}

		result, err := e.executeOnce(ctx, toolCall, def)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var te *ToolError
		if errors.As(err, &te) {
			switch te.Type {
			case ToolErrorTypeValidation, ToolErrorTypeCancelled:
				// never retried: validation failures are deterministic and
				// cancellation is final
				return ToolResult{}, err
			}
		}
	}

	return errorResultFromErr(toolCall, lastErr), nil
}

func (e *SequentialExecutor) executeOnce(ctx context.Context, toolCall ToolCall, def *ToolDefinition) (ToolResult, error) {
	execCtx := ctx
	cancel := func() {}
	if e.config.ExecutionTimeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, e.config.ExecutionTimeout)
	}
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: &ToolError{ToolName: toolCall.Name, ToolID: toolCall.ID, Type: ToolErrorTypeExecution, Message: fmt.Sprintf("tool panicked: %v", r)}}
			}
		}()
		value, err := def.Function.ExecuteWithContext(execCtx, toolCall.Arguments)
		ch <- outcome{value: value, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			var te *ToolError
			if errors.As(out.err, &te) {
				return ToolResult{}, out.err
			}
			return ToolResult{}, &ToolError{ToolName: toolCall.Name, ToolID: toolCall.ID, Type: ToolErrorTypeExecution, Message: out.err.Error()}
		}
		return ToolResult{Output: renderOutput(out.value), Title: toolCall.Name}, nil
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return ToolResult{}, &ToolError{ToolName: toolCall.Name, ToolID: toolCall.ID, Type: ToolErrorTypeCancelled, Message: "tool execution cancelled"}
		}
		return ToolResult{}, &ToolError{ToolName: toolCall.Name, ToolID: toolCall.ID, Type: ToolErrorTypeTimeout, Message: fmt.Sprintf("tool execution timed out after %s", e.config.ExecutionTimeout)}
	}
}

// validateAgainstSchema checks the arguments against the tool's parameter
// schema. This catches type mismatches the required-field preflight cannot
// see; violations belong to the invalid-arguments class.
func validateAgainstSchema(def *ToolDefinition, args json.RawMessage) error {
	if def.Parameters == nil {
		return nil
	}
	schemaJSON, err := json.Marshal(def.Parameters)
	if err != nil {
		return nil
	}
	if len(args) == 0 {
		args = []byte("{}")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(args),
	)
	if err != nil {
		// schema itself failed to load; do not block execution on it
		log.Debug().Err(err).Str("tool", def.Name).Msg("schema validation unavailable")
		return nil
	}
	if result.Valid() {
		return nil
	}

	var msgs []string
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return &ToolError{
		ToolName: def.Name,
		Type:     ToolErrorTypeValidation,
		Message:  strings.Join(msgs, "; "),
	}
}

func scaledBackoff(cfg RetryConfig, attempt int) time.Duration {
	backoff := cfg.BackoffBase
	if backoff <= 0 {
		backoff = time.Second
	}
	factor := cfg.BackoffFactor
	if factor <= 1 {
		factor = 2.0
	}
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * factor)
	}
	return backoff
}

func renderOutput(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	if b, err := json.Marshal(value); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", value)
}

func errorResult(toolCall ToolCall, msg string, start time.Time) ToolResult {
	return ToolResult{
		ID:       toolCall.ID,
		Output:   msg,
		Title:    toolCall.Name,
		IsError:  true,
		Duration: time.Since(start),
	}
}

func errorResultFromErr(toolCall ToolCall, err error) ToolResult {
	msg := "tool execution failed"
	if err != nil {
		msg = err.Error()
	}
	return ToolResult{
		ID:      toolCall.ID,
		Output:  msg,
		Title:   toolCall.Name,
		IsError: true,
	}
}
