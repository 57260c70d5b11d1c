package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// InvalidToolName is the registry entry receiving calls that failed
// validation.
const InvalidToolName = "invalid"

// InvalidPayload is the structured diagnostic routed to the invalid tool.
// Its presence in the conversation is the signal the model retries against,
// so the field names are a wire contract.
type InvalidPayload struct {
	Tool         string `json:"tool"`
	Error        string `json:"error"`
	ReceivedArgs any    `json:"receivedArgs"`
}

// NewInvalidTool builds the synthetic invalid tool. It echoes the diagnostic
// back as tool output so the model sees a retryable, informative error
// instead of the turn crashing.
func NewInvalidTool() (*ToolDefinition, error) {
	return NewToolFromFunc(
		InvalidToolName,
		"Reports an invalid tool call back to the conversation. Not meant to be called directly.",
		func(payload InvalidPayload) (string, error) {
			received := "none"
			if payload.ReceivedArgs != nil {
				if b, err := json.Marshal(payload.ReceivedArgs); err == nil {
					received = string(b)
				}
			}
			return fmt.Sprintf(
				"The tool call %q was invalid: %s. Received arguments: %s. Correct the call and retry.",
				payload.Tool, payload.Error, received,
			), nil
		},
	)
}

// Diagnostic texts for the invalid-routing error classes.

func MissingFieldsDiagnostic(fields []string) string {
	return fmt.Sprintf("missing required field(s): %s", strings.Join(fields, ", "))
}

func UnknownToolDiagnostic(name string) string {
	return fmt.Sprintf("unknown tool %q", name)
}

func MalformedArgumentsDiagnostic(reason string) string {
	return fmt.Sprintf("malformed arguments: %s", reason)
}

func InvalidArgumentsDiagnostic(err error) string {
	return fmt.Sprintf("invalid arguments: %v", err)
}

// RouteInvalid redirects a failed-validation call to the invalid tool and
// returns its result. When the invalid tool is missing from the registry, a
// ToolResult is synthesized directly so the call still exits with exactly
// one result. RouteInvalid cannot fail.
func RouteInvalid(ctx context.Context, registry ToolRegistry, call ToolCall, reason string, received any) ToolResult {
	payload := InvalidPayload{
		Tool:         call.Name,
		Error:        reason,
		ReceivedArgs: received,
	}

	fallback := ToolResult{
		ID:      call.ID,
		Output:  fmt.Sprintf("Invalid tool call %q: %s", call.Name, reason),
		Title:   "Invalid tool call",
		IsError: true,
	}

	if registry == nil {
		return fallback
	}
	def, err := registry.GetTool(InvalidToolName)
	if err != nil {
		log.Warn().Str("tool", call.Name).Msg("invalid tool missing from registry, synthesizing result")
		return fallback
	}

	args, err := json.Marshal(payload)
	if err != nil {
		return fallback
	}
	out, err := def.Function.ExecuteWithContext(ctx, args)
	if err != nil {
		log.Warn().Err(err).Str("tool", call.Name).Msg("invalid tool execution failed, synthesizing result")
		return fallback
	}

	output, ok := out.(string)
	if !ok {
		if b, err := json.Marshal(out); err == nil {
			output = string(b)
		} else {
			output = fmt.Sprintf("%v", out)
		}
	}

	return ToolResult{
		ID:      call.ID,
		Output:  output,
		Title:   "Invalid tool call",
		IsError: true,
		Metadata: map[string]any{
			"tool":         payload.Tool,
			"error":        payload.Error,
			"receivedArgs": payload.ReceivedArgs,
		},
	}
}
