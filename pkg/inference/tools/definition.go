package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

// ToolDefinition represents a tool that can be called by AI models
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
	Function    ToolFunc           `json:"-"`
	Tags        []string           `json:"tags,omitempty"`
}

// RequiredFields returns the schema's required property names in declaration
// order. An empty list means the tool accepts anything.
func (td *ToolDefinition) RequiredFields() []string {
	if td == nil || td.Parameters == nil {
		return nil
	}
	return td.Parameters.Required
}

// ToolFunc wraps the actual function with a pre-compiled executor
type ToolFunc struct {
	Fn        interface{}                                        `json:"-"`
	executor  func(context.Context, []byte) (interface{}, error) `json:"-"`
	inputType reflect.Type                                       `json:"-"`
}

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// NewToolFromFunc creates a ToolDefinition from a Go function. Supported
// signatures:
//
//	func(Input) (Result, error)
//	func(context.Context, Input) (Result, error)
//	func(context.Context) (Result, error)
//	func() (Result, error)
//
// The second return value is optional.
func NewToolFromFunc(name, description string, fn interface{}) (*ToolDefinition, error) {
	funcType := reflect.TypeOf(fn)
	if funcType == nil || funcType.Kind() != reflect.Func {
		return nil, fmt.Errorf("provided value is not a function")
	}

	if funcType.NumOut() == 0 || funcType.NumOut() > 2 {
		return nil, fmt.Errorf("function must return (result) or (result, error)")
	}
	if funcType.NumOut() == 2 && !funcType.Out(1).Implements(errorType) {
		return nil, fmt.Errorf("second return value must be an error")
	}

	inputType, err := toolInputType(funcType)
	if err != nil {
		return nil, err
	}

	schema, err := schemaForInputType(inputType)
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}

	return &ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  schema,
		Function: ToolFunc{
			Fn:        fn,
			executor:  buildExecutor(fn, funcType, inputType),
			inputType: inputType,
		},
	}, nil
}

// ExecuteWithContext executes the tool function with the provided arguments.
func (tf *ToolFunc) ExecuteWithContext(ctx context.Context, args []byte) (interface{}, error) {
	if tf.executor == nil {
		return nil, fmt.Errorf("tool function not properly initialized")
	}
	return tf.executor(ctx, args)
}

// toolInputType extracts the JSON input struct type, skipping an optional
// leading context.Context. nil means the function takes no JSON input.
func toolInputType(funcType reflect.Type) (reflect.Type, error) {
	switch funcType.NumIn() {
	case 0:
		return nil, nil
	case 1:
		if funcType.In(0) == ctxType {
			return nil, nil
		}
		return funcType.In(0), nil
	case 2:
		if funcType.In(0) != ctxType {
			return nil, fmt.Errorf("two-arg tool function must be (context.Context, Input)")
		}
		return funcType.In(1), nil
	default:
		return nil, fmt.Errorf("function must take (Input) or (context.Context, Input)")
	}
}

func schemaForInputType(inputType reflect.Type) (*jsonschema.Schema, error) {
	if inputType == nil {
		return &jsonschema.Schema{Type: "object"}, nil
	}

	inputInstance := reflect.New(inputType).Elem().Interface()

	reflector := jsonschema.Reflector{
		// Expand definitions inline instead of using $refs
		DoNotReference: true,
	}
	schema := reflector.Reflect(inputInstance)

	if schema.Type == "" && schema.Ref == "" {
		schema.Type = "object"
	}

	return schema, nil
}

func buildExecutor(fn interface{}, funcType reflect.Type, inputType reflect.Type) func(context.Context, []byte) (interface{}, error) {
	funcValue := reflect.ValueOf(fn)
	wantsCtx := funcType.NumIn() > 0 && funcType.In(0) == ctxType

	return func(ctx context.Context, args []byte) (interface{}, error) {
		var in []reflect.Value
		if wantsCtx {
			in = append(in, reflect.ValueOf(ctx))
		}
		if inputType != nil {
			input := reflect.New(inputType).Interface()
			if len(args) == 0 {
				args = []byte("{}")
			}
			if err := json.Unmarshal(args, input); err != nil {
				return nil, &ToolError{
					Type:    ToolErrorTypeValidation,
					Message: fmt.Sprintf("failed to unmarshal arguments: %v", err),
				}
			}
			in = append(in, reflect.ValueOf(input).Elem())
		}
		return extractResults(funcValue.Call(in))
	}
}

func extractResults(results []reflect.Value) (interface{}, error) {
	switch len(results) {
	case 1:
		return results[0].Interface(), nil
	case 2:
		var err error
		if !results[1].IsNil() {
			err = results[1].Interface().(error)
		}
		return results[0].Interface(), err
	default:
		return nil, fmt.Errorf("unexpected number of return values: %d", len(results))
	}
}

// ToolCall represents a request to execute a tool. Arguments is carried as
// the raw accumulated text from the provider stream and may not be valid
// JSON until normalized.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of one execution attempt. Exactly one is
// produced per ToolCall, including the invalid-routing and cancellation
// paths.
type ToolResult struct {
	ID       string         `json:"id"`
	Output   string         `json:"output"`
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	IsError  bool           `json:"is_error,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// Tool error classes. Validation errors carry the corrective signal the
// model can act on and are routed through the invalid tool; the other
// classes surface as error-flagged results.
const (
	ToolErrorTypeValidation = "validation"
	ToolErrorTypeExecution  = "execution"
	ToolErrorTypeTimeout    = "timeout"
	ToolErrorTypeNotFound   = "not_found"
	ToolErrorTypeCancelled  = "cancelled"
)

// ToolError represents an error that occurred during tool execution
type ToolError struct {
	ToolName string `json:"tool_name,omitempty"`
	ToolID   string `json:"tool_id,omitempty"`
	Type     string `json:"type"`
	Message  string `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error [%s]: %s", e.Type, e.Message)
}

// IsInvalidArgumentsError reports whether err belongs to the
// invalid-arguments class that should be routed through the invalid tool.
func IsInvalidArgumentsError(err error) bool {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Type == ToolErrorTypeValidation
	}
	return false
}
