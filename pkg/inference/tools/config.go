package tools

import (
	"time"

	"github.com/mb0/glob"
)

// ToolConfig specifies how tools should be used during inference.
// Resolution is always sequential in emission order, so there is no
// parallelism knob.
type ToolConfig struct {
	Enabled           bool              `json:"enabled"`
	ToolChoice        ToolChoice        `json:"tool_choice"`
	ExecutionTimeout  time.Duration     `json:"execution_timeout"`
	AllowedTools      []string          `json:"allowed_tools"`
	ToolErrorHandling ToolErrorHandling `json:"tool_error_handling"`
	RetryConfig       RetryConfig       `json:"retry_config"`
}

// DefaultToolConfig returns a sensible default configuration
func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		Enabled:           true,
		ToolChoice:        ToolChoiceAuto,
		ExecutionTimeout:  30 * time.Second,
		AllowedTools:      nil, // nil means all tools are allowed
		ToolErrorHandling: ToolErrorContinue,
		RetryConfig: RetryConfig{
			MaxRetries:    2,
			BackoffBase:   time.Second,
			BackoffFactor: 2.0,
		},
	}
}

func (tc ToolConfig) WithEnabled(enabled bool) ToolConfig {
	tc.Enabled = enabled
	return tc
}

func (tc ToolConfig) WithToolChoice(choice ToolChoice) ToolConfig {
	tc.ToolChoice = choice
	return tc
}

func (tc ToolConfig) WithExecutionTimeout(timeout time.Duration) ToolConfig {
	tc.ExecutionTimeout = timeout
	return tc
}

func (tc ToolConfig) WithAllowedTools(patterns []string) ToolConfig {
	tc.AllowedTools = patterns
	return tc
}

func (tc ToolConfig) WithToolErrorHandling(handling ToolErrorHandling) ToolConfig {
	tc.ToolErrorHandling = handling
	return tc
}

func (tc ToolConfig) WithRetryConfig(cfg RetryConfig) ToolConfig {
	tc.RetryConfig = cfg
	return tc
}

// RetryConfig defines retry behavior for execution-class tool failures
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries"`
	BackoffBase   time.Duration `json:"backoff_base"`
	BackoffFactor float64       `json:"backoff_factor"`
}

// ToolChoice defines how the model should choose tools
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"     // Let the model decide
	ToolChoiceNone     ToolChoice = "none"     // Never call tools
	ToolChoiceRequired ToolChoice = "required" // Must call at least one tool
)

// ToolErrorHandling defines how to handle tool execution errors
type ToolErrorHandling string

const (
	ToolErrorContinue ToolErrorHandling = "continue" // Continue conversation with error message
	ToolErrorAbort    ToolErrorHandling = "abort"    // Stop inference on tool error
)

// IsToolAllowed checks a tool name against the allowed glob patterns.
// A nil pattern list allows everything.
func (tc *ToolConfig) IsToolAllowed(toolName string) bool {
	if tc.AllowedTools == nil {
		return true
	}
	for _, pattern := range tc.AllowedTools {
		if ok, err := glob.Match(pattern, toolName); err == nil && ok {
			return true
		}
	}
	return false
}

// FilterTools returns only the tools allowed by this configuration.
func (tc *ToolConfig) FilterTools(tools []ToolDefinition) []ToolDefinition {
	if tc.AllowedTools == nil {
		return tools
	}
	filtered := make([]ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		if tc.IsToolAllowed(tool.Name) {
			filtered = append(filtered, tool)
		}
	}
	return filtered
}
