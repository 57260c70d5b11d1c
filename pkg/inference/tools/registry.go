package tools

import (
	"fmt"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"
)

// ToolRegistry manages available tools with thread-safe operations. It is
// shared read-mostly across concurrent turns; registration happens at
// startup or plugin load time.
type ToolRegistry interface {
	RegisterTool(name string, def ToolDefinition) error
	GetTool(name string) (*ToolDefinition, error)
	ListTools() []ToolDefinition
	UnregisterTool(name string) error

	Clone() ToolRegistry
	Merge(other ToolRegistry) ToolRegistry
}

// InMemoryToolRegistry is a thread-safe in-memory implementation of ToolRegistry
type InMemoryToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolDefinition
	// order preserves registration order for deterministic listings
	order []string
}

// NewInMemoryToolRegistry creates a new in-memory tool registry
func NewInMemoryToolRegistry() *InMemoryToolRegistry {
	return &InMemoryToolRegistry{
		tools: make(map[string]ToolDefinition),
	}
}

// RegisterTool registers a new tool in the registry
func (r *InMemoryToolRegistry) RegisterTool(name string, def ToolDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Name != "" && def.Name != name {
		return fmt.Errorf("tool definition name (%s) does not match registry name (%s)", def.Name, name)
	}

	def.Name = name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = def
	return nil
}

// GetTool retrieves a tool by name
func (r *InMemoryToolRegistry) GetTool(name string) (*ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, &ToolError{ToolName: name, Type: ToolErrorTypeNotFound, Message: fmt.Sprintf("tool not found: %s", name)}
	}

	// Return a copy to prevent external modifications
	toolCopy := tool
	return &toolCopy, nil
}

// ListTools returns all registered tools in registration order.
func (r *InMemoryToolRegistry) ListTools() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]ToolDefinition, 0, len(r.tools))
	for _, name := range r.order {
		if tool, ok := r.tools[name]; ok {
			tools = append(tools, tool)
		}
	}
	return tools
}

// UnregisterTool removes a tool from the registry
func (r *InMemoryToolRegistry) UnregisterTool(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool not found: %s", name)
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clone creates a copy of the registry
func (r *InMemoryToolRegistry) Clone() ToolRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cloned := NewInMemoryToolRegistry()
	for _, name := range r.order {
		cloned.tools[name] = r.tools[name]
		cloned.order = append(cloned.order, name)
	}
	return cloned
}

// Merge creates a new registry containing tools from both registries.
// On conflict, tools from the other registry take precedence.
func (r *InMemoryToolRegistry) Merge(other ToolRegistry) ToolRegistry {
	merged := r.Clone().(*InMemoryToolRegistry)
	for _, tool := range other.ListTools() {
		_ = merged.RegisterTool(tool.Name, tool)
	}
	return merged
}

var _ ToolRegistry = &InMemoryToolRegistry{}

// RepairToolName maps a possibly malformed model-emitted tool name onto a
// registered tool: exact match, then lowercase match, then snake_case match.
// Returns the original name and false when nothing matches; the unresolved
// name is kept verbatim for the diagnostic payload.
func RepairToolName(registry ToolRegistry, name string) (string, bool) {
	if registry == nil {
		return name, false
	}
	if _, err := registry.GetTool(name); err == nil {
		return name, true
	}
	lower := strings.ToLower(name)
	if _, err := registry.GetTool(lower); err == nil {
		return lower, true
	}
	snake := strcase.ToSnake(name)
	if _, err := registry.GetTool(snake); err == nil {
		return snake, true
	}
	return name, false
}
