package tools

import "context"

// PermissionDecision is the outcome of a permission query.
type PermissionDecision int

const (
	PermissionAllow PermissionDecision = iota
	PermissionDeny
)

// PermissionChecker is consulted before a tool executes. Implementations
// may decide synchronously or bridge to an interactive prompt; either way
// the decision comes back as allow or deny.
type PermissionChecker interface {
	Check(ctx context.Context, toolName string, args map[string]any) (PermissionDecision, error)
}

// PermissionCheckerFunc adapts a function to the PermissionChecker interface.
type PermissionCheckerFunc func(ctx context.Context, toolName string, args map[string]any) (PermissionDecision, error)

func (f PermissionCheckerFunc) Check(ctx context.Context, toolName string, args map[string]any) (PermissionDecision, error) {
	return f(ctx, toolName, args)
}

// AllowAllPermissions grants every execution.
func AllowAllPermissions() PermissionChecker {
	return PermissionCheckerFunc(func(context.Context, string, map[string]any) (PermissionDecision, error) {
		return PermissionAllow, nil
	})
}
