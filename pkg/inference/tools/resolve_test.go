package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/mangiafuoco/pkg/hooks"
)

func newTestRegistry(t *testing.T) *InMemoryToolRegistry {
	t.Helper()

	reg := NewInMemoryToolRegistry()

	readTool := mustTool(t, "read_file", func(in readFileIn) (string, error) {
		return "contents of " + in.FilePath, nil
	})
	require.NoError(t, reg.RegisterTool(readTool.Name, *readTool))

	invalidTool, err := NewInvalidTool()
	require.NoError(t, err)
	require.NoError(t, reg.RegisterTool(invalidTool.Name, *invalidTool))

	return reg
}

func newTestResolver(t *testing.T, reg ToolRegistry, opts ...ResolverOption) *Resolver {
	t.Helper()
	return NewResolver(append([]ResolverOption{WithResolverRegistry(reg)}, opts...)...)
}

func TestResolver_HappyPath(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newTestRegistry(t))
	res := r.Resolve(context.Background(), ToolCall{
		ID:        "call-1",
		Name:      "read_file",
		Arguments: json.RawMessage(`{"file_path": "main.go"}`),
	})
	require.Equal(t, "call-1", res.ID)
	require.False(t, res.IsError)
	require.Equal(t, "contents of main.go", res.Output)
}

func TestResolver_UnknownToolRoutesInvalid(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newTestRegistry(t))
	res := r.Resolve(context.Background(), ToolCall{
		ID:        "call-2",
		Name:      "definitely_not_a_tool",
		Arguments: json.RawMessage(`{}`),
	})
	require.Equal(t, "call-2", res.ID)
	require.True(t, res.IsError)
	require.Contains(t, res.Output, `unknown tool "definitely_not_a_tool"`)
	require.Contains(t, res.Output, "retry")
}

func TestResolver_MissingFieldRoutesInvalid(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newTestRegistry(t))
	res := r.Resolve(context.Background(), ToolCall{
		ID:        "call-3",
		Name:      "read_file",
		Arguments: json.RawMessage(`{"limit": 5}`),
	})
	require.True(t, res.IsError)
	require.Contains(t, res.Output, "missing required field(s): file_path")
	require.Equal(t, "read_file", res.Metadata["tool"])
}

func TestResolver_MalformedArgsRouteInvalidWithOriginalText(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newTestRegistry(t))
	res := r.Resolve(context.Background(), ToolCall{
		ID:        "call-4",
		Name:      "read_file",
		Arguments: json.RawMessage(`just read the file please`),
	})
	require.True(t, res.IsError)
	require.Contains(t, res.Output, "malformed arguments")
	require.Contains(t, res.Output, "just read the file please")
}

func TestResolver_NameRepair(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newTestRegistry(t))

	for _, name := range []string{"READ_FILE", "ReadFile", "readFile"} {
		res := r.Resolve(context.Background(), ToolCall{
			ID:        "call-5",
			Name:      name,
			Arguments: json.RawMessage(`{"file_path": "a.go"}`),
		})
		require.False(t, res.IsError, "name %q", name)
		require.Equal(t, "contents of a.go", res.Output, "name %q", name)
	}
}

func TestResolver_TypeMismatchRoutesInvalid(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newTestRegistry(t))
	res := r.Resolve(context.Background(), ToolCall{
		ID:        "call-6",
		Name:      "read_file",
		Arguments: json.RawMessage(`{"file_path": 42}`),
	})
	require.True(t, res.IsError)
	require.Contains(t, res.Output, "invalid arguments")
}

func TestResolver_ResolveAllNeverDropsACall(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newTestRegistry(t))
	calls := []ToolCall{
		{ID: "a", Name: "read_file", Arguments: json.RawMessage(`{"file_path": "a.go"}`)},
		{ID: "b", Name: "nope", Arguments: json.RawMessage(`{}`)},
		{ID: "c", Name: "read_file", Arguments: json.RawMessage(`garbage garbage`)},
	}
	results := r.ResolveAll(context.Background(), calls)
	require.Len(t, results, len(calls))
	for i, call := range calls {
		require.Equal(t, call.ID, results[i].ID)
	}
}

func TestResolver_CancelledContextYieldsCancelledResults(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newTestRegistry(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := r.ResolveAll(ctx, []ToolCall{
		{ID: "a", Name: "read_file", Arguments: json.RawMessage(`{"file_path": "a.go"}`)},
		{ID: "b", Name: "read_file", Arguments: json.RawMessage(`{"file_path": "b.go"}`)},
	})
	require.Len(t, results, 2)
	for _, res := range results {
		require.True(t, res.IsError)
		require.Equal(t, "cancelled", res.Output)
	}
}

func TestResolver_BeforeHookRewritesArguments(t *testing.T) {
	t.Parallel()

	d := hooks.New()
	d.Register(hooks.EventToolExecuteBefore, hooks.NewHandler("redirect", func(ctx context.Context, event hooks.Event, input any, output any) (any, error) {
		args, ok := output.(map[string]any)
		if !ok {
			return nil, nil
		}
		args["file_path"] = "redirected.go"
		return args, nil
	}))

	r := newTestResolver(t, newTestRegistry(t), WithResolverDispatcher(d))
	res := r.Resolve(context.Background(), ToolCall{
		ID:        "call-7",
		Name:      "read_file",
		Arguments: json.RawMessage(`{"file_path": "original.go"}`),
	})
	require.False(t, res.IsError)
	require.Equal(t, "contents of redirected.go", res.Output)
}

func TestResolver_AfterHookRewritesOutput(t *testing.T) {
	t.Parallel()

	d := hooks.New()
	d.Register(hooks.EventToolExecuteAfter, hooks.NewHandler("redact", func(ctx context.Context, event hooks.Event, input any, output any) (any, error) {
		return "[redacted]", nil
	}))

	r := newTestResolver(t, newTestRegistry(t), WithResolverDispatcher(d))
	res := r.Resolve(context.Background(), ToolCall{
		ID:        "call-8",
		Name:      "read_file",
		Arguments: json.RawMessage(`{"file_path": "secret.go"}`),
	})
	require.False(t, res.IsError)
	require.Equal(t, "[redacted]", res.Output)
}

func TestRouteInvalid_WithoutRegistrySynthesizesResult(t *testing.T) {
	t.Parallel()

	res := RouteInvalid(context.Background(), nil, ToolCall{ID: "x", Name: "ghost"}, "unknown tool", nil)
	require.Equal(t, "x", res.ID)
	require.True(t, res.IsError)
	require.Contains(t, res.Output, "ghost")
}
