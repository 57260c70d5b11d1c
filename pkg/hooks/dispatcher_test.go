package hooks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDispatcher_SequentialInRegistrationOrder(t *testing.T) {
	t.Parallel()

	var order []string
	d := New()
	d.Register(EventChatParams, NewHandler("slow", func(ctx context.Context, event Event, input, output any) (any, error) {
		time.Sleep(50 * time.Millisecond)
		order = append(order, "slow")
		return nil, nil
	}))
	d.Register(EventChatParams, NewHandler("fast", func(ctx context.Context, event Event, input, output any) (any, error) {
		order = append(order, "fast")
		return nil, nil
	}))

	_, err := d.Trigger(context.Background(), EventChatParams, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"slow", "fast"}, order)
}

func TestDispatcher_OutputRewriteChain(t *testing.T) {
	t.Parallel()

	d := New()
	d.Register(EventToolExecuteAfter, NewHandler("upper", func(ctx context.Context, event Event, input, output any) (any, error) {
		return output.(string) + "-first", nil
	}))
	d.Register(EventToolExecuteAfter, NewHandler("passthrough", func(ctx context.Context, event Event, input, output any) (any, error) {
		// nil return keeps the predecessor's output
		return nil, nil
	}))
	d.Register(EventToolExecuteAfter, NewHandler("suffix", func(ctx context.Context, event Event, input, output any) (any, error) {
		return output.(string) + "-second", nil
	}))

	out, err := d.Trigger(context.Background(), EventToolExecuteAfter, nil, "base")
	require.NoError(t, err)
	require.Equal(t, "base-first-second", out)
}

func TestDispatcher_InputIsolation(t *testing.T) {
	t.Parallel()

	d := New()
	d.Register(EventChatMessage, NewHandler("mutator", func(ctx context.Context, event Event, input, output any) (any, error) {
		input.(map[string]any)["text"] = "tampered"
		return nil, nil
	}))
	var seen string
	d.Register(EventChatMessage, NewHandler("reader", func(ctx context.Context, event Event, input, output any) (any, error) {
		seen, _ = input.(map[string]any)["text"].(string)
		return nil, nil
	}))

	original := map[string]any{"text": "hello"}
	_, err := d.Trigger(context.Background(), EventChatMessage, original, nil)
	require.NoError(t, err)
	require.Equal(t, "hello", seen)
	require.Equal(t, "hello", original["text"])
}

func TestDispatcher_HandlerErrorIsIsolated(t *testing.T) {
	t.Parallel()

	d := New()
	d.Register(EventChatParams, NewHandler("broken", func(ctx context.Context, event Event, input, output any) (any, error) {
		return nil, context.DeadlineExceeded
	}))
	d.Register(EventChatParams, NewHandler("rewriter", func(ctx context.Context, event Event, input, output any) (any, error) {
		return "rewritten", nil
	}))

	out, err := d.Trigger(context.Background(), EventChatParams, nil, "base")
	require.NoError(t, err)
	require.Equal(t, "rewritten", out)
}

func TestDispatcher_FatalHandlerAbortsChain(t *testing.T) {
	t.Parallel()

	d := New()
	d.RegisterFatal(EventConfigLoaded, NewHandler("gatekeeper", func(ctx context.Context, event Event, input, output any) (any, error) {
		return nil, context.Canceled
	}), true)
	var reached atomic.Bool
	d.Register(EventConfigLoaded, NewHandler("after", func(ctx context.Context, event Event, input, output any) (any, error) {
		reached.Store(true)
		return nil, nil
	}))

	_, err := d.Trigger(context.Background(), EventConfigLoaded, nil, nil)
	require.Error(t, err)
	require.False(t, reached.Load())
}

func TestDispatcher_TimeoutDoesNotBlockChain(t *testing.T) {
	t.Parallel()

	d := New(WithHandlerTimeout(20 * time.Millisecond))
	d.Register(EventChatParams, NewHandler("hung", func(ctx context.Context, event Event, input, output any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	var ran atomic.Bool
	d.Register(EventChatParams, NewHandler("next", func(ctx context.Context, event Event, input, output any) (any, error) {
		ran.Store(true)
		return nil, nil
	}))

	start := time.Now()
	_, err := d.Trigger(context.Background(), EventChatParams, nil, nil)
	require.NoError(t, err)
	require.True(t, ran.Load())
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestDispatcher_PanicIsContained(t *testing.T) {
	t.Parallel()

	d := New()
	d.Register(EventChatParams, NewHandler("bomb", func(ctx context.Context, event Event, input, output any) (any, error) {
		panic("boom")
	}))

	out, err := d.Trigger(context.Background(), EventChatParams, nil, "safe")
	require.NoError(t, err)
	require.Equal(t, "safe", out)
}

func TestDispatcher_CacheableEventSkipsHandlersOnRepeat(t *testing.T) {
	t.Parallel()

	var invocations atomic.Int64
	d := New()
	d.Register(EventShellEnv, NewHandler("env", func(ctx context.Context, event Event, input, output any) (any, error) {
		invocations.Add(1)
		return map[string]any{"PATH": "/usr/bin"}, nil
	}))

	input := map[string]any{"shell": "zsh"}
	first, err := d.Trigger(context.Background(), EventShellEnv, input, nil)
	require.NoError(t, err)
	second, err := d.Trigger(context.Background(), EventShellEnv, input, nil)
	require.NoError(t, err)

	require.EqualValues(t, 1, invocations.Load())
	require.Equal(t, first, second)

	// a different input misses the cache
	_, err = d.Trigger(context.Background(), EventShellEnv, map[string]any{"shell": "fish"}, nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, invocations.Load())
}

func TestDispatcher_CachedResultIsIsolatedFromCallers(t *testing.T) {
	t.Parallel()

	d := New()
	d.Register(EventShellEnv, NewHandler("env", func(ctx context.Context, event Event, input, output any) (any, error) {
		return map[string]any{"PATH": "/usr/bin"}, nil
	}))

	input := map[string]any{"shell": "zsh"}
	first, err := d.Trigger(context.Background(), EventShellEnv, input, nil)
	require.NoError(t, err)

	// mutating the returned value must not leak into later cache hits
	first.(map[string]any)["PATH"] = "/tampered"

	second, err := d.Trigger(context.Background(), EventShellEnv, input, nil)
	require.NoError(t, err)
	require.Equal(t, "/usr/bin", second.(map[string]any)["PATH"])
}

func TestDispatcher_ReloadClearsCacheAndHandlers(t *testing.T) {
	t.Parallel()

	var invocations atomic.Int64
	handler := NewHandler("env", func(ctx context.Context, event Event, input, output any) (any, error) {
		invocations.Add(1)
		return "v", nil
	})

	d := New()
	d.Register(EventShellEnv, handler)
	_, err := d.Trigger(context.Background(), EventShellEnv, "in", nil)
	require.NoError(t, err)

	d.Reload([]Registration{{Event: EventShellEnv, Handler: handler}})
	require.Equal(t, 1, d.HandlerCount(EventShellEnv))

	_, err = d.Trigger(context.Background(), EventShellEnv, "in", nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, invocations.Load())
}

func TestDispatcher_NoHandlersPassesOutputThrough(t *testing.T) {
	t.Parallel()

	d := New()
	out, err := d.Trigger(context.Background(), EventChatParams, nil, "untouched")
	require.NoError(t, err)
	require.Equal(t, "untouched", out)
}
