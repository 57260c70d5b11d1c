package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/go-go-golems/mangiafuoco/pkg/hooks"
	"github.com/go-go-golems/mangiafuoco/pkg/inference/engine"
	"github.com/go-go-golems/mangiafuoco/pkg/inference/middleware"
	"github.com/go-go-golems/mangiafuoco/pkg/inference/promptloop"
	"github.com/go-go-golems/mangiafuoco/pkg/inference/tools"
	"github.com/go-go-golems/mangiafuoco/pkg/providers"
	"github.com/go-go-golems/mangiafuoco/pkg/providers/ollamachat"
	"github.com/go-go-golems/mangiafuoco/pkg/providers/openaichat"
	"github.com/go-go-golems/mangiafuoco/pkg/store"
)

// runtime bundles the wired agent components for one CLI invocation.
type runtime struct {
	loop       *promptloop.Loop
	dispatcher *hooks.Dispatcher
	turnStore  *store.TurnStore
}

func (r *runtime) Close() {
	if r.turnStore != nil {
		_ = r.turnStore.Close()
	}
}

func buildRuntime() (*runtime, error) {
	dispatcher := hooks.New()

	registry := tools.NewInMemoryToolRegistry()
	if err := registerBuiltinTools(registry); err != nil {
		return nil, errors.Wrap(err, "register builtin tools")
	}
	invalidTool, err := tools.NewInvalidTool()
	if err != nil {
		return nil, errors.Wrap(err, "build invalid tool")
	}
	if err := registry.RegisterTool(invalidTool.Name, *invalidTool); err != nil {
		return nil, errors.Wrap(err, "register invalid tool")
	}

	toolCfg := tools.DefaultToolConfig()
	if patterns := viper.GetStringSlice("allow-tools"); len(patterns) > 0 {
		toolCfg = toolCfg.WithAllowedTools(patterns)
	}

	executor := tools.NewSequentialExecutor(
		tools.WithExecutorConfig(toolCfg),
		tools.WithPermissionChecker(newPermissionChecker()),
	)
	resolver := tools.NewResolver(
		tools.WithResolverRegistry(registry),
		tools.WithResolverExecutor(executor),
		tools.WithResolverConfig(toolCfg),
		tools.WithResolverDispatcher(dispatcher),
	)

	provider, err := buildProvider()
	if err != nil {
		return nil, err
	}
	eng := engine.NewProviderEngine(provider,
		engine.WithModel(viper.GetString("model")),
		engine.WithToolConfig(toolCfg),
	)

	var middlewares []middleware.Middleware
	if system := viper.GetString("system"); system != "" {
		mw, err := middleware.NewTemplatedSystemPromptMiddleware(system)
		if err != nil {
			return nil, errors.Wrap(err, "system prompt template")
		}
		middlewares = append(middlewares, mw)
	}
	middlewares = append(middlewares, middleware.NewTurnLoggingMiddleware(log.Logger))
	wrapped := middleware.NewEngineWithMiddleware(eng, middlewares...)

	loopCfg := promptloop.DefaultLoopConfig()
	if n := viper.GetInt("max-steps"); n > 0 {
		loopCfg.MaxSteps = n
	}

	subtasks := promptloop.NewSubtaskExecutor(
		promptloop.WithSubtaskEngine(wrapped),
		promptloop.WithSubtaskResolver(resolver),
		promptloop.WithSubtaskDispatcher(dispatcher),
		promptloop.WithSubtaskLoopConfig(loopCfg),
	)
	taskTool, err := subtasks.AsTool()
	if err != nil {
		return nil, errors.Wrap(err, "build task tool")
	}
	if err := registry.RegisterTool(taskTool.Name, *taskTool); err != nil {
		return nil, errors.Wrap(err, "register task tool")
	}

	rt := &runtime{dispatcher: dispatcher}

	loopOpts := []promptloop.Option{
		promptloop.WithEngine(wrapped),
		promptloop.WithResolver(resolver),
		promptloop.WithDispatcher(dispatcher),
		promptloop.WithLoopConfig(loopCfg),
	}
	if dbPath := viper.GetString("db"); dbPath != "" {
		ts, err := store.Open(dbPath)
		if err != nil {
			return nil, errors.Wrap(err, "open turn store")
		}
		rt.turnStore = ts
		loopOpts = append(loopOpts, promptloop.WithSnapshotHook(ts.SnapshotHook()))
	}
	rt.loop = promptloop.New(loopOpts...)

	return rt, nil
}

func buildProvider() (providers.Provider, error) {
	switch viper.GetString("provider") {
	case "openai":
		apiKey := viper.GetString("api-key")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("no API key; pass --api-key or set OPENAI_API_KEY")
		}
		return openaichat.NewWithAPIKey(apiKey), nil
	case "ollama":
		return ollamachat.NewFromEnvironment()
	default:
		return nil, errors.Errorf("unknown provider %q", viper.GetString("provider"))
	}
}
