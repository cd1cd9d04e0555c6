package cmd

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/strandkit/strand/pkg/executors/action"
	"github.com/strandkit/strand/pkg/executors/aiagent"
	"github.com/strandkit/strand/pkg/executors/flow"
	"github.com/strandkit/strand/pkg/executors/humantask"
	memoryexec "github.com/strandkit/strand/pkg/executors/memory"
	"github.com/strandkit/strand/pkg/executors/trigger"
	"github.com/strandkit/strand/pkg/integration"
	"github.com/strandkit/strand/pkg/llm"
	"github.com/strandkit/strand/pkg/registry"
)

// RegistryConfig carries the external endpoints the executors depend on.
type RegistryConfig struct {
	// LLMBaseURL points at an OpenAI-compatible completions API; empty
	// uses the OpenAI default.
	LLMBaseURL string
	LLMAPIKey  string

	// RedisURL enables the Redis-backed conversation memory; empty keeps
	// memory in-process.
	RedisURL string
}

// NewRegistry builds the full executor registry for a worker.
func NewRegistry(logger *slog.Logger, cfg RegistryConfig) (*registry.Registry, error) {
	r := registry.NewRegistry(logger)

	for _, executor := range trigger.NewAll() {
		r.Register(executor)
	}

	r.Register(flow.NewIfExecutor())
	r.Register(flow.NewSwitchExecutor())
	r.Register(flow.NewMergeExecutor())
	r.Register(flow.NewLoopExecutor())
	r.Register(flow.NewWaitExecutor())
	r.Register(flow.NewFilterExecutor())

	adapters := integration.NewRegistry()
	adapters.Register(integration.NewHTTPAdapter(logger))

	credentials := integration.NewEnvCredentials()

	r.Register(action.NewActionExecutor(adapters, logger))
	r.Register(action.NewExternalActionExecutor(adapters, credentials))
	r.Register(action.NewToolExecutor(adapters, credentials))

	r.Register(aiagent.NewExecutor(llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, logger), logger))

	backends := memoryexec.NewBackends()
	backends.Register(memoryexec.NewConversationBuffer(0))
	backends.Register(memoryexec.NewEntityStore())

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}

		backends.Register(memoryexec.NewRedisConversationBuffer(redis.NewClient(opts), 0))
	}

	r.Register(memoryexec.NewExecutor(backends))

	r.Register(humantask.NewExecutor())

	return r, nil
}
