// Package aiagent provides the executor that calls external LLM
// providers, including memory context merging and content-level error
// sniffing for providers that return errors inside successful replies.
package aiagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/strandkit/strand/pkg/executors/memory"
	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/protocol"
	"github.com/strandkit/strand/pkg/template"
)

const (
	defaultModel         = "gpt-4o-mini"
	defaultTemperature   = 0.7
	defaultMaxTokens     = 1024
	defaultCallTimeout   = 60 * time.Second
	minContentLength     = 2
	defaultContextBudget = 2000
)

// errorPrefixes mark provider responses that are errors dressed up as
// content. Checked case-insensitively against the trimmed reply.
var errorPrefixes = []string{
	"error:",
	"internal error",
	`{"error"`,
	"i'm sorry, but i cannot",
}

// Executor builds a prompt from node parameters and upstream context,
// invokes the LLM provider, and classifies failures for retry policy.
type Executor struct {
	client protocol.LLMClient
	logger *slog.Logger
}

func NewExecutor(client protocol.LLMClient, logger *slog.Logger) *Executor {
	return &Executor{
		client: client,
		logger: logger.With("module", "ai_agent_executor"),
	}
}

func (e *Executor) Type() models.NodeType { return models.NodeTypeAIAgent }

func (e *Executor) Subtype() models.NodeSubtype { return models.SubtypeDefault }

func (e *Executor) Execute(ctx context.Context, ec *models.ExecutionContext, node *models.Node) (models.NodeResult, error) {
	promptExpr := node.StringParam("prompt", "")
	if promptExpr == "" {
		return errorResult(node.ID, models.NewValidationError(node.ID, "missing required parameter 'prompt'")), nil
	}

	rendered, err := template.RenderWithContext(promptExpr, ec)
	if err != nil {
		return errorResult(node.ID, fmt.Errorf("prompt evaluation failed: %w", err)), nil
	}

	userPrompt := fmt.Sprintf("%v", rendered)
	systemPrompt := node.StringParam("system_prompt", "")

	merged := e.mergeMemoryContext(ec, node)
	if merged.Content != "" {
		systemPrompt = strings.TrimSpace(systemPrompt + "\n\nRelevant context:\n" + merged.Content)
	}

	call := protocol.LLMCall{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Model:        node.StringParam("model", defaultModel),
		Temperature:  floatParam(node, "temperature", defaultTemperature),
		MaxTokens:    node.IntParam("max_tokens", defaultMaxTokens),
	}

	timeout := time.Duration(node.IntParam("timeout_seconds", int(defaultCallTimeout/time.Second))) * time.Second

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.logger.DebugContext(ctx, "Calling LLM provider",
		"execution_id", ec.ExecutionID,
		"node_id", node.ID,
		"model", call.Model,
		"context_sources", merged.Sources,
	)

	response, err := e.client.Call(callCtx, call)
	if err != nil {
		return errorResult(node.ID, classifyCallError(node.ID, callCtx, err)), nil
	}

	if err := sniffContent(response.Content); err != nil {
		return errorResult(node.ID, err), nil
	}

	output := map[string]any{
		"content": response.Content,
		"model":   call.Model,
		"usage": map[string]any{
			"prompt_tokens":     response.Usage.PromptTokens,
			"completion_tokens": response.Usage.CompletionTokens,
			"total_tokens":      response.Usage.TotalTokens,
		},
	}

	if len(merged.Sources) > 0 {
		output["context_sources"] = merged.Sources
		output["context_tokens"] = merged.EstimatedTokens
	}

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortMain,
		Output: output,
	}, nil
}

// mergeMemoryContext collects context items emitted by upstream memory
// nodes and merges them under the node's token budget.
func (e *Executor) mergeMemoryContext(ec *models.ExecutionContext, node *models.Node) memory.MergedContext {
	var items []memory.ContextItem

	for _, input := range ec.Inputs {
		items = append(items, memory.ItemsFromOutput(input)...)
	}

	items = append(items, memory.ItemsFromOutput(ec.Input)...)

	if len(items) == 0 {
		return memory.MergedContext{}
	}

	return memory.MergeContexts(items, memory.MergeConfig{
		Strategy:    node.StringParam("merge_strategy", memory.StrategyBalanced),
		TokenBudget: node.IntParam("token_budget", defaultContextBudget),
	})
}

// classifyCallError maps provider failures onto the retry taxonomy. A
// deadline hit on our side counts as a timeout even if the client
// returns a wrapped transport error.
func classifyCallError(nodeID string, callCtx context.Context, err error) error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return models.NewNodeExecutionError(nodeID, models.ErrorKindTimeout, err)
	}

	return models.NewNodeExecutionError(nodeID, protocol.Classify(err), err)
}

// sniffContent rejects replies that arrived with a success status but
// carry no usable content.
func sniffContent(content string) error {
	trimmed := strings.TrimSpace(content)

	if trimmed == "" {
		return &models.ResponseContentError{Reason: "empty response", Content: content}
	}

	if len(trimmed) < minContentLength {
		return &models.ResponseContentError{Reason: "response too short", Content: content}
	}

	lowered := strings.ToLower(trimmed)
	for _, prefix := range errorPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return &models.ResponseContentError{Reason: "error payload in successful response", Content: content}
		}
	}

	return nil
}

func floatParam(node *models.Node, key string, fallback float64) float64 {
	switch v := node.Parameters[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

func errorResult(nodeID string, err error) models.NodeResult {
	return models.NodeResult{
		Status: models.RunStatusError,
		Err:    err,
		Output: map[string]any{"error": err.Error()},
	}
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt":          map[string]any{"type": "string", "minLength": 1},
			"system_prompt":   map[string]any{"type": "string"},
			"model":           map[string]any{"type": "string"},
			"temperature":     map[string]any{"type": "number", "minimum": 0, "maximum": 2},
			"max_tokens":      map[string]any{"type": "integer", "minimum": 1},
			"timeout_seconds": map[string]any{"type": "integer", "minimum": 1},
			"merge_strategy": map[string]any{
				"type": "string",
				"enum": []any{memory.StrategyPriority, memory.StrategyBalanced, memory.StrategyConversationFirst},
			},
			"token_budget": map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []any{"prompt"},
	}
}
