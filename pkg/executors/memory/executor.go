package memory

import (
	"context"
	"fmt"

	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/template"
)

const defaultRetrieveLimit = 10

// Executor reads and writes named memory backends. The get_context
// operation emits scored context items; when several memory nodes feed
// one AI agent node the agent merges those item sets under its token
// budget.
type Executor struct {
	backends *Backends
}

func NewExecutor(backends *Backends) *Executor {
	return &Executor{backends: backends}
}

func (e *Executor) Type() models.NodeType { return models.NodeTypeMemory }

func (e *Executor) Subtype() models.NodeSubtype { return models.SubtypeDefault }

func (e *Executor) Execute(ctx context.Context, ec *models.ExecutionContext, node *models.Node) (models.NodeResult, error) {
	operation := node.StringParam("operation", "")
	if operation == "" {
		return errorResult(node.ID, models.NewValidationError(node.ID, "missing required parameter 'operation'")), nil
	}

	backendName := node.StringParam("backend", "conversation_buffer")

	backend, err := e.backends.Resolve(backendName)
	if err != nil {
		return errorResult(node.ID, models.NewValidationError(node.ID, err.Error())), nil
	}

	scope, err := e.resolveScope(ec, node)
	if err != nil {
		return errorResult(node.ID, err), nil
	}

	switch operation {
	case "store":
		return e.executeStore(ctx, ec, node, backend, scope)
	case "retrieve":
		return e.executeRetrieve(ctx, node, backend, scope)
	case "get_context":
		return e.executeGetContext(ctx, node, backend, scope)
	default:
		return errorResult(node.ID, models.NewValidationError(node.ID, fmt.Sprintf("unknown memory operation %q", operation))), nil
	}
}

// resolveScope renders the scope expression, defaulting to the workflow
// ID so workflows share memory across executions unless told otherwise.
func (e *Executor) resolveScope(ec *models.ExecutionContext, node *models.Node) (string, error) {
	scopeExpr := node.StringParam("scope", "")
	if scopeExpr == "" {
		return ec.WorkflowID, nil
	}

	scope, err := template.RenderWithContext(scopeExpr, ec)
	if err != nil {
		return "", fmt.Errorf("scope evaluation failed: %w", err)
	}

	return fmt.Sprintf("%v", scope), nil
}

func (e *Executor) executeStore(ctx context.Context, ec *models.ExecutionContext, node *models.Node, backend Backend, scope string) (models.NodeResult, error) {
	record, ok := node.Parameters["record"].(map[string]any)
	if !ok {
		// Default to persisting the node input itself.
		record = ec.Input
	}

	if err := backend.Store(ctx, scope, record); err != nil {
		return errorResult(node.ID, models.NewNodeExecutionError(node.ID, models.ErrorKindUnknown, err)), nil
	}

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortMain,
		Output: map[string]any{"stored": true, "scope": scope, "backend": backend.Name()},
	}, nil
}

func (e *Executor) executeRetrieve(ctx context.Context, node *models.Node, backend Backend, scope string) (models.NodeResult, error) {
	limit := node.IntParam("limit", defaultRetrieveLimit)

	records, err := backend.Retrieve(ctx, scope, limit)
	if err != nil {
		return errorResult(node.ID, models.NewNodeExecutionError(node.ID, models.ErrorKindUnknown, err)), nil
	}

	recordsAny := make([]any, len(records))
	for i, r := range records {
		recordsAny[i] = r
	}

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortMain,
		Output: map[string]any{"records": recordsAny, "count": len(records), "scope": scope},
	}, nil
}

func (e *Executor) executeGetContext(ctx context.Context, node *models.Node, backend Backend, scope string) (models.NodeResult, error) {
	limit := node.IntParam("limit", defaultRetrieveLimit)

	items, err := backend.GetContext(ctx, scope, limit)
	if err != nil {
		return errorResult(node.ID, models.NewNodeExecutionError(node.ID, models.ErrorKindUnknown, err)), nil
	}

	// Per-source priority override from node configuration.
	if priority := node.IntParam("priority", 0); priority > 0 {
		for i := range items {
			items[i].Priority = priority
		}
	}

	itemsAny := make([]any, len(items))
	for i, item := range items {
		itemsAny[i] = map[string]any{
			"source":          item.Source,
			"kind":            item.Kind,
			"content":         item.Content,
			"relevance_score": item.RelevanceScore,
			"priority":        item.Priority,
			"timestamp":       item.Timestamp,
		}
	}

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortMain,
		Output: map[string]any{
			"context_items": itemsAny,
			"source":        backend.Name(),
			"scope":         scope,
		},
	}, nil
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []any{"store", "retrieve", "get_context"},
			},
			"backend":  map[string]any{"type": "string"},
			"scope":    map[string]any{"type": "string"},
			"record":   map[string]any{"type": "object"},
			"limit":    map[string]any{"type": "integer", "minimum": 1},
			"priority": map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
		},
		"required": []any{"operation"},
	}
}

func errorResult(nodeID string, err error) models.NodeResult {
	return models.NodeResult{
		Status: models.RunStatusError,
		Err:    err,
		Output: map[string]any{"error": err.Error()},
	}
}
