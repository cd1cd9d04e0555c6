package flow

import (
	"context"
	"fmt"

	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/template"
)

const defaultMaxIterations = 100

// LoopExecutor iterates an input collection, re-invoking the subgraph on
// its loop_body port once per item through the engine-provided subgraph
// runner, and emits the aggregated results on done.
type LoopExecutor struct{}

func NewLoopExecutor() *LoopExecutor { return &LoopExecutor{} }

func (e *LoopExecutor) Type() models.NodeType { return models.NodeTypeFlow }

func (e *LoopExecutor) Subtype() models.NodeSubtype { return models.SubtypeLoop }

func (e *LoopExecutor) Execute(ctx context.Context, ec *models.ExecutionContext, node *models.Node) (models.NodeResult, error) {
	items, err := e.resolveItems(ec, node)
	if err != nil {
		return errorResult(node.ID, err), nil
	}

	maxIterations := node.IntParam("max_iterations", defaultMaxIterations)
	if len(items) > maxIterations {
		items = items[:maxIterations]
	}

	if ec.Subgraph == nil {
		return errorResult(node.ID, fmt.Errorf("loop node %s has no subgraph runner", node.ID)), nil
	}

	results := make([]any, 0, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return errorResult(node.ID, err), nil
		}

		iterationInput := map[string]any{
			"item":  item,
			"index": i,
		}

		out, err := ec.Subgraph(node.ID, models.PortLoopBody, iterationInput)
		if err != nil {
			return errorResult(node.ID, fmt.Errorf("loop iteration %d failed: %w", i, err)), nil
		}

		results = append(results, out)
	}

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortDone,
		Output: map[string]any{
			"results":    results,
			"iterations": len(results),
		},
	}, nil
}

// resolveItems reads the collection to iterate, either from an items
// expression or from a named field of the input.
func (e *LoopExecutor) resolveItems(ec *models.ExecutionContext, node *models.Node) ([]any, error) {
	if expr := node.StringParam("items", ""); expr != "" {
		value, err := template.RenderWithContext(expr, ec)
		if err != nil {
			return nil, fmt.Errorf("items evaluation failed: %w", err)
		}

		items, ok := value.([]any)
		if !ok {
			return nil, models.NewValidationError(node.ID, "'items' expression did not produce a collection")
		}

		return items, nil
	}

	field := node.StringParam("input_field", "items")

	items, ok := ec.Input[field].([]any)
	if !ok {
		return nil, models.NewValidationError(node.ID, fmt.Sprintf("input field %q is not a collection", field))
	}

	return items, nil
}

func (e *LoopExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items":          map[string]any{"type": "string"},
			"input_field":    map[string]any{"type": "string"},
			"max_iterations": map[string]any{"type": "integer", "minimum": 1},
		},
	}
}
