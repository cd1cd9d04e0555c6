// Package flow provides the control-flow executors: if, switch, merge,
// loop, wait, and filter. Flow nodes have no side effects beyond choosing
// an output port.
package flow

import (
	"context"
	"fmt"

	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/template"
)

// IfExecutor routes its input to true_path or false_path based on a
// boolean condition expression.
type IfExecutor struct{}

func NewIfExecutor() *IfExecutor { return &IfExecutor{} }

func (e *IfExecutor) Type() models.NodeType { return models.NodeTypeFlow }

func (e *IfExecutor) Subtype() models.NodeSubtype { return models.SubtypeIf }

func (e *IfExecutor) Execute(_ context.Context, ec *models.ExecutionContext, node *models.Node) (models.NodeResult, error) {
	condition := node.StringParam("condition", "")
	if condition == "" {
		return errorResult(node.ID, models.NewValidationError(node.ID, "missing required parameter 'condition'")), nil
	}

	value, err := template.RenderWithContext(condition, ec)
	if err != nil {
		return errorResult(node.ID, fmt.Errorf("condition evaluation failed: %w", err)), nil
	}

	port := models.PortFalsePath
	if template.Truthy(value) {
		port = models.PortTruePath
	}

	output := map[string]any{
		"condition_result": port == models.PortTruePath,
		"evaluated_value":  value,
	}

	for k, v := range ec.Input {
		output[k] = v
	}

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   port,
		Output: output,
	}, nil
}

func (e *IfExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []any{"condition"},
	}
}

// errorResult reports a node-level failure the engine can apply the
// on_error policy to.
func errorResult(nodeID string, err error) models.NodeResult {
	return models.NodeResult{
		Status: models.RunStatusError,
		Err:    err,
		Output: map[string]any{"error": err.Error()},
	}
}
