package flow

import (
	"context"
	"fmt"

	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/template"
)

// FilterExecutor passes input matching a predicate through on main and
// drops non-matching input by emitting no port at all, terminating the
// branch without downstream dispatch.
type FilterExecutor struct{}

func NewFilterExecutor() *FilterExecutor { return &FilterExecutor{} }

func (e *FilterExecutor) Type() models.NodeType { return models.NodeTypeFlow }

func (e *FilterExecutor) Subtype() models.NodeSubtype { return models.SubtypeFilter }

func (e *FilterExecutor) Execute(_ context.Context, ec *models.ExecutionContext, node *models.Node) (models.NodeResult, error) {
	predicate := node.StringParam("predicate", "")
	if predicate == "" {
		return errorResult(node.ID, models.NewValidationError(node.ID, "missing required parameter 'predicate'")), nil
	}

	value, err := template.RenderWithContext(predicate, ec)
	if err != nil {
		return errorResult(node.ID, fmt.Errorf("predicate evaluation failed: %w", err)), nil
	}

	if !template.Truthy(value) {
		// Dropped: success with no output port.
		return models.NodeResult{
			Status: models.RunStatusSuccess,
			Output: map[string]any{"matched": false},
		}, nil
	}

	output := map[string]any{"matched": true}
	for k, v := range ec.Input {
		output[k] = v
	}

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortMain,
		Output: output,
	}, nil
}

func (e *FilterExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"predicate": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []any{"predicate"},
	}
}
