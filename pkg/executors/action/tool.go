package action

import (
	"context"

	"github.com/strandkit/strand/pkg/integration"
	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/protocol"
)

// ToolExecutor exposes integration operations as tools for agent
// workflows. It shares the adapter dispatch with action nodes but
// normalizes output under a tool_result key so downstream AI agent
// nodes consume a stable shape.
type ToolExecutor struct {
	adapters    *integration.Registry
	credentials protocol.CredentialProvider
}

func NewToolExecutor(adapters *integration.Registry, credentials protocol.CredentialProvider) *ToolExecutor {
	return &ToolExecutor{adapters: adapters, credentials: credentials}
}

func (e *ToolExecutor) Type() models.NodeType { return models.NodeTypeTool }

func (e *ToolExecutor) Subtype() models.NodeSubtype { return models.SubtypeDefault }

func (e *ToolExecutor) Execute(ctx context.Context, ec *models.ExecutionContext, node *models.Node) (models.NodeResult, error) {
	operation := node.StringParam("operation", "")
	if operation == "" {
		return errorResult(node.ID, models.NewValidationError(node.ID, "missing required parameter 'operation'")), nil
	}

	result, err := executeAdapterCall(ctx, e.adapters, e.credentials, ec, node, operation)
	if err != nil || result.Status != models.RunStatusSuccess {
		return result, err
	}

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortMain,
		Output: map[string]any{
			"tool":        node.StringParam("integration", "http"),
			"operation":   operation,
			"tool_result": result.Output,
		},
	}, nil
}

func (e *ToolExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"integration": map[string]any{"type": "string", "minLength": 1},
			"operation":   map[string]any{"type": "string", "minLength": 1},
			"user_id":     map[string]any{"type": "string"},
			"parameters":  map[string]any{"type": "object"},
		},
		"required": []any{"operation"},
	}
}
