package action

import (
	"context"

	"github.com/strandkit/strand/pkg/integration"
	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/protocol"
)

// ExternalActionExecutor calls a third-party service through an
// integration adapter, resolving credentials first. Unlike the plain
// action executor it has no built-in operations: everything goes
// through an adapter, and every adapter call carries its own timeout.
type ExternalActionExecutor struct {
	adapters    *integration.Registry
	credentials protocol.CredentialProvider
}

func NewExternalActionExecutor(adapters *integration.Registry, credentials protocol.CredentialProvider) *ExternalActionExecutor {
	return &ExternalActionExecutor{adapters: adapters, credentials: credentials}
}

func (e *ExternalActionExecutor) Type() models.NodeType { return models.NodeTypeExternalAction }

func (e *ExternalActionExecutor) Subtype() models.NodeSubtype { return models.SubtypeDefault }

func (e *ExternalActionExecutor) Execute(ctx context.Context, ec *models.ExecutionContext, node *models.Node) (models.NodeResult, error) {
	operation := node.StringParam("operation", "")
	if operation == "" {
		return errorResult(node.ID, models.NewValidationError(node.ID, "missing required parameter 'operation'")), nil
	}

	return executeAdapterCall(ctx, e.adapters, e.credentials, ec, node, operation)
}

func (e *ExternalActionExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"integration": map[string]any{"type": "string", "minLength": 1},
			"operation":   map[string]any{"type": "string", "minLength": 1},
			"user_id":     map[string]any{"type": "string"},
			"parameters":  map[string]any{"type": "object"},
		},
		"required": []any{"integration", "operation"},
	}
}
