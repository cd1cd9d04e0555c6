// Package action provides the executors that perform work: plain actions
// (format, log, integration calls), external actions against third-party
// services, and tool invocations on behalf of AI agents.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/strandkit/strand/pkg/integration"
	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/protocol"
	"github.com/strandkit/strand/pkg/template"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// ActionExecutor runs a named operation. The format and log operations
// are built in; anything else dispatches through the integration
// registry.
type ActionExecutor struct {
	adapters *integration.Registry
	logger   *slog.Logger
}

func NewActionExecutor(adapters *integration.Registry, logger *slog.Logger) *ActionExecutor {
	return &ActionExecutor{
		adapters: adapters,
		logger:   logger.With("module", "action_executor"),
	}
}

func (e *ActionExecutor) Type() models.NodeType { return models.NodeTypeAction }

func (e *ActionExecutor) Subtype() models.NodeSubtype { return models.SubtypeDefault }

func (e *ActionExecutor) Execute(ctx context.Context, ec *models.ExecutionContext, node *models.Node) (models.NodeResult, error) {
	operation := node.StringParam("operation", "")
	if operation == "" {
		return errorResult(node.ID, models.NewValidationError(node.ID, "missing required parameter 'operation'")), nil
	}

	switch operation {
	case "format":
		return e.executeFormat(ec, node), nil
	case "log":
		return e.executeLog(ctx, ec, node), nil
	default:
		return executeAdapterCall(ctx, e.adapters, nil, ec, node, operation)
	}
}

// executeFormat substitutes {field} placeholders in the template parameter
// with values from the node's input.
func (e *ActionExecutor) executeFormat(ec *models.ExecutionContext, node *models.Node) models.NodeResult {
	formatStr := node.StringParam("template", "")
	if formatStr == "" {
		return errorResult(node.ID, models.NewValidationError(node.ID, "format operation requires 'template'"))
	}

	result := placeholderPattern.ReplaceAllStringFunc(formatStr, func(match string) string {
		field := match[1 : len(match)-1]
		if value, ok := ec.Input[field]; ok {
			return fmt.Sprintf("%v", value)
		}

		return match
	})

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortMain,
		Output: map[string]any{"result": result},
	}
}

func (e *ActionExecutor) executeLog(ctx context.Context, ec *models.ExecutionContext, node *models.Node) models.NodeResult {
	message := node.StringParam("message", "")

	rendered, err := template.RenderWithContext(message, ec)
	if err != nil {
		return errorResult(node.ID, fmt.Errorf("message evaluation failed: %w", err))
	}

	e.logger.InfoContext(ctx, "Workflow log action",
		"execution_id", ec.ExecutionID,
		"node_id", node.ID,
		"message", rendered,
	)

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortMain,
		Output: map[string]any{"logged": rendered},
	}
}

func (e *ActionExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{"type": "string", "minLength": 1},
			"template":  map[string]any{"type": "string"},
			"message":   map[string]any{"type": "string"},
		},
		"required": []any{"operation"},
	}
}

// executeAdapterCall is the shared integration dispatch used by action,
// external action, and tool executors. Parameters are rendered against
// the execution context before the call.
func executeAdapterCall(
	ctx context.Context,
	adapters *integration.Registry,
	credentials protocol.CredentialProvider,
	ec *models.ExecutionContext,
	node *models.Node,
	operation string,
) (models.NodeResult, error) {
	adapterName := node.StringParam("integration", "http")

	adapter, err := adapters.Resolve(adapterName)
	if err != nil {
		return errorResult(node.ID, models.NewValidationError(node.ID, err.Error())), nil
	}

	parameters, err := renderParameters(ec, node)
	if err != nil {
		return errorResult(node.ID, err), nil
	}

	creds := map[string]string{}

	if credentials != nil {
		if userID := node.StringParam("user_id", ""); userID != "" {
			token, err := credentials.GetValidToken(ctx, userID, adapterName)
			if err != nil {
				kind := models.ErrorKindAuth

				return errorResult(node.ID, models.NewNodeExecutionError(node.ID, kind, err)), nil
			}

			creds["token"] = token
		}
	}

	output, err := adapter.Call(ctx, operation, parameters, creds)
	if err != nil {
		return errorResult(node.ID, models.NewNodeExecutionError(node.ID, protocol.Classify(err), err)), nil
	}

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortMain,
		Output: output,
	}, nil
}

// renderParameters evaluates string parameter values as expressions so
// node configuration can reference upstream output.
func renderParameters(ec *models.ExecutionContext, node *models.Node) (map[string]any, error) {
	raw, _ := node.Parameters["parameters"].(map[string]any)

	rendered := make(map[string]any, len(raw))

	for key, value := range raw {
		str, ok := value.(string)
		if !ok {
			rendered[key] = value

			continue
		}

		out, err := template.RenderWithContext(str, ec)
		if err != nil {
			return nil, fmt.Errorf("parameter %q evaluation failed: %w", key, err)
		}

		rendered[key] = out
	}

	return rendered, nil
}

func errorResult(nodeID string, err error) models.NodeResult {
	return models.NodeResult{
		Status: models.RunStatusError,
		Err:    err,
		Output: map[string]any{"error": err.Error()},
	}
}
