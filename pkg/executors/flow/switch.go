package flow

import (
	"context"
	"fmt"

	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/template"
)

// SwitchExecutor evaluates a discriminator expression and routes to the
// output port of the matching case, or to default when nothing matches.
type SwitchExecutor struct{}

func NewSwitchExecutor() *SwitchExecutor { return &SwitchExecutor{} }

func (e *SwitchExecutor) Type() models.NodeType { return models.NodeTypeFlow }

func (e *SwitchExecutor) Subtype() models.NodeSubtype { return models.SubtypeSwitch }

func (e *SwitchExecutor) Execute(_ context.Context, ec *models.ExecutionContext, node *models.Node) (models.NodeResult, error) {
	discriminator := node.StringParam("value", "")
	if discriminator == "" {
		return errorResult(node.ID, models.NewValidationError(node.ID, "missing required parameter 'value'")), nil
	}

	cases, err := parseCases(node)
	if err != nil {
		return errorResult(node.ID, err), nil
	}

	value, err := template.RenderWithContext(discriminator, ec)
	if err != nil {
		return errorResult(node.ID, fmt.Errorf("value evaluation failed: %w", err)), nil
	}

	valueStr := fmt.Sprintf("%v", value)

	port := models.PortDefault
	if match, ok := cases[valueStr]; ok {
		port = match
	}

	output := map[string]any{
		"matched_value": valueStr,
		"output_port":   port,
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

// parseCases reads the case_value -> output_port mapping from parameters.
func parseCases(node *models.Node) (map[string]string, error) {
	cases := make(map[string]string)

	casesConfig, ok := node.Parameters["cases"].([]any)
	if !ok {
		return cases, nil
	}

	for i, caseAny := range casesConfig {
		caseMap, ok := caseAny.(map[string]any)
		if !ok {
			return nil, models.NewValidationError(node.ID, fmt.Sprintf("case %d must be an object", i))
		}

		caseValue, ok := caseMap["value"].(string)
		if !ok {
			return nil, models.NewValidationError(node.ID, fmt.Sprintf("case %d missing 'value'", i))
		}

		outputPort, ok := caseMap["output_port"].(string)
		if !ok {
			return nil, models.NewValidationError(node.ID, fmt.Sprintf("case %d missing 'output_port'", i))
		}

		cases[caseValue] = outputPort
	}

	return cases, nil
}

func (e *SwitchExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{"type": "string", "minLength": 1},
			"cases": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"value":       map[string]any{"type": "string"},
						"output_port": map[string]any{"type": "string"},
					},
					"required": []any{"value", "output_port"},
				},
			},
		},
		"required": []any{"value"},
	}
}
