package flow

import (
	"context"
	"fmt"
	"sort"

	"github.com/strandkit/strand/pkg/models"
)

// Merge combine strategies.
const (
	MergeStrategyConcatenate = "concatenate"
	MergeStrategyLastWins    = "last_wins"
)

// MergeExecutor combines the inputs of a join barrier. The engine's router
// guarantees the node is dispatched only after all required input indices
// have arrived, so the executor only performs the combination.
type MergeExecutor struct{}

func NewMergeExecutor() *MergeExecutor { return &MergeExecutor{} }

func (e *MergeExecutor) Type() models.NodeType { return models.NodeTypeFlow }

func (e *MergeExecutor) Subtype() models.NodeSubtype { return models.SubtypeMerge }

func (e *MergeExecutor) Execute(_ context.Context, ec *models.ExecutionContext, node *models.Node) (models.NodeResult, error) {
	strategy := node.StringParam("strategy", MergeStrategyConcatenate)

	indices := make([]int, 0, len(ec.Inputs))
	for idx := range ec.Inputs {
		indices = append(indices, idx)
	}

	sort.Ints(indices)

	var output map[string]any

	switch strategy {
	case MergeStrategyConcatenate:
		combined := make([]any, 0, len(indices))
		for _, idx := range indices {
			combined = append(combined, ec.Inputs[idx])
		}

		output = map[string]any{"merged": combined}

	case MergeStrategyLastWins:
		output = make(map[string]any)
		for _, idx := range indices {
			for k, v := range ec.Inputs[idx] {
				output[k] = v
			}
		}

	default:
		return errorResult(node.ID, models.NewValidationError(node.ID, fmt.Sprintf("unknown merge strategy %q", strategy))), nil
	}

	output["inputs_received"] = len(indices)
	output["strategy"] = strategy

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortMain,
		Output: output,
	}, nil
}

func (e *MergeExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"strategy": map[string]any{
				"type": "string",
				"enum": []any{MergeStrategyConcatenate, MergeStrategyLastWins},
			},
		},
	}
}
