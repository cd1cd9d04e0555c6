package engine

import (
	"context"
	"fmt"

	"github.com/strandkit/strand/pkg/models"
)

type bodyFrame struct {
	node  *models.Node
	input map[string]any
}

// subgraphRunner builds the callback loop nodes use to run their body
// subgraph once per item. The body runs sequentially inside the loop
// node's worker goroutine and writes no run data; iteration results
// aggregate into the loop node's own output.
func (e *Engine) subgraphRunner(ctx context.Context, workflow *models.Workflow, execution *models.Execution) models.SubgraphRunner {
	return func(nodeID, port string, input map[string]any) (map[string]any, error) {
		queue := bodyTargets(workflow, nil, nodeID, port, input)
		if len(queue) == 0 {
			return input, nil
		}

		outputs := make(map[string]any)

		for len(queue) > 0 {
			f := queue[0]
			queue = queue[1:]

			if f.node.Disabled {
				queue = bodyTargets(workflow, queue, f.node.ID, models.PortMain, f.input)

				continue
			}

			executor, err := e.registry.ResolveNode(f.node)
			if err != nil {
				return nil, err
			}

			ec := &models.ExecutionContext{
				ExecutionID: execution.ID,
				WorkflowID:  workflow.ID,
				TriggerData: execution.Trigger.Payload,
				Variables:   workflow.Variables,
				Input:       f.input,
				Logger:      e.logger,
			}

			result := e.invoke(ctx, executor, ec, f.node)

			if result.Status == models.RunStatusError {
				err := result.Err
				if err == nil {
					err = fmt.Errorf("node %s failed", f.node.ID)
				}

				return nil, err
			}

			if result.Status == models.RunStatusWaiting {
				return nil, models.NewValidationError(f.node.ID, "suspending nodes are not allowed inside a loop body")
			}

			if result.Port == "" {
				continue // branch terminated (filter drop)
			}

			next := bodyTargets(workflow, nil, f.node.ID, result.Port, result.Output)
			if len(next) == 0 {
				// Leaf of the body: contribute to the iteration output.
				for k, v := range result.Output {
					outputs[k] = v
				}

				continue
			}

			queue = append(queue, next...)
		}

		return outputs, nil
	}
}

func bodyTargets(workflow *models.Workflow, queue []bodyFrame, sourceID, port string, output map[string]any) []bodyFrame {
	for _, conn := range workflow.Connections[sourceID] {
		if conn.Port != port {
			continue
		}

		if target, ok := workflow.NodeByID(conn.TargetNodeID); ok {
			queue = append(queue, bodyFrame{node: target, input: output})
		}
	}

	return queue
}
