// Package trigger provides the entry-point executor for trigger nodes.
// Listener lifecycles live in the trigger manager; by the time an
// execution runs, the firing already happened, so the executor only echoes
// the trigger payload into the graph.
package trigger

import (
	"context"
	"time"

	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/protocol"
)

type Executor struct {
	subtype models.NodeSubtype
}

// NewExecutor creates a trigger executor for one trigger subtype.
func NewExecutor(subtype models.NodeSubtype) *Executor {
	return &Executor{subtype: subtype}
}

// NewAll returns one executor per supported trigger subtype.
func NewAll() []protocol.Executor {
	subtypes := []models.NodeSubtype{
		models.SubtypeManual,
		models.SubtypeWebhook,
		models.SubtypeCron,
		models.SubtypeEmail,
		models.SubtypeGithub,
		models.SubtypeSlack,
	}

	executors := make([]protocol.Executor, 0, len(subtypes))
	for _, s := range subtypes {
		executors = append(executors, NewExecutor(s))
	}

	return executors
}

func (e *Executor) Type() models.NodeType { return models.NodeTypeTrigger }

func (e *Executor) Subtype() models.NodeSubtype { return e.subtype }

func (e *Executor) Execute(_ context.Context, ec *models.ExecutionContext, node *models.Node) (models.NodeResult, error) {
	output := map[string]any{
		"trigger_type": string(e.subtype),
		"fired_at":     time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range ec.TriggerData {
		output[k] = v
	}

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortMain,
		Output: output,
	}, nil
}

func (e *Executor) Schema() map[string]any { return nil }
