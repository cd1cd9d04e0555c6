package flow

import (
	"context"
	"time"

	"github.com/strandkit/strand/pkg/models"
)

// WaitExecutor delays for a duration or until a wall-clock time before
// emitting its input on main. The delay is cooperative: cancellation of
// the execution context aborts the wait.
type WaitExecutor struct{}

func NewWaitExecutor() *WaitExecutor { return &WaitExecutor{} }

func (e *WaitExecutor) Type() models.NodeType { return models.NodeTypeFlow }

func (e *WaitExecutor) Subtype() models.NodeSubtype { return models.SubtypeWait }

func (e *WaitExecutor) Execute(ctx context.Context, ec *models.ExecutionContext, node *models.Node) (models.NodeResult, error) {
	delay, err := e.resolveDelay(node)
	if err != nil {
		return errorResult(node.ID, err), nil
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return errorResult(node.ID, ctx.Err()), nil
		}
	}

	output := map[string]any{"waited": delay.String()}
	for k, v := range ec.Input {
		output[k] = v
	}

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortMain,
		Output: output,
	}, nil
}

func (e *WaitExecutor) resolveDelay(node *models.Node) (time.Duration, error) {
	if durationStr := node.StringParam("duration", ""); durationStr != "" {
		delay, err := time.ParseDuration(durationStr)
		if err != nil {
			return 0, models.NewValidationError(node.ID, "invalid 'duration': "+err.Error())
		}

		return delay, nil
	}

	if untilStr := node.StringParam("until", ""); untilStr != "" {
		until, err := time.Parse(time.RFC3339, untilStr)
		if err != nil {
			return 0, models.NewValidationError(node.ID, "invalid 'until' timestamp: "+err.Error())
		}

		delay := time.Until(until)
		if delay < 0 {
			delay = 0
		}

		return delay, nil
	}

	return 0, models.NewValidationError(node.ID, "wait node requires 'duration' or 'until'")
}

func (e *WaitExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration": map[string]any{"type": "string"},
			"until":    map[string]any{"type": "string"},
		},
	}
}
