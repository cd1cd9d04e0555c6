// Package humantask provides the human-in-the-loop executor. The first
// visit suspends the execution with an awaiting marker; an out-of-band
// resume re-enters the node and routes by decision.
package humantask

import (
	"context"
	"fmt"
	"time"

	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/template"
)

const defaultTimeout = 72 * time.Hour

// Executor implements approval gates. No goroutine waits on the human:
// the engine persists state and returns, and resume is a separate
// entry point.
type Executor struct {
	now func() time.Time
}

func NewExecutor() *Executor {
	return &Executor{now: time.Now}
}

func (e *Executor) Type() models.NodeType { return models.NodeTypeHumanInTheLoop }

func (e *Executor) Subtype() models.NodeSubtype { return models.SubtypeDefault }

func (e *Executor) Execute(_ context.Context, ec *models.ExecutionContext, node *models.Node) (models.NodeResult, error) {
	if ec.ResumePayload != nil {
		return e.resume(ec, node), nil
	}

	return e.suspend(ec, node), nil
}

// suspend records the awaiting marker and hands control back to the
// engine with WAITING status.
func (e *Executor) suspend(ec *models.ExecutionContext, node *models.Node) models.NodeResult {
	timeout := defaultTimeout
	if seconds := node.IntParam("timeout_seconds", 0); seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	timeoutAt := e.now().UTC().Add(timeout)

	message := node.StringParam("message", "Approval required")
	if rendered, err := template.RenderWithContext(message, ec); err == nil {
		message = fmt.Sprintf("%v", rendered)
	}

	return models.NodeResult{
		Status:    models.RunStatusWaiting,
		TimeoutAt: &timeoutAt,
		Output: map[string]any{
			"awaiting":   true,
			"message":    message,
			"timeout_at": timeoutAt.Format(time.RFC3339),
		},
	}
}

// resume maps the decision payload to an output port. An explicit
// timed_out flag wins over approval, matching what the timeout sweeper
// delivers.
func (e *Executor) resume(ec *models.ExecutionContext, node *models.Node) models.NodeResult {
	payload := ec.ResumePayload

	port := models.PortRejected

	if timedOut, _ := payload["timed_out"].(bool); timedOut {
		port = models.PortTimedOut
	} else if approved, _ := payload["approved"].(bool); approved {
		port = models.PortApproved
	}

	output := map[string]any{
		"decision":    port,
		"resolved_at": e.now().UTC().Format(time.RFC3339),
	}

	for k, v := range payload {
		output[k] = v
	}

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   port,
		Output: output,
	}
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message":         map[string]any{"type": "string"},
			"timeout_seconds": map[string]any{"type": "integer", "minimum": 1},
		},
	}
}
