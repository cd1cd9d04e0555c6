package humantask

import (
	"testing"
	"time"

	"github.com/strandkit/strand/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(resume map[string]any) *models.ExecutionContext {
	return &models.ExecutionContext{
		ExecutionID:   "exec-1",
		WorkflowID:    "wf-1",
		Input:         map[string]any{"amount": 5000},
		Variables:     map[string]any{},
		TriggerData:   map[string]any{},
		ResumePayload: resume,
	}
}

func approvalNode() *models.Node {
	return &models.Node{
		ID:      "approval-1",
		Type:    models.NodeTypeHumanInTheLoop,
		Subtype: models.SubtypeDefault,
		Parameters: map[string]any{
			"message":         "Approve refund of {{ .input.amount }}?",
			"timeout_seconds": 3600,
		},
	}
}

func TestExecutor_FirstVisitSuspends(t *testing.T) {
	executor := NewExecutor()

	frozen := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	executor.now = func() time.Time { return frozen }

	result, err := executor.Execute(t.Context(), newContext(nil), approvalNode())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusWaiting, result.Status)
	assert.Empty(t, result.Port)

	require.NotNil(t, result.TimeoutAt)
	assert.Equal(t, frozen.Add(time.Hour), *result.TimeoutAt)

	assert.Equal(t, true, result.Output["awaiting"])
	assert.Equal(t, "Approve refund of 5000?", result.Output["message"])
}

func TestExecutor_ResumeApproved(t *testing.T) {
	executor := NewExecutor()

	result, err := executor.Execute(t.Context(), newContext(map[string]any{
		"approved": true,
		"approver": "ops@example.test",
	}), approvalNode())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, result.Status)
	assert.Equal(t, models.PortApproved, result.Port)
	assert.Equal(t, models.PortApproved, result.Output["decision"])
	assert.Equal(t, "ops@example.test", result.Output["approver"])
}

func TestExecutor_ResumeRejected(t *testing.T) {
	executor := NewExecutor()

	result, err := executor.Execute(t.Context(), newContext(map[string]any{
		"approved": false,
	}), approvalNode())
	require.NoError(t, err)

	assert.Equal(t, models.PortRejected, result.Port)
}

func TestExecutor_ResumeTimedOutWinsOverApproval(t *testing.T) {
	executor := NewExecutor()

	result, err := executor.Execute(t.Context(), newContext(map[string]any{
		"approved":  true,
		"timed_out": true,
	}), approvalNode())
	require.NoError(t, err)

	assert.Equal(t, models.PortTimedOut, result.Port)
}

func TestExecutor_DefaultTimeout(t *testing.T) {
	executor := NewExecutor()

	frozen := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	executor.now = func() time.Time { return frozen }

	node := &models.Node{
		ID:         "approval-1",
		Type:       models.NodeTypeHumanInTheLoop,
		Subtype:    models.SubtypeDefault,
		Parameters: map[string]any{},
	}

	result, err := executor.Execute(t.Context(), newContext(nil), node)
	require.NoError(t, err)

	require.NotNil(t, result.TimeoutAt)
	assert.Equal(t, frozen.Add(72*time.Hour), *result.TimeoutAt)
}
