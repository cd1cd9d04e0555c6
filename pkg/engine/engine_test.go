package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/strandkit/strand/pkg/executors/action"
	"github.com/strandkit/strand/pkg/executors/flow"
	"github.com/strandkit/strand/pkg/executors/humantask"
	"github.com/strandkit/strand/pkg/executors/trigger"
	"github.com/strandkit/strand/pkg/integration"
	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/persistence/memory"
	"github.com/strandkit/strand/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	r := registry.NewRegistry(slog.Default())

	for _, executor := range trigger.NewAll() {
		r.Register(executor)
	}

	r.Register(flow.NewIfExecutor())
	r.Register(flow.NewSwitchExecutor())
	r.Register(flow.NewMergeExecutor())
	r.Register(flow.NewLoopExecutor())
	r.Register(flow.NewWaitExecutor())
	r.Register(flow.NewFilterExecutor())
	r.Register(action.NewActionExecutor(integration.NewRegistry(), slog.Default()))
	r.Register(humantask.NewExecutor())

	return r
}

func newTestEngine(t *testing.T) (*Engine, *memory.Memory) {
	t.Helper()

	p := memory.NewPersistence()
	e := NewEngine(p, newTestRegistry(t), slog.Default(), Config{BranchParallelism: 4})

	return e, p
}

func formatNode(id, tmpl string) *models.Node {
	return &models.Node{
		ID:      id,
		Type:    models.NodeTypeAction,
		Subtype: models.SubtypeDefault,
		Parameters: map[string]any{
			"operation": "format",
			"template":  tmpl,
		},
	}
}

func manualTriggerNode(id string) *models.Node {
	return &models.Node{
		ID:         id,
		Type:       models.NodeTypeTrigger,
		Subtype:    models.SubtypeManual,
		Parameters: map[string]any{},
	}
}

// branchingWorkflow is the trigger -> if -> {format high, format low} graph.
func branchingWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:               "wf-branch",
		Name:             "Priority routing",
		DeploymentStatus: models.DeploymentStatusDeployed,
		Nodes: []*models.Node{
			manualTriggerNode("trigger-1"),
			{
				ID:      "if-1",
				Type:    models.NodeTypeFlow,
				Subtype: models.SubtypeIf,
				Parameters: map[string]any{
					"condition": `{{ eq .input.priority "high" }}`,
				},
			},
			formatNode("format-high", "HIGH: {msg}"),
			formatNode("format-low", "low: {msg}"),
		},
		Connections: map[string][]*models.Connection{
			"trigger-1": {
				{SourceNodeID: "trigger-1", TargetNodeID: "if-1", Port: models.PortMain},
			},
			"if-1": {
				{SourceNodeID: "if-1", TargetNodeID: "format-high", Port: models.PortTruePath},
				{SourceNodeID: "if-1", TargetNodeID: "format-low", Port: models.PortFalsePath},
			},
		},
	}
}

func manualTrigger(payload map[string]any) models.TriggerInfo {
	return models.TriggerInfo{
		Type:        models.SubtypeManual,
		Fingerprint: "manual-test",
		Payload:     payload,
	}
}

func TestExecute_HighPriorityBranch(t *testing.T) {
	e, p := newTestEngine(t)

	execution, err := e.Execute(t.Context(), branchingWorkflow(), manualTrigger(map[string]any{
		"priority": "high",
		"msg":      "x",
	}))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, "HIGH: x", execution.RunData["format-high"].OutputData["result"])
	assert.Equal(t, models.RunStatusSkipped, execution.RunData["format-low"].Status)

	// Persisted copy matches the terminal state.
	saved, err := p.ExecutionByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, saved.Status)
}

func TestExecute_LowPriorityBranch(t *testing.T) {
	e, _ := newTestEngine(t)

	execution, err := e.Execute(t.Context(), branchingWorkflow(), manualTrigger(map[string]any{
		"priority": "low",
		"msg":      "y",
	}))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, "low: y", execution.RunData["format-low"].OutputData["result"])
	assert.Equal(t, models.RunStatusSkipped, execution.RunData["format-high"].Status)
}

func TestExecute_RejectsUndeployedWorkflow(t *testing.T) {
	e, _ := newTestEngine(t)

	workflow := branchingWorkflow()
	workflow.DeploymentStatus = models.DeploymentStatusPending

	_, err := e.Execute(t.Context(), workflow, manualTrigger(nil))

	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
}

func TestExecute_MergeWaitsForAllInputsAndFiresOnce(t *testing.T) {
	e, _ := newTestEngine(t)

	workflow := &models.Workflow{
		ID:               "wf-merge",
		Name:             "Fan out and join",
		DeploymentStatus: models.DeploymentStatusDeployed,
		Nodes: []*models.Node{
			manualTriggerNode("trigger-1"),
			formatNode("left", "left: {msg}"),
			formatNode("right", "right: {msg}"),
			{
				ID:      "merge-1",
				Type:    models.NodeTypeFlow,
				Subtype: models.SubtypeMerge,
				Parameters: map[string]any{
					"strategy": "concatenate",
				},
			},
		},
		Connections: map[string][]*models.Connection{
			"trigger-1": {
				{SourceNodeID: "trigger-1", TargetNodeID: "left", Port: models.PortMain},
				{SourceNodeID: "trigger-1", TargetNodeID: "right", Port: models.PortMain},
			},
			"left": {
				{SourceNodeID: "left", TargetNodeID: "merge-1", Port: models.PortMain, TargetInputIndex: 0},
			},
			"right": {
				{SourceNodeID: "right", TargetNodeID: "merge-1", Port: models.PortMain, TargetInputIndex: 1},
			},
		},
	}

	execution, err := e.Execute(t.Context(), workflow, manualTrigger(map[string]any{"msg": "m"}))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)

	mergeRun := execution.RunData["merge-1"]
	require.NotNil(t, mergeRun)
	assert.Equal(t, models.RunStatusSuccess, mergeRun.Status)
	assert.Equal(t, 1, mergeRun.AttemptCount)

	merged, ok := mergeRun.OutputData["merged"].([]any)
	require.True(t, ok)
	assert.Len(t, merged, 2)
}

func TestExecute_ContinuePolicyIsolatesBranches(t *testing.T) {
	e, _ := newTestEngine(t)

	workflow := &models.Workflow{
		ID:               "wf-continue",
		Name:             "Continue on branch failure",
		DeploymentStatus: models.DeploymentStatusDeployed,
		Nodes: []*models.Node{
			manualTriggerNode("trigger-1"),
			{
				ID:      "broken",
				Type:    models.NodeTypeFlow,
				Subtype: models.SubtypeIf,
				// Missing condition parameter: always fails.
				Parameters: map[string]any{},
				OnError:    models.OnError{Policy: models.ErrorPolicyContinue},
			},
			formatNode("healthy", "ok: {msg}"),
			formatNode("downstream-of-broken", "never: {msg}"),
		},
		Connections: map[string][]*models.Connection{
			"trigger-1": {
				{SourceNodeID: "trigger-1", TargetNodeID: "broken", Port: models.PortMain},
				{SourceNodeID: "trigger-1", TargetNodeID: "healthy", Port: models.PortMain},
			},
			"broken": {
				{SourceNodeID: "broken", TargetNodeID: "downstream-of-broken", Port: models.PortTruePath},
			},
		},
	}

	execution, err := e.Execute(t.Context(), workflow, manualTrigger(map[string]any{"msg": "m"}))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, models.RunStatusError, execution.RunData["broken"].Status)
	assert.Equal(t, "ok: m", execution.RunData["healthy"].OutputData["result"])
	assert.Equal(t, models.RunStatusSkipped, execution.RunData["downstream-of-broken"].Status)
}

func TestExecute_StopWorkflowPolicyFailsExecution(t *testing.T) {
	e, _ := newTestEngine(t)

	workflow := &models.Workflow{
		ID:               "wf-stop",
		Name:             "Stop on failure",
		DeploymentStatus: models.DeploymentStatusDeployed,
		Nodes: []*models.Node{
			manualTriggerNode("trigger-1"),
			{
				ID:         "broken",
				Type:       models.NodeTypeFlow,
				Subtype:    models.SubtypeIf,
				Parameters: map[string]any{},
			},
			formatNode("after", "x: {msg}"),
		},
		Connections: map[string][]*models.Connection{
			"trigger-1": {
				{SourceNodeID: "trigger-1", TargetNodeID: "broken", Port: models.PortMain},
			},
			"broken": {
				{SourceNodeID: "broken", TargetNodeID: "after", Port: models.PortTruePath},
			},
		},
	}

	execution, err := e.Execute(t.Context(), workflow, manualTrigger(nil))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusError, execution.Status)
	assert.Contains(t, execution.ErrorMessage, "broken")
}

// flakyExecutor fails with a retryable error until succeedAfter attempts.
type flakyExecutor struct {
	calls        atomic.Int32
	succeedAfter int32
}

func (f *flakyExecutor) Type() models.NodeType { return models.NodeTypeExternalAction }

func (f *flakyExecutor) Subtype() models.NodeSubtype { return models.SubtypeDefault }

func (f *flakyExecutor) Execute(_ context.Context, _ *models.ExecutionContext, node *models.Node) (models.NodeResult, error) {
	call := f.calls.Add(1)

	if call < f.succeedAfter {
		err := models.NewNodeExecutionError(node.ID, models.ErrorKindNetwork, errors.New("connection reset"))

		return models.NodeResult{Status: models.RunStatusError, Err: err}, nil
	}

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortMain,
		Output: map[string]any{"attempt": int(call)},
	}, nil
}

func (f *flakyExecutor) Schema() map[string]any { return nil }

func TestExecute_RetryPolicyRecovers(t *testing.T) {
	p := memory.NewPersistence()
	r := registry.NewRegistry(slog.Default())

	for _, executor := range trigger.NewAll() {
		r.Register(executor)
	}

	flaky := &flakyExecutor{succeedAfter: 3}
	r.Register(flaky)

	e := NewEngine(p, r, slog.Default(), Config{})

	workflow := &models.Workflow{
		ID:               "wf-retry",
		Name:             "Retry until success",
		DeploymentStatus: models.DeploymentStatusDeployed,
		Nodes: []*models.Node{
			manualTriggerNode("trigger-1"),
			{
				ID:      "flaky",
				Type:    models.NodeTypeExternalAction,
				Subtype: models.SubtypeDefault,
				OnError: models.OnError{
					Policy:      models.ErrorPolicyRetry,
					MaxAttempts: 3,
					Backoff:     time.Millisecond,
				},
			},
		},
		Connections: map[string][]*models.Connection{
			"trigger-1": {
				{SourceNodeID: "trigger-1", TargetNodeID: "flaky", Port: models.PortMain},
			},
		},
	}

	execution, err := e.Execute(t.Context(), workflow, manualTrigger(nil))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, 3, execution.RunData["flaky"].AttemptCount)
	assert.EqualValues(t, 3, flaky.calls.Load())
}

func TestExecute_SuspendAndResumeRoundTrip(t *testing.T) {
	e, p := newTestEngine(t)

	workflow := &models.Workflow{
		ID:               "wf-approval",
		Name:             "Approval gate",
		DeploymentStatus: models.DeploymentStatusDeployed,
		Nodes: []*models.Node{
			manualTriggerNode("trigger-1"),
			{
				ID:      "gate",
				Type:    models.NodeTypeHumanInTheLoop,
				Subtype: models.SubtypeDefault,
				Parameters: map[string]any{
					"message":         "Approve?",
					"timeout_seconds": 3600,
				},
			},
			formatNode("approved-path", "approved: {msg}"),
			formatNode("rejected-path", "rejected: {msg}"),
		},
		Connections: map[string][]*models.Connection{
			"trigger-1": {
				{SourceNodeID: "trigger-1", TargetNodeID: "gate", Port: models.PortMain},
			},
			"gate": {
				{SourceNodeID: "gate", TargetNodeID: "approved-path", Port: models.PortApproved},
				{SourceNodeID: "gate", TargetNodeID: "rejected-path", Port: models.PortRejected},
			},
		},
	}

	require.NoError(t, p.SaveWorkflow(t.Context(), workflow))

	execution, err := e.Execute(t.Context(), workflow, manualTrigger(map[string]any{"msg": "m"}))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusWaiting, execution.Status)
	assert.Equal(t, "gate", execution.CurrentNodeID)

	gateRun := execution.RunData["gate"]
	require.NotNil(t, gateRun)
	assert.Equal(t, models.RunStatusWaiting, gateRun.Status)
	require.NotNil(t, gateRun.TimeoutAt)

	resumed, err := e.Resume(t.Context(), execution.ID, map[string]any{"approved": true})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, resumed.Status)
	assert.Equal(t, models.RunStatusSuccess, resumed.RunData["gate"].Status)
	assert.Equal(t, models.PortApproved, resumed.RunData["gate"].OutputPort)
	assert.NotNil(t, resumed.RunData["approved-path"].OutputData)
	assert.Equal(t, models.RunStatusSkipped, resumed.RunData["rejected-path"].Status)
}

func TestResume_RejectsNonWaitingExecution(t *testing.T) {
	e, p := newTestEngine(t)

	workflow := branchingWorkflow()
	require.NoError(t, p.SaveWorkflow(t.Context(), workflow))

	execution, err := e.Execute(t.Context(), workflow, manualTrigger(map[string]any{"priority": "high", "msg": "x"}))
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusSuccess, execution.Status)

	_, err = e.Resume(t.Context(), execution.ID, map[string]any{"approved": true})
	require.ErrorIs(t, err, ErrExecutionFinished)
}

func TestCancel_SuspendedExecution(t *testing.T) {
	e, p := newTestEngine(t)

	workflow := &models.Workflow{
		ID:               "wf-cancel",
		Name:             "Cancel while waiting",
		DeploymentStatus: models.DeploymentStatusDeployed,
		Nodes: []*models.Node{
			manualTriggerNode("trigger-1"),
			{
				ID:         "gate",
				Type:       models.NodeTypeHumanInTheLoop,
				Subtype:    models.SubtypeDefault,
				Parameters: map[string]any{},
			},
		},
		Connections: map[string][]*models.Connection{
			"trigger-1": {
				{SourceNodeID: "trigger-1", TargetNodeID: "gate", Port: models.PortMain},
			},
		},
	}

	require.NoError(t, p.SaveWorkflow(t.Context(), workflow))

	execution, err := e.Execute(t.Context(), workflow, manualTrigger(nil))
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusWaiting, execution.Status)

	require.NoError(t, e.Cancel(t.Context(), execution.ID))

	saved, err := p.ExecutionByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, saved.Status)

	err = e.Cancel(t.Context(), execution.ID)
	require.ErrorIs(t, err, ErrExecutionFinished)
}

func TestExecute_DisabledNodePassesThrough(t *testing.T) {
	e, _ := newTestEngine(t)

	workflow := &models.Workflow{
		ID:               "wf-disabled",
		Name:             "Disabled pass-through",
		DeploymentStatus: models.DeploymentStatusDeployed,
		Nodes: []*models.Node{
			manualTriggerNode("trigger-1"),
			{
				ID:       "disabled-if",
				Type:     models.NodeTypeFlow,
				Subtype:  models.SubtypeIf,
				Disabled: true,
			},
			formatNode("sink", "got: {msg}"),
		},
		Connections: map[string][]*models.Connection{
			"trigger-1": {
				{SourceNodeID: "trigger-1", TargetNodeID: "disabled-if", Port: models.PortMain},
			},
			"disabled-if": {
				{SourceNodeID: "disabled-if", TargetNodeID: "sink", Port: models.PortMain},
			},
		},
	}

	execution, err := e.Execute(t.Context(), workflow, manualTrigger(map[string]any{"msg": "m"}))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, models.RunStatusSkipped, execution.RunData["disabled-if"].Status)
	assert.Equal(t, "got: m", execution.RunData["sink"].OutputData["result"])
}

func TestExecute_LoopRunsBodyPerItem(t *testing.T) {
	e, _ := newTestEngine(t)

	workflow := &models.Workflow{
		ID:               "wf-loop",
		Name:             "Loop over items",
		DeploymentStatus: models.DeploymentStatusDeployed,
		Nodes: []*models.Node{
			manualTriggerNode("trigger-1"),
			{
				ID:         "loop-1",
				Type:       models.NodeTypeFlow,
				Subtype:    models.SubtypeLoop,
				Parameters: map[string]any{},
			},
			formatNode("body", "item {index}"),
			formatNode("after", "done: {iterations}"),
		},
		Connections: map[string][]*models.Connection{
			"trigger-1": {
				{SourceNodeID: "trigger-1", TargetNodeID: "loop-1", Port: models.PortMain},
			},
			"loop-1": {
				{SourceNodeID: "loop-1", TargetNodeID: "body", Port: models.PortLoopBody},
				{SourceNodeID: "loop-1", TargetNodeID: "after", Port: models.PortDone},
			},
		},
	}

	execution, err := e.Execute(t.Context(), workflow, manualTrigger(map[string]any{
		"items": []any{"a", "b", "c"},
	}))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)

	loopRun := execution.RunData["loop-1"]
	require.NotNil(t, loopRun)
	assert.EqualValues(t, 3, loopRun.OutputData["iterations"])

	assert.Equal(t, "done: 3", execution.RunData["after"].OutputData["result"])
}

func TestExecute_AllBranchesFailedUnderContinue(t *testing.T) {
	e, _ := newTestEngine(t)

	workflow := &models.Workflow{
		ID:               "wf-all-fail",
		Name:             "Every branch fails",
		DeploymentStatus: models.DeploymentStatusDeployed,
		Nodes: []*models.Node{
			manualTriggerNode("trigger-1"),
			{
				ID:         "broken",
				Type:       models.NodeTypeFlow,
				Subtype:    models.SubtypeIf,
				Parameters: map[string]any{},
				OnError:    models.OnError{Policy: models.ErrorPolicyContinue},
			},
		},
		Connections: map[string][]*models.Connection{
			"trigger-1": {
				{SourceNodeID: "trigger-1", TargetNodeID: "broken", Port: models.PortMain},
			},
		},
	}

	execution, err := e.Execute(t.Context(), workflow, manualTrigger(nil))
	require.NoError(t, err)

	// The trigger succeeded, but it is no branch leaf: the only branch
	// ended in the failed node, so the execution as a whole failed.
	assert.Equal(t, models.ExecutionStatusError, execution.Status)
	assert.Equal(t, "all branches failed", execution.ErrorMessage)
	assert.Equal(t, models.RunStatusError, execution.RunData["broken"].Status)
}

// joiningExecutor records the fan-in inputs it was dispatched with.
type joiningExecutor struct {
	calls  atomic.Int32
	inputs map[int]map[string]any
}

func (j *joiningExecutor) Type() models.NodeType { return models.NodeTypeExternalAction }

func (j *joiningExecutor) Subtype() models.NodeSubtype { return models.SubtypeDefault }

func (j *joiningExecutor) Execute(_ context.Context, ec *models.ExecutionContext, _ *models.Node) (models.NodeResult, error) {
	j.calls.Add(1)
	j.inputs = ec.Inputs

	return models.NodeResult{
		Status: models.RunStatusSuccess,
		Port:   models.PortMain,
		Output: map[string]any{"joined": true},
	}, nil
}

func (j *joiningExecutor) Schema() map[string]any { return nil }

func TestExecute_MultiIndexFanInWaitsForAllArrivals(t *testing.T) {
	p := memory.NewPersistence()
	r := newTestRegistry(t)

	sink := &joiningExecutor{}
	r.Register(sink)

	e := NewEngine(p, r, slog.Default(), Config{BranchParallelism: 4})

	workflow := &models.Workflow{
		ID:               "wf-fan-in",
		Name:             "Fan in without a merge node",
		DeploymentStatus: models.DeploymentStatusDeployed,
		Nodes: []*models.Node{
			manualTriggerNode("trigger-1"),
			formatNode("left", "left: {msg}"),
			formatNode("right", "right: {msg}"),
			{
				ID:      "sink",
				Type:    models.NodeTypeExternalAction,
				Subtype: models.SubtypeDefault,
			},
		},
		Connections: map[string][]*models.Connection{
			"trigger-1": {
				{SourceNodeID: "trigger-1", TargetNodeID: "left", Port: models.PortMain},
				{SourceNodeID: "trigger-1", TargetNodeID: "right", Port: models.PortMain},
			},
			"left": {
				{SourceNodeID: "left", TargetNodeID: "sink", Port: models.PortMain, TargetInputIndex: 0},
			},
			"right": {
				{SourceNodeID: "right", TargetNodeID: "sink", Port: models.PortMain, TargetInputIndex: 1},
			},
		},
	}

	execution, err := e.Execute(t.Context(), workflow, manualTrigger(map[string]any{"msg": "m"}))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.EqualValues(t, 1, sink.calls.Load())
	assert.Equal(t, 1, execution.RunData["sink"].AttemptCount)

	require.Len(t, sink.inputs, 2)
	assert.Equal(t, "left: m", sink.inputs[0]["result"])
	assert.Equal(t, "right: m", sink.inputs[1]["result"])
}

func TestExecute_ParallelSuspensionsResumeOneAtATime(t *testing.T) {
	e, p := newTestEngine(t)

	gate := func(id string) *models.Node {
		return &models.Node{
			ID:      id,
			Type:    models.NodeTypeHumanInTheLoop,
			Subtype: models.SubtypeDefault,
			Parameters: map[string]any{
				"message":         "Approve?",
				"timeout_seconds": 3600,
			},
		}
	}

	workflow := &models.Workflow{
		ID:               "wf-two-gates",
		Name:             "Two parallel approval gates",
		DeploymentStatus: models.DeploymentStatusDeployed,
		Nodes: []*models.Node{
			manualTriggerNode("trigger-1"),
			gate("gate-a"),
			gate("gate-b"),
			formatNode("done-a", "a: {msg}"),
			formatNode("done-b", "b: {msg}"),
		},
		Connections: map[string][]*models.Connection{
			"trigger-1": {
				{SourceNodeID: "trigger-1", TargetNodeID: "gate-a", Port: models.PortMain},
				{SourceNodeID: "trigger-1", TargetNodeID: "gate-b", Port: models.PortMain},
			},
			"gate-a": {
				{SourceNodeID: "gate-a", TargetNodeID: "done-a", Port: models.PortApproved},
			},
			"gate-b": {
				{SourceNodeID: "gate-b", TargetNodeID: "done-b", Port: models.PortApproved},
			},
		},
	}

	require.NoError(t, p.SaveWorkflow(t.Context(), workflow))

	execution, err := e.Execute(t.Context(), workflow, manualTrigger(map[string]any{"msg": "m"}))
	require.NoError(t, err)

	require.Equal(t, models.ExecutionStatusWaiting, execution.Status)

	first := execution.CurrentNodeID
	require.Contains(t, []string{"gate-a", "gate-b"}, first)
	assert.Equal(t, models.RunStatusWaiting, execution.RunData["gate-a"].Status)
	assert.Equal(t, models.RunStatusWaiting, execution.RunData["gate-b"].Status)

	// Resuming the cursor gate re-suspends on the one still pending.
	resumed, err := e.Resume(t.Context(), execution.ID, map[string]any{"approved": true})
	require.NoError(t, err)

	require.Equal(t, models.ExecutionStatusWaiting, resumed.Status)
	assert.NotEqual(t, first, resumed.CurrentNodeID)
	assert.Equal(t, models.RunStatusSuccess, resumed.RunData[first].Status)

	final, err := e.Resume(t.Context(), execution.ID, map[string]any{"approved": true})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, final.Status)
	assert.Equal(t, models.PortApproved, final.RunData["gate-a"].OutputPort)
	assert.Equal(t, models.PortApproved, final.RunData["gate-b"].OutputPort)
	assert.NotNil(t, final.RunData["done-a"].OutputData)
	assert.NotNil(t, final.RunData["done-b"].OutputData)
}
