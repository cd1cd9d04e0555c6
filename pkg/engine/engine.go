// Package engine implements the workflow execution state machine: graph
// traversal over the ready-queue, per-node error policy, branch
// parallelism, merge barriers, and suspend/resume for approval gates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/strandkit/strand/pkg/events"
	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/otelhelper"
	"github.com/strandkit/strand/pkg/persistence"
	"github.com/strandkit/strand/pkg/protocol"
	"github.com/strandkit/strand/pkg/registry"
)

const (
	defaultBranchParallelism = 4
	maxRetryBackoff          = 30 * time.Second
)

var (
	// ErrExecutionNotWaiting is returned by Resume when the execution is
	// not suspended.
	ErrExecutionNotWaiting = errors.New("execution is not waiting")

	// ErrExecutionFinished is returned by Cancel and Resume for terminal
	// executions.
	ErrExecutionFinished = errors.New("execution already finished")
)

// Config carries engine tuning knobs.
type Config struct {
	// BranchParallelism bounds concurrent node executions within one
	// execution. Independent branches beyond the bound queue up.
	BranchParallelism int

	WorkerID string
}

// Engine runs workflow executions. Safe for many concurrent executions;
// each Execute or Resume call owns its execution exclusively, and all
// execution state mutation happens on that call's goroutine.
type Engine struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	publisher   events.Publisher
	tracer      trace.Tracer
	logger      *slog.Logger
	branchLimit int
	workerID    string

	mu     sync.Mutex
	active map[string]*atomic.Bool // execution ID -> cancellation flag
}

func NewEngine(p persistence.Persistence, r *registry.Registry, logger *slog.Logger, cfg Config) *Engine {
	limit := cfg.BranchParallelism
	if limit <= 0 {
		limit = defaultBranchParallelism
	}

	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}

	return &Engine{
		persistence: p,
		registry:    r,
		logger:      logger.With("module", "engine", "worker_id", cfg.WorkerID),
		branchLimit: limit,
		workerID:    cfg.WorkerID,
		active:      make(map[string]*atomic.Bool),
	}
}

// WorkerID identifies this engine instance, used as the lock lease
// holder by the trigger layer.
func (e *Engine) WorkerID() string { return e.workerID }

// WithPublisher attaches a lifecycle event publisher.
func (e *Engine) WithPublisher(publisher events.Publisher) *Engine {
	e.publisher = publisher

	return e
}

// WithTracer attaches a tracer for execution spans.
func (e *Engine) WithTracer(tracer trace.Tracer) *Engine {
	e.tracer = tracer

	return e
}

// Execute runs a workflow from a trigger firing to completion or
// suspension. The returned execution is terminal or WAITING.
func (e *Engine) Execute(ctx context.Context, workflow *models.Workflow, trigger models.TriggerInfo) (*models.Execution, error) {
	if !workflow.IsDeployed() {
		return nil, models.NewValidationError(workflow.ID, "workflow is not deployed")
	}

	triggerNode, err := e.resolveTriggerNode(workflow, trigger)
	if err != nil {
		return nil, err
	}

	execution := &models.Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflow.ID,
		Status:     models.ExecutionStatusPending,
		Trigger:    trigger,
		RunData:    make(map[string]*models.RunData),
		StartTime:  time.Now().UTC(),
	}

	if err := e.persistence.SaveExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to persist execution: %w", err)
	}

	execution.Status = models.ExecutionStatusRunning

	if err := e.persistence.SaveExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to persist execution: %w", err)
	}

	e.publish(ctx, events.ExecutionTopic, events.NewExecutionStateChanged(events.ExecutionStartedEvent, execution))

	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "execution.run",
			attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
			attribute.String(otelhelper.ExecutionIDKey, execution.ID),
			attribute.String(otelhelper.TriggerTypeKey, string(trigger.Type)),
		)
		defer span.End()
	}

	triggerInput := trigger.Payload
	if triggerInput == nil {
		triggerInput = map[string]any{}
	}

	queue := []dispatch{{node: triggerNode, input: triggerInput}}

	return e.run(ctx, workflow, execution, newRouter(workflow), queue)
}

// Resume re-enters a suspended execution with an out-of-band payload.
// It is a fresh entry point: no goroutine was parked while waiting.
func (e *Engine) Resume(ctx context.Context, executionID string, payload map[string]any) (*models.Execution, error) {
	execution, err := e.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status.Terminal() {
		return nil, fmt.Errorf("cannot resume %s: %w", executionID, ErrExecutionFinished)
	}

	if execution.Status != models.ExecutionStatusWaiting || execution.CurrentNodeID == "" {
		return nil, fmt.Errorf("cannot resume %s: %w", executionID, ErrExecutionNotWaiting)
	}

	workflow, err := e.persistence.WorkflowByID(ctx, execution.WorkflowID)
	if err != nil {
		return nil, err
	}

	node, ok := workflow.NodeByID(execution.CurrentNodeID)
	if !ok {
		return nil, models.NewValidationError(execution.CurrentNodeID, "waiting node no longer exists in workflow")
	}

	var input map[string]any
	if run := execution.RunData[node.ID]; run != nil {
		input = run.InputSnapshot
	}

	execution.Status = models.ExecutionStatusRunning
	execution.CurrentNodeID = ""

	if err := e.persistence.SaveExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to persist execution: %w", err)
	}

	e.publish(ctx, events.ExecutionTopic, events.NewExecutionStateChanged(events.ExecutionResumedEvent, execution))

	rt := newRouter(workflow)
	rt.replay(execution)

	queue := []dispatch{{node: node, input: input, resume: payload}}

	return e.run(ctx, workflow, execution, rt, queue)
}

// Cancel requests cooperative cancellation. Running executions stop at
// the next ready-queue checkpoint; suspended executions cancel
// immediately.
func (e *Engine) Cancel(ctx context.Context, executionID string) error {
	e.mu.Lock()
	flag, running := e.active[executionID]
	e.mu.Unlock()

	if running {
		flag.Store(true)

		return nil
	}

	execution, err := e.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status.Terminal() {
		return fmt.Errorf("cannot cancel %s: %w", executionID, ErrExecutionFinished)
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCancelled
	execution.CurrentNodeID = ""
	execution.EndTime = &now

	if err := e.persistence.SaveExecution(ctx, execution); err != nil {
		return fmt.Errorf("failed to persist execution: %w", err)
	}

	e.publish(ctx, events.ExecutionTopic, events.NewExecutionStateChanged(events.ExecutionCancelledEvent, execution))

	return nil
}

func (e *Engine) resolveTriggerNode(workflow *models.Workflow, trigger models.TriggerInfo) (*models.Node, error) {
	if trigger.NodeID != "" {
		node, ok := workflow.NodeByID(trigger.NodeID)
		if !ok || node.Type != models.NodeTypeTrigger {
			return nil, models.NewValidationError(workflow.ID, fmt.Sprintf("trigger node %q not found", trigger.NodeID))
		}

		return node, nil
	}

	node, ok := workflow.TriggerNodeForSubtype(trigger.Type)
	if !ok {
		return nil, models.NewValidationError(workflow.ID, fmt.Sprintf("no %s trigger node", trigger.Type))
	}

	return node, nil
}

// nodeOutcome is what a worker goroutine reports back to the run loop.
type nodeOutcome struct {
	node     *models.Node
	result   models.NodeResult
	attempts int
}

// run drives the ready-queue until it drains, the execution suspends,
// or it is stopped. All execution and router state is mutated only on
// this goroutine; workers communicate through the results channel.
func (e *Engine) run(ctx context.Context, workflow *models.Workflow, execution *models.Execution, rt *router, queue []dispatch) (*models.Execution, error) {
	cancelFlag := e.registerActive(execution.ID)
	defer e.unregisterActive(execution.ID)

	results := make(chan nodeOutcome)

	var (
		inFlight         int
		stopped          bool
		waiting          bool
		stopMessage      string
		leafSuccesses    int
		continueFailures int
	)

	// A resumed execution keeps credit for branches that already
	// completed before the suspension.
	for nodeID, run := range execution.RunData {
		if run.Status == models.RunStatusSuccess && !rt.hasDownstream(nodeID, run.OutputPort) {
			leafSuccesses++
		}
	}

	for {
		halted := stopped || waiting || cancelFlag.Load() || ctx.Err() != nil

		for !halted && len(queue) > 0 && inFlight < e.branchLimit {
			item := queue[0]
			queue = queue[1:]

			if _, done := execution.RunData[item.node.ID]; done && item.resume == nil {
				continue // already ran in this execution
			}

			if item.node.Disabled {
				e.recordSkipped(ctx, execution, item.node, item.input)
				queue = append(queue, rt.route(item.node.ID, models.PortMain, item.input)...)

				continue
			}

			e.markRunning(ctx, execution, item)

			// The context snapshot happens here, on the loop goroutine,
			// so workers never read run data mid-write.
			ec := e.buildExecutionContext(ctx, workflow, execution, item)

			inFlight++

			go e.executeNode(ctx, item, ec, results)
		}

		if inFlight == 0 {
			break
		}

		outcome := <-results
		inFlight--

		run := execution.RunData[outcome.node.ID]
		e.recordOutcome(run, outcome)

		if err := e.persistence.SaveExecution(ctx, execution); err != nil {
			stopped = true
			stopMessage = fmt.Sprintf("persistence write failed: %v", err)

			continue
		}

		e.publish(ctx, events.ExecutionTopic, events.NewNodeFinished(execution, run))

		switch outcome.result.Status {
		case models.RunStatusSuccess:
			var ready []dispatch
			if outcome.result.Port != "" {
				ready = rt.route(outcome.node.ID, outcome.result.Port, outcome.result.Output)
			}

			// A success that dispatched nothing ends its branch; one
			// such leaf is enough to call the execution successful.
			if len(ready) == 0 {
				leafSuccesses++
			}

			queue = append(queue, ready...)

		case models.RunStatusWaiting:
			waiting = true

			// The resume cursor points at the first suspension; later
			// ones stay WAITING in run data until their turn.
			if execution.CurrentNodeID == "" {
				execution.CurrentNodeID = outcome.node.ID
			}

		case models.RunStatusError:
			policy := outcome.node.EffectiveOnError()

			if policy.Policy == models.ErrorPolicyContinue {
				continueFailures++

				e.logger.WarnContext(ctx, "Node failed, branch terminated",
					"execution_id", execution.ID,
					"node_id", outcome.node.ID,
					"error", run.ErrorDetail,
				)
			} else {
				stopped = true
				stopMessage = fmt.Sprintf("node %s failed: %s", outcome.node.ID, run.ErrorDetail)
			}
		}
	}

	return e.finalize(ctx, workflow, execution, finalizeState{
		cancelled:        cancelFlag.Load() || ctx.Err() != nil,
		waiting:          waiting,
		stopped:          stopped,
		stopMessage:      stopMessage,
		leafSuccesses:    leafSuccesses,
		continueFailures: continueFailures,
	})
}

type finalizeState struct {
	cancelled        bool
	waiting          bool
	stopped          bool
	stopMessage      string
	leafSuccesses    int
	continueFailures int
}

func (e *Engine) finalize(ctx context.Context, workflow *models.Workflow, execution *models.Execution, state finalizeState) (*models.Execution, error) {
	now := time.Now().UTC()

	// Earlier suspensions may still be pending after the resumed branch
	// drained; the execution re-suspends on the next one instead of
	// going terminal over a live approval gate.
	if !state.waiting && !state.cancelled && !state.stopped {
		if nodeID, pending := pendingSuspension(workflow, execution); pending {
			state.waiting = true
			execution.CurrentNodeID = nodeID
		}
	}

	eventType := events.ExecutionCompletedEvent

	switch {
	case state.waiting && !state.cancelled && !state.stopped:
		execution.Status = models.ExecutionStatusWaiting
		eventType = events.ExecutionSuspendedEvent

	case state.cancelled:
		execution.Status = models.ExecutionStatusCancelled
		execution.EndTime = &now
		eventType = events.ExecutionCancelledEvent

	case state.stopped:
		execution.Status = models.ExecutionStatusError
		execution.ErrorMessage = state.stopMessage
		execution.EndTime = &now
		eventType = events.ExecutionFailedEvent

	case state.leafSuccesses == 0 && state.continueFailures > 0:
		execution.Status = models.ExecutionStatusError
		execution.ErrorMessage = "all branches failed"
		execution.EndTime = &now
		eventType = events.ExecutionFailedEvent

	default:
		execution.Status = models.ExecutionStatusSuccess
		execution.EndTime = &now
	}

	if execution.Status.Terminal() {
		materializeSkipped(workflow, execution)
	}

	if err := e.persistence.SaveExecution(ctx, execution); err != nil {
		return execution, fmt.Errorf("failed to persist execution: %w", err)
	}

	e.publish(ctx, events.ExecutionTopic, events.NewExecutionStateChanged(eventType, execution))

	e.logger.InfoContext(ctx, "Execution finished",
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"status", execution.Status,
	)

	return execution, nil
}

// pendingSuspension finds a node left WAITING by an earlier parallel
// suspension, preferring the earliest deadline so the timeout sweeper
// sees the most urgent gate first.
func pendingSuspension(workflow *models.Workflow, execution *models.Execution) (string, bool) {
	var (
		nodeID   string
		deadline *time.Time
	)

	for _, node := range workflow.Nodes {
		run := execution.RunData[node.ID]
		if run == nil || run.Status != models.RunStatusWaiting {
			continue
		}

		switch {
		case nodeID == "":
			nodeID, deadline = node.ID, run.TimeoutAt
		case run.TimeoutAt != nil && (deadline == nil || run.TimeoutAt.Before(*deadline)):
			nodeID, deadline = node.ID, run.TimeoutAt
		}
	}

	return nodeID, nodeID != ""
}

// materializeSkipped writes SKIPPED run data for every node the
// traversal never reached, so untaken branches are visible in the
// execution record. Runs after all workers have drained.
func materializeSkipped(workflow *models.Workflow, execution *models.Execution) {
	for _, node := range workflow.Nodes {
		if _, ran := execution.RunData[node.ID]; ran {
			continue
		}

		execution.RunData[node.ID] = &models.RunData{
			NodeID: node.ID,
			Status: models.RunStatusSkipped,
		}
	}
}

func (e *Engine) recordSkipped(ctx context.Context, execution *models.Execution, node *models.Node, input map[string]any) {
	now := time.Now().UTC()

	execution.RunData[node.ID] = &models.RunData{
		NodeID:        node.ID,
		Status:        models.RunStatusSkipped,
		InputSnapshot: input,
		OutputData:    input,
		OutputPort:    models.PortMain,
		StartedAt:     &now,
		EndedAt:       &now,
	}

	if err := e.persistence.SaveExecution(ctx, execution); err != nil {
		e.logger.ErrorContext(ctx, "Failed to checkpoint skipped node",
			"execution_id", execution.ID,
			"node_id", node.ID,
			"error", err,
		)
	}
}

func (e *Engine) markRunning(ctx context.Context, execution *models.Execution, item dispatch) {
	now := time.Now().UTC()

	if run, exists := execution.RunData[item.node.ID]; exists && item.resume != nil {
		// Re-entering a waiting node keeps its original start time so
		// the waiting interval stays visible.
		run.Status = models.RunStatusRunning

		return
	}

	execution.RunData[item.node.ID] = &models.RunData{
		NodeID:        item.node.ID,
		Status:        models.RunStatusRunning,
		InputSnapshot: item.input,
		StartedAt:     &now,
	}

	if err := e.persistence.SaveExecution(ctx, execution); err != nil {
		e.logger.ErrorContext(ctx, "Failed to checkpoint node start",
			"execution_id", execution.ID,
			"node_id", item.node.ID,
			"error", err,
		)
	}
}

func (e *Engine) recordOutcome(run *models.RunData, outcome nodeOutcome) {
	now := time.Now().UTC()

	run.Status = outcome.result.Status
	run.OutputData = outcome.result.Output
	run.OutputPort = outcome.result.Port
	run.AttemptCount = outcome.attempts
	run.TimeoutAt = outcome.result.TimeoutAt

	if outcome.result.Status != models.RunStatusWaiting {
		run.EndedAt = &now
	}

	if outcome.result.Err != nil {
		run.ErrorDetail = outcome.result.Err.Error()
	}
}

// executeNode runs one node on a worker goroutine, applying the retry
// policy before reporting the final outcome.
func (e *Engine) executeNode(ctx context.Context, item dispatch, ec *models.ExecutionContext, results chan<- nodeOutcome) {
	node := item.node

	executor, err := e.registry.ResolveNode(node)
	if err != nil {
		results <- nodeOutcome{
			node:     node,
			result:   models.NodeResult{Status: models.RunStatusError, Err: err},
			attempts: 1,
		}

		return
	}

	policy := node.EffectiveOnError()

	maxAttempts := 1
	if policy.Policy == models.ErrorPolicyRetry {
		maxAttempts = policy.MaxAttempts
	}

	var (
		result   models.NodeResult
		attempts int
	)

	for attempts < maxAttempts {
		attempts++

		if e.tracer != nil {
			var span trace.Span

			_, span = otelhelper.StartSpan(ctx, e.tracer, "node.execute",
				attribute.String(otelhelper.ExecutionIDKey, ec.ExecutionID),
				attribute.String(otelhelper.NodeIDKey, node.ID),
				attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
			)

			result = e.invoke(ctx, executor, ec, node)

			if result.Err != nil {
				otelhelper.SetError(span, result.Err)
			}

			span.End()
		} else {
			result = e.invoke(ctx, executor, ec, node)
		}

		if result.Status != models.RunStatusError {
			break
		}

		if !retryWorthwhile(result.Err, attempts) {
			break
		}

		if attempts < maxAttempts {
			if !sleepBackoff(ctx, backoffDelay(policy.Backoff, attempts)) {
				break
			}
		}
	}

	results <- nodeOutcome{node: node, result: result, attempts: attempts}
}

// invoke calls the executor, converting a returned error into an error
// result so policy handling has a single shape to work with.
func (e *Engine) invoke(ctx context.Context, executor protocol.Executor, ec *models.ExecutionContext, node *models.Node) models.NodeResult {
	result, err := executor.Execute(ctx, ec, node)
	if err != nil {
		return models.NodeResult{
			Status: models.RunStatusError,
			Err:    err,
			Output: map[string]any{"error": err.Error()},
		}
	}

	return result
}

// buildExecutionContext snapshots execution state for a worker. RunData
// is shallow-copied so workers never read a map the loop is writing.
func (e *Engine) buildExecutionContext(ctx context.Context, workflow *models.Workflow, execution *models.Execution, item dispatch) *models.ExecutionContext {
	runData := make(map[string]*models.RunData, len(execution.RunData))
	for id, run := range execution.RunData {
		runData[id] = run
	}

	return &models.ExecutionContext{
		ExecutionID:   execution.ID,
		WorkflowID:    workflow.ID,
		TriggerData:   execution.Trigger.Payload,
		Variables:     workflow.Variables,
		RunData:       runData,
		Input:         item.input,
		Inputs:        item.inputs,
		ResumePayload: item.resume,
		Subgraph:      e.subgraphRunner(ctx, workflow, execution),
		Logger:        e.logger,
	}
}

// retryWorthwhile applies the taxonomy: permanent kinds never retry,
// response content errors retry once.
func retryWorthwhile(err error, attempts int) bool {
	if err == nil {
		return false
	}

	if models.IsResponseContentError(err) {
		return attempts < 2
	}

	return models.ClassifyError(err).Retryable()
}

// backoffDelay doubles the base per attempt, capped.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}

	delay := base << (attempt - 1)
	if delay > maxRetryBackoff {
		delay = maxRetryBackoff
	}

	return delay
}

func sleepBackoff(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) registerActive(executionID string) *atomic.Bool {
	flag := &atomic.Bool{}

	e.mu.Lock()
	e.active[executionID] = flag
	e.mu.Unlock()

	return flag
}

func (e *Engine) unregisterActive(executionID string) {
	e.mu.Lock()
	delete(e.active, executionID)
	e.mu.Unlock()
}

func (e *Engine) publish(ctx context.Context, topic string, event events.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, topic, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish lifecycle event",
			"event_type", event.GetType(),
			"error", err,
		)
	}
}
