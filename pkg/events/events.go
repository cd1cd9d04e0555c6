// Package events defines lifecycle event types published on execution
// state transitions.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/strandkit/strand/pkg/models"
)

type EventType string

// Topics.
const (
	ExecutionTopic = "strand.executions"
	TriggerTopic   = "strand.triggers"
)

const (
	EventTypeMetadataKey = "event_type"
	EventKeyMetadataKey  = "key"
)

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionSuspendedEvent EventType = "execution.suspended"
	ExecutionResumedEvent   EventType = "execution.resumed"

	NodeFinishedEvent EventType = "node.finished"
	NodeFailedEvent   EventType = "node.failed"

	TriggerFiredEvent        EventType = "trigger.fired"
	TriggerDeduplicatedEvent EventType = "trigger.deduplicated"
)

// Event is the common surface the bus publishes.
type Event interface {
	GetType() EventType
	GetKey() string
}

// Publisher delivers lifecycle events. Implementations must be safe for
// concurrent use; publishing is best-effort and never blocks execution
// progress on broker availability.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id,omitempty"`
	WorkerID    string    `json:"worker_id,omitempty"`
}

func (e BaseEvent) GetType() EventType { return e.Type }

func (e BaseEvent) GetKey() string {
	if e.ExecutionID != "" {
		return e.ExecutionID
	}

	return e.WorkflowID
}

func newBaseEvent(eventType EventType, workflowID, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  workflowID,
		ExecutionID: executionID,
	}
}

// ExecutionStateChanged covers started / completed / failed / cancelled /
// suspended / resumed transitions.
type ExecutionStateChanged struct {
	BaseEvent

	Status       models.ExecutionStatus `json:"status"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

func NewExecutionStateChanged(eventType EventType, execution *models.Execution) ExecutionStateChanged {
	return ExecutionStateChanged{
		BaseEvent:    newBaseEvent(eventType, execution.WorkflowID, execution.ID),
		Status:       execution.Status,
		ErrorMessage: execution.ErrorMessage,
	}
}

// NodeFinished reports a single node run outcome.
type NodeFinished struct {
	BaseEvent

	NodeID     string           `json:"node_id"`
	NodeStatus models.RunStatus `json:"node_status"`
	OutputPort string           `json:"output_port,omitempty"`
	Attempts   int              `json:"attempts"`
}

func NewNodeFinished(execution *models.Execution, run *models.RunData) NodeFinished {
	eventType := NodeFinishedEvent
	if run.Status == models.RunStatusError {
		eventType = NodeFailedEvent
	}

	return NodeFinished{
		BaseEvent:  newBaseEvent(eventType, execution.WorkflowID, execution.ID),
		NodeID:     run.NodeID,
		NodeStatus: run.Status,
		OutputPort: run.OutputPort,
		Attempts:   run.AttemptCount,
	}
}

// TriggerFired reports a trigger firing outcome, including fires that
// collapsed into an existing lease.
type TriggerFired struct {
	BaseEvent

	TriggerType  models.NodeSubtype `json:"trigger_type"`
	Fingerprint  string             `json:"fingerprint"`
	Deduplicated bool               `json:"deduplicated"`
}

func NewTriggerFired(workflowID string, triggerType models.NodeSubtype, fingerprint string, deduplicated bool) TriggerFired {
	eventType := TriggerFiredEvent
	if deduplicated {
		eventType = TriggerDeduplicatedEvent
	}

	return TriggerFired{
		BaseEvent:    newBaseEvent(eventType, workflowID, ""),
		TriggerType:  triggerType,
		Fingerprint:  fingerprint,
		Deduplicated: deduplicated,
	}
}
