package models

import (
	"log/slog"
	"time"
)

// ExecutionStatus defines the lifecycle states of an execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting" // Suspended at a human-in-the-loop node
	ExecutionStatusSuccess   ExecutionStatus = "success"
	ExecutionStatusError     ExecutionStatus = "error"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal executions are
// immutable and never resumed.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusError || s == ExecutionStatusCancelled
}

// TriggerInfo records the firing that created an execution.
type TriggerInfo struct {
	Type        NodeSubtype    `json:"type"`
	NodeID      string         `json:"node_id"`
	Fingerprint string         `json:"fingerprint"`
	Actor       string         `json:"actor,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Execution is one run of a workflow from a single trigger firing. It is
// created and mutated only by the engine (single-writer invariant);
// executors report results exclusively through NodeResult.
type Execution struct {
	ID            string              `json:"id"`
	WorkflowID    string              `json:"workflow_id"`
	Status        ExecutionStatus     `json:"status"`
	CurrentNodeID string              `json:"current_node_id,omitempty"` // Resume cursor while WAITING
	Trigger       TriggerInfo         `json:"trigger"`
	RunData       map[string]*RunData `json:"run_data"`
	ErrorMessage  string              `json:"error_message,omitempty"`
	StartTime     time.Time           `json:"start_time"`
	EndTime       *time.Time          `json:"end_time,omitempty"`
}

// RunStatus defines the possible states of a single node within an execution.
type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
	RunStatusSkipped RunStatus = "skipped"
	RunStatusWaiting RunStatus = "waiting"
)

// RunData is the per-node record inside an execution. It is the only
// channel through which a downstream node observes an upstream result.
type RunData struct {
	NodeID        string         `json:"node_id"`
	Status        RunStatus      `json:"status"`
	InputSnapshot map[string]any `json:"input_snapshot,omitempty"`
	OutputData    map[string]any `json:"output_data,omitempty"`
	OutputPort    string         `json:"output_port,omitempty"`
	AttemptCount  int            `json:"attempt_count"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	EndedAt       *time.Time     `json:"ended_at,omitempty"`
	ErrorDetail   string         `json:"error_detail,omitempty"`

	// Human-in-the-loop bookkeeping.
	TimeoutAt *time.Time `json:"timeout_at,omitempty"`
}

// NodeResult is what an executor returns to the engine. Port selects the
// output port for routing; an empty Port with StatusSuccess terminates the
// branch without downstream dispatch (filter drop).
type NodeResult struct {
	Status RunStatus      `json:"status"`
	Port   string         `json:"port,omitempty"`
	Output map[string]any `json:"output,omitempty"`
	Logs   []string       `json:"logs,omitempty"`
	Err    error          `json:"-"`

	// TimeoutAt is set by suspending executors to bound the wait.
	TimeoutAt *time.Time `json:"timeout_at,omitempty"`
}

// SubgraphRunner executes the subgraph hanging off one output port of a
// node and returns the outputs of its leaf nodes. The engine provides it
// to executors that drive repeated subgraph invocations (loop).
type SubgraphRunner func(nodeID, port string, input map[string]any) (map[string]any, error)

// ExecutionContext is the read substrate handed to executors. Executors
// never write execution state through it.
type ExecutionContext struct {
	ExecutionID string
	WorkflowID  string
	TriggerData map[string]any
	Variables   map[string]any
	RunData     map[string]*RunData

	// Input carries the data arriving on the node's single input; Inputs
	// carries per-index arrivals for multi-input (merge) nodes.
	Input  map[string]any
	Inputs map[int]map[string]any

	// ResumePayload is set only when re-entering a waiting node.
	ResumePayload map[string]any

	Subgraph SubgraphRunner
	Logger   *slog.Logger
}

// TemplateScope exposes the context fields available to expression
// rendering in node parameters.
func (ec *ExecutionContext) TemplateScope() map[string]any {
	return map[string]any{
		"input":        ec.Input,
		"trigger_data": ec.TriggerData,
		"variables":    ec.Variables,
		"vars":         ec.Variables,
		"run_data":     ec.RunData,
		"resume":       ec.ResumePayload,
		"execution": map[string]any{
			"id":          ec.ExecutionID,
			"workflow_id": ec.WorkflowID,
		},
	}
}
