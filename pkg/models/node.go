package models

import "time"

// NodeType is the closed set of node categories the engine dispatches on.
type NodeType string

const (
	NodeTypeTrigger        NodeType = "trigger"
	NodeTypeAIAgent        NodeType = "ai_agent"
	NodeTypeAction         NodeType = "action"
	NodeTypeExternalAction NodeType = "external_action"
	NodeTypeFlow           NodeType = "flow"
	NodeTypeHumanInTheLoop NodeType = "human_in_the_loop"
	NodeTypeTool           NodeType = "tool"
	NodeTypeMemory         NodeType = "memory"
)

// NodeSubtype refines a NodeType. The (type, subtype) pair selects an
// executor from the registry.
type NodeSubtype string

const (
	// Trigger subtypes.
	SubtypeManual  NodeSubtype = "manual"
	SubtypeWebhook NodeSubtype = "webhook"
	SubtypeCron    NodeSubtype = "cron"
	SubtypeEmail   NodeSubtype = "email"
	SubtypeGithub  NodeSubtype = "github"
	SubtypeSlack   NodeSubtype = "slack"

	// Flow subtypes.
	SubtypeIf     NodeSubtype = "if"
	SubtypeSwitch NodeSubtype = "switch"
	SubtypeMerge  NodeSubtype = "merge"
	SubtypeLoop   NodeSubtype = "loop"
	SubtypeWait   NodeSubtype = "wait"
	SubtypeFilter NodeSubtype = "filter"

	// SubtypeDefault is used for node types with a single executor.
	SubtypeDefault NodeSubtype = "default"
)

// ErrorPolicy selects how the engine reacts when a node execution fails.
type ErrorPolicy string

const (
	ErrorPolicyStopWorkflow ErrorPolicy = "stop_workflow"
	ErrorPolicyContinue     ErrorPolicy = "continue"
	ErrorPolicyRetry        ErrorPolicy = "retry"
)

// OnError is the per-node failure policy.
type OnError struct {
	Policy      ErrorPolicy   `json:"policy"`
	MaxAttempts int           `json:"max_attempts,omitempty"`
	Backoff     time.Duration `json:"backoff,omitempty"`
}

// Node represents a node instance in a workflow. Parameters is an opaque
// key-value config; each executor parses and validates its own subset.
type Node struct {
	ID         string         `json:"id"      validate:"required"`
	Name       string         `json:"name"`
	Type       NodeType       `json:"type"    validate:"required"`
	Subtype    NodeSubtype    `json:"subtype" validate:"required"`
	Parameters map[string]any `json:"parameters,omitempty"`
	OnError    OnError        `json:"on_error"`
	Disabled   bool           `json:"disabled"`
}

// EffectiveOnError returns the node's error policy with defaults applied.
func (n *Node) EffectiveOnError() OnError {
	policy := n.OnError
	if policy.Policy == "" {
		policy.Policy = ErrorPolicyStopWorkflow
	}

	if policy.Policy == ErrorPolicyRetry {
		if policy.MaxAttempts <= 0 {
			policy.MaxAttempts = 3
		}

		if policy.Backoff <= 0 {
			policy.Backoff = time.Second
		}
	}

	return policy
}

// StringParam reads a string parameter with a fallback.
func (n *Node) StringParam(key, fallback string) string {
	if v, ok := n.Parameters[key].(string); ok {
		return v
	}

	return fallback
}

// IntParam reads an integer parameter with a fallback. JSON numbers decode
// as float64, so both representations are accepted.
func (n *Node) IntParam(key string, fallback int) int {
	switch v := n.Parameters[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
