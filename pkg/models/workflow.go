// Package models defines the core domain models for node-based workflow automation.
package models

import "time"

// DeploymentStatus represents the deployment lifecycle state of a workflow.
type DeploymentStatus string

const (
	DeploymentStatusPending    DeploymentStatus = "pending"    // Created, not yet validated
	DeploymentStatusDeployed   DeploymentStatus = "deployed"   // Validated, executable
	DeploymentStatusFailed     DeploymentStatus = "failed"     // Validation failed, not executable
	DeploymentStatusUndeployed DeploymentStatus = "undeployed" // Retired, not executable
)

// Workflow is an immutable definition of a node graph. The engine only
// accepts workflows with DeploymentStatus == DeploymentStatusDeployed and
// never mutates them.
type Workflow struct {
	ID               string                   `json:"id"                validate:"required"`
	Name             string                   `json:"name"              validate:"required,min=3"`
	Description      string                   `json:"description,omitempty"`
	DeploymentStatus DeploymentStatus         `json:"deployment_status" validate:"required"`
	Nodes            []*Node                  `json:"nodes"             validate:"required,min=1,dive"`
	Connections      map[string][]*Connection `json:"connections"` // Keyed by source node ID
	Variables        map[string]any           `json:"variables,omitempty"`
	Owner            string                   `json:"owner,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// IsDeployed reports whether the workflow may be executed.
func (w *Workflow) IsDeployed() bool {
	return w.DeploymentStatus == DeploymentStatusDeployed
}

// NodeByID returns the node with the given ID, if present.
func (w *Workflow) NodeByID(id string) (*Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return nil, false
}

// TriggerNodes returns all trigger nodes in definition order.
func (w *Workflow) TriggerNodes() []*Node {
	var triggers []*Node

	for _, n := range w.Nodes {
		if n.Type == NodeTypeTrigger {
			triggers = append(triggers, n)
		}
	}

	return triggers
}

// TriggerNodeForSubtype returns the first enabled trigger node matching the
// given trigger subtype (manual, webhook, cron, ...).
func (w *Workflow) TriggerNodeForSubtype(subtype NodeSubtype) (*Node, bool) {
	for _, n := range w.Nodes {
		if n.Type == NodeTypeTrigger && n.Subtype == subtype && !n.Disabled {
			return n, true
		}
	}

	return nil, false
}
