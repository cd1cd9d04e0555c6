// Package deploy validates workflow definitions and manages their
// deployment lifecycle. A workflow only becomes executable after every
// check here passes; the engine can then assume structural soundness.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/persistence"
	"github.com/strandkit/strand/pkg/registry"
)

// Service validates workflows and flips their deployment status.
type Service struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewService(p persistence.Persistence, r *registry.Registry, logger *slog.Logger) *Service {
	return &Service{
		persistence: p,
		registry:    r,
		validate:    validator.New(),
		logger:      logger.With("module", "deploy"),
	}
}

// Deploy validates the workflow and persists it as deployed. On a failed
// validation the workflow is saved with a failed status and the validation
// error is returned, so the caller sees exactly what a later fire would
// have hit.
func (s *Service) Deploy(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := s.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := s.Validate(workflow); err != nil {
		workflow.DeploymentStatus = models.DeploymentStatusFailed
		workflow.UpdatedAt = time.Now().UTC()

		if saveErr := s.persistence.SaveWorkflow(ctx, workflow); saveErr != nil {
			s.logger.ErrorContext(ctx, "Failed to persist failed deployment",
				"workflow_id", workflowID,
				"error", saveErr,
			)
		}

		return workflow, err
	}

	workflow.DeploymentStatus = models.DeploymentStatusDeployed
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Workflow deployed", "workflow_id", workflowID)

	return workflow, nil
}

// Undeploy retires a workflow. Running executions are unaffected; new
// fires are rejected.
func (s *Service) Undeploy(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := s.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.DeploymentStatus = models.DeploymentStatusUndeployed
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Workflow undeployed", "workflow_id", workflowID)

	return workflow, nil
}

// Validate runs every deploy-time check: struct constraints, graph
// integrity, executor resolution, parameter schemas, and trigger
// configuration. Orphan nodes are logged but tolerated.
func (s *Service) Validate(workflow *models.Workflow) error {
	if err := s.validate.Struct(workflow); err != nil {
		return models.NewValidationError(workflow.ID, err.Error())
	}

	nodes := make(map[string]*models.Node, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if _, exists := nodes[node.ID]; exists {
			return models.NewValidationError(workflow.ID, fmt.Sprintf("duplicate node ID %q", node.ID))
		}

		nodes[node.ID] = node
	}

	if len(workflow.TriggerNodes()) == 0 {
		return models.NewValidationError(workflow.ID, "workflow has no trigger node")
	}

	if err := s.validateConnections(workflow, nodes); err != nil {
		return err
	}

	for _, node := range workflow.Nodes {
		if err := s.registry.ValidateNode(node); err != nil {
			return err
		}

		if err := validateNodeConfig(node); err != nil {
			return err
		}
	}

	s.reportOrphans(workflow, nodes)

	return nil
}

func (s *Service) validateConnections(workflow *models.Workflow, nodes map[string]*models.Node) error {
	for sourceID, connections := range workflow.Connections {
		source, exists := nodes[sourceID]
		if !exists {
			return models.NewValidationError(workflow.ID, fmt.Sprintf("connections reference unknown source node %q", sourceID))
		}

		for _, conn := range connections {
			if conn.SourceNodeID != sourceID {
				return models.NewValidationError(workflow.ID,
					fmt.Sprintf("connection under %q declares source %q", sourceID, conn.SourceNodeID))
			}

			target, exists := nodes[conn.TargetNodeID]
			if !exists {
				return models.NewValidationError(workflow.ID,
					fmt.Sprintf("connection from %q targets unknown node %q", sourceID, conn.TargetNodeID))
			}

			if target.Type == models.NodeTypeTrigger {
				return models.NewValidationError(workflow.ID,
					fmt.Sprintf("connection from %q targets trigger node %q", sourceID, conn.TargetNodeID))
			}

			if conn.Port == "" {
				return models.NewValidationError(workflow.ID,
					fmt.Sprintf("connection from %q has no source port", source.ID))
			}
		}
	}

	return nil
}

// validateNodeConfig covers checks outside the executor's parameter
// schema, where a bad value would otherwise surface only at fire time.
func validateNodeConfig(node *models.Node) error {
	if node.Type == models.NodeTypeTrigger && node.Subtype == models.SubtypeCron {
		expr := node.StringParam("cron_expression", "")
		if expr == "" {
			return models.NewValidationError(node.ID, "cron trigger requires 'cron_expression'")
		}

		if _, err := cron.ParseStandard(expr); err != nil {
			return models.NewValidationError(node.ID, "invalid cron expression: "+err.Error())
		}
	}

	if policy := node.OnError.Policy; policy != "" {
		switch policy {
		case models.ErrorPolicyStopWorkflow, models.ErrorPolicyContinue, models.ErrorPolicyRetry:
		default:
			return models.NewValidationError(node.ID, fmt.Sprintf("unknown error policy %q", policy))
		}
	}

	return nil
}

// reportOrphans logs nodes unreachable from any trigger. They are legal
// (often work in progress) but will be skipped on every run.
func (s *Service) reportOrphans(workflow *models.Workflow, nodes map[string]*models.Node) {
	reachable := make(map[string]bool, len(nodes))

	var walk func(id string)

	walk = func(id string) {
		if reachable[id] {
			return
		}

		reachable[id] = true

		for _, conn := range workflow.Connections[id] {
			walk(conn.TargetNodeID)
		}
	}

	for _, trigger := range workflow.TriggerNodes() {
		walk(trigger.ID)
	}

	for id := range nodes {
		if !reachable[id] {
			s.logger.Warn("Node is unreachable from any trigger",
				"workflow_id", workflow.ID,
				"node_id", id,
			)
		}
	}
}
