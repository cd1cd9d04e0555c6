package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strandkit/strand/pkg/lock"
	"github.com/strandkit/strand/pkg/models"
)

// CronSource schedules cron trigger nodes of deployed workflows. Each
// fire is fingerprinted by its scheduled minute, so multiple scheduler
// instances firing the same slot collapse to one execution.
type CronSource struct {
	manager *Manager
	logger  *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID // workflow ID -> schedule entry
}

func NewCronSource(manager *Manager, logger *slog.Logger) *CronSource {
	return &CronSource{
		manager: manager,
		logger:  logger.With("module", "cron_source"),
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
		)),
		entries: make(map[string]cron.EntryID),
	}
}

// Start loads deployed workflows with cron triggers and begins firing.
func (s *CronSource) Start(ctx context.Context) error {
	workflows, err := s.manager.persistence.Workflows(ctx)
	if err != nil {
		return err
	}

	for _, workflow := range workflows {
		if !workflow.IsDeployed() {
			continue
		}

		if err := s.Schedule(ctx, workflow); err != nil {
			s.logger.WarnContext(ctx, "Failed to schedule workflow",
				"workflow_id", workflow.ID,
				"error", err,
			)
		}
	}

	s.cron.Start()

	return nil
}

// Schedule registers (or replaces) the cron entry for one workflow.
func (s *CronSource) Schedule(ctx context.Context, workflow *models.Workflow) error {
	node, ok := workflow.TriggerNodeForSubtype(models.SubtypeCron)
	if !ok {
		return nil
	}

	expr := node.StringParam("cron_expression", "")
	if expr == "" {
		return models.NewValidationError(node.ID, "cron trigger requires 'cron_expression'")
	}

	if _, err := cron.ParseStandard(expr); err != nil {
		return models.NewValidationError(node.ID, "invalid cron expression: "+err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.entries[workflow.ID]; exists {
		s.cron.Remove(entryID)
	}

	workflowID := workflow.ID

	entryID, err := s.cron.AddFunc(expr, func() {
		s.fire(ctx, workflowID)
	})
	if err != nil {
		return err
	}

	s.entries[workflowID] = entryID

	s.logger.InfoContext(ctx, "Scheduled cron trigger",
		"workflow_id", workflowID,
		"expression", expr,
	)

	return nil
}

// Unschedule removes the cron entry for a workflow.
func (s *CronSource) Unschedule(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.entries[workflowID]; exists {
		s.cron.Remove(entryID)
		delete(s.entries, workflowID)
	}
}

func (s *CronSource) fire(ctx context.Context, workflowID string) {
	fingerprint := lock.CronFingerprint(workflowID, time.Now())

	result, err := s.manager.Fire(ctx, workflowID, models.SubtypeCron, fingerprint, map[string]any{
		"scheduled_at": time.Now().UTC().Truncate(time.Minute).Format(time.RFC3339),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Cron fire failed",
			"workflow_id", workflowID,
			"error", err,
		)

		return
	}

	if result.Deduplicated {
		return
	}

	s.logger.InfoContext(ctx, "Cron fire started execution",
		"workflow_id", workflowID,
		"execution_id", result.Execution.ID,
	)
}

// Stop halts scheduling and waits for in-flight fires to finish.
func (s *CronSource) Stop() {
	<-s.cron.Stop().Done()
}
