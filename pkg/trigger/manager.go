// Package trigger hosts the firing side of the system: the manager that
// deduplicates fires through the distributed lock, the cron and webhook
// sources that call it, and the sweeper that times out stale approvals.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/strandkit/strand/pkg/engine"
	"github.com/strandkit/strand/pkg/events"
	"github.com/strandkit/strand/pkg/lock"
	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/persistence"
)

const (
	defaultLeaseTTL      = 30 * time.Second
	defaultRenewInterval = 10 * time.Second
)

// FireResult reports what happened to a firing.
type FireResult struct {
	// Deduplicated is true when another holder owns the lease for this
	// fingerprint; no execution was started and none will be by us.
	Deduplicated bool

	Execution *models.Execution
}

// Manager guards workflow execution behind the distributed lock so that
// redundant fires of the same logical event collapse to one execution.
type Manager struct {
	persistence persistence.Persistence
	engine      *engine.Engine
	locks       lock.Manager
	publisher   events.Publisher
	logger      *slog.Logger

	leaseTTL      time.Duration
	renewInterval time.Duration
}

func NewManager(p persistence.Persistence, e *engine.Engine, locks lock.Manager, logger *slog.Logger) *Manager {
	return &Manager{
		persistence:   p,
		engine:        e,
		locks:         locks,
		logger:        logger.With("module", "trigger_manager"),
		leaseTTL:      defaultLeaseTTL,
		renewInterval: defaultRenewInterval,
	}
}

// WithPublisher attaches a lifecycle event publisher.
func (m *Manager) WithPublisher(publisher events.Publisher) *Manager {
	m.publisher = publisher

	return m
}

// WithLease overrides lease timing, mainly for tests.
func (m *Manager) WithLease(ttl, renewInterval time.Duration) *Manager {
	m.leaseTTL = ttl
	m.renewInterval = renewInterval

	return m
}

// Fire runs a workflow for one logical trigger event. Exactly one of
// two concurrent fires with the same fingerprint starts an execution;
// the other observes Deduplicated and does nothing.
func (m *Manager) Fire(ctx context.Context, workflowID string, triggerType models.NodeSubtype, fingerprint string, payload map[string]any) (*FireResult, error) {
	workflow, err := m.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.IsDeployed() {
		return nil, models.NewValidationError(workflowID, "workflow is not deployed")
	}

	lease, err := m.locks.Acquire(ctx, lock.Key(workflowID, fingerprint), m.engine.WorkerID(), m.leaseTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			m.logger.InfoContext(ctx, "Trigger fire deduplicated",
				"workflow_id", workflowID,
				"fingerprint", fingerprint,
			)

			m.publish(ctx, events.NewTriggerFired(workflowID, triggerType, fingerprint, true))

			return &FireResult{Deduplicated: true}, nil
		}

		return nil, fmt.Errorf("failed to acquire trigger lease: %w", err)
	}

	// Release on every exit path; a crashed worker's lease expires on
	// its own.
	defer func() {
		if err := m.locks.Release(context.WithoutCancel(ctx), lease); err != nil {
			m.logger.WarnContext(ctx, "Failed to release trigger lease",
				"workflow_id", workflowID,
				"fingerprint", fingerprint,
				"error", err,
			)
		}
	}()

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()

	go m.heartbeat(heartbeatCtx, lease)

	m.publish(ctx, events.NewTriggerFired(workflowID, triggerType, fingerprint, false))

	execution, err := m.engine.Execute(ctx, workflow, models.TriggerInfo{
		Type:        triggerType,
		Fingerprint: fingerprint,
		Payload:     payload,
	})
	if err != nil {
		return nil, err
	}

	return &FireResult{Execution: execution}, nil
}

// heartbeat renews the lease while the execution runs. A lost lease is
// logged but does not abort the execution: the original fire already
// won the dedup race.
func (m *Manager) heartbeat(ctx context.Context, lease *lock.Lease) {
	ticker := time.NewTicker(m.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.locks.Renew(ctx, lease); err != nil {
				if !errors.Is(err, context.Canceled) {
					m.logger.WarnContext(ctx, "Trigger lease renewal failed", "key", lease.Key, "error", err)
				}

				return
			}
		}
	}
}

func (m *Manager) publish(ctx context.Context, event events.Event) {
	if m.publisher == nil {
		return
	}

	if err := m.publisher.Publish(ctx, events.TriggerTopic, event); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish trigger event",
			"event_type", event.GetType(),
			"error", err,
		)
	}
}
