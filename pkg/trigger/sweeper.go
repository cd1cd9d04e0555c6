package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/strandkit/strand/pkg/engine"
	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/persistence"
)

const defaultSweepInterval = time.Minute

// TimeoutSweeper resumes suspended executions whose approval deadline
// passed, delivering a timed_out decision so the workflow can route to
// its timeout branch.
type TimeoutSweeper struct {
	persistence persistence.Persistence
	engine      *engine.Engine
	logger      *slog.Logger
	interval    time.Duration
	now         func() time.Time
}

func NewTimeoutSweeper(p persistence.Persistence, e *engine.Engine, logger *slog.Logger) *TimeoutSweeper {
	return &TimeoutSweeper{
		persistence: p,
		engine:      e,
		logger:      logger.With("module", "timeout_sweeper"),
		interval:    defaultSweepInterval,
		now:         time.Now,
	}
}

// WithInterval overrides the sweep cadence, mainly for tests.
func (s *TimeoutSweeper) WithInterval(interval time.Duration) *TimeoutSweeper {
	s.interval = interval

	return s
}

// Run sweeps until the context is cancelled.
func (s *TimeoutSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep resumes every waiting execution whose deadline has passed.
func (s *TimeoutSweeper) Sweep(ctx context.Context) {
	waiting, err := s.persistence.ExecutionsByStatus(ctx, models.ExecutionStatusWaiting)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list waiting executions", "error", err)

		return
	}

	now := s.now().UTC()

	for _, execution := range waiting {
		if execution.CurrentNodeID == "" {
			continue
		}

		run := execution.RunData[execution.CurrentNodeID]
		if run == nil || run.TimeoutAt == nil || run.TimeoutAt.After(now) {
			continue
		}

		s.logger.InfoContext(ctx, "Timing out suspended execution",
			"execution_id", execution.ID,
			"node_id", execution.CurrentNodeID,
			"timeout_at", run.TimeoutAt,
		)

		if _, err := s.engine.Resume(ctx, execution.ID, map[string]any{"timed_out": true}); err != nil {
			s.logger.ErrorContext(ctx, "Failed to time out execution",
				"execution_id", execution.ID,
				"error", err,
			)
		}
	}
}
