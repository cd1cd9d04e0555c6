// Package postgres provides PostgreSQL persistence for workflows and
// executions. Entities are stored as JSONB documents with indexed
// columns for the fields used in queries.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/persistence"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS executions (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	status      TEXT NOT NULL,
	document    JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_executions_workflow ON executions (workflow_id);
CREATE INDEX IF NOT EXISTS idx_executions_status ON executions (status);
`

type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	_, err = database.ExecContext(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Persistence{db: database, logger: logger.With("module", "postgres_persistence")}, nil
}

func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT document FROM workflows`)
	if err != nil {
		return nil, persistence.NewStoreError("Workflows", "", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow

	for rows.Next() {
		var doc []byte

		if err := rows.Scan(&doc); err != nil {
			return nil, persistence.NewStoreError("Workflows", "", err)
		}

		var wf models.Workflow
		if err := json.Unmarshal(doc, &wf); err != nil {
			return nil, persistence.NewStoreError("Workflows", "", err)
		}

		workflows = append(workflows, &wf)
	}

	return workflows, rows.Err()
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	doc, err := json.Marshal(workflow)
	if err != nil {
		return persistence.NewStoreError("SaveWorkflow", workflow.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO workflows (id, status, document, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET status = $2, document = $3, updated_at = now()`,
		workflow.ID, string(workflow.DeploymentStatus), doc)
	if err != nil {
		return persistence.NewStoreError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	var doc []byte

	err := p.db.QueryRowContext(ctx, `SELECT document FROM workflows WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStoreError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("WorkflowByID", id, err)
	}

	var wf models.Workflow
	if err := json.Unmarshal(doc, &wf); err != nil {
		return nil, persistence.NewStoreError("WorkflowByID", id, err)
	}

	return &wf, nil
}

func (p *Persistence) SaveExecution(ctx context.Context, execution *models.Execution) error {
	doc, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewStoreError("SaveExecution", execution.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, status, document, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET status = $3, document = $4, updated_at = now()`,
		execution.ID, execution.WorkflowID, string(execution.Status), doc)
	if err != nil {
		return persistence.NewStoreError("SaveExecution", execution.ID, err)
	}

	return nil
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	var doc []byte

	err := p.db.QueryRowContext(ctx, `SELECT document FROM executions WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStoreError("ExecutionByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("ExecutionByID", id, err)
	}

	var exec models.Execution
	if err := json.Unmarshal(doc, &exec); err != nil {
		return nil, persistence.NewStoreError("ExecutionByID", id, err)
	}

	return &exec, nil
}

func (p *Persistence) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return p.queryExecutions(ctx, `SELECT document FROM executions WHERE workflow_id = $1`, workflowID)
}

func (p *Persistence) ExecutionsByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	return p.queryExecutions(ctx, `SELECT document FROM executions WHERE status = $1`, string(status))
}

func (p *Persistence) queryExecutions(ctx context.Context, query string, arg any) ([]*models.Execution, error) {
	rows, err := p.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, persistence.NewStoreError("ListExecutions", "", err)
	}
	defer rows.Close()

	var executions []*models.Execution

	for rows.Next() {
		var doc []byte

		if err := rows.Scan(&doc); err != nil {
			return nil, persistence.NewStoreError("ListExecutions", "", err)
		}

		var exec models.Execution
		if err := json.Unmarshal(doc, &exec); err != nil {
			return nil, persistence.NewStoreError("ListExecutions", "", err)
		}

		executions = append(executions, &exec)
	}

	return executions, rows.Err()
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		return p.db.Close()
	}

	return nil
}
