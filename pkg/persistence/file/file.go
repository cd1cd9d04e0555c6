// Package file provides JSON file-backed persistence for workflows and
// executions. One document per entity, suitable for development and small
// single-node deployments.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/persistence"
)

const (
	workflowsDir  = "workflows"
	executionsDir = "executions"
)

type FilePersistence struct {
	root string
	mu   sync.Mutex // Serializes writes; reads go straight to the filesystem
}

func NewPersistence(root string) (*FilePersistence, error) {
	for _, dir := range []string{workflowsDir, executionsDir} {
		err := os.MkdirAll(filepath.Join(root, dir), 0750)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &FilePersistence{root: root}, nil
}

// validateID rejects identifiers that could escape the storage root.
func validateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, "/\\") {
		return errors.New("id contains invalid characters")
	}

	return nil
}

func (f *FilePersistence) write(dir, id string, v any) error {
	if err := validateID(id); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return os.WriteFile(filepath.Join(f.root, dir, id+".json"), data, 0600)
}

func (f *FilePersistence) read(dir, id string, v any) error {
	if err := validateID(id); err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(f.root, dir, id+".json")) // #nosec G304 -- path components are validated
	if err != nil {
		if os.IsNotExist(err) {
			return os.ErrNotExist
		}

		return fmt.Errorf("failed to read %s: %w", id, err)
	}

	return json.Unmarshal(data, v)
}

func (f *FilePersistence) list(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.root, dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	var ids []string

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}

	return ids, nil
}

func (f *FilePersistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := f.list(workflowsDir)
	if err != nil {
		return nil, persistence.NewStoreError("Workflows", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		wf, err := f.WorkflowByID(ctx, id)
		if err != nil {
			continue // Skip unreadable documents
		}

		workflows = append(workflows, wf)
	}

	return workflows, nil
}

func (f *FilePersistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	err := f.write(workflowsDir, workflow.ID, workflow)
	if err != nil {
		return persistence.NewStoreError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

func (f *FilePersistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	var wf models.Workflow

	err := f.read(workflowsDir, id, &wf)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewStoreError("WorkflowByID", id, err)
	}

	return &wf, nil
}

func (f *FilePersistence) SaveExecution(_ context.Context, execution *models.Execution) error {
	err := f.write(executionsDir, execution.ID, execution)
	if err != nil {
		return persistence.NewStoreError("SaveExecution", execution.ID, err)
	}

	return nil
}

func (f *FilePersistence) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	var exec models.Execution

	err := f.read(executionsDir, id, &exec)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStoreError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewStoreError("ExecutionByID", id, err)
	}

	return &exec, nil
}

func (f *FilePersistence) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return f.filterExecutions(ctx, func(e *models.Execution) bool {
		return e.WorkflowID == workflowID
	})
}

func (f *FilePersistence) ExecutionsByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	return f.filterExecutions(ctx, func(e *models.Execution) bool {
		return e.Status == status
	})
}

func (f *FilePersistence) filterExecutions(ctx context.Context, keep func(*models.Execution) bool) ([]*models.Execution, error) {
	ids, err := f.list(executionsDir)
	if err != nil {
		return nil, persistence.NewStoreError("ListExecutions", "", err)
	}

	var executions []*models.Execution

	for _, id := range ids {
		exec, err := f.ExecutionByID(ctx, id)
		if err != nil {
			continue
		}

		if keep(exec) {
			executions = append(executions, exec)
		}
	}

	return executions, nil
}

func (f *FilePersistence) HealthCheck(_ context.Context) error {
	_, err := os.Stat(f.root)

	return err
}

func (f *FilePersistence) Close(_ context.Context) error { return nil }
