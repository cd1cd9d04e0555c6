// Package memory provides an in-process persistence implementation used by
// tests and single-node development setups.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/persistence"
)

type Memory struct {
	mu         sync.RWMutex
	workflows  map[string]*models.Workflow
	executions map[string]*models.Execution
}

func NewPersistence() *Memory {
	return &Memory{
		workflows:  make(map[string]*models.Workflow),
		executions: make(map[string]*models.Execution),
	}
}

func (m *Memory) Workflows(_ context.Context) ([]*models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Workflow, 0, len(m.workflows))
	for _, wf := range m.workflows {
		out = append(out, wf)
	}

	return out, nil
}

func (m *Memory) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workflows[workflow.ID] = workflow

	return nil
}

func (m *Memory) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wf, ok := m.workflows[id]
	if !ok {
		return nil, persistence.NewStoreError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
	}

	return wf, nil
}

// SaveExecution stores a deep copy so later engine mutations do not leak
// into previously persisted checkpoints.
func (m *Memory) SaveExecution(_ context.Context, execution *models.Execution) error {
	snapshot, err := copyExecution(execution)
	if err != nil {
		return persistence.NewStoreError("SaveExecution", execution.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.executions[execution.ID] = snapshot

	return nil
}

func (m *Memory) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exec, ok := m.executions[id]
	if !ok {
		return nil, persistence.NewStoreError("ExecutionByID", id, persistence.ErrExecutionNotFound)
	}

	snapshot, err := copyExecution(exec)
	if err != nil {
		return nil, persistence.NewStoreError("ExecutionByID", id, err)
	}

	return snapshot, nil
}

func (m *Memory) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Execution

	for _, exec := range m.executions {
		if exec.WorkflowID == workflowID {
			out = append(out, exec)
		}
	}

	return out, nil
}

func (m *Memory) ExecutionsByStatus(_ context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Execution

	for _, exec := range m.executions {
		if exec.Status == status {
			out = append(out, exec)
		}
	}

	return out, nil
}

func (m *Memory) HealthCheck(_ context.Context) error { return nil }

func (m *Memory) Close(_ context.Context) error { return nil }

func copyExecution(execution *models.Execution) (*models.Execution, error) {
	data, err := json.Marshal(execution)
	if err != nil {
		return nil, err
	}

	var out models.Execution

	err = json.Unmarshal(data, &out)
	if err != nil {
		return nil, err
	}

	return &out, nil
}
