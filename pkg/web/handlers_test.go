package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandkit/strand/pkg/deploy"
	"github.com/strandkit/strand/pkg/engine"
	"github.com/strandkit/strand/pkg/executors/action"
	"github.com/strandkit/strand/pkg/executors/humantask"
	triggerexec "github.com/strandkit/strand/pkg/executors/trigger"
	"github.com/strandkit/strand/pkg/integration"
	"github.com/strandkit/strand/pkg/lock"
	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/persistence/memory"
	"github.com/strandkit/strand/pkg/registry"
	"github.com/strandkit/strand/pkg/trigger"
	"github.com/strandkit/strand/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, *memory.Memory) {
	t.Helper()

	p := memory.NewPersistence()

	r := registry.NewRegistry(slog.Default())
	for _, executor := range triggerexec.NewAll() {
		r.Register(executor)
	}

	r.Register(action.NewActionExecutor(integration.NewRegistry(), slog.Default()))
	r.Register(humantask.NewExecutor())

	e := engine.NewEngine(p, r, slog.Default(), engine.Config{})
	manager := trigger.NewManager(p, e, lock.NewMemoryManager(), slog.Default())
	deployer := deploy.NewService(p, r, slog.Default())

	handlers := web.NewAPIHandlers(p, deployer, manager, e, r, slog.Default())

	app := fiber.New()
	handlers.Register(app)

	return app, p
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, raw
}

func webhookWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:               "wf-1",
		Name:             "Webhook to format",
		DeploymentStatus: models.DeploymentStatusDeployed,
		Nodes: []*models.Node{
			{ID: "trigger-1", Type: models.NodeTypeTrigger, Subtype: models.SubtypeWebhook},
			{
				ID:      "format-1",
				Type:    models.NodeTypeAction,
				Subtype: models.SubtypeDefault,
				Parameters: map[string]any{
					"operation": "format",
					"template":  "event: {event}",
				},
			},
		},
		Connections: map[string][]*models.Connection{
			"trigger-1": {
				{SourceNodeID: "trigger-1", TargetNodeID: "format-1", Port: models.PortMain},
			},
		},
	}
}

func TestCreateWorkflow(t *testing.T) {
	app, p := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name:  "Notify on push",
		Nodes: webhookWorkflow().Nodes,
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.DeploymentStatusPending, created.DeploymentStatus)

	saved, err := p.WorkflowByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Notify on push", saved.Name)
}

func TestCreateWorkflow_RejectsInvalidBody(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name: "ab", // Too short.
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "validation_error")
}

func TestDeployWorkflow_FlipsStatus(t *testing.T) {
	app, p := setupTestApp(t)

	workflow := webhookWorkflow()
	workflow.DeploymentStatus = models.DeploymentStatusPending
	require.NoError(t, p.SaveWorkflow(t.Context(), workflow))

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/wf-1/deploy", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var deployed models.Workflow
	require.NoError(t, json.Unmarshal(body, &deployed))
	assert.Equal(t, models.DeploymentStatusDeployed, deployed.DeploymentStatus)
}

func TestFireWebhook_RunsWorkflow(t *testing.T) {
	app, p := setupTestApp(t)
	require.NoError(t, p.SaveWorkflow(t.Context(), webhookWorkflow()))

	resp, body := doJSON(t, app, http.MethodPost, "/webhooks/wf-1", map[string]any{
		"event": "push",
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result web.FireResponse
	require.NoError(t, json.Unmarshal(body, &result))
	require.False(t, result.Deduplicated)
	require.NotNil(t, result.Execution)
	assert.Equal(t, models.ExecutionStatusSuccess, result.Execution.Status)
	assert.Equal(t, "event: push", result.Execution.RunData["format-1"].OutputData["result"])
}

func TestFireWebhook_RejectsUndeployedWorkflow(t *testing.T) {
	app, p := setupTestApp(t)

	workflow := webhookWorkflow()
	workflow.DeploymentStatus = models.DeploymentStatusPending
	require.NoError(t, p.SaveWorkflow(t.Context(), workflow))

	resp, _ := doJSON(t, app, http.MethodPost, "/webhooks/wf-1", map[string]any{})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResumeExecution_CompletesApproval(t *testing.T) {
	app, p := setupTestApp(t)

	workflow := &models.Workflow{
		ID:               "wf-approval",
		Name:             "Approval flow",
		DeploymentStatus: models.DeploymentStatusDeployed,
		Nodes: []*models.Node{
			{ID: "trigger-1", Type: models.NodeTypeTrigger, Subtype: models.SubtypeWebhook},
			{ID: "gate", Type: models.NodeTypeHumanInTheLoop, Subtype: models.SubtypeDefault},
			{
				ID:      "notify",
				Type:    models.NodeTypeAction,
				Subtype: models.SubtypeDefault,
				Parameters: map[string]any{
					"operation": "format",
					"template":  "approved",
				},
			},
		},
		Connections: map[string][]*models.Connection{
			"trigger-1": {
				{SourceNodeID: "trigger-1", TargetNodeID: "gate", Port: models.PortMain},
			},
			"gate": {
				{SourceNodeID: "gate", TargetNodeID: "notify", Port: models.PortApproved},
			},
		},
	}
	require.NoError(t, p.SaveWorkflow(t.Context(), workflow))

	resp, body := doJSON(t, app, http.MethodPost, "/webhooks/wf-approval", map[string]any{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var fired web.FireResponse
	require.NoError(t, json.Unmarshal(body, &fired))
	require.Equal(t, models.ExecutionStatusWaiting, fired.Execution.Status)

	resp, body = doJSON(t, app, http.MethodPost, "/executions/"+fired.Execution.ID+"/resume", web.ResumeRequest{
		Payload: map[string]any{"approved": true},
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var resumed models.Execution
	require.NoError(t, json.Unmarshal(body, &resumed))
	assert.Equal(t, models.ExecutionStatusSuccess, resumed.Status)
	assert.Equal(t, "approved", resumed.RunData["notify"].OutputData["result"])
}

func TestResumeExecution_ConflictWhenFinished(t *testing.T) {
	app, p := setupTestApp(t)
	require.NoError(t, p.SaveWorkflow(t.Context(), webhookWorkflow()))

	resp, body := doJSON(t, app, http.MethodPost, "/webhooks/wf-1", map[string]any{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var fired web.FireResponse
	require.NoError(t, json.Unmarshal(body, &fired))

	resp, _ = doJSON(t, app, http.MethodPost, "/executions/"+fired.Execution.ID+"/resume", nil)

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetExecution_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/executions/nope", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "not_found")
}
