// Package web exposes the HTTP surface: workflow management, deployment,
// trigger fires, and execution inspection.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/strandkit/strand/pkg/deploy"
	"github.com/strandkit/strand/pkg/engine"
	"github.com/strandkit/strand/pkg/lock"
	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/persistence"
	"github.com/strandkit/strand/pkg/registry"
	"github.com/strandkit/strand/pkg/trigger"
)

type APIHandlers struct {
	persistence persistence.Persistence
	deployer    *deploy.Service
	manager     *trigger.Manager
	engine      *engine.Engine
	registry    *registry.Registry
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	p persistence.Persistence,
	deployer *deploy.Service,
	manager *trigger.Manager,
	e *engine.Engine,
	r *registry.Registry,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		persistence: p,
		deployer:    deployer,
		manager:     manager,
		engine:      e,
		registry:    r,
		validator:   validator.New(),
		logger:      logger.With("module", "web"),
	}
}

// Register mounts all routes on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
	app.Get("/node-types", h.ListNodeTypes)

	app.Post("/workflows", h.CreateWorkflow)
	app.Get("/workflows", h.ListWorkflows)
	app.Get("/workflows/:id", h.GetWorkflow)
	app.Post("/workflows/:id/deploy", h.DeployWorkflow)
	app.Post("/workflows/:id/undeploy", h.UndeployWorkflow)
	app.Get("/workflows/:id/executions", h.ListExecutions)
	app.Post("/workflows/:id/fire", h.FireManual)

	app.Post("/webhooks/:id", h.FireWebhook)

	app.Get("/executions/:id", h.GetExecution)
	app.Post("/executions/:id/resume", h.ResumeExecution)
	app.Post("/executions/:id/cancel", h.CancelExecution)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// ListNodeTypes advertises the registered (type, subtype) pairs so graph
// editors can offer only executable nodes.
func (h *APIHandlers) ListNodeTypes(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"node_types": h.registry.RegisteredPairs()})
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now().UTC()
	workflow := &models.Workflow{
		ID:               uuid.NewString(),
		Name:             req.Name,
		Description:      req.Description,
		DeploymentStatus: models.DeploymentStatusPending,
		Nodes:            req.Nodes,
		Connections:      req.Connections,
		Variables:        req.Variables,
		Owner:            req.Owner,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := h.persistence.SaveWorkflow(c.Context(), workflow); err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	workflows, err := h.persistence.Workflows(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.persistence.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeployWorkflow(c fiber.Ctx) error {
	workflow, err := h.deployer.Deploy(c.Context(), c.Params("id"))
	if err != nil {
		if models.IsValidationError(err) && workflow != nil {
			// The failed status was persisted; report why.
			return badRequest(c, err.Error())
		}

		return handleError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) UndeployWorkflow(c fiber.Ctx) error {
	workflow, err := h.deployer.Undeploy(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	workflowID := c.Params("id")

	if _, err := h.persistence.WorkflowByID(c.Context(), workflowID); err != nil {
		return handleError(c, err)
	}

	executions, err := h.persistence.ExecutionsByWorkflow(c.Context(), workflowID)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

// FireManual starts an execution through the manual trigger. Every call is
// its own logical event, so the fingerprint is unique per request.
func (h *APIHandlers) FireManual(c fiber.Ctx) error {
	var req FireRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
	}

	payload := req.Payload
	if req.Actor != "" {
		if payload == nil {
			payload = map[string]any{}
		}

		payload["actor"] = req.Actor
	}

	workflowID := c.Params("id")
	fingerprint := lock.Fingerprint("manual", workflowID, uuid.NewString())

	result, err := h.manager.Fire(c.Context(), workflowID, models.SubtypeManual, fingerprint, payload)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(FireResponse{
		Deduplicated: result.Deduplicated,
		Execution:    result.Execution,
	})
}

// FireWebhook receives external webhook deliveries. The fingerprint comes
// from the X-Delivery-Id header when the sender provides one (GitHub,
// Slack), falling back to a hash of the raw body so plain retries of the
// same payload deduplicate too.
func (h *APIHandlers) FireWebhook(c fiber.Ctx) error {
	workflowID := c.Params("id")
	body := c.Body()

	deliveryID := c.Get("X-Delivery-Id")
	if deliveryID == "" {
		deliveryID = string(body)
	}

	fingerprint := lock.Fingerprint("webhook", workflowID, deliveryID)

	payload := map[string]any{}

	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return badRequest(c, "webhook body must be a JSON object")
		}
	}

	result, err := h.manager.Fire(c.Context(), workflowID, models.SubtypeWebhook, fingerprint, payload)
	if err != nil {
		return handleError(c, err)
	}

	status := fiber.StatusCreated
	if result.Deduplicated {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(FireResponse{
		Deduplicated: result.Deduplicated,
		Execution:    result.Execution,
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.persistence.ExecutionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	var req ResumeRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
	}

	execution, err := h.engine.Resume(c.Context(), c.Params("id"), req.Payload)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	if err := h.engine.Cancel(c.Context(), c.Params("id")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
