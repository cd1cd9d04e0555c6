package web

import "github.com/strandkit/strand/pkg/models"

// CreateWorkflowRequest is the POST /workflows payload. Workflows are
// created pending; deployment is a separate, validated step.
type CreateWorkflowRequest struct {
	Name        string                          `json:"name"        validate:"required,min=3"`
	Description string                          `json:"description"`
	Nodes       []*models.Node                  `json:"nodes"       validate:"required,min=1,dive"`
	Connections map[string][]*models.Connection `json:"connections"`
	Variables   map[string]any                  `json:"variables"`
	Owner       string                          `json:"owner"`
}

// FireRequest is the body for manual trigger fires.
type FireRequest struct {
	Actor   string         `json:"actor"`
	Payload map[string]any `json:"payload"`
}

// ResumeRequest carries the decision payload delivered to a waiting node.
type ResumeRequest struct {
	Payload map[string]any `json:"payload"`
}

// FireResponse reports a fire outcome to the caller.
type FireResponse struct {
	Deduplicated bool              `json:"deduplicated"`
	Execution    *models.Execution `json:"execution,omitempty"`
}
