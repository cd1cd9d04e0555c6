package protocol

import (
	"context"
	"errors"

	"github.com/strandkit/strand/pkg/models"
)

// LLMCall is a single completion request to an external model provider.
type LLMCall struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Temperature  float64
	MaxTokens    int
}

// LLMUsage reports provider token accounting.
type LLMUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMResponse is a successful provider reply. Content-level sanity checks
// happen in the AI agent executor; a response here may still be rejected
// as a ResponseContentError.
type LLMResponse struct {
	Content string   `json:"content"`
	Usage   LLMUsage `json:"usage"`
}

// LLMClient is the provider boundary for AI agent nodes. Implementations
// must classify failures with a models.ErrorKind via LLMError so the
// engine's retry policy can distinguish transient from permanent faults.
type LLMClient interface {
	Call(ctx context.Context, call LLMCall) (*LLMResponse, error)
}

// LLMError is the classified failure returned by LLM clients.
type LLMError struct {
	Kind    models.ErrorKind
	Message string
}

func (e *LLMError) Error() string {
	return "llm provider error (" + string(e.Kind) + "): " + e.Message
}

// IntegrationAdapter is the boundary for action, external action, and tool
// nodes. Errors must be classified retryable (network, 5xx, rate limit)
// or permanent (validation, auth) via AdapterError.
type IntegrationAdapter interface {
	// Name identifies the integration (http, slack, github, calendar, notion).
	Name() string

	// Call invokes a named operation with node-supplied parameters.
	Call(ctx context.Context, operation string, parameters map[string]any, credentials map[string]string) (map[string]any, error)
}

// AdapterError is the classified failure returned by integration adapters.
type AdapterError struct {
	Adapter   string
	Operation string
	Kind      models.ErrorKind
	Err       error
}

func (e *AdapterError) Error() string {
	return e.Adapter + "." + e.Operation + " failed (" + string(e.Kind) + "): " + e.Err.Error()
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Retryable reports whether retrying the call is meaningful.
func (e *AdapterError) Retryable() bool { return e.Kind.Retryable() }

// Classify extracts the ErrorKind from a collaborator error chain,
// falling back to the shared model taxonomy for everything else.
func Classify(err error) models.ErrorKind {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind
	}

	var le *LLMError
	if errors.As(err, &le) {
		return le.Kind
	}

	return models.ClassifyError(err)
}

// ErrTokenNotFound is returned when no valid credential exists for a
// (user, provider) pair.
var ErrTokenNotFound = errors.New("credential token not found")

// CredentialProvider resolves tokens for integration calls. Refreshing
// expired tokens is the provider's responsibility, not the engine's.
type CredentialProvider interface {
	GetValidToken(ctx context.Context, userID, provider string) (string, error)
}
