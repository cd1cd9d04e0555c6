// Package protocol defines the interfaces and contracts between the engine
// and its pluggable executors and external collaborators.
package protocol

import (
	"context"

	"github.com/strandkit/strand/pkg/models"
)

// Executor implements one (type, subtype) pair's node semantics. Executors
// are stateless singletons: any per-call state lives in the execution
// context, never in the executor instance, which allows arbitrary
// concurrency across executions.
type Executor interface {
	// Type returns the node type this executor serves.
	Type() models.NodeType

	// Subtype returns the node subtype this executor serves.
	Subtype() models.NodeSubtype

	// Execute runs the node and reports the outcome. Executors return
	// errors only for engine-internal failures; collaborator failures are
	// reported inside the NodeResult so the engine can apply the node's
	// on_error policy.
	Execute(ctx context.Context, ec *models.ExecutionContext, node *models.Node) (models.NodeResult, error)

	// Schema returns the JSON schema for this executor's parameters, used
	// to validate node configuration at deploy time. A nil schema skips
	// schema validation.
	Schema() map[string]any
}
