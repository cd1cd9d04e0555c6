// Package registry maps (type, subtype) pairs to node executors and
// validates node configuration against executor schemas before a workflow
// is allowed to run.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/protocol"
)

type executorKey struct {
	nodeType models.NodeType
	subtype  models.NodeSubtype
}

type Registry struct {
	logger    *slog.Logger
	executors map[executorKey]protocol.Executor
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		executors: make(map[executorKey]protocol.Executor),
	}
}

// Register adds an executor. Registering the same (type, subtype) pair
// twice is a programming error and panics at startup rather than silently
// shadowing an executor mid-flight.
func (r *Registry) Register(executor protocol.Executor) {
	key := executorKey{nodeType: executor.Type(), subtype: executor.Subtype()}

	if _, exists := r.executors[key]; exists {
		panic(fmt.Sprintf("executor already registered for %s/%s", key.nodeType, key.subtype))
	}

	r.executors[key] = executor
}

// Resolve looks up the executor for a (type, subtype) pair.
func (r *Registry) Resolve(nodeType models.NodeType, subtype models.NodeSubtype) (protocol.Executor, bool) {
	executor, found := r.executors[executorKey{nodeType: nodeType, subtype: subtype}]

	return executor, found
}

// ResolveNode resolves the executor for a node, returning a typed error
// for unregistered pairs.
func (r *Registry) ResolveNode(node *models.Node) (protocol.Executor, error) {
	executor, found := r.Resolve(node.Type, node.Subtype)
	if !found {
		return nil, &models.ExecutorNotFoundError{Type: node.Type, Subtype: node.Subtype}
	}

	return executor, nil
}

// ValidateNode checks that the node resolves to a registered executor and
// that its parameters satisfy the executor's JSON schema. Called at deploy
// time so configuration errors never surface mid-execution.
func (r *Registry) ValidateNode(node *models.Node) error {
	executor, err := r.ResolveNode(node)
	if err != nil {
		return err
	}

	schema := executor.Schema()
	if schema == nil {
		return nil
	}

	params := node.Parameters
	if params == nil {
		params = map[string]any{}
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return &models.ValidationError{Subject: node.ID, Reason: "parameters are not serializable", Err: err}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewBytesLoader(paramsJSON))
	if err != nil {
		return &models.ValidationError{Subject: node.ID, Reason: "schema validation failed", Err: err}
	}

	if !result.Valid() {
		detail := ""
		for _, desc := range result.Errors() {
			if detail != "" {
				detail += "; "
			}

			detail += desc.String()
		}

		return models.NewValidationError(node.ID, detail)
	}

	return nil
}

// RegisteredPairs lists all registered (type, subtype) pairs, used by the
// API to advertise available node types.
func (r *Registry) RegisteredPairs() []string {
	pairs := make([]string, 0, len(r.executors))
	for key := range r.executors {
		pairs = append(pairs, string(key.nodeType)+"/"+string(key.subtype))
	}

	return pairs
}
