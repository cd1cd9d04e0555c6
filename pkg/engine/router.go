package engine

import (
	"github.com/strandkit/strand/pkg/models"
)

// dispatch is one node ready to run with its resolved input.
type dispatch struct {
	node   *models.Node
	input  map[string]any
	inputs map[int]map[string]any

	// resume carries the payload when re-entering a waiting node.
	resume map[string]any
}

// router resolves downstream targets after a node finishes. Join
// targets are barriers: the router records arrivals per input index and
// releases the node exactly once, when all required indices are
// present. A join target is any merge node, plus any node fed on more
// than one distinct input index, so multi-source fan-in (several memory
// nodes into one AI agent) waits for every upstream arrival too. All
// router state is owned by the engine's run loop goroutine.
type router struct {
	workflow   *models.Workflow
	required   map[string]map[int]bool
	arrivals   map[string]map[int]map[string]any
	dispatched map[string]bool
}

func newRouter(workflow *models.Workflow) *router {
	indices := make(map[string]map[int]bool)

	for _, conns := range workflow.Connections {
		for _, conn := range conns {
			if _, ok := workflow.NodeByID(conn.TargetNodeID); !ok {
				continue
			}

			if indices[conn.TargetNodeID] == nil {
				indices[conn.TargetNodeID] = make(map[int]bool)
			}

			indices[conn.TargetNodeID][conn.TargetInputIndex] = true
		}
	}

	required := make(map[string]map[int]bool)

	for targetID, arrived := range indices {
		target, _ := workflow.NodeByID(targetID)
		if isMergeNode(target) || len(arrived) > 1 {
			required[targetID] = arrived
		}
	}

	return &router{
		workflow:   workflow,
		required:   required,
		arrivals:   make(map[string]map[int]map[string]any),
		dispatched: make(map[string]bool),
	}
}

func isMergeNode(node *models.Node) bool {
	return node.Type == models.NodeTypeFlow && node.Subtype == models.SubtypeMerge
}

// hasDownstream reports whether any connection leaves the node on the
// given port. Nodes without one are branch leaves.
func (r *router) hasDownstream(sourceID, port string) bool {
	for _, conn := range r.workflow.Connections[sourceID] {
		if conn.Port != port {
			continue
		}

		if _, ok := r.workflow.NodeByID(conn.TargetNodeID); ok {
			return true
		}
	}

	return false
}

// route returns the dispatches made eligible by a node finishing on the
// given port. Join targets become eligible only on their final arrival.
func (r *router) route(sourceID, port string, output map[string]any) []dispatch {
	var ready []dispatch

	for _, conn := range r.workflow.Connections[sourceID] {
		if conn.Port != port {
			continue
		}

		target, ok := r.workflow.NodeByID(conn.TargetNodeID)
		if !ok {
			continue
		}

		if r.required[target.ID] == nil {
			ready = append(ready, dispatch{node: target, input: output})

			continue
		}

		if d, released := r.recordArrival(target, conn.TargetInputIndex, output); released {
			ready = append(ready, d)
		}
	}

	return ready
}

// recordArrival notes an input landing on a join target and releases
// the barrier when the last required index arrives.
func (r *router) recordArrival(target *models.Node, index int, output map[string]any) (dispatch, bool) {
	if r.dispatched[target.ID] {
		return dispatch{}, false
	}

	if r.arrivals[target.ID] == nil {
		r.arrivals[target.ID] = make(map[int]map[string]any)
	}

	r.arrivals[target.ID][index] = output

	for idx := range r.required[target.ID] {
		if _, arrived := r.arrivals[target.ID][idx]; !arrived {
			return dispatch{}, false
		}
	}

	r.dispatched[target.ID] = true

	inputs := r.arrivals[target.ID]

	// Join executors read Inputs; Input carries the lowest index for
	// convenience.
	lowest := -1
	for idx := range inputs {
		if lowest < 0 || idx < lowest {
			lowest = idx
		}
	}

	return dispatch{node: target, input: inputs[lowest], inputs: inputs}, true
}

// replay rebuilds join barrier state from persisted run data when an
// execution is resumed. Completed sources re-record their arrivals;
// join targets that already ran are marked dispatched so they never
// fire twice.
func (r *router) replay(execution *models.Execution) {
	for nodeID, run := range execution.RunData {
		if r.required[nodeID] == nil {
			continue
		}

		if run.Status == models.RunStatusSuccess || run.Status == models.RunStatusSkipped {
			r.dispatched[nodeID] = true
		}
	}

	for nodeID, run := range execution.RunData {
		if run.Status != models.RunStatusSuccess || run.OutputPort == "" {
			continue
		}

		for _, conn := range r.workflow.Connections[nodeID] {
			if conn.Port != run.OutputPort {
				continue
			}

			target, ok := r.workflow.NodeByID(conn.TargetNodeID)
			if !ok || r.required[target.ID] == nil || r.dispatched[target.ID] {
				continue
			}

			if r.arrivals[target.ID] == nil {
				r.arrivals[target.ID] = make(map[int]map[string]any)
			}

			r.arrivals[target.ID][conn.TargetInputIndex] = run.OutputData
		}
	}
}
