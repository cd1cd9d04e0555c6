package models

// Well-known port names. Executors may emit additional named ports
// (switch cases, human approval outcomes).
const (
	PortMain      = "main"
	PortTruePath  = "true_path"
	PortFalsePath = "false_path"
	PortDefault   = "default"
	PortLoopBody  = "loop_body"
	PortDone      = "done"
	PortApproved  = "approved"
	PortRejected  = "rejected"
	PortTimedOut  = "timed_out"
)

// Connection routes a source node's named output port to a target node.
// TargetInputIndex identifies which input slot of a multi-input target
// (merge) this connection feeds; single-input targets use index 0.
type Connection struct {
	SourceNodeID     string `json:"source_node_id" validate:"required"`
	TargetNodeID     string `json:"target_node_id" validate:"required"`
	Port             string `json:"port"           validate:"required"`
	TargetInputIndex int    `json:"target_input_index"`
}
