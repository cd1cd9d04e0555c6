// Package models: error taxonomy shared by the engine, executors, and
// collaborator clients.
package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a collaborator failure for retry decisions.
type ErrorKind string

const (
	ErrorKindAuth           ErrorKind = "auth"
	ErrorKindRateLimit      ErrorKind = "rate_limit"
	ErrorKindInvalidRequest ErrorKind = "invalid_request"
	ErrorKindModelError     ErrorKind = "model_error"
	ErrorKindNetwork        ErrorKind = "network"
	ErrorKindTimeout        ErrorKind = "timeout"
	ErrorKindResponse       ErrorKind = "response_error"
	ErrorKindUnknown        ErrorKind = "unknown"
)

// Retryable reports whether a retry is meaningful for this kind.
// Response errors are retryable once; the engine enforces that cap.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindNetwork, ErrorKindTimeout, ErrorKindRateLimit, ErrorKindModelError, ErrorKindResponse:
		return true
	default:
		return false
	}
}

// ValidationError indicates bad workflow or node configuration. Fatal, never retried.
type ValidationError struct {
	Subject string // What was being validated (workflow ID, node ID, parameter name)
	Reason  string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed for %s: %s: %v", e.Subject, e.Reason, e.Err)
	}

	return fmt.Sprintf("validation failed for %s: %s", e.Subject, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError creates a validation error for a subject.
func NewValidationError(subject, reason string) *ValidationError {
	return &ValidationError{Subject: subject, Reason: reason}
}

// IsValidationError checks whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError

	return errors.As(err, &ve)
}

// ExecutorNotFoundError indicates an unregistered (type, subtype) pair.
// Surfaced at deploy time by registry validation whenever possible.
type ExecutorNotFoundError struct {
	Type    NodeType
	Subtype NodeSubtype
}

func (e *ExecutorNotFoundError) Error() string {
	return fmt.Sprintf("no executor registered for %s/%s", e.Type, e.Subtype)
}

// NodeExecutionError wraps a collaborator failure observed while running a node.
type NodeExecutionError struct {
	NodeID string
	Kind   ErrorKind
	Err    error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s failed (%s): %v", e.NodeID, e.Kind, e.Err)
}

func (e *NodeExecutionError) Unwrap() error { return e.Err }

// Retryable reports whether the wrapped failure is worth retrying.
func (e *NodeExecutionError) Retryable() bool { return e.Kind.Retryable() }

// NewNodeExecutionError wraps err with a node ID and kind.
func NewNodeExecutionError(nodeID string, kind ErrorKind, err error) *NodeExecutionError {
	return &NodeExecutionError{NodeID: nodeID, Kind: kind, Err: err}
}

// ResponseContentError marks a "successful" collaborator call whose payload
// failed semantic sanity checks (HTTP 200 with an error body, empty or
// truncated model output). Retryable once, then treated as permanent.
type ResponseContentError struct {
	Reason  string
	Content string
}

func (e *ResponseContentError) Error() string {
	return "response content rejected: " + e.Reason
}

// IsResponseContentError checks whether err is (or wraps) a ResponseContentError.
func IsResponseContentError(err error) bool {
	var rce *ResponseContentError

	return errors.As(err, &rce)
}

// ClassifyError extracts the ErrorKind from an error chain, defaulting to
// unknown for unclassified failures.
func ClassifyError(err error) ErrorKind {
	var nee *NodeExecutionError
	if errors.As(err, &nee) {
		return nee.Kind
	}

	if IsResponseContentError(err) {
		return ErrorKindResponse
	}

	if IsValidationError(err) {
		return ErrorKindInvalidRequest
	}

	return ErrorKindUnknown
}
