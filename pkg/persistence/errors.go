package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrEnvironmentNotFound indicates no environment record exists for the owner.
	ErrEnvironmentNotFound = errors.New("environment record not found")

	// ErrExecutionLogNotFound indicates no log exists for the given execution.
	ErrExecutionLogNotFound = errors.New("execution log not found")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "ByID", "Save", "Delete")
	WorkflowID string // Workflow ID if applicable
	Err        error  // Underlying error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// EnvironmentError wraps environment-record errors with additional context.
type EnvironmentError struct {
	Op      string
	OwnerID string
	Err     error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("%s operation failed for environment of owner %s: %v", e.Op, e.OwnerID, e.Err)
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}

func (e *EnvironmentError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsEnvironmentNotFound checks if an error indicates a missing environment record.
func IsEnvironmentNotFound(err error) bool {
	return errors.Is(err, ErrEnvironmentNotFound)
}

// IsExecutionLogNotFound checks if an error indicates a missing execution log.
func IsExecutionLogNotFound(err error) bool {
	return errors.Is(err, ErrExecutionLogNotFound)
}
