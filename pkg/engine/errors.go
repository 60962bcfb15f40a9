package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassStructural indicates a graph integrity failure (cycle, dangling
	// dependency). Blocks all further processing of the graph.
	ErrorClassStructural ErrorClass = "structural"

	// ErrorClassSchema indicates an out-of-range or malformed node field.
	// Blocks all further processing of the graph.
	ErrorClassSchema ErrorClass = "schema"

	// ErrorClassMergeConflict indicates a redundancy-elimination merge that
	// would have introduced a cycle. The merge is skipped; the pipeline continues.
	ErrorClassMergeConflict ErrorClass = "merge_conflict"

	// ErrorClassExecution indicates a node executor reported failure.
	// Retried per policy, then terminal.
	ErrorClassExecution ErrorClass = "execution"

	// ErrorClassCancellation indicates a cancellation request. Not a failure;
	// a normal terminal state.
	ErrorClassCancellation ErrorClass = "cancellation"
)

// EngineError represents a classified error with context.
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// NodeID is the task node that caused the error, if applicable.
	NodeID string `json:"node_id,omitempty"`

	// Cycle holds the offending dependency cycle for structural errors.
	Cycle []string `json:"cycle,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.NodeID != "" {
		if m := e.unwrapMessage(); m != "" {
			return fmt.Sprintf("[%s] %s (node=%s): %s", e.Class, e.Message, e.NodeID, m)
		}
		return fmt.Sprintf("[%s] %s (node=%s)", e.Class, e.Message, e.NodeID)
	}
	if m := e.unwrapMessage(); m != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, m)
	}
	return fmt.Sprintf("[%s] %s", e.Class, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewStructuralError creates a new structural error.
func NewStructuralError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassStructural,
		Message: message,
		Err:     err,
	}
}

// NewSchemaError creates a new schema error.
func NewSchemaError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassSchema,
		Message: message,
		Err:     err,
	}
}

// NewMergeConflictError creates a new merge conflict error.
func NewMergeConflictError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassMergeConflict,
		Message: message,
		Err:     err,
	}
}

// NewExecutionError creates a new execution failure error.
func NewExecutionError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassExecution,
		Message: message,
		Err:     err,
	}
}

// NewCancellationError creates a new cancellation error.
func NewCancellationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassCancellation,
		Message: message,
		Err:     err,
	}
}

// WithNode adds node context to an error.
func (e *EngineError) WithNode(nodeID string) *EngineError {
	e.NodeID = nodeID
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithCycle attaches the offending cycle path to an error.
func (e *EngineError) WithCycle(cycle []string) *EngineError {
	e.Cycle = cycle
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsStructural returns true if the error is classified as structural.
func IsStructural(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassStructural
	}
	return false
}

// IsSchema returns true if the error is classified as a schema error.
func IsSchema(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassSchema
	}
	return false
}

// IsMergeConflict returns true if the error is classified as a merge conflict.
func IsMergeConflict(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassMergeConflict
	}
	return false
}

// IsExecutionFailure returns true if the error is classified as an execution failure.
func IsExecutionFailure(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassExecution
	}
	return false
}

// IsCancellation returns true if the error is classified as a cancellation.
func IsCancellation(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassCancellation
	}
	return false
}

// IsRetryable returns true if the error can be retried. Only execution
// failures are retryable; structural and schema errors are caught before
// scheduling, and cancellation is terminal by definition.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassExecution && e.Code != ErrCodeNoExecutor
	}
	// Unclassified executor errors default to retryable.
	return true
}

// Common error codes.
const (
	ErrCodeCycle            = "CYCLE_DETECTED"
	ErrCodeDanglingDep      = "DANGLING_DEPENDENCY"
	ErrCodeDuplicateNode    = "DUPLICATE_NODE"
	ErrCodeNodeNotFound     = "NODE_NOT_FOUND"
	ErrCodeFieldRange       = "FIELD_OUT_OF_RANGE"
	ErrCodeValidation       = "VALIDATION_FAILED"
	ErrCodeNoExecutor       = "NO_EXECUTOR"
	ErrCodeRetriesExhausted = "RETRIES_EXHAUSTED"
	ErrCodeRunNotFound      = "RUN_NOT_FOUND"
	ErrCodeRunNotActive     = "RUN_NOT_ACTIVE"
	ErrCodeInternal         = "INTERNAL_ERROR"
)
