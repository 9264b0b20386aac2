package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeMalformedDocument = "MALFORMED_DOCUMENT"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeConcurrentRequest = "CONCURRENT_REQUEST"
	ErrCodeUnknownOption     = "UNKNOWN_OPTION"
	ErrCodeStaleGeneration   = "STALE_GENERATION"
	ErrCodeCollaborator      = "COLLABORATOR_ERROR"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeExpression        = "EXPRESSION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
)

// BotforgeError is the structured error type for all botforge operations.
type BotforgeError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *BotforgeError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *BotforgeError) Unwrap() error {
	return e.Cause
}

// NewError creates a new BotforgeError.
func NewError(code, message string) *BotforgeError {
	return &BotforgeError{Code: code, Message: message}
}

// NewErrorf creates a new BotforgeError with a formatted message.
func NewErrorf(code, format string, args ...any) *BotforgeError {
	return &BotforgeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *BotforgeError) WithNode(nodeID string) *BotforgeError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *BotforgeError) WithCause(err error) *BotforgeError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *BotforgeError) WithDetails(details map[string]any) *BotforgeError {
	e.Details = details
	return e
}

// IsCode reports whether err is a *BotforgeError carrying the given code.
func IsCode(err error, code string) bool {
	be, ok := err.(*BotforgeError)
	return ok && be.Code == code
}
