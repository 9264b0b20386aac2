package schema

import "fmt"

// ValidationSeverity indicates whether a finding is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is a single validation finding with node context.
// NodeID is empty for graph-level findings.
type ValidationIssue struct {
	NodeID   string             `json:"node_id,omitempty"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// String renders the finding in the human-readable form shown to authors.
func (i ValidationIssue) String() string {
	if i.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", i.Severity, i.NodeID, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Severity, i.Message)
}

// ValidationResult aggregates every finding from a validation pass. Checks
// are independent: a single run surfaces every problem, never just the first.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid returns true if there are no errors (warnings are acceptable).
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError appends an error-severity finding.
func (r *ValidationResult) AddError(nodeID, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		NodeID: nodeID, Code: code, Message: message, Severity: SeverityError,
	})
}

// AddErrorf appends an error-severity finding with a formatted message.
func (r *ValidationResult) AddErrorf(nodeID, code, format string, args ...any) {
	r.AddError(nodeID, code, fmt.Sprintf(format, args...))
}

// AddWarning appends a warning-severity finding.
func (r *ValidationResult) AddWarning(nodeID, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		NodeID: nodeID, Code: code, Message: message, Severity: SeverityWarning,
	})
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Findings returns every finding, errors first, as display strings.
func (r *ValidationResult) Findings() []string {
	out := make([]string, 0, len(r.Errors)+len(r.Warnings))
	for _, i := range r.Errors {
		out = append(out, i.String())
	}
	for _, i := range r.Warnings {
		out = append(out, i.String())
	}
	return out
}

// ToError converts the result to a BotforgeError if invalid, nil if valid.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].Message
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}
