package fhir

import (
	"errors"
	"fmt"
	"strings"
)

// OperationOutcome severity levels per FHIR R4 spec.
const (
	IssueSeverityFatal   = "fatal"
	IssueSeverityError   = "error"
	IssueSeverityWarning = "warning"
)

// OperationOutcome issue type codes per FHIR R4 spec.
const (
	IssueTypeStructure    = "structure"
	IssueTypeRequired     = "required"
	IssueTypeValue        = "value"
	IssueTypeNotSupported = "not-supported"
)

// OperationOutcome represents a FHIR OperationOutcome.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"`
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
	Expression  []string         `json:"expression,omitempty"`
}

// HasErrors returns true if the outcome contains any error or fatal issues.
func (o *OperationOutcome) HasErrors() bool {
	for _, issue := range o.Issue {
		if issue.Severity == IssueSeverityError || issue.Severity == IssueSeverityFatal {
			return true
		}
	}
	return false
}

// InvalidResourceError is returned when a resource file fails validation.
type InvalidResourceError struct {
	Kind   string
	ID     string
	Issues []OperationOutcomeIssue
}

func (e *InvalidResourceError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, issue.Diagnostics)
	}
	return fmt.Sprintf("invalid %s/%s: %s", e.Kind, e.ID, strings.Join(msgs, "; "))
}

// Outcome converts the error into an OperationOutcome.
func (e *InvalidResourceError) Outcome() *OperationOutcome {
	return &OperationOutcome{ResourceType: "OperationOutcome", Issue: e.Issues}
}

// OutcomeOf returns the OperationOutcome carried by an InvalidResourceError
// anywhere in err's chain, or nil.
func OutcomeOf(err error) *OperationOutcome {
	var invalid *InvalidResourceError
	if errors.As(err, &invalid) {
		return invalid.Outcome()
	}
	return nil
}
