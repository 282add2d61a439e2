package fhir

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ehr/casegen/pkg/fhirmodels"
)

// referencePattern matches FHIR references in the format "ResourceType/id".
// Underscores are accepted in the id because test-case ids double as
// patient ids and commonly contain them.
var referencePattern = regexp.MustCompile(`^[A-Z][a-zA-Z]+/[a-zA-Z0-9_\-\.]+$`)

// statusValues maps resource types to their valid status values per FHIR R4.
var statusValues = map[string][]string{
	KindImmunization: {
		fhirmodels.ImmunizationCompleted,
		fhirmodels.ImmunizationEnteredInError,
		fhirmodels.ImmunizationNotDone,
	},
	KindObservation: {
		fhirmodels.ObservationRegistered,
		fhirmodels.ObservationPreliminary,
		fhirmodels.ObservationFinal,
		fhirmodels.ObservationAmended,
		fhirmodels.ObservationCorrected,
		fhirmodels.ObservationCancelled,
		fhirmodels.ObservationEnteredInError,
		fhirmodels.ObservationUnknown,
	},
}

// genderValues is the AdministrativeGender value set.
var genderValues = []string{
	fhirmodels.GenderMale,
	fhirmodels.GenderFemale,
	fhirmodels.GenderOther,
	fhirmodels.GenderUnknown,
}

// requiredFields lists, per kind, the fields a resource must carry. A slice
// entry with several alternatives separated by "|" is satisfied by any one.
var requiredFields = map[string][]string{
	KindPatient:      {"birthDate"},
	KindImmunization: {"status", "vaccineCode", "patient.reference", "occurrenceDateTime|occurrenceString"},
	KindCondition:    {"code", "subject.reference"},
	KindObservation:  {"status", "code", "subject.reference"},
}

// ValidationResult holds the results of a FHIR resource validation.
type ValidationResult struct {
	Valid  bool
	Issues []OperationOutcomeIssue
}

// ToOperationOutcome converts a ValidationResult into an OperationOutcome.
func (vr *ValidationResult) ToOperationOutcome() *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue:        vr.Issues,
	}
}

func (vr *ValidationResult) fail(code, diagnostics, expression string) {
	vr.Valid = false
	issue := OperationOutcomeIssue{
		Severity:    IssueSeverityError,
		Code:        code,
		Diagnostics: diagnostics,
	}
	if expression != "" {
		issue.Expression = []string{expression}
	}
	vr.Issues = append(vr.Issues, issue)
}

// Validator checks test-case resources against the fields each kind requires.
type Validator struct{}

// NewValidator creates a new FHIR Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateResource validates a raw JSON resource.
func (v *Validator) ValidateResource(data json.RawMessage, requireID bool) *ValidationResult {
	var resource map[string]interface{}
	if err := json.Unmarshal(data, &resource); err != nil {
		result := &ValidationResult{}
		result.fail(IssueTypeStructure, "invalid JSON: "+err.Error(), "")
		return result
	}
	return v.ValidateResourceMap(resource, requireID)
}

// ValidateResourceMap validates a resource already parsed as a map.
func (v *Validator) ValidateResourceMap(resource map[string]interface{}, requireID bool) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if !v.validateResourceType(resource, result) {
		return result
	}
	if requireID {
		v.validateID(resource, result)
	}
	v.validateRequired(resource, result)
	v.validateStatus(resource, result)
	v.validateGender(resource, result)
	v.walkReferences(resource, "", result)

	return result
}

// ValidateStruct validates a typed resource by way of its JSON form.
func (v *Validator) ValidateStruct(resource interface{}) *ValidationResult {
	data, err := json.Marshal(resource)
	if err != nil {
		result := &ValidationResult{}
		result.fail(IssueTypeStructure, "marshal: "+err.Error(), "")
		return result
	}
	return v.ValidateResource(data, true)
}

func (v *Validator) validateResourceType(resource map[string]interface{}, result *ValidationResult) bool {
	rt, ok := resource["resourceType"]
	if !ok {
		result.fail(IssueTypeRequired, "resourceType is required", "resourceType")
		return false
	}
	rtStr, ok := rt.(string)
	if !ok || rtStr == "" {
		result.fail(IssueTypeValue, "resourceType must be a non-empty string", "resourceType")
		return false
	}
	if !IsKnownResourceType(rtStr) {
		result.fail(IssueTypeNotSupported, fmt.Sprintf("unsupported resourceType: %s", rtStr), "resourceType")
		return false
	}
	return true
}

func (v *Validator) validateID(resource map[string]interface{}, result *ValidationResult) {
	id, ok := resource["id"]
	if !ok {
		result.fail(IssueTypeRequired, "id is required", "id")
		return
	}
	if idStr, ok := id.(string); !ok || idStr == "" {
		result.fail(IssueTypeValue, "id must be a non-empty string", "id")
	}
}

func (v *Validator) validateRequired(resource map[string]interface{}, result *ValidationResult) {
	rt, _ := resource["resourceType"].(string)
	for _, field := range requiredFields[rt] {
		alternatives := strings.Split(field, "|")
		found := false
		for _, alt := range alternatives {
			if hasPath(resource, alt) {
				found = true
				break
			}
		}
		if !found {
			result.fail(IssueTypeRequired, fmt.Sprintf("%s.%s is required", rt, alternatives[0]), alternatives[0])
		}
	}
}

// hasPath reports whether a dotted path resolves to a non-empty value.
func hasPath(obj map[string]interface{}, path string) bool {
	head, rest, nested := strings.Cut(path, ".")
	val, ok := obj[head]
	if !ok || val == nil {
		return false
	}
	if nested {
		m, ok := val.(map[string]interface{})
		return ok && hasPath(m, rest)
	}
	switch typed := val.(type) {
	case string:
		return typed != ""
	case map[string]interface{}:
		return len(typed) > 0
	case []interface{}:
		return len(typed) > 0
	}
	return true
}

func (v *Validator) validateStatus(resource map[string]interface{}, result *ValidationResult) {
	status, ok := resource["status"]
	if !ok {
		return
	}
	statusStr, ok := status.(string)
	if !ok {
		result.fail(IssueTypeValue, "status must be a string", "status")
		return
	}

	rt, _ := resource["resourceType"].(string)
	validStatuses, hasStatuses := statusValues[rt]
	if !hasStatuses {
		return
	}
	for _, vs := range validStatuses {
		if vs == statusStr {
			return
		}
	}
	result.fail(IssueTypeValue,
		fmt.Sprintf("invalid status '%s' for %s; valid values: %s", statusStr, rt, strings.Join(validStatuses, ", ")),
		"status")
}

func (v *Validator) validateGender(resource map[string]interface{}, result *ValidationResult) {
	if rt, _ := resource["resourceType"].(string); rt != KindPatient {
		return
	}
	gender, ok := resource["gender"]
	if !ok || gender == nil {
		return
	}
	genderStr, _ := gender.(string)
	for _, g := range genderValues {
		if g == genderStr {
			return
		}
	}
	result.fail(IssueTypeValue,
		fmt.Sprintf("invalid gender '%v' for Patient; valid values: %s", gender, strings.Join(genderValues, ", ")),
		"gender")
}

// walkReferences recursively walks through a resource to find and validate reference fields.
func (v *Validator) walkReferences(obj map[string]interface{}, path string, result *ValidationResult) {
	for key, val := range obj {
		currentPath := key
		if path != "" {
			currentPath = path + "." + key
		}

		switch typedVal := val.(type) {
		case map[string]interface{}:
			if ref, ok := typedVal["reference"]; ok {
				refStr, isStr := ref.(string)
				if isStr && refStr != "" && !ValidateReferenceFormat(refStr) {
					result.fail(IssueTypeValue,
						fmt.Sprintf("invalid reference format '%s'; expected 'ResourceType/id'", refStr),
						currentPath+".reference")
				}
			}
			v.walkReferences(typedVal, currentPath, result)

		case []interface{}:
			for i, item := range typedVal {
				if m, ok := item.(map[string]interface{}); ok {
					v.walkReferences(m, fmt.Sprintf("%s[%d]", currentPath, i), result)
				}
			}
		}
	}
}

// ValidateReferenceFormat validates that a reference string matches "ResourceType/id".
func ValidateReferenceFormat(ref string) bool {
	return referencePattern.MatchString(ref)
}

// IsKnownResourceType returns true if the resource type is one a test case may hold.
func IsKnownResourceType(rt string) bool {
	for _, k := range ResourceKinds {
		if k == rt {
			return true
		}
	}
	return false
}
