package summary

import (
	"strconv"
	"strings"

	"github.com/ehr/casegen/internal/platform/fhir"
	"github.com/ehr/casegen/pkg/fhirmodels"
)

// CaseSummary holds the facts derived from one test case directory.
type CaseSummary struct {
	TestCaseID   string               `json:"testCaseId"`
	BirthDate    string               `json:"birthDate"`
	Age          Age                  `json:"age"`
	DoseDates    []string             `json:"doseDates"`
	Doses        []Dose               `json:"doses"`
	Conditions   []ConditionSummary   `json:"conditions"`
	Observations []ObservationSummary `json:"observations"`
	Notes        string               `json:"notes"`
}

// Dose is one qualifying vaccination with the patient's age at that date.
type Dose struct {
	Date        string `json:"date"`
	AgeInMonths int    `json:"ageInMonths"`
}

// DoseCount is the number of qualifying MMR doses.
func (c *CaseSummary) DoseCount() int {
	return len(c.DoseDates)
}

// HasClinicalData reports whether the case has any condition or observation.
func (c *CaseSummary) HasClinicalData() bool {
	return len(c.Conditions) > 0 || len(c.Observations) > 0
}

type ConditionSummary struct {
	Code    string `json:"code"`
	Display string `json:"display"`
	System  string `json:"system"`
}

type ObservationSummary struct {
	Code    string `json:"code"`
	Display string `json:"display"`
	Value   string `json:"value"`
}

// ClassifySystem maps a coding system URI to SNOMED, ICD-9, ICD-10 or Other.
func ClassifySystem(system string) string {
	switch {
	case strings.Contains(system, "snomed"):
		return fhirmodels.CodeSystemSNOMED
	case strings.Contains(system, "icd-9"):
		return fhirmodels.CodeSystemICD9
	case strings.Contains(system, "icd-10"):
		return fhirmodels.CodeSystemICD10
	}
	return fhirmodels.CodeSystemOther
}

func summarizeCondition(cond *fhir.Condition) ConditionSummary {
	coding := cond.Code.FirstCoding()
	display := coding.Display
	if display == "" && cond.Code != nil {
		display = cond.Code.Text
	}
	if display == "" {
		display = "Unknown"
	}
	return ConditionSummary{
		Code:    coding.Code,
		Display: display,
		System:  ClassifySystem(coding.System),
	}
}

func summarizeObservation(obs *fhir.Observation) ObservationSummary {
	coding := obs.Code.FirstCoding()
	display := coding.Display
	if display == "" {
		display = "Unknown"
	}
	return ObservationSummary{
		Code:    coding.Code,
		Display: display,
		Value:   FormatObservationValue(obs),
	}
}

// FormatObservationValue renders "<value> <unit>" for quantities, falling
// back to the string or coded value, or "N/A".
func FormatObservationValue(obs *fhir.Observation) string {
	switch {
	case obs.ValueQuantity != nil:
		q := obs.ValueQuantity
		value := ""
		if q.Value != nil {
			value = strconv.FormatFloat(*q.Value, 'f', -1, 64)
		}
		unit := q.Unit
		if unit == "" {
			unit = q.Code
		}
		return strings.TrimSpace(value + " " + unit)
	case obs.ValueString != "":
		return strings.TrimSpace(obs.ValueString)
	case obs.ValueCodeableConcept != nil:
		coding := obs.ValueCodeableConcept.FirstCoding()
		if coding.Display != "" {
			return coding.Display
		}
		if obs.ValueCodeableConcept.Text != "" {
			return obs.ValueCodeableConcept.Text
		}
		if coding.Code != "" {
			return coding.Code
		}
	}
	return "N/A"
}
