package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ehr/casegen/internal/platform/fhir"
)

func floatPtr(v float64) *float64 { return &v }

func TestClassifySystem(t *testing.T) {
	assert.Equal(t, "SNOMED", ClassifySystem("http://snomed.info/sct"))
	assert.Equal(t, "ICD-9", ClassifySystem("http://hl7.org/fhir/sid/icd-9-cm"))
	assert.Equal(t, "ICD-10", ClassifySystem("http://hl7.org/fhir/sid/icd-10-cm"))
	assert.Equal(t, "Other", ClassifySystem("http://loinc.org"))
	assert.Equal(t, "Other", ClassifySystem(""))
}

func TestFormatObservationValue(t *testing.T) {
	tests := []struct {
		name string
		obs  fhir.Observation
		want string
	}{
		{"quantity with unit", fhir.Observation{ValueQuantity: &fhir.Quantity{Value: floatPtr(12.5), Unit: "IU/mL"}}, "12.5 IU/mL"},
		{"quantity with code", fhir.Observation{ValueQuantity: &fhir.Quantity{Value: floatPtr(3), Code: "mg"}}, "3 mg"},
		{"quantity no unit", fhir.Observation{ValueQuantity: &fhir.Quantity{Value: floatPtr(200)}}, "200"},
		{"string", fhir.Observation{ValueString: " positive "}, "positive"},
		{"coded display", fhir.Observation{ValueCodeableConcept: &fhir.CodeableConcept{Coding: []fhir.Coding{{Code: "10828004", Display: "Positive"}}}}, "Positive"},
		{"coded text", fhir.Observation{ValueCodeableConcept: &fhir.CodeableConcept{Text: "Reactive"}}, "Reactive"},
		{"coded code", fhir.Observation{ValueCodeableConcept: &fhir.CodeableConcept{Coding: []fhir.Coding{{Code: "260385009"}}}}, "260385009"},
		{"none", fhir.Observation{}, "N/A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatObservationValue(&tt.obs))
		})
	}
}

func TestSummarizeCondition(t *testing.T) {
	c := summarizeCondition(&fhir.Condition{Code: &fhir.CodeableConcept{
		Coding: []fhir.Coding{{System: "http://snomed.info/sct", Code: "86406008", Display: "HIV infection"}},
	}})
	assert.Equal(t, ConditionSummary{Code: "86406008", Display: "HIV infection", System: "SNOMED"}, c)

	c = summarizeCondition(&fhir.Condition{Code: &fhir.CodeableConcept{Text: "Pregnancy"}})
	assert.Equal(t, "Pregnancy", c.Display)
	assert.Equal(t, "Other", c.System)

	c = summarizeCondition(&fhir.Condition{})
	assert.Equal(t, "Unknown", c.Display)
}

func TestSummarizeObservation(t *testing.T) {
	o := summarizeObservation(&fhir.Observation{
		Code:        &fhir.CodeableConcept{Coding: []fhir.Coding{{Code: "20458-3", Display: "Rubella IgG"}}},
		ValueString: "positive",
	})
	assert.Equal(t, ObservationSummary{Code: "20458-3", Display: "Rubella IgG", Value: "positive"}, o)

	o = summarizeObservation(&fhir.Observation{Code: &fhir.CodeableConcept{Text: "lab"}})
	assert.Equal(t, "Unknown", o.Display)
	assert.Equal(t, "N/A", o.Value)
}
