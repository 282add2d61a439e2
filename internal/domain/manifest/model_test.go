package manifest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullManifest = `
testCaseId: MMR_004_TwoDoses
description: 4 year old with two prior MMR doses
patient:
  name:
    given: [Ada, Grace]
    family: Test
  gender: female
  birthDate:
    relative: 48 months before reference
clinicalScenario:
  ruleFires: false
immunizations:
  - vaccineCode:
      coding:
        - system: http://hl7.org/fhir/sid/cvx
          code: "03"
          display: MMR
    occurrenceDateTime:
      relative: 36 months before reference
  - id: imm-explicit
    status: completed
    primarySource: false
    vaccineCode:
      coding:
        - system: http://hl7.org/fhir/sid/cvx
          code: "94"
    occurrenceDateTime: 2024-03-01
conditions:
  - code:
      coding:
        - system: http://snomed.info/sct
          code: "86406008"
          display: HIV infection
    onsetDateTime:
      relative: 2 years before reference
observations:
  - code:
      coding:
        - system: http://loinc.org
          code: 20458-3
          display: Rubella IgG
    valueQuantity:
      value: 12.5
      unit: IU/mL
    effectiveDateTime:
      relative: 1 week before reference
expectedResults:
  All Doses Due Now: false
  Any Dose Due Now: false
`

func TestParse_FullManifest(t *testing.T) {
	m, err := Parse([]byte(fullManifest))
	require.NoError(t, err)

	assert.Equal(t, "MMR_004_TwoDoses", m.TestCaseID)
	assert.Equal(t, "MMR_004_TwoDoses", m.PatientID())
	assert.Equal(t, GivenNames{"Ada", "Grace"}, m.Patient.Name.Given)
	assert.Equal(t, "48 months before reference", m.Patient.BirthDate.Relative)
	require.NotNil(t, m.ClinicalScenario)
	assert.False(t, m.ClinicalScenario.RuleFires)

	require.Len(t, m.Immunizations, 2)
	assert.Equal(t, "36 months before reference", m.Immunizations[0].OccurrenceDateTime.Relative)
	assert.Nil(t, m.Immunizations[0].PrimarySource)
	assert.Equal(t, "03", m.Immunizations[0].VaccineCode.FirstCoding().Code)
	assert.Equal(t, "imm-explicit", m.Immunizations[1].ID)
	assert.Equal(t, "2024-03-01", m.Immunizations[1].OccurrenceDateTime.Absolute)
	require.NotNil(t, m.Immunizations[1].PrimarySource)
	assert.False(t, *m.Immunizations[1].PrimarySource)

	require.Len(t, m.Conditions, 1)
	assert.Equal(t, "HIV infection", m.Conditions[0].Code.FirstCoding().Display)

	require.Len(t, m.Observations, 1)
	require.NotNil(t, m.Observations[0].ValueQuantity)
	require.NotNil(t, m.Observations[0].ValueQuantity.Value)
	assert.Equal(t, 12.5, *m.Observations[0].ValueQuantity.Value)
	assert.Equal(t, "20458-3", m.Observations[0].Code.FirstCoding().Code)

	assert.True(t, m.ExpectedResults.IsFlagStyle())
}

func TestParse_GivenNameScalar(t *testing.T) {
	m, err := Parse([]byte(`
testCaseId: MMR_001
description: infant
patient:
  id: custom-patient
  name: {given: Sam, family: Test}
  gender: male
  birthDate: 2025-01-01
`))
	require.NoError(t, err)
	assert.Equal(t, GivenNames{"Sam"}, m.Patient.Name.Given)
	assert.Equal(t, "custom-patient", m.PatientID())
	assert.Equal(t, "2025-01-01", m.Patient.BirthDate.Absolute)
	assert.Empty(t, m.Immunizations)
}

func TestParse_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"testCaseId", `description: x`, "testCaseId"},
		{"description", `testCaseId: a`, "description"},
		{"given", `
testCaseId: a
description: x
patient: {name: {family: T}, gender: male, birthDate: 2020-01-01}`, "patient.name.given"},
		{"birthDate", `
testCaseId: a
description: x
patient: {name: {given: A, family: T}, gender: male}`, "patient.birthDate"},
		{"vaccineCode", `
testCaseId: a
description: x
patient: {name: {given: A, family: T}, gender: male, birthDate: 2020-01-01}
immunizations:
  - occurrenceDateTime: 2021-01-01`, "immunizations[0].vaccineCode"},
		{"occurrence", `
testCaseId: a
description: x
patient: {name: {given: A, family: T}, gender: male, birthDate: 2020-01-01}
immunizations:
  - vaccineCode: {coding: [{code: "03"}]}`, "immunizations[0].occurrenceDateTime"},
		{"observation code", `
testCaseId: a
description: x
patient: {name: {given: A, family: T}, gender: male, birthDate: 2020-01-01}
observations:
  - valueString: positive`, "observations[0].code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingField))

			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("testCaseId: [unterminated"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMissingField))
}

func TestParse_DateMappingWithoutRelative(t *testing.T) {
	_, err := Parse([]byte(`
testCaseId: a
description: x
patient:
  name: {given: A, family: T}
  gender: male
  birthDate: {absolute: 2020-01-01}
`))
	assert.Error(t, err)
}
