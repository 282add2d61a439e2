package manifest

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ehr/casegen/internal/platform/fhir"
)

// ErrMissingField is wrapped by every FieldError.
var ErrMissingField = errors.New("missing required field")

// FieldError reports a required manifest field that is absent or empty.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField, e.Field)
}

func (e *FieldError) Unwrap() error { return ErrMissingField }

// Manifest is the declarative description of one synthetic test case.
type Manifest struct {
	TestCaseID       string             `yaml:"testCaseId"`
	Description      string             `yaml:"description"`
	Patient          PatientSpec        `yaml:"patient"`
	ClinicalScenario *ClinicalScenario  `yaml:"clinicalScenario,omitempty"`
	Immunizations    []ImmunizationSpec `yaml:"immunizations,omitempty"`
	Conditions       []ConditionSpec    `yaml:"conditions,omitempty"`
	Observations     []ObservationSpec  `yaml:"observations,omitempty"`
	ExpectedResults  ExpectedResults    `yaml:"expectedResults,omitempty"`

	// Source is the file the manifest was read from; not part of the document.
	Source string `yaml:"-"`
}

type PatientSpec struct {
	ID        string   `yaml:"id,omitempty"`
	Name      NameSpec `yaml:"name"`
	Gender    string   `yaml:"gender"`
	BirthDate DateSpec `yaml:"birthDate"`
}

type NameSpec struct {
	Given  GivenNames `yaml:"given"`
	Family string     `yaml:"family"`
}

type ClinicalScenario struct {
	RuleFires bool `yaml:"ruleFires"`
}

type ImmunizationSpec struct {
	ID                 string                `yaml:"id,omitempty"`
	Status             string                `yaml:"status,omitempty"`
	PrimarySource      *bool                 `yaml:"primarySource,omitempty"`
	VaccineCode        *fhir.CodeableConcept `yaml:"vaccineCode"`
	OccurrenceDateTime DateSpec              `yaml:"occurrenceDateTime"`
}

type ConditionSpec struct {
	ID                 string                `yaml:"id,omitempty"`
	ClinicalStatus     *fhir.CodeableConcept `yaml:"clinicalStatus,omitempty"`
	VerificationStatus *fhir.CodeableConcept `yaml:"verificationStatus,omitempty"`
	Code               *fhir.CodeableConcept `yaml:"code"`
	OnsetDateTime      DateSpec              `yaml:"onsetDateTime,omitempty"`
}

type ObservationSpec struct {
	ID                   string                 `yaml:"id,omitempty"`
	Status               string                 `yaml:"status,omitempty"`
	Category             []fhir.CodeableConcept `yaml:"category,omitempty"`
	Code                 *fhir.CodeableConcept  `yaml:"code"`
	ValueQuantity        *fhir.Quantity         `yaml:"valueQuantity,omitempty"`
	ValueCodeableConcept *fhir.CodeableConcept  `yaml:"valueCodeableConcept,omitempty"`
	ValueString          string                 `yaml:"valueString,omitempty"`
	EffectiveDateTime    DateSpec               `yaml:"effectiveDateTime,omitempty"`
	Issued               DateSpec               `yaml:"issued,omitempty"`
}

// PatientID returns the id the Patient resource is written under.
func (m *Manifest) PatientID() string {
	if m.Patient.ID != "" {
		return m.Patient.ID
	}
	return m.TestCaseID
}

// Validate checks the fields every manifest must carry.
func (m *Manifest) Validate() error {
	switch {
	case m.TestCaseID == "":
		return &FieldError{Field: "testCaseId"}
	case m.Description == "":
		return &FieldError{Field: "description"}
	case len(m.Patient.Name.Given) == 0:
		return &FieldError{Field: "patient.name.given"}
	case m.Patient.Name.Family == "":
		return &FieldError{Field: "patient.name.family"}
	case m.Patient.Gender == "":
		return &FieldError{Field: "patient.gender"}
	case m.Patient.BirthDate.IsZero():
		return &FieldError{Field: "patient.birthDate"}
	}
	for i, imm := range m.Immunizations {
		if imm.VaccineCode == nil {
			return &FieldError{Field: fmt.Sprintf("immunizations[%d].vaccineCode", i)}
		}
		if imm.OccurrenceDateTime.IsZero() {
			return &FieldError{Field: fmt.Sprintf("immunizations[%d].occurrenceDateTime", i)}
		}
	}
	for i, cond := range m.Conditions {
		if cond.Code == nil {
			return &FieldError{Field: fmt.Sprintf("conditions[%d].code", i)}
		}
	}
	for i, obs := range m.Observations {
		if obs.Code == nil {
			return &FieldError{Field: fmt.Sprintf("observations[%d].code", i)}
		}
	}
	return nil
}

// DateSpec decodes either a plain scalar date or a {relative: "..."} mapping.
type DateSpec struct {
	fhir.DateSpec
}

func (d *DateSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		// Read the raw text so unquoted dates are not coerced to timestamps.
		if node.Tag != "!!null" {
			d.Absolute = node.Value
		}
		return nil
	case yaml.MappingNode:
		var rel struct {
			Relative string `yaml:"relative"`
		}
		if err := node.Decode(&rel); err != nil {
			return err
		}
		if rel.Relative == "" {
			return fmt.Errorf("line %d: date mapping without a relative key", node.Line)
		}
		d.Relative = rel.Relative
		return nil
	}
	return fmt.Errorf("line %d: invalid date specification", node.Line)
}

// GivenNames accepts either a single string or a list of strings.
type GivenNames []string

func (g *GivenNames) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			*g = nil
			return nil
		}
		*g = GivenNames{node.Value}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		*g = names
		return nil
	}
	return fmt.Errorf("line %d: given name must be a string or list", node.Line)
}
