package fhir

import (
	"encoding/json"
	"fmt"
)

// Resource kinds written by the test-case compiler. The order of
// ResourceKinds is the order resources are loaded and bundled in.
const (
	KindPatient      = "Patient"
	KindImmunization = "Immunization"
	KindCondition    = "Condition"
	KindObservation  = "Observation"
)

// ResourceKinds lists every kind of resource a test case may hold.
var ResourceKinds = []string{KindPatient, KindImmunization, KindCondition, KindObservation}

// Resource is the base FHIR resource representation.
type Resource struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
}

type Coding struct {
	System       string `json:"system,omitempty" yaml:"system,omitempty"`
	Version      string `json:"version,omitempty" yaml:"version,omitempty"`
	Code         string `json:"code,omitempty" yaml:"code,omitempty"`
	Display      string `json:"display,omitempty" yaml:"display,omitempty"`
	UserSelected *bool  `json:"userSelected,omitempty" yaml:"userSelected,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty" yaml:"coding,omitempty"`
	Text   string   `json:"text,omitempty" yaml:"text,omitempty"`
}

// FirstCoding returns the first coding entry, or a zero Coding.
func (cc *CodeableConcept) FirstCoding() Coding {
	if cc == nil || len(cc.Coding) == 0 {
		return Coding{}
	}
	return cc.Coding[0]
}

// HasCode reports whether any coding carries one of the given codes.
func (cc *CodeableConcept) HasCode(codes map[string]bool) bool {
	if cc == nil {
		return false
	}
	for _, c := range cc.Coding {
		if codes[c.Code] {
			return true
		}
	}
	return false
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Given  []string `json:"given,omitempty"`
	Family string   `json:"family,omitempty"`
}

type Quantity struct {
	Value      *float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Comparator string   `json:"comparator,omitempty" yaml:"comparator,omitempty"`
	Unit       string   `json:"unit,omitempty" yaml:"unit,omitempty"`
	System     string   `json:"system,omitempty" yaml:"system,omitempty"`
	Code       string   `json:"code,omitempty" yaml:"code,omitempty"`
}

// Narrative is the resource text element.
type Narrative struct {
	Status string `json:"status"`
	Div    string `json:"div"`
}

type Annotation struct {
	Text string `json:"text"`
}

// Patient is the subset of the FHIR R4 Patient resource produced for a test case.
type Patient struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id"`
	Text         *Narrative   `json:"text,omitempty"`
	Name         []HumanName  `json:"name,omitempty"`
	Gender       string       `json:"gender,omitempty"`
	BirthDate    string       `json:"birthDate"`
	Note         []Annotation `json:"note,omitempty"`
}

// Immunization is the subset of the FHIR R4 Immunization resource.
type Immunization struct {
	ResourceType       string          `json:"resourceType"`
	ID                 string          `json:"id"`
	Status             string          `json:"status"`
	PrimarySource      bool            `json:"primarySource"`
	VaccineCode        CodeableConcept `json:"vaccineCode"`
	OccurrenceDateTime string          `json:"occurrenceDateTime,omitempty"`
	OccurrenceString   string          `json:"occurrenceString,omitempty"`
	Patient            Reference       `json:"patient"`
}

// Occurrence returns the occurrence timestamp, falling back to occurrenceString.
func (im *Immunization) Occurrence() string {
	if im.OccurrenceDateTime != "" {
		return im.OccurrenceDateTime
	}
	return im.OccurrenceString
}

// Condition is the subset of the FHIR R4 Condition resource.
type Condition struct {
	ResourceType       string           `json:"resourceType"`
	ID                 string           `json:"id"`
	ClinicalStatus     *CodeableConcept `json:"clinicalStatus,omitempty"`
	VerificationStatus *CodeableConcept `json:"verificationStatus,omitempty"`
	Code               *CodeableConcept `json:"code"`
	Subject            Reference        `json:"subject"`
	OnsetDateTime      string           `json:"onsetDateTime,omitempty"`
}

// Observation is the subset of the FHIR R4 Observation resource.
type Observation struct {
	ResourceType         string            `json:"resourceType"`
	ID                   string            `json:"id"`
	Status               string            `json:"status"`
	Category             []CodeableConcept `json:"category,omitempty"`
	Code                 *CodeableConcept  `json:"code"`
	Subject              Reference         `json:"subject"`
	ValueQuantity        *Quantity         `json:"valueQuantity,omitempty"`
	ValueCodeableConcept *CodeableConcept  `json:"valueCodeableConcept,omitempty"`
	ValueString          string            `json:"valueString,omitempty"`
	EffectiveDateTime    string            `json:"effectiveDateTime,omitempty"`
	Issued               string            `json:"issued,omitempty"`
}

// RawResource is a resource loaded from disk, kept as its original bytes
// alongside the identifying header.
type RawResource struct {
	Resource
	Data json.RawMessage
}

// ParseRawResource reads the resourceType and id header of a JSON resource.
func ParseRawResource(data []byte) (RawResource, error) {
	var hdr Resource
	if err := json.Unmarshal(data, &hdr); err != nil {
		return RawResource{}, fmt.Errorf("parse resource: %w", err)
	}
	return RawResource{Resource: hdr, Data: json.RawMessage(data)}, nil
}

// Decode unmarshals the raw resource into the typed struct for its kind
// after checking the kind's required fields. It returns one of *Patient,
// *Immunization, *Condition or *Observation.
func (r RawResource) Decode() (interface{}, error) {
	result := NewValidator().ValidateResource(r.Data, true)
	if !result.Valid {
		return nil, &InvalidResourceError{Kind: r.ResourceType, ID: r.ID, Issues: result.Issues}
	}

	var target interface{}
	switch r.ResourceType {
	case KindPatient:
		target = &Patient{}
	case KindImmunization:
		target = &Immunization{}
	case KindCondition:
		target = &Condition{}
	case KindObservation:
		target = &Observation{}
	default:
		return nil, fmt.Errorf("unsupported resource type %q", r.ResourceType)
	}
	if err := json.Unmarshal(r.Data, target); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", r.ResourceType, r.ID, err)
	}
	return target, nil
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}

// FormatDateTime turns a YYYY-MM-DD date into the UTC-midnight timestamp
// form used for occurrence, onset and effective fields.
func FormatDateTime(date string) string {
	return date + "T00:00:00.000Z"
}
