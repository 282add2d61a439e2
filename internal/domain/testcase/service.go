package testcase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/casegen/internal/domain/manifest"
	"github.com/ehr/casegen/internal/platform/fhir"
	"github.com/ehr/casegen/pkg/fhirmodels"
)

// BuiltResource is one generated resource waiting to be written.
type BuiltResource struct {
	Kind     string
	ID       string
	Resource interface{}
}

// ManifestError records why one manifest produced no output.
type ManifestError struct {
	Source     string
	TestCaseID string
	Err        error
}

func (e *ManifestError) Error() string {
	name := filepath.Base(e.Source)
	if e.TestCaseID != "" {
		return fmt.Sprintf("%s (%s): %v", name, e.TestCaseID, e.Err)
	}
	return fmt.Sprintf("%s: %v", name, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// BatchResult summarises a compile run.
type BatchResult struct {
	Compiled []string
	Written  int
	Failed   []*ManifestError
}

// Err joins the per-manifest failures, or returns nil when all succeeded.
func (r *BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Compiler turns manifests into FHIR resources on disk.
type Compiler struct {
	store     ResourceWriter
	ids       IDGenerator
	validator *fhir.Validator
	logger    zerolog.Logger
}

func NewCompiler(store ResourceWriter, ids IDGenerator, logger zerolog.Logger) *Compiler {
	if ids == nil {
		ids = DeterministicIDs{}
	}
	return &Compiler{store: store, ids: ids, validator: fhir.NewValidator(), logger: logger}
}

// Compile processes every manifest file in order. A failing manifest is
// reported and skipped; the remaining manifests are still compiled.
func (c *Compiler) Compile(ctx context.Context, paths []string, ref time.Time) *BatchResult {
	result := &BatchResult{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, &ManifestError{Source: path, Err: err})
			break
		}
		log := c.logger.With().Str("manifest", filepath.Base(path)).Logger()
		log.Info().Msg("processing manifest")

		m, err := manifest.LoadFile(path)
		if err != nil {
			log.Error().Err(err).Msg("manifest rejected")
			result.Failed = append(result.Failed, &ManifestError{Source: path, Err: err})
			continue
		}

		written, err := c.CompileManifest(ctx, m, ref)
		if err != nil {
			ev := log.Error().Err(err).Str("test_case", m.TestCaseID)
			if outcome := fhir.OutcomeOf(err); outcome != nil {
				ev = ev.Interface("outcome", outcome)
			}
			ev.Msg("manifest failed")
			result.Failed = append(result.Failed, &ManifestError{Source: path, TestCaseID: m.TestCaseID, Err: err})
			continue
		}
		result.Compiled = append(result.Compiled, m.TestCaseID)
		result.Written += len(written)
		log.Info().Str("test_case", m.TestCaseID).Int("resources", len(written)).Msg("test case generated")
	}
	return result
}

// CompileManifest builds every resource of m and, only if all of them
// build, writes them out. It returns the paths written.
func (c *Compiler) CompileManifest(ctx context.Context, m *manifest.Manifest, ref time.Time) ([]string, error) {
	resources, err := c.BuildCase(m, ref)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(resources))
	for _, r := range resources {
		path, err := c.store.WriteResource(ctx, m.TestCaseID, r.Kind, r.ID, r.Resource)
		if err != nil {
			return paths, err
		}
		c.logger.Debug().Str("test_case", m.TestCaseID).Str("kind", r.Kind).Str("file", path).Msg("resource written")
		paths = append(paths, path)
	}
	return paths, nil
}

// BuildCase checks m, then builds the Patient followed by every
// immunization, condition and observation in manifest order, validating
// each against its kind.
func (c *Compiler) BuildCase(m *manifest.Manifest, ref time.Time) ([]BuiltResource, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	patient, err := c.BuildPatient(m, ref)
	if err != nil {
		return nil, err
	}
	out := []BuiltResource{{Kind: fhir.KindPatient, ID: patient.ID, Resource: patient}}
	patientID := patient.ID

	for i, entry := range m.Immunizations {
		imm, err := c.BuildImmunization(entry, m.TestCaseID, patientID, i, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, BuiltResource{Kind: fhir.KindImmunization, ID: imm.ID, Resource: imm})
	}
	for i, entry := range m.Conditions {
		cond, err := c.BuildCondition(entry, m.TestCaseID, patientID, i, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, BuiltResource{Kind: fhir.KindCondition, ID: cond.ID, Resource: cond})
	}
	for i, entry := range m.Observations {
		obs, err := c.BuildObservation(entry, m.TestCaseID, patientID, i, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, BuiltResource{Kind: fhir.KindObservation, ID: obs.ID, Resource: obs})
	}

	for _, r := range out {
		if vr := c.validator.ValidateStruct(r.Resource); !vr.Valid {
			return nil, &fhir.InvalidResourceError{Kind: r.Kind, ID: r.ID, Issues: vr.Issues}
		}
	}
	return out, nil
}

// BuildPatient resolves the birth date and writes the description and any
// expected results into the narrative.
func (c *Compiler) BuildPatient(m *manifest.Manifest, ref time.Time) (*fhir.Patient, error) {
	birthDate, err := resolveField("patient.birthDate", m.Patient.BirthDate, ref)
	if err != nil {
		return nil, err
	}

	text := "Test: " + m.Description + "." + m.ExpectedResults.Annotation(m.ClinicalScenario)

	return &fhir.Patient{
		ResourceType: fhir.KindPatient,
		ID:           m.PatientID(),
		Text:         fhir.NewNarrative(text),
		Name: []fhir.HumanName{{
			Given:  []string(m.Patient.Name.Given),
			Family: m.Patient.Name.Family,
		}},
		Gender:    m.Patient.Gender,
		BirthDate: birthDate,
	}, nil
}

func (c *Compiler) BuildImmunization(entry manifest.ImmunizationSpec, testCaseID, patientID string, index int, ref time.Time) (*fhir.Immunization, error) {
	field := fmt.Sprintf("immunizations[%d].occurrenceDateTime", index)
	occurrence, err := resolveField(field, entry.OccurrenceDateTime, ref)
	if err != nil {
		return nil, err
	}

	imm := &fhir.Immunization{
		ResourceType:       fhir.KindImmunization,
		ID:                 c.entryID(entry.ID, testCaseID, fhir.KindImmunization, index),
		Status:             entry.Status,
		PrimarySource:      true,
		VaccineCode:        *entry.VaccineCode,
		OccurrenceDateTime: fhir.FormatDateTime(occurrence),
		Patient:            fhir.Reference{Reference: fhir.FormatReference(fhir.KindPatient, patientID)},
	}
	if imm.Status == "" {
		imm.Status = fhirmodels.ImmunizationCompleted
	}
	if entry.PrimarySource != nil {
		imm.PrimarySource = *entry.PrimarySource
	}
	return imm, nil
}

func (c *Compiler) BuildCondition(entry manifest.ConditionSpec, testCaseID, patientID string, index int, ref time.Time) (*fhir.Condition, error) {
	cond := &fhir.Condition{
		ResourceType:       fhir.KindCondition,
		ID:                 c.entryID(entry.ID, testCaseID, fhir.KindCondition, index),
		ClinicalStatus:     entry.ClinicalStatus,
		VerificationStatus: entry.VerificationStatus,
		Code:               entry.Code,
		Subject:            fhir.Reference{Reference: fhir.FormatReference(fhir.KindPatient, patientID)},
	}
	if !entry.OnsetDateTime.IsZero() {
		onset, err := resolveField(fmt.Sprintf("conditions[%d].onsetDateTime", index), entry.OnsetDateTime, ref)
		if err != nil {
			return nil, err
		}
		cond.OnsetDateTime = fhir.FormatDateTime(onset)
	}
	return cond, nil
}

func (c *Compiler) BuildObservation(entry manifest.ObservationSpec, testCaseID, patientID string, index int, ref time.Time) (*fhir.Observation, error) {
	obs := &fhir.Observation{
		ResourceType:         fhir.KindObservation,
		ID:                   c.entryID(entry.ID, testCaseID, fhir.KindObservation, index),
		Status:               entry.Status,
		Category:             entry.Category,
		Code:                 entry.Code,
		Subject:              fhir.Reference{Reference: fhir.FormatReference(fhir.KindPatient, patientID)},
		ValueQuantity:        entry.ValueQuantity,
		ValueCodeableConcept: entry.ValueCodeableConcept,
		ValueString:          entry.ValueString,
	}
	if obs.Status == "" {
		obs.Status = fhirmodels.ObservationFinal
	}
	if !entry.EffectiveDateTime.IsZero() {
		effective, err := resolveField(fmt.Sprintf("observations[%d].effectiveDateTime", index), entry.EffectiveDateTime, ref)
		if err != nil {
			return nil, err
		}
		obs.EffectiveDateTime = fhir.FormatDateTime(effective)
	}
	if !entry.Issued.IsZero() {
		issued, err := resolveField(fmt.Sprintf("observations[%d].issued", index), entry.Issued, ref)
		if err != nil {
			return nil, err
		}
		obs.Issued = issued
	}
	return obs, nil
}

func (c *Compiler) entryID(id, testCaseID, kind string, index int) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return c.ids.NewID(testCaseID, kind, index)
}

// resolveField resolves spec and tags a malformed-spec error with the field.
func resolveField(field string, spec manifest.DateSpec, ref time.Time) (string, error) {
	date, err := fhir.ResolveDate(spec.DateSpec, ref)
	if err != nil {
		var malformed *fhir.MalformedDateSpecError
		if errors.As(err, &malformed) {
			malformed.Field = field
		}
		return "", err
	}
	return date, nil
}
