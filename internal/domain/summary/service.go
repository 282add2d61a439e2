package summary

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/casegen/internal/domain/testcase"
	"github.com/ehr/casegen/internal/platform/fhir"
	"github.com/ehr/casegen/pkg/fhirmodels"
)

// ErrNoPatient marks a test case without a usable Patient resource.
var ErrNoPatient = errors.New("no Patient resource found")

// Service derives case summaries from a generated test-case tree.
type Service struct {
	cases  testcase.CaseReader
	logger zerolog.Logger
}

func NewService(cases testcase.CaseReader, logger zerolog.Logger) *Service {
	return &Service{cases: cases, logger: logger}
}

// Summarize analyzes every test case in name order. Cases that cannot be
// analyzed are logged and left out; only a failure to list the tree is
// returned as an error.
func (s *Service) Summarize(ctx context.Context, ref time.Time) ([]*CaseSummary, error) {
	ids, err := s.cases.ListCases(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int("directories", len(ids)).Msg("found test case directories")

	summaries := make([]*CaseSummary, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}
		summary, err := s.AnalyzeTestCase(ctx, id, ref)
		if err != nil {
			ev := s.logger.Warn().Err(err).Str("test_case", id)
			if outcome := fhir.OutcomeOf(err); outcome != nil {
				ev = ev.Interface("outcome", outcome)
			}
			ev.Msg("test case excluded from summary")
			continue
		}
		summaries = append(summaries, summary)
	}
	s.logger.Info().Int("analyzed", len(summaries)).Msg("test cases analyzed")
	return summaries, nil
}

// AnalyzeTestCase loads one test case and computes its derived facts.
func (s *Service) AnalyzeTestCase(ctx context.Context, testCaseID string, ref time.Time) (*CaseSummary, error) {
	patient, err := s.loadPatient(ctx, testCaseID)
	if err != nil {
		return nil, err
	}
	birth, err := fhir.ParseDate(patient.BirthDate)
	if err != nil {
		return nil, fmt.Errorf("patient %s: %w", patient.ID, err)
	}

	summary := &CaseSummary{
		TestCaseID:   testCaseID,
		BirthDate:    patient.BirthDate,
		Age:          CalculateAge(birth, ref),
		DoseDates:    []string{},
		Conditions:   []ConditionSummary{},
		Observations: []ObservationSummary{},
		Notes:        patientNotes(patient),
	}

	immunizations, err := s.load(ctx, testCaseID, fhir.KindImmunization)
	if err != nil {
		return nil, err
	}
	for _, r := range immunizations {
		imm := r.(*fhir.Immunization)
		if !imm.VaccineCode.HasCode(fhirmodels.MMRVaccineCodes) {
			continue
		}
		if occ := imm.Occurrence(); occ != "" {
			summary.DoseDates = append(summary.DoseDates, occ)
		}
	}
	// Timestamps share one ISO layout and offset, so string order is date order.
	sort.Strings(summary.DoseDates)
	for _, d := range summary.DoseDates {
		dose := Dose{Date: fhir.DatePart(d), AgeInMonths: -1}
		if at, err := fhir.ParseDate(d); err == nil {
			dose.AgeInMonths = CalculateAgeAtDate(birth, at)
		} else {
			s.logger.Warn().Err(err).Str("test_case", testCaseID).Msg("dose date not a calendar date")
		}
		summary.Doses = append(summary.Doses, dose)
	}

	conditions, err := s.load(ctx, testCaseID, fhir.KindCondition)
	if err != nil {
		return nil, err
	}
	for _, r := range conditions {
		summary.Conditions = append(summary.Conditions, summarizeCondition(r.(*fhir.Condition)))
	}

	observations, err := s.load(ctx, testCaseID, fhir.KindObservation)
	if err != nil {
		return nil, err
	}
	for _, r := range observations {
		summary.Observations = append(summary.Observations, summarizeObservation(r.(*fhir.Observation)))
	}

	return summary, nil
}

// loadPatient returns the first Patient of the case in listing order.
func (s *Service) loadPatient(ctx context.Context, testCaseID string) (*fhir.Patient, error) {
	raws, err := s.cases.ListResources(ctx, testCaseID, fhir.KindPatient)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, ErrNoPatient
	}
	decoded, err := raws[0].Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoPatient, err)
	}
	return decoded.(*fhir.Patient), nil
}

// load decodes every resource of kind, skipping those that fail validation.
func (s *Service) load(ctx context.Context, testCaseID, kind string) ([]interface{}, error) {
	raws, err := s.cases.ListResources(ctx, testCaseID, kind)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, 0, len(raws))
	for _, raw := range raws {
		decoded, err := raw.Decode()
		if err != nil {
			ev := s.logger.Warn().Err(err).Str("test_case", testCaseID).Str("kind", kind)
			if outcome := fhir.OutcomeOf(err); outcome != nil {
				ev = ev.Interface("outcome", outcome)
			}
			ev.Msg("skipping invalid resource")
			continue
		}
		out = append(out, decoded)
	}
	return out, nil
}

// patientNotes prefers the first structured note and falls back to the
// narrative text.
func patientNotes(p *fhir.Patient) string {
	if len(p.Note) > 0 {
		return p.Note[0].Text
	}
	if p.Text != nil && p.Text.Div != "" {
		return fhir.NarrativeText(p.Text.Div)
	}
	return ""
}
