package fhirmodels

// Common FHIR value set constants used across the application.

// ImmunizationStatus values per FHIR R4.
const (
	ImmunizationCompleted      = "completed"
	ImmunizationEnteredInError = "entered-in-error"
	ImmunizationNotDone        = "not-done"
)

// ObservationStatus values per FHIR R4.
const (
	ObservationRegistered     = "registered"
	ObservationPreliminary    = "preliminary"
	ObservationFinal          = "final"
	ObservationAmended        = "amended"
	ObservationCorrected      = "corrected"
	ObservationCancelled      = "cancelled"
	ObservationEnteredInError = "entered-in-error"
	ObservationUnknown        = "unknown"
)

// AdministrativeGender codes.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

// MMR vaccine codes counted as qualifying doses: CVX 03 (MMR), CVX 94
// (MMRV) and SNOMED 871765008 (measles, mumps and rubella vaccine product).
const (
	CVXMMR        = "03"
	CVXMMRV       = "94"
	SNOMEDMMRProd = "871765008"
)

// MMRVaccineCodes is the allow-list of qualifying MMR vaccine codes.
var MMRVaccineCodes = map[string]bool{
	CVXMMR:        true,
	CVXMMRV:       true,
	SNOMEDMMRProd: true,
}

// Coding system classes reported in test-case summaries.
const (
	CodeSystemSNOMED = "SNOMED"
	CodeSystemICD9   = "ICD-9"
	CodeSystemICD10  = "ICD-10"
	CodeSystemOther  = "Other"
)
