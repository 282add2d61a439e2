package testcase

import (
	"context"

	"github.com/ehr/casegen/internal/platform/fhir"
)

// ResourceWriter persists generated resources under
// <root>/<testCaseId>/<ResourceKind>/<resourceId>.json.
type ResourceWriter interface {
	WriteResource(ctx context.Context, testCaseID, kind, id string, resource interface{}) (string, error)
}

// CaseReader reads generated test cases back.
type CaseReader interface {
	ListCases(ctx context.Context) ([]string, error)
	ListResources(ctx context.Context, testCaseID, kind string) ([]fhir.RawResource, error)
	LoadCase(ctx context.Context, testCaseID string) ([]fhir.RawResource, error)
}

// Store is the full test-case tree.
type Store interface {
	ResourceWriter
	CaseReader
}
