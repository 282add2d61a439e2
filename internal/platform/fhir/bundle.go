package fhir

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Bundle types produced for test cases.
const (
	BundleTypeCollection  = "collection"
	BundleTypeTransaction = "transaction"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Request  *BundleRequest  `json:"request,omitempty"`
}

type BundleRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// NewCollectionBundle gathers resources into a collection Bundle. The
// bundle id and entry fullUrls are name-based UUIDs derived from the
// bundle name and resource references, so they are stable across runs.
// The caller supplies timestamp, which is recorded in UTC.
func NewCollectionBundle(name string, resources []RawResource, timestamp time.Time) *Bundle {
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		entries[i] = BundleEntry{
			FullURL:  "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(FormatReference(r.ResourceType, r.ID))).String(),
			Resource: r.Data,
		}
	}
	return newBundle(name, BundleTypeCollection, entries, timestamp)
}

// NewTransactionBundle gathers resources into a transaction Bundle with a
// PUT request per entry, so loading it into a server is an idempotent upsert.
func NewTransactionBundle(name string, resources []RawResource, timestamp time.Time) *Bundle {
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		ref := FormatReference(r.ResourceType, r.ID)
		entries[i] = BundleEntry{
			FullURL:  ref,
			Resource: r.Data,
			Request: &BundleRequest{
				Method: "PUT",
				URL:    ref,
			},
		}
	}
	return newBundle(name, BundleTypeTransaction, entries, timestamp)
}

func newBundle(name, bundleType string, entries []BundleEntry, timestamp time.Time) *Bundle {
	ts := timestamp.UTC()
	total := len(entries)
	b := &Bundle{
		ResourceType: "Bundle",
		ID:           uuid.NewSHA1(uuid.NameSpaceOID, []byte(bundleType+"/"+name)).String(),
		Type:         bundleType,
		Timestamp:    &ts,
		Entry:        entries,
	}
	if bundleType == BundleTypeCollection {
		b.Total = &total
	}
	return b
}

// ValidateBundle checks that every transaction entry has a usable request.
func (v *Validator) ValidateBundle(bundle *Bundle) *ValidationResult {
	result := &ValidationResult{Valid: true}
	if bundle.Type != BundleTypeCollection && bundle.Type != BundleTypeTransaction {
		result.fail(IssueTypeValue, fmt.Sprintf("unsupported bundle type '%s'", bundle.Type), "type")
		return result
	}
	for i, entry := range bundle.Entry {
		if len(entry.Resource) == 0 {
			result.fail(IssueTypeRequired, fmt.Sprintf("entry[%d].resource is required", i), fmt.Sprintf("entry[%d].resource", i))
			continue
		}
		if bundle.Type == BundleTypeTransaction && (entry.Request == nil || entry.Request.URL == "") {
			result.fail(IssueTypeRequired, fmt.Sprintf("entry[%d].request is required for transaction bundles", i), fmt.Sprintf("entry[%d].request", i))
		}
		sub := v.ValidateResource(entry.Resource, true)
		result.Issues = append(result.Issues, sub.Issues...)
		if !sub.Valid {
			result.Valid = false
		}
	}
	return result
}
