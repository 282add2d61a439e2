package testcase

import (
	"fmt"

	"github.com/google/uuid"
)

// IDGenerator supplies ids for manifest entries that omit one.
type IDGenerator interface {
	NewID(testCaseID, kind string, index int) string
}

// idNamespace scopes name-based ids so they cannot collide with ids
// derived the same way by other tools.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:casegen:test-case"))

// DeterministicIDs derives a version 5 UUID from the test case, kind and
// entry position, so recompiling a manifest reproduces the same file names.
type DeterministicIDs struct{}

func (DeterministicIDs) NewID(testCaseID, kind string, index int) string {
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%s/%s/%d", testCaseID, kind, index))).String()
}

// RandomIDs issues a fresh version 4 UUID on every call.
type RandomIDs struct{}

func (RandomIDs) NewID(string, string, int) string {
	return uuid.NewString()
}
