package testcase

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/casegen/internal/platform/fhir"
)

func putFile(t *testing.T, root string, parts ...string) {
	t.Helper()
	content := parts[len(parts)-1]
	path := filepath.Join(append([]string{root}, parts[:len(parts)-1]...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileStore_WriteResource(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(root, zerolog.Nop())

	patient := &fhir.Patient{ResourceType: fhir.KindPatient, ID: "MMR_001", BirthDate: "2021-10-15"}
	path, err := store.WriteResource(context.Background(), "MMR_001", fhir.KindPatient, "MMR_001", patient)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "MMR_001", "Patient", "MMR_001.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "}\n"))
	assert.Contains(t, string(data), "\n  \"birthDate\": \"2021-10-15\"")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestFileStore_WriteResourceReplaces(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(root, zerolog.Nop())
	ctx := context.Background()

	_, err := store.WriteResource(ctx, "c", fhir.KindPatient, "p", &fhir.Patient{ResourceType: fhir.KindPatient, ID: "p", BirthDate: "2020-01-01"})
	require.NoError(t, err)
	path, err := store.WriteResource(ctx, "c", fhir.KindPatient, "p", &fhir.Patient{ResourceType: fhir.KindPatient, ID: "p", BirthDate: "2021-01-01"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2021-01-01")
	assert.NotContains(t, string(data), "2020-01-01")
}

func TestFileStore_ListCases(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "MMR_002"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "MMR_001"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	putFile(t, root, "README.md", "not a case")

	cases, err := NewFileStore(root, zerolog.Nop()).ListCases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"MMR_001", "MMR_002"}, cases)
}

func TestFileStore_ListCasesMissingRoot(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "missing"), zerolog.Nop()).ListCases(context.Background())
	assert.Error(t, err)
}

func TestFileStore_ListResources(t *testing.T) {
	root := t.TempDir()
	putFile(t, root, "c", "Patient", "p.json", `{"resourceType":"Patient","id":"p","birthDate":"2020-01-01"}`)
	putFile(t, root, "c", "Patient", "broken.json", `{not json`)
	putFile(t, root, "c", "Patient", "misfiled.json", `{"resourceType":"Condition","id":"x"}`)
	putFile(t, root, "c", "Patient", "notes.txt", `ignored`)
	store := NewFileStore(root, zerolog.Nop())

	resources, err := store.ListResources(context.Background(), "c", fhir.KindPatient)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "p", resources[0].ID)

	none, err := store.ListResources(context.Background(), "c", fhir.KindObservation)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFileStore_LoadCase(t *testing.T) {
	root := t.TempDir()
	putFile(t, root, "c", "Observation", "o.json", `{"resourceType":"Observation","id":"o"}`)
	putFile(t, root, "c", "Immunization", "i.json", `{"resourceType":"Immunization","id":"i"}`)
	putFile(t, root, "c", "Patient", "p.json", `{"resourceType":"Patient","id":"p"}`)
	store := NewFileStore(root, zerolog.Nop())

	resources, err := store.LoadCase(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, resources, 3)
	assert.Equal(t, fhir.KindPatient, resources[0].ResourceType)
	assert.Equal(t, fhir.KindImmunization, resources[1].ResourceType)
	assert.Equal(t, fhir.KindObservation, resources[2].ResourceType)

	_, err = store.LoadCase(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCaseNotFound)
}
