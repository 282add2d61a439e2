package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const caseManifest = `
testCaseId: MMR_002_OneDose
description: toddler with one prior dose
patient:
  name: {given: Kim, family: Test}
  gender: female
  birthDate: {relative: 18 months before reference}
immunizations:
  - id: imm-1
    vaccineCode: {coding: [{system: "http://hl7.org/fhir/sid/cvx", code: "03"}]}
    occurrenceDateTime: {relative: 6 months before reference}
`

var clock = time.Date(2025, time.October, 15, 9, 0, 0, 0, time.UTC)

// execute runs the command tree from an empty working directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	var out bytes.Buffer
	root := newRootCmd(clock)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), err
}

func generated(t *testing.T) string {
	t.Helper()
	manifests := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(manifests, "002.yaml"), []byte(caseManifest), 0o644))
	cases := filepath.Join(t.TempDir(), "cases")

	_, err := execute(t, "generate", "--manifests", manifests, "--out", cases)
	require.NoError(t, err)
	return cases
}

func TestGenerate(t *testing.T) {
	cases := generated(t)

	data, err := os.ReadFile(filepath.Join(cases, "MMR_002_OneDose", "Patient", "MMR_002_OneDose.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"birthDate": "2024-04-15"`)

	data, err = os.ReadFile(filepath.Join(cases, "MMR_002_OneDose", "Immunization", "imm-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"occurrenceDateTime": "2025-04-15T00:00:00.000Z"`)
}

func TestGenerate_ReferenceDateFlag(t *testing.T) {
	manifests := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(manifests, "002.yaml"), []byte(caseManifest), 0o644))
	cases := t.TempDir()

	_, err := execute(t, "generate", "--manifests", manifests, "--out", cases, "--reference-date", "2020-01-31")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(cases, "MMR_002_OneDose", "Patient", "MMR_002_OneDose.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"birthDate": "2018-07-31"`)
}

func TestGenerate_FailingManifestExitsNonZero(t *testing.T) {
	manifests := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(manifests, "002.yaml"), []byte(caseManifest), 0o644))
	bad := strings.Replace(caseManifest, "MMR_002_OneDose", "MMR_003_Bad", 1) +
		"  - vaccineCode: {coding: [{code: \"03\"}]}\n    occurrenceDateTime: {relative: later}\n"
	require.NoError(t, os.WriteFile(filepath.Join(manifests, "003.yaml"), []byte(bad), 0o644))
	cases := t.TempDir()

	_, err := execute(t, "generate", "--manifests", manifests, "--out", cases)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(cases, "MMR_002_OneDose"))
	assert.NoError(t, statErr, "valid manifests are still written")
	_, statErr = os.Stat(filepath.Join(cases, "MMR_003_Bad"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestGenerate_NoManifests(t *testing.T) {
	_, err := execute(t, "generate", "--manifests", t.TempDir(), "--out", t.TempDir())
	assert.Error(t, err)
}

func TestGenerate_InvalidReferenceDate(t *testing.T) {
	_, err := execute(t, "generate", "--manifests", t.TempDir(), "--reference-date", "soon")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	cases := generated(t)
	report := filepath.Join(t.TempDir(), "docs", "summary.md")

	_, err := execute(t, "summarize", "2025-10-15", "--in", cases, "--report", report)
	require.NoError(t, err)

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), "**Reference Date:** October 15, 2025")
	assert.Contains(t, string(data), "| [MMR_002_OneDose](#MMR_002_OneDose) | 1y 6m | 1 | 2025-04-15 (12mo) | None |")
}

func TestSummarize_MissingInput(t *testing.T) {
	_, err := execute(t, "summarize", "--in", filepath.Join(t.TempDir(), "missing"), "--report", filepath.Join(t.TempDir(), "r.md"))
	assert.Error(t, err)
}

func TestBundle_Collection(t *testing.T) {
	cases := generated(t)

	out, err := execute(t, "bundle", "MMR_002_OneDose", "--in", cases)
	require.NoError(t, err)

	var bundle struct {
		ResourceType string `json:"resourceType"`
		Type         string `json:"type"`
		Total        int    `json:"total"`
		Entry        []struct {
			FullURL  string          `json:"fullUrl"`
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &bundle))
	assert.Equal(t, "Bundle", bundle.ResourceType)
	assert.Equal(t, "collection", bundle.Type)
	assert.Equal(t, 2, bundle.Total)
	require.Len(t, bundle.Entry, 2)
	assert.Contains(t, string(bundle.Entry[0].Resource), `"Patient"`)
}

func TestBundle_Transaction(t *testing.T) {
	cases := generated(t)

	out, err := execute(t, "bundle", "MMR_002_OneDose", "--in", cases, "--type", "transaction")
	require.NoError(t, err)
	assert.Contains(t, out, `"method": "PUT"`)
	assert.Contains(t, out, `"url": "Immunization/imm-1"`)
}

func TestBundle_NDJSON(t *testing.T) {
	cases := generated(t)
	outFile := filepath.Join(t.TempDir(), "case.ndjson")

	_, err := execute(t, "bundle", "MMR_002_OneDose", "--in", cases, "--format", "ndjson", "--out", outFile)
	require.NoError(t, err)

	f, err := os.Open(outFile)
	require.NoError(t, err)
	defer f.Close()
	var kinds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r struct {
			ResourceType string `json:"resourceType"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		kinds = append(kinds, r.ResourceType)
	}
	assert.Equal(t, []string{"Patient", "Immunization"}, kinds)
}

func TestBundle_UnknownCase(t *testing.T) {
	_, err := execute(t, "bundle", "nope", "--in", t.TempDir())
	assert.Error(t, err)
}

func TestBundle_FailureLeavesNoOutputFile(t *testing.T) {
	cases := generated(t)
	tests := []struct {
		name string
		args []string
	}{
		{"unknown case", []string{"bundle", "nope", "--in", cases}},
		{"bad type", []string{"bundle", "MMR_002_OneDose", "--in", cases, "--type", "searchset"}},
		{"bad format", []string{"bundle", "MMR_002_OneDose", "--in", cases, "--format", "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			outFile := filepath.Join(dir, "bundle.json")
			_, err := execute(t, append(tt.args, "--out", outFile)...)
			require.Error(t, err)

			_, statErr := os.Stat(outFile)
			assert.True(t, os.IsNotExist(statErr))
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestBundle_FailureKeepsPreviousOutput(t *testing.T) {
	cases := generated(t)
	outFile := filepath.Join(t.TempDir(), "bundle.json")

	_, err := execute(t, "bundle", "MMR_002_OneDose", "--in", cases, "--out", outFile)
	require.NoError(t, err)
	before, err := os.ReadFile(outFile)
	require.NoError(t, err)

	_, err = execute(t, "bundle", "MMR_002_OneDose", "--in", cases, "--type", "searchset", "--out", outFile)
	require.Error(t, err)
	after, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBundle_BadFlags(t *testing.T) {
	cases := generated(t)

	_, err := execute(t, "bundle", "MMR_002_OneDose", "--in", cases, "--type", "searchset")
	assert.Error(t, err)
	_, err = execute(t, "bundle", "MMR_002_OneDose", "--in", cases, "--format", "xml")
	assert.Error(t, err)
}
