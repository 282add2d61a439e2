package testcase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/casegen/internal/platform/fhir"
	"github.com/ehr/casegen/internal/platform/fsutil"
)

// ErrCaseNotFound is returned when a test-case directory does not exist.
var ErrCaseNotFound = errors.New("test case not found")

type fileStore struct {
	root   string
	logger zerolog.Logger
}

// NewFileStore returns a Store rooted at dir.
func NewFileStore(dir string, logger zerolog.Logger) Store {
	return &fileStore{root: dir, logger: logger}
}

// WriteResource writes resource as indented JSON, creating directories as
// needed. The file is written to a temporary name and renamed into place so
// readers never see a partial document; an existing file is replaced.
func (s *fileStore) WriteResource(ctx context.Context, testCaseID, kind, id string, resource interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(resource, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s/%s: %w", kind, id, err)
	}
	data = append(data, '\n')

	path := filepath.Join(s.root, testCaseID, kind, id+".json")
	if err := fsutil.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ListCases returns the test-case directory names under the root, sorted.
func (s *fileStore) ListCases(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read test cases directory: %w", err)
	}
	var cases []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			cases = append(cases, e.Name())
		}
	}
	sort.Strings(cases)
	return cases, nil
}

// ListResources loads every JSON file under <case>/<kind>. A missing kind
// directory yields no resources. Files that cannot be read or parsed, or
// whose resourceType does not match the directory, are logged and skipped.
func (s *fileStore) ListResources(ctx context.Context, testCaseID, kind string) ([]fhir.RawResource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, testCaseID, kind)
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			s.logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable path")
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s resources of %s: %w", kind, testCaseID, err)
	}

	resources := make([]fhir.RawResource, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable resource")
			continue
		}
		raw, err := fhir.ParseRawResource(data)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("skipping unparseable resource")
			continue
		}
		if raw.ResourceType != kind {
			s.logger.Warn().Str("file", path).Str("kind", raw.ResourceType).
				Msgf("skipping resource filed under %s", kind)
			continue
		}
		resources = append(resources, raw)
	}
	return resources, nil
}

// LoadCase loads all resources of a test case in ResourceKinds order.
func (s *fileStore) LoadCase(ctx context.Context, testCaseID string) ([]fhir.RawResource, error) {
	info, err := os.Stat(filepath.Join(s.root, testCaseID))
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, testCaseID)
	}
	var all []fhir.RawResource
	for _, kind := range fhir.ResourceKinds {
		resources, err := s.ListResources(ctx, testCaseID, kind)
		if err != nil {
			return nil, err
		}
		all = append(all, resources...)
	}
	return all, nil
}
