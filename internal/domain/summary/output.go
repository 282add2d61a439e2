package summary

import (
	"fmt"

	"github.com/ehr/casegen/internal/platform/fsutil"
)

// WriteReport writes the rendered report to path, replacing any previous
// report. The parent directory is created if needed.
func WriteReport(path, content string) error {
	if err := fsutil.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
