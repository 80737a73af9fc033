package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devicelab-dev/imagefinder/pkg/core"
)

// ReportFile is the name of the JSON run summary in the output directory.
const ReportFile = "report.json"

func writeReport(outputDir string, suite *core.SuiteResult) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return atomicWriteJSON(filepath.Join(outputDir, ReportFile), suite)
}

// atomicWriteJSON writes v to a temp file next to path and renames it into
// place so readers never see a partial report.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.json")
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
