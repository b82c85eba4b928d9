package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cartera-ar/cartera/internal/cartera"
)

// Artifact names one CSV written for a run.
type Artifact struct {
	Name string
	Path string
}

// WriteModel writes the full set of run artifacts under dir, named by the
// run identifier. Violations and diagnostics files are written only when
// there is something to report.
func WriteModel(dir, runID string, model *cartera.Model) ([]Artifact, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: ensure dir: %w", err)
	}

	var artifacts []Artifact
	write := func(name string, fn func(f *os.File) error) error {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", runID, name))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("export: create %s: %w", path, err)
		}
		if err := fn(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("export: write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("export: close %s: %w", path, err)
		}
		artifacts = append(artifacts, Artifact{Name: name, Path: path})
		return nil
	}

	if err := write("modelo_deuda", func(f *os.File) error {
		return WriteConsolidatedCSV(f, model.Rows)
	}); err != nil {
		return nil, err
	}
	if err := write("totales", func(f *os.File) error {
		return WriteTotalsCSV(f, model.Totals, model.ConvertedTotals)
	}); err != nil {
		return nil, err
	}
	if len(model.Violations) > 0 {
		if err := write("controles", func(f *os.File) error {
			return WriteViolationsCSV(f, model.Violations)
		}); err != nil {
			return nil, err
		}
	}
	if len(model.Diagnostics) > 0 {
		if err := write("diagnosticos", func(f *os.File) error {
			return WriteDiagnosticsCSV(f, model.Diagnostics)
		}); err != nil {
			return nil, err
		}
	}
	return artifacts, nil
}
