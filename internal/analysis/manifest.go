package analysis

import (
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/8gabri8/TST-bioimage/internal/conf"
	"github.com/8gabri8/TST-bioimage/internal/errors"
)

// ManifestName is the run manifest file written to the results directory
const ManifestName = "manifest.yaml"

// Manifest records how a run was performed
type Manifest struct {
	RunID      string         `yaml:"run_id"`
	Version    string         `yaml:"version,omitempty"`
	StartedAt  time.Time      `yaml:"started_at"`
	FinishedAt time.Time      `yaml:"finished_at"`
	DataDir    string         `yaml:"data_dir"`
	ResultsDir string         `yaml:"results_dir"`
	Wells      int            `yaml:"wells"`
	Entries    int            `yaml:"entries"`
	Processed  int            `yaml:"processed"`
	Cancelled  bool           `yaml:"cancelled"`
	Statuses   map[string]int `yaml:"statuses"`
	Partial    []PartialWell  `yaml:"partial_wells,omitempty"`
	PlotStatus string         `yaml:"plot_status"`
	Settings   conf.Settings  `yaml:"settings"`
}

// PartialWell lists the entries dropped from a well during indexing
type PartialWell struct {
	Name    string   `yaml:"name"`
	Dropped []string `yaml:"dropped,omitempty"`
}

// newManifest builds the manifest of a finished run
func newManifest(rr *RunReport, settings *conf.Settings) Manifest {
	m := Manifest{
		RunID:      rr.RunID,
		Version:    rr.Version,
		StartedAt:  rr.StartedAt,
		FinishedAt: rr.FinishedAt,
		DataDir:    rr.DataDir,
		ResultsDir: rr.ResultsDir,
		Wells:      len(rr.Wells),
		Entries:    rr.Entries,
		Processed:  rr.Processed,
		Cancelled:  rr.Cancelled,
		Statuses:   rr.Statuses,
		PlotStatus: rr.PlotStatus,
		Settings:   settings.Redacted(),
	}
	for _, w := range rr.Wells {
		if w.Partial {
			m.Partial = append(m.Partial, PartialWell{Name: w.Name, Dropped: w.DroppedKeys})
		}
	}
	return m
}

// writeManifest stores the manifest in dir
func writeManifest(fs afero.Fs, dir string, m Manifest) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryReport).
			Context("operation", "marshal_manifest").
			Build()
	}
	path := filepath.Join(dir, ManifestName)
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return "", errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "write_manifest").
			Context("path", path).
			Build()
	}
	return path, nil
}
