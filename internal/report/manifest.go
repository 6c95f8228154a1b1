package report

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/waitprep/internal/filter"
)

// Manifest is the machine-readable record of a run.
type Manifest struct {
	RunID      string          `yaml:"run_id,omitempty"`
	StartedAt  time.Time       `yaml:"started_at"`
	FinishedAt time.Time       `yaml:"finished_at"`
	Filter     string          `yaml:"filter"`
	Method     string          `yaml:"method"`
	Format     string          `yaml:"format"`
	Inputs     []Source        `yaml:"inputs"`
	Total      filter.Counters `yaml:"total"`
	Outputs    []string        `yaml:"outputs"`
}

// NewManifest builds the manifest for a summary.
func NewManifest(s *Summary) Manifest {
	return Manifest{
		RunID:      s.RunID,
		StartedAt:  s.StartedAt.UTC(),
		FinishedAt: s.FinishedAt.UTC(),
		Filter:     s.FilterRule,
		Method:     s.Method,
		Format:     s.Format,
		Inputs:     s.Sources,
		Total:      s.Total,
		Outputs:    s.Outputs,
	}
}

// WriteManifest writes the manifest as YAML.
func WriteManifest(path string, s *Summary) error {
	data, err := yaml.Marshal(NewManifest(s))
	if err != nil {
		return eris.Wrap(err, "report: marshal manifest")
	}
	return writeFile(path, data)
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: read %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "report: parse %s", path)
	}
	return &m, nil
}
