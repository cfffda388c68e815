package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/areamatch/internal/classify"
	"github.com/sells-group/areamatch/internal/model"
)

// Report summarizes one run.
type Report struct {
	RunID      string         `yaml:"run_id"`
	StartedAt  time.Time      `yaml:"started_at"`
	FinishedAt time.Time      `yaml:"finished_at,omitempty"`
	Inputs     Inputs         `yaml:"inputs"`
	Output     string         `yaml:"output"`
	Schema     model.Schema   `yaml:"schema"`
	Counts     Counts         `yaml:"counts"`
	Stats      classify.Stats `yaml:"stats"`
	Phases     []PhaseResult  `yaml:"phases"`
}

// Inputs records the source paths of a run.
type Inputs struct {
	Routes    string `yaml:"routes"`
	Secondary string `yaml:"secondary,omitempty"`
	Areas     string `yaml:"areas"`
}

// Counts are the record totals of a run.
type Counts struct {
	Areas     int `yaml:"areas"`
	Routes    int `yaml:"routes"`
	Secondary int `yaml:"secondary"`
	Updated   int `yaml:"updated"`
	Appended  int `yaml:"appended"`
	Features  int `yaml:"features"`
}

// PhaseResult is the timing of one pipeline phase.
type PhaseResult struct {
	Name     string `yaml:"name"`
	Duration int64  `yaml:"duration_ms"`
	Error    string `yaml:"error,omitempty"`
}

// WriteReport writes r as YAML to path, creating parent directories.
func WriteReport(path string, r *Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal report")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "pipeline: create report dir")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "pipeline: write report %s", path)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read report %s", path)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse report")
	}
	return &r, nil
}

// FormatReport renders a human-readable summary of r.
func FormatReport(r *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Classification Report: %s\n", r.RunID)
	fmt.Fprintf(&b, "Routes: %s\n", r.Inputs.Routes)
	if r.Inputs.Secondary != "" {
		fmt.Fprintf(&b, "Secondary: %s\n", r.Inputs.Secondary)
	}
	fmt.Fprintf(&b, "Areas: %s\n", r.Inputs.Areas)
	fmt.Fprintf(&b, "Output: %s\n\n", r.Output)

	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Areas: %d\n", r.Counts.Areas)
	fmt.Fprintf(&b, "- Routes: %d (%d updated, %d appended from %d secondary)\n",
		r.Counts.Routes, r.Counts.Updated, r.Counts.Appended, r.Counts.Secondary)
	fmt.Fprintf(&b, "- Features written: %d\n\n", r.Counts.Features)

	b.WriteString("## Pieces\n")
	fmt.Fprintf(&b, "- Seeded: %d\n", r.Stats.Seeded)
	fmt.Fprintf(&b, "- Exact cut (preferred): %d\n", r.Stats.Preferred)
	fmt.Fprintf(&b, "- Endpoint proximity: %d\n", r.Stats.Proximity)
	fmt.Fprintf(&b, "- Buffer overlap: %d\n", r.Stats.Overlap)
	fmt.Fprintf(&b, "- Unmatched: %d\n", r.Stats.Unmatched)
	if r.Stats.Discarded > 0 {
		fmt.Fprintf(&b, "- Discarded slivers: %d\n", r.Stats.Discarded)
	}
	if r.Stats.CandidateErrors > 0 {
		fmt.Fprintf(&b, "- Candidate errors: %d\n", r.Stats.CandidateErrors)
	}
	b.WriteString("\n")

	b.WriteString("## Phases\n")
	for _, p := range r.Phases {
		status := "ok"
		if p.Error != "" {
			status = "failed"
		}
		fmt.Fprintf(&b, "- %s: %s (%dms)\n", p.Name, status, p.Duration)
		if p.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", p.Error)
		}
	}

	return b.String()
}
