package design

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/mfarrell/tractus/internal/config"
	"github.com/mfarrell/tractus/internal/logging"
	"github.com/mfarrell/tractus/internal/scheduler"
	"github.com/mfarrell/tractus/pkg/models"
)

// Enumerator validates every design, resolves its subject set, and
// submits one full pipeline run per design to the scheduler. Designs are
// fully independent: submissions go out back-to-back, nothing waits for
// an earlier design.
type Enumerator struct {
	// DataRoot is the subject-data root to resolve subjects against.
	DataRoot string
	// Executable is the pipeline binary each scheduler job invokes.
	Executable string
	// Submitter hands jobs to the scheduler.
	Submitter scheduler.Submitter
	// Resources is the per-job resource request.
	Resources config.SchedulerConfig
	// Log receives enumeration progress and omissions.
	Log *logging.Logger

	// Pipeline parameters forwarded to each run.
	Template         string
	Threshold        float64
	Permutations     int
	AllMeasures      bool
	CheckConsistency bool
}

// Submitted pairs a design with the handle of its scheduler job.
type Submitted struct {
	Design models.Design
	Handle *scheduler.Handle
}

type preparedDesign struct {
	design   models.Design
	resolved string
	count    int
}

// Enumerate validates all designs first, then submits one job per
// design. Validation failures (unreadable lists, matrix mismatches,
// empty subject sets) are fatal and happen before any submission.
func (e *Enumerator) Enumerate(ctx context.Context, designs []models.Design) ([]Submitted, error) {
	if len(designs) == 0 {
		return nil, fmt.Errorf("no designs found")
	}

	resolver := &Resolver{DataRoot: e.DataRoot, Log: e.Log}

	var prepared []preparedDesign
	for _, d := range designs {
		ids, err := ReadSubjectList(d.SubjectsFile)
		if err != nil {
			return nil, fmt.Errorf("design %s: %w", d.QualifiedName(), err)
		}

		subjects, omitted := resolver.Resolve(ids)
		if len(omitted) > 0 {
			e.Log.Log("design %s: omitted %d of %d subjects", d.QualifiedName(), len(omitted), len(ids))
		}
		if len(subjects) == 0 {
			return nil, fmt.Errorf("design %s: no subjects resolved under %s", d.QualifiedName(), e.DataRoot)
		}

		if e.CheckConsistency {
			if err := CheckConsistency(d.MatrixFile, len(subjects)); err != nil {
				return nil, fmt.Errorf("design %s: %w", d.QualifiedName(), err)
			}
		}

		resolved := filepath.Join(d.Dir, "subjects_resolved.txt")
		if err := WriteResolvedList(resolved, subjects); err != nil {
			return nil, fmt.Errorf("design %s: %w", d.QualifiedName(), err)
		}

		prepared = append(prepared, preparedDesign{design: d, resolved: resolved, count: len(subjects)})
	}

	var submitted []Submitted
	for _, p := range prepared {
		d := p.design
		name := "tbss-" + d.Group + "-" + d.Name
		job := scheduler.JobFrom(e.Resources, name, filepath.Join(d.Dir, "logs"), e.runCommand(d, p.resolved)...)

		h, err := e.Submitter.Start(ctx, job)
		if err != nil {
			return submitted, fmt.Errorf("design %s: %w", d.QualifiedName(), err)
		}
		e.Log.Log("submitted design %s (%d subjects) as job %s", d.QualifiedName(), p.count, h.JobID)
		submitted = append(submitted, Submitted{Design: d, Handle: h})
	}

	return submitted, nil
}

// runCommand builds the argv of one design's pipeline job.
func (e *Enumerator) runCommand(d models.Design, resolvedList string) []string {
	argv := []string{
		e.Executable, "run",
		"--output", d.RunDir(),
		"--data", e.DataRoot,
		"--subjects", resolvedList,
		"--matrix", d.MatrixFile,
		"--contrast", d.ContrastFile,
		"--threshold", strconv.FormatFloat(e.Threshold, 'g', -1, 64),
		"--permutations", strconv.Itoa(e.Permutations),
	}
	if e.Template != "" {
		argv = append(argv, "--template", e.Template)
	}
	if e.AllMeasures {
		argv = append(argv, "--all-measures")
	}
	return argv
}
