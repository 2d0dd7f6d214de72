package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/mfarrell/tractus/pkg/models"
)

// Layout maps a run directory to the paths the pipeline reads and
// writes. The presence or absence of these paths is the run's only
// durable progress record.
type Layout struct {
	Root string
}

// MeasureDir is the subdirectory holding one measure's images. Its
// existence is the copy stage's marker for that measure.
func (l Layout) MeasureDir(m models.Measure) string {
	return filepath.Join(l.Root, string(m))
}

// StatsDir holds the design files and statistical outputs. Its existence
// is the coarse marker for the preprocessing-through-prestats block.
func (l Layout) StatsDir() string {
	return filepath.Join(l.Root, "stats")
}

// LogDir holds the pipeline log and per-job output redirections.
func (l Layout) LogDir() string {
	return filepath.Join(l.Root, "logs")
}

// DesignMatrix is the run's copy of the design matrix.
func (l Layout) DesignMatrix() string {
	return filepath.Join(l.StatsDir(), "design.mat")
}

// DesignContrast is the run's copy of the contrast file.
func (l Layout) DesignContrast() string {
	return filepath.Join(l.StatsDir(), "design.con")
}

// StatsMarker is the first corrected output of the permutation test for
// a measure, used as the stats stage's marker.
func (l Layout) StatsMarker(m models.Measure) string {
	return filepath.Join(l.StatsDir(), string(m)+"_tfce_corrp_tstat1.nii.gz")
}

// SkeletonMarker is the skeletonised 4D image a secondary measure's
// projection produces, gating its non-FA preparation step.
func (l Layout) SkeletonMarker(m models.Measure) string {
	return filepath.Join(l.StatsDir(), "all_"+string(m)+"_skeletonised.nii.gz")
}

// CorrpMaps returns the corrected statistical maps produced for a
// measure, excluding fill outputs.
func (l Layout) CorrpMaps(m models.Measure) ([]string, error) {
	pattern := filepath.Join(l.StatsDir(), string(m)+"_tfce_corrp_tstat*.nii.gz")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	var maps []string
	for _, p := range matches {
		if !strings.Contains(filepath.Base(p), "_fill") {
			maps = append(maps, p)
		}
	}
	return maps, nil
}

// FillTarget is the fill stage's output (and marker) for one statistical
// map.
func FillTarget(statMap string) string {
	return strings.TrimSuffix(statMap, ".nii.gz") + "_fill.nii.gz"
}
