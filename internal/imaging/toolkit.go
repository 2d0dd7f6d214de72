// Package imaging builds command lines for the external imaging toolkit.
// The toolkit owns every actual image-processing algorithm; this package
// only knows the command names, their arguments, and the files they are
// expected to produce. All commands run with the pipeline run directory
// as working directory.
package imaging

import (
	"fmt"
	"os/exec"
	"strconv"

	"github.com/mfarrell/tractus/pkg/models"
)

// Toolkit command names.
const (
	cmdPreproc   = "tbss_1_preproc"
	cmdRegister  = "tbss_2_reg"
	cmdPostreg   = "tbss_3_postreg"
	cmdPrestats  = "tbss_4_prestats"
	cmdNonFA     = "tbss_non_FA"
	cmdRandomise = "randomise"
	cmdFill      = "tbss_fill"
)

// Check verifies the imaging toolkit is installed, returning installation
// guidance when it is not.
func Check() error {
	if _, err := exec.LookPath(cmdPreproc); err != nil {
		return fmt.Errorf("imaging toolkit not found in PATH\n\n"+
			"tractus drives the FSL TBSS tools and needs them installed.\n"+
			"See https://fsl.fmrib.ox.ac.uk/fsl/fslwiki/FslInstallation\n"+
			"and make sure %s is on PATH", cmdPreproc)
	}
	return nil
}

// Preproc erodes FA images slightly and zeroes the end slices.
func Preproc() []string {
	return []string{cmdPreproc, "FA"}
}

// Register nonlinearly registers every FA image to the template. An
// empty template selects the toolkit's standard-space target.
func Register(template string) []string {
	if template == "" {
		return []string{cmdRegister, "-T"}
	}
	return []string{cmdRegister, "-t", template}
}

// Postreg applies the registrations to all subjects and derives the mean
// FA skeleton.
func Postreg() []string {
	return []string{cmdPostreg, "-S"}
}

// Prestats thresholds the mean skeleton, creating the stats directory.
func Prestats(threshold float64) []string {
	return []string{cmdPrestats, formatFloat(threshold)}
}

// NonFA projects a secondary measure's images onto the FA skeleton.
func NonFA(m models.Measure) []string {
	return []string{cmdNonFA, string(m)}
}

// Randomise runs the permutation-based hypothesis test for one measure,
// with threshold-free cluster enhancement. Paths are relative to the run
// directory.
func Randomise(m models.Measure, perms int) []string {
	name := string(m)
	return []string{
		cmdRandomise,
		"-i", "stats/all_" + name + "_skeletonised",
		"-o", "stats/" + name,
		"-m", "stats/mean_FA_skeleton_mask",
		"-d", "stats/design.mat",
		"-t", "stats/design.con",
		"-n", strconv.Itoa(perms),
		"--T2",
	}
}

// Fill expands significant voxels of a corrected statistical map back
// onto the anatomy for visualisation.
func Fill(statImage string, threshold float64, output string) []string {
	return []string{cmdFill, statImage, formatFloat(threshold), "stats/mean_FA", output}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
