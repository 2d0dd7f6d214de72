package models

// Stage identifies one step of the pipeline state machine.
type Stage string

const (
	// StageInit prepares the run directory tree.
	StageInit Stage = "init"
	// StageCopy fans out the per-subject copy of FA images into the run
	// directory.
	StageCopy Stage = "copy"
	// StagePreproc erodes images and zeroes end slices.
	StagePreproc Stage = "preproc"
	// StageRegister nonlinearly registers every subject to the template.
	StageRegister Stage = "register"
	// StagePostreg applies the registrations and builds the mean skeleton.
	StagePostreg Stage = "postreg"
	// StagePrestats thresholds the mean skeleton.
	StagePrestats Stage = "prestats"
	// StageStats runs the permutation test.
	StageStats Stage = "stats"
	// StageFill expands significant results for visualisation.
	StageFill Stage = "fill"
)

// Ordered returns the stages in execution order.
func Ordered() []Stage {
	return []Stage{
		StageInit, StageCopy, StagePreproc, StageRegister,
		StagePostreg, StagePrestats, StageStats, StageFill,
	}
}

// Valid returns true if the stage is a known value.
func (s Stage) Valid() bool {
	switch s {
	case StageInit, StageCopy, StagePreproc, StageRegister,
		StagePostreg, StagePrestats, StageStats, StageFill:
		return true
	default:
		return false
	}
}

// StageStatus is the observed state of a stage within a run directory.
type StageStatus string

const (
	// StagePending means the stage's output marker is absent.
	StagePending StageStatus = "pending"
	// StageRunning means a job for the stage has been submitted but the
	// marker has not appeared yet.
	StageRunning StageStatus = "running"
	// StageComplete means the stage's output marker exists.
	StageComplete StageStatus = "complete"
	// StageFailed means a job for the stage finished without producing
	// its marker.
	StageFailed StageStatus = "failed"
)
