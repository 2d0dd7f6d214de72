package pipeline

import (
	"os"

	"github.com/mfarrell/tractus/internal/marker"
	"github.com/mfarrell/tractus/pkg/models"
)

// StageState is one stage's observed status, derived purely from the run
// directory's markers.
type StageState struct {
	Stage  models.Stage
	Status models.StageStatus
}

// Inspect derives the status of every stage from the run directory. It
// reports what the markers say, including the coarse-gate sharp edge: a
// pre-created stats directory makes the whole preprocessing block read
// as complete.
func Inspect(runDir string, gate marker.Gate, allMeasures bool) []StageState {
	l := Layout{Root: runDir}

	exists := func(path string) models.StageStatus {
		if gate.Complete(path) {
			return models.StageComplete
		}
		return models.StagePending
	}

	initStatus := models.StagePending
	if _, err := os.Stat(runDir); err == nil {
		initStatus = models.StageComplete
	}

	copyStatus := exists(l.MeasureDir(models.MeasureFA))
	blockStatus := exists(l.StatsDir())

	measures := []models.Measure{models.MeasureFA}
	if allMeasures {
		measures = append(measures, models.SecondaryMeasures...)
	}

	statsStatus := models.StageComplete
	for _, m := range measures {
		if !gate.Complete(l.StatsMarker(m)) {
			statsStatus = models.StagePending
			break
		}
	}

	fillStatus := fillState(l, gate, measures, statsStatus)

	return []StageState{
		{models.StageInit, initStatus},
		{models.StageCopy, copyStatus},
		{models.StagePreproc, blockStatus},
		{models.StageRegister, blockStatus},
		{models.StagePostreg, blockStatus},
		{models.StagePrestats, blockStatus},
		{models.StageStats, statsStatus},
		{models.StageFill, fillStatus},
	}
}

func fillState(l Layout, gate marker.Gate, measures []models.Measure, statsStatus models.StageStatus) models.StageStatus {
	if statsStatus != models.StageComplete {
		return models.StagePending
	}

	total, done := 0, 0
	for _, m := range measures {
		maps, err := l.CorrpMaps(m)
		if err != nil {
			return models.StagePending
		}
		for _, statMap := range maps {
			total++
			if gate.Complete(FillTarget(statMap)) {
				done++
			}
		}
	}

	switch {
	case total == 0:
		return models.StagePending
	case done == total:
		return models.StageComplete
	case done > 0:
		return models.StageRunning
	default:
		return models.StagePending
	}
}
