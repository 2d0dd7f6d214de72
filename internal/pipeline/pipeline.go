// Package pipeline sequences the stages of one TBSS run: staging subject
// images, preprocessing, registration, skeletonisation, permutation
// statistics, and result filling.
//
// Stages are strictly ordered with no back-edges. Each stage is gated by
// a filesystem marker (see internal/marker): a re-run skips everything
// whose marker exists and retries exactly the stage that failed.
// Concurrency is cooperative fan-out from a single control goroutine;
// the filesystem is the only state shared between concurrent units.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mfarrell/tractus/internal/config"
	"github.com/mfarrell/tractus/internal/imaging"
	"github.com/mfarrell/tractus/internal/logging"
	"github.com/mfarrell/tractus/internal/marker"
	"github.com/mfarrell/tractus/internal/scheduler"
	"github.com/mfarrell/tractus/pkg/models"
)

// Params is the immutable configuration of one pipeline run. It is built
// once by the caller and never mutated by the stages.
type Params struct {
	// RunDir is the root of the run's output tree.
	RunDir string
	// Subjects is the resolved subject set, every entry's FA image known
	// to exist at resolution time.
	Subjects []models.Subject
	// MatrixFile and ContrastFile define the hypothesis test.
	MatrixFile   string
	ContrastFile string
	// Template is the registration target; empty selects the toolkit's
	// standard space.
	Template string
	// Threshold is the mean-skeleton threshold.
	Threshold float64
	// Permutations is the permutation-test count.
	Permutations int
	// AllMeasures enables the secondary AD/MD/RD path.
	AllMeasures bool
}

// Measures returns the measures this run processes, primary first.
func (p Params) Measures() []models.Measure {
	measures := []models.Measure{models.MeasureFA}
	if p.AllMeasures {
		measures = append(measures, models.SecondaryMeasures...)
	}
	return measures
}

// Recorder receives audit events for a run. Implementations must be safe
// for concurrent use and must not influence control flow: markers alone
// decide what runs.
type Recorder interface {
	RunStarted(runID, runDir string)
	StageEvent(runID string, stage models.Stage, status models.StageStatus, detail string)
	JobEvent(runID, jobName, schedulerID string, err error)
	RunFinished(runID string, err error)
}

// Pipeline drives one run through the stage state machine.
type Pipeline struct {
	params    Params
	layout    Layout
	sub       scheduler.Submitter
	resources config.SchedulerConfig
	gate      marker.Gate
	log       *logging.Logger
	rec       Recorder
	runID     string
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithGate overrides the stage gate (used to inject a fake filesystem).
func WithGate(g marker.Gate) Option {
	return func(p *Pipeline) { p.gate = g }
}

// WithLogger sets the run's debug logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithRecorder sets the audit recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.rec = r }
}

// WithResources sets the per-job scheduler resource requests.
func WithResources(cfg config.SchedulerConfig) Option {
	return func(p *Pipeline) { p.resources = cfg }
}

// New creates a pipeline for the given run parameters.
func New(params Params, sub scheduler.Submitter, opts ...Option) *Pipeline {
	p := &Pipeline{
		params:    params,
		layout:    Layout{Root: params.RunDir},
		sub:       sub,
		resources: config.Default().Scheduler,
		gate:      marker.NewGate(),
		log:       logging.Nop(),
		runID:     uuid.New().String()[:8],
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunID returns the short identifier used in this run's job names.
func (p *Pipeline) RunID() string { return p.runID }

// Run executes every stage in order, skipping the ones whose markers
// exist. The returned error is the first stage failure; completed-stage
// markers stay in place so a re-run resumes where this one stopped.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.rec != nil {
		p.rec.RunStarted(p.runID, p.params.RunDir)
	}

	err := p.run(ctx)
	if p.rec != nil {
		p.rec.RunFinished(p.runID, err)
	}
	if err != nil {
		p.log.Log("run %s failed: %v", p.runID, err)
	} else {
		p.log.Log("run %s complete", p.runID)
	}
	return err
}

func (p *Pipeline) run(ctx context.Context) error {
	if len(p.params.Subjects) == 0 {
		return fmt.Errorf("no subjects to process")
	}

	if err := os.MkdirAll(p.layout.LogDir(), 0755); err != nil {
		return fmt.Errorf("init run directory: %w", err)
	}
	p.event(models.StageInit, models.StageComplete, "")

	if err := p.stageCopy(models.MeasureFA); err != nil {
		return err
	}

	if err := p.stagePreprocBlock(ctx); err != nil {
		return err
	}

	if err := p.stageDesignFiles(); err != nil {
		return err
	}

	handles, prepErrs := p.stageStats(ctx)
	joinErrs := p.joinStats(ctx, handles)
	if n := len(prepErrs) + len(joinErrs); n > 0 {
		for _, e := range prepErrs {
			p.log.Log("stats preparation failed: %v", e)
		}
		for _, e := range joinErrs {
			p.log.Log("stats job failed: %v", e)
		}
		p.event(models.StageStats, models.StageFailed, fmt.Sprintf("%d failures", n))
		return fmt.Errorf("statistics stage: %d of %d units failed", n, len(handles)+len(prepErrs))
	}
	p.event(models.StageStats, models.StageComplete, "")

	return p.stageFill(ctx)
}

// stageCopy fans out the per-subject copy of one measure's images into
// the run directory. Copies land in a staging directory that is renamed
// into place only after every sub-task succeeded, so the marker never
// appears for a partially copied stage.
func (p *Pipeline) stageCopy(m models.Measure) error {
	dir := p.layout.MeasureDir(m)
	if p.gate.Complete(dir) {
		p.log.Log("skip %s copy: %s exists", m, dir)
		p.event(models.StageCopy, models.StageComplete, string(m)+" (skipped)")
		return nil
	}

	staging := dir + ".partial"
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("clear staging directory: %w", err)
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}

	p.event(models.StageCopy, models.StageRunning, string(m))
	var g Group
	for _, s := range p.params.Subjects {
		s := s
		g.Go(fmt.Sprintf("copy %s %s", m, s.ID), func() error {
			dst := filepath.Join(staging, s.Stem()+m.Suffix())
			return copyFile(s.ArtifactPath(m), dst)
		})
	}

	if errs := g.Wait(); len(errs) > 0 {
		for _, e := range errs {
			p.log.Log("copy task failed: %v", e)
		}
		p.event(models.StageCopy, models.StageFailed, fmt.Sprintf("%s: %d failures", m, len(errs)))
		return fmt.Errorf("copy stage (%s): %d of %d subjects failed", m, len(errs), len(p.params.Subjects))
	}

	if err := os.Rename(staging, dir); err != nil {
		return fmt.Errorf("finalize %s copy: %w", m, err)
	}
	p.log.Log("copied %d %s images into %s", len(p.params.Subjects), m, dir)
	p.event(models.StageCopy, models.StageComplete, string(m))
	return nil
}

// stagePreprocBlock runs preprocessing, registration, post-registration
// and prestats as one composite unit gated on the stats directory. If
// stats exists, all four are assumed complete; there is no per-sub-stage
// resumability inside the block.
func (p *Pipeline) stagePreprocBlock(ctx context.Context) error {
	if p.gate.Complete(p.layout.StatsDir()) {
		p.log.Log("skip preprocessing block: %s exists", p.layout.StatsDir())
		for _, st := range []models.Stage{models.StagePreproc, models.StageRegister, models.StagePostreg, models.StagePrestats} {
			p.event(st, models.StageComplete, "skipped (coarse gate)")
		}
		return nil
	}

	steps := []struct {
		stage models.Stage
		argv  []string
	}{
		{models.StagePreproc, imaging.Preproc()},
		{models.StageRegister, imaging.Register(p.params.Template)},
		{models.StagePostreg, imaging.Postreg()},
		{models.StagePrestats, imaging.Prestats(p.params.Threshold)},
	}
	for _, st := range steps {
		if err := p.runBlocking(ctx, st.stage, string(st.stage), st.argv); err != nil {
			return err
		}
	}
	return nil
}

// stageDesignFiles copies the design matrix and contrast into the stats
// directory. Idempotent: existing copies are left alone.
func (p *Pipeline) stageDesignFiles() error {
	pairs := []struct{ src, dst string }{
		{p.params.MatrixFile, p.layout.DesignMatrix()},
		{p.params.ContrastFile, p.layout.DesignContrast()},
	}
	for _, pair := range pairs {
		if p.gate.Complete(pair.dst) {
			continue
		}
		if err := copyFile(pair.src, pair.dst); err != nil {
			return fmt.Errorf("stage design file: %w", err)
		}
	}
	return nil
}

// stageStats submits the primary permutation test in the background,
// then fans out the secondary-measure sub-sequences, each of which
// prepares its images and submits its own background test. It returns
// the handles to join and any preparation failures.
func (p *Pipeline) stageStats(ctx context.Context) ([]*scheduler.Handle, []TaskError) {
	var mu sync.Mutex
	var handles []*scheduler.Handle

	if p.gate.Complete(p.layout.StatsMarker(models.MeasureFA)) {
		p.log.Log("skip FA statistics: %s exists", p.layout.StatsMarker(models.MeasureFA))
	} else {
		h, err := p.startJob(ctx, models.StageStats, "stats-FA", imaging.Randomise(models.MeasureFA, p.params.Permutations))
		if err != nil {
			// Submission refusal is a configuration error; nothing has
			// been launched yet, so fail the stage outright.
			return nil, []TaskError{{Task: "stats FA", Err: err}}
		}
		handles = append(handles, h)
	}

	var g Group
	if p.params.AllMeasures {
		for _, m := range models.SecondaryMeasures {
			m := m
			g.Go("measure "+string(m), func() error {
				h, err := p.runSecondary(ctx, m)
				if err != nil {
					return err
				}
				if h != nil {
					mu.Lock()
					handles = append(handles, h)
					mu.Unlock()
				}
				return nil
			})
		}
	}
	prepErrs := g.Wait()

	return handles, prepErrs
}

// runSecondary prepares one secondary measure (copy + skeleton
// projection) and submits its permutation test. Returns a nil handle if
// the measure's statistics are already complete.
func (p *Pipeline) runSecondary(ctx context.Context, m models.Measure) (*scheduler.Handle, error) {
	if err := p.stageCopy(m); err != nil {
		return nil, err
	}

	skel := p.layout.SkeletonMarker(m)
	if p.gate.Complete(skel) {
		p.log.Log("skip %s projection: %s exists", m, skel)
	} else {
		if err := p.runBlocking(ctx, models.StagePostreg, "project-"+string(m), imaging.NonFA(m)); err != nil {
			return nil, err
		}
	}

	if p.gate.Complete(p.layout.StatsMarker(m)) {
		p.log.Log("skip %s statistics: %s exists", m, p.layout.StatsMarker(m))
		return nil, nil
	}
	return p.startJob(ctx, models.StageStats, "stats-"+string(m), imaging.Randomise(m, p.params.Permutations))
}

// joinStats blocks until every submitted statistics job resolves. The
// join is all-or-nothing: each handle is consumed exactly once and every
// failure is collected.
func (p *Pipeline) joinStats(ctx context.Context, handles []*scheduler.Handle) []TaskError {
	var errs []TaskError
	for _, h := range handles {
		p.log.Log("waiting for job %s", h.Name)
		err := p.sub.Wait(ctx, h)
		if p.rec != nil {
			p.rec.JobEvent(p.runID, h.Name, h.JobID, err)
		}
		if err != nil {
			errs = append(errs, TaskError{Task: h.Name, Err: err})
		}
	}
	return errs
}

// stageFill runs the fill operation for every corrected statistical map
// that does not yet have a fill output. Each fill output is its own
// marker, so interrupted fill passes resume per map.
func (p *Pipeline) stageFill(ctx context.Context) error {
	filled := 0
	for _, m := range p.params.Measures() {
		maps, err := p.layout.CorrpMaps(m)
		if err != nil {
			return fmt.Errorf("list %s statistical maps: %w", m, err)
		}
		for _, statMap := range maps {
			target := FillTarget(statMap)
			if p.gate.Complete(target) {
				continue
			}

			relMap, err := filepath.Rel(p.params.RunDir, statMap)
			if err != nil {
				return err
			}
			relTarget, err := filepath.Rel(p.params.RunDir, target)
			if err != nil {
				return err
			}

			name := "fill-" + strings.TrimSuffix(filepath.Base(statMap), ".nii.gz")
			if err := p.runBlocking(ctx, models.StageFill, name, imaging.Fill(relMap, config.FillThreshold, relTarget)); err != nil {
				return err
			}
			filled++
		}
	}
	p.log.Log("fill stage complete, %d maps filled", filled)
	p.event(models.StageFill, models.StageComplete, fmt.Sprintf("%d maps", filled))
	return nil
}

// runBlocking submits one job and blocks until it finishes.
func (p *Pipeline) runBlocking(ctx context.Context, stage models.Stage, name string, argv []string) error {
	job := scheduler.JobFrom(p.resources, p.jobName(name), p.layout.LogDir(), argv...)
	job.WorkDir = p.params.RunDir

	p.event(stage, models.StageRunning, name)
	p.log.Log("submit (blocking) %s: %v", job.Name, argv)

	err := p.sub.Run(ctx, job)
	if p.rec != nil {
		p.rec.JobEvent(p.runID, job.Name, "", err)
	}
	if err != nil {
		p.event(stage, models.StageFailed, err.Error())
		return fmt.Errorf("stage %s: %w", stage, err)
	}
	p.event(stage, models.StageComplete, name)
	return nil
}

// startJob submits one background job and returns its handle.
func (p *Pipeline) startJob(ctx context.Context, stage models.Stage, name string, argv []string) (*scheduler.Handle, error) {
	job := scheduler.JobFrom(p.resources, p.jobName(name), p.layout.LogDir(), argv...)
	job.WorkDir = p.params.RunDir

	p.event(stage, models.StageRunning, name)
	p.log.Log("submit (background) %s: %v", job.Name, argv)

	h, err := p.sub.Start(ctx, job)
	if err != nil {
		p.event(stage, models.StageFailed, err.Error())
		return nil, fmt.Errorf("stage %s: %w", stage, err)
	}
	if p.rec != nil {
		p.rec.JobEvent(p.runID, job.Name, h.JobID, nil)
	}
	return h, nil
}

func (p *Pipeline) jobName(name string) string {
	return "tbss-" + p.runID + "-" + name
}

func (p *Pipeline) event(stage models.Stage, status models.StageStatus, detail string) {
	if p.rec != nil {
		p.rec.StageEvent(p.runID, stage, status, detail)
	}
}

// copyFile copies src to dst, creating parent directories.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
