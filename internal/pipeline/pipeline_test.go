package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mfarrell/tractus/internal/scheduler"
	"github.com/mfarrell/tractus/pkg/models"
)

// fakeSub is a Submitter that records submissions and simulates the
// imaging toolkit by touching the files each command would produce.
type fakeSub struct {
	mu       sync.Mutex
	blocking []scheduler.Job
	started  []scheduler.Job
	pending  map[string]scheduler.Job
	effect   func(job scheduler.Job) error
}

func newFakeSub(effect func(job scheduler.Job) error) *fakeSub {
	return &fakeSub{pending: make(map[string]scheduler.Job), effect: effect}
}

func (f *fakeSub) Run(ctx context.Context, job scheduler.Job) error {
	f.mu.Lock()
	f.blocking = append(f.blocking, job)
	f.mu.Unlock()
	if f.effect != nil {
		return f.effect(job)
	}
	return nil
}

func (f *fakeSub) Start(ctx context.Context, job scheduler.Job) (*scheduler.Handle, error) {
	f.mu.Lock()
	f.started = append(f.started, job)
	f.pending[job.Name] = job
	f.mu.Unlock()
	return &scheduler.Handle{Name: job.Name, JobID: "fake-" + job.Name}, nil
}

func (f *fakeSub) Wait(ctx context.Context, h *scheduler.Handle) error {
	f.mu.Lock()
	job, ok := f.pending[h.Name]
	delete(f.pending, h.Name)
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("wait on unknown handle %q", h.Name)
	}
	if f.effect != nil {
		return f.effect(job)
	}
	return nil
}

func (f *fakeSub) totalSubmissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blocking) + len(f.started)
}

func (f *fakeSub) blockingCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cmds []string
	for _, j := range f.blocking {
		cmds = append(cmds, j.Command[0])
	}
	return cmds
}

// touch creates an empty file under the job's working directory.
func touch(parts ...string) error {
	path := filepath.Join(parts...)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0644)
}

// toolkitEffect simulates the file outputs of each toolkit command.
func toolkitEffect(failJobs map[string]bool) func(job scheduler.Job) error {
	return func(job scheduler.Job) error {
		argv, wd := job.Command, job.WorkDir
		if failJobs[argv[0]] {
			return &scheduler.JobError{Job: job.Name, Err: fmt.Errorf("exit 1")}
		}
		switch argv[0] {
		case "tbss_1_preproc", "tbss_2_reg", "tbss_3_postreg":
			return nil
		case "tbss_4_prestats":
			return os.MkdirAll(filepath.Join(wd, "stats"), 0755)
		case "tbss_non_FA":
			return touch(wd, "stats", "all_"+argv[1]+"_skeletonised.nii.gz")
		case "randomise":
			// -o prefix is argv[4] ("stats/<measure>")
			return touch(wd, argv[4]+"_tfce_corrp_tstat1.nii.gz")
		case "tbss_fill":
			return touch(wd, argv[len(argv)-1])
		default:
			return fmt.Errorf("unexpected command %q", argv[0])
		}
	}
}

// newRun lays out a fake dataset and returns ready-to-use run params.
func newRun(t *testing.T, nSubjects int, allMeasures bool) Params {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")

	var subjects []models.Subject
	for i := 0; i < nSubjects; i++ {
		id := fmt.Sprintf("sub%02d", i)
		fa := filepath.Join(dataDir, id, id+"_FA.nii.gz")
		if err := touch(fa); err != nil {
			t.Fatal(err)
		}
		for _, m := range models.SecondaryMeasures {
			if err := touch(filepath.Join(dataDir, id, id+m.Suffix())); err != nil {
				t.Fatal(err)
			}
		}
		subjects = append(subjects, models.Subject{ID: id, FAPath: fa})
	}

	matrix := filepath.Join(root, "design.mat")
	contrast := filepath.Join(root, "design.con")
	if err := os.WriteFile(matrix, []byte("/Matrix\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(contrast, []byte("/Contrast\n"), 0644); err != nil {
		t.Fatal(err)
	}

	return Params{
		RunDir:       filepath.Join(root, "tbss"),
		Subjects:     subjects,
		MatrixFile:   matrix,
		ContrastFile: contrast,
		Threshold:    0.20,
		Permutations: 500,
		AllMeasures:  allMeasures,
	}
}

func TestPipelineFullRun(t *testing.T) {
	params := newRun(t, 3, false)
	sub := newFakeSub(toolkitEffect(nil))

	p := New(params, sub)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	l := Layout{Root: params.RunDir}

	// Copy stage: all three FA images staged, no leftover partial dir.
	entries, err := os.ReadDir(l.MeasureDir(models.MeasureFA))
	if err != nil {
		t.Fatalf("FA dir: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("FA dir has %d entries, want 3", len(entries))
	}
	if _, err := os.Stat(l.MeasureDir(models.MeasureFA) + ".partial"); !os.IsNotExist(err) {
		t.Error("staging directory should be gone after the copy stage")
	}

	// Blocking stages ran in order, then the fill.
	want := []string{"tbss_1_preproc", "tbss_2_reg", "tbss_3_postreg", "tbss_4_prestats", "tbss_fill"}
	got := sub.blockingCommands()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("blocking commands = %v, want %v", got, want)
	}

	// Design files staged into stats.
	if _, err := os.Stat(l.DesignMatrix()); err != nil {
		t.Errorf("design matrix not staged: %v", err)
	}

	// Stats ran in the background and its result got filled.
	if _, err := os.Stat(l.StatsMarker(models.MeasureFA)); err != nil {
		t.Errorf("stats marker missing: %v", err)
	}
	if _, err := os.Stat(FillTarget(l.StatsMarker(models.MeasureFA))); err != nil {
		t.Errorf("fill output missing: %v", err)
	}
}

func TestPipelineIdempotent(t *testing.T) {
	params := newRun(t, 2, false)

	first := newFakeSub(toolkitEffect(nil))
	if err := New(params, first).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Second run must perform zero external invocations.
	second := newFakeSub(func(scheduler.Job) error {
		t.Error("no job should run on a fully complete run directory")
		return nil
	})
	if err := New(params, second).Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n := second.totalSubmissions(); n != 0 {
		t.Errorf("second run submitted %d jobs, want 0", n)
	}
}

func TestPipelineResumesAfterInterruption(t *testing.T) {
	params := newRun(t, 2, false)
	l := Layout{Root: params.RunDir}

	// Simulate a run interrupted after statistics: copy, preprocessing
	// block, and the stats marker all exist; the fill never ran.
	if err := os.MkdirAll(l.MeasureDir(models.MeasureFA), 0755); err != nil {
		t.Fatal(err)
	}
	if err := touch(l.StatsMarker(models.MeasureFA)); err != nil {
		t.Fatal(err)
	}

	sub := newFakeSub(toolkitEffect(nil))
	if err := New(params, sub).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Only the fill should have run; nothing was re-copied or re-registered.
	got := sub.blockingCommands()
	if len(got) != 1 || got[0] != "tbss_fill" {
		t.Errorf("blocking commands = %v, want [tbss_fill]", got)
	}
	if len(sub.started) != 0 {
		t.Errorf("stats resubmitted despite existing marker: %v", sub.started)
	}
}

func TestPipelineCoarseGateSkipsPreprocBlock(t *testing.T) {
	params := newRun(t, 2, false)
	l := Layout{Root: params.RunDir}

	// Pre-creating stats makes the whole preprocessing block read as
	// complete, even though none of it ran. Documented sharp edge.
	if err := os.MkdirAll(l.StatsDir(), 0755); err != nil {
		t.Fatal(err)
	}

	sub := newFakeSub(toolkitEffect(nil))
	if err := New(params, sub).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, cmd := range sub.blockingCommands() {
		if strings.HasPrefix(cmd, "tbss_") && cmd != "tbss_fill" {
			t.Errorf("preprocessing command %s ran despite the stats gate", cmd)
		}
	}
	if len(sub.started) != 1 {
		t.Errorf("started %d background jobs, want 1 (randomise)", len(sub.started))
	}
}

func TestPipelineCopyFailureWritesNoMarker(t *testing.T) {
	params := newRun(t, 3, false)
	// Break one subject's artifact after resolution.
	if err := os.Remove(params.Subjects[1].FAPath); err != nil {
		t.Fatal(err)
	}

	sub := newFakeSub(toolkitEffect(nil))
	err := New(params, sub).Run(context.Background())
	if err == nil {
		t.Fatal("expected the copy stage to fail")
	}
	if !strings.Contains(err.Error(), "1 of 3") {
		t.Errorf("error should count failed subjects, got %v", err)
	}

	// The marker must not exist, so a re-run retries the copy.
	l := Layout{Root: params.RunDir}
	if _, statErr := os.Stat(l.MeasureDir(models.MeasureFA)); !os.IsNotExist(statErr) {
		t.Error("FA directory marker must not be written after a partial copy")
	}

	// No downstream stage may have run.
	if n := sub.totalSubmissions(); n != 0 {
		t.Errorf("%d jobs submitted after a failed copy stage, want 0", n)
	}
}

func TestPipelineSecondaryMeasures(t *testing.T) {
	params := newRun(t, 2, true)
	sub := newFakeSub(toolkitEffect(nil))

	if err := New(params, sub).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	l := Layout{Root: params.RunDir}
	for _, m := range models.SecondaryMeasures {
		if _, err := os.Stat(l.MeasureDir(m)); err != nil {
			t.Errorf("%s directory missing: %v", m, err)
		}
		if _, err := os.Stat(FillTarget(l.StatsMarker(m))); err != nil {
			t.Errorf("%s fill output missing: %v", m, err)
		}
	}

	// One background statistics job per measure.
	if len(sub.started) != 4 {
		t.Errorf("started %d background jobs, want 4", len(sub.started))
	}
}

func TestPipelineSecondaryDisabledLeavesNoTrace(t *testing.T) {
	params := newRun(t, 2, false)
	sub := newFakeSub(toolkitEffect(nil))

	if err := New(params, sub).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	l := Layout{Root: params.RunDir}
	for _, m := range models.SecondaryMeasures {
		if _, err := os.Stat(l.MeasureDir(m)); !os.IsNotExist(err) {
			t.Errorf("%s directory should not exist when secondary measures are disabled", m)
		}
	}
}

func TestPipelineStatsFailureStopsBeforeFill(t *testing.T) {
	params := newRun(t, 2, false)
	sub := newFakeSub(toolkitEffect(map[string]bool{"randomise": true}))

	err := New(params, sub).Run(context.Background())
	if err == nil {
		t.Fatal("expected the statistics stage to fail")
	}

	for _, cmd := range sub.blockingCommands() {
		if cmd == "tbss_fill" {
			t.Error("fill must not run after a failed statistics job")
		}
	}

	// Marker absent: a re-run retries exactly the statistics stage.
	l := Layout{Root: params.RunDir}
	if _, statErr := os.Stat(l.StatsMarker(models.MeasureFA)); !os.IsNotExist(statErr) {
		t.Error("stats marker must not exist after a failed statistics job")
	}
}

func TestPipelineNoSubjects(t *testing.T) {
	params := newRun(t, 1, false)
	params.Subjects = nil

	err := New(params, newFakeSub(nil)).Run(context.Background())
	if err == nil {
		t.Error("expected an error for an empty subject set")
	}
}
