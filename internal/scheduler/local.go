package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Local runs jobs as plain processes on the current host. Resource
// requests are accepted but not enforced; wall-time limits are left to
// the caller's context.
type Local struct{}

// NewLocal creates a local Submitter.
func NewLocal() *Local {
	return &Local{}
}

// localProc holds the process and log files of a started local job.
type localProc struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
}

// Run executes the job and blocks until it finishes.
func (l *Local) Run(ctx context.Context, job Job) error {
	h, err := l.Start(ctx, job)
	if err != nil {
		return err
	}
	return l.Wait(ctx, h)
}

// Start launches the job's process with stdout/stderr redirected to the
// job's log targets.
func (l *Local) Start(ctx context.Context, job Job) (*Handle, error) {
	if len(job.Command) == 0 {
		return nil, &SubmitError{Job: job.Name, Err: fmt.Errorf("empty command")}
	}

	if err := os.MkdirAll(job.LogDir, 0755); err != nil {
		return nil, &SubmitError{Job: job.Name, Err: err}
	}
	stdout, err := os.Create(job.StdoutPath())
	if err != nil {
		return nil, &SubmitError{Job: job.Name, Err: err}
	}
	stderr, err := os.Create(job.StderrPath())
	if err != nil {
		stdout.Close()
		return nil, &SubmitError{Job: job.Name, Err: err}
	}

	cmd := exec.CommandContext(ctx, job.Command[0], job.Command[1:]...)
	cmd.Dir = job.WorkDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, &SubmitError{Job: job.Name, Err: err}
	}

	return &Handle{
		Name: job.Name,
		proc: &localProc{cmd: cmd, stdout: stdout, stderr: stderr},
	}, nil
}

// Wait blocks until the started process exits.
func (l *Local) Wait(ctx context.Context, h *Handle) error {
	if h == nil || h.proc == nil {
		return fmt.Errorf("wait: handle has no local process")
	}

	err := h.proc.cmd.Wait()
	h.proc.stdout.Close()
	h.proc.stderr.Close()
	stdout, stderr := h.proc.stdout.Name(), h.proc.stderr.Name()
	h.proc = nil

	if err != nil {
		return &JobError{Job: h.Name, Stdout: stdout, Stderr: stderr, Err: err}
	}
	return nil
}

// Verify Local implements Submitter at compile time.
var _ Submitter = (*Local)(nil)
