package scheduler

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Batch submits jobs through a site submission wrapper in the fsl_sub
// style: the wrapper accepts resource flags plus the job command, queues
// the job, and prints the scheduler-assigned job id on stdout. A separate
// wait command blocks until a given job id has finished.
//
// Flags passed to the submit wrapper:
//
//	-N <name> -s <cores> -R <memMB> -T <minutes> [-H] -o <stdout> -e <stderr> -- <command...>
//
// Sites with a different scheduler front a thin shim that translates them.
type Batch struct {
	submitCmd string
	waitCmd   string
}

// NewBatch creates a batch Submitter using the given submit and wait
// commands.
func NewBatch(submitCmd, waitCmd string) *Batch {
	return &Batch{submitCmd: submitCmd, waitCmd: waitCmd}
}

// Run submits the job and blocks until the scheduler reports completion.
func (b *Batch) Run(ctx context.Context, job Job) error {
	h, err := b.Start(ctx, job)
	if err != nil {
		return err
	}
	return b.Wait(ctx, h)
}

// Start submits the job and returns the scheduler's job id in a handle.
// A failed or rejected submission is a SubmitError: the scheduler could
// not take the job, which is a configuration problem.
func (b *Batch) Start(ctx context.Context, job Job) (*Handle, error) {
	if len(job.Command) == 0 {
		return nil, &SubmitError{Job: job.Name, Err: fmt.Errorf("empty command")}
	}

	args := []string{
		"-N", job.Name,
		"-s", strconv.Itoa(job.Cores),
		"-R", strconv.Itoa(job.MemoryMB),
		"-T", strconv.Itoa(int(job.WallTime.Minutes())),
	}
	if job.SingleHost {
		args = append(args, "-H")
	}
	if job.WorkDir != "" {
		args = append(args, "-D", job.WorkDir)
	}
	args = append(args, "-o", job.StdoutPath(), "-e", job.StderrPath(), "--")
	args = append(args, job.Command...)

	out, err := exec.CommandContext(ctx, b.submitCmd, args...).Output()
	if err != nil {
		return nil, &SubmitError{Job: job.Name, Err: err}
	}

	id := strings.TrimSpace(string(out))
	if id == "" {
		return nil, &SubmitError{Job: job.Name, Err: fmt.Errorf("submit command returned no job id")}
	}

	return &Handle{
		Name:   job.Name,
		JobID:  id,
		Stdout: job.StdoutPath(),
		Stderr: job.StderrPath(),
	}, nil
}

// Wait invokes the wait command with the handle's job id and blocks until
// it returns. A non-zero exit means the job itself failed.
func (b *Batch) Wait(ctx context.Context, h *Handle) error {
	if h == nil || h.JobID == "" {
		return fmt.Errorf("wait: handle has no job id")
	}

	if err := exec.CommandContext(ctx, b.waitCmd, h.JobID).Run(); err != nil {
		return &JobError{Job: h.Name, Stdout: h.Stdout, Stderr: h.Stderr, Err: err}
	}
	return nil
}

// Verify Batch implements Submitter at compile time.
var _ Submitter = (*Batch)(nil)
