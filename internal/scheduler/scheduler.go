// Package scheduler submits pipeline jobs to a cluster batch scheduler,
// or runs them as local processes when no scheduler is configured.
//
// Heavy stages never run imaging commands in-process: they describe a Job
// and hand it to a Submitter, either blocking until it finishes (Run) or
// holding a Handle to join later (Start + Wait). A handle is consumed
// exactly once by Wait.
package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mfarrell/tractus/internal/config"
)

// Job describes one scheduler submission.
type Job struct {
	// Name is the scheduler-visible job name.
	Name string
	// Command is the argv to execute.
	Command []string
	// WorkDir is the directory the command runs in. Empty means the
	// submitter's own working directory.
	WorkDir string
	// Cores is the CPU reservation.
	Cores int
	// MemoryMB is the memory ceiling in megabytes.
	MemoryMB int
	// WallTime is the wall-clock ceiling.
	WallTime time.Duration
	// SingleHost requests all cores on one host.
	SingleHost bool
	// LogDir receives the job's stdout/stderr redirection files.
	LogDir string
}

// StdoutPath returns the job's stdout redirection target.
func (j Job) StdoutPath() string {
	return filepath.Join(j.LogDir, j.Name+".out")
}

// StderrPath returns the job's stderr redirection target.
func (j Job) StderrPath() string {
	return filepath.Join(j.LogDir, j.Name+".err")
}

// Handle is an opaque reference to a background submission. It is created
// by Start and consumed exactly once by Wait.
type Handle struct {
	// Name is the job name the handle was created for.
	Name string
	// JobID is the scheduler-assigned identifier. Empty for local jobs.
	JobID string
	// Stdout and Stderr are the job's log redirection targets, kept for
	// failure reporting.
	Stdout string
	Stderr string

	// local process state, nil for batch submissions
	proc *localProc
}

// Submitter runs jobs either to completion or in the background.
type Submitter interface {
	// Run submits the job and blocks until it finishes.
	Run(ctx context.Context, job Job) error

	// Start submits the job and returns immediately with a handle.
	Start(ctx context.Context, job Job) (*Handle, error)

	// Wait blocks until the job behind the handle finishes. The handle
	// must not be waited on twice.
	Wait(ctx context.Context, h *Handle) error
}

// SubmitError means the scheduler itself could not be reached or rejected
// the submission. This is a configuration problem, never retried.
type SubmitError struct {
	Job string
	Err error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit %s: %v", e.Job, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// JobError means the submitted command ran and exited non-zero. The stage
// that submitted it must not write its output marker.
type JobError struct {
	Job    string
	Stdout string
	Stderr string
	Err    error
}

func (e *JobError) Error() string {
	if e.Stdout == "" && e.Stderr == "" {
		return fmt.Sprintf("job %s failed: %v", e.Job, e.Err)
	}
	return fmt.Sprintf("job %s failed: %v (see %s, %s)", e.Job, e.Err, e.Stdout, e.Stderr)
}

func (e *JobError) Unwrap() error { return e.Err }

// New builds a Submitter from scheduler configuration. An empty submit
// command selects the local backend.
func New(cfg config.SchedulerConfig) (Submitter, error) {
	if cfg.SubmitCommand == "" {
		return NewLocal(), nil
	}
	if cfg.WaitCommand == "" {
		return nil, fmt.Errorf("scheduler.submit_command is set but scheduler.wait_command is not")
	}
	return NewBatch(cfg.SubmitCommand, cfg.WaitCommand), nil
}

// JobFrom fills a Job's resource requests from configuration.
func JobFrom(cfg config.SchedulerConfig, name, logDir string, command ...string) Job {
	return Job{
		Name:       name,
		Command:    command,
		Cores:      cfg.Cores,
		MemoryMB:   cfg.MemoryMB,
		WallTime:   cfg.WallTime,
		SingleHost: cfg.SingleHost,
		LogDir:     logDir,
	}
}
