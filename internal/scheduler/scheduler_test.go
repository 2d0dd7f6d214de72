package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mfarrell/tractus/internal/config"
)

func TestNewSelectsLocalWhenUnconfigured(t *testing.T) {
	sub, err := New(config.SchedulerConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := sub.(*Local); !ok {
		t.Errorf("expected *Local, got %T", sub)
	}
}

func TestNewRequiresWaitCommand(t *testing.T) {
	_, err := New(config.SchedulerConfig{SubmitCommand: "fsl_sub"})
	if err == nil {
		t.Error("expected an error when wait_command is missing")
	}
}

func TestLocalRunRedirectsOutput(t *testing.T) {
	logDir := t.TempDir()
	sub := NewLocal()

	job := Job{
		Name:    "echo-test",
		Command: []string{"sh", "-c", "echo hello"},
		LogDir:  logDir,
	}

	if err := sub.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out, err := os.ReadFile(job.StdoutPath())
	if err != nil {
		t.Fatalf("read stdout log: %v", err)
	}
	if string(out) != "hello\n" {
		t.Errorf("stdout log = %q, want %q", out, "hello\n")
	}
}

func TestLocalRunFailureIsJobError(t *testing.T) {
	sub := NewLocal()

	job := Job{
		Name:    "failing",
		Command: []string{"sh", "-c", "exit 3"},
		LogDir:  t.TempDir(),
	}

	err := sub.Run(context.Background(), job)
	if err == nil {
		t.Fatal("expected an error for a non-zero exit")
	}

	var jobErr *JobError
	if !errors.As(err, &jobErr) {
		t.Fatalf("error should be a *JobError, got %T", err)
	}
	if jobErr.Job != "failing" {
		t.Errorf("JobError.Job = %q, want %q", jobErr.Job, "failing")
	}
	if jobErr.Stderr == "" {
		t.Error("JobError should point at the stderr log")
	}
}

func TestLocalStartMissingBinaryIsSubmitError(t *testing.T) {
	sub := NewLocal()

	job := Job{
		Name:    "missing",
		Command: []string{"/nonexistent/binary"},
		LogDir:  t.TempDir(),
	}

	_, err := sub.Start(context.Background(), job)
	if err == nil {
		t.Fatal("expected an error for a missing binary")
	}

	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		t.Errorf("error should be a *SubmitError, got %T", err)
	}
}

func TestLocalStartWaitJoinsBackgroundJob(t *testing.T) {
	dir := t.TempDir()
	sub := NewLocal()
	out := filepath.Join(dir, "result")

	job := Job{
		Name:    "bg",
		Command: []string{"sh", "-c", "echo done > " + out},
		LogDir:  dir,
	}

	h, err := sub.Start(context.Background(), job)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sub.Wait(context.Background(), h); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if _, err := os.Stat(out); err != nil {
		t.Errorf("background job output missing: %v", err)
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchStartParsesJobID(t *testing.T) {
	dir := t.TempDir()
	submit := writeScript(t, dir, "submit", "echo 12345")
	wait := writeScript(t, dir, "wait", "exit 0")

	b := NewBatch(submit, wait)
	job := Job{
		Name:     "stats-FA",
		Command:  []string{"randomise"},
		Cores:    4,
		MemoryMB: 8192,
		WallTime: 24 * time.Hour,
		LogDir:   dir,
	}

	h, err := b.Start(context.Background(), job)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.JobID != "12345" {
		t.Errorf("JobID = %q, want %q", h.JobID, "12345")
	}

	if err := b.Wait(context.Background(), h); err != nil {
		t.Errorf("Wait: %v", err)
	}
}

func TestBatchRejectedSubmissionIsSubmitError(t *testing.T) {
	dir := t.TempDir()
	submit := writeScript(t, dir, "submit", "exit 1")
	wait := writeScript(t, dir, "wait", "exit 0")

	b := NewBatch(submit, wait)
	_, err := b.Start(context.Background(), Job{
		Name:    "rejected",
		Command: []string{"randomise"},
		LogDir:  dir,
	})
	if err == nil {
		t.Fatal("expected an error for a rejected submission")
	}

	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		t.Errorf("error should be a *SubmitError, got %T", err)
	}
}

func TestBatchEmptyJobIDIsSubmitError(t *testing.T) {
	dir := t.TempDir()
	submit := writeScript(t, dir, "submit", "exit 0")
	wait := writeScript(t, dir, "wait", "exit 0")

	b := NewBatch(submit, wait)
	_, err := b.Start(context.Background(), Job{
		Name:    "no-id",
		Command: []string{"randomise"},
		LogDir:  dir,
	})

	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		t.Errorf("error should be a *SubmitError, got %T", err)
	}
}

func TestBatchFailedJobIsJobError(t *testing.T) {
	dir := t.TempDir()
	submit := writeScript(t, dir, "submit", "echo 99")
	wait := writeScript(t, dir, "wait", "exit 1")

	b := NewBatch(submit, wait)
	err := b.Run(context.Background(), Job{
		Name:    "doomed",
		Command: []string{"randomise"},
		LogDir:  dir,
	})
	if err == nil {
		t.Fatal("expected an error for a failed job")
	}

	var jobErr *JobError
	if !errors.As(err, &jobErr) {
		t.Errorf("error should be a *JobError, got %T", err)
	}
}
