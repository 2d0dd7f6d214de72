package pipeline

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
)

func TestGroupJoinsAllTasks(t *testing.T) {
	var g Group
	var count int64

	for i := 0; i < 20; i++ {
		g.Go(fmt.Sprintf("task-%d", i), func() error {
			atomic.AddInt64(&count, 1)
			return nil
		})
	}

	if errs := g.Wait(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if count != 20 {
		t.Errorf("ran %d tasks, want 20", count)
	}
}

func TestGroupCollectsEveryFailure(t *testing.T) {
	var g Group

	// Every failure must be tracked, not just the last task launched.
	g.Go("ok", func() error { return nil })
	g.Go("bad-1", func() error { return errors.New("boom") })
	g.Go("bad-2", func() error { return errors.New("bang") })
	g.Go("ok-2", func() error { return nil })

	errs := g.Wait()
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), errs)
	}
	for _, e := range errs {
		if e.Task != "bad-1" && e.Task != "bad-2" {
			t.Errorf("unexpected failing task %q", e.Task)
		}
	}
}

func TestGroupFailureDoesNotAbortSiblings(t *testing.T) {
	var g Group
	var completed int64

	g.Go("failing", func() error { return errors.New("boom") })
	for i := 0; i < 5; i++ {
		g.Go(fmt.Sprintf("sibling-%d", i), func() error {
			atomic.AddInt64(&completed, 1)
			return nil
		})
	}

	errs := g.Wait()
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if completed != 5 {
		t.Errorf("%d siblings completed, want 5", completed)
	}
}

func TestGroupWaitEmpty(t *testing.T) {
	var g Group
	if errs := g.Wait(); len(errs) != 0 {
		t.Errorf("empty group should join cleanly, got %v", errs)
	}
}

func TestTaskErrorUnwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	e := TaskError{Task: "copy sub01", Err: sentinel}

	if !errors.Is(e, sentinel) {
		t.Error("TaskError should unwrap to its cause")
	}
	if e.Error() != "copy sub01: sentinel" {
		t.Errorf("Error() = %q", e.Error())
	}
}
